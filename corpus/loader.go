// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package corpus

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/poiesic/reviewrag/core"
)

const utf8BOM = "\ufeff"

// ColumnMap names the source columns holding each RawRecord field.
type ColumnMap struct {
	Title   string
	Rating  string
	Summary string
	Review  string
}

// DefaultColumns matches the Amazon product review export.
func DefaultColumns() ColumnMap {
	return ColumnMap{
		Title:   "product_title",
		Rating:  "rating",
		Summary: "summary",
		Review:  "review",
	}
}

// Names returns the required column names in field order.
func (m ColumnMap) Names() []string {
	return []string{m.Title, m.Rating, m.Summary, m.Review}
}

func (m ColumnMap) validate() error {
	for _, name := range m.Names() {
		if strings.TrimSpace(name) == "" {
			return ErrEmptyColumnName
		}
	}
	return nil
}

type loader struct {
	columns   ColumnMap
	delimiter rune
	logger    *slog.Logger
}

// Option configures a load.
type Option func(*loader) error

// WithColumns overrides the required column names.
func WithColumns(columns ColumnMap) Option {
	return func(l *loader) error {
		if err := columns.validate(); err != nil {
			return err
		}
		l.columns = columns
		return nil
	}
}

// WithDelimiter sets the field separator, e.g. '\t' for TSV sources.
func WithDelimiter(delimiter rune) Option {
	return func(l *loader) error {
		if delimiter == 0 || delimiter == '"' || delimiter == '\r' || delimiter == '\n' {
			return ErrInvalidDelimiter
		}
		l.delimiter = delimiter
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *loader) error {
		if logger == nil {
			return ErrLoggerRequired
		}
		l.logger = logger
		return nil
	}
}

func newLoader(opts []Option) (*loader, error) {
	l := &loader{
		columns:   DefaultColumns(),
		delimiter: ',',
		logger:    slog.Default().With("component", "corpus-loader"),
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// LoadFile opens path and loads every record from it.
// A source that cannot be opened yields a *core.SourceNotFoundError.
func LoadFile(path string, opts ...Option) ([]core.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &core.SourceNotFoundError{Source: path, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &core.SourceNotFoundError{Source: path, Err: err}
	}
	if info.IsDir() {
		return nil, &core.SourceNotFoundError{Source: path, Err: ErrIsDirectory}
	}
	return Load(f, opts...)
}

// Load reads a delimited table with a header row and returns its rows in
// source order. The whole source is validated before anything is returned:
// a missing required column or an unreadable row fails the load with a
// *core.SchemaError and no records.
func Load(r io.Reader, opts ...Option) ([]core.RawRecord, error) {
	l, err := newLoader(opts)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(r)
	reader.Comma = l.delimiter
	reader.FieldsPerRecord = 0
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &core.SchemaError{Expected: l.columns.Names(), Missing: l.columns.Names(), Row: -1}
		}
		return nil, &core.SchemaError{Expected: l.columns.Names(), Row: -1, Detail: err.Error()}
	}

	positions, err := l.locate(header)
	if err != nil {
		return nil, err
	}

	var records []core.RawRecord
	for row := 0; ; row++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &core.SchemaError{Expected: l.columns.Names(), Row: row, Detail: err.Error()}
		}

		record, err := l.record(fields, positions, row)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	l.logger.Debug("corpus loaded", "records", len(records))
	return records, nil
}

// fieldPositions holds the header index of each required column.
type fieldPositions struct {
	title, rating, summary, review int
}

func (l *loader) locate(header []string) (fieldPositions, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, utf8BOM)
		}
		name = strings.TrimSpace(name)
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}

	var missing []string
	lookup := func(name string) int {
		i, ok := index[name]
		if !ok {
			missing = append(missing, name)
		}
		return i
	}

	pos := fieldPositions{
		title:   lookup(l.columns.Title),
		rating:  lookup(l.columns.Rating),
		summary: lookup(l.columns.Summary),
		review:  lookup(l.columns.Review),
	}
	if len(missing) > 0 {
		return fieldPositions{}, &core.SchemaError{Expected: l.columns.Names(), Missing: missing, Row: -1}
	}
	return pos, nil
}

func (l *loader) record(fields []string, pos fieldPositions, row int) (core.RawRecord, error) {
	need := max(pos.title, pos.rating, pos.summary, pos.review)
	if len(fields) <= need {
		return core.RawRecord{}, &core.SchemaError{
			Expected: l.columns.Names(),
			Row:      row,
			Detail:   fmt.Sprintf("has %d fields, need at least %d", len(fields), need+1),
		}
	}

	raw := strings.TrimSpace(fields[pos.rating])
	if raw == "" {
		return core.RawRecord{}, &core.SchemaError{Expected: l.columns.Names(), Row: row, Detail: "rating is empty"}
	}
	rating, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return core.RawRecord{}, &core.SchemaError{
			Expected: l.columns.Names(),
			Row:      row,
			Detail:   fmt.Sprintf("rating %q is not a number", raw),
		}
	}

	return core.RawRecord{
		Title:   fields[pos.title],
		Rating:  rating,
		Summary: fields[pos.summary],
		Review:  fields[pos.review],
		Row:     row,
	}, nil
}
