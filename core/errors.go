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


package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"syscall"
)

// Sentinels for errors.Is. Each typed error below matches its sentinel.
var (
	// ErrConfiguration indicates missing or invalid settings.
	ErrConfiguration = errors.New("configuration error")

	// ErrSourceNotFound indicates the corpus source could not be opened.
	ErrSourceNotFound = errors.New("source not found")

	// ErrSchema indicates the corpus lacks required columns or has unreadable rows.
	ErrSchema = errors.New("schema error")

	// ErrMalformedRecord indicates a single record could not be transformed.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrEmbedding indicates the embedding provider failed.
	ErrEmbedding = errors.New("embedding failed")

	// ErrBackendUnavailable indicates the vector index could not serve a request.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrQueryEmbedding indicates a query that cannot be embedded, such as empty text.
	ErrQueryEmbedding = errors.New("query cannot be embedded")

	// ErrTransient marks a failure worth retrying.
	ErrTransient = errors.New("transient failure")

	// ErrPermanent marks a failure that must not be retried.
	ErrPermanent = errors.New("permanent failure")
)

// ConfigurationError lists every missing or invalid setting found at load time.
type ConfigurationError struct {
	Missing []string
	Invalid []string
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required keys: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid values: "+strings.Join(e.Invalid, "; "))
	}
	return ErrConfiguration.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// SourceNotFoundError reports a corpus source that could not be opened.
type SourceNotFoundError struct {
	Source string
	Err    error
}

func (e *SourceNotFoundError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrSourceNotFound, e.Source, e.Err)
}

func (e *SourceNotFoundError) Is(target error) bool { return target == ErrSourceNotFound }
func (e *SourceNotFoundError) Unwrap() error        { return e.Err }

// SchemaError reports a corpus that does not match the expected layout.
// Row is the 0-based data row for row-level problems, or -1 for header problems.
type SchemaError struct {
	Expected []string
	Missing  []string
	Row      int
	Detail   string
}

func (e *SchemaError) Error() string {
	if e.Row < 0 {
		if e.Detail != "" && len(e.Missing) == 0 {
			return fmt.Sprintf("%s: header: %s, expected columns [%s]",
				ErrSchema, e.Detail, strings.Join(e.Expected, ", "))
		}
		return fmt.Sprintf("%s: missing columns [%s], expected columns [%s]",
			ErrSchema, strings.Join(e.Missing, ", "), strings.Join(e.Expected, ", "))
	}
	return fmt.Sprintf("%s: row %d: %s", ErrSchema, e.Row, e.Detail)
}

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// MalformedRecordError reports a record that cannot become a DocumentRecord.
type MalformedRecordError struct {
	Index  int
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("%s: record %d: %s", ErrMalformedRecord, e.Index, e.Reason)
}

func (e *MalformedRecordError) Is(target error) bool { return target == ErrMalformedRecord }

// EmbeddingError reports a failed embedding call.
// Batch is 1-based; zero means the call was not part of a batch.
type EmbeddingError struct {
	Batch int
	Op    string
	Err   error
}

func (e *EmbeddingError) Error() string {
	if e.Batch > 0 {
		return fmt.Sprintf("%s: batch %d: %s: %v", ErrEmbedding, e.Batch, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", ErrEmbedding, e.Op, e.Err)
}

func (e *EmbeddingError) Is(target error) bool { return target == ErrEmbedding }
func (e *EmbeddingError) Unwrap() error        { return e.Err }

// BackendUnavailableError reports a vector index call that failed.
// Batch is 1-based; zero means the call was not part of a batch.
type BackendUnavailableError struct {
	Batch int
	Op    string
	Err   error
}

func (e *BackendUnavailableError) Error() string {
	if e.Batch > 0 {
		return fmt.Sprintf("%s: batch %d: %s: %v", ErrBackendUnavailable, e.Batch, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", ErrBackendUnavailable, e.Op, e.Err)
}

func (e *BackendUnavailableError) Is(target error) bool { return target == ErrBackendUnavailable }
func (e *BackendUnavailableError) Unwrap() error        { return e.Err }

// QueryEmbeddingError reports a query rejected before any provider call.
type QueryEmbeddingError struct {
	Query string
}

func (e *QueryEmbeddingError) Error() string {
	return fmt.Sprintf("%s: query text is empty", ErrQueryEmbedding)
}

func (e *QueryEmbeddingError) Is(target error) bool { return target == ErrQueryEmbedding }

// MarkTransient tags err as retryable.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// MarkPermanent tags err as not retryable.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// transientHints identify connection failures that surface only as text,
// e.g. from gRPC status messages.
var transientHints = []string{
	"connection refused", "connection reset", "broken pipe", "code = unavailable",
}

// permanentHints are substrings of provider errors that no retry can fix.
var permanentHints = []string{
	"unauthorized", "unauthenticated", "permission denied",
	"invalid api key", "api key not valid", "quota",
}

// authStatus matches 401 and 403 as standalone status codes, never as part
// of a port, id or longer number.
var authStatus = regexp.MustCompile(`(^|[^\w.:])(401|403)([^\w.]|$)`)

// IsTransient reports whether err is worth retrying.
//
// Explicit marks win. Cancellation is never transient; deadlines, network
// timeouts and dropped connections always are. Otherwise the message is
// checked for auth and quota failures and anything else is assumed
// transient and left to the bounded retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermanent) {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range transientHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	for _, hint := range permanentHints {
		if strings.Contains(msg, hint) {
			return false
		}
	}
	return !authStatus.MatchString(msg)
}
