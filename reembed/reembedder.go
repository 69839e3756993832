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


package reembed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/reviewrag/ai"
	"github.com/poiesic/reviewrag/batch"
	"github.com/poiesic/reviewrag/core"
	"github.com/poiesic/reviewrag/storage"
)

// Source is an index whose entries can be enumerated.
type Source interface {
	storage.EntryScanner
	Count(ctx context.Context) (int, error)
}

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of entries to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of entries)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for failed operations
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// Timeout bounds each embedding and upsert call. Zero disables it.
	Timeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
		Timeout:        30 * time.Second,
	}
}

// Reembedder recomputes the vector of every entry in an index.
//
// Entries are read from source and written to target. Source and target may
// be the same index as long as the new model keeps the vector dimension;
// otherwise write into a fresh index.
type Reembedder struct {
	source    Source
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	logger    *slog.Logger
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(source Source, target storage.VectorIndex, embedder ai.Embedder, config *Config, progress io.Writer) (*Reembedder, error) {
	if source == nil {
		return nil, ErrSourceRequired
	}
	if target == nil {
		return nil, ErrTargetRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.BatchSize <= 0 {
		return nil, batch.ErrInvalidBatchSize
	}
	if config.MaxRetries <= 0 {
		return nil, batch.ErrInvalidMaxAttempts
	}
	if progress == nil {
		progress = io.Discard
	}

	processor := NewBatchProcessor(target, embedder, config.MaxRetries, config.RetryDelay).WithTimeout(config.Timeout)

	return &Reembedder{
		source:    source,
		config:    config,
		progress:  progress,
		processor: processor,
		logger:    slog.Default().With("component", "reembedder"),
	}, nil
}

// Run re-embeds every entry of the source and returns how many were written.
// Progress is reported to the configured writer. Cancellation is checked
// between batches; batches already written stay written.
func (r *Reembedder) Run(ctx context.Context) (int, error) {
	totalEntries, err := r.source.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}

	if totalEntries == 0 {
		fmt.Fprintf(r.progress, "No entries found in index (0 entries)\n")
		return 0, nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d entries (batch size: %d)\n",
		totalEntries, r.config.BatchSize)

	tracker := batch.NewProgressTracker(r.progress, totalEntries, r.config.ReportInterval).WithUnit("entries")
	tracker.Start()

	processed := 0
	batchNumber := 0
	err = r.source.Scan(ctx, r.config.BatchSize, func(entries []core.IndexEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		batchNumber++
		if err := r.processor.Process(ctx, entries); err != nil {
			r.logger.Error("failed to process batch", "batch", batchNumber, "err", err)
			return fmt.Errorf("failed to process batch %d: %w", batchNumber, err)
		}

		processed += len(entries)
		tracker.Update(processed)
		return nil
	})
	if err != nil {
		tracker.Stop()
		return processed, err
	}

	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d entries in %v (%.1f entries/sec)\n",
		processed, elapsed.Round(time.Millisecond), float64(processed)/max(elapsed.Seconds(), 1e-9))

	return processed, nil
}
