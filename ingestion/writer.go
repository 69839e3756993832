package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/reviewrag/ai"
	"github.com/poiesic/reviewrag/batch"
	"github.com/poiesic/reviewrag/core"
	"github.com/poiesic/reviewrag/storage"
)

// batchWriter embeds a batch and upserts it under deterministic IDs.
type batchWriter struct {
	index    storage.VectorIndex
	embedder ai.Embedder
	timeout  time.Duration
	retry    batch.Policy
	logger   *slog.Logger
}

var _ processor = (*batchWriter)(nil)

func newBatchWriter(index storage.VectorIndex, embedder ai.Embedder, timeout time.Duration, retry batch.Policy, logger *slog.Logger) (*batchWriter, error) {
	if index == nil {
		return nil, ErrVectorIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &batchWriter{
		index:    index,
		embedder: embedder,
		timeout:  timeout,
		retry:    retry,
		logger:   logger.With("processor", "batch-writer"),
	}, nil
}

// process generates embeddings for docs and upserts them.
// Every external call gets its own timeout and is retried while the
// failure looks transient.
func (w *batchWriter) process(ctx context.Context, number int, docs []core.DocumentRecord) error {
	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}

	w.logger.Debug("generating embeddings", "batch", number, "records", len(texts))
	var vectors [][]float32
	err := w.retry.Do(ctx, func(ctx context.Context) error {
		callCtx, cancel := w.withTimeout(ctx)
		defer cancel()

		result, err := w.embedder.EmbedTexts(callCtx, texts)
		if err != nil {
			return err
		}
		if len(result) != len(texts) {
			return core.MarkPermanent(fmt.Errorf("embedding result mismatch. expected %d, received %d", len(texts), len(result)))
		}
		vectors = result
		return nil
	})
	if err != nil {
		w.logger.Error("error generating embeddings", "batch", number, "err", err)
		return &core.EmbeddingError{Batch: number, Op: "embed_batch", Err: err}
	}

	entries := buildEntries(docs, vectors)

	w.logger.Debug("upserting entries", "batch", number, "entries", len(entries))
	err = w.retry.Do(ctx, func(ctx context.Context) error {
		callCtx, cancel := w.withTimeout(ctx)
		defer cancel()
		_, err := w.index.Upsert(callCtx, entries)
		return err
	})
	if err != nil {
		w.logger.Error("error upserting entries", "batch", number, "err", err)
		return &core.BackendUnavailableError{Batch: number, Op: "upsert", Err: err}
	}
	return nil
}

func (w *batchWriter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, w.timeout)
}

// buildEntries pairs documents with vectors. Duplicate documents inside one
// batch collapse to a single entry; the last occurrence wins.
func buildEntries(docs []core.DocumentRecord, vectors [][]float32) []core.IndexEntry {
	entries := make([]core.IndexEntry, 0, len(docs))
	seen := make(map[core.ID]int, len(docs))
	for i, doc := range docs {
		entry := core.IndexEntry{
			ID:       doc.ID(),
			Vector:   vectors[i],
			Content:  doc.Content,
			Metadata: doc.Metadata,
		}
		if at, dup := seen[entry.ID]; dup {
			entries[at] = entry
			continue
		}
		seen[entry.ID] = len(entries)
		entries = append(entries, entry)
	}
	return entries
}
