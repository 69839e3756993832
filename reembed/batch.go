package reembed

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/reviewrag/ai"
	"github.com/poiesic/reviewrag/batch"
	"github.com/poiesic/reviewrag/core"
	"github.com/poiesic/reviewrag/storage"
)

// BatchProcessor handles embedding generation for batches of index entries.
type BatchProcessor struct {
	target   storage.VectorIndex
	embedder ai.Embedder
	retry    batch.Policy
	timeout  time.Duration
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts for embedding and upsert calls
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(target storage.VectorIndex, embedder ai.Embedder, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	policy := batch.DefaultPolicy()
	policy.MaxAttempts = maxRetries
	policy.BaseDelay = retryBaseDelay
	return &BatchProcessor{
		target:   target,
		embedder: embedder,
		retry:    policy,
	}
}

// WithTimeout bounds every embedding and upsert call.
func (bp *BatchProcessor) WithTimeout(timeout time.Duration) *BatchProcessor {
	bp.timeout = timeout
	return bp
}

// Process generates fresh embeddings for entries and upserts them into the target.
// IDs, content and metadata are kept; only the vector changes.
// Vectors are normalized after embedding to ensure compatibility with cosine similarity.
func (bp *BatchProcessor) Process(ctx context.Context, entries []core.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}

	texts := make([]string, len(entries))
	for i, entry := range entries {
		texts[i] = entry.Content
	}

	var embeddings [][]float32
	err := bp.retry.Do(ctx, func(ctx context.Context) error {
		callCtx, cancel := bp.withTimeout(ctx)
		defer cancel()
		var err error
		embeddings, err = bp.embedder.EmbedTexts(callCtx, texts)
		return err
	})
	if err != nil {
		return &core.EmbeddingError{Op: "reembed", Err: err}
	}
	if len(embeddings) != len(entries) {
		return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(entries), len(embeddings))
	}

	updated := make([]core.IndexEntry, len(entries))
	for i, entry := range entries {
		entry.Vector = ai.NormalizeVector(embeddings[i])
		updated[i] = entry
	}

	err = bp.retry.Do(ctx, func(ctx context.Context) error {
		callCtx, cancel := bp.withTimeout(ctx)
		defer cancel()
		_, err := bp.target.Upsert(callCtx, updated)
		return err
	})
	if err != nil {
		return &core.BackendUnavailableError{Op: "upsert", Err: err}
	}
	return nil
}

func (bp *BatchProcessor) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if bp.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, bp.timeout)
}
