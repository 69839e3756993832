package storage

import (
	"context"

	"github.com/poiesic/reviewrag/core"
)

// VectorIndex stores embedded reviews and answers nearest-neighbor queries.
// Implementations must be thread-safe and support concurrent access.
type VectorIndex interface {
	// Upsert inserts or replaces entries keyed by their ID.
	// Entries must carry a caller-computed ID; re-upserting the same ID
	// never creates a duplicate. Returns the IDs in input order.
	Upsert(ctx context.Context, entries []core.IndexEntry) ([]core.ID, error)

	// Query returns up to k entries closest to vector, ordered by
	// similarity score (highest first). An empty index yields an empty
	// slice and a nil error.
	Query(ctx context.Context, vector []float32, k int) ([]core.ScoredEntry, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// Close releases resources held by the index.
	Close() error
}

// EntryScanner is implemented by indices that can enumerate their entries.
type EntryScanner interface {
	// Scan calls fn with successive batches of at most batchSize entries.
	// Iteration stops on the first error returned by fn.
	// Context cancellation is checked between batches.
	Scan(ctx context.Context, batchSize int, fn func([]core.IndexEntry) error) error
}

// DocumentValidator is implemented by indices with per-field limits.
// ValidateDocument returns a reason when doc can never be stored, so the
// pipeline can skip that record instead of failing its whole batch.
type DocumentValidator interface {
	ValidateDocument(doc core.DocumentRecord) error
}

// CheckpointStore persists ingestion progress.
type CheckpointStore interface {
	// SaveCheckpoint persists a checkpoint under its key.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint retrieves the checkpoint for key.
	// Returns nil, nil if no checkpoint exists.
	LoadCheckpoint(ctx context.Context, key string) (*core.Checkpoint, error)

	// ClearCheckpoint removes the checkpoint for key, if any.
	ClearCheckpoint(ctx context.Context, key string) error
}
