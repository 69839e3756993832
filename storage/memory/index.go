// Package memory provides a map-backed storage.VectorIndex.
//
// It does brute-force cosine similarity over every entry and keeps nothing
// on disk. Use it for tests and for one-off runs over small corpora.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/poiesic/reviewrag/core"
	"github.com/poiesic/reviewrag/storage"
)

// Index is an in-memory vector index.
type Index struct {
	mu        sync.RWMutex
	dimension int
	entries   map[core.ID]core.IndexEntry
	order     []core.ID // insertion order, used by Scan
	closed    bool

	// UpsertFunc and QueryFunc, when set, replace the default behavior.
	// Tests use them to inject backend failures.
	UpsertFunc func(ctx context.Context, entries []core.IndexEntry) ([]core.ID, error)
	QueryFunc  func(ctx context.Context, vector []float32, k int) ([]core.ScoredEntry, error)

	upsertCalls int
	queryCalls  int
}

var (
	_ storage.VectorIndex  = (*Index)(nil)
	_ storage.EntryScanner = (*Index)(nil)
)

// NewIndex creates an empty index. The dimension is fixed by the first upsert.
// Returns the concrete type so tests can inject behavior and read call counts.
func NewIndex() *Index {
	return &Index{entries: make(map[core.ID]core.IndexEntry)}
}

// Upsert inserts or replaces entries keyed by ID.
func (idx *Index) Upsert(ctx context.Context, entries []core.IndexEntry) ([]core.ID, error) {
	idx.mu.Lock()
	idx.upsertCalls++
	fn := idx.UpsertFunc
	idx.mu.Unlock()
	if fn != nil {
		return fn(ctx, entries)
	}
	return idx.upsert(ctx, entries)
}

func (idx *Index) upsert(ctx context.Context, entries []core.IndexEntry) ([]core.ID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return nil, storage.ErrStorageClosed
	}

	dimension := idx.dimension
	for _, e := range entries {
		if e.ID == 0 {
			return nil, storage.ErrMissingID
		}
		if dimension == 0 {
			dimension = len(e.Vector)
		}
		if len(e.Vector) != dimension {
			return nil, storage.ErrDimensionMismatch
		}
	}
	idx.dimension = dimension

	ids := make([]core.ID, len(entries))
	for i, e := range entries {
		if _, exists := idx.entries[e.ID]; !exists {
			idx.order = append(idx.order, e.ID)
		}
		e.Vector = slices.Clone(e.Vector)
		idx.entries[e.ID] = e
		ids[i] = e.ID
	}
	return ids, nil
}

// Query returns the k entries most similar to vector.
func (idx *Index) Query(ctx context.Context, vector []float32, k int) ([]core.ScoredEntry, error) {
	idx.mu.Lock()
	idx.queryCalls++
	fn := idx.QueryFunc
	idx.mu.Unlock()
	if fn != nil {
		return fn(ctx, vector, k)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, storage.ErrInvalidQuery
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return nil, storage.ErrStorageClosed
	}

	hits := make([]core.ScoredEntry, 0, len(idx.entries))
	for _, e := range idx.entries {
		hits = append(hits, core.ScoredEntry{Entry: e, Score: storage.Cosine(vector, e.Vector)})
	}
	storage.SortByScore(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Count returns the number of stored entries.
func (idx *Index) Count(_ context.Context) (int, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return 0, storage.ErrStorageClosed
	}
	return len(idx.entries), nil
}

// Scan walks entries in insertion order.
func (idx *Index) Scan(ctx context.Context, batchSize int, fn func([]core.IndexEntry) error) error {
	if batchSize <= 0 {
		batchSize = 100
	}

	idx.mu.RLock()
	snapshot := make([]core.IndexEntry, 0, len(idx.order))
	for _, id := range idx.order {
		snapshot = append(snapshot, idx.entries[id])
	}
	idx.mu.RUnlock()

	for chunk := range slices.Chunk(snapshot, batchSize) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the entry for id.
func (idx *Index) Get(id core.ID) (core.IndexEntry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.entries[id]
	return e, ok
}

// UpsertCalls returns how many times Upsert was called.
func (idx *Index) UpsertCalls() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.upsertCalls
}

// QueryCalls returns how many times Query was called.
func (idx *Index) QueryCalls() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.queryCalls
}

// Close marks the index closed.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.closed = true
	return nil
}
