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


package badger

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/reviewrag/core"
	"github.com/poiesic/reviewrag/storage"
)

// maxEntriesPerTxn keeps a single upsert transaction well below badger's size limit.
const maxEntriesPerTxn = 256

// Index implements storage.VectorIndex on top of BadgerDB.
// Similarity search is a full scan scored by cosine similarity.
type Index struct {
	backend *Backend
	logger  *slog.Logger
}

var (
	_ storage.VectorIndex  = (*Index)(nil)
	_ storage.EntryScanner = (*Index)(nil)
)

// NewIndex creates an index stored in backend.
// The backend stays owned by the caller; Close on the index is a no-op.
func NewIndex(backend *Backend) (*Index, error) {
	if backend == nil {
		return nil, ErrBackendRequired
	}
	return &Index{
		backend: backend,
		logger:  backend.logger.With("store", "index"),
	}, nil
}

// Upsert stores entries keyed by ID, replacing existing ones.
func (idx *Index) Upsert(ctx context.Context, entries []core.IndexEntry) ([]core.ID, error) {
	for _, e := range entries {
		if e.ID == 0 {
			return nil, storage.ErrMissingID
		}
	}

	ids := make([]core.ID, 0, len(entries))
	for chunk := range slices.Chunk(entries, maxEntriesPerTxn) {
		err := idx.backend.Update(ctx, func(tx *badger.Txn) error {
			if err := checkDimension(tx, chunk); err != nil {
				return err
			}
			for i := range chunk {
				if err := tx.Set(makeEntryKey(chunk[i].ID), storage.MarshalIndexEntry(&chunk[i])); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		for _, e := range chunk {
			ids = append(ids, e.ID)
		}
	}

	idx.logger.Debug("upserted entries", "count", len(ids))
	return ids, nil
}

// checkDimension enforces a single vector dimension per index, recording it on first write.
func checkDimension(tx *badger.Txn, entries []core.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}

	dimension := -1
	item, err := tx.Get([]byte(dimensionKey))
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
	case err != nil:
		return err
	default:
		err = item.Value(func(val []byte) error {
			id, err := storage.UnmarshalID(val)
			dimension = int(id)
			return err
		})
		if err != nil {
			return err
		}
	}

	if dimension < 0 {
		dimension = len(entries[0].Vector)
		if err := tx.Set([]byte(dimensionKey), storage.MarshalID(core.ID(dimension))); err != nil {
			return err
		}
	}
	for _, e := range entries {
		if len(e.Vector) != dimension {
			return storage.ErrDimensionMismatch
		}
	}
	return nil
}

// Query returns the k entries most similar to vector.
func (idx *Index) Query(ctx context.Context, vector []float32, k int) ([]core.ScoredEntry, error) {
	if k <= 0 {
		return nil, storage.ErrInvalidQuery
	}

	hits := []core.ScoredEntry{}
	err := idx.backend.View(ctx, func(tx *badger.Txn) error {
		return forEachEntry(ctx, tx, func(entry *core.IndexEntry) error {
			if len(entry.Vector) == 0 {
				return nil
			}
			hits = append(hits, core.ScoredEntry{
				Entry: *entry,
				Score: storage.Cosine(vector, entry.Vector),
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	storage.SortByScore(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Count returns the number of stored entries.
func (idx *Index) Count(ctx context.Context) (int, error) {
	count := 0
	err := idx.backend.View(ctx, func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = entryKeyPrefix()
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Get retrieves a single entry by ID.
// Returns storage.ErrNotFound if the entry doesn't exist.
func (idx *Index) Get(ctx context.Context, id core.ID) (*core.IndexEntry, error) {
	var entry *core.IndexEntry
	err := idx.backend.View(ctx, func(tx *badger.Txn) error {
		item, err := tx.Get(makeEntryKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var err error
			entry, err = storage.UnmarshalIndexEntry(val)
			return err
		})
	})
	return entry, err
}

// Scan walks all entries in ID order, batchSize at a time.
// Entries are read in one transaction and handed to fn after it closes,
// so fn may write back to the index.
func (idx *Index) Scan(ctx context.Context, batchSize int, fn func([]core.IndexEntry) error) error {
	if batchSize <= 0 {
		batchSize = 100
	}

	var all []core.IndexEntry
	err := idx.backend.View(ctx, func(tx *badger.Txn) error {
		return forEachEntry(ctx, tx, func(entry *core.IndexEntry) error {
			all = append(all, *entry)
			return nil
		})
	})
	if err != nil {
		return err
	}

	for chunk := range slices.Chunk(all, batchSize) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op; the backend is closed by its owner.
func (idx *Index) Close() error {
	return nil
}

func forEachEntry(ctx context.Context, tx *badger.Txn, fn func(*core.IndexEntry) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = entryKeyPrefix()
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var entry *core.IndexEntry
		err := iter.Item().Value(func(val []byte) error {
			var err error
			entry, err = storage.UnmarshalIndexEntry(val)
			return err
		})
		if err != nil {
			return err
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return nil
}
