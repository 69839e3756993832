package ingestion

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/poiesic/reviewrag/core"
	"github.com/poiesic/reviewrag/storage"
)

// fingerprint identifies a batched document set. A checkpoint only applies
// to a run whose documents and batch size are identical.
func fingerprint(docs []core.DocumentRecord, batchSize int) uint64 {
	var b strings.Builder
	b.Grow(len(docs)*17 + 8)
	for _, doc := range docs {
		b.WriteString(doc.ID().String())
		b.WriteByte(',')
	}
	b.WriteString(core.ID(batchSize).String())
	return uint64(core.IDFromContent(b.String()))
}

// checkpointer advances the stored cursor as batches finish. Batches can
// finish out of order when more than one is in flight, so only the
// contiguous prefix of completed batches is persisted.
type checkpointer struct {
	store       storage.CheckpointStore
	key         string
	fingerprint uint64
	batchSize   int
	logger      *slog.Logger

	mu         sync.Mutex
	done       map[int]bool
	contiguous int
}

func newCheckpointer(store storage.CheckpointStore, key string, fp uint64, batchSize, resumed int, logger *slog.Logger) *checkpointer {
	return &checkpointer{
		store:       store,
		key:         key,
		fingerprint: fp,
		batchSize:   batchSize,
		logger:      logger,
		done:        make(map[int]bool),
		contiguous:  resumed,
	}
}

// resumePoint returns how many leading batches a previous run committed.
func resumePoint(ctx context.Context, store storage.CheckpointStore, key string, fp uint64, batchSize, batches int, logger *slog.Logger) int {
	if store == nil {
		return 0
	}
	cp, err := store.LoadCheckpoint(ctx, key)
	if err != nil {
		logger.Warn("could not load checkpoint, starting from the first batch", "key", key, "err", err)
		return 0
	}
	if cp == nil {
		return 0
	}
	if cp.Fingerprint != fp || cp.BatchSize != batchSize {
		logger.Info("checkpoint belongs to a different input, starting over", "key", key)
		return 0
	}
	return min(cp.CompletedBatch, batches)
}

// complete records batch number as committed and saves the cursor when it moves.
func (c *checkpointer) complete(ctx context.Context, number int) {
	if c == nil {
		return
	}

	c.mu.Lock()
	c.done[number] = true
	advanced := false
	for c.done[c.contiguous+1] {
		delete(c.done, c.contiguous+1)
		c.contiguous++
		advanced = true
	}
	cursor := c.contiguous
	// Held through the save: cursors reach the store in increasing order.
	defer c.mu.Unlock()

	if !advanced {
		return
	}
	err := c.store.SaveCheckpoint(ctx, &core.Checkpoint{
		Key:            c.key,
		Fingerprint:    c.fingerprint,
		BatchSize:      c.batchSize,
		CompletedBatch: cursor,
	})
	if err != nil {
		c.logger.Warn("could not save checkpoint", "key", c.key, "batch", cursor, "err", err)
	}
}

func (c *checkpointer) clear(ctx context.Context) {
	if c == nil {
		return
	}
	if err := c.store.ClearCheckpoint(ctx, c.key); err != nil {
		c.logger.Warn("could not clear checkpoint", "key", c.key, "err", err)
	}
}
