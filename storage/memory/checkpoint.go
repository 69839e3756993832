package memory

import (
	"context"
	"sync"
	"time"

	"github.com/poiesic/reviewrag/core"
	"github.com/poiesic/reviewrag/storage"
)

// CheckpointStore keeps ingestion checkpoints in a map.
type CheckpointStore struct {
	mu          sync.Mutex
	checkpoints map[string]core.Checkpoint
	saves       int
}

var _ storage.CheckpointStore = (*CheckpointStore)(nil)

// NewCheckpointStore creates an empty store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{checkpoints: make(map[string]core.Checkpoint)}
}

// SaveCheckpoint stores a copy of checkpoint under its key.
func (s *CheckpointStore) SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	checkpoint.UpdatedAt = time.Now().UTC()
	s.checkpoints[checkpoint.Key] = *checkpoint
	s.saves++
	return nil
}

// LoadCheckpoint returns the checkpoint for key, or nil if there is none.
func (s *CheckpointStore) LoadCheckpoint(ctx context.Context, key string) (*core.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpoints[key]
	if !ok {
		return nil, nil
	}
	return &cp, nil
}

// ClearCheckpoint removes the checkpoint for key.
func (s *CheckpointStore) ClearCheckpoint(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.checkpoints, key)
	return nil
}

// Saves returns how many times SaveCheckpoint succeeded.
func (s *CheckpointStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
