package memory

import (
	"context"
	"testing"

	"github.com/poiesic/reviewrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointStore(t *testing.T) {
	ctx := context.Background()
	store := NewCheckpointStore()

	cp, err := store.LoadCheckpoint(ctx, "reviews")
	require.NoError(t, err)
	assert.Nil(t, cp)

	require.NoError(t, store.SaveCheckpoint(ctx, &core.Checkpoint{Key: "reviews", Fingerprint: 7, BatchSize: 32, CompletedBatch: 2}))

	cp, err = store.LoadCheckpoint(ctx, "reviews")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, 2, cp.CompletedBatch)
	assert.Equal(t, uint64(7), cp.Fingerprint)
	assert.False(t, cp.UpdatedAt.IsZero())
	assert.Equal(t, 1, store.Saves())

	require.NoError(t, store.ClearCheckpoint(ctx, "reviews"))
	cp, err = store.LoadCheckpoint(ctx, "reviews")
	require.NoError(t, err)
	assert.Nil(t, cp)
}
