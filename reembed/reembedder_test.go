package reembed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/reviewrag/ai/mock"
	"github.com/poiesic/reviewrag/core"
	"github.com/poiesic/reviewrag/storage/badger"
	"github.com/poiesic/reviewrag/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, index interface {
	Upsert(context.Context, []core.IndexEntry) ([]core.ID, error)
}, n int) []core.IndexEntry {
	t.Helper()
	entries := make([]core.IndexEntry, n)
	for i := range entries {
		doc := core.DocumentRecord{
			Content:  fmt.Sprintf("review %d", i),
			Metadata: core.Metadata{ProductName: fmt.Sprintf("Product %d", i), ProductRating: 4},
		}
		entries[i] = core.IndexEntry{ID: doc.ID(), Vector: []float32{1, 0, 0}, Content: doc.Content, Metadata: doc.Metadata}
	}
	_, err := index.Upsert(context.Background(), entries)
	require.NoError(t, err)
	return entries
}

func unnormalized(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1.0, 2.0, 2.0} // magnitude = 3.0
	}
	return out, nil
}

func testConfig() *Config {
	return &Config{
		BatchSize:      3,
		ReportInterval: 3,
		MaxRetries:     2,
		RetryDelay:     time.Millisecond,
	}
}

func TestReembedder_Run_InPlace(t *testing.T) {
	ctx := context.Background()
	index := memory.NewIndex()
	entries := seed(t, index, 10)

	embedder := mock.NewMockEmbedder().WithEmbedTextsFunc(unnormalized)

	var buf bytes.Buffer
	r, err := NewReembedder(index, index, embedder, testConfig(), &buf)
	require.NoError(t, err)

	processed, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, processed)

	count, err := index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, count, "reembedding never adds entries")

	for _, original := range entries {
		updated, ok := index.Get(original.ID)
		require.True(t, ok)
		assert.Equal(t, original.Content, updated.Content)
		assert.Equal(t, original.Metadata, updated.Metadata)

		var magnitude float32
		for _, v := range updated.Vector {
			magnitude += v * v
		}
		assert.InDelta(t, 1.0, magnitude, 0.01, "vector should be normalized")
	}

	output := buf.String()
	assert.Contains(t, output, "10/10", "should show completion")
	assert.Contains(t, output, "Reembedding complete")
	assert.Equal(t, 4, embedder.CallCount(), "10 entries in batches of 3")
}

func TestReembedder_Run_IntoNewIndexWithNewDimension(t *testing.T) {
	ctx := context.Background()
	source, _, backend, err := badger.NewMemoryIndex()
	require.NoError(t, err)
	defer backend.Close()
	seed(t, source, 5)

	target := memory.NewIndex()
	embedder := mock.NewMockEmbedder().WithDimension(8)

	r, err := NewReembedder(source, target, embedder, testConfig(), nil)
	require.NoError(t, err)

	processed, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, processed)

	count, err := target.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	hits, err := target.Query(ctx, mock.Vector("review 3", 8), 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Len(t, hits[0].Entry.Vector, 8)
}

func TestReembedder_EmptyIndex(t *testing.T) {
	var buf bytes.Buffer
	index := memory.NewIndex()
	r, err := NewReembedder(index, index, mock.NewMockEmbedder(), DefaultConfig(), &buf)
	require.NoError(t, err)

	processed, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, processed)
	assert.Contains(t, buf.String(), "0 entries", "should report zero entries")
}

func TestReembedder_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	index := memory.NewIndex()
	seed(t, index, 10)

	callCount := 0
	embedder := mock.NewMockEmbedder().WithEmbedTextsFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		callCount++
		if callCount == 2 {
			cancel()
		}
		return unnormalized(ctx, texts)
	})

	r, err := NewReembedder(index, index, embedder, testConfig(), nil)
	require.NoError(t, err)

	processed, err := r.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, processed, 10)
}

func TestReembedder_EmbeddingError(t *testing.T) {
	index := memory.NewIndex()
	seed(t, index, 1)

	embedder := mock.NewMockEmbedder().WithEmbedTextsFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("persistent error")
	})

	r, err := NewReembedder(index, index, embedder, testConfig(), nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEmbedding)
	assert.Contains(t, err.Error(), "persistent error")
	assert.Equal(t, 2, embedder.CallCount(), "retried up to MaxRetries")
}

func TestNewReembedder_Validation(t *testing.T) {
	index := memory.NewIndex()
	embedder := mock.NewMockEmbedder()

	_, err := NewReembedder(nil, index, embedder, nil, nil)
	assert.ErrorIs(t, err, ErrSourceRequired)
	_, err = NewReembedder(index, nil, embedder, nil, nil)
	assert.ErrorIs(t, err, ErrTargetRequired)
	_, err = NewReembedder(index, index, nil, nil, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
	_, err = NewReembedder(index, index, embedder, &Config{BatchSize: 0, MaxRetries: 1}, nil)
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Greater(t, config.BatchSize, 0, "batch size should be positive")
	assert.Greater(t, config.ReportInterval, 0, "report interval should be positive")
	assert.Greater(t, config.MaxRetries, 0, "max retries should be positive")
	assert.Greater(t, config.RetryDelay, time.Duration(0), "retry delay should be positive")
}

func TestBatchProcessor_EmptyBatch(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	processor := NewBatchProcessor(memory.NewIndex(), embedder, 3, time.Millisecond)

	require.NoError(t, processor.Process(context.Background(), nil))
	assert.Equal(t, 0, embedder.CallCount())
}

func TestBatchProcessor_CountMismatch(t *testing.T) {
	embedder := mock.NewMockEmbedder().WithEmbedTextsFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1}}, nil
	})
	processor := NewBatchProcessor(memory.NewIndex(), embedder, 1, time.Millisecond)

	err := processor.Process(context.Background(), []core.IndexEntry{{ID: 1, Content: "a"}, {ID: 2, Content: "b"}})
	assert.ErrorContains(t, err, "embedding count mismatch")
}
