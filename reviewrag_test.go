package reviewrag

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/reviewrag/ai/mock"
	"github.com/poiesic/reviewrag/config"
	"github.com/poiesic/reviewrag/core"
	"github.com/poiesic/reviewrag/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromMap(map[string]string{
		config.KeyGoogleAPIKey:       "test-key",
		config.KeyVectorDBEndpoint:   t.TempDir(),
		config.KeyVectorDBToken:      "unused",
		config.KeyVectorDBKeyspace:   "ks",
		config.KeyVectorDBCollection: "reviews",
		config.KeyEmbeddingModel:     "models/text-embedding-004",
		config.KeyLLMModel:           "gemini-2.0-flash",
		config.KeyVectorDBBackend:    backend,
		config.KeyIngestBatchSize:    "2",
		config.KeyRetryDelay:         "1ms",
	})
	require.NoError(t, err)
	return cfg
}

var records = []core.RawRecord{
	{Title: "Headphone X", Rating: 3, Summary: "ok", Review: "cheap headphone but works", Row: 0},
	{Title: "Cable Y", Rating: 1, Summary: "bad", Review: "   ", Row: 1},
	{Title: "Speaker Z", Rating: 5, Summary: "great", Review: "loud and clear speaker", Row: 2},
}

func TestOpen_Validation(t *testing.T) {
	_, err := Open(context.Background(), nil)
	assert.ErrorIs(t, err, ErrConfigRequired)
}

func TestOpen_BadgerBackend(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, config.BackendBadger)

	db, err := Open(ctx, cfg, WithProvider(mock.NewMockProvider()))
	require.NoError(t, err)

	pipeline, err := db.NewPipeline()
	require.NoError(t, err)
	defer pipeline.Release()

	run, err := pipeline.Run(ctx, records)
	require.NoError(t, err)
	assert.Equal(t, 3, run.AttemptedCount)
	assert.Equal(t, 2, run.InsertedCount)
	require.Len(t, run.FailedRecords, 1)
	assert.Equal(t, 1, run.FailedRecords[0].Index)

	checkpoint, err := db.CheckpointStore().LoadCheckpoint(ctx, cfg.CheckpointKey())
	require.NoError(t, err)
	assert.Nil(t, checkpoint, "a completed run clears its checkpoint")
	require.NoError(t, db.Close())

	_, err = os.Stat(filepath.Join(cfg.VectorDB.Endpoint, "ks", "reviews"))
	require.NoError(t, err)

	// Reopen: entries persisted and re-ingestion does not duplicate.
	db, err = Open(ctx, cfg, WithProvider(mock.NewMockProvider()))
	require.NoError(t, err)
	defer db.Close()

	count, err := db.Index().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	again, err := db.NewPipeline()
	require.NoError(t, err)
	defer again.Release()
	_, err = again.Run(ctx, records)
	require.NoError(t, err)

	count, err = db.Index().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestDatabase_SearchAndAnswer(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, testConfig(t, config.BackendMemory), WithProvider(mock.NewMockProvider()))
	require.NoError(t, err)
	defer db.Close()

	pipeline, err := db.NewPipeline()
	require.NoError(t, err)
	defer pipeline.Release()
	_, err = pipeline.Run(ctx, records)
	require.NoError(t, err)

	searcher, err := db.NewSearcher()
	require.NoError(t, err)
	results, err := searcher.Search(ctx, "cheap headphone", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Headphone X", results[0].Document.Metadata.ProductName)

	answerer, err := db.NewAnswerer()
	require.NoError(t, err)
	answer, err := answerer.Answer(ctx, "which headphone is cheap?", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, answer.Text)
	assert.Len(t, answer.Sources, 2, "default k of 4 is capped by the two stored reviews")
}

func TestDatabase_Reembed(t *testing.T) {
	ctx := context.Background()
	index := memory.NewIndex()
	db, err := Open(ctx, testConfig(t, config.BackendMemory), WithProvider(mock.NewMockProvider()), WithIndex(index))
	require.NoError(t, err)
	defer db.Close()

	pipeline, err := db.NewPipeline()
	require.NoError(t, err)
	defer pipeline.Release()
	_, err = pipeline.Run(ctx, records)
	require.NoError(t, err)

	r, err := db.NewReembedder(nil, nil)
	require.NoError(t, err)
	processed, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, processed)
}
