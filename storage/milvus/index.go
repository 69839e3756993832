// Package milvus implements storage.VectorIndex on a Milvus collection.
//
// Each review is one row: a VarChar primary key holding the hex form of
// the deterministic core.ID, the review text, the three metadata columns
// and a float vector indexed with HNSW under cosine similarity. Upserts go
// through Milvus' native upsert so repeated ingestion replaces rows
// instead of duplicating them.
package milvus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
	"github.com/poiesic/reviewrag/core"
	"github.com/poiesic/reviewrag/storage"
)

// Column names in the review collection.
const (
	FieldID             = "id"
	FieldContent        = "content"
	FieldProductName    = "product_name"
	FieldProductRating  = "product_rating"
	FieldProductSummary = "product_summary"
	FieldVector         = "vector"
)

// VarChar limits in bytes.
const (
	maxContentBytes = 65535
	maxNameBytes    = 1024
	maxSummaryBytes = 4096
)

var outputFields = []string{FieldContent, FieldProductName, FieldProductRating, FieldProductSummary}

var (
	// ErrAddressRequired is returned when no server address is configured.
	ErrAddressRequired = errors.New("milvus address required")

	// ErrCollectionRequired is returned when no collection name is configured.
	ErrCollectionRequired = errors.New("milvus collection required")

	// ErrDimensionRequired is returned when the vector dimension is not positive.
	ErrDimensionRequired = errors.New("milvus vector dimension required")
)

// Config describes how to reach the collection.
type Config struct {
	Address    string // host:port or URI of the Milvus endpoint
	Token      string // API key or "user:password"
	Database   string // namespace; empty uses the server default
	Collection string
	Dimension  int
}

// Validate checks that the configuration is complete.
func (c Config) Validate() error {
	if c.Address == "" {
		return ErrAddressRequired
	}
	if c.Collection == "" {
		return ErrCollectionRequired
	}
	if c.Dimension <= 0 {
		return ErrDimensionRequired
	}
	return nil
}

// Index is a Milvus backed vector index.
type Index struct {
	client     *milvusclient.Client
	collection string
	dimension  int
	logger     *slog.Logger
}

var _ storage.VectorIndex = (*Index)(nil)

// Open connects to Milvus and makes sure the collection exists, is indexed and loaded.
func Open(ctx context.Context, cfg Config) (*Index, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address: cfg.Address,
		APIKey:  cfg.Token,
		DBName:  cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	idx := &Index{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		logger:     slog.Default().With("component", "milvus-index", "collection", cfg.Collection),
	}
	if err := idx.ensureCollection(ctx); err != nil {
		client.Close(ctx)
		return nil, err
	}
	return idx, nil
}

func (idx *Index) ensureCollection(ctx context.Context) error {
	exists, err := idx.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(idx.collection))
	if err != nil {
		return fmt.Errorf("failed to check if collection exists: %w", err)
	}

	if !exists {
		idx.logger.Info("creating collection", "dimension", idx.dimension)
		err = idx.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(idx.collection, buildSchema(idx.collection, idx.dimension)))
		if err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

		vectorIdx := index.NewHNSWIndex(entity.COSINE, 16, 200)
		if _, err = idx.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(idx.collection, FieldVector, vectorIdx)); err != nil {
			return fmt.Errorf("failed to create index on vector field: %w", err)
		}
	}

	task, err := idx.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(idx.collection))
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return task.Await(ctx)
}

// buildSchema describes the review collection.
func buildSchema(collection string, dimension int) *entity.Schema {
	return &entity.Schema{
		CollectionName: collection,
		Description:    "Embedded product reviews",
		Fields: []*entity.Field{
			{
				Name:       FieldID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{"max_length": "32"},
			},
			{
				Name:       FieldContent,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": strconv.Itoa(maxContentBytes)},
			},
			{
				Name:       FieldProductName,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": strconv.Itoa(maxNameBytes)},
			},
			{
				Name:     FieldProductRating,
				DataType: entity.FieldTypeDouble,
			},
			{
				Name:       FieldProductSummary,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": strconv.Itoa(maxSummaryBytes)},
			},
			{
				Name:       FieldVector,
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": strconv.Itoa(dimension)},
			},
		},
	}
}

var _ storage.DocumentValidator = (*Index)(nil)

// ValidateDocument rejects documents whose text columns exceed the schema's
// VarChar limits.
func (idx *Index) ValidateDocument(doc core.DocumentRecord) error {
	return checkFieldLengths(doc.Content, doc.Metadata)
}

func checkFieldLengths(content string, meta core.Metadata) error {
	fields := []struct {
		name  string
		value string
		max   int
	}{
		{FieldContent, content, maxContentBytes},
		{FieldProductName, meta.ProductName, maxNameBytes},
		{FieldProductSummary, meta.ProductSummary, maxSummaryBytes},
	}
	for _, f := range fields {
		if len(f.value) > f.max {
			return fmt.Errorf("%w: %s is %d bytes, limit %d", storage.ErrFieldTooLong, f.name, len(f.value), f.max)
		}
	}
	return nil
}

// entryColumns converts entries to column data in schema order.
func entryColumns(entries []core.IndexEntry, dimension int) ([]column.Column, error) {
	ids := make([]string, len(entries))
	contents := make([]string, len(entries))
	names := make([]string, len(entries))
	ratings := make([]float64, len(entries))
	summaries := make([]string, len(entries))
	vectors := make([][]float32, len(entries))

	for i, e := range entries {
		if e.ID == 0 {
			return nil, storage.ErrMissingID
		}
		if len(e.Vector) != dimension {
			return nil, fmt.Errorf("%w: expected %d, got %d", storage.ErrDimensionMismatch, dimension, len(e.Vector))
		}
		if err := checkFieldLengths(e.Content, e.Metadata); err != nil {
			return nil, core.MarkPermanent(fmt.Errorf("entry %s: %w", e.ID, err))
		}
		ids[i] = e.ID.String()
		contents[i] = e.Content
		names[i] = e.Metadata.ProductName
		ratings[i] = e.Metadata.ProductRating
		summaries[i] = e.Metadata.ProductSummary
		vectors[i] = e.Vector
	}

	return []column.Column{
		column.NewColumnVarChar(FieldID, ids),
		column.NewColumnVarChar(FieldContent, contents),
		column.NewColumnVarChar(FieldProductName, names),
		column.NewColumnDouble(FieldProductRating, ratings),
		column.NewColumnVarChar(FieldProductSummary, summaries),
		column.NewColumnFloatVector(FieldVector, dimension, vectors),
	}, nil
}

// Upsert writes entries keyed by their hex ID.
func (idx *Index) Upsert(ctx context.Context, entries []core.IndexEntry) ([]core.ID, error) {
	if len(entries) == 0 {
		return []core.ID{}, nil
	}
	columns, err := entryColumns(entries, idx.dimension)
	if err != nil {
		return nil, err
	}

	if _, err := idx.client.Upsert(ctx, milvusclient.NewColumnBasedInsertOption(idx.collection, columns...)); err != nil {
		return nil, fmt.Errorf("milvus upsert: %w", err)
	}

	ids := make([]core.ID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	idx.logger.Debug("upserted entries", "count", len(ids))
	return ids, nil
}

// Query runs an ANN search and returns up to k hits with their stored fields.
func (idx *Index) Query(ctx context.Context, vector []float32, k int) ([]core.ScoredEntry, error) {
	if k <= 0 {
		return nil, storage.ErrInvalidQuery
	}

	opt := milvusclient.NewSearchOption(idx.collection, k, []entity.Vector{entity.FloatVector(vector)}).
		WithANNSField(FieldVector).
		WithOutputFields(outputFields...).
		WithConsistencyLevel(entity.ClBounded)

	results, err := idx.client.Search(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("milvus search: %w", err)
	}
	if len(results) == 0 {
		return []core.ScoredEntry{}, nil
	}
	return decodeResults(results[0])
}

// decodeResults turns one search result set into scored entries.
func decodeResults(rs milvusclient.ResultSet) ([]core.ScoredEntry, error) {
	if rs.Err != nil {
		return nil, rs.Err
	}

	hits := make([]core.ScoredEntry, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		rawID, err := rs.IDs.GetAsString(i)
		if err != nil {
			return nil, fmt.Errorf("reading id %d: %w", i, err)
		}
		id, err := core.ParseID(rawID)
		if err != nil {
			return nil, err
		}

		entry := core.IndexEntry{ID: id}
		if entry.Content, err = stringAt(rs, FieldContent, i); err != nil {
			return nil, err
		}
		if entry.Metadata.ProductName, err = stringAt(rs, FieldProductName, i); err != nil {
			return nil, err
		}
		if entry.Metadata.ProductSummary, err = stringAt(rs, FieldProductSummary, i); err != nil {
			return nil, err
		}
		if col := rs.GetColumn(FieldProductRating); col != nil {
			if entry.Metadata.ProductRating, err = col.GetAsDouble(i); err != nil {
				return nil, fmt.Errorf("reading %s: %w", FieldProductRating, err)
			}
		}

		var score float32
		if i < len(rs.Scores) {
			score = rs.Scores[i]
		}
		hits = append(hits, core.ScoredEntry{Entry: entry, Score: score})
	}

	storage.SortByScore(hits)
	return hits, nil
}

func stringAt(rs milvusclient.ResultSet, field string, i int) (string, error) {
	col := rs.GetColumn(field)
	if col == nil {
		return "", nil
	}
	v, err := col.GetAsString(i)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", field, err)
	}
	return v, nil
}

// Count returns the number of rows in the collection.
func (idx *Index) Count(ctx context.Context) (int, error) {
	rs, err := idx.client.Query(ctx, milvusclient.NewQueryOption(idx.collection).
		WithOutputFields("count(*)").
		WithConsistencyLevel(entity.ClStrong))
	if err != nil {
		return 0, fmt.Errorf("milvus count: %w", err)
	}
	col := rs.GetColumn("count(*)")
	if col == nil || col.Len() == 0 {
		return 0, nil
	}
	n, err := col.GetAsInt64(0)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Close disconnects from Milvus.
func (idx *Index) Close() error {
	return idx.client.Close(context.Background())
}
