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


// Package reviewrag wires a validated configuration into a ready-to-use
// vector index, checkpoint store and model provider.
package reviewrag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/poiesic/reviewrag/ai"
	"github.com/poiesic/reviewrag/ai/googleai"
	"github.com/poiesic/reviewrag/ai/openai"
	"github.com/poiesic/reviewrag/config"
	"github.com/poiesic/reviewrag/ingestion"
	"github.com/poiesic/reviewrag/reembed"
	"github.com/poiesic/reviewrag/search"
	"github.com/poiesic/reviewrag/storage"
	"github.com/poiesic/reviewrag/storage/badger"
	"github.com/poiesic/reviewrag/storage/memory"
	"github.com/poiesic/reviewrag/storage/milvus"
)

var (
	// ErrConfigRequired is returned by Open when cfg is nil.
	ErrConfigRequired = errors.New("config is required")

	// ErrScanUnsupported is returned when the index cannot enumerate its entries.
	ErrScanUnsupported = errors.New("index does not support scanning")
)

// Database bundles the vector index, the checkpoint store and the model
// provider for one collection.
type Database struct {
	cfg         *config.Config
	backend     *badger.Backend
	index       storage.VectorIndex
	checkpoints storage.CheckpointStore
	provider    ai.AIProvider
	logger      *slog.Logger
}

// Option configures Open.
type Option func(*options)

type options struct {
	provider ai.AIProvider
	index    storage.VectorIndex
}

// WithProvider uses provider instead of building one from the configuration.
// The Database takes ownership and closes it.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *options) {
		o.provider = provider
	}
}

// WithIndex uses index instead of opening the configured backend.
// Checkpoints are then kept in memory.
func WithIndex(index storage.VectorIndex) Option {
	return func(o *options) {
		o.index = index
	}
}

// Open builds the configured provider and vector index.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Database, error) {
	if cfg == nil {
		return nil, ErrConfigRequired
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	db := &Database{
		cfg:    cfg,
		logger: slog.Default().With("component", "database", "collection", cfg.VectorDB.Collection),
	}

	if o.index != nil {
		db.index = o.index
		db.checkpoints = memory.NewCheckpointStore()
	} else if err := db.openIndex(ctx); err != nil {
		return nil, err
	}

	provider := o.provider
	if provider == nil {
		var err error
		provider, err = newProvider(ctx, cfg.AIConfig())
		if err != nil {
			db.closeStorage()
			return nil, err
		}
	}
	db.provider = provider
	return db, nil
}

func (db *Database) openIndex(ctx context.Context) error {
	vdb := db.cfg.VectorDB
	switch vdb.Backend {
	case config.BackendBadger:
		backend, err := badger.OpenBackend(filepath.Join(vdb.Endpoint, vdb.Keyspace, vdb.Collection), false)
		if err != nil {
			return err
		}
		index, err := badger.NewIndex(backend)
		if err != nil {
			backend.Close()
			return err
		}
		db.backend = backend
		db.index = index
		db.checkpoints = badger.NewCheckpointRepository(backend)
	case config.BackendMilvus:
		index, err := milvus.Open(ctx, milvus.Config{
			Address:    vdb.Endpoint,
			Token:      vdb.Token,
			Database:   vdb.Keyspace,
			Collection: vdb.Collection,
			Dimension:  vdb.Dimension,
		})
		if err != nil {
			return err
		}
		db.index = index
		db.checkpoints = memory.NewCheckpointStore()
	case config.BackendMemory:
		db.index = memory.NewIndex()
		db.checkpoints = memory.NewCheckpointStore()
	default:
		return fmt.Errorf("unknown vector index backend %q", vdb.Backend)
	}
	db.logger.Debug("opened vector index", "backend", vdb.Backend)
	return nil
}

func newProvider(ctx context.Context, cfg *ai.Config) (ai.AIProvider, error) {
	switch cfg.Provider {
	case ai.ProviderOpenAI:
		return openai.NewProvider(cfg)
	default:
		return googleai.NewProvider(ctx, cfg)
	}
}

// Close releases the provider, the index and the storage backend.
func (db *Database) Close() error {
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
	}
	return db.closeStorage()
}

func (db *Database) closeStorage() error {
	var errs []error
	if err := db.index.Close(); err != nil {
		db.logger.Error("error closing vector index", "err", err)
		errs = append(errs, err)
	}
	if db.backend != nil {
		if err := db.backend.Close(); err != nil {
			db.logger.Error("error closing backend storage", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Config returns the configuration the database was opened with.
func (db *Database) Config() *config.Config {
	return db.cfg
}

// Index returns the vector index.
func (db *Database) Index() storage.VectorIndex {
	return db.index
}

// CheckpointStore returns where ingestion progress is saved.
func (db *Database) CheckpointStore() storage.CheckpointStore {
	return db.checkpoints
}

// Provider returns the model provider.
func (db *Database) Provider() ai.AIProvider {
	return db.provider
}

// NewPipeline creates an ingestion pipeline tuned from the configuration.
// opts are applied after the configured settings.
func (db *Database) NewPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	c := db.cfg
	base := []ingestion.Option{
		ingestion.WithBatchSize(c.Ingestion.BatchSize),
		ingestion.WithMaxInFlight(c.Ingestion.MaxInFlight),
		ingestion.WithTimeout(c.RequestTimeout),
		ingestion.WithRetry(c.MaxRetries, c.RetryDelay),
		ingestion.WithRateLimit(c.Ingestion.RateLimit, c.Ingestion.MaxInFlight),
		ingestion.WithCheckpoints(db.checkpoints, c.CheckpointKey()),
	}
	return ingestion.NewPipeline(db.index, db.provider, append(base, opts...)...)
}

// NewSearcher creates a searcher tuned from the configuration.
func (db *Database) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	c := db.cfg
	base := []search.Option{
		search.WithDefaultK(c.SearchK),
		search.WithTimeout(c.RequestTimeout),
		search.WithRetry(c.MaxRetries, c.RetryDelay),
	}
	return search.NewSearcher(db.index, db.provider, append(base, opts...)...)
}

// NewAnswerer creates an answerer on top of a configured searcher.
func (db *Database) NewAnswerer(opts ...search.AnswerOption) (*search.Answerer, error) {
	searcher, err := db.NewSearcher()
	if err != nil {
		return nil, err
	}
	return search.NewAnswerer(searcher, db.provider.Generator(), opts...)
}

// NewReembedder creates a reembedder that rewrites every vector of the
// index in place with the current embedding model.
func (db *Database) NewReembedder(cfg *reembed.Config, progress io.Writer) (*reembed.Reembedder, error) {
	source, ok := db.index.(reembed.Source)
	if !ok {
		return nil, ErrScanUnsupported
	}
	if cfg == nil {
		cfg = reembed.DefaultConfig()
		cfg.MaxRetries = db.cfg.MaxRetries
		cfg.RetryDelay = db.cfg.RetryDelay
		cfg.Timeout = db.cfg.RequestTimeout
	}
	return reembed.NewReembedder(source, db.index, db.provider.Embedder(), cfg, progress)
}
