package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/reviewrag/ai"
	"github.com/poiesic/reviewrag/batch"
	"github.com/poiesic/reviewrag/core"
	"github.com/poiesic/reviewrag/storage"
)

// DefaultK is the number of results returned when the caller passes k <= 0.
const DefaultK = 4

// Searcher answers similarity queries over indexed reviews.
// It keeps no per-query state and is safe for concurrent use.
type Searcher struct {
	index    storage.VectorIndex
	embedder ai.Embedder
	defaultK int
	timeout  time.Duration
	retry    batch.Policy
	minScore float32
	filtered bool
	logger   *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithDefaultK sets the result count used when Search gets k <= 0.
// Default is 4.
func WithDefaultK(k int) Option {
	return func(s *Searcher) error {
		if k < 1 {
			return fmt.Errorf("%w: default k %d", ErrInvalidOption, k)
		}
		s.defaultK = k
		return nil
	}
}

// WithTimeout sets the deadline for each embedding and index call.
// Zero disables it. Default is 30s.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Searcher) error {
		if timeout < 0 {
			return fmt.Errorf("%w: timeout %s", ErrInvalidOption, timeout)
		}
		s.timeout = timeout
		return nil
	}
}

// WithRetry sets how transient provider and index failures are retried.
// Default is 3 attempts starting at 500ms.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(s *Searcher) error {
		policy := s.retry
		policy.MaxAttempts = maxAttempts
		policy.BaseDelay = baseDelay
		if err := policy.Validate(); err != nil {
			return err
		}
		s.retry = policy
		return nil
	}
}

// WithMinScore drops results scoring below score.
func WithMinScore(score float32) Option {
	return func(s *Searcher) error {
		s.minScore = score
		s.filtered = true
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(index storage.VectorIndex, provider ai.AIProvider, opts ...Option) (*Searcher, error) {
	if index == nil {
		return nil, ErrVectorIndexRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	s := &Searcher{
		index:    index,
		embedder: provider.Embedder(),
		defaultK: DefaultK,
		timeout:  30 * time.Second,
		retry:    batch.DefaultPolicy(),
		logger:   slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.embedder == nil {
		return nil, ErrEmbedderRequired
	}
	s.logger = s.logger.With("component", "searcher")

	return s, nil
}

// Search returns up to k reviews most similar to query, best first.
// k <= 0 selects the default.
func (s *Searcher) Search(ctx context.Context, query string, k int) ([]core.SearchResult, error) {
	return s.SearchWithMonitor(ctx, query, k, nil)
}

// SearchWithMonitor is Search with callbacks at each stage.
//
// An empty or whitespace-only query fails with *core.QueryEmbeddingError
// before any provider or index call. An embedding failure yields
// *core.EmbeddingError and an index failure *core.BackendUnavailableError,
// both after bounded retries. No match is an empty slice and a nil error.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query string, k int, monitor SearchMonitor) ([]core.SearchResult, error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	if strings.TrimSpace(query) == "" {
		return nil, &core.QueryEmbeddingError{Query: query}
	}
	if k <= 0 {
		k = s.defaultK
	}

	monitor.Start(query)

	// 1. Embed the query
	var embedding []float32
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		callCtx, cancel := s.withTimeout(ctx)
		defer cancel()
		var err error
		embedding, err = s.embedder.EmbedText(callCtx, query)
		return err
	})
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, &core.EmbeddingError{Op: "embed_query", Err: err}
	}
	monitor.AfterEmbedding(embedding)

	// 2. Nearest neighbors
	var hits []core.ScoredEntry
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		callCtx, cancel := s.withTimeout(ctx)
		defer cancel()
		var err error
		hits, err = s.index.Query(callCtx, embedding, k)
		return err
	})
	if err != nil {
		s.logger.Error("error querying for similar reviews", "err", err)
		return nil, &core.BackendUnavailableError{Op: "query", Err: err}
	}
	monitor.AfterQuery(hits)

	// 3. Dedupe, filter and rank
	hits = dedupe(hits)
	if s.filtered {
		kept := hits[:0]
		for _, hit := range hits {
			if hit.Score >= s.minScore {
				kept = append(kept, hit)
			}
		}
		hits = kept
	}
	storage.SortByScore(hits)
	if len(hits) > k {
		hits = hits[:k]
	}

	results := make([]core.SearchResult, len(hits))
	for i, hit := range hits {
		results[i] = core.SearchResult{
			ID:       hit.Entry.ID,
			Document: hit.Entry.Document(),
			Score:    hit.Score,
		}
	}
	monitor.Finish(results)

	s.logger.Debug("search finished", "query", query, "k", k, "results", len(results))
	return results, nil
}

func (s *Searcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// dedupe keeps the best scoring hit per ID, preserving first-seen order.
func dedupe(hits []core.ScoredEntry) []core.ScoredEntry {
	out := make([]core.ScoredEntry, 0, len(hits))
	seen := make(map[core.ID]int, len(hits))
	for _, hit := range hits {
		if at, dup := seen[hit.Entry.ID]; dup {
			if hit.Score > out[at].Score {
				out[at] = hit
			}
			continue
		}
		seen[hit.Entry.ID] = len(out)
		out = append(out, hit)
	}
	return out
}
