package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/reviewrag/ai"
	"github.com/poiesic/reviewrag/batch"
	"github.com/poiesic/reviewrag/core"
	"github.com/poiesic/reviewrag/storage"
	"golang.org/x/time/rate"
)

// Default pipeline settings.
const (
	DefaultBatchSize   = 32
	DefaultMaxInFlight = 1
	DefaultTimeout     = 30 * time.Second
)

// Pipeline loads review records into a vector index.
//
// Records are transformed on a worker pool, grouped into batches, embedded
// and upserted under deterministic IDs, so re-running the same input never
// duplicates entries. At most MaxInFlight batches talk to the providers at
// any moment.
//
// A Pipeline may be reused for several runs. Concurrent Run calls against
// the same collection are not coordinated; callers that need exactly-once
// behavior must serialize them.
type Pipeline struct {
	index         storage.VectorIndex
	writer        processor
	transformPool *ants.Pool
	batchPool     *ants.Pool

	batchSize   int
	maxInFlight int
	poolSize    int
	timeout     time.Duration
	retry       batch.Policy
	limiter     *rate.Limiter

	checkpoints   storage.CheckpointStore
	checkpointKey string

	progress         io.Writer
	progressInterval int

	logger *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithBatchSize sets how many documents share one embedding and upsert call.
// Default is 32.
func WithBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			return fmt.Errorf("%w: batch size %d", ErrInvalidOption, size)
		}
		p.batchSize = size
		return nil
	}
}

// WithMaxInFlight bounds how many batches are processed concurrently.
// Default is 1.
func WithMaxInFlight(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return fmt.Errorf("%w: max in flight %d", ErrInvalidOption, n)
		}
		p.maxInFlight = n
		return nil
	}
}

// WithPoolSize sets the worker pool size for transforming records.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		p.poolSize = size
		return nil
	}
}

// WithTimeout sets the deadline applied to every embedding and upsert call.
// Zero disables it. Default is 30s.
func WithTimeout(timeout time.Duration) Option {
	return func(p *Pipeline) error {
		if timeout < 0 {
			return fmt.Errorf("%w: timeout %s", ErrInvalidOption, timeout)
		}
		p.timeout = timeout
		return nil
	}
}

// WithRetry sets how transient failures are retried.
// Default is 3 attempts starting at 500ms.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(p *Pipeline) error {
		policy := p.retry
		policy.MaxAttempts = maxAttempts
		policy.BaseDelay = baseDelay
		if err := policy.Validate(); err != nil {
			return err
		}
		p.retry = policy
		return nil
	}
}

// WithRateLimit caps batch submissions per second. A non-positive rps disables the limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(p *Pipeline) error {
		if rps <= 0 {
			p.limiter = nil
			return nil
		}
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		return nil
	}
}

// WithCheckpoints makes runs resumable. Progress is stored under key and an
// interrupted run over the same input skips the batches already committed.
func WithCheckpoints(store storage.CheckpointStore, key string) Option {
	return func(p *Pipeline) error {
		if store == nil {
			return ErrCheckpointRepositoryRequired
		}
		if key == "" {
			return ErrCheckpointKeyRequired
		}
		p.checkpoints = store
		p.checkpointKey = key
		return nil
	}
}

// WithProgress prints progress to w every interval documents.
func WithProgress(w io.Writer, interval int) Option {
	return func(p *Pipeline) error {
		p.progress = w
		p.progressInterval = interval
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(index storage.VectorIndex, provider ai.AIProvider, opts ...Option) (*Pipeline, error) {
	if index == nil {
		return nil, ErrVectorIndexRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	p := &Pipeline{
		index:       index,
		batchSize:   DefaultBatchSize,
		maxInFlight: DefaultMaxInFlight,
		poolSize:    poolSize,
		timeout:     DefaultTimeout,
		retry:       batch.DefaultPolicy(),
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "ingestion-pipeline")

	// Create processors after options are applied (so they get final config)
	writer, err := newBatchWriter(index, provider.Embedder(), p.timeout, p.retry, p.logger)
	if err != nil {
		return nil, err
	}
	p.writer = writer

	p.transformPool, err = ants.NewPool(p.poolSize)
	if err != nil {
		return nil, err
	}
	p.batchPool, err = ants.NewPool(p.maxInFlight)
	if err != nil {
		p.Release()
		return nil, err
	}
	return p, nil
}

// Run transforms records and commits them in batches.
//
// Records that cannot be transformed are reported in FailedRecords and do
// not stop the run. A batch that still fails after its retries aborts the
// run: no further batches start, batches already in flight finish, and the
// returned PipelineRun counts only what was committed. The abort reason is
// returned as the error as well. Cancelling ctx stops the run between
// batches; a batch that has started runs to completion.
func (p *Pipeline) Run(ctx context.Context, records []core.RawRecord) (*core.PipelineRun, error) {
	start := time.Now()
	run := &core.PipelineRun{
		RunID:          uuid.NewString(),
		AttemptedCount: len(records),
	}
	logger := p.logger.With("run", run.RunID)
	logger.Info("ingestion started", "records", len(records))

	docs, failed, err := p.transform(ctx, records)
	if err != nil {
		return nil, err
	}
	run.FailedRecords = failed
	for _, f := range failed {
		logger.Warn("skipping record", "index", f.Index, "reason", f.Reason)
	}

	spans, err := batch.Split(len(docs), p.batchSize)
	if err != nil {
		return nil, err
	}
	run.Batches = len(spans)

	var ckpt *checkpointer
	resumed := 0
	if p.checkpoints != nil {
		fp := fingerprint(docs, p.batchSize)
		resumed = resumePoint(ctx, p.checkpoints, p.checkpointKey, fp, p.batchSize, len(spans), logger)
		ckpt = newCheckpointer(p.checkpoints, p.checkpointKey, fp, p.batchSize, resumed, logger)
	}
	for _, span := range spans[:resumed] {
		run.ResumedCount += span.Len()
	}
	run.InsertedCount = run.ResumedCount
	if resumed > 0 {
		logger.Info("resuming from checkpoint", "batches", resumed, "records", run.ResumedCount)
	}

	var progress *batch.ProgressTracker
	if p.progress != nil {
		progress = batch.NewProgressTracker(p.progress, len(docs), p.progressInterval).WithUnit("reviews")
		progress.Start()
		progress.Increment(run.ResumedCount)
	}

	state := &runState{run: run}
	// Dispatched batches ignore cancellation; only dispatch stops on ctx.
	batchCtx := context.WithoutCancel(ctx)
	var wg sync.WaitGroup

	for _, span := range spans[resumed:] {
		if state.aborted() {
			break
		}
		if err := ctx.Err(); err != nil {
			state.abort(err)
			break
		}
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				state.abort(ctxErrOr(ctx, err))
				break
			}
		}

		wg.Add(1)
		submitErr := p.batchPool.Submit(func() {
			defer wg.Done()
			// Checked again here: the slot may have opened only after a
			// previous batch failed or ctx was cancelled.
			if state.aborted() {
				return
			}
			if err := ctx.Err(); err != nil {
				state.abort(err)
				return
			}

			if err := p.writer.process(batchCtx, span.Number, docs[span.Start:span.End]); err != nil {
				state.abort(err)
				return
			}
			state.inserted(span.Len())
			ckpt.complete(batchCtx, span.Number)
			if progress != nil {
				progress.Increment(span.Len())
			}
			logger.Debug("batch committed", "batch", span.Number, "records", span.Len())
		})
		if submitErr != nil {
			wg.Done()
			state.abort(submitErr)
			break
		}
	}
	wg.Wait()

	run.Elapsed = time.Since(start)
	if reason := state.reason(); reason != nil {
		run.Aborted = true
		run.AbortReason = reason
		if progress != nil {
			progress.Stop()
		}
		logger.Error("ingestion aborted",
			"attempted", run.AttemptedCount,
			"inserted", run.InsertedCount,
			"failed", len(run.FailedRecords),
			"err", reason)
		return run, reason
	}

	ckpt.clear(ctx)
	if progress != nil {
		progress.Finish()
	}
	logger.Info("ingestion finished",
		"attempted", run.AttemptedCount,
		"inserted", run.InsertedCount,
		"resumed", run.ResumedCount,
		"failed", len(run.FailedRecords),
		"elapsed", run.Elapsed)
	return run, nil
}

// transform runs Transform over records on the worker pool. Documents keep
// the input order; failures are sorted by index.
func (p *Pipeline) transform(ctx context.Context, records []core.RawRecord) ([]core.DocumentRecord, []core.FailedRecord, error) {
	results := make([]core.DocumentRecord, len(records))
	errs := make([]error, len(records))

	var wg sync.WaitGroup
	for i, record := range records {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, nil, err
		}
		wg.Add(1)
		err := p.transformPool.Submit(func() {
			defer wg.Done()
			results[i], errs[i] = p.transformOne(i, record)
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return nil, nil, err
		}
	}
	wg.Wait()

	docs := make([]core.DocumentRecord, 0, len(records))
	var failed []core.FailedRecord
	for i := range records {
		if errs[i] != nil {
			failed = append(failed, core.FailedRecord{Index: i, Reason: errs[i]})
			continue
		}
		docs = append(docs, results[i])
	}
	return docs, failed, nil
}

// transformOne transforms a record and checks it against the index's field
// limits, if the index declares any.
func (p *Pipeline) transformOne(i int, record core.RawRecord) (core.DocumentRecord, error) {
	doc, err := transformAt(i, record)
	if err != nil {
		return doc, err
	}
	if v, ok := p.index.(storage.DocumentValidator); ok {
		if err := v.ValidateDocument(doc); err != nil {
			return core.DocumentRecord{}, &core.MalformedRecordError{Index: i, Reason: err.Error()}
		}
	}
	return doc, nil
}

// Release releases resources including worker pools.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.transformPool != nil {
		p.transformPool.Release()
	}
	if p.batchPool != nil {
		p.batchPool.Release()
	}
}

// runState is the part of a PipelineRun shared with batch workers.
type runState struct {
	mu    sync.Mutex
	run   *core.PipelineRun
	cause error
}

func (s *runState) abort(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cause == nil {
		s.cause = err
	}
}

func (s *runState) aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause != nil
}

func (s *runState) reason() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

func (s *runState) inserted(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run.InsertedCount += n
}

func ctxErrOr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
