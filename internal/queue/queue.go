// Package queue is a durable delayed job queue on top of the SQL store. It
// provides at-least-once execution with exponential backoff, future-dated
// scheduling and idempotent job keys.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/chattask/internal/model"
	"github.com/nhle/chattask/internal/store"
)

// jobTimeout bounds a single handler invocation.
const jobTimeout = 2 * time.Minute

var (
	// ErrRunning is returned by Run when the queue is already being consumed.
	ErrRunning = errors.New("queue is already running")

	// ErrJobNotFound is returned by Lookup when no job is stored under a key.
	ErrJobNotFound = errors.New("job not found")
)

// Job is what a Handler receives.
type Job struct {
	ID      string
	Key     string
	Payload []byte

	// Attempt counts from 1.
	Attempt int
}

// Handler processes one job. A returned error schedules a retry until the
// job's attempts are exhausted.
type Handler func(ctx context.Context, job Job) error

// Queue schedules and runs delayed jobs.
type Queue struct {
	store   store.JobStore
	cfg     model.QueueConfig
	logger  *zap.Logger
	metrics *Metrics
	now     func() time.Time

	triggerCh chan struct{}
	inflight  atomic.Int32

	mu      sync.Mutex
	running bool
}

// New creates a Queue. metrics may be nil.
func New(s store.JobStore, cfg model.QueueConfig, logger *zap.Logger, metrics *Metrics) *Queue {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		store:     s,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
		triggerCh: make(chan struct{}, 1),
	}
}

// Schedule stores payload under key to run after delay, replacing any job
// already stored under key. It returns the new job's ID.
func (q *Queue) Schedule(ctx context.Context, key string, payload []byte, delay time.Duration) (string, error) {
	if delay < 0 {
		delay = 0
	}
	job := &model.Job{
		Key:         key,
		ID:          uuid.New().String(),
		Payload:     string(payload),
		State:       model.JobPending,
		RunAt:       q.now().Add(delay),
		MaxAttempts: q.cfg.MaxAttempts,
	}
	if err := q.store.ReplaceJob(ctx, job); err != nil {
		return "", fmt.Errorf("scheduling %s: %w", key, err)
	}
	if delay == 0 {
		q.Trigger()
	}
	return job.ID, nil
}

// Cancel removes the pending job under key. It reports false when there was
// nothing to cancel; a job that already started is left to finish.
func (q *Queue) Cancel(ctx context.Context, key string) (bool, error) {
	ok, err := q.store.DeletePendingJob(ctx, key)
	if err != nil {
		return false, fmt.Errorf("canceling %s: %w", key, err)
	}
	return ok, nil
}

// Lookup returns the job stored under key.
func (q *Queue) Lookup(ctx context.Context, key string) (*model.Job, error) {
	job, err := q.store.GetJobByKey(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up job %s: %w", key, err)
	}
	return job, nil
}

// Pending reports whether a job under key is waiting or running.
func (q *Queue) Pending(ctx context.Context, key string) (bool, error) {
	job, err := q.Lookup(ctx, key)
	if errors.Is(err, ErrJobNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return job.State == model.JobPending || job.State == model.JobActive, nil
}

// Stats returns job counts by state.
func (q *Queue) Stats(ctx context.Context) (model.JobStats, error) {
	return q.store.JobStats(ctx, q.now())
}

// Prune deletes finished jobs older than age.
func (q *Queue) Prune(ctx context.Context, age time.Duration) (int, error) {
	return q.store.PruneJobs(ctx, q.now().Add(-age))
}

// Trigger wakes the run loop without waiting for the next poll.
func (q *Queue) Trigger() {
	select {
	case q.triggerCh <- struct{}{}:
	default:
	}
}

// Run consumes due jobs until ctx is canceled, then waits for in-flight jobs
// to finish. Jobs left active by a previous crash are recovered first.
func (q *Queue) Run(ctx context.Context, handler Handler) error {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return ErrRunning
	}
	q.running = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.running = false
		q.mu.Unlock()
	}()

	if n, err := q.store.ResetActiveJobs(ctx); err != nil {
		return fmt.Errorf("recovering jobs: %w", err)
	} else if n > 0 {
		q.logger.Info("recovered orphaned jobs", zap.Int("count", n))
	}

	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()

	var g errgroup.Group
	g.SetLimit(q.cfg.Concurrency)

	q.dispatch(ctx, &g, handler)
	for {
		select {
		case <-ctx.Done():
			g.Wait()
			return nil
		case <-ticker.C:
			q.dispatch(ctx, &g, handler)
		case <-q.triggerCh:
			q.dispatch(ctx, &g, handler)
		}
	}
}

// dispatch claims as many due jobs as there are free workers.
func (q *Queue) dispatch(ctx context.Context, g *errgroup.Group, handler Handler) {
	free := q.cfg.Concurrency - int(q.inflight.Load())
	if free <= 0 {
		return
	}

	jobs, err := q.store.ClaimDueJobs(ctx, q.now(), free)
	if err != nil {
		if ctx.Err() == nil {
			q.logger.Error("claiming jobs", zap.Error(err))
		}
		return
	}

	for _, job := range jobs {
		q.inflight.Add(1)
		g.Go(func() error {
			defer q.inflight.Add(-1)
			q.process(ctx, handler, job)
			return nil
		})
	}
}

// process runs one job and records its outcome. Neither the handler nor the
// bookkeeping is interrupted by shutdown.
func (q *Queue) process(ctx context.Context, handler Handler, job model.Job) {
	bg := context.WithoutCancel(ctx)
	jctx, cancel := context.WithTimeout(bg, jobTimeout)
	defer cancel()

	log := q.logger.With(zap.String("job_key", job.Key), zap.String("job_id", job.ID), zap.Int("attempt", job.Attempts))
	q.metrics.jobStarted()
	start := q.now()

	err := safeCall(jctx, handler, Job{ID: job.ID, Key: job.Key, Payload: []byte(job.Payload), Attempt: job.Attempts})
	q.metrics.jobFinished(q.now().Sub(start))

	switch {
	case err == nil:
		if cerr := q.store.CompleteJob(bg, job.ID); cerr != nil {
			log.Error("completing job", zap.Error(cerr))
		}
		q.metrics.outcome("completed")

	case job.Attempts >= job.MaxAttempts:
		log.Error("job failed permanently", zap.Error(err))
		if ferr := q.store.FailJob(bg, job.ID, err.Error(), nil); ferr != nil {
			log.Error("failing job", zap.Error(ferr))
		}
		q.metrics.outcome("failed")

	default:
		retryAt := q.now().Add(q.retryDelay(job.Attempts))
		log.Warn("job failed, retrying", zap.Error(err), zap.Time("retry_at", retryAt))
		if ferr := q.store.FailJob(bg, job.ID, err.Error(), &retryAt); ferr != nil {
			log.Error("rescheduling job", zap.Error(ferr))
		}
		q.metrics.outcome("retried")
	}
}

func safeCall(ctx context.Context, handler Handler, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()
	return handler(ctx, job)
}
