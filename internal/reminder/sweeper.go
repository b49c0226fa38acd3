package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/nhle/chattask/internal/model"
	"github.com/nhle/chattask/internal/store"
)

const (
	sweepTimeout = time.Minute

	// jobRetention is how long finished jobs are kept for inspection.
	jobRetention = 7 * 24 * time.Hour
)

// Sweep re-enqueues SCHEDULED reminders that are more than the grace period
// overdue and have no live delivery job. States are left untouched: the
// delivery path re-validates each one. It returns how many were requeued.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	state := model.ReminderScheduled
	cutoff := e.now().Add(-e.cfg.GracePeriod)
	stuck, err := e.store.GetReminders(ctx, store.ReminderFilter{State: &state, ScheduledBefore: &cutoff})
	if err != nil {
		return 0, fmt.Errorf("finding stuck reminders: %w", err)
	}

	n := 0
	for _, r := range stuck {
		live, err := e.queue.Pending(ctx, JobKey(r.ID))
		if err != nil {
			return n, err
		}
		if live {
			continue
		}
		if err := e.enqueue(ctx, r.ID, 0); err != nil {
			return n, fmt.Errorf("requeueing reminder %s: %w", r.ID, err)
		}
		e.logger.Info("requeued stuck reminder",
			zap.String("reminder_id", r.ID),
			zap.Time("scheduled_at", r.ScheduledAt))
		n++
	}
	e.metrics.swept(n)
	return n, nil
}

// Pruner deletes finished queue jobs older than a given age.
type Pruner interface {
	Prune(ctx context.Context, age time.Duration) (int, error)
}

// Sweeper runs Engine.Sweep on a fixed interval, independent of the worker
// pool.
type Sweeper struct {
	engine   *Engine
	pruner   Pruner
	interval time.Duration
	logger   *zap.Logger
}

// NewSweeper creates a Sweeper. pruner may be nil.
func NewSweeper(engine *Engine, pruner Pruner, interval time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{
		engine:   engine,
		pruner:   pruner,
		interval: interval,
		logger:   logger.Named("sweeper"),
	}
}

// Run sweeps once immediately and then on every interval until ctx is
// cancelled. A sweep still running when the next one is due is skipped.
func (s *Sweeper) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc("@every "+s.interval.String(), func() { s.runOnce(ctx) }); err != nil {
		return fmt.Errorf("registering sweep: %w", err)
	}

	s.runOnce(ctx)
	c.Start()
	s.logger.Info("sweeper started", zap.Duration("interval", s.interval))

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("sweeper stopped")
	return nil
}

func (s *Sweeper) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	n, err := s.engine.Sweep(ctx)
	if err != nil {
		s.logger.Error("sweep failed", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("sweep requeued reminders", zap.Int("count", n))
	}

	if s.pruner == nil {
		return
	}
	if pruned, err := s.pruner.Prune(ctx, jobRetention); err != nil {
		s.logger.Warn("pruning jobs", zap.Error(err))
	} else if pruned > 0 {
		s.logger.Debug("pruned finished jobs", zap.Int("count", pruned))
	}
}
