package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/staybook/internal/businessday"
	"github.com/smallbiznis/staybook/internal/clock"
	"github.com/smallbiznis/staybook/internal/dedup"
	obsmetrics "github.com/smallbiznis/staybook/internal/observability/metrics"
	"github.com/smallbiznis/staybook/internal/rollup"
	"github.com/smallbiznis/staybook/internal/settings"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

type Params struct {
	fx.In

	Log      *zap.Logger
	Rollup   *rollup.Maintainer
	Guard    *dedup.Guard
	Resolver *businessday.Resolver
	Clock    clock.Clock                  `optional:"true"`
	Settings *settings.Service            `optional:"true"`
	Locker   Locker                       `optional:"true"`
	Metrics  *obsmetrics.SchedulerMetrics `optional:"true"`
	Config   Config                       `optional:"true"`
}

// Scheduler runs the maintenance jobs. None of them is required for
// correctness: reconcile heals summary drift and cleanup bounds the
// processed-message table.
type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	clock    clock.Clock
	rollup   *rollup.Maintainer
	guard    *dedup.Guard
	resolver *businessday.Resolver
	settings *settings.Service
	locker   Locker
	metrics  *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Rollup == nil || p.Guard == nil || p.Resolver == nil {
		return nil, ErrInvalidConfig
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	schedMetrics := p.Metrics
	if schedMetrics == nil {
		schedMetrics = obsmetrics.Scheduler()
	}
	return &Scheduler{
		log:      p.Log.Named("scheduler"),
		cfg:      p.Config.withDefaults(),
		clock:    clk,
		rollup:   p.Rollup,
		guard:    p.Guard,
		resolver: p.Resolver,
		settings: p.Settings,
		locker:   p.Locker,
		metrics:  schedMetrics,
	}, nil
}

// runJob wraps fn with a timeout, the optional leader lock, run logging and
// metrics. A timeout is logged and counted but not returned: the next tick
// retries the job.
func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	if s.locker != nil {
		release, err := s.locker.Obtain(parent, lockKey(name), timeout+30*time.Second)
		if errors.Is(err, ErrLockHeld) {
			s.metrics.IncJobSkipped(name, obsmetrics.SchedulerSkipReasonLeaderLockHeld)
			s.log.Debug("job skipped, lock held elsewhere", zap.String("job", name))
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: obtain lock: %w", name, err)
		}
		defer func() {
			if err := release(context.Background()); err != nil {
				s.log.Warn("release job lock failed", zap.String("job", name), zap.Error(err))
			}
		}()
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.startJobRun(ctx, name)
	s.logJobStart(ctx, run)
	s.metrics.IncJobRun(name)

	err := fn(ctx)
	s.metrics.ObserveJobDuration(name, time.Since(start))
	if err != nil && run.errors == 0 {
		run.IncError()
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		s.metrics.SetLastSuccess(name, s.clock.Now())
		return nil
	}

	s.metrics.IncJobError(name, err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.metrics.IncJobTimeout(name)
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every enabled periodic job once and joins their errors.
func (s *Scheduler) RunOnce(parent context.Context) error {
	jobs := []struct {
		name string
		run  func(context.Context) error
	}{
		{JobRollupReconcile, s.ReconcileJob},
		{JobMessageCleanup, s.MessageCleanupJob},
	}

	var err error
	for _, job := range jobs {
		if !s.isJobEnabled(job.name) {
			s.metrics.IncJobSkipped(job.name, obsmetrics.SchedulerSkipReasonDisabled)
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.name, s.cfg.JobTimeout, job.run))
	}
	return err
}

// RunForever runs RunOnce on every tick until ctx is cancelled.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now()

	for {
		s.metrics.ObserveRunLoopLag(time.Since(nextRun))
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = time.Now().Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// CloseDay reconciles the business day that closed most recently. It is
// meant to fire shortly after the boundary hour.
func (s *Scheduler) CloseDay(parent context.Context) error {
	if !s.isJobEnabled(JobCloseDay) {
		s.metrics.IncJobSkipped(JobCloseDay, obsmetrics.SchedulerSkipReasonDisabled)
		return nil
	}
	return s.runJob(parent, JobCloseDay, s.cfg.JobTimeout, func(ctx context.Context) error {
		closed := s.resolver.Today(s.clock.Now()).AddDays(-1)
		drift, err := s.rollup.Reconcile(ctx, closed)
		if err != nil {
			s.logJobError(ctx, "scheduler.close_day.failed", err, zap.String("date", closed.String()))
			return err
		}
		jobRunFromContext(ctx).AddProcessed(1)
		s.metrics.AddBatchProcessed(JobCloseDay, "days", 1)
		s.logger(ctx).Info("business day closed",
			zap.String("date", closed.String()),
			zap.Bool("drift", !drift.Clean()),
		)
		return nil
	})
}

func (s *Scheduler) isJobEnabled(job string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(strings.TrimSpace(enabled), job) {
			return true
		}
	}
	return false
}

// ReconcileJob rebuilds the summaries of the last few business days from
// the ledger. The lookback is read from settings on every run.
func (s *Scheduler) ReconcileJob(ctx context.Context) error {
	lookback := int64(s.cfg.ReconcileLookback)
	if s.settings != nil {
		lookback = s.settings.IntOr(ctx, settings.KeyReconcileLookbackDays, lookback)
	}
	if lookback < 0 {
		lookback = 0
	}

	today := s.resolver.Today(s.clock.Now())
	rng := businessday.Range{From: today.AddDays(-int(lookback)), To: today}
	drifts, err := s.rollup.ReconcileRange(ctx, rng)
	if err != nil {
		s.logJobError(ctx, "scheduler.reconcile.failed", err,
			zap.String("from", rng.From.String()),
			zap.String("to", rng.To.String()),
		)
		return err
	}

	days := rng.Len()
	jobRunFromContext(ctx).AddProcessed(days)
	s.metrics.AddBatchProcessed(JobRollupReconcile, "days", days)
	s.metrics.AddBatchProcessed(JobRollupReconcile, "drifted_days", len(drifts))
	for _, drift := range drifts {
		s.logger(ctx).Warn("reconcile corrected drift",
			zap.String("date", drift.Date.String()),
			zap.Int("agents", len(drift.Agents)),
		)
	}
	return nil
}

// MessageCleanupJob prunes processed-message markers older than the
// retention window. A pruned message id can be ingested again, so the
// window must exceed any realistic redelivery delay.
func (s *Scheduler) MessageCleanupJob(ctx context.Context) error {
	days := int64(s.cfg.RetentionDays)
	if s.settings != nil {
		if !s.settings.BoolOr(ctx, settings.KeyRetentionEnabled, true) {
			s.metrics.IncJobSkipped(JobMessageCleanup, obsmetrics.SchedulerSkipReasonDisabled)
			return nil
		}
		days = s.settings.IntOr(ctx, settings.KeyRetentionDays, days)
	}
	if days <= 0 {
		return nil
	}

	cutoff := s.clock.Now().Add(-time.Duration(days) * 24 * time.Hour)
	pruned, err := s.guard.Cleanup(ctx, cutoff)
	if err != nil {
		s.logJobError(ctx, "scheduler.cleanup.failed", err, zap.Time("cutoff", cutoff))
		return err
	}
	jobRunFromContext(ctx).AddProcessed(int(pruned))
	s.metrics.AddBatchProcessed(JobMessageCleanup, "processed_messages", int(pruned))
	return nil
}
