package scheduler

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	obscontext "github.com/smallbiznis/staybook/internal/observability/context"
	obslogger "github.com/smallbiznis/staybook/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/staybook/internal/observability/metrics"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// jobRun tallies one execution of a job for its finish log line.
type jobRun struct {
	job       string
	id        string
	startedAt time.Time
	processed int
	errors    int
}

func (r *jobRun) AddProcessed(count int) {
	if r != nil && count > 0 {
		r.processed += count
	}
}

func (r *jobRun) IncError() {
	if r != nil {
		r.errors++
	}
}

func (r *jobRun) fields() []zap.Field {
	return []zap.Field{zap.String("job", r.job), zap.String("run_id", r.id)}
}

type jobRunKey struct{}

// startJobRun attaches a run to ctx and uses its id as the request id, so
// GORM and rollup log lines of the run carry it too. Ids are ULIDs and sort
// by start time.
func (s *Scheduler) startJobRun(ctx context.Context, job string) (context.Context, *jobRun) {
	now := s.clock.Now()
	run := &jobRun{
		job:       job,
		id:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		startedAt: now,
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	return obscontext.WithRequestID(ctx, run.id), run
}

func jobRunFromContext(ctx context.Context) *jobRun {
	if ctx == nil {
		return nil
	}
	run, _ := ctx.Value(jobRunKey{}).(*jobRun)
	return run
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	s.logger(ctx).Info("scheduler.job.start", run.fields()...)
}

// logJobFinish warns when the run recorded any error.
func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	level := zapcore.InfoLevel
	if run.errors > 0 {
		level = zapcore.WarnLevel
	}
	ce := s.logger(ctx).Check(level, "scheduler.job.finish")
	if ce == nil {
		return
	}
	ce.Write(append(run.fields(),
		zap.Int64("duration_ms", s.clock.Now().Sub(run.startedAt).Milliseconds()),
		zap.Int("processed_count", run.processed),
		zap.Int("error_count", run.errors),
	)...)
}

// logJobError counts err against the current run and logs it with the
// classified reason.
func (s *Scheduler) logJobError(ctx context.Context, msg string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	run := jobRunFromContext(ctx)
	run.IncError()
	all := []zap.Field{
		zap.String("reason", obsmetrics.ClassifySchedulerJobReason(err)),
		zap.Bool("retryable", obsmetrics.IsSchedulerErrorRetryable(err)),
		zap.Error(err),
	}
	if run != nil {
		all = append(all, run.fields()...)
	}
	s.logger(ctx).Error(msg, append(all, fields...)...)
}
