package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	SchedulerJobReasonDeadlineExceeded     = "deadline_exceeded"
	SchedulerJobReasonDBLockTimeout        = "db_lock_timeout"
	SchedulerJobReasonSerializationFailure = "serialization_failure"
	SchedulerJobReasonUniqueViolation      = "unique_violation"
	SchedulerJobReasonIntegrity            = "integrity"
	SchedulerJobReasonDB                   = "db"
	SchedulerJobReasonUnknown              = "unknown"

	SchedulerSkipReasonLeaderLockHeld = "leader_lock_held"
	SchedulerSkipReasonDisabled       = "disabled"
)

const schedulerNamespace = "staybook_scheduler"

var (
	jobDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}
	runLoopLagBuckets  = []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900}
)

// SchedulerMetrics are the Prometheus collectors of the reconcile, cleanup
// and close-day jobs. They are scraped from /metrics next to the HTTP ones.
type SchedulerMetrics struct {
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobTimeouts    *prometheus.CounterVec
	jobErrors      *prometheus.CounterVec
	jobSkipped     *prometheus.CounterVec
	batchProcessed *prometheus.CounterVec
	lastSuccess    *prometheus.GaugeVec
	runLoopLag     prometheus.Observer
}

var (
	schedulerMetricsOnce sync.Once
	schedulerMetrics     *SchedulerMetrics
)

// Scheduler returns the process-wide collectors, registering them on first
// use.
func Scheduler() *SchedulerMetrics {
	return SchedulerWithConfig(Config{})
}

func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerMetricsOnce.Do(func() {
		schedulerMetrics = newSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return schedulerMetrics
}

// ResetSchedulerMetricsForTest forgets the singleton so a test can register
// fresh collectors on its own registry.
func ResetSchedulerMetricsForTest() {
	schedulerMetricsOnce = sync.Once{}
	schedulerMetrics = nil
}

func schedulerLabels(cfg Config) prometheus.Labels {
	service := strings.TrimSpace(cfg.ServiceName)
	if service == "" {
		service = "staybook"
	}
	env := strings.TrimSpace(cfg.Environment)
	if env == "" {
		env = "unknown"
	}
	return prometheus.Labels{"service": service, "env": env}
}

func newSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := schedulerLabels(cfg)
	counter := func(name, help string, dims ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   schedulerNamespace,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, dims)
	}

	m := &SchedulerMetrics{
		jobRuns:        counter("job_runs_total", "Scheduler job runs by name.", "job"),
		jobTimeouts:    counter("job_timeouts_total", "Scheduler job runs cut off by their timeout.", "job"),
		jobErrors:      counter("job_errors_total", "Scheduler job errors by low-cardinality reason.", "job", "reason"),
		jobSkipped:     counter("job_skipped_total", "Scheduler job runs skipped before doing any work.", "job", "reason"),
		batchProcessed: counter("batch_processed_total", "Business days, drifted days and markers handled by scheduler jobs.", "job", "resource"),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   schedulerNamespace,
			Name:        "job_duration_seconds",
			Help:        "Scheduler job latency.",
			Buckets:     jobDurationBuckets,
			ConstLabels: labels,
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   schedulerNamespace,
			Name:        "job_last_success_timestamp_seconds",
			Help:        "Unix time of the last successful run; alert when close_day falls behind a day.",
			ConstLabels: labels,
		}, []string{"job"}),
	}
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   schedulerNamespace,
		Name:        "runloop_lag_seconds",
		Help:        "Delay of a periodic run beyond its scheduled tick.",
		Buckets:     runLoopLagBuckets,
		ConstLabels: labels,
	})
	m.runLoopLag = runLoopLag

	registerer.MustRegister(
		m.jobRuns,
		m.jobDuration,
		m.jobTimeouts,
		m.jobErrors,
		m.jobSkipped,
		m.batchProcessed,
		m.lastSuccess,
		runLoopLag,
	)
	return m
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func (m *SchedulerMetrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

// IncJobError counts err under its classified reason.
func (m *SchedulerMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifySchedulerJobReason(err)).Inc()
}

func (m *SchedulerMetrics) IncJobSkipped(job, reason string) {
	if m == nil {
		return
	}
	m.jobSkipped.WithLabelValues(job, reason).Inc()
}

// AddBatchProcessed ignores non-positive counts so an idle run leaves no
// zero-valued series behind.
func (m *SchedulerMetrics) AddBatchProcessed(job, resource string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.batchProcessed.WithLabelValues(job, resource).Add(float64(count))
}

func (m *SchedulerMetrics) SetLastSuccess(job string, at time.Time) {
	if m == nil || at.IsZero() {
		return
	}
	m.lastSuccess.WithLabelValues(job).Set(float64(at.Unix()))
}

func (m *SchedulerMetrics) ObserveRunLoopLag(lag time.Duration) {
	if m == nil {
		return
	}
	if lag < 0 {
		lag = 0
	}
	m.runLoopLag.Observe(lag.Seconds())
}

// integrityViolation is implemented by errors raised when summary totals
// would no longer match the ledger.
type integrityViolation interface {
	IntegrityViolation() bool
}

// pgReasons maps the SQLSTATEs a reconcile run can hit while competing with
// live ingestion for summary rows.
var pgReasons = map[string]string{
	"55P03": SchedulerJobReasonDBLockTimeout,
	"40001": SchedulerJobReasonSerializationFailure,
	"40P01": SchedulerJobReasonSerializationFailure,
	"23505": SchedulerJobReasonUniqueViolation,
}

// ClassifySchedulerJobReason maps a job error to a low-cardinality label.
func ClassifySchedulerJobReason(err error) string {
	switch {
	case err == nil:
		return SchedulerJobReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return SchedulerJobReasonDeadlineExceeded
	}

	var iv integrityViolation
	if errors.As(err, &iv) && iv.IntegrityViolation() {
		return SchedulerJobReasonIntegrity
	}
	if code := pgCode(err); code != "" {
		if reason, ok := pgReasons[code]; ok {
			return reason
		}
		return SchedulerJobReasonDB
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return SchedulerJobReasonUniqueViolation
	}
	if isGormFailure(err) {
		return SchedulerJobReasonDB
	}
	return SchedulerJobReasonUnknown
}

// IsSchedulerErrorRetryable reports whether the next tick is likely to
// succeed where this one failed.
func IsSchedulerErrorRetryable(err error) bool {
	switch ClassifySchedulerJobReason(err) {
	case SchedulerJobReasonDeadlineExceeded,
		SchedulerJobReasonDBLockTimeout,
		SchedulerJobReasonSerializationFailure:
		return err != nil
	default:
		return false
	}
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isGormFailure(err error) bool {
	for _, target := range []error{
		gorm.ErrInvalidDB,
		gorm.ErrInvalidTransaction,
		gorm.ErrInvalidData,
		gorm.ErrInvalidValue,
		gorm.ErrMissingWhereClause,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
