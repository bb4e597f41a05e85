package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics holds the domain counters: ingestion outcomes, summary
// maintenance, reconcile drift and the ingest limiter.
type Metrics struct {
	ingestOutcomes   metric.Int64Counter
	rollupApplies    metric.Int64Counter
	integrityErrors  metric.Int64Counter
	reconcileDrift   metric.Int64Counter
	rateLimitAllowed metric.Int64Counter
	rateLimitDenied  metric.Int64Counter
}

// NewProvider installs the global meter provider. Disabled metrics get a
// noop provider so instruments can still be created.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, fmt.Errorf("metrics exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(exportInterval))),
	)
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return provider.Shutdown(ctx)
			},
		})
	}
	if log != nil {
		log.Named("metrics").Info("otlp metrics enabled",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
			zap.Duration("interval", exportInterval),
		)
	}
	return provider, nil
}

const exportInterval = 10 * time.Second

type counterSpec struct {
	target *metric.Int64Counter
	name   string
	desc   string
}

// New creates the domain instruments on provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "staybook"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	specs := []counterSpec{
		{&m.ingestOutcomes, "staybook_ingest_total", "Ingest requests by outcome."},
		{&m.rollupApplies, "staybook_rollup_apply_total", "Summary deltas applied by change kind."},
		{&m.integrityErrors, "staybook_rollup_integrity_errors_total", "Summary updates aborted because totals would go negative."},
		{&m.reconcileDrift, "staybook_rollup_reconcile_total", "Reconciled business days by outcome."},
		{&m.rateLimitAllowed, "staybook_rate_limit_allowed_total", "Ingest requests admitted by the limiter."},
		{&m.rateLimitDenied, "staybook_rate_limit_denied_total", "Ingest requests refused by the limiter."},
	}
	for _, spec := range specs {
		counter, err := meter.Int64Counter(spec.name, metric.WithDescription(spec.desc))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", spec.name, err)
		}
		*spec.target = counter
	}
	return m, nil
}

func record(ctx context.Context, counter metric.Int64Counter, attrs ...attribute.KeyValue) {
	counter.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attrs...)...))
}

func label(key, value string) attribute.KeyValue {
	return attribute.String(key, strings.TrimSpace(value))
}

// RecordIngest counts one ingest outcome: created, duplicate or
// validation_error.
func (m *Metrics) RecordIngest(ctx context.Context, status string) {
	if m != nil {
		record(ctx, m.ingestOutcomes, label("status", status))
	}
}

func (m *Metrics) RecordRollupApply(ctx context.Context, kind string) {
	if m != nil {
		record(ctx, m.rollupApplies, label("kind", kind))
	}
}

func (m *Metrics) RecordIntegrityError(ctx context.Context, reason string) {
	if m != nil {
		record(ctx, m.integrityErrors, label("reason", reason))
	}
}

// RecordReconcile counts one reconciled day as clean or drift.
func (m *Metrics) RecordReconcile(ctx context.Context, drifted bool) {
	if m == nil {
		return
	}
	outcome := "clean"
	if drifted {
		outcome = "drift"
	}
	record(ctx, m.reconcileDrift, label("outcome", outcome))
}

func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	if m != nil {
		record(ctx, m.rateLimitAllowed, label("endpoint", endpoint))
	}
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m != nil {
		record(ctx, m.rateLimitDenied, label("endpoint", endpoint), label("reason", reason))
	}
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	ctx := context.Background()
	switch p := strings.ToLower(strings.TrimSpace(protocol)); p {
	case "http", "http/protobuf":
		var opts []otlpmetrichttp.Option
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(ctx, opts...)
	case "", "grpc", "grpc/protobuf":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", p)
	}
}

// allowedLabelKeys is the closed label set. Chat, message and agent ids
// never become labels.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"status":      {},
	"kind":        {},
	"outcome":     {},
	"endpoint":    {},
	"reason":      {},
	"method":      {},
	"route":       {},
	"status_code": {},
}

func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	kept := attrs[:0:0]
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; ok {
			kept = append(kept, attr)
		}
	}
	return kept
}
