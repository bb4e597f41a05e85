package logger

import (
	"context"
	"fmt"
	"strings"
	"time"

	obscontext "github.com/smallbiznis/staybook/internal/observability/context"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	ServiceName string
	Environment string
	Version     string
	// Level wins over Debug when both are set.
	Level  string
	Format string
	Debug  bool

	SamplingWindow      time.Duration
	SamplingInitial     int
	SamplingThereafter  int
	IncludeCaller       bool
	IncludeStackOnError bool
}

const defaultServiceName = "staybook"

// New builds the process logger. It replaces the zap globals so
// FromContext works in code that has no injected logger.
func New(lc fx.Lifecycle, cfg Config) (*zap.Logger, error) {
	zapCfg, err := productionConfig(cfg)
	if err != nil {
		return nil, err
	}

	logger, err := zapCfg.Build(buildOptions(cfg)...)
	if err != nil {
		return nil, err
	}
	logger = logger.With(baseFields(cfg)...)
	zap.ReplaceGlobals(logger)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				// Sync on stdout returns EINVAL on some platforms.
				_ = logger.Sync()
				return nil
			},
		})
	}
	return logger, nil
}

func productionConfig(cfg Config) (zap.Config, error) {
	zapCfg := zap.NewProductionConfig()
	zapCfg.Encoding = normalizeFormat(cfg.Format)
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.OutputPaths = []string{"stdout"}
	zapCfg.ErrorOutputPaths = []string{"stderr"}
	// Sampling is installed in buildOptions with the configured window.
	zapCfg.Sampling = nil

	level := strings.TrimSpace(cfg.Level)
	switch {
	case level != "":
	case cfg.Debug:
		level = "debug"
	default:
		level = "info"
	}
	if err := zapCfg.Level.UnmarshalText([]byte(level)); err != nil {
		return zap.Config{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return zapCfg, nil
}

func buildOptions(cfg Config) []zap.Option {
	var options []zap.Option
	if cfg.IncludeCaller {
		options = append(options, zap.AddCaller())
	}
	if cfg.IncludeStackOnError {
		options = append(options, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	window, initial, thereafter := samplingOrDefault(cfg)
	return append(options, zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewSamplerWithOptions(core, window, initial, thereafter)
	}))
}

// samplingOrDefault keeps the first 100 identical entries per second and
// every 100th after that unless configured otherwise. Ingest bursts from a
// busy chat repeat the same messages.
func samplingOrDefault(cfg Config) (time.Duration, int, int) {
	window, initial, thereafter := cfg.SamplingWindow, cfg.SamplingInitial, cfg.SamplingThereafter
	if window <= 0 {
		window = time.Second
	}
	if initial <= 0 {
		initial = 100
	}
	if thereafter <= 0 {
		thereafter = 100
	}
	return window, initial, thereafter
}

func baseFields(cfg Config) []zap.Field {
	service := strings.TrimSpace(cfg.ServiceName)
	if service == "" {
		service = defaultServiceName
	}
	return []zap.Field{
		zap.String("service", service),
		zap.String("env", strings.TrimSpace(cfg.Environment)),
		zap.String("version", strings.TrimSpace(cfg.Version)),
	}
}

func normalizeFormat(format string) string {
	if strings.EqualFold(strings.TrimSpace(format), "console") {
		return "console"
	}
	return "json"
}

// FromContext is WithContext on the global logger, for code that has no
// injected one.
func FromContext(ctx context.Context) *zap.Logger {
	return WithContext(ctx, zap.L())
}

// WithContext tags base with the request id, the chat and message being
// ingested and the active span. trace_id is always present, empty when the
// request is not sampled, so log queries can filter on it.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil || base == nil {
		return base
	}

	var traceID, spanID string
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		traceID, spanID = sc.TraceID().String(), sc.SpanID().String()
	}
	fields := append(make([]zap.Field, 0, 5), zap.String("request_id", obscontext.RequestIDFromContext(ctx)))
	for _, kv := range [...]struct{ key, value string }{
		{"chat_id", obscontext.ChatIDFromContext(ctx)},
		{"message_id", obscontext.MessageIDFromContext(ctx)},
	} {
		if kv.value != "" {
			fields = append(fields, zap.String(kv.key, kv.value))
		}
	}
	fields = append(fields, zap.String("trace_id", traceID), zap.String("span_id", spanID))
	return base.With(fields...)
}
