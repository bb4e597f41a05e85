package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	obscontext "github.com/smallbiznis/staybook/internal/observability/context"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(nil, Config{Level: "loud"})
	require.Error(t, err)
}

func TestWithContextAddsMessageFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := obscontext.WithChatID(context.Background(), "-1001")
	ctx = obscontext.WithMessageID(ctx, "1001:42")

	WithContext(ctx, zap.New(core)).Info("ingested")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "-1001", fields["chat_id"])
	assert.Equal(t, "1001:42", fields["message_id"])
	assert.Equal(t, "", fields["trace_id"])
}

func TestGinMiddlewareEchoesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	router := gin.New()
	router.Use(GinMiddleware(MiddlewareConfig{
		ErrorClassifier: func(error) (string, string) { return "validation_error", "invalid_unit" },
	}))
	router.POST("/api/transactions", func(c *gin.Context) {
		assert.Equal(t, "req-abc", obscontext.RequestIDFromContext(c.Request.Context()))
		_ = c.Error(assert.AnError)
		c.Status(http.StatusUnprocessableEntity)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/transactions", nil)
	req.Header.Set("X-Request-Id", "req-abc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "req-abc", rec.Header().Get("X-Request-Id"))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.DebugLevel, entry.Level)
	assert.Equal(t, "invalid_unit", entry.ContextMap()["error_code"])
}

func TestProductionConfigLevel(t *testing.T) {
	cfg, err := productionConfig(Config{})
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, cfg.Level.Level())
	assert.Equal(t, "json", cfg.Encoding)

	cfg, err = productionConfig(Config{Debug: true, Format: "Console"})
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, cfg.Level.Level())
	assert.Equal(t, "console", cfg.Encoding)

	cfg, err = productionConfig(Config{Debug: true, Level: "warn"})
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, cfg.Level.Level())
}

func TestBaseFieldsDefaultService(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	zap.New(core).With(baseFields(Config{Environment: " prod "})...).Info("boot")

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "staybook", fields["service"])
	assert.Equal(t, "prod", fields["env"])
}

func TestRequestLevel(t *testing.T) {
	cases := []struct {
		name      string
		route     string
		status    int
		errorType string
		want      zapcore.Level
	}{
		{name: "created", route: "/api/transactions", status: http.StatusCreated, want: zapcore.InfoLevel},
		{name: "rejected booking", route: "/api/transactions", status: http.StatusUnprocessableEntity, want: zapcore.DebugLevel},
		{name: "malformed booking", route: "/api/transactions", status: http.StatusBadRequest, errorType: "validation_error", want: zapcore.DebugLevel},
		{name: "report validation", route: "/api/reports/trend", status: http.StatusBadRequest, errorType: "validation_error", want: zapcore.InfoLevel},
		{name: "throttled", route: "/api/transactions", status: http.StatusTooManyRequests, errorType: "rate_limited", want: zapcore.WarnLevel},
		{name: "in flight", route: "/api/transactions", status: http.StatusConflict, errorType: "message_in_flight", want: zapcore.WarnLevel},
		{name: "scrape", route: "/metrics", status: http.StatusOK, want: zapcore.DebugLevel},
		{name: "storage down", route: "/api/transactions", status: http.StatusServiceUnavailable, errorType: "storage_error", want: zapcore.ErrorLevel},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, requestLevel(tc.route, tc.status, tc.errorType))
		})
	}
}
