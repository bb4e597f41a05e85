package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/staybook/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// MiddlewareConfig controls request logging. ErrorClassifier maps a handler
// error to the (error_type, error_code) pair clients see.
type MiddlewareConfig struct {
	Debug           bool
	ErrorClassifier func(err error) (string, string)
}

var requestIDHeaders = []string{"X-Request-Id", "X-Correlation-Id"}

// GinMiddleware logs one http_request entry per request. Chat and message
// ids set by the ingest handler reach the entry through the request
// context.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := requestIDFor(c)
		c.Header(requestIDHeaders[0], requestID)
		c.Request = c.Request.WithContext(obscontext.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		}

		var errorType string
		if last := c.Errors.Last(); last != nil {
			errorCode := ""
			if cfg.ErrorClassifier != nil {
				errorType, errorCode = cfg.ErrorClassifier(last.Err)
			}
			fields = append(fields, zap.String("error_type", errorType), zap.String("error_code", errorCode))
			if cfg.Debug {
				fields = append(fields, zap.Stack("stack"))
			}
		}

		logRequest(FromContext(c.Request.Context()), route, status, errorType, fields)
	}
}

// requestIDFor honours an id sent by the bot or a proxy, else mints one.
func requestIDFor(c *gin.Context) string {
	for _, header := range requestIDHeaders {
		if id := strings.TrimSpace(c.GetHeader(header)); id != "" {
			return id
		}
	}
	return uuid.NewString()
}

func logRequest(log *zap.Logger, route string, status int, errorType string, fields []zap.Field) {
	if log == nil {
		return
	}
	if ce := log.Check(requestLevel(route, status, errorType), "http_request"); ce != nil {
		ce.Write(fields...)
	}
}

// requestLevel keeps routine traffic out of the info stream: probes and
// scrapes log at debug, so do bookings the chat sent with bad input.
// Throttling and in-flight retries are worth a warning.
func requestLevel(route string, status int, errorType string) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case isProbe(route):
		return zapcore.DebugLevel
	case route == ingestRoute && (status == http.StatusUnprocessableEntity || errorType == "validation_error"):
		return zapcore.DebugLevel
	case status == http.StatusTooManyRequests || errorType == "message_in_flight":
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

const ingestRoute = "/api/transactions"

func isProbe(route string) bool {
	return route == "/metrics" || route == "/health"
}
