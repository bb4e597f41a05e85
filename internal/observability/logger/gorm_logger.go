package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

type GormLoggerConfig struct {
	Level         gormlogger.LogLevel
	SlowThreshold time.Duration
}

// DefaultGormLoggerConfig logs failures and statements slower than 200ms.
func DefaultGormLoggerConfig() GormLoggerConfig {
	return GormLoggerConfig{Level: gormlogger.Warn, SlowThreshold: 200 * time.Millisecond}
}

// GormLogger routes GORM output through zap with the request and message
// ids of the calling context. Bound values are never logged because ledger
// rows carry agent names and amounts. Record-not-found is a normal miss for
// the repositories and is never logged.
type GormLogger struct {
	log *zap.Logger
	cfg GormLoggerConfig
}

func NewGormLogger(base *zap.Logger, cfg GormLoggerConfig) *GormLogger {
	if base == nil {
		base = zap.NewNop()
	}
	return &GormLogger{log: base.Named("gorm"), cfg: cfg}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.cfg.Level = level
	return &next
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.printf(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.printf(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.printf(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *GormLogger) printf(ctx context.Context, threshold gormlogger.LogLevel, level zapcore.Level, msg string, data []interface{}) {
	if l.cfg.Level < threshold {
		return
	}
	ce := WithContext(ctx, l.log).Check(level, msg)
	if ce == nil {
		return
	}
	if len(data) > 0 {
		ce.Write(zap.Any("data", data))
		return
	}
	ce.Write()
}

// Trace logs failed statements at error, slow ones at warn, and the rest
// at debug when the GORM level is Info.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	level, ok := l.traceLevel(elapsed, err)
	if !ok {
		return
	}
	ce := WithContext(ctx, l.log).Check(level, "gorm.query")
	if ce == nil {
		return
	}

	sql, rows := fc()
	op, table := describeStatement(sql)
	fields := []zap.Field{
		zap.String("sql", strings.TrimSpace(sql)),
		zap.String("operation", op),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if table != "" {
		fields = append(fields, zap.String("table", table))
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows_affected", rows))
	}
	if level == zapcore.ErrorLevel {
		fields = append(fields, zap.Error(err))
	}
	ce.Write(fields...)
}

func (l *GormLogger) traceLevel(elapsed time.Duration, err error) (zapcore.Level, bool) {
	lvl := l.cfg.Level
	if lvl <= gormlogger.Silent {
		return 0, false
	}
	if err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound) && lvl >= gormlogger.Error {
		return zapcore.ErrorLevel, true
	}
	if slow := l.cfg.SlowThreshold; slow > 0 && elapsed > slow && lvl >= gormlogger.Warn {
		return zapcore.WarnLevel, true
	}
	if lvl >= gormlogger.Info {
		return zapcore.DebugLevel, true
	}
	return 0, false
}

// ParamsFilter strips bound values before GORM renders the statement.
func (l *GormLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

// describeStatement returns the verb of sql and the table it targets.
// Parenthesised parts are skipped so a CTE feeding an upsert on the summary
// tables reports the outer UPDATE.
func describeStatement(sql string) (string, string) {
	tokens := strings.Fields(sql)
	op := ""
	depth := 0
	for i, raw := range tokens {
		outer := depth == 0 && !strings.HasPrefix(raw, "(")
		depth += strings.Count(raw, "(") - strings.Count(raw, ")")
		if depth < 0 {
			depth = 0
		}
		if !outer {
			continue
		}

		token := strings.ToUpper(strings.Trim(raw, "();"))
		next := ""
		if i+1 < len(tokens) {
			next = tokens[i+1]
		}
		switch token {
		case "SELECT", "INSERT", "DELETE":
			if op == "" {
				op = token
			}
		case "UPDATE":
			if op == "" {
				return token, tableName(next)
			}
		case "FROM", "INTO":
			if op != "" {
				return op, tableName(next)
			}
		}
	}
	if op == "" {
		op = "UNKNOWN"
	}
	return op, ""
}

func tableName(token string) string {
	name := strings.Trim(token, "\"`();")
	if name == "" || strings.EqualFold(name, "SELECT") {
		return ""
	}
	return name
}

var _ gormlogger.Interface = (*GormLogger)(nil)
