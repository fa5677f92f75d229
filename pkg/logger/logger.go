// Package logger is the zap-backed structured logger used across unitrack.
// Entries logged through a context carry the request's trace, actor and
// facility automatically.
package logger

import (
	"context"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appctx "unitrack/internal/core/context"
)

// ServiceName is attached to every entry of a configured logger.
const ServiceName = "unitrack"

// Logger is a zap.SugaredLogger that can enrich itself from a context.
type Logger struct {
	*zap.SugaredLogger
}

type loggerKey struct{}

// Config selects level, encoding and outputs.
type Config struct {
	Level       string // debug, info, warn, error; anything else means info
	Development bool   // console encoding with colored levels
	OutputPaths []string
	Component   string // binary name, e.g. server or worker
}

// New builds a Logger. Entries carry service and, when set, component.
func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if len(cfg.OutputPaths) > 0 {
		zc.OutputPaths = cfg.OutputPaths
	}
	zc.InitialFields = map[string]any{"service": ServiceName}
	if cfg.Component != "" {
		zc.InitialFields["component"] = cfg.Component
	}

	z, err := zc.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{z.Sugar()}, nil
}

// NewFromCore wraps an existing zap core. Tests use it with zaptest/observer.
func NewFromCore(core zapcore.Core) *Logger {
	return &Logger{zap.New(core).Sugar()}
}

var (
	defaultOnce   sync.Once
	defaultLogger *Logger
)

// Default is the stdout logger used when no logger was put in the context.
func Default() *Logger {
	defaultOnce.Do(func() {
		l, err := New(Config{Level: "info", OutputPaths: []string{"stdout"}})
		if err != nil {
			l = &Logger{zap.NewNop().Sugar()}
		}
		defaultLogger = l
	})
	return defaultLogger
}

// contextFields collects the request-scoped key/value pairs found in ctx.
func contextFields(ctx context.Context) []any {
	var kv []any
	if tr := appctx.GetTrace(ctx); tr != nil {
		kv = append(kv, "trace_id", tr.TraceID, "request_id", tr.RequestID)
	}
	if id := appctx.GetUserID(ctx); id != "" {
		kv = append(kv, "user_id", id)
	}
	if id := appctx.GetFacilityID(ctx); id != "" {
		kv = append(kv, "facility_id", id)
	}
	return kv
}

// WithContext returns l enriched with the trace, user and facility in ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	kv := contextFields(ctx)
	if len(kv) == 0 {
		return l
	}
	return &Logger{l.SugaredLogger.With(kv...)}
}

// With adds key/value pairs.
func (l *Logger) With(keysAndValues ...any) *Logger {
	return &Logger{l.SugaredLogger.With(keysAndValues...)}
}

// WithComponent tags entries with a component name.
func (l *Logger) WithComponent(name string) *Logger {
	return l.With("component", name)
}

// WithLogger stores l in ctx.
func WithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the logger stored in ctx, or Default, enriched with
// the context fields.
func FromContext(ctx context.Context) *Logger {
	l, ok := ctx.Value(loggerKey{}).(*Logger)
	if !ok {
		l = Default()
	}
	return l.WithContext(ctx)
}

func Debug(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Debugw(msg, keysAndValues...)
}

func Info(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Infow(msg, keysAndValues...)
}

func Warn(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Warnw(msg, keysAndValues...)
}

func Error(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Errorw(msg, keysAndValues...)
}

// Fatal logs at error level and exits the process.
func Fatal(ctx context.Context, msg string, keysAndValues ...any) {
	l := FromContext(ctx)
	l.Errorw(msg, keysAndValues...)
	_ = l.Sync()
	os.Exit(1)
}
