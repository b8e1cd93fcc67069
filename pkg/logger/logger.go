// Package logger provides the structured, levelled zap logger shared by the
// framework.
//
// The key extension over a plain *zap.Logger is WithCtx: the request logger
// middleware stores a logger already tagged with the request ID, so every
// log line written while serving a request is correlated:
//
//	log := logger.WithCtx(r.Context())
//	log.Info("payment processed", zap.Float64("amount", 99.99))
//	// → {"level":"info","msg":"payment processed","request_id":"a1b2…","amount":99.99}
package logger

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu sync.RWMutex
	l  = zap.NewNop()
)

// New builds a logger. format is "json" for log aggregators or "console"
// for humans; level is any zap level name ("debug", "info", …).
func New(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	var encoder zapcore.Encoder
	switch strings.ToLower(format) {
	case "json":
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encCfg)
	case "", "console", "text", "dev":
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encCfg.EncodeCaller = zapcore.ShortCallerEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, fmt.Errorf("logger: unknown format %q", format)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), lvl)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// L returns the process-wide base logger. It is a no-op logger until
// SetDefault is called.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return l
}

// SetDefault replaces the process-wide base logger.
func SetDefault(log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	mu.Lock()
	l = log
	mu.Unlock()
}

// ─────────────────────────────────────────────
// Context-aware logger
// ─────────────────────────────────────────────

type ctxKey struct{}

// WithCtx returns the request-scoped logger stored in ctx, or the base
// logger when there is none.
func WithCtx(ctx context.Context) *zap.Logger {
	if log, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok && log != nil {
		return log
	}
	return L()
}

// InjectLogger stores log into ctx. Called by the request logger
// middleware; application code rarely needs it.
func InjectLogger(ctx context.Context, log *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}
