package middleware

import (
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/shashiranjanraj/appcore/pkg/errorhandler"
	"github.com/shashiranjanraj/appcore/pkg/logger"
	"github.com/shashiranjanraj/appcore/pkg/metrics"
	"github.com/shashiranjanraj/appcore/pkg/reqid"
)

// LoggerOptions mirrors the middleware.logger config block.
type LoggerOptions struct {
	Level   string   `mapstructure:"level"`
	Skip    []string `mapstructure:"skip"` // path prefixes that are not logged
	Metrics bool     `mapstructure:"metrics"`
}

// Logger logs each request with method, path, status, duration, size, IP
// and request_id. It injects a request-scoped logger so downstream code can
// call logger.WithCtx(ctx). When m is non-nil and opts.Metrics is set it
// also records Prometheus metrics.
func Logger(opts LoggerOptions, base *zap.Logger, m *metrics.Registry) func(http.Handler) http.Handler {
	if base == nil {
		base = zap.NewNop()
	}
	level := zapcore.InfoLevel
	if opts.Level != "" {
		if lvl, err := zapcore.ParseLevel(opts.Level); err == nil {
			level = lvl
		}
	}
	if !opts.Metrics {
		m = nil
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			r, rid := reqid.Ensure(w, r)

			reqLog := base.With(zap.String("request_id", rid))
			r = r.WithContext(logger.InjectLogger(r.Context(), reqLog))

			if m != nil {
				m.RequestInFlight.Inc()
				defer m.RequestInFlight.Dec()
			}

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				rec := recover()
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				// Failures reported to the error boundary are written after
				// this layer returns, so take the status from the error.
				status := ww.Status()
				failure := errorhandler.Reported(r.Context())
				switch {
				case rec != nil:
					status = http.StatusInternalServerError
					failure = &errorhandler.PanicError{Value: rec}
				case failure != nil && status == 0 && ww.BytesWritten() == 0:
					status = errorhandler.StatusOf(failure)
				case status == 0:
					status = http.StatusOK
				}

				if m != nil {
					m.Observe(r.Method, metrics.RoutePattern(r), status, ww.BytesWritten(), start)
				}
				if !skipped(opts.Skip, r.URL.Path) {
					lvl := level
					if status >= http.StatusInternalServerError && lvl < zapcore.ErrorLevel {
						lvl = zapcore.ErrorLevel
					}
					if ce := reqLog.Check(lvl, "request"); ce != nil {
						fields := []zap.Field{
							zap.String("method", r.Method),
							zap.String("path", r.URL.Path),
							zap.Int("status", status),
							zap.Duration("duration", time.Since(start)),
							zap.Int("bytes", ww.BytesWritten()),
							zap.String("ip", r.RemoteAddr),
						}
						if failure != nil {
							fields = append(fields, zap.Error(failure))
						}
						ce.Write(fields...)
					}
				}

				if rec != nil {
					panic(rec)
				}
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

func skipped(prefixes []string, p string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}
