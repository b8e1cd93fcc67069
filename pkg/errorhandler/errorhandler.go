// Package errorhandler is the outermost boundary of the request pipeline.
//
// Handlers report failures with Fail instead of writing an error response
// themselves; panics are recovered. Either way the boundary renders one
// response: a view when the client accepts HTML and a view is configured,
// the JSON envelope otherwise.
//
//	if err != nil {
//	    errorhandler.Fail(w, r, errorhandler.WithStatus(http.StatusBadRequest, err))
//	    return
//	}
package errorhandler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/shashiranjanraj/appcore/pkg/logger"
	"github.com/shashiranjanraj/appcore/pkg/reqid"
	"github.com/shashiranjanraj/appcore/pkg/response"
)

// ErrNotFound is reported for requests no layer handled.
var ErrNotFound = errors.New("not found")

// Options mirrors the middleware.errorHandler config block.
type Options struct {
	DumpExceptions bool   `mapstructure:"dumpExceptions"`
	ShowStack      bool   `mapstructure:"showStack"`
	View           string `mapstructure:"view"`
}

// Renderer renders a named view with the given status. Nothing may be
// written when it returns an error. *view.Manager satisfies it.
type Renderer interface {
	RenderStatus(w http.ResponseWriter, r *http.Request, status int, name string, data map[string]any) error
}

// StatusError carries the HTTP status to respond with.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string { return e.Err.Error() }
func (e *StatusError) Unwrap() error { return e.Err }

// WithStatus attaches an HTTP status code to err.
func WithStatus(code int, err error) error {
	if err == nil {
		err = errors.New(http.StatusText(code))
	}
	return &StatusError{Code: code, Err: err}
}

// PanicError wraps a recovered panic value.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// StatusOf maps err to an HTTP status code.
func StatusOf(err error) int {
	var se *StatusError
	var mbe *http.MaxBytesError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &se):
		return se.Code
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

type slotKey struct{}

type slot struct{ err error }

// Fail reports err to the enclosing boundary. Without a boundary it writes
// the JSON envelope directly.
func Fail(w http.ResponseWriter, r *http.Request, err error) {
	if s, ok := r.Context().Value(slotKey{}).(*slot); ok {
		if s.err == nil {
			s.err = err
		}
		return
	}
	status := StatusOf(err)
	response.Error(w, status, http.StatusText(status))
}

// Reported returns the error already reported for ctx, if any.
func Reported(ctx context.Context) error {
	if s, ok := ctx.Value(slotKey{}).(*slot); ok {
		return s.err
	}
	return nil
}

// NotFoundHandler reports ErrNotFound. It terminates the fallback chain.
func NotFoundHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Fail(w, r, ErrNotFound)
	})
}

type Handler struct {
	opts  Options
	views Renderer
	log   *zap.Logger
}

// New builds the boundary. log is the base logger for failures; it is
// tagged with the request ID and stored on the request so every layer
// inside the boundary logs through it. nil means no logging.
func New(opts Options, views Renderer, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{opts: opts, views: views, log: log}
}

// Middleware returns the boundary.
func (h *Handler) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, rid := reqid.Ensure(w, r)
			s := &slot{}
			ctx := logger.InjectLogger(r.Context(), h.log.With(zap.String("request_id", rid)))
			r = r.WithContext(context.WithValue(ctx, slotKey{}, s))
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				if v := recover(); v != nil {
					if v == http.ErrAbortHandler {
						panic(v)
					}
					s.err = &PanicError{Value: v, Stack: debug.Stack()}
				}
				if s.err == nil {
					return
				}
				if ww.Status() != 0 || ww.BytesWritten() > 0 {
					logger.WithCtx(r.Context()).Warn("error after response started",
						zap.Error(s.err), zap.String("path", r.URL.Path))
					return
				}
				h.Handle(ww, r, s.err)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// Handle logs err and writes the error response.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	log := logger.WithCtx(r.Context()).With(
		zap.Int("status", status),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)

	var pe *PanicError
	isPanic := errors.As(err, &pe)
	switch {
	case isPanic:
		log.Error("panic recovered", zap.Any("panic", pe.Value), zap.ByteString("stack", pe.Stack))
	case status >= http.StatusInternalServerError:
		log.Error("request failed", zap.Error(err))
	default:
		log.Debug("request rejected", zap.Error(err))
	}

	message := http.StatusText(status)
	if h.opts.DumpExceptions {
		message = err.Error()
	}
	var stack string
	if h.opts.ShowStack && isPanic {
		stack = string(pe.Stack)
	}

	if h.views != nil && h.opts.View != "" && response.WantsHTML(r) {
		data := map[string]any{
			"status":  status,
			"message": message,
			"stack":   stack,
		}
		rerr := h.views.RenderStatus(w, r, status, h.opts.View, data)
		if rerr == nil {
			return
		}
		log.Error("error view failed", zap.Error(rerr))
	}

	if h.opts.DumpExceptions {
		detail := map[string]string{"error": err.Error()}
		if stack != "" {
			detail["stack"] = stack
		}
		response.ErrorDetail(w, status, message, detail)
		return
	}
	response.Error(w, status, message)
}
