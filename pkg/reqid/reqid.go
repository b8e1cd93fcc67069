// Package reqid provides request ID generation and context propagation.
//
// A unique ID is generated for every HTTP request, stored in the request
// context, forwarded via the X-Request-ID header, and included in every
// structured log line written through logger.WithCtx(ctx).
//
// Reading inside a handler:
//
//	id := reqid.FromCtx(r.Context())
package reqid

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type ctxKey struct{}

// Header is the HTTP header name used to propagate the request ID.
const Header = "X-Request-ID"

// maxLen bounds client-supplied IDs so a caller cannot bloat log lines.
const maxLen = 128

// New generates a random (v4) UUID request ID.
func New() string {
	return uuid.NewString()
}

// WithValue stores id in ctx and returns the new context.
func WithValue(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromCtx extracts the request ID from ctx, or "" if none is present.
func FromCtx(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		return id
	}
	return ""
}

// Ensure returns r with a request ID attached, reusing an upstream
// X-Request-ID when it looks sane, and echoes it on w.
func Ensure(w http.ResponseWriter, r *http.Request) (*http.Request, string) {
	if id := FromCtx(r.Context()); id != "" {
		return r, id
	}
	id := strings.TrimSpace(r.Header.Get(Header))
	if id == "" || len(id) > maxLen {
		id = New()
	}
	w.Header().Set(Header, id)
	return r.WithContext(WithValue(r.Context(), id)), id
}

// Middleware injects a request ID into every request context and response
// header.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, _ = Ensure(w, r)
			next.ServeHTTP(w, r)
		})
	}
}
