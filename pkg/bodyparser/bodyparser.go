// Package bodyparser parses JSON, urlencoded and multipart request bodies
// up front, enforcing a size limit.
//
// Parsed values are available downstream:
//
//	var in CreateUser
//	if err := bodyparser.Decode(r, &in); err != nil { … }
//	name := r.PostForm.Get("name") // urlencoded and multipart
package bodyparser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/shashiranjanraj/appcore/pkg/errorhandler"
)

// DefaultLimit is used when no limit is configured: 2 MiB.
const DefaultLimit int64 = 2097152

// ErrNoJSON is returned by Decode when the request carried no JSON body.
var ErrNoJSON = errors.New("bodyparser: request has no JSON body")

// Options mirrors the middleware.bodyParser config block. Limit may be a
// byte count or a human string such as "2mb" or "512KiB".
type Options struct {
	Limit any `mapstructure:"limit"`
}

type Parser struct {
	limit int64
}

// New validates opts.
func New(opts Options) (*Parser, error) {
	limit, err := ParseLimit(opts.Limit)
	if err != nil {
		return nil, err
	}
	return &Parser{limit: limit}, nil
}

// Limit is the effective body size limit in bytes.
func (p *Parser) Limit() int64 { return p.limit }

// ParseLimit turns a configured limit into bytes. nil and zero mean
// DefaultLimit.
func ParseLimit(v any) (int64, error) {
	var n int64
	switch x := v.(type) {
	case nil:
		return DefaultLimit, nil
	case int:
		n = int64(x)
	case int64:
		n = x
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("bodyparser: limit %d overflows", x)
		}
		n = int64(x)
	case float64:
		n = int64(x)
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return DefaultLimit, nil
		}
		u, err := humanize.ParseBytes(s)
		if err != nil {
			return 0, fmt.Errorf("bodyparser: limit %q: %w", x, err)
		}
		if u > math.MaxInt64 {
			return 0, fmt.Errorf("bodyparser: limit %q overflows", x)
		}
		n = int64(u)
	default:
		return 0, fmt.Errorf("bodyparser: unsupported limit type %T", v)
	}
	if n < 0 {
		return 0, fmt.Errorf("bodyparser: limit must be positive, got %d", n)
	}
	if n == 0 {
		return DefaultLimit, nil
	}
	return n, nil
}

type ctxKey struct{}

type parsed struct {
	raw []byte
}

// Middleware parses request bodies. Failures are reported to the error
// boundary: 413 past the limit, 400 for malformed content.
func (p *Parser) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Body == http.NoBody || !hasBody(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, p.limit)

			mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
			var err error
			switch {
			case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
				r, err = p.parseJSON(r)
			case mediaType == "application/x-www-form-urlencoded":
				err = r.ParseForm()
			case mediaType == "multipart/form-data":
				err = r.ParseMultipartForm(p.limit)
			}
			if err != nil {
				errorhandler.Fail(w, r, classify(err))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (p *Parser) parseJSON(r *http.Request) (*http.Request, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return r, err
	}
	if len(bytes.TrimSpace(raw)) > 0 && !json.Valid(raw) {
		return r, errors.New("bodyparser: malformed JSON")
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))
	return r.WithContext(context.WithValue(r.Context(), ctxKey{}, &parsed{raw: raw})), nil
}

// Decode unmarshals the parsed JSON body into v.
func Decode(r *http.Request, v any) error {
	p, ok := r.Context().Value(ctxKey{}).(*parsed)
	if !ok || len(bytes.TrimSpace(p.raw)) == 0 {
		return ErrNoJSON
	}
	return json.Unmarshal(p.raw, v)
}

// Raw returns the raw JSON body, or nil.
func Raw(r *http.Request) []byte {
	if p, ok := r.Context().Value(ctxKey{}).(*parsed); ok {
		return p.raw
	}
	return nil
}

func classify(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return errorhandler.WithStatus(http.StatusRequestEntityTooLarge, err)
	}
	return errorhandler.WithStatus(http.StatusBadRequest, err)
}

func hasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
