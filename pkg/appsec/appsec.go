// Package appsec hardens responses: CSRF tokens for unsafe methods, CORS,
// and the usual security headers (CSP, X-Frame-Options, P3P, HSTS,
// X-XSS-Protection, X-Content-Type-Options, Referrer-Policy).
//
// Templates read the CSRF token from the "_csrf" local; API clients send it
// back in the X-CSRF-Token header.
package appsec

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/go-chi/cors"
	"github.com/gorilla/csrf"

	"github.com/shashiranjanraj/appcore/pkg/cookie"
	"github.com/shashiranjanraj/appcore/pkg/errorhandler"
)

// FieldName is the form field and template local carrying the CSRF token.
const FieldName = "_csrf"

// HeaderName is the request header carrying the CSRF token.
const HeaderName = "X-CSRF-Token"

// HSTSOptions configures Strict-Transport-Security. MaxAge 0 disables it.
type HSTSOptions struct {
	MaxAge            int  `mapstructure:"maxAge"`
	IncludeSubDomains bool `mapstructure:"includeSubDomains"`
	Preload           bool `mapstructure:"preload"`
}

// CORSOptions configures cross-origin access. No origins means CORS is off.
type CORSOptions struct {
	AllowedOrigins   []string `mapstructure:"allowedOrigins"` // e.g. ["https://app.example.com"] or ["*"]
	AllowedMethods   []string `mapstructure:"allowedMethods"`
	AllowedHeaders   []string `mapstructure:"allowedHeaders"`
	ExposedHeaders   []string `mapstructure:"exposedHeaders"`
	AllowCredentials bool     `mapstructure:"allowCredentials"`
	MaxAge           int      `mapstructure:"maxAge"` // seconds for preflight cache
}

// Options mirrors the middleware.appsec config block.
type Options struct {
	CSRF           bool        `mapstructure:"csrf"`
	CSP            string      `mapstructure:"csp"`
	XFrame         string      `mapstructure:"xframe"`
	P3P            string      `mapstructure:"p3p"`
	HSTS           HSTSOptions `mapstructure:"hsts"`
	XSSProtection  bool        `mapstructure:"xssProtection"`
	NoSniff        bool        `mapstructure:"nosniff"`
	ReferrerPolicy string      `mapstructure:"referrerPolicy"`
	Secure         bool        `mapstructure:"secure"` // CSRF cookie only over HTTPS
	TrustedOrigins []string    `mapstructure:"trustedOrigins"`
	CORS           CORSOptions `mapstructure:"cors"`
}

// Middleware builds the appsec layer. secret keys the CSRF tokens.
func Middleware(opts Options, secret string) (func(http.Handler) http.Handler, error) {
	var protect func(http.Handler) http.Handler
	if opts.CSRF {
		key, err := cookie.DeriveKey(secret, "csrf", 32)
		if err != nil {
			return nil, fmt.Errorf("appsec: %w", err)
		}
		protect = csrf.Protect(key,
			csrf.FieldName(FieldName),
			csrf.RequestHeader(HeaderName),
			csrf.CookieName("appcore.csrf"),
			csrf.Path("/"),
			csrf.Secure(opts.Secure),
			csrf.SameSite(csrf.SameSiteLaxMode),
			csrf.TrustedOrigins(opts.TrustedOrigins),
			csrf.ErrorHandler(http.HandlerFunc(rejectCSRF)),
		)
	}
	headers := headerSet(opts)
	crossOrigin := corsLayer(opts.CORS)

	return func(next http.Handler) http.Handler {
		inner := next
		if protect != nil {
			protected := protect(next)
			inner = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.TLS == nil && !opts.Secure {
					r = csrf.PlaintextHTTPRequest(r)
				}
				protected.ServeHTTP(w, r)
			})
		}
		withHeaders := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range headers {
				h.Set(kv[0], kv[1])
			}
			inner.ServeHTTP(w, r)
		})
		if crossOrigin != nil {
			return crossOrigin(withHeaders)
		}
		return withHeaders
	}, nil
}

// Token returns the CSRF token for r, or "" when CSRF is disabled.
func Token(r *http.Request) string {
	return csrf.Token(r)
}

func rejectCSRF(w http.ResponseWriter, r *http.Request) {
	errorhandler.Fail(w, r, errorhandler.WithStatus(http.StatusForbidden, csrf.FailureReason(r)))
}

func headerSet(opts Options) [][2]string {
	var out [][2]string
	if opts.CSP != "" {
		out = append(out, [2]string{"Content-Security-Policy", opts.CSP})
	}
	if opts.XFrame != "" {
		out = append(out, [2]string{"X-Frame-Options", opts.XFrame})
	}
	if opts.P3P != "" {
		out = append(out, [2]string{"P3P", `CP="` + opts.P3P + `"`})
	}
	if opts.HSTS.MaxAge > 0 {
		v := fmt.Sprintf("max-age=%d", opts.HSTS.MaxAge)
		if opts.HSTS.IncludeSubDomains {
			v += "; includeSubDomains"
		}
		if opts.HSTS.Preload {
			v += "; preload"
		}
		out = append(out, [2]string{"Strict-Transport-Security", v})
	}
	if opts.XSSProtection {
		out = append(out, [2]string{"X-XSS-Protection", "1; mode=block"})
	}
	if opts.NoSniff {
		out = append(out, [2]string{"X-Content-Type-Options", "nosniff"})
	}
	if opts.ReferrerPolicy != "" {
		out = append(out, [2]string{"Referrer-Policy", opts.ReferrerPolicy})
	}
	return out
}

func corsLayer(opts CORSOptions) func(http.Handler) http.Handler {
	if len(opts.AllowedOrigins) == 0 {
		return nil
	}
	if len(opts.AllowedMethods) == 0 {
		opts.AllowedMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	}
	if len(opts.AllowedHeaders) == 0 {
		opts.AllowedHeaders = []string{"Accept", "Authorization", "Content-Type", HeaderName}
	}
	co := cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   opts.AllowedMethods,
		AllowedHeaders:   opts.AllowedHeaders,
		ExposedHeaders:   opts.ExposedHeaders,
		AllowCredentials: opts.AllowCredentials,
		MaxAge:           opts.MaxAge,
	}
	// credentials forbid the wildcard, so echo the caller's origin instead
	if opts.AllowCredentials && slices.Contains(opts.AllowedOrigins, "*") {
		co.AllowedOrigins = nil
		co.AllowOriginFunc = func(*http.Request, string) bool { return true }
	}
	return cors.Handler(co)
}
