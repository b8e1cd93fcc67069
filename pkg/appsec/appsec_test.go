package appsec

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "a-test-secret-that-is-long-enough"

func TestHeaders(t *testing.T) {
	mw, err := Middleware(Options{
		CSP:            "default-src 'self'",
		XFrame:         "SAMEORIGIN",
		P3P:            "NOI ADM",
		HSTS:           HSTSOptions{MaxAge: 31536000, IncludeSubDomains: true},
		XSSProtection:  true,
		NoSniff:        true,
		ReferrerPolicy: "same-origin",
	}, secret)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	h := rec.Header()
	assert.Equal(t, "default-src 'self'", h.Get("Content-Security-Policy"))
	assert.Equal(t, "SAMEORIGIN", h.Get("X-Frame-Options"))
	assert.Equal(t, `CP="NOI ADM"`, h.Get("P3P"))
	assert.Equal(t, "max-age=31536000; includeSubDomains", h.Get("Strict-Transport-Security"))
	assert.Equal(t, "1; mode=block", h.Get("X-XSS-Protection"))
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	assert.Equal(t, "same-origin", h.Get("Referrer-Policy"))
}

func TestCSRF(t *testing.T) {
	mw, err := Middleware(Options{CSRF: true}, secret)
	require.NoError(t, err)

	var token string
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token = Token(r)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/form", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, token)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	// unsafe method without a token is rejected
	post := httptest.NewRequest(http.MethodPost, "/form", strings.NewReader(""))
	for _, c := range cookies {
		post.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, post)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// with the header it passes
	post = httptest.NewRequest(http.MethodPost, "/form", strings.NewReader(""))
	post.Header.Set(HeaderName, token)
	for _, c := range cookies {
		post.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, post)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCSRF_Disabled(t *testing.T) {
	mw, err := Middleware(Options{}, "")
	require.NoError(t, err)

	var token = "unset"
	rec := httptest.NewRecorder()
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token = Token(r)
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, token)
}

func TestCSRF_NeedsSecret(t *testing.T) {
	_, err := Middleware(Options{CSRF: true}, "")
	assert.Error(t, err)
}

func TestCORS(t *testing.T) {
	mw, err := Middleware(Options{CORS: CORSOptions{
		AllowedOrigins: []string{"https://app.example.com"},
		MaxAge:         300,
	}}, secret)
	require.NoError(t, err)
	called := false
	h := mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	pre := httptest.NewRequest(http.MethodOptions, "/api", nil)
	pre.Header.Set("Origin", "https://app.example.com")
	pre.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, pre)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "POST", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "300", rec.Header().Get("Access-Control-Max-Age"))
	assert.False(t, called)

	other := httptest.NewRequest(http.MethodGet, "/api", nil)
	other.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, called)
}

func TestCORS_ExposedHeadersAndCredentials(t *testing.T) {
	mw, err := Middleware(Options{CORS: CORSOptions{
		AllowedOrigins:   []string{"https://*.example.com"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
	}}, secret)
	require.NoError(t, err)
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }))

	req := httptest.NewRequest(http.MethodGet, "/api", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://shop.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "X-Request-Id", rec.Header().Get("Access-Control-Expose-Headers"))
}

func TestCORS_WildcardWithCredentialsEchoesOrigin(t *testing.T) {
	mw, err := Middleware(Options{CORS: CORSOptions{
		AllowedOrigins:   []string{"*"},
		AllowCredentials: true,
	}}, secret)
	require.NoError(t, err)
	h := mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api", nil)
	req.Header.Set("Origin", "https://anywhere.test")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://anywhere.test", rec.Header().Get("Access-Control-Allow-Origin"))
}
