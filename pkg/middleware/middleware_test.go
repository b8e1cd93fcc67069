package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/shashiranjanraj/appcore/pkg/errorhandler"
	"github.com/shashiranjanraj/appcore/pkg/logger"
	"github.com/shashiranjanraj/appcore/pkg/metrics"
	"github.com/shashiranjanraj/appcore/pkg/reqid"
)

func teapot() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
}

func TestFavicon(t *testing.T) {
	dir := t.TempDir()
	icon := filepath.Join(dir, "favicon.ico")
	require.NoError(t, os.WriteFile(icon, []byte("ICON"), 0o644))
	h := Favicon(FaviconOptions{Path: icon, MaxAge: 60})(teapot())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/favicon.ico", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ICON", rec.Body.String())
	assert.Equal(t, "public, max-age=60", rec.Header().Get("Cache-Control"))

	req := httptest.NewRequest(http.MethodGet, "/favicon.ico", nil)
	req.Header.Set("If-None-Match", rec.Header().Get("ETag"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/favicon.ico", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/other", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestFavicon_Missing(t *testing.T) {
	h := Favicon(FaviconOptions{Path: filepath.Join(t.TempDir(), "none.ico")})(teapot())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/favicon.ico", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestStatic(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "css"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "css", "app.css"), []byte("body{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "index.html"), []byte("<p>docs</p>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("SECRET=1"), 0o644))
	h := Static(root)(teapot())

	tests := []struct {
		method, path string
		want         int
		body         string
	}{
		{http.MethodGet, "/css/app.css", http.StatusOK, "body{}"},
		{http.MethodGet, "/docs/", http.StatusOK, "<p>docs</p>"},
		{http.MethodGet, "/css", http.StatusTeapot, ""},
		{http.MethodGet, "/missing.js", http.StatusTeapot, ""},
		{http.MethodGet, "/.env", http.StatusTeapot, ""},
		{http.MethodGet, "/../../etc/passwd", http.StatusTeapot, ""},
		{http.MethodPost, "/css/app.css", http.StatusTeapot, ""},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		assert.Equal(t, tt.want, rec.Code, tt.path)
		if tt.body != "" {
			assert.Equal(t, tt.body, rec.Body.String(), tt.path)
		}
	}
}

func TestLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	m := metrics.New("test")

	var ctxLogged bool
	mux := chi.NewRouter()
	mux.Use(Logger(LoggerOptions{Level: "info", Skip: []string{"/health"}, Metrics: true}, zap.New(core), m))
	mux.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, reqid.FromCtx(r.Context()))
		logger.WithCtx(r.Context()).Info("inside")
		ctxLogged = true
		w.WriteHeader(http.StatusCreated)
	})
	mux.Get("/health", func(w http.ResponseWriter, _ *http.Request) {})

	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/9", nil))
	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	require.True(t, ctxLogged)
	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/items/9", fields["path"])
	assert.Equal(t, int64(201), fields["status"])
	assert.NotEmpty(t, fields["request_id"])

	inside := logs.FilterMessage("inside").All()
	require.Len(t, inside, 1)
	assert.Equal(t, fields["request_id"], inside[0].ContextMap()["request_id"])

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestTotal.WithLabelValues("GET", "/items/{id}", "201")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestTotal.WithLabelValues("GET", "/health", "200")))
}

func TestLogger_RecordsBoundaryFailures(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	m := metrics.New("test")

	app := http.NewServeMux()
	app.HandleFunc("/fail", func(w http.ResponseWriter, r *http.Request) {
		errorhandler.Fail(w, r, errors.New("db down"))
	})
	app.HandleFunc("/boom", func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	})
	h := errorhandler.New(errorhandler.Options{}, nil, nil).Middleware()(
		Logger(LoggerOptions{Metrics: true}, zap.New(core), m)(app),
	)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fail", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, zap.ErrorLevel, e.Level)
		assert.Equal(t, int64(500), e.ContextMap()["status"])
	}
	assert.Equal(t, "db down", entries[0].ContextMap()["error"])
	assert.Equal(t, "panic: kaboom", entries[1].ContextMap()["error"])

	assert.Equal(t, float64(2), testutil.ToFloat64(m.RequestTotal.WithLabelValues("GET", "unmatched", "500")))
}

func TestLogger_RejectedRequestKeepsLevel(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	h := errorhandler.New(errorhandler.Options{}, nil, nil).Middleware()(
		Logger(LoggerOptions{}, zap.New(core), nil)(errorhandler.NotFoundHandler()),
	)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, int64(404), entries[0].ContextMap()["status"])
}
