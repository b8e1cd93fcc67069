package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	m := New("test")
	mux := chi.NewRouter()
	mux.Use(m.Middleware())
	mux.Get("/users/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	for _, id := range []string{"1", "2"} {
		mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/"+id, nil))
	}

	got := testutil.ToFloat64(m.RequestTotal.WithLabelValues("GET", "/users/{id}", "201"))
	assert.Equal(t, float64(2), got)
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New("test"), New("test")
	a.Observe("GET", "/", 200, 10, time.Now())

	assert.Equal(t, float64(1), testutil.ToFloat64(a.RequestTotal.WithLabelValues("GET", "/", "200")))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.RequestTotal.WithLabelValues("GET", "/", "200")))
}

func TestObserveBuild(t *testing.T) {
	m := New("test")
	m.ObserveBuild("js", nil, time.Now())
	m.ObserveBuild("js", errors.New("syntax"), time.Now())

	assert.Equal(t, float64(1), testutil.ToFloat64(m.AssetBuilds.WithLabelValues("js", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AssetBuilds.WithLabelValues("js", "failed")))

	var nilReg *Registry
	assert.NotPanics(t, func() { nilReg.ObserveBuild("css", nil, time.Now()) })
}

func TestHandler(t *testing.T) {
	m := New("test")
	m.Observe("GET", "/", 200, 1, time.Now())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "test_http_requests_total"))
}
