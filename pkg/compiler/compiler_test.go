package compiler

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/appcore/pkg/metrics"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func setup(t *testing.T, opts Options) (src, dst string, c *Compiler, m *metrics.Registry) {
	t.Helper()
	src, dst = t.TempDir(), t.TempDir()
	m = metrics.New("test")
	return src, dst, New(src, dst, opts, nil, m), m
}

func TestBuild_TypeScript(t *testing.T) {
	src, dst, c, _ := setup(t, Options{Enabled: true})
	writeFile(t, filepath.Join(src, "js", "util.ts"), "export const twice = (n: number): number => n * 2;\n")
	writeFile(t, filepath.Join(src, "js", "app.ts"), "import { twice } from './util';\nconsole.log(twice(21));\n")

	res, err := c.Build(context.Background(), "/js/app.js")
	require.NoError(t, err)
	assert.True(t, res.Rebuilt)
	assert.Equal(t, "js", res.Kind)

	out, err := os.ReadFile(filepath.Join(dst, "js", "app.js"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "console.log")
	assert.NotContains(t, string(out), ": number")
}

func TestBuild_CSSMinified(t *testing.T) {
	src, dst, c, _ := setup(t, Options{Enabled: true, Minify: true})
	writeFile(t, filepath.Join(src, "css", "base.css"), "body {\n  margin: 0;\n}\n")
	writeFile(t, filepath.Join(src, "css", "app.css"), "@import \"./base.css\";\nh1 {\n  color: red;\n}\n")

	_, err := c.Build(context.Background(), "/css/app.css")
	require.NoError(t, err)

	out, err := os.ReadFile(filepath.Join(dst, "css", "app.css"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "margin:0")
	assert.Contains(t, string(out), "h1{color:red}")
}

func TestBuild_RebuildsOnlyWhenSourceIsNewer(t *testing.T) {
	src, dst, c, m := setup(t, Options{Enabled: true, Copy: true})
	writeFile(t, filepath.Join(src, "img", "logo.svg"), "<svg/>")
	ctx := context.Background()

	res, err := c.Build(ctx, "/img/logo.svg")
	require.NoError(t, err)
	assert.True(t, res.Rebuilt)

	res, err = c.Build(ctx, "/img/logo.svg")
	require.NoError(t, err)
	assert.False(t, res.Rebuilt)

	future := time.Now().Add(time.Hour)
	writeFile(t, filepath.Join(src, "img", "logo.svg"), "<svg id=\"v2\"/>")
	require.NoError(t, os.Chtimes(filepath.Join(src, "img", "logo.svg"), future, future))

	res, err = c.Build(ctx, "/img/logo.svg")
	require.NoError(t, err)
	assert.True(t, res.Rebuilt)
	out, _ := os.ReadFile(filepath.Join(dst, "img", "logo.svg"))
	assert.Equal(t, "<svg id=\"v2\"/>", string(out))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.AssetBuilds.WithLabelValues("copy", "success")))
}

func TestBuild_NoSource(t *testing.T) {
	src, _, c, _ := setup(t, Options{Enabled: true})
	writeFile(t, filepath.Join(src, "notes.txt"), "copy is off")

	for _, name := range []string{"/missing.js", "/notes.txt", "/.env", "/"} {
		_, err := c.Build(context.Background(), name)
		assert.True(t, errors.Is(err, fs.ErrNotExist), name)
	}
}

func TestBuild_SyntaxError(t *testing.T) {
	src, _, c, m := setup(t, Options{Enabled: true})
	writeFile(t, filepath.Join(src, "broken.ts"), "const = ;\n")

	_, err := c.Build(context.Background(), "/broken.js")
	require.Error(t, err)
	assert.False(t, errors.Is(err, fs.ErrNotExist))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AssetBuilds.WithLabelValues("js", "failed")))
}

func TestBuild_ConcurrentRequestsShareOneBuild(t *testing.T) {
	src, _, c, m := setup(t, Options{Enabled: true, Copy: true})
	writeFile(t, filepath.Join(src, "big.bin"), string(make([]byte, 1<<16)))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Build(context.Background(), "/big.bin")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AssetBuilds.WithLabelValues("copy", "success")))
}

func TestMiddleware(t *testing.T) {
	src, dst, c, _ := setup(t, Options{Enabled: true})
	writeFile(t, filepath.Join(src, "app.js"), "console.log('hi')\n")
	writeFile(t, filepath.Join(src, "bad.ts"), "let = ;\n")

	var reached int
	h := c.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { reached++ }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app.js", nil))
	assert.Equal(t, 1, reached)
	assert.FileExists(t, filepath.Join(dst, "app.js"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nothing.js", nil))
	assert.Equal(t, 2, reached)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bad.js", nil))
	assert.Equal(t, 2, reached)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMiddleware_Disabled(t *testing.T) {
	src, dst, c, _ := setup(t, Options{Enabled: false})
	writeFile(t, filepath.Join(src, "app.js"), "1\n")

	h := c.Middleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/app.js", nil))
	assert.NoFileExists(t, filepath.Join(dst, "app.js"))
}

func TestBuildAll(t *testing.T) {
	src, dst, c, _ := setup(t, Options{Enabled: true, Copy: true})
	writeFile(t, filepath.Join(src, "js", "app.tsx"), "export const el = <div/>;\n")
	writeFile(t, filepath.Join(src, "js", "_private.ts"), "export {}\n")
	writeFile(t, filepath.Join(src, "css", "app.css"), "a{}\n")
	writeFile(t, filepath.Join(src, "robots.txt"), "User-agent: *\n")
	writeFile(t, filepath.Join(src, ".git", "HEAD"), "ref")

	results, err := c.BuildAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, results, 3)

	assert.FileExists(t, filepath.Join(dst, "js", "app.js"))
	assert.FileExists(t, filepath.Join(dst, "css", "app.css"))
	assert.FileExists(t, filepath.Join(dst, "robots.txt"))
	assert.NoFileExists(t, filepath.Join(dst, "js", "_private.js"))
	assert.NoDirExists(t, filepath.Join(dst, ".git"))
}

func TestBuild_ExcludedDirsAreNeverPublished(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(src, "templates", "account.html"), "{{/* internal */}}<p>{{.apiKey}}</p>")
	writeFile(t, filepath.Join(src, "templates", "widget.js"), "console.log(1);\n")
	writeFile(t, filepath.Join(src, "robots.txt"), "User-agent: *\n")
	c := New(src, dst, Options{Enabled: true, Copy: true, Exclude: []string{filepath.Join(src, "templates")}}, nil, nil)

	_, err := c.Build(context.Background(), "/templates/account.html")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, err = c.Build(context.Background(), "/templates/widget.js")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	results, err := c.BuildAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "/robots.txt", results[0].Name)
	assert.NoFileExists(t, filepath.Join(dst, "templates", "account.html"))
}
