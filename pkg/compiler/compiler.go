// Package compiler builds static assets on demand.
//
// A request for /js/app.js under the static root is satisfied from the
// source root: app.ts, app.tsx, app.jsx or app.js is bundled with esbuild
// into <staticRoot>/js/app.js. Stylesheets are bundled (resolving @import)
// the same way, and any other file is copied verbatim. An output is rebuilt
// only when its entry source is newer. The static layer then serves the
// result.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/shashiranjanraj/appcore/pkg/errorhandler"
	"github.com/shashiranjanraj/appcore/pkg/logger"
	"github.com/shashiranjanraj/appcore/pkg/metrics"
	"github.com/shashiranjanraj/appcore/pkg/middleware"
)

// Options mirrors the compiler config block.
type Options struct {
	Enabled bool     `mapstructure:"enabled"`
	Copy    bool     `mapstructure:"copy"`    // copy files no rule builds
	Minify  bool     `mapstructure:"minify"`  // minify scripts and stylesheets
	Exclude []string `mapstructure:"exclude"` // directories never built or copied
}

// scriptSources lists, in priority order, the sources a .js output may
// come from.
var scriptSources = []string{".ts", ".tsx", ".jsx", ".js"}

type Compiler struct {
	src, dst string
	exclude  []string
	opts     Options
	log      *zap.Logger
	metrics  *metrics.Registry
	group    singleflight.Group
}

// New returns a compiler reading from srcRoot and writing to staticRoot.
// log and m may be nil.
func New(srcRoot, staticRoot string, opts Options, log *zap.Logger, m *metrics.Registry) *Compiler {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Compiler{src: absPath(srcRoot), dst: absPath(staticRoot), opts: opts, log: log, metrics: m}
	for _, dir := range opts.Exclude {
		if dir != "" {
			c.exclude = append(c.exclude, absPath(dir))
		}
	}
	return c
}

// excluded reports whether p lies in an excluded directory.
func (c *Compiler) excluded(p string) bool {
	for _, dir := range c.exclude {
		rel, err := filepath.Rel(dir, p)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Result describes one build.
type Result struct {
	Name    string // request path, e.g. /js/app.js
	Source  string
	Output  string
	Kind    string // js, css or copy
	Rebuilt bool
}

// Middleware builds the requested asset, if it has a source, and falls
// through so the static layer can serve it.
func (c *Compiler) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !c.opts.Enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			if _, err := c.Build(r.Context(), r.URL.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				logger.WithCtx(r.Context()).Error("asset build failed", zap.String("path", r.URL.Path), zap.Error(err))
				errorhandler.Fail(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Build produces the output for the request path name. It returns an
// error wrapping fs.ErrNotExist when name has no source. Concurrent builds
// of the same name share one run.
func (c *Compiler) Build(ctx context.Context, name string) (Result, error) {
	clean := path.Clean("/" + name)
	if middleware.Hidden(clean) {
		return Result{}, fmt.Errorf("compiler: %s: %w", clean, fs.ErrNotExist)
	}
	v, err, _ := c.group.Do(clean, func() (any, error) {
		return c.build(ctx, clean)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (c *Compiler) build(_ context.Context, name string) (Result, error) {
	rel := filepath.FromSlash(strings.TrimPrefix(name, "/"))
	res := Result{Name: name, Output: filepath.Join(c.dst, rel)}

	src, kind, err := c.source(rel)
	if err != nil {
		return res, err
	}
	res.Source, res.Kind = src, kind

	fresh, err := upToDate(src, res.Output)
	if err != nil {
		return res, err
	}
	if fresh {
		return res, nil
	}

	start := time.Now()
	switch kind {
	case "js", "css":
		err = c.bundle(src, res.Output, kind)
	default:
		err = copyFile(src, res.Output)
	}
	c.metrics.ObserveBuild(kind, err, start)
	if err != nil {
		return res, err
	}
	res.Rebuilt = true
	c.log.Debug("asset built",
		zap.String("source", src),
		zap.String("output", res.Output),
		zap.String("kind", kind),
		zap.Duration("took", time.Since(start)),
	)
	return res, nil
}

// source finds the file that builds rel.
func (c *Compiler) source(rel string) (string, string, error) {
	ext := strings.ToLower(filepath.Ext(rel))
	switch ext {
	case ".js":
		stem := strings.TrimSuffix(rel, filepath.Ext(rel))
		for _, se := range scriptSources {
			if p := filepath.Join(c.src, stem+se); isFile(p) && !c.excluded(p) {
				return p, "js", nil
			}
		}
	case ".css":
		if p := filepath.Join(c.src, rel); isFile(p) && !c.excluded(p) {
			return p, "css", nil
		}
	default:
		if p := filepath.Join(c.src, rel); c.opts.Copy && isFile(p) && !isSourceOnly(p) && !c.excluded(p) {
			return p, "copy", nil
		}
	}
	return "", "", fmt.Errorf("compiler: no source for %s: %w", rel, fs.ErrNotExist)
}

func (c *Compiler) bundle(src, out, kind string) error {
	opts := api.BuildOptions{
		EntryPoints:       []string{src},
		Outfile:           out,
		Bundle:            true,
		Write:             false,
		LogLevel:          api.LogLevelSilent,
		MinifyWhitespace:  c.opts.Minify,
		MinifyIdentifiers: c.opts.Minify,
		MinifySyntax:      c.opts.Minify,
		AbsWorkingDir:     c.src,
	}
	if kind == "js" {
		opts.Format = api.FormatIIFE
		opts.Platform = api.PlatformBrowser
		opts.Target = api.ES2017
	}

	result := api.Build(opts)
	if len(result.Errors) > 0 {
		return buildError(src, result.Errors)
	}
	for _, f := range result.OutputFiles {
		if f.Path == out {
			return writeAtomic(out, f.Contents)
		}
	}
	return fmt.Errorf("compiler: esbuild produced no output for %s", src)
}

func buildError(src string, msgs []api.Message) error {
	m := msgs[0]
	if m.Location != nil {
		return fmt.Errorf("compiler: %s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text)
	}
	return fmt.Errorf("compiler: %s: %s", src, m.Text)
}

// BuildAll builds every output the source root can produce, several at a
// time. Results are in walk order.
func (c *Compiler) BuildAll(ctx context.Context) ([]Result, error) {
	var names []string
	err := filepath.WalkDir(c.src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if p != c.src && (strings.HasPrefix(d.Name(), ".") || c.excluded(p)) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(c.src, p)
		if err != nil {
			return err
		}
		if name, ok := c.outputName(rel); ok {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	built := make([]*Result, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			res, err := c.Build(gctx, name)
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			if err != nil {
				return err
			}
			built[i] = &res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(built))
	for _, r := range built {
		if r != nil {
			results = append(results, *r)
		}
	}
	return results, nil
}

// outputName maps a source file to the request path of its output.
func (c *Compiler) outputName(rel string) (string, bool) {
	base := filepath.Base(rel)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "_") {
		return "", false
	}
	ext := strings.ToLower(filepath.Ext(rel))
	switch ext {
	case ".ts", ".tsx", ".jsx", ".js":
		if strings.HasSuffix(rel, ".d.ts") {
			return "", false
		}
		return "/" + filepath.ToSlash(strings.TrimSuffix(rel, filepath.Ext(rel))+".js"), true
	case ".css":
		return "/" + filepath.ToSlash(rel), true
	}
	if !c.opts.Copy {
		return "", false
	}
	return "/" + filepath.ToSlash(rel), true
}

// isSourceOnly reports sources that are compiled, never copied.
func isSourceOnly(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".ts", ".tsx", ".jsx":
		return true
	}
	return false
}

func upToDate(src, out string) (bool, error) {
	si, err := os.Stat(src)
	if err != nil {
		return false, err
	}
	oi, err := os.Stat(out)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !si.ModTime().After(oi.ModTime()), nil
}

func copyFile(src, out string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	body, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	return writeAtomic(out, body)
}

func writeAtomic(out string, body []byte) error {
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("compiler: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(out), ".build-*")
	if err != nil {
		return fmt.Errorf("compiler: %w", err)
	}
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("compiler: write %s: %w", out, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), out)
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
