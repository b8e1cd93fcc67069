package view

import (
	htmltemplate "html/template"
	"io"
	"os"
	"path/filepath"
	"sync"
	texttemplate "text/template"

	"github.com/microcosm-cc/bluemonday"
)

func init() {
	html := Factory(newHTMLRenderer)
	Register("html/template", Module{"html": html, "gohtml": html, "tmpl": html})

	text := Factory(newTextRenderer)
	Register("text/template", Module{"txt": text, "tmpl": text})

	Register("json", Module{"json": Direct{Renderer: RendererFunc(renderJSON)}})
}

// placeholderFuncs keeps per-request helpers parseable; the real functions
// are bound on every render.
var placeholderFuncs = map[string]any{
	"t": func(key string, args ...any) string { return key },
}

var ugc = bluemonday.UGCPolicy()

// templateSet caches parsed templates by path when enabled.
type templateSet[T any] struct {
	cache  bool
	mu     sync.Mutex
	parsed map[string]T
	parse  func(path string) (T, error)
}

func (s *templateSet[T]) get(path string) (T, error) {
	if !s.cache {
		return s.parse(path)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.parsed[path]; ok {
		return t, nil
	}
	t, err := s.parse(path)
	if err != nil {
		return t, err
	}
	s.parsed[path] = t
	return t, nil
}

// partials returns the shared templates under <dir>/partials.
func partials(cfg Config) []string {
	if cfg.Dir == "" {
		return nil
	}
	matches, _ := filepath.Glob(filepath.Join(cfg.Dir, "partials", "*."+cfg.Ext))
	return matches
}

type htmlRenderer struct {
	set *templateSet[*htmltemplate.Template]
}

func newHTMLRenderer(cfg Config) (Renderer, error) {
	base := htmltemplate.FuncMap{
		// sanitize strips user HTML down to a safe subset.
		"sanitize": func(s string) htmltemplate.HTML {
			return htmltemplate.HTML(ugc.Sanitize(s)) //nolint:gosec
		},
	}
	for k, v := range placeholderFuncs {
		base[k] = v
	}

	r := &htmlRenderer{set: &templateSet[*htmltemplate.Template]{
		cache:  cfg.Cache,
		parsed: map[string]*htmltemplate.Template{},
	}}
	r.set.parse = func(path string) (*htmltemplate.Template, error) {
		if _, err := os.Stat(path); err != nil {
			return nil, err
		}
		files := append([]string{path}, partials(cfg)...)
		return htmltemplate.New(filepath.Base(path)).Funcs(base).ParseFiles(files...)
	}
	return r, nil
}

func (r *htmlRenderer) Render(w io.Writer, path string, data map[string]any, funcs map[string]any) error {
	t, err := r.set.get(path)
	if err != nil {
		return err
	}
	// html/template refuses to clone an executed template, so the cached
	// original is never executed.
	if t, err = t.Clone(); err != nil {
		return err
	}
	if len(funcs) > 0 {
		t.Funcs(htmltemplate.FuncMap(funcs))
	}
	return t.ExecuteTemplate(w, filepath.Base(path), data)
}

type textRenderer struct {
	set *templateSet[*texttemplate.Template]
}

func newTextRenderer(cfg Config) (Renderer, error) {
	base := texttemplate.FuncMap{}
	for k, v := range placeholderFuncs {
		base[k] = v
	}

	r := &textRenderer{set: &templateSet[*texttemplate.Template]{
		cache:  cfg.Cache,
		parsed: map[string]*texttemplate.Template{},
	}}
	r.set.parse = func(path string) (*texttemplate.Template, error) {
		if _, err := os.Stat(path); err != nil {
			return nil, err
		}
		files := append([]string{path}, partials(cfg)...)
		return texttemplate.New(filepath.Base(path)).Funcs(base).ParseFiles(files...)
	}
	return r, nil
}

func (r *textRenderer) Render(w io.Writer, path string, data map[string]any, funcs map[string]any) error {
	t, err := r.set.get(path)
	if err != nil {
		return err
	}
	if len(funcs) > 0 {
		if t, err = t.Clone(); err != nil {
			return err
		}
		t.Funcs(texttemplate.FuncMap(funcs))
	}
	return t.ExecuteTemplate(w, filepath.Base(path), data)
}
