package view

import (
	"bytes"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
)

// LocalsProvider contributes per-request view data and helper functions.
type LocalsProvider interface {
	Locals(r *http.Request) (data map[string]any, funcs map[string]any)
}

// LocalsFunc adapts a function to LocalsProvider.
type LocalsFunc func(r *http.Request) (map[string]any, map[string]any)

func (f LocalsFunc) Locals(r *http.Request) (map[string]any, map[string]any) { return f(r) }

// Manager renders views by name for the application. It holds the engine
// renderer, the view directory and the locals providers.
type Manager struct {
	ext      string
	dir      string
	renderer Renderer

	mu     sync.RWMutex
	locals []LocalsProvider
}

// NewManager binds renderer to the views under cfg.Dir.
func NewManager(cfg Config, renderer Renderer) *Manager {
	return &Manager{ext: cfg.Ext, dir: cfg.Dir, renderer: renderer}
}

// Ext is the registered view extension.
func (m *Manager) Ext() string { return m.ext }

// Dir is the absolute view lookup directory.
func (m *Manager) Dir() string { return m.dir }

// Cache reports the manager-level view cache, which is always off: caching
// belongs to the engine or the translation layer.
func (m *Manager) Cache() bool { return false }

// Use adds a locals provider. Later providers override earlier ones.
func (m *Manager) Use(p LocalsProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locals = append(m.locals, p)
}

// Path maps a view name to its file. Names cannot escape the view
// directory.
func (m *Manager) Path(name string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(name))
	if !strings.HasSuffix(clean, "."+m.ext) {
		clean += "." + m.ext
	}
	return filepath.Join(m.dir, clean), nil
}

// Render renders the named view with status 200.
func (m *Manager) Render(w http.ResponseWriter, r *http.Request, name string, data map[string]any) error {
	return m.RenderStatus(w, r, http.StatusOK, name, data)
}

// RenderStatus renders the named view. The view is rendered to a buffer
// first; on error nothing is written.
func (m *Manager) RenderStatus(w http.ResponseWriter, r *http.Request, status int, name string, data map[string]any) error {
	path, err := m.Path(name)
	if err != nil {
		return err
	}

	merged := map[string]any{}
	funcs := map[string]any{}
	m.mu.RLock()
	providers := m.locals
	m.mu.RUnlock()
	for _, p := range providers {
		d, f := p.Locals(r)
		for k, v := range d {
			merged[k] = v
		}
		for k, v := range f {
			funcs[k] = v
		}
	}
	for k, v := range data {
		merged[k] = v
	}

	var buf bytes.Buffer
	if err := m.renderer.Render(&buf, path, merged, funcs); err != nil {
		return fmt.Errorf("view: render %s: %w", name, err)
	}

	w.Header().Set("Content-Type", m.contentType())
	w.WriteHeader(status)
	_, err = buf.WriteTo(w)
	return err
}

func (m *Manager) contentType() string {
	if ct := mime.TypeByExtension("." + m.ext); ct != "" {
		return ct
	}
	return "text/html; charset=utf-8"
}
