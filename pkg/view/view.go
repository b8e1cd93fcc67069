// Package view resolves the configured view engine and renders views.
//
// Engines live in a registry keyed by module name. A module maps file
// extensions to a Source, which is either a ready Renderer (Direct) or a
// Factory that builds one from the engine config:
//
//	view.Register("markdown", view.Module{
//	    "md": view.Factory(func(cfg view.Config) (view.Renderer, error) { … }),
//	})
//
// The built-in modules are "html/template", "text/template" and "json".
package view

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
)

var (
	// ErrUnknownModule is returned for a viewEngine.module nobody registered.
	ErrUnknownModule = errors.New("view: unknown engine module")
	// ErrUnknownExt is returned when a module has no renderer for viewEngine.ext.
	ErrUnknownExt = errors.New("view: engine has no renderer for extension")
)

// Config mirrors the viewEngine config block.
type Config struct {
	Module       string `mapstructure:"module"`
	Ext          string `mapstructure:"ext"`
	Cache        bool   `mapstructure:"cache"`
	TemplatePath string `mapstructure:"templatePath"`

	// Dir is TemplatePath resolved against the application root.
	Dir string `mapstructure:"-"`
}

// Renderer writes the view at path. funcs are per-request helpers (such as
// the translation function) that template engines expose to the view.
type Renderer interface {
	Render(w io.Writer, path string, data map[string]any, funcs map[string]any) error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(w io.Writer, path string, data map[string]any, funcs map[string]any) error

func (f RendererFunc) Render(w io.Writer, path string, data map[string]any, funcs map[string]any) error {
	return f(w, path, data, funcs)
}

// Source is how a module provides the renderer for one extension. It is
// either Direct or Factory.
type Source interface {
	source()
}

// Direct is a renderer used as-is.
type Direct struct {
	Renderer Renderer
}

func (Direct) source() {}

// Factory builds a renderer from the engine config.
type Factory func(Config) (Renderer, error)

func (Factory) source() {}

// Module maps file extensions to renderer sources.
type Module map[string]Source

var (
	mu       sync.RWMutex
	registry = map[string]Module{}
)

// Register makes a module available under name, replacing any previous one.
func Register(name string, m Module) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = m
}

// Lookup returns the module registered under name.
func Lookup(name string) (Module, error) {
	mu.RLock()
	defer mu.RUnlock()
	m, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (registered: %v)", ErrUnknownModule, name, modulesLocked())
	}
	return m, nil
}

// Modules lists the registered module names.
func Modules() []string {
	mu.RLock()
	defer mu.RUnlock()
	return modulesLocked()
}

func modulesLocked() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve finds the renderer for cfg.Module and cfg.Ext, invoking the
// factory when the source is one.
func Resolve(cfg Config) (Renderer, error) {
	m, err := Lookup(cfg.Module)
	if err != nil {
		return nil, err
	}
	src, ok := m[cfg.Ext]
	if !ok {
		return nil, fmt.Errorf("%w: module %q, ext %q", ErrUnknownExt, cfg.Module, cfg.Ext)
	}

	switch s := src.(type) {
	case Direct:
		if s.Renderer == nil {
			return nil, fmt.Errorf("view: module %q registered a nil renderer for %q", cfg.Module, cfg.Ext)
		}
		return s.Renderer, nil
	case Factory:
		r, err := s(cfg)
		if err != nil {
			return nil, fmt.Errorf("view: build %s renderer for %q: %w", cfg.Module, cfg.Ext, err)
		}
		return r, nil
	}
	return nil, fmt.Errorf("view: module %q has an unsupported source for %q", cfg.Module, cfg.Ext)
}
