// Package i18n provides translated content to views.
//
// Providers are registered by name; the config selects one with
// i18n.module (default "content"). A provider plugs into the view layer as a
// locals provider, exposing the negotiated "locale" and a "t" function:
//
//	<h1>{{t "home.title"}}</h1>
//	<p>{{t "cart.items" .count}}</p>
package i18n

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
)

// DefaultModule is the provider used when i18n.module is unset.
const DefaultModule = "content"

// ErrUnknownProvider is returned when i18n.module names no registered
// provider.
var ErrUnknownProvider = errors.New("i18n: unknown provider")

// Config mirrors the i18n config block.
type Config struct {
	Module      string `mapstructure:"module"`
	ContentPath string `mapstructure:"contentPath"` // resolved against the app root by the caller
	Fallback    string `mapstructure:"fallback"`
	Cache       bool   `mapstructure:"cache"`
}

// Provider supplies per-request translation locals.
type Provider interface {
	Locals(r *http.Request) (data map[string]any, funcs map[string]any)
	Locales() []string
}

// Factory builds a provider from config.
type Factory func(Config) (Provider, error)

var (
	mu        sync.RWMutex
	providers = map[string]Factory{}
)

func init() {
	Register(DefaultModule, func(cfg Config) (Provider, error) { return NewContent(cfg) })
}

// Register makes a provider factory available under name.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	providers[name] = f
}

// Lookup returns the factory registered under name.
func Lookup(name string) (Factory, error) {
	if name == "" {
		name = DefaultModule
	}
	mu.RLock()
	defer mu.RUnlock()
	f, ok := providers[name]
	if !ok {
		names := make([]string, 0, len(providers))
		for n := range providers {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("%w %q (registered: %v)", ErrUnknownProvider, name, names)
	}
	return f, nil
}

// New looks up cfg.Module and builds the provider.
func New(cfg Config) (Provider, error) {
	f, err := Lookup(cfg.Module)
	if err != nil {
		return nil, err
	}
	return f(cfg)
}
