package app

import (
	"context"

	"github.com/shashiranjanraj/appcore/config"
	"github.com/shashiranjanraj/appcore/pkg/router"
)

// A delegate is any value passed to New or Start. The App checks it for the
// capabilities below and calls the ones it implements; it never modifies
// the delegate itself.

// Configurer adjusts the loaded configuration before anything is built.
// Configure may block on its own work. Returning a nil config keeps cfg;
// returning an error aborts Init.
type Configurer interface {
	Configure(ctx context.Context, cfg *config.Config) (*config.Config, error)
}

// RequestStarter runs after the logger layer, before body and session
// parsing.
type RequestStarter interface {
	RequestStart(r *router.Router)
}

// BeforeRouter runs after the security layer, before routes are mounted.
type BeforeRouter interface {
	RequestBeforeRoute(r *router.Router)
}

// AfterRouter runs after routes are mounted. Middleware it adds only sees
// requests no route matched.
type AfterRouter interface {
	RequestAfterRoute(r *router.Router)
}

// Hooks is a delegate built from plain functions. Nil fields are skipped.
type Hooks struct {
	OnConfigure          func(ctx context.Context, cfg *config.Config) (*config.Config, error)
	OnRequestStart       func(r *router.Router)
	OnRequestBeforeRoute func(r *router.Router)
	OnRequestAfterRoute  func(r *router.Router)
}

func (h Hooks) Configure(ctx context.Context, cfg *config.Config) (*config.Config, error) {
	if h.OnConfigure == nil {
		return cfg, nil
	}
	return h.OnConfigure(ctx, cfg)
}

func (h Hooks) RequestStart(r *router.Router) {
	if h.OnRequestStart != nil {
		h.OnRequestStart(r)
	}
}

func (h Hooks) RequestBeforeRoute(r *router.Router) {
	if h.OnRequestBeforeRoute != nil {
		h.OnRequestBeforeRoute(r)
	}
}

func (h Hooks) RequestAfterRoute(r *router.Router) {
	if h.OnRequestAfterRoute != nil {
		h.OnRequestAfterRoute(r)
	}
}

var (
	_ Configurer     = Hooks{}
	_ RequestStarter = Hooks{}
	_ BeforeRouter   = Hooks{}
	_ AfterRouter    = Hooks{}
)
