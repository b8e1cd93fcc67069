// Package router wraps chi with the bookkeeping the bootstrapper needs:
// an ordered record of every layer registered on the pipeline, named routes,
// and a fallback chain for requests no route matched.
//
// Registration order matters. Middleware added with Use before UseRouter
// runs for every request, matched or not; middleware added after it only
// sees requests that no route matched (catch-alls, custom 404 pages).
// Routes may be registered at any point: they always sit behind every
// middleware layer. Boundary layers wrap the finished pipeline from the
// outside.
//
// chi refuses middleware after routes, so the pipeline is compiled lazily
// from the recorded layers the first time Handler serves a request.
package router

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

type Middleware func(http.Handler) http.Handler

// LayerKind says where a layer sits once the pipeline is compiled.
type LayerKind int

const (
	KindMiddleware LayerKind = iota // runs for every request
	KindRouter                      // the route table
	KindFallback                    // runs only for unmatched requests
	KindBoundary                    // wraps everything
)

func (k LayerKind) String() string {
	switch k {
	case KindMiddleware:
		return "middleware"
	case KindRouter:
		return "router"
	case KindFallback:
		return "fallback"
	case KindBoundary:
		return "boundary"
	}
	return fmt.Sprintf("LayerKind(%d)", int(k))
}

// Layer is one recorded registration.
type Layer struct {
	Name string
	Kind LayerKind
	mw   Middleware
}

// RouteInfo describes a registered route.
type RouteInfo struct {
	Method  string
	Pattern string
	Name    string
}

type route struct {
	RouteInfo
	handler http.Handler
}

type Router struct {
	mu       sync.RWMutex
	layers   []Layer
	routes   []route
	named    map[string]string
	routed   bool
	notFound http.Handler

	compiled http.Handler
	dirty    bool
}

type Group struct {
	router      *Router
	prefix      string
	middlewares []Middleware
}

func New() *Router {
	return &Router{
		named: make(map[string]string),
		dirty: true,
	}
}

// Use records anonymous middleware layers.
func (r *Router) Use(middlewares ...Middleware) {
	for _, mw := range middlewares {
		r.UseNamed("", mw)
	}
}

// UseNamed records a middleware layer under name. After UseRouter the layer
// joins the fallback chain instead.
func (r *Router) UseNamed(name string, mw Middleware) {
	if mw == nil {
		return
	}
	if name == "" {
		name = "anonymous"
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	kind := KindMiddleware
	if r.routed {
		kind = KindFallback
	}
	r.layers = append(r.layers, Layer{Name: name, Kind: kind, mw: mw})
	r.dirty = true
}

// Boundary records a layer that wraps the whole compiled pipeline, so it
// observes requests before (and failures after) every other layer.
// Boundaries added later sit further out.
func (r *Router) Boundary(name string, mw Middleware) {
	if mw == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.layers = append(r.layers, Layer{Name: name, Kind: KindBoundary, mw: mw})
	r.dirty = true
}

// UseRouter records the route-table layer and switches later layers to the
// fallback chain. Registering a route does not imply it. Calling it again
// is a no-op.
func (r *Router) UseRouter() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.routed {
		return
	}
	r.routed = true
	r.layers = append(r.layers, Layer{Name: "router", Kind: KindRouter})
	r.dirty = true
}

// NotFound sets the terminal handler of the fallback chain.
func (r *Router) NotFound(h http.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notFound = h
	r.dirty = true
}

// Layers returns the recorded layer names in registration order.
func (r *Router) Layers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.layers))
	for i, l := range r.layers {
		names[i] = l.Name
	}
	return names
}

// LayerKinds returns the recorded layers with their kinds.
func (r *Router) LayerKinds() []Layer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Layer(nil), r.layers...)
}

// Routes lists registered routes sorted by pattern then method.
func (r *Router) Routes() []RouteInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RouteInfo, len(r.routes))
	for i, rt := range r.routes {
		out[i] = rt.RouteInfo
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Pattern != out[j].Pattern {
			return out[i].Pattern < out[j].Pattern
		}
		return out[i].Method < out[j].Method
	})
	return out
}

func (r *Router) Group(prefix string, middlewares ...Middleware) *Group {
	return &Group{
		router:      r,
		prefix:      normalizePath(prefix),
		middlewares: append([]Middleware(nil), middlewares...),
	}
}

func (r *Router) Get(path, name string, handler http.HandlerFunc, middlewares ...Middleware) {
	r.mount(http.MethodGet, path, name, handler, middlewares...)
}

func (r *Router) Post(path, name string, handler http.HandlerFunc, middlewares ...Middleware) {
	r.mount(http.MethodPost, path, name, handler, middlewares...)
}

func (r *Router) Put(path, name string, handler http.HandlerFunc, middlewares ...Middleware) {
	r.mount(http.MethodPut, path, name, handler, middlewares...)
}

func (r *Router) Patch(path, name string, handler http.HandlerFunc, middlewares ...Middleware) {
	r.mount(http.MethodPatch, path, name, handler, middlewares...)
}

func (r *Router) Delete(path, name string, handler http.HandlerFunc, middlewares ...Middleware) {
	r.mount(http.MethodDelete, path, name, handler, middlewares...)
}

// Handle registers handler for an arbitrary method ("*" matches any).
func (r *Router) Handle(method, path, name string, handler http.Handler, middlewares ...Middleware) {
	r.mount(strings.ToUpper(method), path, name, handler, middlewares...)
}

func (r *Router) Path(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	path, ok := r.named[name]
	return path, ok
}

func (r *Router) URL(name string, params map[string]string) (string, error) {
	path, ok := r.Path(name)
	if !ok {
		return "", fmt.Errorf("route %q not found", name)
	}

	for key, value := range params {
		path = strings.ReplaceAll(path, "{"+key+"}", value)
	}

	if strings.Contains(path, "{") {
		return "", fmt.Errorf("missing parameters for route %q", name)
	}

	return path, nil
}

func (r *Router) mount(method, path, name string, handler http.Handler, middlewares ...Middleware) {
	r.add(method, normalizePath(path), name, chain(handler, middlewares...))
}

func (r *Router) add(method, fullPath, name string, h http.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.routes = append(r.routes, route{
		RouteInfo: RouteInfo{Method: method, Pattern: fullPath, Name: name},
		handler:   h,
	})
	r.dirty = true

	if name != "" {
		r.named[name] = fullPath
	}
}

// ServeHTTP makes Router an http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.Handler().ServeHTTP(w, req)
}

// Handler compiles the recorded layers into a single http.Handler. The
// result is cached until the next registration.
func (r *Router) Handler() http.Handler {
	r.mu.RLock()
	if !r.dirty {
		h := r.compiled
		r.mu.RUnlock()
		return h
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dirty {
		r.compiled = r.compileLocked()
		r.dirty = false
	}
	return r.compiled
}

// compileLocked wraps the mux in the middleware chain rather than calling
// mux.Use: chi skips its middleware entirely while no route is registered.
func (r *Router) compileLocked() http.Handler {
	mux := chi.NewRouter()

	var middlewares, fallback, boundaries []Middleware
	for _, l := range r.layers {
		switch l.Kind {
		case KindMiddleware:
			middlewares = append(middlewares, l.mw)
		case KindFallback:
			fallback = append(fallback, l.mw)
		case KindBoundary:
			boundaries = append(boundaries, l.mw)
		}
	}

	for _, rt := range r.routes {
		if rt.Method == "*" {
			mux.Handle(rt.Pattern, rt.handler)
			continue
		}
		mux.Method(rt.Method, rt.Pattern, rt.handler)
	}

	terminal := r.notFound
	if terminal == nil {
		terminal = http.NotFoundHandler()
	}
	unmatched := chain(terminal, fallback...)
	mux.NotFound(unmatched.ServeHTTP)
	mux.MethodNotAllowed(unmatched.ServeHTTP)

	h := withRouteContext(chain(mux, middlewares...))
	for _, b := range boundaries {
		h = b(h)
	}
	return h
}

// withRouteContext installs the chi routing context before the middleware
// chain runs. The mux fills it in place, so layers can read the matched
// pattern once the request returns to them.
func withRouteContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if chi.RouteContext(r.Context()) == nil {
			r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, chi.NewRouteContext()))
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Group) Group(prefix string, middlewares ...Middleware) *Group {
	joined := joinPath(g.prefix, prefix)
	combined := append(append([]Middleware(nil), g.middlewares...), middlewares...)

	return &Group{
		router:      g.router,
		prefix:      joined,
		middlewares: combined,
	}
}

func (g *Group) Get(path, name string, handler http.HandlerFunc, middlewares ...Middleware) {
	g.mount(http.MethodGet, path, name, handler, middlewares...)
}

func (g *Group) Post(path, name string, handler http.HandlerFunc, middlewares ...Middleware) {
	g.mount(http.MethodPost, path, name, handler, middlewares...)
}

func (g *Group) Put(path, name string, handler http.HandlerFunc, middlewares ...Middleware) {
	g.mount(http.MethodPut, path, name, handler, middlewares...)
}

func (g *Group) Patch(path, name string, handler http.HandlerFunc, middlewares ...Middleware) {
	g.mount(http.MethodPatch, path, name, handler, middlewares...)
}

func (g *Group) Delete(path, name string, handler http.HandlerFunc, middlewares ...Middleware) {
	g.mount(http.MethodDelete, path, name, handler, middlewares...)
}

// Prefix is the group's path prefix.
func (g *Group) Prefix() string { return g.prefix }

func (g *Group) Handle(method, path, name string, handler http.Handler, middlewares ...Middleware) {
	g.mount(strings.ToUpper(method), path, name, handler, middlewares...)
}

func (g *Group) mount(method, path, name string, handler http.Handler, middlewares ...Middleware) {
	combined := append(append([]Middleware(nil), g.middlewares...), middlewares...)
	g.router.add(method, joinPath(g.prefix, path), name, chain(handler, combined...))
}

func chain(handler http.Handler, middlewares ...Middleware) http.Handler {
	if len(middlewares) == 0 {
		return handler
	}

	wrapped := handler
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}

	return wrapped
}

// JoinPath joins URL path segments into a clean absolute path.
func JoinPath(parts ...string) string { return joinPath(parts...) }

func joinPath(parts ...string) string {
	if len(parts) == 0 {
		return "/"
	}

	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.Trim(part, "/")
		if trimmed != "" {
			segments = append(segments, trimmed)
		}
	}

	if len(segments) == 0 {
		return "/"
	}

	return "/" + strings.Join(segments, "/")
}

func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	return joinPath(path)
}
