// Package routes discovers and mounts the application's routes.
//
// Routes come from two places. Code modules register themselves from an
// init function:
//
//	func init() {
//	    routes.Register("/users", func(g *router.Group, d routes.Deps) error {
//	        g.Get("/", "users.index", listUsers)
//	        return nil
//	    })
//	}
//
// Route manifests are YAML or JSON files under the configured route
// directory. A file's location is its URL prefix: routes/admin/users.yaml
// mounts at /admin/users, and index files mount at their directory.
package routes

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/shashiranjanraj/appcore/pkg/router"
	"github.com/shashiranjanraj/appcore/pkg/view"
)

// Deps is what route modules get to build handlers with.
type Deps struct {
	Views  *view.Manager
	Logger *zap.Logger
}

// Func registers a module's routes on g, which is already scoped to the
// module's prefix.
type Func func(g *router.Group, d Deps) error

type module struct {
	prefix string
	fn     Func
}

var (
	mu      sync.Mutex
	modules []module
)

// Register adds a code module mounted at prefix.
func Register(prefix string, fn Func) {
	mu.Lock()
	defer mu.Unlock()
	modules = append(modules, module{prefix: router.JoinPath(prefix), fn: fn})
}

// Registered lists the prefixes of registered code modules.
func Registered() []string {
	mu.Lock()
	defer mu.Unlock()
	out := make([]string, len(modules))
	for i, m := range modules {
		out[i] = m.prefix
	}
	return out
}

func snapshot() []module {
	mu.Lock()
	defer mu.Unlock()
	out := append([]module(nil), modules...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].prefix < out[j].prefix })
	return out
}

// Mount records the router layer on r, then mounts code modules followed by
// the manifests found under dir. A missing dir is not an error.
func Mount(r *router.Router, dir string, d Deps) error {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	r.UseRouter()

	for _, m := range snapshot() {
		if err := m.fn(r.Group(m.prefix), d); err != nil {
			return fmt.Errorf("routes: module %s: %w", m.prefix, err)
		}
	}

	manifests, err := discover(dir)
	if err != nil {
		return err
	}
	for _, mf := range manifests {
		if err := mf.mount(r, d); err != nil {
			return err
		}
	}
	d.Logger.Debug("routes mounted",
		zap.Int("modules", len(snapshot())),
		zap.Int("manifests", len(manifests)),
		zap.Int("routes", len(r.Routes())),
	)
	return nil
}
