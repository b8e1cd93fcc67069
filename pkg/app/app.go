// Package app bootstraps an HTTP application from configuration.
//
// An App moves through four states, never backwards:
//
//	Created → Configured → Listening → Stopped
//
// Init loads the configuration, lets the delegate adjust it, then builds
// the views and the middleware chain in a fixed order:
//
//	favicon, compiler, static, logger, [RequestStart],
//	bodyParser, cookieParser, session, appsec, [RequestBeforeRoute],
//	router, [RequestAfterRoute], errorHandler
//
// Minimal usage:
//
//	a, err := app.Start(ctx, app.Hooks{
//	    OnRequestBeforeRoute: func(r *router.Router) {
//	        r.Get("/healthz", "health", healthz)
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer app.Stop(context.Background(), a)
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/shashiranjanraj/appcore/config"
	"github.com/shashiranjanraj/appcore/internal/server"
	"github.com/shashiranjanraj/appcore/pkg/agent"
	"github.com/shashiranjanraj/appcore/pkg/i18n"
	"github.com/shashiranjanraj/appcore/pkg/logger"
	"github.com/shashiranjanraj/appcore/pkg/metrics"
	"github.com/shashiranjanraj/appcore/pkg/router"
	"github.com/shashiranjanraj/appcore/pkg/session"
	"github.com/shashiranjanraj/appcore/pkg/view"
)

var (
	// ErrNotRunning is returned when stopping an application that is not
	// listening.
	ErrNotRunning = errors.New("application not initialized")
	// ErrInvalidState is returned when a lifecycle method is called out of
	// order.
	ErrInvalidState = errors.New("app: invalid state")
)

// State is a lifecycle stage.
type State int

const (
	Created State = iota
	Configured
	Listening
	Stopped
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Configured:
		return "configured"
	case Listening:
		return "listening"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Settings are the application-level switches applied during Init.
type Settings struct {
	PoweredBy  bool   // never advertised
	Env        string // env.env
	ViewEngine string // registered view extension
	ViewCache  bool   // framework view cache; always false
	Views      string // absolute view directory

	// Engine is the view engine config after the i18n cache swap.
	Engine view.Config
	// I18n is the translation config after the swap, nil when absent.
	I18n *i18n.Config
}

// Option customises New.
type Option func(*App)

// WithRoot sets the application root. It defaults to $APPCORE_ROOT, then
// the working directory.
func WithRoot(root string) Option {
	return func(a *App) { a.cfgOpts.Root = root }
}

// WithLogger sets the base logger instead of building one from log.*.
// Either way Init installs it as the process default (logger.L).
func WithLogger(log *zap.Logger) Option {
	return func(a *App) { a.log = log }
}

// WithConfigOptions overrides where configuration is read from.
func WithConfigOptions(opts config.Options) Option {
	return func(a *App) {
		root := a.cfgOpts.Root
		a.cfgOpts = opts
		if opts.Root == "" {
			a.cfgOpts.Root = root
		}
	}
}

// WithConfig skips loading and uses cfg as the loaded configuration. The
// delegate's Configure still runs.
func WithConfig(cfg *config.Config) Option {
	return func(a *App) { a.preloaded = cfg }
}

type App struct {
	delegate  any
	cfgOpts   config.Options
	preloaded *config.Config

	mu       sync.Mutex
	state    State
	cfg      *config.Config
	log      *zap.Logger
	ownLog   bool
	router   *router.Router
	views    *view.Manager
	metrics  *metrics.Registry
	sessions *session.Manager
	settings Settings
	srv      *server.Server
	port     int
}

// New creates an App in the Created state. delegate may be nil.
func New(delegate any, opts ...Option) *App {
	a := &App{
		delegate: delegate,
		router:   router.New(),
		metrics:  metrics.New("appcore"),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = logger.L()
	} else {
		a.ownLog = true
	}
	return a
}

// checkWorkingDir warns when the process runs outside the application root,
// since relative paths in third-party code resolve against the cwd.
func (a *App) checkWorkingDir(root string) {
	wd, err := os.Getwd()
	if err != nil {
		return
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return
	}
	if filepath.Clean(wd) != filepath.Clean(abs) {
		a.log.Warn("working directory does not match the application root",
			zap.String("cwd", wd), zap.String("root", abs))
	}
}

// Init loads and seals the configuration, then builds views and the
// middleware chain. On error the App stays Created.
func (a *App) Init(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != Created {
		return fmt.Errorf("%w: init from %s", ErrInvalidState, a.state)
	}

	cfg := a.preloaded
	if cfg == nil {
		var err error
		cfg, err = config.Load(a.cfgOpts)
		if err != nil {
			return fmt.Errorf("app: load config: %w", err)
		}
	}

	if c, ok := a.delegate.(Configurer); ok {
		out, err := c.Configure(ctx, cfg)
		if err != nil {
			return fmt.Errorf("app: configure: %w", err)
		}
		if out != nil {
			cfg = out
		}
	}

	if err := validate(cfg); err != nil {
		return err
	}
	cfg.Seal()
	a.cfg = cfg

	if !a.ownLog {
		log, err := logger.New(cfg.GetString("log.level"), cfg.GetString("log.format"))
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		a.log = log
	}
	logger.SetDefault(a.log)
	a.checkWorkingDir(cfg.Root())

	a.settings.PoweredBy = false
	a.settings.Env = cfg.Env()
	if err := agent.SetMaxSockets(cfg.GetInt("globalAgent.maxSockets")); err != nil {
		return fmt.Errorf("app: %w", err)
	}

	if err := a.setupViews(); err != nil {
		a.reset()
		return err
	}
	if err := a.setupMiddleware(ctx); err != nil {
		a.reset()
		return err
	}

	a.state = Configured
	a.log.Info("application configured",
		zap.String("env", a.settings.Env),
		zap.String("root", cfg.Root()),
		zap.Strings("layers", a.router.Layers()),
	)
	return nil
}

// reset drops whatever a failed Init built so a retry starts clean.
func (a *App) reset() {
	a.releaseSessions()
	a.router = router.New()
	a.views = nil
	a.settings = Settings{}
}

func (a *App) releaseSessions() {
	if a.sessions == nil {
		return
	}
	if err := a.sessions.Close(); err != nil {
		a.log.Warn("closing session store", zap.Error(err))
	}
	a.sessions = nil
}

// validate rejects configurations that would only fail later, or would
// run insecurely.
func validate(cfg *config.Config) error {
	var errs []error

	if _, err := view.Lookup(cfg.GetString("viewEngine.module")); err != nil {
		errs = append(errs, err)
	}
	if cfg.Has("i18n") {
		if _, err := i18n.Lookup(cfg.GetString("i18n.module")); err != nil {
			errs = append(errs, err)
		}
	}

	secret := cfg.GetString("middleware.session.secret")
	if secret == "" {
		errs = append(errs, errors.New("middleware.session.secret is empty"))
	} else if !cfg.IsDevelopment() && secret == config.DefaultSessionSecret {
		errs = append(errs, fmt.Errorf("middleware.session.secret must be changed outside development (env %q)", cfg.Env()))
	}

	store := cfg.GetString("middleware.session.store")
	known := store == ""
	for _, s := range session.Stores {
		if s == store {
			known = true
		}
	}
	if !known {
		errs = append(errs, fmt.Errorf("unknown middleware.session.store %q", store))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("app: invalid config: %w", err)
	}
	return nil
}

// Start binds host:port from the configuration and serves in the
// background. It returns the bound port.
func (a *App) Start(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != Configured {
		return 0, fmt.Errorf("%w: start from %s", ErrInvalidState, a.state)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var opts server.Options
	if err := a.cfg.Section("server", &opts); err != nil {
		return 0, fmt.Errorf("app: %w", err)
	}
	srv := server.New(a.router, opts, a.log)
	port, err := srv.Listen(a.cfg.Host(), a.cfg.Port())
	if err != nil {
		return 0, fmt.Errorf("app: %w", err)
	}
	a.log.Info("application started", zap.Int("port", port), zap.String("env", a.settings.Env))
	a.srv = srv
	a.port = port
	a.state = Listening
	return port, nil
}

// Stop shuts the server down gracefully, bounded by ctx, and releases the
// session store. It returns once the listener has closed.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != Listening {
		return ErrNotRunning
	}

	err := a.srv.Shutdown(ctx)
	a.releaseSessions()
	a.srv = nil
	a.state = Stopped
	_ = a.log.Sync()
	if err != nil {
		return fmt.Errorf("app: stop: %w", err)
	}
	return nil
}

// State reports the lifecycle stage.
func (a *App) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Config is the sealed configuration, nil before Init.
func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Settings returns the switches applied during Init.
func (a *App) Settings() Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings
}

// Router is the application handle the delegate hooks receive.
func (a *App) Router() *router.Router {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.router
}

// Views is the view manager, nil before Init.
func (a *App) Views() *view.Manager {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.views
}

// Metrics is the instance's Prometheus registry.
func (a *App) Metrics() *metrics.Registry { return a.metrics }

// Logger is the base logger.
func (a *App) Logger() *zap.Logger {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.log
}

// Handler is the assembled pipeline.
func (a *App) Handler() http.Handler { return a.Router() }

// Port is the bound port while listening, 0 otherwise.
func (a *App) Port() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != Listening {
		return 0
	}
	return a.port
}

// Done is closed when the server stops serving. It is nil unless the App
// is listening.
func (a *App) Done() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.srv == nil {
		return nil
	}
	return a.srv.Done()
}

// Start creates, initialises and starts an App for delegate.
func Start(ctx context.Context, delegate any, opts ...Option) (*App, error) {
	a := New(delegate, opts...)
	if err := a.Init(ctx); err != nil {
		return nil, err
	}
	if _, err := a.Start(ctx); err != nil {
		a.mu.Lock()
		a.releaseSessions()
		a.mu.Unlock()
		return nil, err
	}
	return a, nil
}

// Stop stops a. A nil or non-listening App yields ErrNotRunning.
func Stop(ctx context.Context, a *App) error {
	if a == nil {
		return ErrNotRunning
	}
	return a.Stop(ctx)
}
