package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/shashiranjanraj/appcore/config"
	"github.com/shashiranjanraj/appcore/pkg/appsec"
	"github.com/shashiranjanraj/appcore/pkg/bodyparser"
	"github.com/shashiranjanraj/appcore/pkg/compiler"
	"github.com/shashiranjanraj/appcore/pkg/cookie"
	"github.com/shashiranjanraj/appcore/pkg/errorhandler"
	"github.com/shashiranjanraj/appcore/pkg/middleware"
	"github.com/shashiranjanraj/appcore/pkg/routes"
	"github.com/shashiranjanraj/appcore/pkg/session"
)

// Layer names as recorded by the router.
const (
	LayerFavicon      = "favicon"
	LayerCompiler     = "compiler"
	LayerStatic       = "static"
	LayerLogger       = "logger"
	LayerBodyParser   = "bodyParser"
	LayerCookieParser = "cookieParser"
	LayerSession      = "session"
	LayerAppsec       = "appsec"
	LayerRouter       = "router"
	LayerErrorHandler = "errorHandler"
)

// CompilerOptions decodes the compiler block with its exclusions resolved.
// The view templates and translation files are always excluded so they are
// never published under the static root.
func CompilerOptions(cfg *config.Config) (compiler.Options, error) {
	var co compiler.Options
	if err := cfg.Section("compiler", &co); err != nil {
		return co, fmt.Errorf("app: compiler: %w", err)
	}
	dirs := append(co.Exclude, cfg.GetString("viewEngine.templatePath"))
	if cfg.Has("i18n") {
		dirs = append(dirs, cfg.GetString("i18n.contentPath"))
	}
	co.Exclude = nil
	for _, dir := range dirs {
		if dir != "" {
			co.Exclude = append(co.Exclude, cfg.Resolve(dir))
		}
	}
	return co, nil
}

// setupMiddleware builds the request pipeline. The order is fixed: each
// layer relies on what the ones before it put on the request.
func (a *App) setupMiddleware(ctx context.Context) error {
	cfg, r := a.cfg, a.router

	srcRoot := cfg.Resolve(cfg.GetString("middleware.static.srcRoot"))
	staticRoot := cfg.Resolve(cfg.GetString("middleware.static.rootPath"))
	secret := cfg.GetString("middleware.session.secret")

	// favicon
	var fav middleware.FaviconOptions
	if err := cfg.Section("middleware.favicon", &fav); err != nil {
		return fmt.Errorf("app: favicon: %w", err)
	}
	if fav.Path == "" {
		fav.Path = filepath.Join(staticRoot, "favicon.ico")
	} else {
		fav.Path = cfg.Resolve(fav.Path)
	}
	r.UseNamed(LayerFavicon, middleware.Favicon(fav))

	// compiler
	co, err := CompilerOptions(cfg)
	if err != nil {
		return err
	}
	r.UseNamed(LayerCompiler, compiler.New(srcRoot, staticRoot, co, a.log, a.metrics).Middleware())

	// static
	r.UseNamed(LayerStatic, middleware.Static(staticRoot))

	// logger
	var lo middleware.LoggerOptions
	if err := cfg.Section("middleware.logger", &lo); err != nil {
		return fmt.Errorf("app: logger: %w", err)
	}
	r.UseNamed(LayerLogger, middleware.Logger(lo, a.log, a.metrics))

	if d, ok := a.delegate.(RequestStarter); ok {
		d.RequestStart(r)
	}

	// bodyParser
	bo := bodyparser.Options{Limit: bodyparser.DefaultLimit}
	if cfg.Has("middleware.bodyParser") {
		bo = bodyparser.Options{}
		if err := cfg.Section("middleware.bodyParser", &bo); err != nil {
			return fmt.Errorf("app: bodyParser: %w", err)
		}
	}
	bp, err := bodyparser.New(bo)
	if err != nil {
		return fmt.Errorf("app: bodyParser: %w", err)
	}
	r.UseNamed(LayerBodyParser, bp.Middleware())

	// cookieParser
	jar, err := cookie.New(secret)
	if err != nil {
		return fmt.Errorf("app: cookieParser: %w", err)
	}
	r.UseNamed(LayerCookieParser, jar.Middleware())

	// session
	so := session.DefaultOptions()
	if err := cfg.Section("middleware.session", &so); err != nil {
		return fmt.Errorf("app: session: %w", err)
	}
	if so.Dir != "" {
		so.Dir = cfg.Resolve(so.Dir)
	}
	sm, err := session.New(ctx, so)
	if err != nil {
		return fmt.Errorf("app: session: %w", err)
	}
	a.sessions = sm
	r.UseNamed(LayerSession, sm.Middleware())

	// appsec
	var ao appsec.Options
	if err := cfg.Section("middleware.appsec", &ao); err != nil {
		return fmt.Errorf("app: appsec: %w", err)
	}
	sec, err := appsec.Middleware(ao, secret)
	if err != nil {
		return fmt.Errorf("app: appsec: %w", err)
	}
	r.UseNamed(LayerAppsec, sec)

	if d, ok := a.delegate.(BeforeRouter); ok {
		d.RequestBeforeRoute(r)
	}

	// router
	deps := routes.Deps{Views: a.views, Logger: a.log}
	if err := routes.Mount(r, cfg.Resolve(cfg.GetString("routes.routePath")), deps); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if cfg.GetBool("metrics.enabled") {
		r.Get(cfg.GetString("metrics.path"), "metrics", a.metrics.Handler().ServeHTTP)
	}

	if d, ok := a.delegate.(AfterRouter); ok {
		d.RequestAfterRoute(r)
	}

	// errorHandler
	var eo errorhandler.Options
	if err := cfg.Section("middleware.errorHandler", &eo); err != nil {
		return fmt.Errorf("app: errorHandler: %w", err)
	}
	r.Boundary(LayerErrorHandler, errorhandler.New(eo, a.views, a.log).Middleware())
	r.NotFound(errorhandler.NotFoundHandler())
	return nil
}
