package app

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/shashiranjanraj/appcore/pkg/appsec"
	"github.com/shashiranjanraj/appcore/pkg/i18n"
	"github.com/shashiranjanraj/appcore/pkg/view"
)

// setupViews resolves the view engine and the optional translation
// provider. The framework view cache is always off; when translations are
// configured the engine's cache flag moves to the translation layer.
func (a *App) setupViews() error {
	var vc view.Config
	if err := a.cfg.Section("viewEngine", &vc); err != nil {
		return fmt.Errorf("app: views: %w", err)
	}
	vc.Dir = a.cfg.Resolve(vc.TemplatePath)

	var ic *i18n.Config
	if a.cfg.Has("i18n") {
		ic = &i18n.Config{}
		if err := a.cfg.Section("i18n", ic); err != nil {
			return fmt.Errorf("app: i18n: %w", err)
		}
		if vc.Cache {
			ic.Cache = vc.Cache
			vc.Cache = !vc.Cache
		}
		ic.ContentPath = a.cfg.Resolve(ic.ContentPath)
	}

	renderer, err := view.Resolve(vc)
	if err != nil {
		return fmt.Errorf("app: views: %w", err)
	}
	vm := view.NewManager(vc, renderer)

	if ic != nil {
		p, err := i18n.New(*ic)
		if err != nil {
			return fmt.Errorf("app: i18n: %w", err)
		}
		vm.Use(p)
		a.log.Debug("translations enabled",
			zap.String("contentPath", ic.ContentPath),
			zap.Strings("locales", p.Locales()),
			zap.Bool("cache", ic.Cache),
		)
	}
	if a.cfg.GetBool("middleware.appsec.csrf") {
		vm.Use(view.LocalsFunc(func(r *http.Request) (map[string]any, map[string]any) {
			return map[string]any{appsec.FieldName: appsec.Token(r)}, nil
		}))
	}

	a.views = vm
	a.settings.ViewEngine = vm.Ext()
	a.settings.ViewCache = vm.Cache()
	a.settings.Views = vm.Dir()
	a.settings.Engine = vc
	a.settings.I18n = ic
	return nil
}
