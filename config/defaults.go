package config

import "github.com/spf13/viper"

const (
	defaultAppEnv        = "development"
	defaultAppPort       = 8000
	DefaultSessionSecret = "change-me-in-production"
)

// setDefaults registers the built-in defaults. middleware.bodyParser and
// i18n deliberately have none: their absence is meaningful.
func setDefaults(v *viper.Viper) {
	v.SetDefault("env.env", defaultAppEnv)
	v.SetDefault("port", defaultAppPort)
	v.SetDefault("host", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("globalAgent.maxSockets", 0) // 0 = unbounded

	v.SetDefault("server.readTimeout", "15s")
	v.SetDefault("server.writeTimeout", "30s")
	v.SetDefault("server.idleTimeout", "60s")
	v.SetDefault("server.shutdownTimeout", "10s")

	v.SetDefault("viewEngine.module", "html/template")
	v.SetDefault("viewEngine.ext", "html")
	v.SetDefault("viewEngine.cache", false)
	v.SetDefault("viewEngine.templatePath", "public/templates")

	v.SetDefault("compiler.enabled", true)
	v.SetDefault("compiler.copy", true)
	v.SetDefault("compiler.minify", false)

	v.SetDefault("middleware.static.srcRoot", "public")
	v.SetDefault("middleware.static.rootPath", ".build")
	v.SetDefault("middleware.favicon.maxAge", 86400)
	v.SetDefault("middleware.logger.level", "info")
	v.SetDefault("middleware.logger.metrics", true)

	v.SetDefault("middleware.session.store", "cookie")
	v.SetDefault("middleware.session.name", "appcore.sid")
	v.SetDefault("middleware.session.secret", DefaultSessionSecret)
	v.SetDefault("middleware.session.maxAge", 86400)
	v.SetDefault("middleware.session.path", "/")
	v.SetDefault("middleware.session.httpOnly", true)
	v.SetDefault("middleware.session.sameSite", "lax")

	v.SetDefault("middleware.appsec.csrf", true)
	v.SetDefault("middleware.appsec.xframe", "SAMEORIGIN")
	v.SetDefault("middleware.appsec.xssProtection", true)
	v.SetDefault("middleware.appsec.nosniff", true)

	v.SetDefault("routes.routePath", "routes")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.path", "/metrics")
}
