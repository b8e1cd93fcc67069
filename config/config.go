// Package config provides the hierarchical application configuration.
//
// Values are layered, lowest precedence first:
//
//	built-in defaults → config/app.{json,yaml} → config/app.<env>.{json,yaml} → .env → environment
//
// Keys are dotted paths ("middleware.session.secret"). Environment variables
// use the APPCORE_ prefix with "__" as the path separator:
//
//	APPCORE_MIDDLEWARE__SESSION__SECRET=s3cr3t
//
// A Config is mutable until Seal is called; the bootstrapper seals it once
// the configure phase is over.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// ErrSealed is returned by Set once the configuration has been sealed.
var ErrSealed = errors.New("config: configuration is sealed")

// Options controls where Load looks for configuration.
type Options struct {
	Root    string // application root; defaults to $APPCORE_ROOT, then the working directory
	Dir     string // config directory, relative to Root (default "config")
	Name    string // base file name without extension (default "app")
	EnvFile string // dotenv file, relative to Root (default ".env")
	Env     string // environment name; overrides env vars and files when set
}

func (o Options) withDefaults() Options {
	if o.Dir == "" {
		o.Dir = "config"
	}
	if o.Name == "" {
		o.Name = "app"
	}
	if o.EnvFile == "" {
		o.EnvFile = ".env"
	}
	return o
}

// Config is a read-mostly view over the layered configuration.
type Config struct {
	mu     sync.RWMutex
	v      *viper.Viper
	root   string
	sealed bool
}

// New returns a Config holding only the built-in defaults.
func New(root string) *Config {
	v := viper.New()
	setDefaults(v)
	return &Config{v: v, root: absRoot(root)}
}

// FromMap returns a Config with values merged over the built-in defaults.
// Keys may be nested maps or dotted paths.
func FromMap(root string, values map[string]any) (*Config, error) {
	c := New(root)
	nested := map[string]any{}
	for k, val := range values {
		if strings.Contains(k, ".") {
			c.v.Set(k, val)
			continue
		}
		nested[k] = val
	}
	if err := c.v.MergeConfigMap(nested); err != nil {
		return nil, fmt.Errorf("config: merge map: %w", err)
	}
	return c, nil
}

// Load builds a Config from files and the environment.
func Load(opts Options) (*Config, error) {
	opts = opts.withDefaults()
	root := resolveRoot(opts.Root)

	v := viper.New()
	setDefaults(v)

	dotenv, err := readDotEnv(filepath.Join(root, opts.EnvFile))
	if err != nil {
		return nil, err
	}

	dir := opts.Dir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	v.AddConfigPath(dir)

	v.SetConfigName(opts.Name)
	if err := v.ReadInConfig(); err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("config: read %s: %w", opts.Name, err)
	}

	env := opts.Env
	if env == "" {
		env = lookupEnv(envKeyAliases["env.env"], dotenv)
	}
	if env == "" {
		env = v.GetString("env.env")
	}
	if env == "" {
		env = defaultAppEnv
	}

	v.SetConfigName(opts.Name + "." + env)
	if err := v.MergeInConfig(); err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("config: read %s.%s: %w", opts.Name, env, err)
	}

	bindEnv(v, dotenv)
	v.Set("env.env", env)

	return &Config{v: v, root: root}, nil
}

func isNotFound(err error) bool {
	var nf viper.ConfigFileNotFoundError
	return errors.As(err, &nf)
}

func resolveRoot(root string) string {
	if root == "" {
		root = os.Getenv("APPCORE_ROOT")
	}
	return absRoot(root)
}

func absRoot(root string) string {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "."
		}
		return wd
	}
	if abs, err := filepath.Abs(root); err == nil {
		return abs
	}
	return filepath.Clean(root)
}

// ─── Accessors ────────────────────────────────────────────────────────────────

func (c *Config) Get(key string) any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.Get(key)
}

func (c *Config) GetString(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.GetString(key)
}

func (c *Config) GetInt(key string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.GetInt(key)
}

func (c *Config) GetBool(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.GetBool(key)
}

func (c *Config) GetDuration(key string) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.GetDuration(key)
}

func (c *Config) GetStringSlice(key string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.GetStringSlice(key)
}

// Has reports whether key holds a value or is the parent of keys that do.
func (c *Config) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.v.IsSet(key) {
		return true
	}
	prefix := strings.ToLower(key) + "."
	for _, k := range c.v.AllKeys() {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}

// Section decodes every key under key into out (a pointer to a struct or
// map). Leaf-level environment overrides are honoured.
func (c *Config) Section(key string, out any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sub := viper.New()
	prefix := strings.ToLower(key) + "."
	for _, k := range c.v.AllKeys() {
		if strings.HasPrefix(k, prefix) {
			sub.Set(strings.TrimPrefix(k, prefix), c.v.Get(k))
		}
	}
	if err := sub.Unmarshal(out); err != nil {
		return fmt.Errorf("config: decode %s: %w", key, err)
	}
	return nil
}

// AllSettings returns the merged configuration as a nested map.
func (c *Config) AllSettings() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.AllSettings()
}

// Set overrides key. It fails with ErrSealed after Seal.
func (c *Config) Set(key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed {
		return fmt.Errorf("%w: set %q", ErrSealed, key)
	}
	c.v.Set(key, value)
	return nil
}

// Seal makes the configuration read-only for the rest of its life.
func (c *Config) Seal() {
	c.mu.Lock()
	c.sealed = true
	c.mu.Unlock()
}

func (c *Config) Sealed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sealed
}

// Root is the absolute application root directory.
func (c *Config) Root() string { return c.root }

// Resolve returns p made absolute against the application root.
func (c *Config) Resolve(p string) string {
	if p == "" {
		return c.root
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.root, p)
}

// Env is the runtime environment name (env.env).
func (c *Config) Env() string {
	if env := c.GetString("env.env"); env != "" {
		return env
	}
	return defaultAppEnv
}

// IsDevelopment reports whether the app runs in a development-like env.
func (c *Config) IsDevelopment() bool {
	switch strings.ToLower(c.Env()) {
	case "development", "dev", "local", "test":
		return true
	}
	return false
}

// Port resolves the listen port. PORT / APP_PORT override the file value;
// malformed values fall back to the default.
func (c *Config) Port() int {
	raw := strings.TrimSpace(c.GetString("port"))
	if raw == "" {
		return defaultAppPort
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port < 0 || port > 65535 {
		return defaultAppPort
	}
	return port
}

// Host resolves the listen host. Empty means all interfaces.
func (c *Config) Host() string {
	return strings.TrimSpace(c.GetString("host"))
}
