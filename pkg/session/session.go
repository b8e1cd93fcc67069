// Package session provides HTTP sessions on top of gorilla/sessions.
//
// The store is chosen by config: "cookie" (values in an encrypted cookie),
// "filesystem" (values on disk) or "redis". Handlers work with the same
// Session handle regardless:
//
//	sess := session.FromCtx(r)
//	sess.Set("user_id", 42)
//	id, _ := sess.GetInt("user_id")
//
// Changes are saved automatically before the response is written; Save is
// there for handlers that need to persist early.
package session

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"github.com/shashiranjanraj/appcore/pkg/cache"
	"github.com/shashiranjanraj/appcore/pkg/cookie"
	"github.com/shashiranjanraj/appcore/pkg/logger"
)

// Options mirrors the middleware.session config block.
type Options struct {
	Store    string        `mapstructure:"store"`
	Name     string        `mapstructure:"name"`
	Secret   string        `mapstructure:"secret"`
	MaxAge   int           `mapstructure:"maxAge"`
	Path     string        `mapstructure:"path"`
	Domain   string        `mapstructure:"domain"`
	Secure   bool          `mapstructure:"secure"`
	HTTPOnly bool          `mapstructure:"httpOnly"`
	SameSite string        `mapstructure:"sameSite"`
	Dir      string        `mapstructure:"dir"` // filesystem store directory
	Redis    cache.Options `mapstructure:"redis"`
}

// DefaultOptions returns sensible defaults for a cookie-backed session.
func DefaultOptions() Options {
	return Options{
		Store:    "cookie",
		Name:     "appcore.sid",
		MaxAge:   86400,
		Path:     "/",
		HTTPOnly: true,
		SameSite: "lax",
	}
}

// Stores lists the supported store names.
var Stores = []string{"cookie", "filesystem", "redis"}

type Manager struct {
	store  sessions.Store
	name   string
	closer func() error
}

// New builds the configured store. Keys are derived from opts.Secret.
func New(ctx context.Context, opts Options) (*Manager, error) {
	if opts.Name == "" {
		opts.Name = DefaultOptions().Name
	}
	hashKey, err := cookie.DeriveKey(opts.Secret, "session-hash", 64)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	blockKey, err := cookie.DeriveKey(opts.Secret, "session-block", 32)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	sameSite, err := parseSameSite(opts.SameSite)
	if err != nil {
		return nil, err
	}
	so := &sessions.Options{
		Path:     opts.Path,
		Domain:   opts.Domain,
		MaxAge:   opts.MaxAge,
		Secure:   opts.Secure,
		HttpOnly: opts.HTTPOnly,
		SameSite: sameSite,
	}

	m := &Manager{name: opts.Name}
	switch strings.ToLower(opts.Store) {
	case "", "cookie":
		s := sessions.NewCookieStore(hashKey, blockKey)
		s.Options = so
		m.store = s
	case "filesystem":
		s := sessions.NewFilesystemStore(opts.Dir, hashKey, blockKey)
		s.MaxLength(0)
		s.Options = so
		m.store = s
	case "redis":
		c, err := cache.Connect(ctx, opts.Redis)
		if err != nil {
			return nil, fmt.Errorf("session: %w", err)
		}
		s := NewRedisStore(c, hashKey, blockKey)
		s.Options = so
		m.store = s
		m.closer = c.Close
	default:
		return nil, fmt.Errorf("session: unknown store %q (want one of %s)", opts.Store, strings.Join(Stores, ", "))
	}
	return m, nil
}

// NewWithStore wraps an existing gorilla store.
func NewWithStore(name string, store sessions.Store) *Manager {
	return &Manager{store: store, name: name}
}

// Close releases the store's connections.
func (m *Manager) Close() error {
	if m.closer != nil {
		return m.closer()
	}
	return nil
}

func parseSameSite(v string) (http.SameSite, error) {
	switch strings.ToLower(v) {
	case "", "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	case "default":
		return http.SameSiteDefaultMode, nil
	}
	return 0, fmt.Errorf("session: unknown sameSite %q", v)
}

// ------------------- Session -------------------

type ctxKey struct{}

// Session is an in-request session handle.
type Session struct {
	mu      sync.Mutex
	raw     *sessions.Session
	r       *http.Request
	changed bool
}

// Set stores a value under key in the session.
func (s *Session) Set(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw.Values[key] = value
	s.changed = true
}

// Get retrieves a value from the session.
func (s *Session) Get(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.raw.Values[key]
	return v, ok
}

// GetString is a typed convenience getter.
func (s *Session) GetString(key string) (string, bool) {
	v, ok := s.Get(key)
	if !ok {
		return "", false
	}
	s2, ok := v.(string)
	return s2, ok
}

// GetInt is a typed convenience getter.
func (s *Session) GetInt(key string) (int, bool) {
	v, ok := s.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// Delete removes a key from the session.
func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.raw.Values, key)
	s.changed = true
}

// Flash stores a value that is removed on the next GetFlash.
func (s *Session) Flash(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw.AddFlash(value, key)
	s.changed = true
}

// GetFlash retrieves and removes a flash value.
func (s *Session) GetFlash(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	flashes := s.raw.Flashes(key)
	if len(flashes) == 0 {
		return nil, false
	}
	s.changed = true
	return flashes[0], true
}

// Invalidate destroys the session (logout). The cookie is cleared on save.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.raw.Values {
		delete(s.raw.Values, k)
	}
	s.raw.Options.MaxAge = -1
	s.changed = true
}

// ID returns the server-side session ID. Cookie-backed sessions have none.
func (s *Session) ID() string { return s.raw.ID }

// IsNew reports whether the session was created by this request.
func (s *Session) IsNew() bool { return s.raw.IsNew }

// Save persists the session and writes the cookie. It is a no-op when
// nothing changed.
func (s *Session) Save(w http.ResponseWriter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.changed {
		return nil
	}
	if err := s.raw.Save(s.r, w); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	s.changed = false
	return nil
}

// ------------------- Middleware -------------------

// Middleware loads (or creates) the session for every request and injects
// it into the request context. Pending changes are saved before the first
// byte of the response goes out.
func (m *Manager) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := m.store.Get(r, m.name)
			if err != nil {
				// forged or stale cookie: carry on with the fresh session
				logger.WithCtx(r.Context()).Debug("session: discarding unreadable session", zap.Error(err))
			}
			sess := &Session{raw: raw}
			r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, sess))
			sess.r = r

			sw := &saveWriter{ResponseWriter: w, sess: sess}
			next.ServeHTTP(sw, r)
			sw.flush()
		})
	}
}

type saveWriter struct {
	http.ResponseWriter
	sess  *Session
	saved bool
}

func (sw *saveWriter) flush() {
	if sw.saved {
		return
	}
	sw.saved = true
	if err := sw.sess.Save(sw.ResponseWriter); err != nil {
		logger.WithCtx(sw.sess.r.Context()).Error("session auto-save failed", zap.Error(err))
	}
}

func (sw *saveWriter) WriteHeader(code int) {
	sw.flush()
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *saveWriter) Write(b []byte) (int, error) {
	sw.flush()
	return sw.ResponseWriter.Write(b)
}

func (sw *saveWriter) Flush() {
	sw.flush()
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sw *saveWriter) Unwrap() http.ResponseWriter { return sw.ResponseWriter }

// FromCtx retrieves the session from the request context, or nil when the
// session middleware did not run.
func FromCtx(r *http.Request) *Session {
	if s, ok := r.Context().Value(ctxKey{}).(*Session); ok {
		return s
	}
	return nil
}
