package session

import (
	"context"
	"encoding/base32"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"

	"github.com/shashiranjanraj/appcore/pkg/cache"
)

// RedisStore keeps session values in Redis; the cookie only carries the
// signed session ID.
type RedisStore struct {
	Codecs  []securecookie.Codec
	Options *sessions.Options

	cache *cache.Store
}

var _ sessions.Store = (*RedisStore)(nil)

// NewRedisStore returns a store writing through c. keyPairs are passed to
// securecookie.CodecsFromPairs (hash key, then optional block key).
func NewRedisStore(c *cache.Store, keyPairs ...[]byte) *RedisStore {
	return &RedisStore{
		Codecs:  securecookie.CodecsFromPairs(keyPairs...),
		Options: &sessions.Options{Path: "/", MaxAge: 86400 * 30},
		cache:   c,
	}
}

func redisKey(id string) string { return "session:" + id }

// Get returns a cached session for the request, loading it on first use.
func (s *RedisStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New loads the session named by the request cookie, or starts a fresh one
// when the cookie is absent, forged or expired server-side.
func (s *RedisStore) New(r *http.Request, name string) (*sessions.Session, error) {
	sess := sessions.NewSession(s, name)
	opts := *s.Options
	sess.Options = &opts
	sess.IsNew = true

	c, err := r.Cookie(name)
	if err != nil {
		return sess, nil
	}
	var id string
	if err := securecookie.DecodeMulti(name, c.Value, &id, s.Codecs...); err != nil {
		return sess, err
	}

	raw, err := s.cache.GetBytes(r.Context(), redisKey(id))
	if err != nil {
		return sess, err
	}
	if raw == nil {
		return sess, nil
	}
	if err := securecookie.DecodeMulti(name, string(raw), &sess.Values, s.Codecs...); err != nil {
		return sess, err
	}
	sess.ID = id
	sess.IsNew = false
	return sess, nil
}

// Save writes the session to Redis and refreshes the cookie. A negative
// MaxAge deletes both.
func (s *RedisStore) Save(r *http.Request, w http.ResponseWriter, sess *sessions.Session) error {
	ctx := r.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if sess.Options.MaxAge < 0 {
		if sess.ID != "" {
			if err := s.cache.Del(ctx, redisKey(sess.ID)); err != nil {
				return err
			}
		}
		http.SetCookie(w, sessions.NewCookie(sess.Name(), "", sess.Options))
		return nil
	}

	if sess.ID == "" {
		sess.ID = newID()
	}
	encoded, err := securecookie.EncodeMulti(sess.Name(), sess.Values, s.Codecs...)
	if err != nil {
		return fmt.Errorf("session: encode values: %w", err)
	}
	ttl := time.Duration(sess.Options.MaxAge) * time.Second
	if err := s.cache.SetBytes(ctx, redisKey(sess.ID), []byte(encoded), ttl); err != nil {
		return err
	}

	cookie, err := securecookie.EncodeMulti(sess.Name(), sess.ID, s.Codecs...)
	if err != nil {
		return fmt.Errorf("session: encode id: %w", err)
	}
	http.SetCookie(w, sessions.NewCookie(sess.Name(), cookie, sess.Options))
	return nil
}

func newID() string {
	return strings.TrimRight(base32.StdEncoding.EncodeToString(securecookie.GenerateRandomKey(32)), "=")
}
