package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/appcore/pkg/cache"
)

func options(store string) Options {
	o := DefaultOptions()
	o.Store = store
	o.Secret = "a-test-secret-that-is-long-enough"
	return o
}

// run serves one request through m, replaying cookies, and returns the
// cookies the response set.
func run(t *testing.T, m *Manager, cookies []*http.Cookie, fn func(w http.ResponseWriter, s *Session)) []*http.Cookie {
	t.Helper()
	h := m.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := FromCtx(r)
		require.NotNil(t, s)
		fn(w, s)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Result().Cookies()
}

func roundTrip(t *testing.T, m *Manager) {
	t.Helper()

	cookies := run(t, m, nil, func(w http.ResponseWriter, s *Session) {
		assert.True(t, s.IsNew())
		s.Set("user_id", 42)
		s.Set("name", "ada")
		s.Flash("notice", "saved")
		_, _ = w.Write([]byte("ok"))
	})
	require.Len(t, cookies, 1)
	assert.Equal(t, "appcore.sid", cookies[0].Name)

	cookies2 := run(t, m, cookies, func(w http.ResponseWriter, s *Session) {
		id, ok := s.GetInt("user_id")
		assert.True(t, ok)
		assert.Equal(t, 42, id)
		name, _ := s.GetString("name")
		assert.Equal(t, "ada", name)
		notice, ok := s.GetFlash("notice")
		assert.True(t, ok)
		assert.Equal(t, "saved", notice)
	})
	if len(cookies2) == 1 {
		cookies = cookies2
	}

	run(t, m, cookies, func(w http.ResponseWriter, s *Session) {
		_, ok := s.GetFlash("notice")
		assert.False(t, ok, "flash values are read once")
	})
}

func TestCookieStore(t *testing.T) {
	m, err := New(context.Background(), options("cookie"))
	require.NoError(t, err)
	roundTrip(t, m)
}

func TestFilesystemStore(t *testing.T) {
	o := options("filesystem")
	o.Dir = t.TempDir()
	m, err := New(context.Background(), o)
	require.NoError(t, err)
	roundTrip(t, m)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	o := options("redis")
	o.Redis = cache.Options{Addr: mr.Addr(), Prefix: "app:"}
	m, err := New(context.Background(), o)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	roundTrip(t, m)
	assert.NotEmpty(t, mr.Keys())

	var id string
	cookies := run(t, m, nil, func(w http.ResponseWriter, s *Session) { s.Set("k", "v") })
	run(t, m, cookies, func(w http.ResponseWriter, s *Session) { id = s.ID() })
	require.NotEmpty(t, id)
	assert.True(t, mr.Exists("app:session:"+id))

	cleared := run(t, m, cookies, func(w http.ResponseWriter, s *Session) { s.Invalidate() })
	require.Len(t, cleared, 1)
	assert.True(t, cleared[0].MaxAge < 0)
	assert.False(t, mr.Exists("app:session:"+id))
}

func TestUnchangedSessionSetsNoCookie(t *testing.T) {
	m, err := New(context.Background(), options("cookie"))
	require.NoError(t, err)
	cookies := run(t, m, nil, func(w http.ResponseWriter, s *Session) {})
	assert.Empty(t, cookies)
}

func TestForgedCookieStartsFreshSession(t *testing.T) {
	m, err := New(context.Background(), options("cookie"))
	require.NoError(t, err)

	forged := []*http.Cookie{{Name: "appcore.sid", Value: "not-a-valid-value"}}
	run(t, m, forged, func(w http.ResponseWriter, s *Session) {
		assert.True(t, s.IsNew())
		_, ok := s.Get("user_id")
		assert.False(t, ok)
	})
}

func TestSecretChangeInvalidatesSessions(t *testing.T) {
	m, err := New(context.Background(), options("cookie"))
	require.NoError(t, err)
	cookies := run(t, m, nil, func(w http.ResponseWriter, s *Session) { s.Set("k", "v") })

	o := options("cookie")
	o.Secret = "rotated-secret-rotated-secret-rot"
	m2, err := New(context.Background(), o)
	require.NoError(t, err)
	run(t, m2, cookies, func(w http.ResponseWriter, s *Session) {
		_, ok := s.Get("k")
		assert.False(t, ok)
	})
}

func TestNew_Errors(t *testing.T) {
	_, err := New(context.Background(), options("memcached"))
	assert.Error(t, err)

	o := options("cookie")
	o.Secret = ""
	_, err = New(context.Background(), o)
	assert.Error(t, err)

	o = options("cookie")
	o.SameSite = "sideways"
	_, err = New(context.Background(), o)
	assert.Error(t, err)
}

func TestFromCtx_WithoutMiddleware(t *testing.T) {
	assert.Nil(t, FromCtx(httptest.NewRequest(http.MethodGet, "/", nil)))
}
