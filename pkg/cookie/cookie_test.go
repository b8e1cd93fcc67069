package cookie

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKey(t *testing.T) {
	a, err := DeriveKey("s3cret", "one", 32)
	require.NoError(t, err)
	b, err := DeriveKey("s3cret", "two", 32)
	require.NoError(t, err)
	again, err := DeriveKey("s3cret", "one", 32)
	require.NoError(t, err)

	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, again)

	_, err = DeriveKey("", "one", 32)
	assert.Error(t, err)
}

func TestSignVerify(t *testing.T) {
	j, err := New("s3cret")
	require.NoError(t, err)

	enc, err := j.Sign("theme", "dark")
	require.NoError(t, err)
	got, err := j.Verify("theme", enc)
	require.NoError(t, err)
	assert.Equal(t, "dark", got)

	_, err = j.Verify("other", enc)
	assert.Error(t, err, "a value signed for one name must not verify under another")

	other, err := New("different")
	require.NoError(t, err)
	_, err = other.Verify("theme", enc)
	assert.Error(t, err)
}

func TestMiddlewareRoundTrip(t *testing.T) {
	j, err := New("s3cret")
	require.NoError(t, err)

	set := j.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, SetSigned(w, r, &http.Cookie{Name: "theme", Value: "dark", Path: "/"}))
	}))
	rec := httptest.NewRecorder()
	set.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.NotEqual(t, "dark", cookies[0].Value)

	var got string
	read := j.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, err = Signed(r, "theme")
		assert.Equal(t, cookies[0].Value, All(r)["theme"])
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	read.ServeHTTP(httptest.NewRecorder(), req)
	require.NoError(t, err)
	assert.Equal(t, "dark", got)
}

func TestWithoutMiddleware(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := Signed(r, "x")
	assert.ErrorIs(t, err, ErrNoJar)
	assert.ErrorIs(t, SetSigned(httptest.NewRecorder(), r, &http.Cookie{Name: "x"}), ErrNoJar)
}
