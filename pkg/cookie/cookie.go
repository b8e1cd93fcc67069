// Package cookie parses request cookies and signs the ones the application
// wants tamper-proof. Signing keys are derived from the session secret.
package cookie

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/hkdf"
)

// ErrNoJar is returned when the cookie middleware did not run for a request.
var ErrNoJar = errors.New("cookie: no jar in request context")

// DeriveKey stretches secret into an n-byte key bound to purpose, so one
// configured secret can feed several independent keys.
func DeriveKey(secret, purpose string, n int) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("cookie: empty secret")
	}
	key := make([]byte, n)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("appcore/"+purpose))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("cookie: derive %s key: %w", purpose, err)
	}
	return key, nil
}

type Jar struct {
	sc *securecookie.SecureCookie
}

// New builds a jar signing with a key derived from secret.
func New(secret string) (*Jar, error) {
	key, err := DeriveKey(secret, "cookie-signing", 32)
	if err != nil {
		return nil, err
	}
	sc := securecookie.New(key, nil)
	sc.SetSerializer(securecookie.NopEncoder{})
	return &Jar{sc: sc}, nil
}

// Sign encodes value so Verify can later detect tampering.
func (j *Jar) Sign(name, value string) (string, error) {
	return j.sc.Encode(name, []byte(value))
}

// Verify returns the original value of a signed cookie.
func (j *Jar) Verify(name, encoded string) (string, error) {
	var raw []byte
	if err := j.sc.Decode(name, encoded, &raw); err != nil {
		return "", err
	}
	return string(raw), nil
}

type ctxKey struct{}

// Middleware makes the jar available to SetSigned and Signed.
func (j *Jar) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, j)))
		})
	}
}

// FromCtx returns the request's jar.
func FromCtx(ctx context.Context) (*Jar, bool) {
	j, ok := ctx.Value(ctxKey{}).(*Jar)
	return j, ok
}

// SetSigned signs c.Value and sets the cookie on w.
func SetSigned(w http.ResponseWriter, r *http.Request, c *http.Cookie) error {
	j, ok := FromCtx(r.Context())
	if !ok {
		return ErrNoJar
	}
	encoded, err := j.Sign(c.Name, c.Value)
	if err != nil {
		return err
	}
	signed := *c
	signed.Value = encoded
	http.SetCookie(w, &signed)
	return nil
}

// Signed returns the verified value of the named signed cookie.
func Signed(r *http.Request, name string) (string, error) {
	j, ok := FromCtx(r.Context())
	if !ok {
		return "", ErrNoJar
	}
	c, err := r.Cookie(name)
	if err != nil {
		return "", err
	}
	return j.Verify(name, c.Value)
}

// All returns every plain request cookie by name; the first value wins.
func All(r *http.Request) map[string]string {
	out := map[string]string{}
	for _, c := range r.Cookies() {
		if _, seen := out[c.Name]; !seen {
			out[c.Name] = c.Value
		}
	}
	return out
}
