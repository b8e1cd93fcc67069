// Package middleware provides the HTTP middleware layers the bootstrapper
// installs ahead of body parsing: favicon, static files and the request
// logger.
package middleware

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"sync"
	"time"
)

// FaviconOptions mirrors the middleware.favicon config block.
type FaviconOptions struct {
	Path   string `mapstructure:"path"`   // absolute path to the icon
	MaxAge int    `mapstructure:"maxAge"` // seconds
}

type iconCache struct {
	mu      sync.Mutex
	modTime time.Time
	body    []byte
	etag    string
}

func (c *iconCache) load(path string) ([]byte, string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.body != nil && info.ModTime().Equal(c.modTime) {
		return c.body, c.etag, nil
	}

	body, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	sum := sha1.Sum(body)
	c.body = body
	c.etag = `"` + hex.EncodeToString(sum[:8]) + `"`
	c.modTime = info.ModTime()
	return c.body, c.etag, nil
}

// Favicon answers /favicon.ico from memory so icon requests never reach the
// rest of the pipeline or the logs. A missing icon answers 204.
func Favicon(opts FaviconOptions) func(http.Handler) http.Handler {
	cache := &iconCache{}
	cacheControl := fmt.Sprintf("public, max-age=%d", opts.MaxAge)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/favicon.ico" {
				next.ServeHTTP(w, r)
				return
			}
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				w.Header().Set("Allow", "GET, HEAD, OPTIONS")
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusOK)
				} else {
					w.WriteHeader(http.StatusMethodNotAllowed)
				}
				return
			}

			body, etag, err := cache.load(opts.Path)
			if err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			w.Header().Set("Cache-Control", cacheControl)
			w.Header().Set("ETag", etag)
			if r.Header.Get("If-None-Match") == etag {
				w.WriteHeader(http.StatusNotModified)
				return
			}
			w.Header().Set("Content-Type", "image/x-icon")
			w.Header().Set("Content-Length", fmt.Sprint(len(body)))
			w.WriteHeader(http.StatusOK)
			if r.Method == http.MethodGet {
				_, _ = w.Write(body)
			}
		})
	}
}
