// Package agent owns the process-wide outbound HTTP connection pool.
//
// Client sends through a shared transport whose per-host connection cap is
// set with SetMaxSockets. A new cap installs a fresh clone of
// http.DefaultTransport; requests already in flight finish on the previous
// one, so the cap can change while traffic is flowing. Several applications
// in one process share the pool; the last call wins.
package agent

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
)

// ErrUnsupportedTransport is returned when http.DefaultTransport has been
// replaced with something other than *http.Transport.
var ErrUnsupportedTransport = errors.New("agent: default transport is not *http.Transport")

type pool struct {
	cur atomic.Pointer[http.Transport]
}

func (p *pool) RoundTrip(r *http.Request) (*http.Response, error) {
	return p.cur.Load().RoundTrip(r)
}

var (
	mu     sync.Mutex
	shared = newPool()
)

func newPool() *pool {
	p := &pool{}
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		p.cur.Store(t.Clone())
	} else {
		p.cur.Store(&http.Transport{Proxy: http.ProxyFromEnvironment})
	}
	return p
}

// SetMaxSockets caps concurrent connections per host. 0 removes the cap.
func SetMaxSockets(n int) error {
	if n < 0 {
		return fmt.Errorf("agent: maxSockets must be >= 0, got %d", n)
	}
	mu.Lock()
	defer mu.Unlock()

	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return ErrUnsupportedTransport
	}
	if shared.cur.Load().MaxConnsPerHost == n {
		return nil
	}
	next := base.Clone()
	next.MaxConnsPerHost = n
	if prev := shared.cur.Swap(next); prev != nil {
		prev.CloseIdleConnections()
	}
	return nil
}

// MaxSockets returns the current per-host cap, 0 meaning unbounded.
func MaxSockets() int {
	return shared.cur.Load().MaxConnsPerHost
}
