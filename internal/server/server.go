// Package server owns the listening socket and the http.Server for one
// application instance.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNotListening is returned by Shutdown before Listen succeeded or after
// the server was shut down.
var ErrNotListening = errors.New("server: not listening")

// Options mirrors the server config block.
type Options struct {
	ReadTimeout     time.Duration `mapstructure:"readTimeout"`
	WriteTimeout    time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout     time.Duration `mapstructure:"idleTimeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

type Server struct {
	opts Options
	log  *zap.Logger
	srv  *http.Server

	mu   sync.Mutex
	ln   net.Listener
	done chan struct{}
	err  error
}

// New prepares a server for handler. log may be nil.
func New(handler http.Handler, opts Options, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		opts: opts,
		log:  log,
		srv: &http.Server{
			Handler:      handler,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
			IdleTimeout:  opts.IdleTimeout,
			ErrorLog:     zap.NewStdLog(log),
		},
	}
}

// Listen binds host:port and starts serving in the background. It returns
// the bound port, which differs from port when port is 0. An empty host
// listens on all interfaces.
func (s *Server) Listen(host string, port int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return 0, errors.New("server: already listening")
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("server: listen %s: %w", addr, err)
	}
	s.ln = ln
	s.done = make(chan struct{})
	s.srv.Addr = ln.Addr().String()

	go s.serve(ln, s.done)

	bound := ln.Addr().(*net.TCPAddr).Port
	s.log.Info("HTTP server listening", zap.String("addr", s.srv.Addr), zap.Int("port", bound))
	return bound, nil
}

func (s *Server) serve(ln net.Listener, done chan struct{}) {
	defer close(done)
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Error("HTTP server stopped", zap.Error(err))
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
	}
}

// Addr is the bound address, or "" when not listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Done is closed once the serve loop has returned.
func (s *Server) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Shutdown stops accepting connections and waits for in-flight requests,
// bounded by ctx and Options.ShutdownTimeout. It returns once the serve
// loop has closed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln, done := s.ln, s.done
	s.ln = nil
	s.mu.Unlock()
	if ln == nil {
		return ErrNotListening
	}

	if s.opts.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.ShutdownTimeout)
		defer cancel()
	}

	err := s.srv.Shutdown(ctx)
	if err != nil {
		// Deadline hit: drop the remaining connections.
		_ = s.srv.Close()
	}
	<-done

	s.mu.Lock()
	serveErr := s.err
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if serveErr != nil {
		return fmt.Errorf("server: serve: %w", serveErr)
	}
	s.log.Info("HTTP server closed")
	return nil
}
