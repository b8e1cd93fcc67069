// Package main is a minimal appcore application.
//
// Run it from this directory so the working directory matches the
// application root:
//
//	go run .
//	curl http://localhost:8000/hello
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/shashiranjanraj/appcore/config"
	"github.com/shashiranjanraj/appcore/pkg/app"
	"github.com/shashiranjanraj/appcore/pkg/response"
	"github.com/shashiranjanraj/appcore/pkg/router"
	"github.com/shashiranjanraj/appcore/pkg/session"
)

// delegate shows each hook. Any subset of the methods may be implemented.
type delegate struct{}

func (delegate) Configure(_ context.Context, cfg *config.Config) (*config.Config, error) {
	if cfg.Env() == "development" {
		if err := cfg.Set("metrics.enabled", true); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (delegate) RequestBeforeRoute(r *router.Router) {
	r.Get("/hello", "hello", helloHandler)
	r.Get("/visits", "visits", visitsHandler)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Start(ctx, delegate{})
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("listening on :%d", a.Port())

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Stop(shutdownCtx, a); err != nil {
		log.Fatal(err)
	}
}

func helloHandler(w http.ResponseWriter, _ *http.Request) {
	response.Success(w, map[string]string{"message": "Hello from appcore"})
}

func visitsHandler(w http.ResponseWriter, r *http.Request) {
	s := session.FromCtx(r)
	n, _ := s.GetInt("visits")
	s.Set("visits", n+1)
	response.Success(w, map[string]int{"visits": n + 1})
}
