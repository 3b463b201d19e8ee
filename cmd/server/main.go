package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	compliancehandler "medisupply/internal/compliance/handler"
	inventoryhandler "medisupply/internal/inventory/handler"
	ordershandler "medisupply/internal/orders/handler"
	"medisupply/internal/platform/config"
	"medisupply/internal/platform/httpserver"
	"medisupply/internal/platform/logger"
	"medisupply/internal/platform/metrics"
	"medisupply/internal/platform/middleware"
	"medisupply/pkg/platform/httputil"
)

// main wires the fulfillment API: inventory, orders and read-only
// compliance results. Business logic lives in the internal service packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "medisupply: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	r := newRouter(app, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Serve(gctx, httpserver.New(cfg.Server.Addr, r), cfg.Server.ShutdownTimeout, log)
	})
	if app.relay != nil {
		g.Go(func() error {
			if err := app.relay.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// newRouter registers the collectors it uses on the default registry, so it
// is called once per process.
func newRouter(app *app, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RequestTime, middleware.Recover(log), middleware.AccessLog(log, metrics.NewHTTP()))
	r.Get("/health", app.health)
	r.Handle("/metrics", metrics.Handler())
	inventoryhandler.New(app.inventory, log).Register(r)
	ordershandler.New(app.orders, log).Register(r)
	compliancehandler.New(app.compliance, log).Register(r)
	return r
}

type healthResponse struct {
	Status   string            `json:"status"`
	Backends map[string]string `json:"backends"`
}

func (a *app) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Backends: map[string]string{}}
	for name, check := range a.checks {
		if err := check(ctx); err != nil {
			resp.Status = "degraded"
			resp.Backends[name] = err.Error()
			continue
		}
		resp.Backends[name] = "ok"
	}
	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, resp)
}
