package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/livefeed/internal/adapter/httpserver"
	"github.com/pscheid92/livefeed/internal/adapter/metrics"
	"github.com/pscheid92/livefeed/internal/broadcast"
	"github.com/pscheid92/livefeed/internal/feed"
	"github.com/pscheid92/livefeed/internal/platform/config"
	"github.com/pscheid92/livefeed/internal/platform/logging"
	"github.com/pscheid92/livefeed/internal/platform/version"
	"golang.org/x/sync/errgroup"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// runGracefulShutdown waits for ctx to end, then stops accepting HTTP
// traffic before closing every live connection.
func runGracefulShutdown(ctx context.Context, cfg *config.Config, srv *httpserver.Server, hub *broadcast.Hub) error {
	<-ctx.Done()
	slog.Info("Shutdown signal received, cleaning up...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		slog.Error("Server shutdown error", "error", err)
	}

	hub.Stop()
	return err
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Get().String())

	metricSet := metrics.NewSet()

	hub := broadcast.NewHub(clock, metricSet.Live)
	store := feed.NewMemoryStore(clock)
	feedSvc := feed.NewService(store, hub, cfg.ListLimit, metricSet.Feed)

	healthChecks := []httpserver.HealthCheck{
		{Name: "hub", Check: hub.Ping},
	}
	srv := httpserver.NewServer(cfg, clock, feedSvc, hub, metricSet, healthChecks)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		return runGracefulShutdown(gctx, cfg, srv, hub)
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped")
}
