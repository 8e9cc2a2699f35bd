package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/feedpulse/feedpulse/internal/feed/server"
	"github.com/feedpulse/feedpulse/internal/platform/config"
	"github.com/feedpulse/feedpulse/internal/platform/logger"
	"github.com/feedpulse/feedpulse/internal/platform/metrics"
	"github.com/feedpulse/feedpulse/internal/platform/telemetry"
)

func main() {
	cfg, err := config.Load("feedwatch")
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log := logger.New(cfg.Logger)
	log.Info("Starting Feedwatch", "version", cfg.Version, "port", cfg.HTTP.Port)

	tel, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		log.Fatal("failed to initialize telemetry", "error", err)
	}

	var m *metrics.Metrics
	if cfg.Telemetry.MetricsEnabled {
		m = metrics.New("feedpulse")
	}

	srv, err := server.New(
		server.WithConfig(cfg),
		server.WithLogger(log),
		server.WithMetrics(m),
		server.WithTelemetry(tel),
	)
	if err != nil {
		log.Fatal("failed to create server", "error", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Error("server error", "error", err)
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
	}

	log.Info("Feedwatch stopped gracefully")
}
