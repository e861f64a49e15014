package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"catalog-pulse/internal/catalog"
	"catalog-pulse/internal/config"
	"catalog-pulse/internal/observability"
	"catalog-pulse/internal/observability/logging"
	"catalog-pulse/internal/resilience/circuitbreaker"
	"catalog-pulse/internal/resilience/retry"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := logging.NewLogger()
	cfg := config.Load(logger)

	logger.Info("catalog-pulse starting",
		slog.String("service", cfg.ServiceName),
		slog.String("environment", cfg.Environment),
		slog.String("merchant_id", cfg.MerchantID),
		slog.Duration("version_poll_interval", cfg.VersionPollInterval),
		slog.Duration("canary_interval", cfg.CanaryInterval))

	clients := buildCatalogClients()

	promRegistry := prometheus.NewRegistry()
	facade := observability.New(cfg, clients, promRegistry, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := facade.Start(ctx); err != nil {
		logger.Error("failed to start observability core", slog.Any("error", err))
		os.Exit(1)
	}

	startMetricsServer(ctx, logger, facade, promRegistry, cfg.MetricsPort)

	// Wait for termination signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := facade.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown did not complete cleanly", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("catalog-pulse stopped")
}

// buildCatalogClients assembles the two catalog clients over one HTTP client:
// the business-path client with the full retry and breaker stack, and the
// single-attempt probe client for the drift monitor. Credentials and endpoint
// come from the environment.
func buildCatalogClients() observability.Clients {
	httpClient := catalog.NewHTTPClient(catalog.HTTPConfig{
		BaseURL:     os.Getenv("CATALOG_API_URL"),
		AccessToken: os.Getenv("CATALOG_ACCESS_TOKEN"),
		APIVersion:  os.Getenv("CATALOG_API_VERSION"),
	})
	return observability.Clients{
		Operations: catalog.NewResilientClient(httpClient, circuitbreaker.CatalogAPIConfig(), retry.CatalogAPIConfig()),
		Canary:     catalog.NewResilientClient(httpClient, circuitbreaker.CanaryConfig(), retry.CanaryConfig()),
	}
}
