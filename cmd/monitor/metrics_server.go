package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"catalog-pulse/internal/observability"
)

// startMetricsServer starts the HTTP server exposing metrics and health
// surfaces. It runs in a background goroutine and shuts down gracefully
// when ctx is canceled.
//
// Endpoints:
//   - GET /metrics - Prometheus exposition for the process registry
//   - GET /metrics.json - JSON snapshot of all metric families
//   - GET /health - Liveness probe (always 200 OK)
//   - GET /health/detail - Derived health with per-component status
//   - GET /dashboard - Aggregated dashboard snapshot
func startMetricsServer(ctx context.Context, logger *slog.Logger, facade *observability.Facade, gatherer prometheus.Gatherer, port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/metrics.json", metricsSnapshotHandler(facade))
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/health/detail", healthDetailHandler(facade))
	mux.HandleFunc("/dashboard", dashboardHandler(facade))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("metrics server starting", slog.Int("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", slog.Any("error", err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", slog.Any("error", err))
		} else {
			logger.Info("metrics server stopped")
		}
	}()

	return server
}

// healthHandler handles GET /health (liveness probe).
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// healthDetailHandler serves the derived health status. Returns 503 when
// the overall status is critical so load balancers can act on it.
func healthDetailHandler(facade *observability.Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		health := facade.HealthCheck()
		status := http.StatusOK
		if health.Status == observability.StatusCritical {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, health)
	}
}

// dashboardHandler serves the aggregated observability snapshot.
func dashboardHandler(facade *observability.Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, facade.GetDashboard())
	}
}

// metricsSnapshotHandler serves the JSON rendering of the metric families.
func metricsSnapshotHandler(facade *observability.Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		snapshot, err := facade.Metrics().JSONSnapshot()
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, snapshot)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
