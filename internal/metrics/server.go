package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StartServer starts the metrics HTTP server on the specified address.
// It serves the Prometheus exposition endpoint at /metrics.
// If addr is empty, the server is not started.
func StartServer(addr string) error {
	if addr == "" {
		slog.Info("metrics server disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	// Explicit timeouts to prevent resource exhaustion
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	slog.Info("starting metrics server", "addr", addr)

	go func() {
		if err := server.ListenAndServe(); err != nil {
			slog.Error("metrics server failed", "error", err)
		}
	}()

	return nil
}
