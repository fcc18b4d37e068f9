// Package observability provides structured logging, Prometheus metrics,
// health probes and OpenTelemetry tracing for keyhole.
//
// # Logging
//
// Request-scoped logging uses the slog-backed Logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("route", "/admin/").Info("login page served")
//
// The gate and the flood guard take a logrus logger built with
// NewComponentLogger so their fields line up with the request logs.
//
// # Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.ObserveFlood(observability.FloodRejected, "recent")
//
// All Observe helpers accept a nil *Metrics.
//
// # Health
//
//	checker := observability.NewHealthChecker(db, redisClient, false, version)
//	observability.RegisterHealthRoutes(mux, checker)
package observability
