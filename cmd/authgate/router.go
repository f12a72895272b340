package main

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"authgate/internal/auth"
	"authgate/internal/config"
	"authgate/internal/http/docs"
	"authgate/internal/http/handler"
	"authgate/internal/http/httperr"
	"authgate/internal/http/middleware"
	"authgate/internal/observability/logger"
	"authgate/internal/telemetry"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterDeps holds what buildRouter wires together. Nil fields fall back to
// defaults: env admission, a fresh registry, diagnostics without backends.
type RouterDeps struct {
	Cfg         *config.Config
	Log         *logger.Logger
	Admission   config.AdmissionSource
	Recorder    auth.Recorder
	Verifier    auth.TokenVerifier
	Metrics     *telemetry.Metrics
	Registry    *prometheus.Registry
	Diagnostics *handler.DiagnosticsHandler
}

// buildRouter builds the chi.Router with all middlewares and routes.
func buildRouter(deps RouterDeps) chi.Router {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Admission == nil {
		deps.Admission = config.EnvAdmission()
	}
	if deps.Registry == nil {
		deps.Registry = telemetry.NewRegistry()
	}
	if deps.Diagnostics == nil {
		deps.Diagnostics = handler.NewDiagnosticsHandler(nil, nil)
	}

	gateOpts := []auth.GateOption{auth.WithRecorder(deps.Recorder)}
	if deps.Verifier != nil {
		gateOpts = append(gateOpts, auth.WithVerifier(deps.Verifier))
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.RequestLoggingMiddleware(deps.Log))
	r.Use(middleware.RecoveryMiddleware(deps.Log))
	r.Use(telemetry.OTelMiddleware(deps.Cfg.ServiceName))
	r.Use(telemetry.MetricsMiddleware(deps.Metrics))

	r.Get("/health", deps.Diagnostics.Health)
	r.Get("/ready", deps.Diagnostics.Ready)
	r.With(metricsAuth(deps.Cfg.MetricsToken)).Get("/metrics", telemetry.Handler(deps.Registry).ServeHTTP)
	r.Get("/openapi.yaml", docs.OpenAPIHandler().ServeHTTP)
	r.Get("/docs", docs.ScalarDocsHandler(deps.Cfg.ServiceName, "/openapi.yaml").ServeHTTP)

	// Everything under /api passes the gate. /api/test-db is admitted by the
	// bypass list, not by being mounted outside the group.
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(deps.Admission, gateOpts...))

		r.Get("/test-db", deps.Diagnostics.TestDB)
		r.Get("/me", handler.Me)
	})

	return r
}

// metricsAuth protects /metrics with METRICS_TOKEN, sent as X-Metrics-Token
// or as a bearer token. An empty token leaves the endpoint open.
func metricsAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get("X-Metrics-Token")
			if provided == "" {
				provided = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				httperr.Unauthorized401(w, r.Context(), "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
