package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"authgate/internal/auth"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AdmissionMetrics counts gate decisions in Prometheus and, when set,
// in the OpenTelemetry admission counter.
type AdmissionMetrics struct {
	decisions *prometheus.CounterVec
	otel      metric.Int64Counter
}

var _ auth.Recorder = (*AdmissionMetrics)(nil)

// NewRegistry returns a registry carrying the Go runtime and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewAdmissionMetrics registers the decision counter on reg. otelCounter may be nil.
func NewAdmissionMetrics(reg prometheus.Registerer, otelCounter metric.Int64Counter) (*AdmissionMetrics, error) {
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authgate_admission_decisions_total",
		Help: "Admission decisions by outcome and failure reason.",
	}, []string{"outcome", "reason"})

	if err := reg.Register(decisions); err != nil {
		return nil, fmt.Errorf("failed to register admission counter: %w", err)
	}

	return &AdmissionMetrics{decisions: decisions, otel: otelCounter}, nil
}

// RecordAdmission implements auth.Recorder
// Decisions without a failure reason are labelled reason="none".
func (m *AdmissionMetrics) RecordAdmission(ctx context.Context, outcome auth.Outcome, reason auth.FailureReason) {
	label := string(reason)
	if label == "" {
		label = "none"
	}

	m.decisions.WithLabelValues(string(outcome), label).Inc()
	if m.otel != nil {
		m.otel.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", string(outcome)),
			attribute.String("reason", label),
		))
	}
}

// Handler exposes reg in the Prometheus text format
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
