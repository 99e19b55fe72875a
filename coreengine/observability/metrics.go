// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for the planner.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// RUN METRICS
// =============================================================================

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crewplanner_runs_total",
			Help: "Total number of completed planning runs",
		},
		[]string{"terminal_reason", "degraded"},
	)

	runDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crewplanner_run_duration_seconds",
			Help:    "Planning run duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"terminal_reason"},
	)

	runInvocations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crewplanner_run_stage_invocations",
			Help:    "Stage invocations per planning run",
			Buckets: []float64{4, 8, 12, 16, 20, 28, 40},
		},
	)
)

// =============================================================================
// STAGE METRICS
// =============================================================================

var (
	stageInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crewplanner_stage_invocations_total",
			Help: "Total number of stage invocations",
		},
		[]string{"stage", "outcome"}, // outcome: success, fallback
	)

	stageDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crewplanner_stage_duration_seconds",
			Help:    "Stage invocation duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	stageFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crewplanner_stage_fallbacks_total",
			Help: "Stage invocations that were replaced by a fallback document",
		},
		[]string{"stage", "kind"}, // kind: timeout, transport, malformed, panic, rate_limited
	)

	refinementDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crewplanner_refinement_decisions_total",
			Help: "Refinement policy decisions",
		},
		[]string{"decision", "target"}, // decision: finalize, backtrack
	)
)

// =============================================================================
// LLM METRICS
// =============================================================================

var (
	llmCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crewplanner_llm_calls_total",
			Help: "Total number of LLM API calls",
		},
		[]string{"provider", "model", "status"}, // status: success, error
	)

	llmDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crewplanner_llm_duration_seconds",
			Help:    "LLM call duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)
)

// =============================================================================
// TRANSPORT METRICS
// =============================================================================

var (
	grpcRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crewplanner_grpc_requests_total",
			Help: "Total gRPC requests",
		},
		[]string{"method", "status"}, // status: OK, InvalidArgument, Internal, etc.
	)

	grpcRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crewplanner_grpc_request_duration_seconds",
			Help:    "gRPC request duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.1, 1, 5, 30, 120, 600},
		},
		[]string{"method"},
	)

	eventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crewplanner_events_published_total",
			Help: "Flow events forwarded to the external event bus",
		},
		[]string{"event", "status"},
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordRun records metrics for a finished run.
func RecordRun(terminalReason string, degraded bool, invocations int, durationMS int) {
	d := "false"
	if degraded {
		d = "true"
	}
	runsTotal.WithLabelValues(terminalReason, d).Inc()
	runDurationSeconds.WithLabelValues(terminalReason).Observe(float64(durationMS) / 1000.0)
	runInvocations.Observe(float64(invocations))
}

// RecordStageInvocation records one stage invocation.
func RecordStageInvocation(stage string, outcome string, durationMS int) {
	stageInvocationsTotal.WithLabelValues(stage, outcome).Inc()
	stageDurationSeconds.WithLabelValues(stage).Observe(float64(durationMS) / 1000.0)
}

// RecordFallback records a contained invocation failure.
func RecordFallback(stage string, kind string) {
	stageFallbacksTotal.WithLabelValues(stage, kind).Inc()
}

// RecordRefinementDecision records a policy decision. target is the
// backtrack stage, or empty for finalize.
func RecordRefinementDecision(decision string, target string) {
	refinementDecisionsTotal.WithLabelValues(decision, target).Inc()
}

// RecordLLMCall records LLM call metrics.
func RecordLLMCall(provider string, model string, status string, durationMS int) {
	llmCallsTotal.WithLabelValues(provider, model, status).Inc()
	llmDurationSeconds.WithLabelValues(provider, model).Observe(float64(durationMS) / 1000.0)
}

// RecordGRPCRequest records gRPC request metrics.
// This should be called from gRPC interceptors.
func RecordGRPCRequest(method string, status string, durationMS int) {
	grpcRequestsTotal.WithLabelValues(method, status).Inc()
	grpcRequestDurationSeconds.WithLabelValues(method).Observe(float64(durationMS) / 1000.0)
}

// RecordEventPublished records an event forwarded to NATS.
func RecordEventPublished(event string, status string) {
	eventsPublishedTotal.WithLabelValues(event, status).Inc()
}
