package observability

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// METRICS TESTS
// =============================================================================

func TestRecordRun(t *testing.T) {
	tests := []struct {
		name        string
		reason      string
		degraded    bool
		degradedStr string
	}{
		{"accepted", "score_accepted", false, "false"},
		{"budget exhausted degraded", "budget_exhausted", true, "true"},
		{"cancelled", "cancelled", false, "false"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(runsTotal.WithLabelValues(tt.reason, tt.degradedStr))
			RecordRun(tt.reason, tt.degraded, 4, 1500)
			after := testutil.ToFloat64(runsTotal.WithLabelValues(tt.reason, tt.degradedStr))
			assert.Equal(t, before+1, after)
		})
	}
}

func TestRecordStageInvocation(t *testing.T) {
	RecordStageInvocation("analysis", "success", 250)
	RecordStageInvocation("analysis", "fallback", 100)

	assert.Greater(t, testutil.ToFloat64(stageInvocationsTotal.WithLabelValues("analysis", "success")), 0.0)
	assert.Greater(t, testutil.ToFloat64(stageInvocationsTotal.WithLabelValues("analysis", "fallback")), 0.0)
}

func TestRecordFallback(t *testing.T) {
	before := testutil.ToFloat64(stageFallbacksTotal.WithLabelValues("planning", "timeout"))
	RecordFallback("planning", "timeout")
	assert.Equal(t, before+1, testutil.ToFloat64(stageFallbacksTotal.WithLabelValues("planning", "timeout")))
}

func TestRecordRefinementDecision(t *testing.T) {
	RecordRefinementDecision("backtrack", "planning")
	RecordRefinementDecision("finalize", "")

	assert.Greater(t, testutil.ToFloat64(refinementDecisionsTotal.WithLabelValues("backtrack", "planning")), 0.0)
	assert.Greater(t, testutil.ToFloat64(refinementDecisionsTotal.WithLabelValues("finalize", "")), 0.0)
}

func TestRecordLLMAndTransport(t *testing.T) {
	RecordLLMCall("openai", "gpt-4o", "success", 1200)
	RecordGRPCRequest("/crewplanner.v1.PlannerService/Plan", "OK", 30)
	RecordEventPublished("flow_finalized", "ok")

	assert.Greater(t, testutil.ToFloat64(llmCallsTotal.WithLabelValues("openai", "gpt-4o", "success")), 0.0)
	assert.Greater(t, testutil.ToFloat64(grpcRequestsTotal.WithLabelValues("/crewplanner.v1.PlannerService/Plan", "OK")), 0.0)
	assert.Greater(t, testutil.ToFloat64(eventsPublishedTotal.WithLabelValues("flow_finalized", "ok")), 0.0)
}

func TestMetrics_Concurrent(t *testing.T) {
	const goroutines = 10
	const iterations = 100

	before := testutil.ToFloat64(stageInvocationsTotal.WithLabelValues("concurrent", "success"))

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				RecordStageInvocation("concurrent", "success", 10)
				RecordRefinementDecision("finalize", "")
			}
		}()
	}
	wg.Wait()

	after := testutil.ToFloat64(stageInvocationsTotal.WithLabelValues("concurrent", "success"))
	assert.Equal(t, float64(goroutines*iterations), after-before)
}

// =============================================================================
// TRACING TESTS
// =============================================================================

func TestInitTracerReturnsShutdown(t *testing.T) {
	// The exporter connects lazily, so an unreachable endpoint still
	// yields a provider that can be shut down.
	ctx, cancel := context.WithCancel(context.Background())
	shutdown, err := InitTracer(ctx, TracerOptions{
		ServiceName: "crewplanner-test",
		Endpoint:    "127.0.0.1:1",
		SampleRatio: 0.25,
	})
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	cancel()
	_ = shutdown(ctx)
}

func TestSamplerRatio(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{0, "AlwaysOnSampler"},
		{1, "AlwaysOnSampler"},
		{1.5, "AlwaysOnSampler"},
		{0.5, "TraceIDRatioBased{0.5}"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sampler(tt.ratio).Description())
	}
}
