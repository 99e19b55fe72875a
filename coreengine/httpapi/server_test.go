package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/crewplanner/coreengine/agents"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/config"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/envelope"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/runtime"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/store"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/testutil"
)

func setupTestServer(t *testing.T, service agents.ReasoningService) *Server {
	t.Helper()
	logger := testutil.NewMockLogger()

	runs, err := store.Open(config.StoreConfig{InMemory: true}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = runs.Close() })

	invoker := agents.NewStageInvoker(service, logger, agents.WithCallTimeout(time.Second))
	runner := runtime.NewRunner(invoker, logger, config.FlowDefaults{Threshold: 7, Budget: 2}, runtime.WithRunStore(runs))
	return NewServer(runner, runs, logger)
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	s := setupTestServer(t, testutil.NewScriptedReasoningService())
	rec := do(t, s, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestHandleMetrics(t *testing.T) {
	s := setupTestServer(t, testutil.NewScriptedReasoningService())
	rec := do(t, s, http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestHandlePlan(t *testing.T) {
	t.Run("returns the artifact", func(t *testing.T) {
		s := setupTestServer(t, testutil.NewScriptedReasoningService())
		rec := do(t, s, http.MethodPost, "/api/v1/flows", map[string]any{
			"task":      "Route support tickets",
			"threshold": 7,
			"domain":    map[string]any{"domain": "customer support", "constraints": []string{"4h SLA"}},
		})

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var artifact envelope.FinalArtifact
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &artifact))
		assert.Equal(t, envelope.TerminalReasonScoreAccepted, artifact.TerminalReason)
		assert.Equal(t, "Route support tickets", artifact.Task)
		assert.Len(t, artifact.Tasks, 2)
	})

	t.Run("degraded run still answers 200", func(t *testing.T) {
		svc := testutil.NewScriptedReasoningService().
			Always(envelope.StageImplementation, testutil.Respond("not json"))
		s := setupTestServer(t, svc)
		rec := do(t, s, http.MethodPost, "/api/v1/flows", map[string]any{"task": "Route tickets", "budget": 0})

		require.Equal(t, http.StatusOK, rec.Code)
		var artifact envelope.FinalArtifact
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &artifact))
		assert.True(t, artifact.Degraded)
		assert.Contains(t, artifact.FallbackStages, envelope.StageImplementation)
	})

	tests := []struct {
		name string
		body any
	}{
		{"malformed json", "{not json"},
		{"missing task", map[string]any{"budget": 1}},
		{"threshold out of range", map[string]any{"task": "x", "threshold": 42}},
		{"string budget", map[string]any{"task": "x", "budget": "two"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupTestServer(t, testutil.NewScriptedReasoningService())
			rec := do(t, s, http.MethodPost, "/api/v1/flows", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandleGetRun(t *testing.T) {
	s := setupTestServer(t, testutil.NewScriptedReasoningService())

	rec := do(t, s, http.MethodPost, "/api/v1/flows", map[string]any{"task": "Route tickets"})
	require.Equal(t, http.StatusOK, rec.Code)
	var artifact envelope.FinalArtifact
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &artifact))

	rec = do(t, s, http.MethodGet, "/api/v1/flows/"+artifact.RunID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got envelope.RunRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, artifact.RunID, got.RunID)
	assert.Equal(t, envelope.RunStatusCompleted, got.Status)

	rec = do(t, s, http.MethodGet, "/api/v1/flows/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleDeleteRun(t *testing.T) {
	s := setupTestServer(t, testutil.NewScriptedReasoningService())

	rec := do(t, s, http.MethodPost, "/api/v1/flows", map[string]any{"task": "Route tickets"})
	require.Equal(t, http.StatusOK, rec.Code)
	var artifact envelope.FinalArtifact
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &artifact))

	rec = do(t, s, http.MethodDelete, "/api/v1/flows/"+artifact.RunID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/flows/"+artifact.RunID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodDelete, "/api/v1/flows/"+artifact.RunID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListRuns(t *testing.T) {
	s := setupTestServer(t, testutil.NewScriptedReasoningService())
	for i := 0; i < 3; i++ {
		rec := do(t, s, http.MethodPost, "/api/v1/flows", map[string]any{"task": "Route tickets"})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := do(t, s, http.MethodGet, "/api/v1/flows?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "Route tickets", list[0].Task)
	assert.Equal(t, envelope.TerminalReasonScoreAccepted, list[0].TerminalReason)

	rec = do(t, s, http.MethodGet, "/api/v1/flows?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReadEndpointsWithoutStore(t *testing.T) {
	logger := testutil.NewMockLogger()
	invoker := agents.NewStageInvoker(testutil.NewScriptedReasoningService(), logger)
	s := NewServer(runtime.NewRunner(invoker, logger, config.FlowDefaults{Threshold: 7, Budget: 1}), nil, logger)

	assert.Equal(t, http.StatusNotImplemented, do(t, s, http.MethodGet, "/api/v1/flows", nil).Code)
	assert.Equal(t, http.StatusNotImplemented, do(t, s, http.MethodGet, "/api/v1/flows/x", nil).Code)
	assert.Equal(t, http.StatusNotImplemented, do(t, s, http.MethodDelete, "/api/v1/flows/x", nil).Code)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s := setupTestServer(t, testutil.NewScriptedReasoningService())
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, lis) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + lis.Addr().String() + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
