package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jeeves-cluster-organization/crewplanner/coreengine/envelope"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/testutil"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// fakeLLM answers chat completions with a fixture chosen by the stage
// role named in the prompt.
func fakeLLM(t *testing.T, implementation string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		prompt := req.Messages[len(req.Messages)-1].Content

		content := testutil.EvaluationJSON(9, "none")
		switch {
		case strings.Contains(prompt, "requirements analyst"):
			content = testutil.AnalysisJSON()
		case strings.Contains(prompt, "planning strategist"):
			content = testutil.PlanningJSON()
		case strings.Contains(prompt, "crew architect"):
			content = implementation
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, apiBase, storeBlock string) string {
	t.Helper()
	content := `reasoning:
  backend: openai
  model: test-model
  api_base: ` + apiBase + `
  api_key: test-key
  timeout_seconds: 5
flow:
  threshold: 7
  budget: 1
logging:
  level: error
  format: json
` + storeBlock
	path := filepath.Join(t.TempDir(), "crewplanner.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func inMemoryStore() string {
	return "store:\n  in_memory: true\n"
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// =============================================================================
// COMMANDS
// =============================================================================

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "crewplanner "))
}

func TestPlanCommandJSON(t *testing.T) {
	srv := fakeLLM(t, testutil.ImplementationJSON())
	cfgPath := writeConfig(t, srv.URL, inMemoryStore())

	out, stderr, err := execute(t, "--config", cfgPath, "plan", "--task", "Route support tickets", "--progress")
	require.NoError(t, err)

	var artifact envelope.FinalArtifact
	require.NoError(t, json.Unmarshal([]byte(out), &artifact))
	assert.Equal(t, "Route support tickets", artifact.Task)
	assert.Equal(t, envelope.TerminalReasonScoreAccepted, artifact.TerminalReason)
	assert.False(t, artifact.Degraded)
	assert.Len(t, artifact.Agents, 2)

	assert.Contains(t, stderr, "stage analysis")
	assert.Contains(t, stderr, "decision: finalize (score_accepted)")
}

func TestPlanCommandYAMLFromFile(t *testing.T) {
	srv := fakeLLM(t, testutil.ImplementationJSON())
	cfgPath := writeConfig(t, srv.URL, inMemoryStore())

	runFile := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(runFile, []byte(`task: Plan a product launch
budget: 0
domain:
  domain: marketing
  constraints:
    - launch within 6 weeks
`), 0o600))

	out, _, err := execute(t, "--config", cfgPath, "plan", "--file", runFile, "--output", "yaml")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "Plan a product launch", doc["task"])
	assert.Equal(t, "score_accepted", doc["terminal_reason"])
	domain, ok := doc["domain"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "marketing", domain["domain"])
}

func TestPlanCommandDegraded(t *testing.T) {
	srv := fakeLLM(t, "I would rather not")
	cfgPath := writeConfig(t, srv.URL, inMemoryStore())

	out, _, err := execute(t, "--config", cfgPath, "plan", "--task", "Route tickets", "--budget", "0")
	require.NoError(t, err)

	var artifact envelope.FinalArtifact
	require.NoError(t, json.Unmarshal([]byte(out), &artifact))
	assert.True(t, artifact.Degraded)
	assert.Contains(t, artifact.FallbackStages, envelope.StageImplementation)
	assert.Empty(t, artifact.Agents)
}

func TestPlanCommandErrors(t *testing.T) {
	srv := fakeLLM(t, testutil.ImplementationJSON())
	cfgPath := writeConfig(t, srv.URL, inMemoryStore())

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no task", []string{"plan"}, "--task or --file"},
		{"bad output", []string{"plan", "--task", "x", "--output", "xml"}, "unknown output format"},
		{"threshold out of range", []string{"plan", "--task", "x", "--threshold", "11"}, "threshold"},
		{"negative budget", []string{"plan", "--task", "x", "--budget", "-1"}, "budget"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, append([]string{"--config", cfgPath}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestShowCommand(t *testing.T) {
	srv := fakeLLM(t, testutil.ImplementationJSON())
	storeDir := t.TempDir()
	cfgPath := writeConfig(t, srv.URL, "store:\n  path: "+storeDir+"\n")

	out, _, err := execute(t, "--config", cfgPath, "plan", "--task", "Route tickets")
	require.NoError(t, err)
	var artifact envelope.FinalArtifact
	require.NoError(t, json.Unmarshal([]byte(out), &artifact))

	out, _, err = execute(t, "--config", cfgPath, "show", artifact.RunID)
	require.NoError(t, err)
	var rec envelope.RunRecord
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, artifact.RunID, rec.RunID)
	assert.Equal(t, envelope.RunStatusCompleted, rec.Status)

	out, _, err = execute(t, "--config", cfgPath, "show")
	require.NoError(t, err)
	assert.Contains(t, out, artifact.RunID)
	assert.Contains(t, out, "score_accepted")

	_, _, err = execute(t, "--config", cfgPath, "show", "missing-run")
	assert.Error(t, err)
}

func TestDeleteCommand(t *testing.T) {
	srv := fakeLLM(t, testutil.ImplementationJSON())
	storeDir := t.TempDir()
	cfgPath := writeConfig(t, srv.URL, "store:\n  path: "+storeDir+"\n")

	out, _, err := execute(t, "--config", cfgPath, "plan", "--task", "Route tickets")
	require.NoError(t, err)
	var artifact envelope.FinalArtifact
	require.NoError(t, json.Unmarshal([]byte(out), &artifact))

	out, _, err = execute(t, "--config", cfgPath, "delete", artifact.RunID)
	require.NoError(t, err)
	assert.Equal(t, "deleted "+artifact.RunID+"\n", out)

	_, _, err = execute(t, "--config", cfgPath, "show", artifact.RunID)
	assert.Error(t, err)

	_, _, err = execute(t, "--config", cfgPath, "delete", artifact.RunID)
	assert.Error(t, err)

	_, _, err = execute(t, "--config", cfgPath, "delete")
	assert.Error(t, err)
}
