package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// DEFAULT CONFIG TESTS
// =============================================================================

func TestDefaultEngineConfig(t *testing.T) {
	c := DefaultEngineConfig()

	assert.Equal(t, "openai", c.Reasoning.Backend)
	assert.Equal(t, "gpt-4o", c.Reasoning.Model)
	assert.Equal(t, 0.7, c.Reasoning.Temperature)
	assert.Equal(t, 120*time.Second, c.Reasoning.CallTimeout())
	assert.Equal(t, 7, c.Flow.Threshold)
	assert.Equal(t, 9, c.Flow.Budget)
	assert.Equal(t, "crewplanner.flow", c.Events.SubjectPrefix)
	assert.NoError(t, c.Validate())
}

func TestEngineConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*EngineConfig)
	}{
		{"unknown backend", func(c *EngineConfig) { c.Reasoning.Backend = "carrier-pigeon" }},
		{"grpc without address", func(c *EngineConfig) { c.Reasoning.Backend = "grpc" }},
		{"zero timeout", func(c *EngineConfig) { c.Reasoning.TimeoutSeconds = 0 }},
		{"temperature too high", func(c *EngineConfig) { c.Reasoning.Temperature = 3 }},
		{"threshold out of range", func(c *EngineConfig) { c.Flow.Threshold = 12 }},
		{"store without path", func(c *EngineConfig) { c.Store.Path = "" }},
		{"bad log level", func(c *EngineConfig) { c.Logging.Level = "loud" }},
		{"tracing without endpoint", func(c *EngineConfig) { c.Tracing.Enabled = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultEngineConfig()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, IsConfigError(err))
		})
	}
}

func TestEngineConfigInMemoryStoreNeedsNoPath(t *testing.T) {
	c := DefaultEngineConfig()
	c.Store.Path = ""
	c.Store.InMemory = true
	assert.NoError(t, c.Validate())
}

func TestEngineNewRunConfigUsesFlowDefaults(t *testing.T) {
	c := DefaultEngineConfig()
	c.Flow.Budget = 2
	c.Flow.Threshold = 9

	rc := c.NewRunConfig("x")
	assert.Equal(t, 2, rc.Budget)
	assert.Equal(t, 9, rc.Threshold)
}

// =============================================================================
// GLOBAL CONFIG TESTS
// =============================================================================

func TestGlobalEngineConfig(t *testing.T) {
	defer ResetEngineConfig()

	assert.Equal(t, "gpt-4o", GetEngineConfig().Reasoning.Model)

	custom := DefaultEngineConfig()
	custom.Reasoning.Model = "gpt-4o-mini"
	SetEngineConfig(custom)
	assert.Equal(t, "gpt-4o-mini", GetEngineConfig().Reasoning.Model)

	var provider ConfigProvider = &DefaultConfigProvider{}
	assert.Same(t, custom, provider.GetEngineConfig())

	ResetEngineConfig()
	assert.Equal(t, "gpt-4o", GetEngineConfig().Reasoning.Model)
}

func TestStaticConfigProvider(t *testing.T) {
	assert.NotNil(t, NewStaticConfigProvider(nil).GetEngineConfig())

	custom := DefaultEngineConfig()
	assert.Same(t, custom, NewStaticConfigProvider(custom).GetEngineConfig())
}

// =============================================================================
// LOADER TESTS
// =============================================================================

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadDefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultEngineConfig(), cfg)
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	path := writeFile(t, "config.yaml", `
reasoning:
  model: gpt-4o-mini
  temperature: 0.2
  timeout_seconds: 30
flow:
  budget: 4
store:
  in_memory: true
`)
	t.Setenv("CREWPLANNER_REASONING_MODEL", "o3-mini")
	t.Setenv("CREWPLANNER_SERVER_HTTP_ADDR", ":9999")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "o3-mini", cfg.Reasoning.Model)
	assert.Equal(t, 0.2, cfg.Reasoning.Temperature)
	assert.Equal(t, 30, cfg.Reasoning.TimeoutSeconds)
	assert.Equal(t, 4, cfg.Flow.Budget)
	assert.Equal(t, 7, cfg.Flow.Threshold)
	assert.True(t, cfg.Store.InMemory)
	assert.Equal(t, ":9999", cfg.Server.HTTPAddr)
	assert.Equal(t, ":50051", cfg.Server.GRPCAddr)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeFile(t, "config.yaml", "reasoning:\n  backend: telepathy\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "reasoning.api_key", envKey("CREWPLANNER_REASONING_API_KEY"))
	assert.Equal(t, "store.path", envKey("CREWPLANNER_STORE_PATH"))
	assert.Equal(t, "debug", envKey("CREWPLANNER_DEBUG"))
}

func TestLoadRunConfig(t *testing.T) {
	path := writeFile(t, "run.yaml", `
task: Design a support triage crew
threshold: 8
domain:
  domain: customer support
  process_areas: [triage, escalation]
  output_context: ticket routing decisions
`)
	rc, err := LoadRunConfig(path, FlowDefaults{Threshold: 7, Budget: 5})
	require.NoError(t, err)

	assert.Equal(t, "Design a support triage crew", rc.Task)
	assert.Equal(t, 8, rc.Threshold)
	assert.Equal(t, 5, rc.Budget)
	assert.Equal(t, []string{"triage", "escalation"}, rc.Domain.ProcessAreas)
	assert.Equal(t, "ticket routing decisions", rc.Domain.OutputContext)
}

func TestLoadRunConfigMissingTask(t *testing.T) {
	path := writeFile(t, "run.yaml", "budget: 2\n")
	_, err := LoadRunConfig(path, FlowDefaults{Threshold: 7, Budget: 9})
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestEngineConfigFromMap(t *testing.T) {
	cfg, err := EngineConfigFromMap(map[string]any{
		"reasoning": map[string]any{"model": "gpt-4o-mini", "temperature": 0.2},
		"flow":      map[string]any{"budget": 3},
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", cfg.Reasoning.Model)
	assert.Equal(t, 0.2, cfg.Reasoning.Temperature)
	assert.Equal(t, "openai", cfg.Reasoning.Backend)
	assert.Equal(t, 3, cfg.Flow.Budget)
	assert.Equal(t, 7, cfg.Flow.Threshold)
}

func TestEngineConfigFromMapRejectsInvalid(t *testing.T) {
	_, err := EngineConfigFromMap(map[string]any{
		"reasoning": map[string]any{"backend": "carrier-pigeon"},
	})
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}
