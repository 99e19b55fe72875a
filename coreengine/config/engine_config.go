package config

import (
	"errors"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// ReasoningConfig selects and tunes the reasoning backend.
type ReasoningConfig struct {
	Backend        string  `json:"backend" koanf:"backend" validate:"oneof=openai langchain grpc"`
	Model          string  `json:"model" koanf:"model" validate:"required_unless=Backend grpc"`
	Temperature    float64 `json:"temperature" koanf:"temperature" validate:"min=0,max=2"`
	APIBase        string  `json:"api_base" koanf:"api_base"`
	APIKey         string  `json:"-" koanf:"api_key"`
	MaxTokens      int     `json:"max_tokens" koanf:"max_tokens" validate:"min=0"`
	TimeoutSeconds int     `json:"timeout_seconds" koanf:"timeout_seconds" validate:"min=1"`
	RatePerSecond  float64 `json:"rate_per_second" koanf:"rate_per_second" validate:"min=0"`
	Burst          int     `json:"burst" koanf:"burst" validate:"min=0"`
	Address        string  `json:"address" koanf:"address" validate:"required_if=Backend grpc"`
}

// CallTimeout is the deadline applied to each stage invocation.
func (c ReasoningConfig) CallTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// FlowDefaults are the tunables used when a run does not set its own.
type FlowDefaults struct {
	Threshold int `json:"threshold" koanf:"threshold" validate:"min=0,max=10"`
	Budget    int `json:"budget" koanf:"budget" validate:"min=0"`
}

// StoreConfig configures the run store.
type StoreConfig struct {
	Path     string `json:"path" koanf:"path" validate:"required_unless=InMemory true"`
	InMemory bool   `json:"in_memory" koanf:"in_memory"`
}

// ServerConfig holds listen addresses.
type ServerConfig struct {
	HTTPAddr string `json:"http_addr" koanf:"http_addr"`
	GRPCAddr string `json:"grpc_addr" koanf:"grpc_addr"`
}

// EventsConfig configures the NATS event bridge. Empty URL disables it.
type EventsConfig struct {
	NATSURL       string `json:"nats_url" koanf:"nats_url"`
	SubjectPrefix string `json:"subject_prefix" koanf:"subject_prefix"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `json:"level" koanf:"level" validate:"oneof=debug info warn error"`
	Format string `json:"format" koanf:"format" validate:"oneof=json console"`
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" koanf:"enabled"`
	Endpoint    string  `json:"endpoint" koanf:"endpoint" validate:"required_if=Enabled true"`
	ServiceName string  `json:"service_name" koanf:"service_name"`
	SampleRatio float64 `json:"sample_ratio" koanf:"sample_ratio" validate:"gte=0,lte=1"`
}

// EngineConfig is the process-wide configuration.
type EngineConfig struct {
	Reasoning ReasoningConfig `json:"reasoning" koanf:"reasoning"`
	Flow      FlowDefaults    `json:"flow" koanf:"flow"`
	Store     StoreConfig     `json:"store" koanf:"store"`
	Server    ServerConfig    `json:"server" koanf:"server"`
	Events    EventsConfig    `json:"events" koanf:"events"`
	Logging   LoggingConfig   `json:"logging" koanf:"logging"`
	Tracing   TracingConfig   `json:"tracing" koanf:"tracing"`
}

// DefaultEngineConfig returns an EngineConfig with default values.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		Reasoning: ReasoningConfig{
			Backend:        "openai",
			Model:          "gpt-4o",
			Temperature:    0.7,
			MaxTokens:      4096,
			TimeoutSeconds: 120,
			RatePerSecond:  0, // unlimited
			Burst:          1,
		},
		Flow: FlowDefaults{
			Threshold: DefaultThreshold,
			Budget:    DefaultBudget,
		},
		Store: StoreConfig{
			Path: "data/runs",
		},
		Server: ServerConfig{
			HTTPAddr: ":8080",
			GRPCAddr: ":50051",
		},
		Events: EventsConfig{
			SubjectPrefix: "crewplanner.flow",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			ServiceName: "crewplanner",
			SampleRatio: 1,
		},
	}
}

// Validate checks the engine configuration and returns a *ConfigError.
func (c *EngineConfig) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ConfigError{Reason: err.Error(), Err: err}
	}
	fe := verrs[0]
	return &ConfigError{
		Field:  fe.Namespace(),
		Reason: describeFieldError(fe),
		Err:    err,
	}
}

// NewRunConfig returns a RunConfig for task using the engine's flow defaults.
func (c *EngineConfig) NewRunConfig(task string) RunConfig {
	rc := NewRunConfig(task)
	rc.Threshold = c.Flow.Threshold
	rc.Budget = c.Flow.Budget
	return rc
}

// =============================================================================
// CONFIG PROVIDER INTERFACE (Dependency Injection)
// =============================================================================

// ConfigProvider provides the engine configuration.
type ConfigProvider interface {
	GetEngineConfig() *EngineConfig
}

// DefaultConfigProvider provides the global configuration.
type DefaultConfigProvider struct{}

// GetEngineConfig returns the global engine configuration.
func (p *DefaultConfigProvider) GetEngineConfig() *EngineConfig {
	return GetEngineConfig()
}

// StaticConfigProvider provides a fixed configuration, mostly for tests.
type StaticConfigProvider struct {
	Config *EngineConfig
}

// GetEngineConfig returns the static configuration or defaults.
func (p *StaticConfigProvider) GetEngineConfig() *EngineConfig {
	if p.Config == nil {
		return DefaultEngineConfig()
	}
	return p.Config
}

// NewStaticConfigProvider creates a new StaticConfigProvider.
func NewStaticConfigProvider(config *EngineConfig) *StaticConfigProvider {
	return &StaticConfigProvider{Config: config}
}

// =============================================================================
// GLOBAL CONFIG (set once at startup)
// =============================================================================

var (
	globalEngineConfig *EngineConfig
	configMu           sync.RWMutex
)

// GetEngineConfig returns the global configuration or defaults.
func GetEngineConfig() *EngineConfig {
	configMu.RLock()
	defer configMu.RUnlock()

	if globalEngineConfig == nil {
		return DefaultEngineConfig()
	}
	return globalEngineConfig
}

// SetEngineConfig installs the global configuration.
func SetEngineConfig(config *EngineConfig) {
	configMu.Lock()
	defer configMu.Unlock()

	globalEngineConfig = config
}

// ResetEngineConfig clears the global configuration.
// After reset, GetEngineConfig() returns defaults.
func ResetEngineConfig() {
	configMu.Lock()
	defer configMu.Unlock()

	globalEngineConfig = nil
}
