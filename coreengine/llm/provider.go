// Package llm provides the LLM providers behind the stage reasoning service.
package llm

import (
	"errors"
	"fmt"

	"github.com/jeeves-cluster-organization/crewplanner/coreengine/agents"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/config"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/typeutil"
)

// Backend names accepted in ReasoningConfig.Backend.
const (
	BackendOpenAI    = "openai"
	BackendLangChain = "langchain"
)

// Option keys understood by every provider.
const (
	OptionTemperature = "temperature"
	OptionMaxTokens   = "max_tokens"
	OptionJSONMode    = "json_mode"
)

// ErrEmptyCompletion is returned when the backend answers with no content.
var ErrEmptyCompletion = errors.New("llm returned no choices")

// NewProvider builds the provider selected by cfg.Backend.
func NewProvider(cfg config.ReasoningConfig, logger agents.Logger) (agents.LLMProvider, error) {
	switch cfg.Backend {
	case BackendOpenAI:
		return NewOpenAIProvider(cfg.APIKey, cfg.APIBase, logger), nil
	case BackendLangChain:
		p, err := NewLangChainProvider(cfg.APIKey, cfg.APIBase, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, config.NewConfigError("reasoning.backend", fmt.Sprintf("%q has no LLM provider", cfg.Backend))
	}
}

// Options converts reasoning tunables into the provider options map.
func Options(cfg config.ReasoningConfig) map[string]any {
	opts := map[string]any{
		OptionTemperature: cfg.Temperature,
		OptionJSONMode:    true,
	}
	if cfg.MaxTokens > 0 {
		opts[OptionMaxTokens] = cfg.MaxTokens
	}
	return opts
}

type callOptions struct {
	temperature float64
	maxTokens   int
	jsonMode    bool
}

func parseOptions(options map[string]any) callOptions {
	var co callOptions
	if v, ok := typeutil.LookupFloat64(options, OptionTemperature); ok {
		co.temperature = v
	}
	if v, ok := typeutil.LookupInt(options, OptionMaxTokens); ok && v > 0 {
		co.maxTokens = v
	}
	if v, ok := typeutil.LookupBool(options, OptionJSONMode); ok {
		co.jsonMode = v
	}
	return co
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
