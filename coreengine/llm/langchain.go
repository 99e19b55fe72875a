package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/jeeves-cluster-organization/crewplanner/coreengine/agents"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/observability"
)

// LangChainProvider generates through a langchaingo model.
type LangChainProvider struct {
	model  llms.Model
	logger agents.Logger
}

// NewLangChainProvider creates a provider backed by langchaingo's OpenAI client.
func NewLangChainProvider(apiKey, baseURL string, logger agents.Logger) (*LangChainProvider, error) {
	if apiKey == "" {
		// langchaingo refuses an empty token, even for local endpoints
		apiKey = "placeholder"
	}
	opts := []openai.Option{openai.WithToken(apiKey)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating langchain client: %w", err)
	}
	return NewLangChainProviderWithModel(model, logger), nil
}

// NewLangChainProviderWithModel wraps an existing langchaingo model.
func NewLangChainProviderWithModel(model llms.Model, logger agents.Logger) *LangChainProvider {
	return &LangChainProvider{
		model:  model,
		logger: logger.Bind("provider", BackendLangChain),
	}
}

// Generate implements agents.LLMProvider.
func (p *LangChainProvider) Generate(ctx context.Context, model string, prompt string, options map[string]any) (string, error) {
	co := parseOptions(options)
	callOpts := []llms.CallOption{
		llms.WithModel(model),
		llms.WithTemperature(co.temperature),
	}
	if co.maxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(co.maxTokens))
	}
	if co.jsonMode {
		callOpts = append(callOpts, llms.WithJSONMode())
	}

	start := time.Now()
	content, err := llms.GenerateFromSinglePrompt(ctx, p.model, prompt, callOpts...)
	durationMS := int(time.Since(start).Milliseconds())
	observability.RecordLLMCall(BackendLangChain, model, statusOf(err), durationMS)

	if err != nil {
		p.logger.Warn("llm_call_failed", "model", model, "duration_ms", durationMS, "error", err.Error())
		return "", fmt.Errorf("langchain generate: %w", err)
	}
	if content == "" {
		return "", ErrEmptyCompletion
	}
	p.logger.Debug("llm_call_completed", "model", model, "duration_ms", durationMS)
	return content, nil
}

var _ agents.LLMProvider = (*LangChainProvider)(nil)
