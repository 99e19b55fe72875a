package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/jeeves-cluster-organization/crewplanner/coreengine/agents"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/observability"
)

const systemPrompt = "You design multi-agent crews. Answer with a single JSON object and nothing else."

// OpenAIProvider calls an OpenAI compatible chat completion endpoint.
type OpenAIProvider struct {
	client *openai.Client
	logger agents.Logger
}

// NewOpenAIProvider creates a provider. An empty baseURL uses the public API.
func NewOpenAIProvider(apiKey, baseURL string, logger agents.Logger) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		logger: logger.Bind("provider", BackendOpenAI),
	}
}

// Generate implements agents.LLMProvider.
func (p *OpenAIProvider) Generate(ctx context.Context, model string, prompt string, options map[string]any) (string, error) {
	co := parseOptions(options)
	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(co.temperature),
		MaxTokens:   co.maxTokens,
	}
	if co.jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()
	content, err := p.complete(ctx, req)
	durationMS := int(time.Since(start).Milliseconds())
	observability.RecordLLMCall(BackendOpenAI, model, statusOf(err), durationMS)

	if err != nil {
		p.logger.Warn("llm_call_failed", "model", model, "duration_ms", durationMS, "error", err.Error())
		return "", err
	}
	p.logger.Debug("llm_call_completed", "model", model, "duration_ms", durationMS)
	return content, nil
}

func (p *OpenAIProvider) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

var _ agents.LLMProvider = (*OpenAIProvider)(nil)
