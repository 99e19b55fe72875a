package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jeeves-cluster-organization/crewplanner/coreengine/envelope"
)

// stageInstructions is the role prompt for each stage.
var stageInstructions = map[envelope.Stage]string{
	envelope.StageAnalysis: `You are a requirements analyst. Analyze the user task and its domain.
Identify explicit and implicit constraints, functional requirements, the
domain knowledge needed, time sensitivity, success criteria and whether a
sequential or hierarchical crew process fits best. Rate complexity from 1 to 10.`,

	envelope.StagePlanning: `You are a planning strategist. Using the analysis, choose a planning
algorithm, justify the choice, propose candidate plans and select one.
Verify the selected plan against the requirements and give it a
verification score from 0 to 10.`,

	envelope.StageImplementation: `You are a crew architect. Turn the selected plan into a concrete crew:
agents with role, goal and backstory, tasks with description, expected
output and the agent that owns them, the task workflow, the process type
and the tools the agents need. Every task must name one of the agents.`,

	envelope.StageEvaluation: `You are a QA manager. Evaluate the crew implementation for completeness,
efficiency and alignment with the user task. List strengths, weaknesses,
missing elements and recommendations. Give an overall score from 0 to 10
and name the single stage most worth revisiting: analysis, planning,
implementation, or none.`,
}

// LLMReasoningService implements ReasoningService on top of an LLMProvider
// by prompting for a JSON document of the stage's shape.
type LLMReasoningService struct {
	provider LLMProvider
	model    string
	options  map[string]any
	logger   Logger
}

// NewLLMReasoningService creates a reasoning service for model.
func NewLLMReasoningService(provider LLMProvider, model string, options map[string]any, logger Logger) *LLMReasoningService {
	return &LLMReasoningService{
		provider: provider,
		model:    model,
		options:  options,
		logger:   logger.Bind("component", "llm_reasoning"),
	}
}

// Reason prompts the provider and returns the extracted JSON object.
func (s *LLMReasoningService) Reason(ctx context.Context, stage envelope.Stage, payload []byte) ([]byte, error) {
	prompt, err := BuildPrompt(stage, payload)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("llm_prompt_built",
		"stage", string(stage),
		"model", s.model,
		"prompt_length", len(prompt),
	)

	response, err := s.provider.Generate(ctx, s.model, prompt, s.options)
	if err != nil {
		return nil, err
	}

	obj, err := extractJSON(response)
	if err != nil {
		return nil, fmt.Errorf("%w: %v (response: %s)", ErrMalformedResponse, err, truncate(response, 200))
	}
	return obj, nil
}

// BuildPrompt renders the prompt for stage from its serialized context.
func BuildPrompt(stage envelope.Stage, payload []byte) (string, error) {
	instructions, ok := stageInstructions[stage]
	if !ok {
		return "", fmt.Errorf("unknown stage %q", stage)
	}

	example, err := json.MarshalIndent(DefaultFallbacks.DefaultFor(stage), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode example document: %w", err)
	}

	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\nContext (JSON):\n")
	b.Write(payload)
	b.WriteString("\n\nIf the context contains feedback from a previous evaluation, address its weaknesses and missing elements.\n")
	b.WriteString("\nRespond with a single JSON object with exactly these fields, for example:\n")
	b.Write(example)
	b.WriteString("\n\nDo not include any text outside the JSON object.")
	return b.String(), nil
}
