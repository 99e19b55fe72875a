package envelope

import (
	"fmt"
	"time"
)

// SchemaProperty is one property of a JSON-schema style object.
type SchemaProperty struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Example     any    `json:"example,omitempty"`
}

// Schema is a minimal JSON-schema style object description.
type Schema struct {
	Type       string                    `json:"type"`
	Properties map[string]SchemaProperty `json:"properties"`
	Required   []string                  `json:"required,omitempty"`
}

// InputSchemaFor describes the input a generated crew expects.
func InputSchemaFor(d DomainContext) Schema {
	return Schema{
		Type: "object",
		Properties: map[string]SchemaProperty{
			"domain": {
				Type:        "string",
				Description: fmt.Sprintf("The domain context (%s)", d.Domain),
				Example:     d.Domain,
			},
			"problem_context": {
				Type:        "string",
				Description: "Detailed description of the problem being solved",
				Example:     d.ProblemContext,
			},
			"input_data": {
				Type:        "object",
				Description: fmt.Sprintf("The input data: %s", d.InputContext),
				Example:     map[string]any{"sample": "data"},
			},
		},
		Required: []string{"domain", "problem_context", "input_data"},
	}
}

// OutputSchemaFor describes the result a generated crew produces.
func OutputSchemaFor(d DomainContext) Schema {
	return Schema{
		Type: "object",
		Properties: map[string]SchemaProperty{
			"result": {
				Type:        "object",
				Description: fmt.Sprintf("The output result: %s", d.OutputContext),
				Example:     map[string]any{"status": "success", "data": map[string]any{}},
			},
		},
	}
}

// FinalArtifact is the deliverable of a completed run.
type FinalArtifact struct {
	RunID              string         `json:"run_id"`
	Task               string         `json:"task"`
	Domain             DomainContext  `json:"domain"`
	Agents             []AgentSpec    `json:"agents"`
	Tasks              []TaskSpec     `json:"tasks"`
	Process            ProcessType    `json:"process"`
	Tools              []ToolSpec     `json:"tools,omitempty"`
	Workflow           Workflow       `json:"workflow"`
	InputSchema        Schema         `json:"input_schema"`
	OutputSchema       Schema         `json:"output_schema"`
	Degraded           bool           `json:"degraded"`
	FallbackStages     []Stage        `json:"fallback_stages,omitempty"`
	Iterations         map[Stage]int  `json:"iterations"`
	ConsumedIterations int            `json:"consumed_iterations"`
	FinalScore         *int           `json:"final_score,omitempty"`
	TerminalReason     TerminalReason `json:"terminal_reason"`
	Warnings           []string       `json:"warnings,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

// Validate returns a warning for every task assigned to an unknown agent
// and for tasks without any agent. Warnings never fail a run.
func (a FinalArtifact) Validate() []string {
	names := make(map[string]bool, len(a.Agents))
	for _, ag := range a.Agents {
		names[ag.Name] = true
	}
	var warnings []string
	for _, t := range a.Tasks {
		switch {
		case t.Agent == "":
			warnings = append(warnings, fmt.Sprintf("task %q has no agent", t.Name))
		case !names[t.Agent]:
			warnings = append(warnings, fmt.Sprintf("task %q references unknown agent %q", t.Name, t.Agent))
		}
	}
	return warnings
}
