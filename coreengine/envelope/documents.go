package envelope

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Document is the structured output of one stage. The set of
// implementations is closed: one concrete shape per stage. Documents are
// values and are never mutated once recorded.
type Document interface {
	Stage() Stage
	document()
}

// =============================================================================
// Analysis
// =============================================================================

// TimeSensitivity describes whether the task is time critical.
type TimeSensitivity struct {
	IsCritical bool   `json:"is_critical"`
	Reasoning  string `json:"reasoning"`
}

// AnalysisDocument captures the requirements analysis of the task.
type AnalysisDocument struct {
	Constraints            []string        `json:"constraints"`
	Requirements           []string        `json:"requirements"`
	Complexity             int             `json:"complexity" validate:"min=1,max=10"`
	DomainKnowledge        []string        `json:"domain_knowledge"`
	TimeSensitivity        TimeSensitivity `json:"time_sensitivity"`
	SuccessCriteria        []string        `json:"success_criteria"`
	RecommendedProcessType ProcessType     `json:"recommended_process_type" validate:"oneof=sequential hierarchical"`

	// Domain context as refined by the analysis.
	Domain         string   `json:"domain,omitempty"`
	ProcessAreas   []string `json:"process_areas,omitempty"`
	ProblemContext string   `json:"problem_context,omitempty"`
	InputContext   string   `json:"input_context,omitempty"`
	OutputContext  string   `json:"output_context,omitempty"`
}

func (AnalysisDocument) Stage() Stage { return StageAnalysis }
func (AnalysisDocument) document()    {}

// UnmarshalJSON accepts a fractional or quoted complexity.
func (d *AnalysisDocument) UnmarshalJSON(data []byte) error {
	type plain AnalysisDocument
	aux := struct {
		*plain
		Complexity looseInt `json:"complexity"`
	}{plain: (*plain)(d), Complexity: looseInt(d.Complexity)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	d.Complexity = int(aux.Complexity)
	return nil
}

// =============================================================================
// Planning
// =============================================================================

// PlanCandidate is one plan considered during planning.
type PlanCandidate struct {
	Name    string   `json:"name"`
	Summary string   `json:"summary,omitempty"`
	Steps   []string `json:"steps,omitempty"`
	Score   float64  `json:"score,omitempty"`
}

// PlanningDocument records the selected planning algorithm and plan.
type PlanningDocument struct {
	SelectedAlgorithm      string          `json:"selected_algorithm" validate:"required"`
	AlgorithmJustification string          `json:"algorithm_justification"`
	CandidatePlans         []PlanCandidate `json:"candidate_plans"`
	SelectedPlan           PlanCandidate   `json:"selected_plan"`
	VerificationScore      int             `json:"verification_score" validate:"min=0,max=10"`
}

func (PlanningDocument) Stage() Stage { return StagePlanning }
func (PlanningDocument) document()    {}

// UnmarshalJSON accepts a fractional or quoted verification score.
func (d *PlanningDocument) UnmarshalJSON(data []byte) error {
	type plain PlanningDocument
	aux := struct {
		*plain
		VerificationScore looseInt `json:"verification_score"`
	}{plain: (*plain)(d), VerificationScore: looseInt(d.VerificationScore)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	d.VerificationScore = int(aux.VerificationScore)
	return nil
}

// =============================================================================
// Implementation
// =============================================================================

// AgentSpec describes one agent of the generated crew.
type AgentSpec struct {
	Name      string   `json:"name" validate:"required"`
	Role      string   `json:"role" validate:"required"`
	Goal      string   `json:"goal"`
	Backstory string   `json:"backstory"`
	Tools     []string `json:"tools,omitempty"`
}

// TaskSpec describes one task of the generated crew.
type TaskSpec struct {
	Name           string   `json:"name" validate:"required"`
	Description    string   `json:"description" validate:"required"`
	ExpectedOutput string   `json:"expected_output"`
	Agent          string   `json:"agent"`
	ContextTasks   []string `json:"context_tasks,omitempty"`
	HumanInput     bool     `json:"human_input,omitempty"`
}

// Workflow is the task ordering of the generated crew.
type Workflow struct {
	Sequence      []string   `json:"sequence"`
	ParallelTasks [][]string `json:"parallel_tasks,omitempty"`
}

// ToolSpec describes a tool the crew needs.
type ToolSpec struct {
	Name    string   `json:"name" validate:"required"`
	Purpose string   `json:"purpose"`
	UsedBy  []string `json:"used_by,omitempty"`
}

// ImplementationDocument is the concrete crew specification.
type ImplementationDocument struct {
	Agents      []AgentSpec `json:"agents" validate:"dive"`
	Tasks       []TaskSpec  `json:"tasks" validate:"dive"`
	Workflow    Workflow    `json:"workflow"`
	ProcessType ProcessType `json:"process_type" validate:"oneof=sequential hierarchical"`
	Tools       []ToolSpec  `json:"tools" validate:"dive"`
}

func (ImplementationDocument) Stage() Stage { return StageImplementation }
func (ImplementationDocument) document()    {}

// =============================================================================
// Evaluation
// =============================================================================

// EvaluationDocument is the critique of an implementation.
type EvaluationDocument struct {
	Strengths       []string        `json:"strengths"`
	Weaknesses      []string        `json:"weaknesses"`
	MissingElements []string        `json:"missing_elements"`
	Recommendations []string        `json:"recommendations"`
	OverallScore    int             `json:"overall_score" validate:"min=0,max=10"`
	ImprovementArea ImprovementArea `json:"improvement_area" validate:"oneof=analysis planning implementation none"`
}

func (EvaluationDocument) Stage() Stage { return StageEvaluation }
func (EvaluationDocument) document()    {}

// UnmarshalJSON accepts a fractional or quoted overall score.
func (d *EvaluationDocument) UnmarshalJSON(data []byte) error {
	type plain EvaluationDocument
	aux := struct {
		*plain
		OverallScore looseInt `json:"overall_score"`
	}{plain: (*plain)(d), OverallScore: looseInt(d.OverallScore)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	d.OverallScore = int(aux.OverallScore)
	return nil
}

// EvaluationVerdict is the decision-relevant view of an evaluation.
type EvaluationVerdict struct {
	Score           int             `json:"score"`
	ImprovementArea ImprovementArea `json:"improvement_area"`
	NeedsRefinement bool            `json:"needs_refinement"`
}

// Verdict derives the verdict against threshold.
func (d EvaluationDocument) Verdict(threshold int) EvaluationVerdict {
	return EvaluationVerdict{
		Score:           d.OverallScore,
		ImprovementArea: d.ImprovementArea,
		NeedsRefinement: d.OverallScore < threshold,
	}
}

// =============================================================================
// Decoding
// =============================================================================

// DecodeDocument unmarshals raw JSON into the concrete document for stage
// and normalizes enumerations and score ranges.
func DecodeDocument(stage Stage, raw []byte) (Document, error) {
	switch stage {
	case StageAnalysis:
		var d AnalysisDocument
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode analysis document: %w", err)
		}
		d.Complexity = clamp(d.Complexity, 1, 10)
		d.RecommendedProcessType = NormalizeProcessType(string(d.RecommendedProcessType))
		return d, nil
	case StagePlanning:
		var d PlanningDocument
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode planning document: %w", err)
		}
		d.VerificationScore = clamp(d.VerificationScore, 0, 10)
		return d, nil
	case StageImplementation:
		var d ImplementationDocument
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode implementation document: %w", err)
		}
		d.ProcessType = NormalizeProcessType(string(d.ProcessType))
		return d, nil
	case StageEvaluation:
		var d EvaluationDocument
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode evaluation document: %w", err)
		}
		d.OverallScore = clamp(d.OverallScore, 0, 10)
		d.ImprovementArea = NormalizeImprovementArea(string(d.ImprovementArea))
		return d, nil
	default:
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
}

// looseInt decodes a JSON number or numeric string, rounding fractions to
// the nearest integer. Range checks are left to the caller.
type looseInt int

// maxLooseInt bounds decoded magnitudes so the int conversion cannot overflow.
const maxLooseInt = 1 << 30

func (n *looseInt) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		var str string
		if json.Unmarshal(data, &str) != nil {
			return fmt.Errorf("invalid integer value %s", data)
		}
		f, err = strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("invalid integer value %q", str)
		}
	}
	f = math.Max(-maxLooseInt, math.Min(maxLooseInt, math.Round(f)))
	*n = looseInt(f)
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func normalizeToken(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
