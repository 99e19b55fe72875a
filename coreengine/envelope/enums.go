// Package envelope holds the data model of a planning run: stages, stage
// results, the typed stage documents, the mutable FlowState and the
// FinalArtifact handed back to callers.
package envelope

// Stage is one phase of the fixed four-stage pipeline.
type Stage string

const (
	StageAnalysis       Stage = "analysis"
	StagePlanning       Stage = "planning"
	StageImplementation Stage = "implementation"
	StageEvaluation     Stage = "evaluation"
)

// StageOrder is the forward order of a pass.
var StageOrder = []Stage{StageAnalysis, StagePlanning, StageImplementation, StageEvaluation}

// Index returns the position of s in StageOrder, or -1.
func (s Stage) Index() int {
	for i, st := range StageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// IsValid reports whether s is one of the four stages.
func (s Stage) IsValid() bool {
	return s.Index() >= 0
}

// Next returns the stage after s and false when s is Evaluation.
func (s Stage) Next() (Stage, bool) {
	i := s.Index()
	if i < 0 || i == len(StageOrder)-1 {
		return "", false
	}
	return StageOrder[i+1], true
}

// After returns every stage strictly after s in forward order.
func (s Stage) After() []Stage {
	i := s.Index()
	if i < 0 {
		return nil
	}
	out := make([]Stage, 0, len(StageOrder)-i-1)
	return append(out, StageOrder[i+1:]...)
}

// ConsumesBudget reports whether re-running s can be requested by a verdict.
func (s Stage) ConsumesBudget() bool {
	return s != StageEvaluation && s.IsValid()
}

// ParseStage converts a string into a Stage.
func ParseStage(v string) (Stage, bool) {
	s := Stage(v)
	return s, s.IsValid()
}

// ImprovementArea is the stage an evaluation asks to revisit.
type ImprovementArea string

const (
	ImprovementAnalysis       ImprovementArea = "analysis"
	ImprovementPlanning       ImprovementArea = "planning"
	ImprovementImplementation ImprovementArea = "implementation"
	ImprovementNone           ImprovementArea = "none"
)

// NormalizeImprovementArea maps free text onto a known area; anything
// unrecognised becomes ImprovementNone.
func NormalizeImprovementArea(v string) ImprovementArea {
	switch ImprovementArea(normalizeToken(v)) {
	case ImprovementAnalysis:
		return ImprovementAnalysis
	case ImprovementPlanning:
		return ImprovementPlanning
	case ImprovementImplementation:
		return ImprovementImplementation
	default:
		return ImprovementNone
	}
}

// Stage returns the stage to backtrack to, false for ImprovementNone.
func (a ImprovementArea) Stage() (Stage, bool) {
	switch a {
	case ImprovementAnalysis:
		return StageAnalysis, true
	case ImprovementPlanning:
		return StagePlanning, true
	case ImprovementImplementation:
		return StageImplementation, true
	default:
		return "", false
	}
}

// ResultKind tags a StageResult.
type ResultKind string

const (
	ResultSuccess  ResultKind = "success"
	ResultFallback ResultKind = "fallback"
)

// TerminalReason represents why a run finalized - exactly one per run.
type TerminalReason string

const (
	// TerminalReasonScoreAccepted indicates the evaluation met the threshold.
	TerminalReasonScoreAccepted TerminalReason = "score_accepted"
	// TerminalReasonBudgetExhausted indicates no refinement budget was left.
	TerminalReasonBudgetExhausted TerminalReason = "budget_exhausted"
	// TerminalReasonNoActionableArea indicates a low score without an improvement area.
	TerminalReasonNoActionableArea TerminalReason = "no_actionable_area"
	// TerminalReasonCancelled indicates the caller cancelled between stages.
	TerminalReasonCancelled TerminalReason = "cancelled"
)

// ProcessType is the execution style recommended for the generated crew.
type ProcessType string

const (
	ProcessSequential   ProcessType = "sequential"
	ProcessHierarchical ProcessType = "hierarchical"
)

// NormalizeProcessType defaults unknown values to sequential.
func NormalizeProcessType(v string) ProcessType {
	if ProcessType(normalizeToken(v)) == ProcessHierarchical {
		return ProcessHierarchical
	}
	return ProcessSequential
}
