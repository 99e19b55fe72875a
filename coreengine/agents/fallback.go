package agents

import (
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/envelope"
)

// FallbackCatalog supplies the deterministic document used when a stage
// invocation fails. Defaults satisfy the same shape checks as genuine
// output so downstream stages consume them unchanged.
type FallbackCatalog interface {
	DefaultFor(stage envelope.Stage) envelope.Document
}

// DefaultFallbacks is the built-in, stateless catalog.
var DefaultFallbacks FallbackCatalog = staticFallbacks{}

type staticFallbacks struct{}

// DefaultFor returns a fresh default document for stage. Slices are newly
// allocated on each call so no two results share backing arrays.
func (staticFallbacks) DefaultFor(stage envelope.Stage) envelope.Document {
	switch stage {
	case envelope.StageAnalysis:
		return envelope.AnalysisDocument{
			Constraints:     []string{},
			Requirements:    []string{},
			Complexity:      5,
			DomainKnowledge: []string{"General"},
			TimeSensitivity: envelope.TimeSensitivity{
				IsCritical: false,
				Reasoning:  "Unknown",
			},
			SuccessCriteria:        []string{"Basic functionality"},
			RecommendedProcessType: envelope.ProcessSequential,
		}
	case envelope.StagePlanning:
		return envelope.PlanningDocument{
			SelectedAlgorithm:      "Best-of-N Planning",
			AlgorithmJustification: "Default approach due to error",
			CandidatePlans:         []envelope.PlanCandidate{},
			VerificationScore:      5,
		}
	case envelope.StageImplementation:
		return envelope.ImplementationDocument{
			Agents:      []envelope.AgentSpec{},
			Tasks:       []envelope.TaskSpec{},
			Workflow:    envelope.Workflow{Sequence: []string{}},
			ProcessType: envelope.ProcessSequential,
			Tools:       []envelope.ToolSpec{},
		}
	default:
		return envelope.EvaluationDocument{
			Strengths:       []string{"Functional implementation"},
			Weaknesses:      []string{"Error during evaluation"},
			MissingElements: []string{},
			Recommendations: []string{"Review implementation manually"},
			OverallScore:    5,
			ImprovementArea: envelope.ImprovementNone,
		}
	}
}
