package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jeeves-cluster-organization/crewplanner/coreengine/envelope"
)

type budget struct {
	consumed, total int
}

func (b budget) ConsumedIterations() int { return b.consumed }
func (b budget) Budget() int             { return b.total }

func TestDecide(t *testing.T) {
	tests := []struct {
		name   string
		score  int
		area   envelope.ImprovementArea
		budget budget
		want   Decision
	}{
		{"accepted score", 8, envelope.ImprovementNone, budget{0, 9}, Finalize(envelope.TerminalReasonScoreAccepted)},
		{"score equal to threshold", 7, envelope.ImprovementPlanning, budget{0, 9}, Finalize(envelope.TerminalReasonScoreAccepted)},
		{"low score without area", 4, envelope.ImprovementNone, budget{0, 9}, Finalize(envelope.TerminalReasonNoActionableArea)},
		{"backtrack to analysis", 3, envelope.ImprovementAnalysis, budget{0, 9}, Backtrack(envelope.StageAnalysis)},
		{"backtrack to planning", 5, envelope.ImprovementPlanning, budget{2, 9}, Backtrack(envelope.StagePlanning)},
		{"backtrack to implementation", 6, envelope.ImprovementImplementation, budget{8, 9}, Backtrack(envelope.StageImplementation)},
		{"budget exhausted beats low score", 1, envelope.ImprovementAnalysis, budget{9, 9}, Finalize(envelope.TerminalReasonBudgetExhausted)},
		{"budget exhausted beats high score", 10, envelope.ImprovementNone, budget{9, 9}, Finalize(envelope.TerminalReasonBudgetExhausted)},
		{"zero budget", 2, envelope.ImprovementPlanning, budget{0, 0}, Finalize(envelope.TerminalReasonBudgetExhausted)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := envelope.EvaluationDocument{OverallScore: tt.score, ImprovementArea: tt.area}.Verdict(7)
			assert.Equal(t, tt.want, Decide(verdict, tt.budget, 7))
		})
	}
}

func TestDecideWithFlowState(t *testing.T) {
	state := envelope.NewFlowState("run", 1)
	verdict := envelope.EvaluationVerdict{Score: 2, ImprovementArea: envelope.ImprovementImplementation}

	d := Decide(verdict, state, 7)
	assert.False(t, d.IsFinal())
	assert.Equal(t, envelope.StageImplementation, d.Target)

	assert.True(t, state.ConsumeIteration())
	d = Decide(verdict, state, 7)
	assert.True(t, d.IsFinal())
	assert.Equal(t, envelope.TerminalReasonBudgetExhausted, d.Reason)
}

func TestDecideThresholdZeroAlwaysAccepts(t *testing.T) {
	verdict := envelope.EvaluationVerdict{Score: 0, ImprovementArea: envelope.ImprovementAnalysis}
	assert.Equal(t, Finalize(envelope.TerminalReasonScoreAccepted), Decide(verdict, budget{0, 9}, 0))
}
