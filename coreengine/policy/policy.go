// Package policy decides, after each evaluation, whether a run finalizes
// or backtracks to an earlier stage.
package policy

import (
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/envelope"
)

// Action is the kind of decision.
type Action string

const (
	ActionFinalize  Action = "finalize"
	ActionBacktrack Action = "backtrack"
)

// Decision is the outcome of Decide. Target is set only for backtracks;
// Reason is set only when finalizing.
type Decision struct {
	Action Action                  `json:"action"`
	Target envelope.Stage          `json:"target,omitempty"`
	Reason envelope.TerminalReason `json:"reason,omitempty"`
}

// Finalize returns a finalizing decision.
func Finalize(reason envelope.TerminalReason) Decision {
	return Decision{Action: ActionFinalize, Reason: reason}
}

// Backtrack returns a decision to re-run target.
func Backtrack(target envelope.Stage) Decision {
	return Decision{Action: ActionBacktrack, Target: target}
}

// IsFinal reports whether d ends the run.
func (d Decision) IsFinal() bool {
	return d.Action == ActionFinalize
}

// Budget is the read-only view of the refinement budget Decide needs.
// *envelope.FlowState satisfies it.
type Budget interface {
	ConsumedIterations() int
	Budget() int
}

// Decide maps an evaluation verdict and the budget state to a decision.
// The rules apply in order; budget exhaustion wins over a low score.
func Decide(verdict envelope.EvaluationVerdict, state Budget, threshold int) Decision {
	if state.ConsumedIterations() >= state.Budget() {
		return Finalize(envelope.TerminalReasonBudgetExhausted)
	}
	if verdict.Score >= threshold {
		return Finalize(envelope.TerminalReasonScoreAccepted)
	}
	target, ok := verdict.ImprovementArea.Stage()
	if !ok {
		return Finalize(envelope.TerminalReasonNoActionableArea)
	}
	return Backtrack(target)
}
