package runtime

import (
	"time"

	"github.com/jeeves-cluster-organization/crewplanner/coreengine/agents"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/config"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/envelope"
)

// Finalize composes the final artifact from the most recent implementation
// result and the run configuration. It never fails: fallback documents are
// used as-is and a run that never reached Implementation (cancellation)
// gets the implementation fallback.
func Finalize(state *envelope.FlowState, cfg config.RunConfig, reason envelope.TerminalReason) *envelope.FinalArtifact {
	impl, source := latestImplementation(state)

	artifact := &envelope.FinalArtifact{
		RunID:              state.RunID,
		Task:               cfg.Task,
		Domain:             mergedDomain(state, cfg.Domain),
		Agents:             nonNil(impl.Agents),
		Tasks:              nonNil(impl.Tasks),
		Process:            envelope.NormalizeProcessType(string(impl.ProcessType)),
		Tools:              impl.Tools,
		Workflow:           impl.Workflow,
		FallbackStages:     state.FallbackStages(),
		Iterations:         state.IterationCounts(),
		ConsumedIterations: state.ConsumedIterations(),
		FinalScore:         finalScore(state),
		TerminalReason:     reason,
		CreatedAt:          time.Now().UTC(),
	}
	if source == implFromCatalog && !containsStage(artifact.FallbackStages, envelope.StageImplementation) {
		artifact.FallbackStages = append(artifact.FallbackStages, envelope.StageImplementation)
	}
	artifact.Degraded = len(artifact.FallbackStages) > 0
	artifact.InputSchema = envelope.InputSchemaFor(artifact.Domain)
	artifact.OutputSchema = envelope.OutputSchemaFor(artifact.Domain)
	artifact.Warnings = artifact.Validate()
	if source == implFromSnapshot {
		artifact.Warnings = append(artifact.Warnings, staleImplementationWarning)
	}
	return artifact
}

const staleImplementationWarning = "implementation taken from an invalidated cycle; the run stopped before it was re-executed"

type implSource int

const (
	implCurrent implSource = iota
	implFromSnapshot
	implFromCatalog
)

// latestImplementation returns the current implementation document, else
// the one captured by the latest snapshot, else the catalog default.
func latestImplementation(state *envelope.FlowState) (envelope.ImplementationDocument, implSource) {
	if r, ok := state.Result(envelope.StageImplementation); ok {
		if doc, ok := r.Implementation(); ok {
			return doc, implCurrent
		}
	}
	history := state.History()
	for i := len(history) - 1; i >= 0; i-- {
		if r, ok := history[i].Results[envelope.StageImplementation]; ok {
			if doc, ok := r.Implementation(); ok {
				return doc, implFromSnapshot
			}
		}
	}
	return agents.DefaultFallbacks.DefaultFor(envelope.StageImplementation).(envelope.ImplementationDocument), implFromCatalog
}

// finalScore is the score of the latest completed evaluation.
func finalScore(state *envelope.FlowState) *int {
	snap, ok := state.LastSnapshot()
	if !ok {
		return nil
	}
	ev, ok := snap.Evaluation()
	if !ok {
		return nil
	}
	score := ev.OverallScore
	return &score
}

func mergedDomain(state *envelope.FlowState, domain envelope.DomainContext) envelope.DomainContext {
	if r, ok := state.Result(envelope.StageAnalysis); ok {
		if a, ok := r.Analysis(); ok {
			return domain.Merge(a)
		}
	}
	return domain
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func containsStage(stages []envelope.Stage, s envelope.Stage) bool {
	for _, st := range stages {
		if st == s {
			return true
		}
	}
	return false
}
