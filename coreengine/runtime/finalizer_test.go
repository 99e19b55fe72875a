package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/crewplanner/coreengine/agents"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/config"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/envelope"
)

func implementation(agentNames ...string) envelope.ImplementationDocument {
	doc := envelope.ImplementationDocument{ProcessType: envelope.ProcessHierarchical}
	for _, n := range agentNames {
		doc.Agents = append(doc.Agents, envelope.AgentSpec{Name: n, Role: n})
	}
	doc.Tasks = []envelope.TaskSpec{
		{Name: "t1", Description: "first", Agent: "lead"},
		{Name: "t2", Description: "second", Agent: "ghost"},
		{Name: "t3", Description: "third"},
	}
	return doc
}

func TestFinalizeFromFallbackImplementation(t *testing.T) {
	state := envelope.NewFlowState("run-1", 3)
	fallback := agents.DefaultFallbacks.DefaultFor(envelope.StageImplementation)
	state.Record(envelope.StageImplementation, envelope.Fallback(fallback, "transport"))

	cfg := config.NewRunConfig("draft a marketing plan")
	artifact := Finalize(state, cfg, envelope.TerminalReasonNoActionableArea)

	require.NotNil(t, artifact)
	assert.Equal(t, "draft a marketing plan", artifact.Task)
	assert.NotNil(t, artifact.Agents)
	assert.NotNil(t, artifact.Tasks)
	assert.Equal(t, envelope.ProcessSequential, artifact.Process)
	assert.True(t, artifact.Degraded)
	assert.Equal(t, []envelope.Stage{envelope.StageImplementation}, artifact.FallbackStages)
	assert.Equal(t, "object", artifact.InputSchema.Type)
}

func TestFinalizeWarnsAboutUnassignedTasks(t *testing.T) {
	state := envelope.NewFlowState("run-2", 3)
	state.Record(envelope.StageImplementation, envelope.Success(implementation("lead")))

	artifact := Finalize(state, config.NewRunConfig("task"), envelope.TerminalReasonScoreAccepted)

	assert.False(t, artifact.Degraded)
	assert.Equal(t, envelope.ProcessHierarchical, artifact.Process)
	assert.Len(t, artifact.Warnings, 2)
}

func TestFinalizeUsesLatestSnapshotWhenInvalidated(t *testing.T) {
	state := envelope.NewFlowState("run-3", 3)
	state.Record(envelope.StageImplementation, envelope.Success(implementation("lead", "writer")))
	state.Record(envelope.StageEvaluation, envelope.Success(envelope.EvaluationDocument{OverallScore: 4, ImprovementArea: envelope.ImprovementAnalysis}))
	state.Snapshot()
	state.InvalidateFrom(envelope.StageAnalysis)

	artifact := Finalize(state, config.NewRunConfig("task"), envelope.TerminalReasonCancelled)

	assert.Len(t, artifact.Agents, 2)
	assert.False(t, artifact.Degraded)
	require.NotNil(t, artifact.FinalScore)
	assert.Equal(t, 4, *artifact.FinalScore)
	assert.Contains(t, artifact.Warnings, staleImplementationWarning)
}

func TestFinalizeCurrentImplementationHasNoStaleWarning(t *testing.T) {
	state := envelope.NewFlowState("run-5", 3)
	state.Record(envelope.StageImplementation, envelope.Success(implementation("lead")))
	state.Record(envelope.StageEvaluation, envelope.Success(envelope.EvaluationDocument{OverallScore: 4, ImprovementArea: envelope.ImprovementPlanning}))
	state.Snapshot()
	state.InvalidateFrom(envelope.StageImplementation)

	artifact := Finalize(state, config.NewRunConfig("task"), envelope.TerminalReasonCancelled)

	assert.NotContains(t, artifact.Warnings, staleImplementationWarning)
}

func TestFinalizeMergesAnalysisDomain(t *testing.T) {
	state := envelope.NewFlowState("run-4", 3)
	state.Record(envelope.StageAnalysis, envelope.Success(envelope.AnalysisDocument{
		Complexity:             3,
		RecommendedProcessType: envelope.ProcessSequential,
		Domain:                 "logistics",
		InputContext:           "shipment manifests",
	}))
	state.Record(envelope.StageImplementation, envelope.Success(implementation("lead")))

	cfg := config.NewRunConfig("task")
	cfg.Domain.InputContext = "purchase orders"

	artifact := Finalize(state, cfg, envelope.TerminalReasonScoreAccepted)
	assert.Equal(t, "logistics", artifact.Domain.Domain)
	assert.Equal(t, "purchase orders", artifact.Domain.InputContext)
}
