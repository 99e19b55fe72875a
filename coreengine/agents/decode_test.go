package agents

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/crewplanner/coreengine/envelope"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"surrounding prose", `Here you go: {"a":1} hope that helps`, `{"a":1}`},
		{"fenced block", "```json\n{\"a\": {\"b\": 2}}\n```", `{"a": {"b": 2}}`},
		{"braces inside strings", `note {"a":"}{"} end`, `{"a":"}{"}`},
		{"skips invalid candidate", `{not json} then {"ok":true}`, `{"ok":true}`},
		{"quoted brace in prose", `Note: a "{" may appear. {"overall_score": 8}`, `{"overall_score": 8}`},
		{"unbalanced quote in prose", `It's "done. Result {"a": "b"} and "more`, `{"a": "b"}`},
		{"braces in prose before fence", "Use {x} or \"{y\"}:\n```json\n{\"a\": [1, {\"b\": 2}]}\n```", `{"a": [1, {"b": 2}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSON(tt.input)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestExtractJSONNoObject(t *testing.T) {
	for _, input := range []string{"", "no json here", `["array"]`, `{"unterminated": 1`} {
		_, err := extractJSON(input)
		assert.Error(t, err, input)
	}
}

func TestDecodeStageDocumentNormalizes(t *testing.T) {
	raw := []byte("Evaluation:\n```json\n{\"overall_score\": 14, \"improvement_area\": \"Planning \"}\n```")

	doc, err := DecodeStageDocument(envelope.StageEvaluation, raw)
	require.NoError(t, err)

	ev, ok := doc.(envelope.EvaluationDocument)
	require.True(t, ok)
	assert.Equal(t, 10, ev.OverallScore)
	assert.Equal(t, envelope.ImprovementPlanning, ev.ImprovementArea)
}

func TestDecodeStageDocumentWithQuotedBracesInProse(t *testing.T) {
	raw := []byte(`Note: a "{" may appear. {"overall_score": 8, "improvement_area": "none"}`)

	doc, err := DecodeStageDocument(envelope.StageEvaluation, raw)
	require.NoError(t, err)

	ev := doc.(envelope.EvaluationDocument)
	assert.Equal(t, 8, ev.OverallScore)
	assert.Equal(t, envelope.ImprovementNone, ev.ImprovementArea)
}

func TestDecodeStageDocumentNonIntegerScores(t *testing.T) {
	tests := []struct {
		name  string
		stage envelope.Stage
		raw   string
		score func(envelope.Document) int
		want  int
	}{
		{
			name:  "float overall score",
			stage: envelope.StageEvaluation,
			raw:   `{"overall_score": 8.0, "improvement_area": "none"}`,
			score: func(d envelope.Document) int { return d.(envelope.EvaluationDocument).OverallScore },
			want:  8,
		},
		{
			name:  "quoted fractional overall score",
			stage: envelope.StageEvaluation,
			raw:   `{"overall_score": "6.6", "improvement_area": "planning"}`,
			score: func(d envelope.Document) int { return d.(envelope.EvaluationDocument).OverallScore },
			want:  7,
		},
		{
			name:  "fractional verification score",
			stage: envelope.StagePlanning,
			raw:   `{"selected_algorithm": "Best-of-N", "verification_score": 7.4}`,
			score: func(d envelope.Document) int { return d.(envelope.PlanningDocument).VerificationScore },
			want:  7,
		},
		{
			name:  "out of range complexity is clamped",
			stage: envelope.StageAnalysis,
			raw:   `{"complexity": 12.5, "recommended_process_type": "sequential"}`,
			score: func(d envelope.Document) int { return d.(envelope.AnalysisDocument).Complexity },
			want:  10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := DecodeStageDocument(tt.stage, []byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, tt.score(doc))
		})
	}
}

func TestDecodeStageDocumentShapeFailures(t *testing.T) {
	tests := []struct {
		name  string
		stage envelope.Stage
		raw   string
	}{
		{"agent without role", envelope.StageImplementation, `{"agents":[{"name":"a"}],"tasks":[],"process_type":"sequential"}`},
		{"task without description", envelope.StageImplementation, `{"agents":[],"tasks":[{"name":"t"}],"process_type":"sequential"}`},
		{"planning without algorithm", envelope.StagePlanning, `{"verification_score":7}`},
		{"wrong field type", envelope.StageAnalysis, `{"complexity":"high"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeStageDocument(tt.stage, []byte(tt.raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedResponse))
			assert.Equal(t, FailureMalformed, NewInvocationError(tt.stage, err).Kind)
		})
	}
}

func TestFallbacksSatisfyShapeContract(t *testing.T) {
	for _, stage := range envelope.StageOrder {
		t.Run(string(stage), func(t *testing.T) {
			doc := DefaultFallbacks.DefaultFor(stage)
			assert.Equal(t, stage, doc.Stage())
			assert.NoError(t, CheckShape(doc))
		})
	}
}

func TestFallbacksAreFreshValues(t *testing.T) {
	a := DefaultFallbacks.DefaultFor(envelope.StageAnalysis).(envelope.AnalysisDocument)
	a.DomainKnowledge[0] = "mutated"

	b := DefaultFallbacks.DefaultFor(envelope.StageAnalysis).(envelope.AnalysisDocument)
	assert.Equal(t, "General", b.DomainKnowledge[0])
	assert.Equal(t, 5, b.Complexity)
	assert.Empty(t, b.Constraints)
	assert.Equal(t, envelope.ProcessSequential, b.RecommendedProcessType)

	ev := DefaultFallbacks.DefaultFor(envelope.StageEvaluation).(envelope.EvaluationDocument)
	assert.Equal(t, 5, ev.OverallScore)
	assert.Equal(t, envelope.ImprovementNone, ev.ImprovementArea)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want FailureKind
	}{
		{&panicError{value: "x"}, FailurePanic},
		{errors.New("refused"), FailureTransport},
		{ErrMalformedResponse, FailureMalformed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classify(tt.err), tt.err.Error())
	}
}

func TestSafeExecuteRecoversPanic(t *testing.T) {
	got, err := safeExecute(nil, "test", func() (int, error) {
		panic("boom")
	})
	assert.Zero(t, got)
	var pe *panicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "panic: boom", err.Error())
}
