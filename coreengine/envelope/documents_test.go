package envelope

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLooseIntDecoding(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{`8`, 8, false},
		{`8.0`, 8, false},
		{`7.5`, 8, false},
		{`-2.4`, -2, false},
		{`"9"`, 9, false},
		{`" 6.2 "`, 6, false},
		{`1e12`, maxLooseInt, false},
		{`null`, 3, false},
		{`"high"`, 0, true},
		{`"NaN"`, 0, true},
		{`true`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			n := looseInt(3)
			err := json.Unmarshal([]byte(tt.input), &n)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, int(n))
		})
	}
}

func TestDecodeDocumentKeepsOtherFields(t *testing.T) {
	raw := []byte(`{"strengths":["clear roles"],"overall_score":6.0,"improvement_area":"Implementation"}`)

	doc, err := DecodeDocument(StageEvaluation, raw)
	require.NoError(t, err)

	ev := doc.(EvaluationDocument)
	assert.Equal(t, []string{"clear roles"}, ev.Strengths)
	assert.Equal(t, 6, ev.OverallScore)
	assert.Equal(t, ImprovementImplementation, ev.ImprovementArea)
}

func TestDecodeDocumentRejectsNonNumericScore(t *testing.T) {
	_, err := DecodeDocument(StageEvaluation, []byte(`{"overall_score":"excellent"}`))
	assert.Error(t, err)
}

func TestEvaluationDocumentRoundTripThroughResult(t *testing.T) {
	original := Success(EvaluationDocument{OverallScore: 9, ImprovementArea: ImprovementNone})

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded StageResult
	require.NoError(t, json.Unmarshal(data, &decoded))
	ev, ok := decoded.Evaluation()
	require.True(t, ok)
	assert.Equal(t, 9, ev.OverallScore)
}
