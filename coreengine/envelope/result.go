package envelope

import (
	"encoding/json"
	"fmt"
	"time"
)

// StageResult is the outcome of one stage execution: either a genuine
// document or a fallback document plus the cause of the failure.
type StageResult struct {
	Stage       Stage      `json:"stage"`
	Kind        ResultKind `json:"kind"`
	Output      Document   `json:"output"`
	Cause       string     `json:"cause,omitempty"`
	Attempt     int        `json:"attempt"`
	DurationMS  int64      `json:"duration_ms"`
	CompletedAt time.Time  `json:"completed_at"`
}

// Success builds a successful result.
func Success(doc Document) StageResult {
	return StageResult{
		Stage:       doc.Stage(),
		Kind:        ResultSuccess,
		Output:      doc,
		CompletedAt: time.Now().UTC(),
	}
}

// Fallback builds a contained failure carrying a substitute document.
func Fallback(doc Document, cause string) StageResult {
	return StageResult{
		Stage:       doc.Stage(),
		Kind:        ResultFallback,
		Output:      doc,
		Cause:       cause,
		CompletedAt: time.Now().UTC(),
	}
}

// IsFallback reports whether the result carries a fallback document.
func (r StageResult) IsFallback() bool {
	return r.Kind == ResultFallback
}

// Implementation returns the output as an ImplementationDocument.
func (r StageResult) Implementation() (ImplementationDocument, bool) {
	d, ok := r.Output.(ImplementationDocument)
	return d, ok
}

// Evaluation returns the output as an EvaluationDocument.
func (r StageResult) Evaluation() (EvaluationDocument, bool) {
	d, ok := r.Output.(EvaluationDocument)
	return d, ok
}

// Analysis returns the output as an AnalysisDocument.
func (r StageResult) Analysis() (AnalysisDocument, bool) {
	d, ok := r.Output.(AnalysisDocument)
	return d, ok
}

// Planning returns the output as a PlanningDocument.
func (r StageResult) Planning() (PlanningDocument, bool) {
	d, ok := r.Output.(PlanningDocument)
	return d, ok
}

type stageResultJSON struct {
	Stage       Stage           `json:"stage"`
	Kind        ResultKind      `json:"kind"`
	Output      json.RawMessage `json:"output"`
	Cause       string          `json:"cause,omitempty"`
	Attempt     int             `json:"attempt"`
	DurationMS  int64           `json:"duration_ms"`
	CompletedAt time.Time       `json:"completed_at"`
}

// UnmarshalJSON restores the concrete document type from the stage tag.
func (r *StageResult) UnmarshalJSON(data []byte) error {
	var raw stageResultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !raw.Stage.IsValid() {
		return fmt.Errorf("stage result has unknown stage %q", raw.Stage)
	}
	doc, err := DecodeDocument(raw.Stage, raw.Output)
	if err != nil {
		return err
	}
	*r = StageResult{
		Stage:       raw.Stage,
		Kind:        raw.Kind,
		Output:      doc,
		Cause:       raw.Cause,
		Attempt:     raw.Attempt,
		DurationMS:  raw.DurationMS,
		CompletedAt: raw.CompletedAt,
	}
	return nil
}
