package envelope

import (
	"time"
)

// Snapshot is an immutable copy of the stage results taken each time
// Evaluation completes.
type Snapshot struct {
	Sequence int                   `json:"sequence"`
	Results  map[Stage]StageResult `json:"results"`
	TakenAt  time.Time             `json:"taken_at"`
}

// Evaluation returns the evaluation document captured by the snapshot.
func (s Snapshot) Evaluation() (EvaluationDocument, bool) {
	r, ok := s.Results[StageEvaluation]
	if !ok {
		return EvaluationDocument{}, false
	}
	return r.Evaluation()
}

func (s Snapshot) clone() Snapshot {
	return Snapshot{Sequence: s.Sequence, Results: copyResults(s.Results), TakenAt: s.TakenAt}
}

// FlowState is the mutable record of one run. It is owned by a single
// orchestrator and is not safe for concurrent use.
type FlowState struct {
	RunID     string
	CreatedAt time.Time

	results        map[Stage]StageResult
	iterationCount map[Stage]int
	consumed       int
	budget         int
	history        []Snapshot
}

// NewFlowState creates an empty state with the given refinement budget.
func NewFlowState(runID string, budget int) *FlowState {
	if budget < 0 {
		budget = 0
	}
	return &FlowState{
		RunID:          runID,
		CreatedAt:      time.Now().UTC(),
		results:        make(map[Stage]StageResult, len(StageOrder)),
		iterationCount: make(map[Stage]int, len(StageOrder)),
		budget:         budget,
	}
}

// =============================================================================
// Mutations
// =============================================================================

// Record stores result as the current result of stage and counts the
// execution.
func (s *FlowState) Record(stage Stage, result StageResult) StageResult {
	s.iterationCount[stage]++
	result.Stage = stage
	result.Attempt = s.iterationCount[stage]
	s.results[stage] = result
	return result
}

// InvalidateFrom clears the results of every stage strictly after stage.
// Iteration counters are cumulative and are left untouched.
func (s *FlowState) InvalidateFrom(stage Stage) []Stage {
	var cleared []Stage
	for _, st := range stage.After() {
		if _, ok := s.results[st]; ok {
			delete(s.results, st)
			cleared = append(cleared, st)
		}
	}
	return cleared
}

// Snapshot appends an immutable copy of the current results to history.
func (s *FlowState) Snapshot() Snapshot {
	snap := Snapshot{
		Sequence: len(s.history) + 1,
		Results:  copyResults(s.results),
		TakenAt:  time.Now().UTC(),
	}
	s.history = append(s.history, snap)
	return snap.clone()
}

// ConsumeIteration spends one unit of refinement budget. It refuses once
// the budget is exhausted so consumed iterations never exceed the budget.
func (s *FlowState) ConsumeIteration() bool {
	if s.consumed >= s.budget {
		return false
	}
	s.consumed++
	return true
}

// =============================================================================
// Queries
// =============================================================================

// Result returns the current, non-stale result of stage.
func (s *FlowState) Result(stage Stage) (StageResult, bool) {
	r, ok := s.results[stage]
	return r, ok
}

// Results returns a copy of the current results.
func (s *FlowState) Results() map[Stage]StageResult {
	return copyResults(s.results)
}

// IterationCount returns how often stage has executed.
func (s *FlowState) IterationCount(stage Stage) int {
	return s.iterationCount[stage]
}

// IterationCounts returns a copy of all counters.
func (s *FlowState) IterationCounts() map[Stage]int {
	out := make(map[Stage]int, len(StageOrder))
	for _, st := range StageOrder {
		out[st] = s.iterationCount[st]
	}
	return out
}

// TotalInvocations sums the counters of all stages.
func (s *FlowState) TotalInvocations() int {
	total := 0
	for _, n := range s.iterationCount {
		total += n
	}
	return total
}

func (s *FlowState) ConsumedIterations() int { return s.consumed }
func (s *FlowState) Budget() int             { return s.budget }

// RemainingBudget returns the refinement cycles still available.
func (s *FlowState) RemainingBudget() int {
	return s.budget - s.consumed
}

// History returns copies of all snapshots in order.
func (s *FlowState) History() []Snapshot {
	out := make([]Snapshot, len(s.history))
	for i, snap := range s.history {
		out[i] = snap.clone()
	}
	return out
}

// LastSnapshot returns the most recent snapshot.
func (s *FlowState) LastSnapshot() (Snapshot, bool) {
	if len(s.history) == 0 {
		return Snapshot{}, false
	}
	return s.history[len(s.history)-1].clone(), true
}

// FallbackStages lists, in stage order, every stage that produced a
// fallback anywhere in the history or the current results.
func (s *FlowState) FallbackStages() []Stage {
	seen := make(map[Stage]bool)
	mark := func(results map[Stage]StageResult) {
		for st, r := range results {
			if r.IsFallback() {
				seen[st] = true
			}
		}
	}
	for _, snap := range s.history {
		mark(snap.Results)
	}
	mark(s.results)

	var out []Stage
	for _, st := range StageOrder {
		if seen[st] {
			out = append(out, st)
		}
	}
	return out
}

// IsDegraded reports whether any recorded result was a fallback.
func (s *FlowState) IsDegraded() bool {
	return len(s.FallbackStages()) > 0
}

// StateView is the serializable form of a FlowState.
type StateView struct {
	RunID              string                `json:"run_id"`
	Results            map[Stage]StageResult `json:"results"`
	IterationCount     map[Stage]int         `json:"iteration_count"`
	ConsumedIterations int                   `json:"consumed_iterations"`
	Budget             int                   `json:"budget"`
	History            []Snapshot            `json:"history"`
	CreatedAt          time.Time             `json:"created_at"`
}

// View returns a detached, serializable copy of the state.
func (s *FlowState) View() StateView {
	return StateView{
		RunID:              s.RunID,
		Results:            s.Results(),
		IterationCount:     s.IterationCounts(),
		ConsumedIterations: s.consumed,
		Budget:             s.budget,
		History:            s.History(),
		CreatedAt:          s.CreatedAt,
	}
}

func copyResults(m map[Stage]StageResult) map[Stage]StageResult {
	out := make(map[Stage]StageResult, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
