// Package testutil provides shared test utilities and mocks for integration tests.
//
// All mocks in this package are designed for testing the coreengine components
// in isolation without requiring external dependencies.
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jeeves-cluster-organization/crewplanner/coreengine/agents"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/config"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/envelope"
)

// =============================================================================
// MOCK LLM PROVIDER
// =============================================================================

// MockLLMProvider implements agents.LLMProvider for testing.
// Configure responses by prompt prefix or use DefaultResponse.
type MockLLMProvider struct {
	// Responses maps prompt prefixes to responses.
	// First matching prefix wins.
	Responses map[string]string

	// DefaultResponse is returned when no prefix matches.
	DefaultResponse string

	// Delay simulates LLM latency.
	Delay time.Duration

	// Error causes Generate to return this error.
	Error error

	// CallCount tracks the number of Generate calls.
	CallCount int

	// Calls records all calls for assertion.
	Calls []LLMCall

	mu sync.Mutex
}

// LLMCall records a single LLM call for assertion.
type LLMCall struct {
	Model   string
	Prompt  string
	Options map[string]any
}

// NewMockLLMProvider creates a MockLLMProvider with sensible defaults.
func NewMockLLMProvider() *MockLLMProvider {
	return &MockLLMProvider{
		Responses:       make(map[string]string),
		DefaultResponse: EvaluationJSON(8, "none"),
	}
}

// Generate implements agents.LLMProvider.
func (m *MockLLMProvider) Generate(ctx context.Context, model string, prompt string, options map[string]any) (string, error) {
	m.mu.Lock()
	m.CallCount++
	m.Calls = append(m.Calls, LLMCall{Model: model, Prompt: prompt, Options: options})
	delay, failure := m.Delay, m.Error
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if failure != nil {
		return "", failure
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for prefix, response := range m.Responses {
		if strings.HasPrefix(prompt, prefix) {
			return response, nil
		}
	}
	return m.DefaultResponse, nil
}

// WithResponse adds a prefix-based response.
func (m *MockLLMProvider) WithResponse(prefix, response string) *MockLLMProvider {
	m.Responses[prefix] = response
	return m
}

// WithError configures the mock to return an error.
func (m *MockLLMProvider) WithError(err error) *MockLLMProvider {
	m.Error = err
	return m
}

// WithDelay adds latency simulation.
func (m *MockLLMProvider) WithDelay(d time.Duration) *MockLLMProvider {
	m.Delay = d
	return m
}

// GetCallCount returns the number of calls (thread-safe).
func (m *MockLLMProvider) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// LastCall returns the most recent call.
func (m *MockLLMProvider) LastCall() (LLMCall, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return LLMCall{}, false
	}
	return m.Calls[len(m.Calls)-1], true
}

// =============================================================================
// SCRIPTED REASONING SERVICE
// =============================================================================

// Step is one scripted reasoning reply.
type Step struct {
	Response string
	Err      error
	Panic    any
	Delay    time.Duration
}

// Respond replies with raw.
func Respond(raw string) Step { return Step{Response: raw} }

// Fail replies with err.
func Fail(err error) Step { return Step{Err: err} }

// PanicWith panics with v inside the reasoning call.
func PanicWith(v any) Step { return Step{Panic: v} }

// Hang blocks for d or until the call context ends.
func Hang(d time.Duration) Step { return Step{Delay: d, Response: "{}"} }

// ReasoningCall records one call made to a ScriptedReasoningService.
type ReasoningCall struct {
	Stage   envelope.Stage
	Payload map[string]any
}

// ScriptedReasoningService implements agents.ReasoningService with
// per-stage queues of scripted replies. Once a queue is drained the
// stage's default reply is used.
type ScriptedReasoningService struct {
	queues   map[envelope.Stage][]Step
	defaults map[envelope.Stage]Step
	counts   map[envelope.Stage]int
	calls    []ReasoningCall

	mu sync.Mutex
}

// NewScriptedReasoningService returns a service whose defaults are valid
// documents for every stage, with an accepting evaluation.
func NewScriptedReasoningService() *ScriptedReasoningService {
	return &ScriptedReasoningService{
		queues: make(map[envelope.Stage][]Step),
		defaults: map[envelope.Stage]Step{
			envelope.StageAnalysis:       Respond(AnalysisJSON()),
			envelope.StagePlanning:       Respond(PlanningJSON()),
			envelope.StageImplementation: Respond(ImplementationJSON()),
			envelope.StageEvaluation:     Respond(EvaluationJSON(8, "none")),
		},
		counts: make(map[envelope.Stage]int),
	}
}

// Script queues steps for stage.
func (s *ScriptedReasoningService) Script(stage envelope.Stage, steps ...Step) *ScriptedReasoningService {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[stage] = append(s.queues[stage], steps...)
	return s
}

// Always sets the default reply for stage.
func (s *ScriptedReasoningService) Always(stage envelope.Stage, step Step) *ScriptedReasoningService {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults[stage] = step
	return s
}

// Reason implements agents.ReasoningService.
func (s *ScriptedReasoningService) Reason(ctx context.Context, stage envelope.Stage, payload []byte) ([]byte, error) {
	s.mu.Lock()
	s.counts[stage]++
	var decoded map[string]any
	_ = json.Unmarshal(payload, &decoded)
	s.calls = append(s.calls, ReasoningCall{Stage: stage, Payload: decoded})

	step, ok := s.defaults[stage]
	if q := s.queues[stage]; len(q) > 0 {
		step, ok = q[0], true
		s.queues[stage] = q[1:]
	}
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("no script for stage %s", stage)
	}
	if step.Delay > 0 {
		select {
		case <-time.After(step.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if step.Panic != nil {
		panic(step.Panic)
	}
	if step.Err != nil {
		return nil, step.Err
	}
	return []byte(step.Response), nil
}

// CallCount returns the number of calls made for stage.
func (s *ScriptedReasoningService) CallCount(stage envelope.Stage) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[stage]
}

// TotalCalls returns the number of calls across all stages.
func (s *ScriptedReasoningService) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Calls returns a copy of the recorded calls in order.
func (s *ScriptedReasoningService) Calls() []ReasoningCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ReasoningCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// StageSequence returns the stages in call order.
func (s *ScriptedReasoningService) StageSequence() []envelope.Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]envelope.Stage, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.Stage
	}
	return out
}

// =============================================================================
// MOCK EVENT SINK
// =============================================================================

// MockEventSink captures published flow events.
type MockEventSink struct {
	Events []envelope.FlowEvent

	// Error causes Publish to fail after recording.
	Error error

	mu sync.Mutex
}

// NewMockEventSink creates a MockEventSink.
func NewMockEventSink() *MockEventSink {
	return &MockEventSink{}
}

// Publish records event.
func (m *MockEventSink) Publish(ctx context.Context, event envelope.FlowEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event)
	return m.Error
}

// Types returns the recorded event types in order.
func (m *MockEventSink) Types() []envelope.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]envelope.EventType, len(m.Events))
	for i, e := range m.Events {
		out[i] = e.Type
	}
	return out
}

// Count returns how many events of type t were recorded.
func (m *MockEventSink) Count(t envelope.EventType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.Events {
		if e.Type == t {
			n++
		}
	}
	return n
}

// =============================================================================
// MOCK RUN STORE
// =============================================================================

// ErrRunNotFound is returned by MockRunStore for unknown ids.
var ErrRunNotFound = errors.New("run not found")

// MockRunStore keeps run records in memory.
type MockRunStore struct {
	records map[string]envelope.RunRecord

	// SaveError causes Save to fail.
	SaveError error

	// SaveCount tracks the number of Save calls.
	SaveCount int

	mu sync.Mutex
}

// NewMockRunStore creates an empty MockRunStore.
func NewMockRunStore() *MockRunStore {
	return &MockRunStore{records: make(map[string]envelope.RunRecord)}
}

// Save stores rec.
func (m *MockRunStore) Save(ctx context.Context, rec envelope.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCount++
	if m.SaveError != nil {
		return m.SaveError
	}
	m.records[rec.RunID] = rec
	return nil
}

// Get returns the record for runID.
func (m *MockRunStore) Get(ctx context.Context, runID string) (envelope.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[runID]
	if !ok {
		return envelope.RunRecord{}, ErrRunNotFound
	}
	return rec, nil
}

// Delete removes the record for runID.
func (m *MockRunStore) Delete(ctx context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[runID]; !ok {
		return ErrRunNotFound
	}
	delete(m.records, runID)
	return nil
}

// List returns up to limit records, newest first.
func (m *MockRunStore) List(ctx context.Context, limit int) ([]envelope.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]envelope.RunRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// =============================================================================
// MOCK LOGGER
// =============================================================================

// MockLogger implements agents.Logger for testing.
type MockLogger struct {
	// Logs captures all log entries.
	Logs []LogEntry

	mu sync.Mutex
}

// LogEntry represents a captured log entry.
type LogEntry struct {
	Level   string
	Message string
	Fields  map[string]any
}

// NewMockLogger creates a MockLogger.
func NewMockLogger() *MockLogger {
	return &MockLogger{
		Logs: make([]LogEntry, 0),
	}
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) {
	m.log("debug", msg, keysAndValues...)
}

func (m *MockLogger) Info(msg string, keysAndValues ...any) {
	m.log("info", msg, keysAndValues...)
}

func (m *MockLogger) Warn(msg string, keysAndValues ...any) {
	m.log("warn", msg, keysAndValues...)
}

func (m *MockLogger) Error(msg string, keysAndValues ...any) {
	m.log("error", msg, keysAndValues...)
}

func (m *MockLogger) Bind(fields ...any) agents.Logger {
	return m
}

func (m *MockLogger) log(level, msg string, keysAndValues ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fields := make(map[string]any)
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields[key] = keysAndValues[i+1]
		}
	}

	m.Logs = append(m.Logs, LogEntry{
		Level:   level,
		Message: msg,
		Fields:  fields,
	})
}

// GetLogs returns captured logs (thread-safe).
func (m *MockLogger) GetLogs() []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make([]LogEntry, len(m.Logs))
	copy(copied, m.Logs)
	return copied
}

// HasLog checks if a log message exists at the given level.
func (m *MockLogger) HasLog(level, message string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, log := range m.Logs {
		if log.Level == level && log.Message == message {
			return true
		}
	}
	return false
}

// Clear removes all captured logs.
func (m *MockLogger) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logs = nil
}

// =============================================================================
// FIXTURES
// =============================================================================

// NewTestRunConfig returns a valid run configuration with default tunables.
func NewTestRunConfig(task string) config.RunConfig {
	cfg := config.NewRunConfig(task)
	cfg.Domain = envelope.DomainContext{
		Domain:         "customer support",
		ProcessAreas:   []string{"triage", "escalation"},
		ProblemContext: "Tickets pile up during peak hours",
		InputContext:   "Incoming support tickets",
		OutputContext:  "Routed and answered tickets",
		Constraints:    []string{"respond within 4 hours"},
	}
	return cfg
}

// AnalysisJSON returns a valid analysis response.
func AnalysisJSON() string {
	return `{
  "constraints": ["respond within 4 hours"],
  "requirements": ["classify tickets", "draft replies"],
  "complexity": 6,
  "domain_knowledge": ["customer support"],
  "time_sensitivity": {"is_critical": true, "reasoning": "SLA bound"},
  "success_criteria": ["all tickets routed"],
  "recommended_process_type": "sequential"
}`
}

// PlanningJSON returns a valid planning response.
func PlanningJSON() string {
	return `{
  "selected_algorithm": "Hierarchical Task Network",
  "algorithm_justification": "Tasks decompose cleanly",
  "candidate_plans": [{"name": "triage-first", "steps": ["classify", "route", "reply"], "score": 8}],
  "selected_plan": {"name": "triage-first", "steps": ["classify", "route", "reply"], "score": 8},
  "verification_score": 8
}`
}

// ImplementationJSON returns a valid implementation response with two
// agents and two tasks.
func ImplementationJSON() string {
	return `{
  "agents": [
    {"name": "triager", "role": "Ticket Triager", "goal": "Classify tickets", "backstory": "Veteran support lead"},
    {"name": "responder", "role": "Reply Writer", "goal": "Draft replies", "backstory": "Clear writer", "tools": ["kb_search"]}
  ],
  "tasks": [
    {"name": "classify", "description": "Classify each ticket", "expected_output": "Labelled tickets", "agent": "triager"},
    {"name": "reply", "description": "Draft a reply", "expected_output": "Reply drafts", "agent": "responder", "context_tasks": ["classify"]}
  ],
  "workflow": {"sequence": ["classify", "reply"]},
  "process_type": "sequential",
  "tools": [{"name": "kb_search", "purpose": "Search the knowledge base", "used_by": ["responder"]}]
}`
}

// EvaluationJSON returns an evaluation response with the given score and
// improvement area.
func EvaluationJSON(score int, area string) string {
	return fmt.Sprintf(`{
  "strengths": ["clear roles"],
  "weaknesses": ["no escalation path"],
  "missing_elements": [],
  "recommendations": ["add an escalation agent"],
  "overall_score": %d,
  "improvement_area": %q
}`, score, area)
}
