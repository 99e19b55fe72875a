// Package runtime provides the Orchestrator - the stage state machine that
// drives a run from analysis to a final artifact.
package runtime

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jeeves-cluster-organization/crewplanner/coreengine/agents"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/config"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/envelope"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/observability"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/policy"
)

var tracer = otel.Tracer("crewplanner/runtime")

// ErrAlreadyStarted is returned when Run is called twice on one Orchestrator.
var ErrAlreadyStarted = errors.New("orchestrator already started")

// StageEnd marks the final StageOutput of a streamed run.
const StageEnd envelope.Stage = "__end__"

// Invoker runs one stage. Implementations must contain every failure in
// the returned result.
type Invoker interface {
	Invoke(ctx context.Context, stage envelope.Stage, ictx envelope.InvocationContext) envelope.StageResult
}

// EventSink receives flow transitions.
type EventSink interface {
	Publish(ctx context.Context, event envelope.FlowEvent) error
}

// RunStore persists run records.
type RunStore interface {
	Save(ctx context.Context, rec envelope.RunRecord) error
}

// StageOutput represents one step of a streamed run.
type StageOutput struct {
	Stage    envelope.Stage
	Result   envelope.StageResult
	Decision *policy.Decision
	Artifact *envelope.FinalArtifact
	Error    error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEventSink publishes flow events to sink.
func WithEventSink(sink EventSink) Option {
	return func(o *Orchestrator) { o.events = sink }
}

// WithRunStore persists the run record to store.
func WithRunStore(store RunStore) Option {
	return func(o *Orchestrator) { o.store = store }
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(o *Orchestrator) {
		if id != "" {
			o.runID = id
		}
	}
}

// Orchestrator executes a single run. Create one per run.
type Orchestrator struct {
	config  config.RunConfig
	invoker Invoker
	logger  agents.Logger
	events  EventSink
	store   RunStore
	runID   string

	state   *envelope.FlowState
	started atomic.Bool
	startAt time.Time
}

// NewOrchestrator validates cfg and creates an Orchestrator. Invalid
// configuration is reported as a *config.ConfigError before any stage runs.
func NewOrchestrator(cfg config.RunConfig, invoker Invoker, logger agents.Logger, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if invoker == nil {
		return nil, config.NewConfigError("invoker", "is required")
	}

	o := &Orchestrator{
		config:  cfg,
		invoker: invoker,
		runID:   uuid.New().String(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logger.Bind("run_id", o.runID)
	o.state = envelope.NewFlowState(o.runID, cfg.Budget)
	return o, nil
}

// RunID returns the id of the run.
func (o *Orchestrator) RunID() string { return o.runID }

// State returns the flow state. It must not be read while a run is in
// progress.
func (o *Orchestrator) State() *envelope.FlowState { return o.state }

// Run executes the run to completion and returns its artifact. An artifact
// is returned even when ctx is cancelled between stages; the error is then
// ctx.Err().
func (o *Orchestrator) Run(ctx context.Context) (*envelope.FinalArtifact, error) {
	if !o.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyStarted
	}
	return o.execute(ctx, nil)
}

// RunWithStream executes the run in the background and streams every
// stage result, refinement decision and finally the artifact.
func (o *Orchestrator) RunWithStream(ctx context.Context) (<-chan StageOutput, error) {
	if !o.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyStarted
	}

	// Every invocation and every decision emits once, plus the end marker.
	outputChan := make(chan StageOutput, 2*len(envelope.StageOrder)*(o.config.Budget+1)+1)

	go func() {
		defer close(outputChan)

		o.logger.Info("flow_streaming_started")

		artifact, err := o.execute(ctx, outputChan)
		outputChan <- StageOutput{
			Stage:    StageEnd,
			Artifact: artifact,
			Error:    err,
		}
	}()

	return outputChan, nil
}

// =============================================================================
// STATE MACHINE
// =============================================================================

func (o *Orchestrator) execute(ctx context.Context, outputChan chan<- StageOutput) (*envelope.FinalArtifact, error) {
	ctx, span := tracer.Start(ctx, "flow.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("crewplanner.run.id", o.runID),
		attribute.Int("crewplanner.run.budget", o.config.Budget),
		attribute.Int("crewplanner.run.threshold", o.config.Threshold),
	)

	o.startAt = time.Now()
	state := o.state

	o.logger.Info("flow_started",
		"task_length", len(o.config.Task),
		"threshold", o.config.Threshold,
		"budget", o.config.Budget,
	)
	o.publish(ctx, envelope.FlowEvent{Type: envelope.EventFlowStarted})
	o.persist(ctx, envelope.RunStatusRunning, nil)

	var (
		reason envelope.TerminalReason
		runErr error
	)

	stage := envelope.StageAnalysis
	for {
		if err := ctx.Err(); err != nil {
			o.logger.Info("flow_cancelled",
				"stage", string(stage),
				"reason", err.Error(),
			)
			reason = envelope.TerminalReasonCancelled
			runErr = err
			break
		}

		ictx := state.InvocationContext(stage, o.config.Task, o.domain())
		result := state.Record(stage, o.invoker.Invoke(ctx, stage, ictx))

		o.logger.Debug("stage_completed",
			"stage", string(stage),
			"attempt", result.Attempt,
			"kind", string(result.Kind),
		)
		o.publish(ctx, envelope.FlowEvent{
			Type:    envelope.EventStageCompleted,
			Stage:   stage,
			Attempt: result.Attempt,
			Kind:    result.Kind,
			Cause:   result.Cause,
		})
		if outputChan != nil {
			outputChan <- StageOutput{Stage: stage, Result: result}
		}

		if next, ok := stage.Next(); ok {
			stage = next
			continue
		}

		decision := o.decide(ctx, result)
		if outputChan != nil {
			outputChan <- StageOutput{Stage: envelope.StageEvaluation, Result: result, Decision: &decision}
		}
		if decision.IsFinal() {
			reason = decision.Reason
			break
		}

		cleared := state.InvalidateFrom(decision.Target)
		if !state.ConsumeIteration() {
			reason = envelope.TerminalReasonBudgetExhausted
			break
		}
		o.logger.Info("flow_backtrack",
			"target", string(decision.Target),
			"invalidated", stageNames(cleared),
			"consumed_iterations", state.ConsumedIterations(),
			"remaining_budget", state.RemainingBudget(),
		)
		stage = decision.Target
	}

	artifact := Finalize(state, o.config, reason)
	durationMS := int(time.Since(o.startAt).Milliseconds())

	observability.RecordRun(string(reason), artifact.Degraded, state.TotalInvocations(), durationMS)
	span.SetAttributes(
		attribute.String("crewplanner.run.terminal_reason", string(reason)),
		attribute.Bool("crewplanner.run.degraded", artifact.Degraded),
		attribute.Int("crewplanner.run.invocations", state.TotalInvocations()),
	)
	if runErr != nil {
		span.SetStatus(codes.Error, runErr.Error())
	} else {
		span.SetStatus(codes.Ok, string(reason))
	}

	o.logger.Info("flow_finalized",
		"terminal_reason", string(reason),
		"degraded", artifact.Degraded,
		"iterations", state.TotalInvocations(),
		"consumed_iterations", state.ConsumedIterations(),
		"history_length", len(state.History()),
		"duration_ms", durationMS,
	)
	o.publish(ctx, envelope.FlowEvent{
		Type:           envelope.EventFlowFinalized,
		Score:          artifact.FinalScore,
		TerminalReason: reason,
	})
	o.persist(ctx, envelope.RunStatusCompleted, artifact)

	return artifact, runErr
}

// decide applies the refinement policy to an evaluation result and
// snapshots the state. The snapshot is taken regardless of the decision.
func (o *Orchestrator) decide(ctx context.Context, result envelope.StageResult) policy.Decision {
	ev, ok := result.Evaluation()
	if !ok {
		ev = agents.DefaultFallbacks.DefaultFor(envelope.StageEvaluation).(envelope.EvaluationDocument)
	}
	verdict := ev.Verdict(o.config.Threshold)
	decision := policy.Decide(verdict, o.state, o.config.Threshold)
	snap := o.state.Snapshot()

	observability.RecordRefinementDecision(string(decision.Action), string(decision.Target))
	o.logger.Info("refinement_decided",
		"score", verdict.Score,
		"improvement_area", string(verdict.ImprovementArea),
		"needs_refinement", verdict.NeedsRefinement,
		"decision", string(decision.Action),
		"target", string(decision.Target),
		"reason", string(decision.Reason),
		"snapshot", snap.Sequence,
	)

	score := verdict.Score
	o.publish(ctx, envelope.FlowEvent{
		Type:           envelope.EventRefinementDecided,
		Stage:          envelope.StageEvaluation,
		Attempt:        result.Attempt,
		Decision:       string(decision.Action),
		Target:         decision.Target,
		Score:          &score,
		TerminalReason: decision.Reason,
	})
	o.persist(ctx, envelope.RunStatusRunning, nil)
	return decision
}

// domain is the run's domain context refined by the current analysis.
func (o *Orchestrator) domain() envelope.DomainContext {
	return mergedDomain(o.state, o.config.Domain)
}

// publish forwards event to the sink. Delivery failures never affect the
// run.
func (o *Orchestrator) publish(ctx context.Context, event envelope.FlowEvent) {
	if o.events == nil {
		return
	}
	event.RunID = o.runID
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := o.events.Publish(context.WithoutCancel(ctx), event); err != nil {
		o.logger.Warn("event_publish_error",
			"event", string(event.Type),
			"error", err.Error(),
		)
	}
}

// persist saves the run record if a store is configured.
func (o *Orchestrator) persist(ctx context.Context, status envelope.RunStatus, artifact *envelope.FinalArtifact) {
	if o.store == nil {
		return
	}
	rec := envelope.RunRecord{
		RunID:          o.runID,
		Status:         status,
		Config:         o.config.ToMap(),
		Artifact:       artifact,
		History:        o.state.History(),
		IterationCount: o.state.IterationCounts(),
		StartedAt:      o.startAt.UTC(),
	}
	if status == envelope.RunStatusCompleted {
		finished := time.Now().UTC()
		rec.FinishedAt = &finished
	}
	if err := o.store.Save(context.WithoutCancel(ctx), rec); err != nil {
		o.logger.Warn("run_persist_error",
			"status", string(status),
			"error", err.Error(),
		)
	}
}

func stageNames(stages []envelope.Stage) []string {
	out := make([]string, len(stages))
	for i, s := range stages {
		out[i] = string(s)
	}
	return out
}
