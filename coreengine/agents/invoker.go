package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/jeeves-cluster-organization/crewplanner/coreengine/envelope"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/observability"
)

var tracer = otel.Tracer("crewplanner/agents")

// DefaultCallTimeout bounds a single reasoning call.
const DefaultCallTimeout = 120 * time.Second

// StageInvoker calls the reasoning service for one stage. It never returns
// an error: every failure is contained as a Fallback result carrying the
// catalog document and the failure cause.
type StageInvoker struct {
	service   ReasoningService
	fallbacks FallbackCatalog
	logger    Logger
	timeout   time.Duration
	limiter   *rate.Limiter
}

// InvokerOption configures a StageInvoker.
type InvokerOption func(*StageInvoker)

// WithCallTimeout sets the per-call deadline.
func WithCallTimeout(d time.Duration) InvokerOption {
	return func(i *StageInvoker) {
		if d > 0 {
			i.timeout = d
		}
	}
}

// WithRateLimit throttles reasoning calls. A non-positive rate disables it.
func WithRateLimit(perSecond float64, burst int) InvokerOption {
	return func(i *StageInvoker) {
		if perSecond <= 0 {
			i.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		i.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithFallbacks replaces the fallback catalog.
func WithFallbacks(c FallbackCatalog) InvokerOption {
	return func(i *StageInvoker) {
		if c != nil {
			i.fallbacks = c
		}
	}
}

// NewStageInvoker creates a StageInvoker backed by service.
func NewStageInvoker(service ReasoningService, logger Logger, opts ...InvokerOption) *StageInvoker {
	i := &StageInvoker{
		service:   service,
		fallbacks: DefaultFallbacks,
		logger:    logger.Bind("component", "stage_invoker"),
		timeout:   DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Invoke runs stage against the reasoning service.
//
// The call is detached from the caller's cancellation: an in-flight
// invocation is only bounded by the call timeout, and cancellation is
// observed by the orchestrator between stages.
func (i *StageInvoker) Invoke(ctx context.Context, stage envelope.Stage, ictx envelope.InvocationContext) envelope.StageResult {
	ctx, span := tracer.Start(ctx, "stage.invoke")
	defer span.End()
	span.SetAttributes(
		attribute.String("crewplanner.run.id", ictx.RunID),
		attribute.String("crewplanner.stage", string(stage)),
		attribute.Int("crewplanner.stage.attempt", ictx.Attempt),
	)

	logger := i.logger.Bind("stage", string(stage), "run_id", ictx.RunID, "attempt", ictx.Attempt)
	start := time.Now()

	doc, err := i.call(ctx, stage, ictx)
	durationMS := int(time.Since(start).Milliseconds())

	var result envelope.StageResult
	if err != nil {
		ie := NewInvocationError(stage, err)
		result = envelope.Fallback(i.fallbacks.DefaultFor(stage), ie.Error())

		observability.RecordStageInvocation(string(stage), string(envelope.ResultFallback), durationMS)
		observability.RecordFallback(string(stage), string(ie.Kind))
		span.RecordError(err)
		span.SetStatus(codes.Error, string(ie.Kind))
		logger.Warn("stage_fallback",
			"kind", string(ie.Kind),
			"error", err.Error(),
			"duration_ms", durationMS,
		)
	} else {
		result = envelope.Success(doc)

		observability.RecordStageInvocation(string(stage), string(envelope.ResultSuccess), durationMS)
		span.SetStatus(codes.Ok, "success")
		logger.Info("stage_invoked", "duration_ms", durationMS)
	}

	result.DurationMS = int64(durationMS)
	return result
}

func (i *StageInvoker) call(ctx context.Context, stage envelope.Stage, ictx envelope.InvocationContext) (envelope.Document, error) {
	if i.service == nil {
		return nil, errors.New("no reasoning service configured")
	}

	payload, err := json.Marshal(ictx.Payload(stage))
	if err != nil {
		return nil, fmt.Errorf("encode stage context: %w", err)
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.timeout)
	defer cancel()

	if i.limiter != nil {
		if err := i.limiter.Wait(callCtx); err != nil {
			return nil, &InvocationError{Stage: stage, Kind: FailureRateLimited, Err: err}
		}
	}

	return safeExecute(i.logger, "reason:"+string(stage), func() (envelope.Document, error) {
		raw, err := i.reason(callCtx, stage, payload)
		if err != nil {
			return nil, err
		}
		i.logger.Debug("stage_response",
			"stage", string(stage),
			"response_length", len(raw),
			"response_preview", truncate(string(raw), 200),
		)
		return DecodeStageDocument(stage, raw)
	})
}

// reason runs the service call and abandons it when the deadline passes,
// even if the service ignores its context.
func (i *StageInvoker) reason(ctx context.Context, stage envelope.Stage, payload []byte) ([]byte, error) {
	type reply struct {
		raw []byte
		err error
	}
	done := make(chan reply, 1)
	go func() {
		raw, err := safeExecute(i.logger, "reason:"+string(stage), func() ([]byte, error) {
			return i.service.Reason(ctx, stage, payload)
		})
		done <- reply{raw: raw, err: err}
	}()

	select {
	case r := <-done:
		if r.err == nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return r.raw, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
