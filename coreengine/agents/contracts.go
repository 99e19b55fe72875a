// Package agents provides the stage invocation boundary: the StageInvoker
// that calls a reasoning service for one stage and contains every failure
// as a fallback result, plus the reasoning-service contracts it consumes.
package agents

import (
	"context"
	"errors"
	"fmt"

	"github.com/jeeves-cluster-organization/crewplanner/coreengine/envelope"
)

// Logger is the interface for logging.
type Logger interface {
	Info(msg string, fields ...any)
	Debug(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
	Bind(fields ...any) Logger
}

// ReasoningService turns the serialized context of a stage into a raw
// JSON document for that stage.
type ReasoningService interface {
	Reason(ctx context.Context, stage envelope.Stage, payload []byte) ([]byte, error)
}

// ReasoningFunc adapts a function to ReasoningService.
type ReasoningFunc func(ctx context.Context, stage envelope.Stage, payload []byte) ([]byte, error)

// Reason calls f.
func (f ReasoningFunc) Reason(ctx context.Context, stage envelope.Stage, payload []byte) ([]byte, error) {
	return f(ctx, stage, payload)
}

// LLMProvider is the interface for LLM providers.
type LLMProvider interface {
	Generate(ctx context.Context, model string, prompt string, options map[string]any) (string, error)
}

// =============================================================================
// ERRORS
// =============================================================================

// FailureKind classifies a contained invocation failure.
type FailureKind string

const (
	FailureTimeout     FailureKind = "timeout"
	FailureTransport   FailureKind = "transport"
	FailureMalformed   FailureKind = "malformed"
	FailurePanic       FailureKind = "panic"
	FailureRateLimited FailureKind = "rate_limited"
)

// ErrMalformedResponse marks a response that is not a usable document.
var ErrMalformedResponse = errors.New("malformed reasoning response")

// InvocationError describes why a stage invocation fell back. It never
// leaves the invoker as an error; its message becomes the fallback cause.
type InvocationError struct {
	Stage envelope.Stage
	Kind  FailureKind
	Err   error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("%s invocation failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// NewInvocationError classifies err for stage.
func NewInvocationError(stage envelope.Stage, err error) *InvocationError {
	var ie *InvocationError
	if errors.As(err, &ie) {
		return ie
	}
	return &InvocationError{Stage: stage, Kind: classify(err), Err: err}
}

func classify(err error) FailureKind {
	var pe *panicError
	switch {
	case errors.As(err, &pe):
		return FailurePanic
	case errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, ErrMalformedResponse):
		return FailureMalformed
	default:
		return FailureTransport
	}
}
