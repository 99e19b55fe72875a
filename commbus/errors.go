package commbus

import (
	"fmt"
)

// =============================================================================
// ERRORS
// =============================================================================

// CommBusError is the base error type for commbus errors.
type CommBusError struct {
	Message string
	Cause   error
}

func (e *CommBusError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *CommBusError) Unwrap() error {
	return e.Cause
}

// PublishError is returned when an event could not be forwarded to NATS.
type PublishError struct {
	Subject string
	Cause   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s failed: %v", e.Subject, e.Cause)
}

func (e *PublishError) Unwrap() error {
	return e.Cause
}

// NewPublishError creates a new PublishError.
func NewPublishError(subject string, cause error) *PublishError {
	return &PublishError{Subject: subject, Cause: cause}
}
