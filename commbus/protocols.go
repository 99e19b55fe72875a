// Package commbus provides the in-process flow event bus and its bridge to
// NATS.
//
// The orchestrator publishes every flow transition through an EventSink.
// The bus fans each event out to its subscribers; the NATS bridge is one
// such subscriber and republishes events for other processes.
package commbus

import (
	"context"
)

// =============================================================================
// COMMBUS PROTOCOLS
// =============================================================================

// Message is the protocol for all commbus messages.
type Message interface {
	// Category returns the message category.
	Category() string
}

// HandlerFunc processes a message.
type HandlerFunc func(ctx context.Context, message Message) (any, error)

// Middleware intercepts messages before and after handling.
type Middleware interface {
	// Before is called before message is handled.
	// Returns modified message, or nil to abort processing.
	Before(ctx context.Context, message Message) (Message, error)

	// After is called after message is handled.
	// Returns modified result.
	After(ctx context.Context, message Message, result any, err error) (any, error)
}

// CommBus is the protocol for the event bus.
type CommBus interface {
	// Publish publishes an event to all subscribers.
	Publish(ctx context.Context, event Message) error

	// Subscribe subscribes to an event type.
	// Returns an unsubscribe function.
	Subscribe(eventType string, handler HandlerFunc) func()

	// AddMiddleware adds middleware to the bus.
	// Middleware is executed in registration order.
	AddMiddleware(middleware Middleware)

	// SubscriberCount returns how many subscribers an event type has.
	SubscriberCount(eventType string) int

	// Clear removes all subscribers and middleware.
	Clear()
}
