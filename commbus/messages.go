package commbus

import (
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/envelope"
)

// =============================================================================
// MESSAGE CATEGORIES
// =============================================================================

// MessageCategory represents message routing categories.
type MessageCategory string

const (
	// MessageCategoryEvent represents fire-and-forget, fan-out to all subscribers.
	MessageCategoryEvent MessageCategory = "event"
)

// =============================================================================
// FLOW EVENTS
// =============================================================================

// FlowEventMessage carries one orchestrator transition on the bus.
type FlowEventMessage struct {
	Event envelope.FlowEvent `json:"event"`
}

// NewFlowEventMessage wraps event.
func NewFlowEventMessage(event envelope.FlowEvent) *FlowEventMessage {
	return &FlowEventMessage{Event: event}
}

// Category implements the Message interface.
func (m *FlowEventMessage) Category() string { return string(MessageCategoryEvent) }

// MessageType routes the message by its event type.
func (m *FlowEventMessage) MessageType() string { return string(m.Event.Type) }

// FlowEventTypes lists every event the orchestrator emits.
var FlowEventTypes = []envelope.EventType{
	envelope.EventFlowStarted,
	envelope.EventStageCompleted,
	envelope.EventRefinementDecided,
	envelope.EventFlowFinalized,
}

// =============================================================================
// MESSAGE TYPE HELPERS
// =============================================================================

// TypedMessage is an optional interface for messages that can provide their own type name.
type TypedMessage interface {
	Message
	MessageType() string
}

// GetMessageType returns the type name of a message for routing.
func GetMessageType(msg Message) string {
	if typed, ok := msg.(TypedMessage); ok {
		return typed.MessageType()
	}
	return "Unknown"
}
