package commbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/jeeves-cluster-organization/crewplanner/coreengine/agents"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/observability"
)

// DefaultSubjectPrefix is used when the bridge is created without a prefix.
const DefaultSubjectPrefix = "crewplanner.flow"

// =============================================================================
// NATS BRIDGE
// =============================================================================

// NATSBridge republishes flow events from a CommBus onto NATS subjects.
// Each event is JSON encoded and sent to <prefix>.<event type>.
type NATSBridge struct {
	conn   *nats.Conn
	prefix string
	logger agents.Logger
}

// Connect dials the NATS server at url.
func Connect(url string, logger agents.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("crewplanner"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats_disconnected", "error", err.Error())
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats_reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}
	return nc, nil
}

// NewNATSBridge creates a bridge over an established connection.
func NewNATSBridge(conn *nats.Conn, prefix string, logger agents.Logger) *NATSBridge {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSBridge{
		conn:   conn,
		prefix: prefix,
		logger: logger.Bind("component", "nats_bridge"),
	}
}

// Subject returns the subject an event type is published on.
func (b *NATSBridge) Subject(eventType string) string {
	return b.prefix + "." + eventType
}

// Forward publishes one bus message to NATS.
func (b *NATSBridge) Forward(ctx context.Context, message Message) (any, error) {
	msg, ok := message.(*FlowEventMessage)
	if !ok {
		return nil, &CommBusError{Message: fmt.Sprintf("unsupported message type %T", message)}
	}
	eventType := string(msg.Event.Type)
	subject := b.Subject(eventType)

	data, err := json.Marshal(msg.Event)
	if err != nil {
		observability.RecordEventPublished(eventType, "error")
		return nil, NewPublishError(subject, err)
	}
	if err := b.conn.Publish(subject, data); err != nil {
		observability.RecordEventPublished(eventType, "error")
		return nil, NewPublishError(subject, err)
	}

	observability.RecordEventPublished(eventType, "success")
	b.logger.Debug("event_forwarded", "subject", subject, "run_id", msg.Event.RunID)
	return nil, nil
}

// Attach subscribes the bridge to every flow event type on bus.
// The returned function detaches it.
func (b *NATSBridge) Attach(bus CommBus) func() {
	unsubs := make([]func(), 0, len(FlowEventTypes))
	for _, t := range FlowEventTypes {
		unsubs = append(unsubs, bus.Subscribe(string(t), b.Forward))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Close flushes pending messages and closes the connection.
func (b *NATSBridge) Close() error {
	if b.conn == nil || b.conn.IsClosed() {
		return nil
	}
	if err := b.conn.FlushTimeout(2 * time.Second); err != nil {
		b.logger.Warn("nats_flush_error", "error", err.Error())
	}
	b.conn.Close()
	return nil
}
