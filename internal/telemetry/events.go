package telemetry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Publisher abstracts the event broker.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// EventEnvelope is the wire format for presence and delivery events.
type EventEnvelope struct {
	SchemaVersion int            `json:"schema_version"`
	EventType     string         `json:"event_type"`
	OccurredAt    string         `json:"occurred_at"`
	Service       string         `json:"service"`
	Environment   string         `json:"environment"`
	RequestID     string         `json:"request_id,omitempty"`
	UserID        string         `json:"user_id,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// EventEmitter publishes lifecycle events (user_connected,
// user_disconnected, message_delivered) to the broker. Emission is
// best effort and never fails the caller.
type EventEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	logger      *zap.SugaredLogger
}

// NewEventEmitter constructs an EventEmitter.
func NewEventEmitter(publisher Publisher, routingKey, service, environment string, logger *zap.SugaredLogger) *EventEmitter {
	return &EventEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		logger:      logger,
	}
}

// Emit publishes one event.
func (e *EventEmitter) Emit(ctx context.Context, eventType, requestID, userID string, payload map[string]any) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := EventEnvelope{
		SchemaVersion: 1,
		EventType:     eventType,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		UserID:        userID,
		Payload:       payload,
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		e.logger.Warnw("event publish failed", "event_type", eventType, "error", err)
	}
}
