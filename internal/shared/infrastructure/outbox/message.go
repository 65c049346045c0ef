package outbox

import (
	"encoding/json"
	"time"

	"github.com/felixgeelhaar/studyflow/internal/shared/domain"
	"github.com/google/uuid"
)

// Message is a domain event staged for publishing. Messages are written in
// the same transaction as the state change they describe and relayed to the
// broker by the worker.
type Message struct {
	ID            int64
	EventID       uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	RoutingKey    string
	Payload       json.RawMessage
	Metadata      json.RawMessage
	CreatedAt     time.Time
	PublishedAt   *time.Time
	NextRetryAt   *time.Time
	RetryCount    int
	LastError     *string
}

// NewMessage creates an outbox message from a domain event.
func NewMessage(event domain.DomainEvent) (*Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	metadata, err := json.Marshal(event.Metadata())
	if err != nil {
		return nil, err
	}

	return &Message{
		EventID:       event.EventID(),
		AggregateType: event.AggregateType(),
		AggregateID:   event.AggregateID(),
		EventType:     event.RoutingKey(),
		RoutingKey:    event.RoutingKey(),
		Payload:       payload,
		Metadata:      metadata,
		CreatedAt:     event.OccurredAt(),
	}, nil
}

// IsPublished reports whether the message reached the broker.
func (m *Message) IsPublished() bool { return m.PublishedAt != nil }

// CanRetry reports whether another publish attempt is allowed.
func (m *Message) CanRetry(maxRetries int) bool { return m.RetryCount < maxRetries }
