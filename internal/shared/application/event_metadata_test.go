package application

import (
	"context"
	"testing"
	"time"

	"github.com/felixgeelhaar/studyflow/internal/shared/domain"
	"github.com/felixgeelhaar/studyflow/pkg/observability"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// stampableEvent carries metadata through the shared base event.
type stampableEvent struct {
	domain.BaseEvent
}

// fixedEvent is a domain event without a metadata setter.
type fixedEvent struct {
	eventID uuid.UUID
}

func (e fixedEvent) EventID() uuid.UUID             { return e.eventID }
func (e fixedEvent) AggregateID() uuid.UUID         { return uuid.Nil }
func (e fixedEvent) AggregateType() string          { return "proposal" }
func (e fixedEvent) RoutingKey() string             { return "rebalance.proposal.created" }
func (e fixedEvent) OccurredAt() time.Time          { return time.Time{} }
func (e fixedEvent) Metadata() domain.EventMetadata { return domain.EventMetadata{} }

func newStampableEvent() *stampableEvent {
	return &stampableEvent{
		BaseEvent: domain.NewBaseEvent(uuid.New(), "proposal", "rebalance.proposal.created"),
	}
}

func TestStampEvents(t *testing.T) {
	t.Run("stamps events that accept metadata", func(t *testing.T) {
		userID := uuid.New()
		event := newStampableEvent()

		StampEvents(context.Background(), []domain.DomainEvent{event}, userID)

		assert.Equal(t, userID, event.Metadata().UserID)
		assert.NotEqual(t, uuid.Nil, event.Metadata().CorrelationID)
		assert.NotEqual(t, uuid.Nil, event.Metadata().CausationID)
	})

	t.Run("reuses the correlation ID carried by the context", func(t *testing.T) {
		correlationID := uuid.New()
		ctx := observability.WithCorrelationID(context.Background(), correlationID.String())
		event := newStampableEvent()

		StampEvents(ctx, []domain.DomainEvent{event}, uuid.New())

		assert.Equal(t, correlationID, event.Metadata().CorrelationID)
	})

	t.Run("mints fresh correlation IDs per call when the context has none", func(t *testing.T) {
		first, second := newStampableEvent(), newStampableEvent()

		StampEvents(context.Background(), []domain.DomainEvent{first}, uuid.New())
		StampEvents(context.Background(), []domain.DomainEvent{second}, uuid.New())

		assert.NotEqual(t, first.Metadata().CorrelationID, second.Metadata().CorrelationID)
	})

	t.Run("skips events without a setter", func(t *testing.T) {
		event := fixedEvent{eventID: uuid.New()}

		StampEvents(context.Background(), []domain.DomainEvent{event}, uuid.New())

		assert.Equal(t, domain.EventMetadata{}, event.Metadata())
	})
}
