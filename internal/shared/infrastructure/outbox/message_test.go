package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/felixgeelhaar/studyflow/internal/shared/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type proposalCreatedEvent struct {
	domain.BaseEvent
	ProposalID uuid.UUID `json:"proposal_id"`
}

func TestNewMessage(t *testing.T) {
	aggregateID := uuid.New()
	event := &proposalCreatedEvent{
		BaseEvent:  domain.NewBaseEvent(aggregateID, "proposal", "rebalance.proposal.created"),
		ProposalID: aggregateID,
	}

	msg, err := NewMessage(event)

	require.NoError(t, err)
	assert.Equal(t, event.EventID(), msg.EventID)
	assert.Equal(t, "proposal", msg.AggregateType)
	assert.Equal(t, aggregateID, msg.AggregateID)
	assert.Equal(t, "rebalance.proposal.created", msg.RoutingKey)
	assert.JSONEq(t, `{"proposal_id":"`+aggregateID.String()+`"}`, string(msg.Payload))
	assert.Nil(t, msg.PublishedAt)
	assert.Zero(t, msg.RetryCount)
}

func TestMessage_IsPublished(t *testing.T) {
	msg := &Message{}
	assert.False(t, msg.IsPublished())

	now := time.Now().UTC()
	msg.PublishedAt = &now
	assert.True(t, msg.IsPublished())
}

func TestMessage_CanRetry(t *testing.T) {
	msg := &Message{RetryCount: 4}
	assert.True(t, msg.CanRetry(5))

	msg.RetryCount = 5
	assert.False(t, msg.CanRetry(5))
}

func TestInMemoryRepository(t *testing.T) {
	t.Run("saved messages come back in order", func(t *testing.T) {
		repo := NewInMemoryRepository()
		ctx := context.Background()

		require.NoError(t, repo.Save(ctx, &Message{RoutingKey: "a"}))
		require.NoError(t, repo.Save(ctx, &Message{RoutingKey: "b"}))

		pending, err := repo.GetUnpublished(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, "a", pending[0].RoutingKey)
		assert.Equal(t, "b", pending[1].RoutingKey)
	})

	t.Run("published messages stop appearing", func(t *testing.T) {
		repo := NewInMemoryRepository()
		ctx := context.Background()

		msg := &Message{RoutingKey: "a"}
		require.NoError(t, repo.Save(ctx, msg))
		require.NoError(t, repo.MarkPublished(ctx, msg.ID))

		pending, err := repo.GetUnpublished(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("failed messages wait for their retry time", func(t *testing.T) {
		repo := NewInMemoryRepository()
		ctx := context.Background()

		msg := &Message{RoutingKey: "a"}
		require.NoError(t, repo.Save(ctx, msg))
		require.NoError(t, repo.MarkFailed(ctx, msg.ID, "broker down", time.Now().UTC().Add(time.Minute)))

		pending, err := repo.GetUnpublished(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, pending)
		assert.Equal(t, 1, msg.RetryCount)
		require.NotNil(t, msg.LastError)
		assert.Equal(t, "broker down", *msg.LastError)
	})

	t.Run("limit bounds the batch", func(t *testing.T) {
		repo := NewInMemoryRepository()
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			require.NoError(t, repo.Save(ctx, &Message{}))
		}

		pending, err := repo.GetUnpublished(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, pending, 2)
	})
}
