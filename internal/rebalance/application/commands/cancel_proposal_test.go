package commands

import (
	"context"
	"testing"
	"time"

	"github.com/felixgeelhaar/studyflow/internal/rebalance/domain"
	"github.com/felixgeelhaar/studyflow/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCancelProposalHandler_Handle(t *testing.T) {
	userID := uuid.New()

	t.Run("a proposed proposal is cancelled", func(t *testing.T) {
		proposalRepo := new(mockProposalRepo)
		outboxRepo := outbox.NewInMemoryRepository()
		handler := NewCancelProposalHandler(proposalRepo, outboxRepo, passthroughUnitOfWork{})

		proposal := proposedProposal(t, userID)
		proposalRepo.On("FindByID", mock.Anything, proposal.ID()).Return(proposal, nil)
		proposalRepo.On("Save", mock.Anything, proposal).Return(nil)

		err := handler.Handle(context.Background(), CancelProposalCommand{UserID: userID, ProposalID: proposal.ID()})

		require.NoError(t, err)
		assert.Equal(t, domain.StatusCancelled, proposal.Status())
		messages := outboxRepo.Messages()
		require.NotEmpty(t, messages)
		assert.Equal(t, domain.RoutingKeyProposalCancelled, messages[len(messages)-1].RoutingKey)
		proposalRepo.AssertExpectations(t)
	})

	t.Run("an applied proposal cannot be cancelled", func(t *testing.T) {
		proposalRepo := new(mockProposalRepo)
		handler := NewCancelProposalHandler(proposalRepo, outbox.NewInMemoryRepository(), passthroughUnitOfWork{})

		proposal := appliedProposal(t, userID, time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC))
		proposalRepo.On("FindByID", mock.Anything, proposal.ID()).Return(proposal, nil)

		err := handler.Handle(context.Background(), CancelProposalCommand{UserID: userID, ProposalID: proposal.ID()})

		var transitionErr *domain.InvalidTransitionError
		require.ErrorAs(t, err, &transitionErr)
		assert.Equal(t, domain.StatusApplied, transitionErr.From)
		proposalRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("an unknown proposal propagates not found", func(t *testing.T) {
		proposalRepo := new(mockProposalRepo)
		handler := NewCancelProposalHandler(proposalRepo, outbox.NewInMemoryRepository(), passthroughUnitOfWork{})

		id := uuid.New()
		proposalRepo.On("FindByID", mock.Anything, id).Return(nil, domain.ErrProposalNotFound)

		err := handler.Handle(context.Background(), CancelProposalCommand{UserID: userID, ProposalID: id})

		assert.ErrorIs(t, err, domain.ErrProposalNotFound)
	})
}
