package commands

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/felixgeelhaar/studyflow/internal/rebalance/domain"
	"github.com/felixgeelhaar/studyflow/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func proposedProposal(t *testing.T, userID uuid.UUID) *domain.Proposal {
	t.Helper()
	proposal, err := domain.NewProposal(userID, domain.TriggerDailyRefresh, "", 6, domain.ApplyModeBestEffort, uuid.NewString())
	require.NoError(t, err)
	proposal.ClearDomainEvents()
	return proposal
}

func TestExpireProposalsHandler_Handle(t *testing.T) {
	userID := uuid.New()
	now := time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("stale proposals are marked expired and saved", func(t *testing.T) {
		proposalRepo := new(mockProposalRepo)
		outboxRepo := outbox.NewInMemoryRepository()
		handler := NewExpireProposalsHandler(proposalRepo, outboxRepo, passthroughUnitOfWork{}, logger)

		first := proposedProposal(t, userID)
		second := proposedProposal(t, userID)
		proposalRepo.On("ListProposedBefore", mock.Anything, now.Add(-DefaultProposalTTL), 100).
			Return([]*domain.Proposal{first, second}, nil)
		proposalRepo.On("Save", mock.Anything, first).Return(nil)
		proposalRepo.On("Save", mock.Anything, second).Return(nil)

		result, err := handler.Handle(context.Background(), ExpireProposalsCommand{Now: now})

		require.NoError(t, err)
		assert.Equal(t, 2, result.Expired)
		assert.Equal(t, domain.StatusExpired, first.Status())
		assert.Equal(t, domain.StatusExpired, second.Status())
		assert.NotEmpty(t, outboxRepo.Messages())
		proposalRepo.AssertExpectations(t)
	})

	t.Run("a failing proposal is skipped without stalling the sweep", func(t *testing.T) {
		proposalRepo := new(mockProposalRepo)
		outboxRepo := outbox.NewInMemoryRepository()
		handler := NewExpireProposalsHandler(proposalRepo, outboxRepo, passthroughUnitOfWork{}, logger)

		bad := proposedProposal(t, userID)
		good := proposedProposal(t, userID)
		proposalRepo.On("ListProposedBefore", mock.Anything, mock.Anything, 100).
			Return([]*domain.Proposal{bad, good}, nil)
		proposalRepo.On("Save", mock.Anything, bad).Return(errors.New("row locked"))
		proposalRepo.On("Save", mock.Anything, good).Return(nil)

		result, err := handler.Handle(context.Background(), ExpireProposalsCommand{Now: now})

		require.NoError(t, err)
		assert.Equal(t, 1, result.Expired)
		assert.Equal(t, domain.StatusExpired, good.Status())
	})

	t.Run("custom TTL and limit are honored", func(t *testing.T) {
		proposalRepo := new(mockProposalRepo)
		handler := NewExpireProposalsHandler(proposalRepo, outbox.NewInMemoryRepository(), passthroughUnitOfWork{}, logger)

		proposalRepo.On("ListProposedBefore", mock.Anything, now.Add(-time.Hour), 5).
			Return([]*domain.Proposal{}, nil)

		result, err := handler.Handle(context.Background(), ExpireProposalsCommand{TTL: time.Hour, Limit: 5, Now: now})

		require.NoError(t, err)
		assert.Zero(t, result.Expired)
		proposalRepo.AssertExpectations(t)
	})

	t.Run("listing failure aborts the sweep", func(t *testing.T) {
		proposalRepo := new(mockProposalRepo)
		handler := NewExpireProposalsHandler(proposalRepo, outbox.NewInMemoryRepository(), passthroughUnitOfWork{}, logger)

		proposalRepo.On("ListProposedBefore", mock.Anything, mock.Anything, 100).
			Return(nil, errors.New("db down"))

		_, err := handler.Handle(context.Background(), ExpireProposalsCommand{Now: now})

		assert.Error(t, err)
	})
}
