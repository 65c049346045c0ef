package commands

import (
	"context"

	"github.com/felixgeelhaar/studyflow/internal/rebalance/domain"
	sharedApplication "github.com/felixgeelhaar/studyflow/internal/shared/application"
	"github.com/felixgeelhaar/studyflow/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
)

// CancelProposalCommand discards a proposal the user declined.
type CancelProposalCommand struct {
	UserID     uuid.UUID
	ProposalID uuid.UUID
}

// CancelProposalHandler handles the CancelProposalCommand.
type CancelProposalHandler struct {
	proposalRepo domain.ProposalRepository
	outboxRepo   outbox.Repository
	uow          sharedApplication.UnitOfWork
}

// NewCancelProposalHandler creates a new CancelProposalHandler.
func NewCancelProposalHandler(
	proposalRepo domain.ProposalRepository,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
) *CancelProposalHandler {
	return &CancelProposalHandler{
		proposalRepo: proposalRepo,
		outboxRepo:   outboxRepo,
		uow:          uow,
	}
}

// Handle executes the CancelProposalCommand.
func (h *CancelProposalHandler) Handle(ctx context.Context, cmd CancelProposalCommand) error {
	return sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		proposal, err := h.proposalRepo.FindByID(txCtx, cmd.ProposalID)
		if err != nil {
			return err
		}
		if err := proposal.MarkCancelled(); err != nil {
			return err
		}
		if err := h.proposalRepo.Save(txCtx, proposal); err != nil {
			return err
		}
		return saveEvents(txCtx, h.outboxRepo, proposal, cmd.UserID)
	})
}
