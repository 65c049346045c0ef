package commands

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	calendar "github.com/felixgeelhaar/studyflow/internal/calendar/domain"
	"github.com/felixgeelhaar/studyflow/internal/rebalance/domain"
	"github.com/felixgeelhaar/studyflow/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type undoFixture struct {
	handler      *UndoProposalHandler
	proposalRepo *mockProposalRepo
	snapshotRepo *mockSnapshotRepo
	attemptRepo  *mockAttemptRepo
	blockRepo    *mockBlockRepo
	outboxRepo   *outbox.InMemoryRepository
}

func newUndoFixture() *undoFixture {
	f := &undoFixture{
		proposalRepo: new(mockProposalRepo),
		snapshotRepo: new(mockSnapshotRepo),
		attemptRepo:  new(mockAttemptRepo),
		blockRepo:    new(mockBlockRepo),
		outboxRepo:   outbox.NewInMemoryRepository(),
	}
	f.handler = NewUndoProposalHandler(
		f.proposalRepo, f.snapshotRepo, f.attemptRepo, f.blockRepo,
		f.outboxRepo, passthroughUnitOfWork{}, DefaultUndoWindow,
	)
	return f
}

func appliedProposal(t *testing.T, userID uuid.UUID, appliedAt time.Time) *domain.Proposal {
	t.Helper()
	proposal, err := domain.NewProposal(userID, domain.TriggerManual, "test", 6, domain.ApplyModeBestEffort, uuid.NewString())
	require.NoError(t, err)
	require.NoError(t, proposal.MarkApplied(appliedAt))
	proposal.ClearDomainEvents()
	return proposal
}

func movedBlockSnapshot(proposalID uuid.UUID, ownerID uuid.UUID) *domain.RollbackSnapshot {
	priorStart := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	return domain.NewRollbackSnapshot(proposalID, []domain.BlockSnapshot{{
		BlockID:          uuid.New(),
		OwnerID:          ownerID,
		BlockType:        calendar.BlockTypeStudy,
		Title:            "Study",
		PriorStart:       priorStart,
		PriorEnd:         priorStart.Add(time.Hour),
		PostApplyVersion: 2,
	}})
}

func TestUndoProposalHandler_Handle(t *testing.T) {
	userID := uuid.New()
	appliedAt := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	now := appliedAt.Add(10 * time.Minute)

	t.Run("restores a moved block from the snapshot", func(t *testing.T) {
		f := newUndoFixture()
		proposal := appliedProposal(t, userID, appliedAt)
		snapshot := movedBlockSnapshot(proposal.ID(), userID)
		snap := snapshot.Blocks[0]

		f.attemptRepo.On("FindByKey", mock.Anything, "undo-1").Return(domain.ApplyAttempt{}, domain.ErrAttemptNotFound)
		f.proposalRepo.On("FindByID", mock.Anything, proposal.ID()).Return(proposal, nil)
		f.snapshotRepo.On("FindByProposal", mock.Anything, proposal.ID()).Return(snapshot, nil)
		f.blockRepo.On("Restore", mock.Anything, snap.BlockID, snap.PriorStart, snap.PriorEnd, snap.PriorMetadata, 2).Return(nil)
		f.attemptRepo.On("CountForProposal", mock.Anything, proposal.ID(), domain.OperationUndo).Return(0, nil)
		f.attemptRepo.On("Create", mock.Anything, mock.AnythingOfType("domain.ApplyAttempt")).Return(nil)
		f.proposalRepo.On("Save", mock.Anything, proposal).Return(nil)

		result, err := f.handler.Handle(context.Background(), UndoProposalCommand{
			UserID: userID, ProposalID: proposal.ID(), IdempotencyKey: "undo-1", Now: now,
		})

		require.NoError(t, err)
		assert.Equal(t, domain.StatusUndone, result.Status)
		assert.Equal(t, 1, result.RestoredBlocks)
		assert.Empty(t, result.Unrestored)
		assert.Equal(t, domain.StatusUndone, proposal.Status())
		assert.NotEmpty(t, f.outboxRepo.Messages())
		f.blockRepo.AssertExpectations(t)
	})

	t.Run("deletes blocks the apply created", func(t *testing.T) {
		f := newUndoFixture()
		proposal := appliedProposal(t, userID, appliedAt)
		created := uuid.New()
		snapshot := domain.NewRollbackSnapshot(proposal.ID(), []domain.BlockSnapshot{{
			BlockID: created, WasCreated: true, PostApplyVersion: 1,
		}})

		f.attemptRepo.On("FindByKey", mock.Anything, mock.Anything).Return(domain.ApplyAttempt{}, domain.ErrAttemptNotFound)
		f.proposalRepo.On("FindByID", mock.Anything, proposal.ID()).Return(proposal, nil)
		f.snapshotRepo.On("FindByProposal", mock.Anything, proposal.ID()).Return(snapshot, nil)
		f.blockRepo.On("Delete", mock.Anything, created, 1).Return(nil)
		f.attemptRepo.On("CountForProposal", mock.Anything, proposal.ID(), domain.OperationUndo).Return(0, nil)
		f.attemptRepo.On("Create", mock.Anything, mock.AnythingOfType("domain.ApplyAttempt")).Return(nil)
		f.proposalRepo.On("Save", mock.Anything, proposal).Return(nil)

		result, err := f.handler.Handle(context.Background(), UndoProposalCommand{
			UserID: userID, ProposalID: proposal.ID(), IdempotencyKey: "undo-2", Now: now,
		})

		require.NoError(t, err)
		assert.Equal(t, 1, result.RestoredBlocks)
		f.blockRepo.AssertExpectations(t)
	})

	t.Run("recreates blocks the apply deleted", func(t *testing.T) {
		f := newUndoFixture()
		proposal := appliedProposal(t, userID, appliedAt)
		priorStart := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
		deleted := uuid.New()
		snapshot := domain.NewRollbackSnapshot(proposal.ID(), []domain.BlockSnapshot{{
			BlockID:    deleted,
			OwnerID:    userID,
			BlockType:  calendar.BlockTypeChill,
			Title:      "Break",
			PriorStart: priorStart,
			PriorEnd:   priorStart.Add(30 * time.Minute),
			WasDeleted: true,
		}})

		f.attemptRepo.On("FindByKey", mock.Anything, mock.Anything).Return(domain.ApplyAttempt{}, domain.ErrAttemptNotFound)
		f.proposalRepo.On("FindByID", mock.Anything, proposal.ID()).Return(proposal, nil)
		f.snapshotRepo.On("FindByProposal", mock.Anything, proposal.ID()).Return(snapshot, nil)
		f.blockRepo.On("Create", mock.Anything, mock.MatchedBy(func(b *calendar.Block) bool {
			return b.ID() == deleted && b.StartTime().Equal(priorStart)
		})).Return(nil)
		f.attemptRepo.On("CountForProposal", mock.Anything, proposal.ID(), domain.OperationUndo).Return(0, nil)
		f.attemptRepo.On("Create", mock.Anything, mock.AnythingOfType("domain.ApplyAttempt")).Return(nil)
		f.proposalRepo.On("Save", mock.Anything, proposal).Return(nil)

		result, err := f.handler.Handle(context.Background(), UndoProposalCommand{
			UserID: userID, ProposalID: proposal.ID(), IdempotencyKey: "undo-3", Now: now,
		})

		require.NoError(t, err)
		assert.Equal(t, 1, result.RestoredBlocks)
		f.blockRepo.AssertExpectations(t)
	})

	t.Run("reports blocks changed after apply instead of overwriting them", func(t *testing.T) {
		f := newUndoFixture()
		proposal := appliedProposal(t, userID, appliedAt)
		snapshot := movedBlockSnapshot(proposal.ID(), userID)
		snap := snapshot.Blocks[0]

		f.attemptRepo.On("FindByKey", mock.Anything, mock.Anything).Return(domain.ApplyAttempt{}, domain.ErrAttemptNotFound)
		f.proposalRepo.On("FindByID", mock.Anything, proposal.ID()).Return(proposal, nil)
		f.snapshotRepo.On("FindByProposal", mock.Anything, proposal.ID()).Return(snapshot, nil)
		f.blockRepo.On("Restore", mock.Anything, snap.BlockID, snap.PriorStart, snap.PriorEnd, snap.PriorMetadata, 2).
			Return(calendar.ErrVersionMismatch)
		f.attemptRepo.On("CountForProposal", mock.Anything, proposal.ID(), domain.OperationUndo).Return(0, nil)
		f.attemptRepo.On("Create", mock.Anything, mock.AnythingOfType("domain.ApplyAttempt")).Return(nil)
		f.proposalRepo.On("Save", mock.Anything, proposal).Return(nil)

		result, err := f.handler.Handle(context.Background(), UndoProposalCommand{
			UserID: userID, ProposalID: proposal.ID(), IdempotencyKey: "undo-4", Now: now,
		})

		require.NoError(t, err)
		assert.Zero(t, result.RestoredBlocks)
		require.Len(t, result.Unrestored, 1)
		assert.Equal(t, "block changed after apply", result.Unrestored[0].Reason)
		assert.Equal(t, domain.StatusUndone, result.Status, "undo is best effort per block")
	})

	t.Run("rejects an undo outside the window", func(t *testing.T) {
		f := newUndoFixture()
		proposal := appliedProposal(t, userID, appliedAt)

		f.attemptRepo.On("FindByKey", mock.Anything, mock.Anything).Return(domain.ApplyAttempt{}, domain.ErrAttemptNotFound)
		f.proposalRepo.On("FindByID", mock.Anything, proposal.ID()).Return(proposal, nil)

		_, err := f.handler.Handle(context.Background(), UndoProposalCommand{
			UserID: userID, ProposalID: proposal.ID(), IdempotencyKey: "undo-late",
			Now: appliedAt.Add(31 * time.Minute),
		})

		assert.ErrorIs(t, err, domain.ErrUndoWindowExpired)
		f.snapshotRepo.AssertNotCalled(t, "FindByProposal", mock.Anything, mock.Anything)
	})

	t.Run("rejects undoing a proposal that was never applied", func(t *testing.T) {
		f := newUndoFixture()
		proposal, err := domain.NewProposal(userID, domain.TriggerManual, "", 6, domain.ApplyModeBestEffort, uuid.NewString())
		require.NoError(t, err)

		f.attemptRepo.On("FindByKey", mock.Anything, mock.Anything).Return(domain.ApplyAttempt{}, domain.ErrAttemptNotFound)
		f.proposalRepo.On("FindByID", mock.Anything, proposal.ID()).Return(proposal, nil)

		_, err = f.handler.Handle(context.Background(), UndoProposalCommand{
			UserID: userID, ProposalID: proposal.ID(), IdempotencyKey: "undo-early", Now: now,
		})

		var terr *domain.InvalidTransitionError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, domain.StatusProposed, terr.From)
	})

	t.Run("replays a stored undo outcome", func(t *testing.T) {
		f := newUndoFixture()
		proposalID := uuid.New()
		stored, err := json.Marshal(&UndoProposalResult{
			ProposalID: proposalID, Status: domain.StatusUndone, RestoredBlocks: 3,
		})
		require.NoError(t, err)
		f.attemptRepo.On("FindByKey", mock.Anything, "undo-replay").Return(domain.ApplyAttempt{
			ProposalID: proposalID, Status: domain.AttemptSuccess, Result: stored,
		}, nil)

		result, err := f.handler.Handle(context.Background(), UndoProposalCommand{
			UserID: userID, ProposalID: proposalID, IdempotencyKey: "undo-replay", Now: now,
		})

		require.NoError(t, err)
		assert.True(t, result.Replayed)
		assert.Equal(t, 3, result.RestoredBlocks)
		f.proposalRepo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	})

	t.Run("requires an idempotency key", func(t *testing.T) {
		f := newUndoFixture()

		_, err := f.handler.Handle(context.Background(), UndoProposalCommand{
			UserID: userID, ProposalID: uuid.New(), Now: now,
		})

		var verr *domain.ValidationError
		assert.ErrorAs(t, err, &verr)
	})
}
