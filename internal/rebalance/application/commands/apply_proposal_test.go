package commands

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	calendar "github.com/felixgeelhaar/studyflow/internal/calendar/domain"
	profile "github.com/felixgeelhaar/studyflow/internal/profile/domain"
	"github.com/felixgeelhaar/studyflow/internal/rebalance/application/services"
	"github.com/felixgeelhaar/studyflow/internal/rebalance/domain"
	"github.com/felixgeelhaar/studyflow/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type applyFixture struct {
	handler      *ApplyProposalHandler
	proposalRepo *mockProposalRepo
	snapshotRepo *mockSnapshotRepo
	churnRepo    *mockChurnRepo
	attemptRepo  *mockAttemptRepo
	blockRepo    *mockBlockRepo
	profileRepo  *mockProfileRepo
	outboxRepo   *outbox.InMemoryRepository
}

func newApplyFixture() *applyFixture {
	f := &applyFixture{
		proposalRepo: new(mockProposalRepo),
		snapshotRepo: new(mockSnapshotRepo),
		churnRepo:    new(mockChurnRepo),
		attemptRepo:  new(mockAttemptRepo),
		blockRepo:    new(mockBlockRepo),
		profileRepo:  new(mockProfileRepo),
		outboxRepo:   outbox.NewInMemoryRepository(),
	}
	f.handler = NewApplyProposalHandler(
		services.NewChurnGovernor(services.DefaultGovernorConfig()),
		f.proposalRepo, f.snapshotRepo, f.churnRepo, f.attemptRepo,
		f.blockRepo, f.profileRepo, f.outboxRepo, passthroughUnitOfWork{},
	)
	return f
}

// expectCommonReads wires the lookups every successful apply performs.
func (f *applyFixture) expectCommonReads(userID uuid.UUID) {
	f.attemptRepo.On("FindByKey", mock.Anything, mock.Anything).Return(domain.ApplyAttempt{}, domain.ErrAttemptNotFound)
	f.profileRepo.On("FindByUser", mock.Anything, userID).Return(nil, profile.ErrProfileNotFound)
	f.churnRepo.On("GetSettings", mock.Anything, userID).Return(nil, nil)
	f.churnRepo.On("GetLedger", mock.Anything, userID, mock.Anything).Return(domain.ChurnLedgerEntry{}, nil)
}

func applyTestProposal(t *testing.T, userID uuid.UUID, mode domain.ApplyMode) (*domain.Proposal, *calendar.Block) {
	t.Helper()
	start := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	block, err := calendar.NewBlock(userID, calendar.BlockTypeStudy, "Study", start, start.Add(time.Hour), uuid.Nil, calendar.Metadata{})
	require.NoError(t, err)

	proposal, err := domain.NewProposal(userID, domain.TriggerManual, "test", 6, mode, uuid.NewString())
	require.NoError(t, err)

	target := start.Add(3 * time.Hour)
	targetEnd := target.Add(time.Hour)
	version := block.Version()
	_, err = proposal.AddMove(domain.MoveSpec{
		Type:             domain.MoveTypeMove,
		SourceBlockID:    block.ID(),
		TargetStart:      &target,
		TargetEnd:        &targetEnd,
		ChurnCost:        60,
		ReasonCodes:      []domain.ReasonCode{domain.ReasonOverlap},
		BasePriority:     0.8,
		EnergyMultiplier: 1.0,
		BaselineVersion:  &version,
	})
	require.NoError(t, err)
	return proposal, block
}

func TestApplyProposalHandler_Handle(t *testing.T) {
	userID := uuid.New()
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

	t.Run("applies a clean proposal", func(t *testing.T) {
		f := newApplyFixture()
		proposal, block := applyTestProposal(t, userID, domain.ApplyModeBestEffort)
		move := proposal.Moves()[0]

		f.expectCommonReads(userID)
		f.proposalRepo.On("FindByID", mock.Anything, proposal.ID()).Return(proposal, nil)
		f.blockRepo.On("FindByID", mock.Anything, block.ID()).Return(block, nil)
		f.snapshotRepo.On("Save", mock.Anything, mock.AnythingOfType("*domain.RollbackSnapshot")).Return(nil)
		f.blockRepo.On("UpdateTimes", mock.Anything, block.ID(), *move.TargetStart(), *move.TargetEnd(), 1).Return(nil)
		f.churnRepo.On("IncrementLedger", mock.Anything, userID, "2026-03-02", 60, 1, 120).Return(nil)
		f.attemptRepo.On("CountForProposal", mock.Anything, proposal.ID(), domain.OperationConfirm).Return(0, nil)
		f.attemptRepo.On("Create", mock.Anything, mock.AnythingOfType("domain.ApplyAttempt")).Return(nil)
		f.proposalRepo.On("Save", mock.Anything, proposal).Return(nil)

		result, err := f.handler.Handle(context.Background(), ApplyProposalCommand{
			UserID: userID, ProposalID: proposal.ID(), IdempotencyKey: "apply-1", Now: now,
		})

		require.NoError(t, err)
		assert.Equal(t, domain.AttemptSuccess, result.Outcome)
		assert.Equal(t, domain.StatusApplied, result.Status)
		assert.Equal(t, 1, result.AppliedMoves)
		assert.Zero(t, result.SkippedMoves)
		assert.False(t, result.Replayed)
		assert.Equal(t, domain.StatusApplied, proposal.Status())
		assert.NotEmpty(t, f.outboxRepo.Messages(), "apply should queue domain events")

		f.proposalRepo.AssertExpectations(t)
		f.blockRepo.AssertExpectations(t)
		f.snapshotRepo.AssertExpectations(t)
		f.attemptRepo.AssertExpectations(t)
		f.churnRepo.AssertExpectations(t)
	})

	t.Run("replays a stored attempt without touching the calendar", func(t *testing.T) {
		f := newApplyFixture()
		proposalID := uuid.New()
		stored, err := json.Marshal(&ApplyProposalResult{
			ProposalID: proposalID, Status: domain.StatusApplied,
			Outcome: domain.AttemptSuccess, AppliedMoves: 2,
		})
		require.NoError(t, err)
		f.attemptRepo.On("FindByKey", mock.Anything, "apply-1").Return(domain.ApplyAttempt{
			ProposalID: proposalID, Status: domain.AttemptSuccess, Result: stored,
		}, nil)

		result, err := f.handler.Handle(context.Background(), ApplyProposalCommand{
			UserID: userID, ProposalID: proposalID, IdempotencyKey: "apply-1", Now: now,
		})

		require.NoError(t, err)
		assert.True(t, result.Replayed)
		assert.Equal(t, 2, result.AppliedMoves)
		f.blockRepo.AssertNotCalled(t, "UpdateTimes", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		f.proposalRepo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	})

	t.Run("requires an idempotency key", func(t *testing.T) {
		f := newApplyFixture()

		_, err := f.handler.Handle(context.Background(), ApplyProposalCommand{
			UserID: userID, ProposalID: uuid.New(), Now: now,
		})

		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "idempotency_key", verr.Field)
	})

	t.Run("require_all aborts on a stale move", func(t *testing.T) {
		f := newApplyFixture()
		proposal, block := applyTestProposal(t, userID, domain.ApplyModeRequireAll)
		// The block moved since generation.
		require.NoError(t, block.Reschedule(block.StartTime().Add(time.Hour), block.EndTime().Add(time.Hour)))

		f.expectCommonReads(userID)
		f.proposalRepo.On("FindByID", mock.Anything, proposal.ID()).Return(proposal, nil)
		f.blockRepo.On("FindByID", mock.Anything, block.ID()).Return(block, nil)
		f.attemptRepo.On("CountForProposal", mock.Anything, proposal.ID(), domain.OperationConfirm).Return(0, nil)
		f.attemptRepo.On("Create", mock.Anything, mock.AnythingOfType("domain.ApplyAttempt")).Return(nil)

		_, err := f.handler.Handle(context.Background(), ApplyProposalCommand{
			UserID: userID, ProposalID: proposal.ID(), IdempotencyKey: "apply-stale", Now: now,
		})

		var stale *domain.StaleConflictError
		require.ErrorAs(t, err, &stale)
		require.Len(t, stale.Conflicts, 1)
		assert.Equal(t, block.ID(), stale.Conflicts[0].BlockID)
		assert.Equal(t, domain.StatusProposed, proposal.Status(), "nothing was applied")
		f.blockRepo.AssertNotCalled(t, "UpdateTimes", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		f.snapshotRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("best_effort skips stale moves and applies the rest", func(t *testing.T) {
		f := newApplyFixture()
		proposal, block := applyTestProposal(t, userID, domain.ApplyModeBestEffort)

		staleBlock, err := calendar.NewBlock(userID, calendar.BlockTypeFocus, "Stale",
			time.Date(2026, time.March, 2, 14, 0, 0, 0, time.UTC),
			time.Date(2026, time.March, 2, 15, 0, 0, 0, time.UTC), uuid.Nil, calendar.Metadata{})
		require.NoError(t, err)
		target := time.Date(2026, time.March, 2, 16, 0, 0, 0, time.UTC)
		targetEnd := target.Add(time.Hour)
		staleVersion := 1
		_, err = proposal.AddMove(domain.MoveSpec{
			Type:             domain.MoveTypeMove,
			SourceBlockID:    staleBlock.ID(),
			TargetStart:      &target,
			TargetEnd:        &targetEnd,
			ChurnCost:        60,
			BasePriority:     0.1,
			EnergyMultiplier: 1.0,
			BaselineVersion:  &staleVersion,
		})
		require.NoError(t, err)
		require.NoError(t, staleBlock.Reschedule(staleBlock.StartTime().Add(time.Hour), staleBlock.EndTime().Add(time.Hour)))

		move := proposal.Moves()[0]
		f.expectCommonReads(userID)
		f.proposalRepo.On("FindByID", mock.Anything, proposal.ID()).Return(proposal, nil)
		f.blockRepo.On("FindByID", mock.Anything, block.ID()).Return(block, nil)
		f.blockRepo.On("FindByID", mock.Anything, staleBlock.ID()).Return(staleBlock, nil)
		f.snapshotRepo.On("Save", mock.Anything, mock.AnythingOfType("*domain.RollbackSnapshot")).Return(nil)
		f.blockRepo.On("UpdateTimes", mock.Anything, block.ID(), *move.TargetStart(), *move.TargetEnd(), 1).Return(nil)
		f.churnRepo.On("IncrementLedger", mock.Anything, userID, "2026-03-02", 60, 1, 120).Return(nil)
		f.attemptRepo.On("CountForProposal", mock.Anything, proposal.ID(), domain.OperationConfirm).Return(0, nil)
		f.attemptRepo.On("Create", mock.Anything, mock.AnythingOfType("domain.ApplyAttempt")).Return(nil)
		f.proposalRepo.On("Save", mock.Anything, proposal).Return(nil)

		result, err := f.handler.Handle(context.Background(), ApplyProposalCommand{
			UserID: userID, ProposalID: proposal.ID(), IdempotencyKey: "apply-partial", Now: now,
		})

		require.NoError(t, err)
		assert.Equal(t, domain.AttemptPartialSuccess, result.Outcome)
		assert.Equal(t, domain.StatusPartiallyApplied, result.Status)
		assert.Equal(t, 1, result.AppliedMoves)
		assert.Equal(t, 1, result.SkippedMoves)
		require.Len(t, result.Conflicts, 1)
		assert.Equal(t, staleBlock.ID(), result.Conflicts[0].BlockID)
	})

	t.Run("a deleted source block becomes a conflict", func(t *testing.T) {
		f := newApplyFixture()
		proposal, block := applyTestProposal(t, userID, domain.ApplyModeBestEffort)

		f.expectCommonReads(userID)
		f.proposalRepo.On("FindByID", mock.Anything, proposal.ID()).Return(proposal, nil)
		f.blockRepo.On("FindByID", mock.Anything, block.ID()).Return(nil, calendar.ErrBlockNotFound)
		f.attemptRepo.On("CountForProposal", mock.Anything, proposal.ID(), domain.OperationConfirm).Return(0, nil)
		f.attemptRepo.On("Create", mock.Anything, mock.AnythingOfType("domain.ApplyAttempt")).Return(nil)

		_, err := f.handler.Handle(context.Background(), ApplyProposalCommand{
			UserID: userID, ProposalID: proposal.ID(), IdempotencyKey: "apply-gone", Now: now,
		})

		// The only move is stale, so there is nothing left to apply.
		var stale *domain.StaleConflictError
		require.ErrorAs(t, err, &stale)
		assert.Equal(t, "block no longer exists", stale.Conflicts[0].Reason)
	})

	t.Run("re-checks the churn budget at apply time", func(t *testing.T) {
		f := newApplyFixture()
		proposal, _ := applyTestProposal(t, userID, domain.ApplyModeBestEffort)

		f.attemptRepo.On("FindByKey", mock.Anything, mock.Anything).Return(domain.ApplyAttempt{}, domain.ErrAttemptNotFound)
		f.profileRepo.On("FindByUser", mock.Anything, userID).Return(nil, profile.ErrProfileNotFound)
		f.proposalRepo.On("FindByID", mock.Anything, proposal.ID()).Return(proposal, nil)
		f.churnRepo.On("GetSettings", mock.Anything, userID).Return(nil, nil)
		// 90 minutes already spent today leaves no room for 60 more.
		f.churnRepo.On("GetLedger", mock.Anything, userID, "2026-03-02").Return(domain.ChurnLedgerEntry{MinutesMoved: 90}, nil)

		_, err := f.handler.Handle(context.Background(), ApplyProposalCommand{
			UserID: userID, ProposalID: proposal.ID(), IdempotencyKey: "apply-over", Now: now,
		})

		assert.ErrorIs(t, err, domain.ErrChurnCapExceeded)
		f.snapshotRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("rejects a proposal that is not proposed", func(t *testing.T) {
		f := newApplyFixture()
		proposal, _ := applyTestProposal(t, userID, domain.ApplyModeBestEffort)
		require.NoError(t, proposal.MarkCancelled())

		f.attemptRepo.On("FindByKey", mock.Anything, mock.Anything).Return(domain.ApplyAttempt{}, domain.ErrAttemptNotFound)
		f.proposalRepo.On("FindByID", mock.Anything, proposal.ID()).Return(proposal, nil)

		_, err := f.handler.Handle(context.Background(), ApplyProposalCommand{
			UserID: userID, ProposalID: proposal.ID(), IdempotencyKey: "apply-cancelled", Now: now,
		})

		var terr *domain.InvalidTransitionError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, domain.StatusCancelled, terr.From)
	})

	t.Run("creates blocks for insert moves with the move's identity", func(t *testing.T) {
		f := newApplyFixture()
		proposal, err := domain.NewProposal(userID, domain.TriggerQuickAdd, "new item", 6, domain.ApplyModeBestEffort, uuid.NewString())
		require.NoError(t, err)
		target := time.Date(2026, time.March, 4, 9, 0, 0, 0, time.UTC)
		targetEnd := target.Add(time.Hour)
		move, err := proposal.AddMove(domain.MoveSpec{
			Type:             domain.MoveTypeInsert,
			WorkItemID:       uuid.New(),
			TargetStart:      &target,
			TargetEnd:        &targetEnd,
			Category:         "problem_set",
			ReasonCodes:      []domain.ReasonCode{domain.ReasonNewWork},
			BasePriority:     0.7,
			EnergyMultiplier: 1.0,
			Title:            "PS3: outline 1/1",
		})
		require.NoError(t, err)

		f.expectCommonReads(userID)
		f.proposalRepo.On("FindByID", mock.Anything, proposal.ID()).Return(proposal, nil)
		f.snapshotRepo.On("Save", mock.Anything, mock.AnythingOfType("*domain.RollbackSnapshot")).Return(nil)
		f.blockRepo.On("Create", mock.Anything, mock.MatchedBy(func(b *calendar.Block) bool {
			return b.ID() == move.ID() && b.StartTime().Equal(target)
		})).Return(nil)
		f.churnRepo.On("IncrementLedger", mock.Anything, userID, "2026-03-02", 0, 1, 120).Return(nil)
		f.attemptRepo.On("CountForProposal", mock.Anything, proposal.ID(), domain.OperationConfirm).Return(0, nil)
		f.attemptRepo.On("Create", mock.Anything, mock.AnythingOfType("domain.ApplyAttempt")).Return(nil)
		f.proposalRepo.On("Save", mock.Anything, proposal).Return(nil)

		result, err := f.handler.Handle(context.Background(), ApplyProposalCommand{
			UserID: userID, ProposalID: proposal.ID(), IdempotencyKey: "apply-insert", Now: now,
		})

		require.NoError(t, err)
		assert.Equal(t, domain.AttemptSuccess, result.Outcome)
		f.blockRepo.AssertExpectations(t)
	})
}
