package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	calendar "github.com/felixgeelhaar/studyflow/internal/calendar/domain"
	"github.com/felixgeelhaar/studyflow/internal/rebalance/domain"
	sharedApplication "github.com/felixgeelhaar/studyflow/internal/shared/application"
	"github.com/felixgeelhaar/studyflow/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
)

// DefaultUndoWindow bounds how long after apply an undo is accepted.
const DefaultUndoWindow = 30 * time.Minute

// UndoProposalCommand rolls an applied proposal back from its snapshot.
type UndoProposalCommand struct {
	UserID         uuid.UUID
	ProposalID     uuid.UUID
	IdempotencyKey string
	Now            time.Time
}

// UnrestoredBlock reports one block undo could not put back.
type UnrestoredBlock struct {
	BlockID uuid.UUID `json:"block_id"`
	Reason  string    `json:"reason"`
}

// UndoProposalResult reports one undo execution. Undo is best effort per
// block: blocks deleted or edited externally since apply are reported
// here, never silently overwritten.
type UndoProposalResult struct {
	ProposalID     uuid.UUID         `json:"proposal_id"`
	Status         domain.Status     `json:"status"`
	RestoredBlocks int               `json:"restored_blocks"`
	Unrestored     []UnrestoredBlock `json:"unrestored,omitempty"`
	Replayed       bool              `json:"replayed,omitempty"`
}

// UndoProposalHandler handles the UndoProposalCommand.
type UndoProposalHandler struct {
	proposalRepo domain.ProposalRepository
	snapshotRepo domain.SnapshotRepository
	attemptRepo  domain.AttemptRepository
	blockRepo    calendar.BlockRepository
	outboxRepo   outbox.Repository
	uow          sharedApplication.UnitOfWork
	undoWindow   time.Duration
}

// NewUndoProposalHandler creates a new UndoProposalHandler. A zero window
// falls back to the default.
func NewUndoProposalHandler(
	proposalRepo domain.ProposalRepository,
	snapshotRepo domain.SnapshotRepository,
	attemptRepo domain.AttemptRepository,
	blockRepo calendar.BlockRepository,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	undoWindow time.Duration,
) *UndoProposalHandler {
	if undoWindow <= 0 {
		undoWindow = DefaultUndoWindow
	}
	return &UndoProposalHandler{
		proposalRepo: proposalRepo,
		snapshotRepo: snapshotRepo,
		attemptRepo:  attemptRepo,
		blockRepo:    blockRepo,
		outboxRepo:   outboxRepo,
		uow:          uow,
		undoWindow:   undoWindow,
	}
}

// Handle restores every snapshotted block inside one transaction.
func (h *UndoProposalHandler) Handle(ctx context.Context, cmd UndoProposalCommand) (*UndoProposalResult, error) {
	if cmd.IdempotencyKey == "" {
		return nil, &domain.ValidationError{Field: "idempotency_key", Reason: "required"}
	}
	now := cmd.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if result, ok, err := h.replay(ctx, cmd.IdempotencyKey); err != nil {
		return nil, err
	} else if ok {
		return result, nil
	}

	var result *UndoProposalResult
	err := sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		proposal, err := h.proposalRepo.FindByID(txCtx, cmd.ProposalID)
		if err != nil {
			return err
		}
		if proposal.Status() != domain.StatusApplied && proposal.Status() != domain.StatusPartiallyApplied {
			return &domain.InvalidTransitionError{From: proposal.Status(), To: domain.StatusUndone}
		}
		if !proposal.IsWithinUndoWindow(now, h.undoWindow) {
			return domain.ErrUndoWindowExpired
		}

		snapshot, err := h.snapshotRepo.FindByProposal(txCtx, cmd.ProposalID)
		if err != nil {
			return err
		}

		restored, unrestored := h.restoreBlocks(txCtx, snapshot)

		if err := proposal.MarkUndone(now, len(unrestored)); err != nil {
			return err
		}

		result = &UndoProposalResult{
			ProposalID:     proposal.ID(),
			Status:         proposal.Status(),
			RestoredBlocks: restored,
			Unrestored:     unrestored,
		}

		outcome := domain.AttemptSuccess
		if len(unrestored) > 0 {
			outcome = domain.AttemptPartialSuccess
		}
		if err := h.recordAttempt(txCtx, proposal.ID(), cmd, outcome, result); err != nil {
			return err
		}
		if err := h.proposalRepo.Save(txCtx, proposal); err != nil {
			return err
		}
		return saveEvents(txCtx, h.outboxRepo, proposal, cmd.UserID)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// restoreBlocks walks the snapshot and puts each block back. A block that
// vanished or was edited after apply is skipped and reported; the version
// guard is what keeps undo from clobbering a newer external edit.
func (h *UndoProposalHandler) restoreBlocks(ctx context.Context, snapshot *domain.RollbackSnapshot) (int, []UnrestoredBlock) {
	restored := 0
	var unrestored []UnrestoredBlock
	for _, snap := range snapshot.Blocks {
		var err error
		switch {
		case snap.WasCreated:
			err = h.blockRepo.Delete(ctx, snap.BlockID, snap.PostApplyVersion)
		case snap.WasDeleted:
			block := calendar.RehydrateBlock(
				snap.BlockID, snap.OwnerID, snap.BlockType, snap.Title,
				snap.PriorStart, snap.PriorEnd, calendar.IsMovableType(snap.BlockType),
				snap.WorkItemID, snap.PriorMetadata, 1,
				snapshot.CreatedAt, time.Now().UTC(),
			)
			err = h.blockRepo.Create(ctx, block)
		default:
			err = h.blockRepo.Restore(ctx, snap.BlockID, snap.PriorStart, snap.PriorEnd, snap.PriorMetadata, snap.PostApplyVersion)
		}
		if err == nil {
			restored++
			continue
		}
		switch {
		case errors.Is(err, calendar.ErrBlockNotFound):
			unrestored = append(unrestored, UnrestoredBlock{BlockID: snap.BlockID, Reason: "block no longer exists"})
		case errors.Is(err, calendar.ErrVersionMismatch):
			unrestored = append(unrestored, UnrestoredBlock{BlockID: snap.BlockID, Reason: "block changed after apply"})
		default:
			unrestored = append(unrestored, UnrestoredBlock{BlockID: snap.BlockID, Reason: err.Error()})
		}
	}
	return restored, unrestored
}

func (h *UndoProposalHandler) recordAttempt(
	ctx context.Context,
	proposalID uuid.UUID,
	cmd UndoProposalCommand,
	status domain.AttemptStatus,
	result *UndoProposalResult,
) error {
	number, err := h.attemptRepo.CountForProposal(ctx, proposalID, domain.OperationUndo)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	attempt := domain.NewApplyAttempt(
		proposalID, number+1, domain.OperationUndo,
		cmd.IdempotencyKey, status, nil, payload,
	)
	return h.attemptRepo.Create(ctx, attempt)
}

func (h *UndoProposalHandler) replay(ctx context.Context, key string) (*UndoProposalResult, bool, error) {
	attempt, err := h.attemptRepo.FindByKey(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrAttemptNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var result UndoProposalResult
	if err := json.Unmarshal(attempt.Result, &result); err != nil {
		return nil, false, fmt.Errorf("decode stored attempt result: %w", err)
	}
	result.Replayed = true
	return &result, true, nil
}
