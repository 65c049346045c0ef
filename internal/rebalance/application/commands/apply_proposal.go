package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	calendar "github.com/felixgeelhaar/studyflow/internal/calendar/domain"
	profile "github.com/felixgeelhaar/studyflow/internal/profile/domain"
	"github.com/felixgeelhaar/studyflow/internal/rebalance/application/services"
	"github.com/felixgeelhaar/studyflow/internal/rebalance/domain"
	sharedApplication "github.com/felixgeelhaar/studyflow/internal/shared/application"
	"github.com/felixgeelhaar/studyflow/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
)

// ApplyProposalCommand confirms a proposal onto the calendar. The
// idempotency key is mandatory; retrying with the same key replays the
// stored outcome without touching the calendar again.
type ApplyProposalCommand struct {
	UserID         uuid.UUID
	ProposalID     uuid.UUID
	IdempotencyKey string
	Now            time.Time
}

// ApplyProposalResult reports one apply execution.
type ApplyProposalResult struct {
	ProposalID   uuid.UUID             `json:"proposal_id"`
	Status       domain.Status         `json:"status"`
	Outcome      domain.AttemptStatus  `json:"outcome"`
	AppliedMoves int                   `json:"applied_moves"`
	SkippedMoves int                   `json:"skipped_moves"`
	Conflicts    []domain.MoveConflict `json:"conflicts,omitempty"`
	Replayed     bool                  `json:"replayed,omitempty"`
}

// ApplyProposalHandler handles the ApplyProposalCommand.
type ApplyProposalHandler struct {
	governor     *services.ChurnGovernor
	proposalRepo domain.ProposalRepository
	snapshotRepo domain.SnapshotRepository
	churnRepo    domain.ChurnRepository
	attemptRepo  domain.AttemptRepository
	blockRepo    calendar.BlockRepository
	profileRepo  profile.ProfileRepository
	outboxRepo   outbox.Repository
	uow          sharedApplication.UnitOfWork
}

// NewApplyProposalHandler creates a new ApplyProposalHandler.
func NewApplyProposalHandler(
	governor *services.ChurnGovernor,
	proposalRepo domain.ProposalRepository,
	snapshotRepo domain.SnapshotRepository,
	churnRepo domain.ChurnRepository,
	attemptRepo domain.AttemptRepository,
	blockRepo calendar.BlockRepository,
	profileRepo profile.ProfileRepository,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
) *ApplyProposalHandler {
	return &ApplyProposalHandler{
		governor:     governor,
		proposalRepo: proposalRepo,
		snapshotRepo: snapshotRepo,
		churnRepo:    churnRepo,
		attemptRepo:  attemptRepo,
		blockRepo:    blockRepo,
		profileRepo:  profileRepo,
		outboxRepo:   outboxRepo,
		uow:          uow,
	}
}

// Handle applies the proposal's moves inside a single transaction. The
// rollback snapshot is written before the first calendar mutation. In
// require_all mode any stale move aborts the whole apply; in best_effort
// mode stale moves are skipped and reported.
func (h *ApplyProposalHandler) Handle(ctx context.Context, cmd ApplyProposalCommand) (*ApplyProposalResult, error) {
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

	var result *ApplyProposalResult
	var staleErr *domain.StaleConflictError

	err := sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		proposal, err := h.proposalRepo.FindByID(txCtx, cmd.ProposalID)
		if err != nil {
			return err
		}
		if proposal.Status() != domain.StatusProposed {
			return &domain.InvalidTransitionError{From: proposal.Status(), To: domain.StatusApplied}
		}

		loc := time.UTC
		if prof, perr := h.profileRepo.FindByUser(txCtx, cmd.UserID); perr == nil {
			loc = prof.Location()
		}

		// Re-check the budget: churn spent since generation must not
		// push the day over the cap.
		day := domain.DayKey(now, loc)
		settings, err := h.churnRepo.GetSettings(txCtx, cmd.UserID)
		if err != nil {
			return err
		}
		ledger, err := h.churnRepo.GetLedger(txCtx, cmd.UserID, day)
		if err != nil {
			return err
		}
		cap := h.governor.EffectiveCap(settings)
		if ledger.MinutesMoved+proposal.ChurnCostTotal() > cap {
			return domain.ErrChurnCapExceeded
		}

		plan, conflicts, err := h.validateMoves(txCtx, proposal)
		if err != nil {
			return err
		}

		if len(conflicts) > 0 && proposal.ApplyMode() == domain.ApplyModeRequireAll {
			staleErr = &domain.StaleConflictError{ProposalID: proposal.ID(), Conflicts: conflicts}
			return h.recordAttempt(txCtx, proposal, cmd, domain.AttemptStaleConflict, conflicts, &ApplyProposalResult{
				ProposalID: proposal.ID(),
				Status:     proposal.Status(),
				Outcome:    domain.AttemptStaleConflict,
				Conflicts:  conflicts,
			})
		}
		if len(plan) == 0 && len(conflicts) > 0 {
			staleErr = &domain.StaleConflictError{ProposalID: proposal.ID(), Conflicts: conflicts}
			return h.recordAttempt(txCtx, proposal, cmd, domain.AttemptStaleConflict, conflicts, &ApplyProposalResult{
				ProposalID: proposal.ID(),
				Status:     proposal.Status(),
				Outcome:    domain.AttemptStaleConflict,
				Conflicts:  conflicts,
			})
		}

		snapshot := domain.NewRollbackSnapshot(proposal.ID(), snapshotBlocks(plan))
		if err := h.snapshotRepo.Save(txCtx, snapshot); err != nil {
			return err
		}

		applied, appliedMinutes, err := h.executeMoves(txCtx, proposal.OwnerID(), plan)
		if err != nil {
			return err
		}

		if err := h.churnRepo.IncrementLedger(txCtx, cmd.UserID, day, appliedMinutes, applied, cap); err != nil {
			return err
		}

		skipped := len(conflicts)
		outcome := domain.AttemptSuccess
		if skipped > 0 {
			outcome = domain.AttemptPartialSuccess
			if err := proposal.MarkPartiallyApplied(now, applied, skipped); err != nil {
				return err
			}
		} else if err := proposal.MarkApplied(now); err != nil {
			return err
		}

		result = &ApplyProposalResult{
			ProposalID:   proposal.ID(),
			Status:       proposal.Status(),
			Outcome:      outcome,
			AppliedMoves: applied,
			SkippedMoves: skipped,
			Conflicts:    conflicts,
		}
		if err := h.recordAttempt(txCtx, proposal, cmd, outcome, conflicts, result); err != nil {
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
	if staleErr != nil {
		return nil, staleErr
	}
	return result, nil
}

// plannedMove pairs a move with the live block it targets.
type plannedMove struct {
	move  *domain.Move
	block *calendar.Block // nil for inserts
}

// validateMoves loads every target block and splits the proposal into
// executable moves and stale conflicts.
func (h *ApplyProposalHandler) validateMoves(ctx context.Context, proposal *domain.Proposal) ([]plannedMove, []domain.MoveConflict, error) {
	var plan []plannedMove
	var conflicts []domain.MoveConflict
	for _, move := range proposal.Moves() {
		if move.Type() == domain.MoveTypeInsert {
			plan = append(plan, plannedMove{move: move})
			continue
		}
		block, err := h.blockRepo.FindByID(ctx, move.SourceBlockID())
		if err != nil {
			if errors.Is(err, calendar.ErrBlockNotFound) {
				conflicts = append(conflicts, domain.MoveConflict{
					MoveID: move.ID(), BlockID: move.SourceBlockID(), Reason: "block no longer exists",
				})
				continue
			}
			return nil, nil, err
		}
		if !block.IsMovable() {
			conflicts = append(conflicts, domain.MoveConflict{
				MoveID: move.ID(), BlockID: block.ID(), Reason: "block is immovable",
			})
			continue
		}
		if baseline := move.BaselineVersion(); baseline == nil || block.Version() != *baseline {
			conflicts = append(conflicts, domain.MoveConflict{
				MoveID: move.ID(), BlockID: block.ID(), Reason: "block changed since proposal",
			})
			continue
		}
		plan = append(plan, plannedMove{move: move, block: block})
	}
	return plan, conflicts, nil
}

// executeMoves mutates the calendar. Every mutation is guarded by the
// version already validated; a mismatch here means a concurrent writer in
// another transaction and fails the whole apply.
func (h *ApplyProposalHandler) executeMoves(ctx context.Context, ownerID uuid.UUID, plan []plannedMove) (applied, minutes int, err error) {
	for _, p := range plan {
		move := p.move
		switch move.Type() {
		case domain.MoveTypeInsert:
			block, err := calendar.NewBlock(
				ownerID,
				calendar.BlockTypeStudy,
				move.Title(),
				*move.TargetStart(),
				*move.TargetEnd(),
				move.WorkItemID(),
				calendar.Metadata{Phase: move.MetadataPhase(), Source: "rebalance"},
			)
			if err != nil {
				return applied, minutes, fmt.Errorf("insert %s: %w", move.ID(), err)
			}
			// Keep the created block's identity tied to the move so
			// undo can find it.
			block = calendar.RehydrateBlock(
				move.ID(), ownerID, calendar.BlockTypeStudy, move.Title(),
				*move.TargetStart(), *move.TargetEnd(), true,
				move.WorkItemID(), block.Metadata(), 1,
				block.CreatedAt(), block.UpdatedAt(),
			)
			if err := h.blockRepo.Create(ctx, block); err != nil {
				return applied, minutes, fmt.Errorf("insert %s: %w", move.ID(), err)
			}
		case domain.MoveTypeMove, domain.MoveTypeResize:
			if err := h.blockRepo.UpdateTimes(ctx, p.block.ID(), *move.TargetStart(), *move.TargetEnd(), p.block.Version()); err != nil {
				return applied, minutes, fmt.Errorf("move block %s: %w", p.block.ID(), err)
			}
		case domain.MoveTypeDelete:
			if err := h.blockRepo.Delete(ctx, p.block.ID(), p.block.Version()); err != nil {
				return applied, minutes, fmt.Errorf("delete block %s: %w", p.block.ID(), err)
			}
		}
		applied++
		minutes += move.ChurnCost()
	}
	return applied, minutes, nil
}

// snapshotBlocks captures the pre-apply state of every planned mutation.
func snapshotBlocks(plan []plannedMove) []domain.BlockSnapshot {
	snaps := make([]domain.BlockSnapshot, 0, len(plan))
	for _, p := range plan {
		if p.move.Type() == domain.MoveTypeInsert {
			snaps = append(snaps, domain.BlockSnapshot{
				BlockID:          p.move.ID(),
				WasCreated:       true,
				PostApplyVersion: 1,
			})
			continue
		}
		snap := domain.BlockSnapshot{
			BlockID:          p.block.ID(),
			OwnerID:          p.block.OwnerID(),
			BlockType:        p.block.BlockType(),
			Title:            p.block.Title(),
			PriorStart:       p.block.StartTime(),
			PriorEnd:         p.block.EndTime(),
			PriorMetadata:    p.block.Metadata().Clone(),
			WorkItemID:       p.block.WorkItemID(),
			PostApplyVersion: p.block.Version() + 1,
		}
		if p.move.Type() == domain.MoveTypeDelete {
			snap.WasDeleted = true
		}
		snaps = append(snaps, snap)
	}
	return snaps
}

// recordAttempt persists the attempt with its serialized result for
// replay.
func (h *ApplyProposalHandler) recordAttempt(
	ctx context.Context,
	proposal *domain.Proposal,
	cmd ApplyProposalCommand,
	status domain.AttemptStatus,
	conflicts []domain.MoveConflict,
	result *ApplyProposalResult,
) error {
	number, err := h.attemptRepo.CountForProposal(ctx, proposal.ID(), domain.OperationConfirm)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	attempt := domain.NewApplyAttempt(
		proposal.ID(), number+1, domain.OperationConfirm,
		cmd.IdempotencyKey, status, conflicts, payload,
	)
	return h.attemptRepo.Create(ctx, attempt)
}

// replay returns the stored outcome for a previously used key.
func (h *ApplyProposalHandler) replay(ctx context.Context, key string) (*ApplyProposalResult, bool, error) {
	attempt, err := h.attemptRepo.FindByKey(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrAttemptNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var result ApplyProposalResult
	if err := json.Unmarshal(attempt.Result, &result); err != nil {
		return nil, false, fmt.Errorf("decode stored attempt result: %w", err)
	}
	result.Replayed = true
	return &result, true, nil
}
