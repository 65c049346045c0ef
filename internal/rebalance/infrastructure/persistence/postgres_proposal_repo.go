package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	coursework "github.com/felixgeelhaar/studyflow/internal/coursework/domain"
	profile "github.com/felixgeelhaar/studyflow/internal/profile/domain"
	"github.com/felixgeelhaar/studyflow/internal/rebalance/domain"
	sharedPersistence "github.com/felixgeelhaar/studyflow/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresProposalRepository implements domain.ProposalRepository using
// PostgreSQL. Moves are replaced wholesale on save; a proposal's move set
// only ever changes while it is still proposed.
type PostgresProposalRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresProposalRepository creates a new PostgreSQL proposal repository.
func NewPostgresProposalRepository(pool *pgxpool.Pool) *PostgresProposalRepository {
	return &PostgresProposalRepository{pool: pool}
}

// Save persists a proposal and its moves.
func (r *PostgresProposalRepository) Save(ctx context.Context, proposal *domain.Proposal) error {
	exec := sharedPersistence.Executor(ctx, r.pool)

	query := `
		INSERT INTO rebalance_proposals (
			id, owner_id, trigger_kind, cause_context, energy_level,
			churn_cost_total, status, apply_mode, applied_at, undone_at,
			idempotency_key, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			churn_cost_total = EXCLUDED.churn_cost_total,
			status = EXCLUDED.status,
			applied_at = EXCLUDED.applied_at,
			undone_at = EXCLUDED.undone_at,
			updated_at = EXCLUDED.updated_at
	`
	_, err := exec.Exec(ctx, query,
		proposal.ID(),
		proposal.OwnerID(),
		string(proposal.Trigger()),
		proposal.CauseContext(),
		int(proposal.EnergyLevel()),
		proposal.ChurnCostTotal(),
		string(proposal.Status()),
		string(proposal.ApplyMode()),
		proposal.AppliedAt(),
		proposal.UndoneAt(),
		proposal.IdempotencyKey(),
		proposal.CreatedAt(),
		proposal.UpdatedAt(),
	)
	if err != nil {
		return err
	}

	if _, err := exec.Exec(ctx, `DELETE FROM rebalance_moves WHERE proposal_id = $1`, proposal.ID()); err != nil {
		return err
	}
	for _, move := range proposal.Moves() {
		if err := r.insertMove(ctx, exec, move); err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresProposalRepository) insertMove(ctx context.Context, exec sharedPersistence.DBExecutor, move *domain.Move) error {
	reasons, err := json.Marshal(move.ReasonCodes())
	if err != nil {
		return fmt.Errorf("marshal reason codes: %w", err)
	}
	query := `
		INSERT INTO rebalance_moves (
			id, proposal_id, move_type, source_block_id, work_item_id,
			target_start, target_end, delta_minutes, churn_cost, category,
			reason_codes, base_priority, energy_multiplier, final_priority,
			unverified, baseline_version, title, metadata_phase,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		          $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`
	_, err = exec.Exec(ctx, query,
		move.ID(),
		move.ProposalID(),
		string(move.Type()),
		nullableUUID(move.SourceBlockID()),
		nullableUUID(move.WorkItemID()),
		move.TargetStart(),
		move.TargetEnd(),
		move.DeltaMinutes(),
		move.ChurnCost(),
		string(move.Category()),
		reasons,
		move.BasePriority(),
		move.EnergyMultiplier(),
		move.FinalPriority(),
		move.IsUnverified(),
		move.BaselineVersion(),
		move.Title(),
		move.MetadataPhase(),
		move.CreatedAt(),
		move.UpdatedAt(),
	)
	return err
}

// FindByID returns a proposal with its moves, or ErrProposalNotFound.
func (r *PostgresProposalRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Proposal, error) {
	exec := sharedPersistence.Executor(ctx, r.pool)

	query := `
		SELECT id, owner_id, trigger_kind, cause_context, energy_level,
		       churn_cost_total, status, apply_mode, applied_at, undone_at,
		       idempotency_key, created_at, updated_at
		FROM rebalance_proposals
		WHERE id = $1
	`
	proposal, err := r.scanProposal(ctx, exec, exec.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProposalNotFound
		}
		return nil, err
	}
	return proposal, nil
}

// ListProposedBefore returns proposed proposals created before the cutoff.
func (r *PostgresProposalRepository) ListProposedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Proposal, error) {
	exec := sharedPersistence.Executor(ctx, r.pool)

	query := `
		SELECT id, owner_id, trigger_kind, cause_context, energy_level,
		       churn_cost_total, status, apply_mode, applied_at, undone_at,
		       idempotency_key, created_at, updated_at
		FROM rebalance_proposals
		WHERE status = 'proposed' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`
	rows, err := exec.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var proposals []*domain.Proposal
	for rows.Next() {
		proposal, err := r.scanProposal(ctx, exec, rows)
		if err != nil {
			return nil, err
		}
		proposals = append(proposals, proposal)
	}
	return proposals, rows.Err()
}

// CountByStatusSince returns counts per status since the given time.
func (r *PostgresProposalRepository) CountByStatusSince(ctx context.Context, since time.Time) (map[domain.Status]int, error) {
	query := `
		SELECT status, COUNT(*)
		FROM rebalance_proposals
		WHERE created_at >= $1
		GROUP BY status
	`
	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[domain.Status(status)] = count
	}
	return counts, rows.Err()
}

// CountCreatedSince returns the number of proposals created since the
// given time.
func (r *PostgresProposalRepository) CountCreatedSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM rebalance_proposals WHERE created_at >= $1`
	err := sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx, query, since).Scan(&count)
	return count, err
}

// CountUndoneSince returns proposals undone since the given time.
func (r *PostgresProposalRepository) CountUndoneSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM rebalance_proposals WHERE undone_at >= $1`
	err := sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx, query, since).Scan(&count)
	return count, err
}

func (r *PostgresProposalRepository) scanProposal(ctx context.Context, exec sharedPersistence.DBExecutor, row pgx.Row) (*domain.Proposal, error) {
	var (
		id, ownerID           uuid.UUID
		trigger, causeContext string
		energyLevel           int
		churnCostTotal        int
		status, applyMode     string
		appliedAt, undoneAt   *time.Time
		idempotencyKey        string
		createdAt, updatedAt  time.Time
	)
	err := row.Scan(&id, &ownerID, &trigger, &causeContext, &energyLevel,
		&churnCostTotal, &status, &applyMode, &appliedAt, &undoneAt,
		&idempotencyKey, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	moves, err := r.loadMoves(ctx, exec, id)
	if err != nil {
		return nil, err
	}

	return domain.RehydrateProposal(
		id, ownerID, domain.Trigger(trigger), causeContext,
		profile.EnergyLevel(energyLevel), moves, churnCostTotal,
		domain.Status(status), domain.ApplyMode(applyMode),
		appliedAt, undoneAt, idempotencyKey, createdAt, updatedAt,
	), nil
}

func (r *PostgresProposalRepository) loadMoves(ctx context.Context, exec sharedPersistence.DBExecutor, proposalID uuid.UUID) ([]*domain.Move, error) {
	query := `
		SELECT id, move_type, source_block_id, work_item_id,
		       target_start, target_end, delta_minutes, churn_cost, category,
		       reason_codes, base_priority, energy_multiplier, final_priority,
		       unverified, baseline_version, title, metadata_phase,
		       created_at, updated_at
		FROM rebalance_moves
		WHERE proposal_id = $1
		ORDER BY final_priority DESC
	`
	rows, err := exec.Query(ctx, query, proposalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var moves []*domain.Move
	for rows.Next() {
		var (
			id                      uuid.UUID
			moveType                string
			sourceBlockID           *uuid.UUID
			workItemID              *uuid.UUID
			targetStart, targetEnd  *time.Time
			deltaMinutes, churnCost int
			category                string
			reasonsRaw              []byte
			basePriority            float64
			energyMultiplier        float64
			finalPriority           float64
			unverified              bool
			baselineVersion         *int
			title, metadataPhase    string
			createdAt, updatedAt    time.Time
		)
		err := rows.Scan(&id, &moveType, &sourceBlockID, &workItemID,
			&targetStart, &targetEnd, &deltaMinutes, &churnCost, &category,
			&reasonsRaw, &basePriority, &energyMultiplier, &finalPriority,
			&unverified, &baselineVersion, &title, &metadataPhase,
			&createdAt, &updatedAt)
		if err != nil {
			return nil, err
		}

		var reasons []domain.ReasonCode
		if len(reasonsRaw) > 0 {
			if err := json.Unmarshal(reasonsRaw, &reasons); err != nil {
				return nil, fmt.Errorf("unmarshal reason codes: %w", err)
			}
		}

		spec := domain.MoveSpec{
			Type:             domain.MoveType(moveType),
			SourceBlockID:    derefUUID(sourceBlockID),
			WorkItemID:       derefUUID(workItemID),
			TargetStart:      targetStart,
			TargetEnd:        targetEnd,
			DeltaMinutes:     deltaMinutes,
			ChurnCost:        churnCost,
			Category:         coursework.Category(category),
			ReasonCodes:      reasons,
			BasePriority:     basePriority,
			EnergyMultiplier: energyMultiplier,
			Unverified:       unverified,
			BaselineVersion:  baselineVersion,
			Title:            title,
			MetadataPhase:    metadataPhase,
		}
		moves = append(moves, domain.RehydrateMove(id, proposalID, spec, finalPriority, createdAt, updatedAt))
	}
	return moves, rows.Err()
}

func derefUUID(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}

func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
