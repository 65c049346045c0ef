package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	coursework "github.com/felixgeelhaar/studyflow/internal/coursework/domain"
	profile "github.com/felixgeelhaar/studyflow/internal/profile/domain"
	"github.com/felixgeelhaar/studyflow/internal/rebalance/domain"
	sharedPersistence "github.com/felixgeelhaar/studyflow/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
)

// SQLiteProposalRepository implements domain.ProposalRepository for the
// local single-user database.
type SQLiteProposalRepository struct {
	db *sql.DB
}

// NewSQLiteProposalRepository creates a new SQLite proposal repository.
func NewSQLiteProposalRepository(db *sql.DB) *SQLiteProposalRepository {
	return &SQLiteProposalRepository{db: db}
}

// Save persists a proposal and its moves.
func (r *SQLiteProposalRepository) Save(ctx context.Context, proposal *domain.Proposal) error {
	exec := sharedPersistence.SQLiteExecutor(ctx, r.db)

	query := `
		INSERT INTO rebalance_proposals (
			id, owner_id, trigger_kind, cause_context, energy_level,
			churn_cost_total, status, apply_mode, applied_at, undone_at,
			idempotency_key, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			churn_cost_total = excluded.churn_cost_total,
			status = excluded.status,
			applied_at = excluded.applied_at,
			undone_at = excluded.undone_at,
			updated_at = excluded.updated_at
	`
	_, err := exec.ExecContext(ctx, query,
		proposal.ID().String(),
		proposal.OwnerID().String(),
		string(proposal.Trigger()),
		proposal.CauseContext(),
		int(proposal.EnergyLevel()),
		proposal.ChurnCostTotal(),
		string(proposal.Status()),
		string(proposal.ApplyMode()),
		formatNullableTime(proposal.AppliedAt()),
		formatNullableTime(proposal.UndoneAt()),
		proposal.IdempotencyKey(),
		proposal.CreatedAt().UTC().Format(time.RFC3339Nano),
		proposal.UpdatedAt().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return err
	}

	if _, err := exec.ExecContext(ctx, `DELETE FROM rebalance_moves WHERE proposal_id = ?`, proposal.ID().String()); err != nil {
		return err
	}
	for _, move := range proposal.Moves() {
		if err := r.insertMove(ctx, exec, move); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteProposalRepository) insertMove(ctx context.Context, exec sharedPersistence.SQLiteQuerier, move *domain.Move) error {
	reasons, err := json.Marshal(move.ReasonCodes())
	if err != nil {
		return fmt.Errorf("marshal reason codes: %w", err)
	}
	var baseline any
	if v := move.BaselineVersion(); v != nil {
		baseline = *v
	}
	query := `
		INSERT INTO rebalance_moves (
			id, proposal_id, move_type, source_block_id, work_item_id,
			target_start, target_end, delta_minutes, churn_cost, category,
			reason_codes, base_priority, energy_multiplier, final_priority,
			unverified, baseline_version, title, metadata_phase,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = exec.ExecContext(ctx, query,
		move.ID().String(),
		move.ProposalID().String(),
		string(move.Type()),
		uuidString(move.SourceBlockID()),
		uuidString(move.WorkItemID()),
		formatNullableTime(move.TargetStart()),
		formatNullableTime(move.TargetEnd()),
		move.DeltaMinutes(),
		move.ChurnCost(),
		string(move.Category()),
		string(reasons),
		move.BasePriority(),
		move.EnergyMultiplier(),
		move.FinalPriority(),
		move.IsUnverified(),
		baseline,
		move.Title(),
		move.MetadataPhase(),
		move.CreatedAt().UTC().Format(time.RFC3339Nano),
		move.UpdatedAt().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// FindByID returns a proposal with its moves, or ErrProposalNotFound.
func (r *SQLiteProposalRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Proposal, error) {
	exec := sharedPersistence.SQLiteExecutor(ctx, r.db)

	query := `
		SELECT id, owner_id, trigger_kind, cause_context, energy_level,
		       churn_cost_total, status, apply_mode, applied_at, undone_at,
		       idempotency_key, created_at, updated_at
		FROM rebalance_proposals
		WHERE id = ?
	`
	row := exec.QueryRowContext(ctx, query, id.String())
	proposal, err := r.scanProposal(ctx, exec, row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProposalNotFound
		}
		return nil, err
	}
	return proposal, nil
}

// ListProposedBefore returns proposed proposals created before the cutoff.
func (r *SQLiteProposalRepository) ListProposedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Proposal, error) {
	exec := sharedPersistence.SQLiteExecutor(ctx, r.db)

	query := `
		SELECT id, owner_id, trigger_kind, cause_context, energy_level,
		       churn_cost_total, status, apply_mode, applied_at, undone_at,
		       idempotency_key, created_at, updated_at
		FROM rebalance_proposals
		WHERE status = 'proposed' AND created_at < ?
		ORDER BY created_at
		LIMIT ?
	`
	rows, err := exec.QueryContext(ctx, query, cutoff.UTC().Format(time.RFC3339Nano), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var proposals []*domain.Proposal
	for rows.Next() {
		proposal, err := r.scanProposal(ctx, exec, rows.Scan)
		if err != nil {
			return nil, err
		}
		proposals = append(proposals, proposal)
	}
	return proposals, rows.Err()
}

// CountByStatusSince returns counts per status since the given time.
func (r *SQLiteProposalRepository) CountByStatusSince(ctx context.Context, since time.Time) (map[domain.Status]int, error) {
	query := `
		SELECT status, COUNT(*)
		FROM rebalance_proposals
		WHERE created_at >= ?
		GROUP BY status
	`
	rows, err := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryContext(ctx, query, since.UTC().Format(time.RFC3339Nano))
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
func (r *SQLiteProposalRepository) CountCreatedSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM rebalance_proposals WHERE created_at >= ?`
	err := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryRowContext(ctx, query, since.UTC().Format(time.RFC3339Nano)).Scan(&count)
	return count, err
}

// CountUndoneSince returns proposals undone since the given time.
func (r *SQLiteProposalRepository) CountUndoneSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM rebalance_proposals WHERE undone_at >= ?`
	err := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryRowContext(ctx, query, since.UTC().Format(time.RFC3339Nano)).Scan(&count)
	return count, err
}

func (r *SQLiteProposalRepository) scanProposal(ctx context.Context, exec sharedPersistence.SQLiteQuerier, scan func(dest ...any) error) (*domain.Proposal, error) {
	var (
		idStr, ownerStr        string
		trigger, causeContext  string
		energyLevel            int
		churnCostTotal         int
		status, applyMode      string
		appliedStr, undoneStr  sql.NullString
		idempotencyKey         string
		createdStr, updatedStr string
	)
	err := scan(&idStr, &ownerStr, &trigger, &causeContext, &energyLevel,
		&churnCostTotal, &status, &applyMode, &appliedStr, &undoneStr,
		&idempotencyKey, &createdStr, &updatedStr)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse proposal id: %w", err)
	}
	ownerID, err := uuid.Parse(ownerStr)
	if err != nil {
		return nil, fmt.Errorf("parse owner id: %w", err)
	}
	appliedAt, err := parseNullableTime(appliedStr)
	if err != nil {
		return nil, fmt.Errorf("parse applied at: %w", err)
	}
	undoneAt, err := parseNullableTime(undoneStr)
	if err != nil {
		return nil, fmt.Errorf("parse undone at: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, createdStr)
	if err != nil {
		return nil, fmt.Errorf("parse created at: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, updatedStr)
	if err != nil {
		return nil, fmt.Errorf("parse updated at: %w", err)
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

func (r *SQLiteProposalRepository) loadMoves(ctx context.Context, exec sharedPersistence.SQLiteQuerier, proposalID uuid.UUID) ([]*domain.Move, error) {
	query := `
		SELECT id, move_type, source_block_id, work_item_id,
		       target_start, target_end, delta_minutes, churn_cost, category,
		       reason_codes, base_priority, energy_multiplier, final_priority,
		       unverified, baseline_version, title, metadata_phase,
		       created_at, updated_at
		FROM rebalance_moves
		WHERE proposal_id = ?
		ORDER BY final_priority DESC
	`
	rows, err := exec.QueryContext(ctx, query, proposalID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var moves []*domain.Move
	for rows.Next() {
		var (
			idStr, moveType         string
			sourceStr, workItemStr  string
			targetStartStr          sql.NullString
			targetEndStr            sql.NullString
			deltaMinutes, churnCost int
			category, reasonsRaw    string
			basePriority            float64
			energyMultiplier        float64
			finalPriority           float64
			unverified              bool
			baselineVersion         sql.NullInt64
			title, metadataPhase    string
			createdStr, updatedStr  string
		)
		err := rows.Scan(&idStr, &moveType, &sourceStr, &workItemStr,
			&targetStartStr, &targetEndStr, &deltaMinutes, &churnCost, &category,
			&reasonsRaw, &basePriority, &energyMultiplier, &finalPriority,
			&unverified, &baselineVersion, &title, &metadataPhase,
			&createdStr, &updatedStr)
		if err != nil {
			return nil, err
		}

		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parse move id: %w", err)
		}
		sourceID, err := parseOptionalUUID(sourceStr)
		if err != nil {
			return nil, fmt.Errorf("parse source block id: %w", err)
		}
		workItemID, err := parseOptionalUUID(workItemStr)
		if err != nil {
			return nil, fmt.Errorf("parse work item id: %w", err)
		}
		targetStart, err := parseNullableTime(targetStartStr)
		if err != nil {
			return nil, fmt.Errorf("parse target start: %w", err)
		}
		targetEnd, err := parseNullableTime(targetEndStr)
		if err != nil {
			return nil, fmt.Errorf("parse target end: %w", err)
		}
		createdAt, err := time.Parse(time.RFC3339Nano, createdStr)
		if err != nil {
			return nil, fmt.Errorf("parse created at: %w", err)
		}
		updatedAt, err := time.Parse(time.RFC3339Nano, updatedStr)
		if err != nil {
			return nil, fmt.Errorf("parse updated at: %w", err)
		}

		var reasons []domain.ReasonCode
		if reasonsRaw != "" {
			if err := json.Unmarshal([]byte(reasonsRaw), &reasons); err != nil {
				return nil, fmt.Errorf("unmarshal reason codes: %w", err)
			}
		}
		var baseline *int
		if baselineVersion.Valid {
			v := int(baselineVersion.Int64)
			baseline = &v
		}

		spec := domain.MoveSpec{
			Type:             domain.MoveType(moveType),
			SourceBlockID:    sourceID,
			WorkItemID:       workItemID,
			TargetStart:      targetStart,
			TargetEnd:        targetEnd,
			DeltaMinutes:     deltaMinutes,
			ChurnCost:        churnCost,
			Category:         coursework.Category(category),
			ReasonCodes:      reasons,
			BasePriority:     basePriority,
			EnergyMultiplier: energyMultiplier,
			Unverified:       unverified,
			BaselineVersion:  baseline,
			Title:            title,
			MetadataPhase:    metadataPhase,
		}
		moves = append(moves, domain.RehydrateMove(id, proposalID, spec, finalPriority, createdAt, updatedAt))
	}
	return moves, rows.Err()
}

func uuidString(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

func parseOptionalUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(s)
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
