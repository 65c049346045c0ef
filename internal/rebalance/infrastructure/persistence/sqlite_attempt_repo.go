package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/studyflow/internal/rebalance/domain"
	sharedPersistence "github.com/felixgeelhaar/studyflow/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
)

// SQLiteAttemptRepository implements domain.AttemptRepository for the
// local single-user database.
type SQLiteAttemptRepository struct {
	db *sql.DB
}

// NewSQLiteAttemptRepository creates a new SQLite attempt repository.
func NewSQLiteAttemptRepository(db *sql.DB) *SQLiteAttemptRepository {
	return &SQLiteAttemptRepository{db: db}
}

// FindByKey returns the attempt recorded under the key.
func (r *SQLiteAttemptRepository) FindByKey(ctx context.Context, idempotencyKey string) (domain.ApplyAttempt, error) {
	query := `
		SELECT id, proposal_id, attempt_number, operation, idempotency_key,
		       status, conflicts, result, attempted_at
		FROM rebalance_attempts
		WHERE idempotency_key = ?
	`
	var (
		idStr, proposalStr      string
		attemptNumber           int
		operation, status       string
		key                     string
		conflictsRaw, resultRaw string
		attemptedStr            string
	)
	err := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryRowContext(ctx, query, idempotencyKey).Scan(
		&idStr, &proposalStr, &attemptNumber, &operation, &key,
		&status, &conflictsRaw, &resultRaw, &attemptedStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ApplyAttempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.ApplyAttempt{}, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return domain.ApplyAttempt{}, fmt.Errorf("parse attempt id: %w", err)
	}
	proposalID, err := uuid.Parse(proposalStr)
	if err != nil {
		return domain.ApplyAttempt{}, fmt.Errorf("parse proposal id: %w", err)
	}
	attemptedAt, err := time.Parse(time.RFC3339Nano, attemptedStr)
	if err != nil {
		return domain.ApplyAttempt{}, fmt.Errorf("parse attempted at: %w", err)
	}

	attempt := domain.ApplyAttempt{
		ID:             id,
		ProposalID:     proposalID,
		AttemptNumber:  attemptNumber,
		Operation:      domain.AttemptOperation(operation),
		IdempotencyKey: key,
		Status:         domain.AttemptStatus(status),
		Result:         json.RawMessage(resultRaw),
		AttemptedAt:    attemptedAt,
	}
	if conflictsRaw != "" {
		if err := json.Unmarshal([]byte(conflictsRaw), &attempt.Conflicts); err != nil {
			return domain.ApplyAttempt{}, fmt.Errorf("unmarshal attempt conflicts: %w", err)
		}
	}
	return attempt, nil
}

// Create stores a new attempt.
func (r *SQLiteAttemptRepository) Create(ctx context.Context, attempt domain.ApplyAttempt) error {
	conflicts, err := json.Marshal(attempt.Conflicts)
	if err != nil {
		return fmt.Errorf("marshal attempt conflicts: %w", err)
	}
	query := `
		INSERT INTO rebalance_attempts (
			id, proposal_id, attempt_number, operation, idempotency_key,
			status, conflicts, result, attempted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = sharedPersistence.SQLiteExecutor(ctx, r.db).ExecContext(ctx, query,
		attempt.ID.String(),
		attempt.ProposalID.String(),
		attempt.AttemptNumber,
		string(attempt.Operation),
		attempt.IdempotencyKey,
		string(attempt.Status),
		string(conflicts),
		string(attempt.Result),
		attempt.AttemptedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// CountForProposal returns how many attempts exist for a proposal and
// operation.
func (r *SQLiteAttemptRepository) CountForProposal(ctx context.Context, proposalID uuid.UUID, operation domain.AttemptOperation) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM rebalance_attempts WHERE proposal_id = ? AND operation = ?`
	err := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryRowContext(ctx, query, proposalID.String(), string(operation)).Scan(&count)
	return count, err
}
