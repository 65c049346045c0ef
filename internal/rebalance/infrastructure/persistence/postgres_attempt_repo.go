package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/studyflow/internal/rebalance/domain"
	sharedPersistence "github.com/felixgeelhaar/studyflow/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresAttemptRepository implements domain.AttemptRepository using
// PostgreSQL. The unique index on idempotency_key is what turns a
// concurrent duplicate apply into a constraint violation instead of a
// double execution.
type PostgresAttemptRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresAttemptRepository creates a new PostgreSQL attempt repository.
func NewPostgresAttemptRepository(pool *pgxpool.Pool) *PostgresAttemptRepository {
	return &PostgresAttemptRepository{pool: pool}
}

// FindByKey returns the attempt recorded under the key.
func (r *PostgresAttemptRepository) FindByKey(ctx context.Context, idempotencyKey string) (domain.ApplyAttempt, error) {
	query := `
		SELECT id, proposal_id, attempt_number, operation, idempotency_key,
		       status, conflicts, result, attempted_at
		FROM rebalance_attempts
		WHERE idempotency_key = $1
	`
	var (
		attempt      domain.ApplyAttempt
		operation    string
		status       string
		conflictsRaw []byte
		result       []byte
		attemptedAt  time.Time
	)
	err := sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx, query, idempotencyKey).Scan(
		&attempt.ID, &attempt.ProposalID, &attempt.AttemptNumber, &operation,
		&attempt.IdempotencyKey, &status, &conflictsRaw, &result, &attemptedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ApplyAttempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.ApplyAttempt{}, err
	}

	attempt.Operation = domain.AttemptOperation(operation)
	attempt.Status = domain.AttemptStatus(status)
	attempt.Result = result
	attempt.AttemptedAt = attemptedAt
	if len(conflictsRaw) > 0 {
		if err := json.Unmarshal(conflictsRaw, &attempt.Conflicts); err != nil {
			return domain.ApplyAttempt{}, fmt.Errorf("unmarshal attempt conflicts: %w", err)
		}
	}
	return attempt, nil
}

// Create stores a new attempt.
func (r *PostgresAttemptRepository) Create(ctx context.Context, attempt domain.ApplyAttempt) error {
	conflicts, err := json.Marshal(attempt.Conflicts)
	if err != nil {
		return fmt.Errorf("marshal attempt conflicts: %w", err)
	}
	query := `
		INSERT INTO rebalance_attempts (
			id, proposal_id, attempt_number, operation, idempotency_key,
			status, conflicts, result, attempted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = sharedPersistence.Executor(ctx, r.pool).Exec(ctx, query,
		attempt.ID,
		attempt.ProposalID,
		attempt.AttemptNumber,
		string(attempt.Operation),
		attempt.IdempotencyKey,
		string(attempt.Status),
		conflicts,
		[]byte(attempt.Result),
		attempt.AttemptedAt,
	)
	return err
}

// CountForProposal returns how many attempts exist for a proposal and
// operation.
func (r *PostgresAttemptRepository) CountForProposal(ctx context.Context, proposalID uuid.UUID, operation domain.AttemptOperation) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM rebalance_attempts WHERE proposal_id = $1 AND operation = $2`
	err := sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx, query, proposalID, string(operation)).Scan(&count)
	return count, err
}
