package persistence

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/studyflow/internal/rebalance/domain"
	sharedPersistence "github.com/felixgeelhaar/studyflow/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresChurnRepository implements domain.ChurnRepository using
// PostgreSQL. The ledger increment is a single upsert so concurrent
// applies on the same user/day never lose minutes.
type PostgresChurnRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresChurnRepository creates a new PostgreSQL churn repository.
func NewPostgresChurnRepository(pool *pgxpool.Pool) *PostgresChurnRepository {
	return &PostgresChurnRepository{pool: pool}
}

// GetLedger returns the ledger entry for a user/day, zero when absent.
func (r *PostgresChurnRepository) GetLedger(ctx context.Context, ownerID uuid.UUID, day string) (domain.ChurnLedgerEntry, error) {
	entry := domain.ChurnLedgerEntry{OwnerID: ownerID, Day: day}
	query := `
		SELECT minutes_moved, moves_count, cap_snapshot
		FROM churn_ledger
		WHERE owner_id = $1 AND day = $2
	`
	err := sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx, query, ownerID, day).
		Scan(&entry.MinutesMoved, &entry.MovesCount, &entry.CapSnapshot)
	if errors.Is(err, pgx.ErrNoRows) {
		return entry, nil
	}
	if err != nil {
		return domain.ChurnLedgerEntry{}, err
	}
	return entry, nil
}

// IncrementLedger atomically adds to the user/day row, inserting it if
// absent.
func (r *PostgresChurnRepository) IncrementLedger(ctx context.Context, ownerID uuid.UUID, day string, minutes, moves, capSnapshot int) error {
	query := `
		INSERT INTO churn_ledger (owner_id, day, minutes_moved, moves_count, cap_snapshot, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (owner_id, day) DO UPDATE SET
			minutes_moved = churn_ledger.minutes_moved + EXCLUDED.minutes_moved,
			moves_count = churn_ledger.moves_count + EXCLUDED.moves_count,
			cap_snapshot = EXCLUDED.cap_snapshot,
			updated_at = NOW()
	`
	_, err := sharedPersistence.Executor(ctx, r.pool).Exec(ctx, query, ownerID, day, minutes, moves, capSnapshot)
	return err
}

// GetSettings returns the per-user cap override, or nil when none is set.
func (r *PostgresChurnRepository) GetSettings(ctx context.Context, ownerID uuid.UUID) (*domain.ChurnSettings, error) {
	query := `SELECT daily_cap_minutes FROM churn_settings WHERE owner_id = $1`

	var cap int
	err := sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx, query, ownerID).Scan(&cap)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain.ChurnSettings{OwnerID: ownerID, DailyCapMinutes: cap}, nil
}
