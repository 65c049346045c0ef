package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/felixgeelhaar/studyflow/internal/rebalance/domain"
	sharedPersistence "github.com/felixgeelhaar/studyflow/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
)

// SQLiteChurnRepository implements domain.ChurnRepository for the local
// single-user database.
type SQLiteChurnRepository struct {
	db *sql.DB
}

// NewSQLiteChurnRepository creates a new SQLite churn repository.
func NewSQLiteChurnRepository(db *sql.DB) *SQLiteChurnRepository {
	return &SQLiteChurnRepository{db: db}
}

// GetLedger returns the ledger entry for a user/day, zero when absent.
func (r *SQLiteChurnRepository) GetLedger(ctx context.Context, ownerID uuid.UUID, day string) (domain.ChurnLedgerEntry, error) {
	entry := domain.ChurnLedgerEntry{OwnerID: ownerID, Day: day}
	query := `
		SELECT minutes_moved, moves_count, cap_snapshot
		FROM churn_ledger
		WHERE owner_id = ? AND day = ?
	`
	err := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryRowContext(ctx, query, ownerID.String(), day).
		Scan(&entry.MinutesMoved, &entry.MovesCount, &entry.CapSnapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return entry, nil
	}
	if err != nil {
		return domain.ChurnLedgerEntry{}, err
	}
	return entry, nil
}

// IncrementLedger atomically adds to the user/day row, inserting it if
// absent.
func (r *SQLiteChurnRepository) IncrementLedger(ctx context.Context, ownerID uuid.UUID, day string, minutes, moves, capSnapshot int) error {
	query := `
		INSERT INTO churn_ledger (owner_id, day, minutes_moved, moves_count, cap_snapshot, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner_id, day) DO UPDATE SET
			minutes_moved = churn_ledger.minutes_moved + excluded.minutes_moved,
			moves_count = churn_ledger.moves_count + excluded.moves_count,
			cap_snapshot = excluded.cap_snapshot,
			updated_at = excluded.updated_at
	`
	_, err := sharedPersistence.SQLiteExecutor(ctx, r.db).ExecContext(ctx, query,
		ownerID.String(), day, minutes, moves, capSnapshot,
		time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// GetSettings returns the per-user cap override, or nil when none is set.
func (r *SQLiteChurnRepository) GetSettings(ctx context.Context, ownerID uuid.UUID) (*domain.ChurnSettings, error) {
	query := `SELECT daily_cap_minutes FROM churn_settings WHERE owner_id = ?`

	var cap int
	err := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryRowContext(ctx, query, ownerID.String()).Scan(&cap)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain.ChurnSettings{OwnerID: ownerID, DailyCapMinutes: cap}, nil
}
