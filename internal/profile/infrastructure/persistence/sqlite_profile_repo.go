package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/felixgeelhaar/studyflow/internal/profile/domain"
	sharedPersistence "github.com/felixgeelhaar/studyflow/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
)

// SQLiteProfileRepository loads user profiles from SQLite.
type SQLiteProfileRepository struct {
	db *sql.DB
}

// NewSQLiteProfileRepository creates a new SQLite profile repository.
func NewSQLiteProfileRepository(db *sql.DB) *SQLiteProfileRepository {
	return &SQLiteProfileRepository{db: db}
}

// FindByUser returns the profile, or ErrProfileNotFound.
func (r *SQLiteProfileRepository) FindByUser(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	query := `SELECT user_id, timezone, created_at, updated_at FROM profiles WHERE user_id = ?`
	var profile domain.Profile
	var userStr, createdAt, updatedAt string
	err := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryRowContext(ctx, query, userID.String()).Scan(
		&userStr, &profile.Timezone, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	if profile.UserID, err = uuid.Parse(userStr); err != nil {
		return nil, err
	}
	if profile.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}
	if profile.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, err
	}
	return &profile, nil
}

// SQLiteEnergyStateRepository persists the per-user energy record in SQLite.
type SQLiteEnergyStateRepository struct {
	db *sql.DB
}

// NewSQLiteEnergyStateRepository creates a new SQLite energy state repository.
func NewSQLiteEnergyStateRepository(db *sql.DB) *SQLiteEnergyStateRepository {
	return &SQLiteEnergyStateRepository{db: db}
}

// Get returns the latest energy state, defaulting missing users.
func (r *SQLiteEnergyStateRepository) Get(ctx context.Context, userID uuid.UUID) (domain.EnergyState, error) {
	query := `SELECT user_id, level, prior_level, reported_at FROM energy_states WHERE user_id = ?`
	var state domain.EnergyState
	var userStr, reportedAt string
	var level, priorLevel int
	err := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryRowContext(ctx, query, userID.String()).Scan(
		&userStr, &level, &priorLevel, &reportedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.EnergyState{
			UserID:     userID,
			Level:      domain.DefaultEnergyLevel,
			PriorLevel: domain.DefaultEnergyLevel,
		}, nil
	}
	if err != nil {
		return domain.EnergyState{}, err
	}
	if state.UserID, err = uuid.Parse(userStr); err != nil {
		return domain.EnergyState{}, err
	}
	state.Level = domain.EnergyLevel(level)
	state.PriorLevel = domain.EnergyLevel(priorLevel)
	if state.ReportedAt, err = time.Parse(time.RFC3339Nano, reportedAt); err != nil {
		return domain.EnergyState{}, err
	}
	return state, nil
}

// Set stores a new reading, shifting the previous level into PriorLevel.
func (r *SQLiteEnergyStateRepository) Set(ctx context.Context, userID uuid.UUID, level domain.EnergyLevel, reportedAt time.Time) error {
	query := `
		INSERT INTO energy_states (user_id, level, prior_level, reported_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			prior_level = energy_states.level,
			level = excluded.level,
			reported_at = excluded.reported_at
	`
	_, err := sharedPersistence.SQLiteExecutor(ctx, r.db).ExecContext(
		ctx, query, userID.String(), int(level), int(level),
		reportedAt.UTC().Format(time.RFC3339Nano))
	return err
}
