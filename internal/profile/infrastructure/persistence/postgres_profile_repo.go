package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/studyflow/internal/profile/domain"
	sharedPersistence "github.com/felixgeelhaar/studyflow/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresProfileRepository loads user profiles from PostgreSQL.
type PostgresProfileRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresProfileRepository creates a new PostgreSQL profile repository.
func NewPostgresProfileRepository(pool *pgxpool.Pool) *PostgresProfileRepository {
	return &PostgresProfileRepository{pool: pool}
}

// FindByUser returns the profile, or ErrProfileNotFound.
func (r *PostgresProfileRepository) FindByUser(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	query := `SELECT user_id, timezone, created_at, updated_at FROM profiles WHERE user_id = $1`
	var profile domain.Profile
	err := sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx, query, userID).Scan(
		&profile.UserID, &profile.Timezone, &profile.CreatedAt, &profile.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// PostgresEnergyStateRepository persists the per-user energy record in
// PostgreSQL.
type PostgresEnergyStateRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresEnergyStateRepository creates a new PostgreSQL energy state repository.
func NewPostgresEnergyStateRepository(pool *pgxpool.Pool) *PostgresEnergyStateRepository {
	return &PostgresEnergyStateRepository{pool: pool}
}

// Get returns the latest energy state, defaulting missing users.
func (r *PostgresEnergyStateRepository) Get(ctx context.Context, userID uuid.UUID) (domain.EnergyState, error) {
	query := `SELECT user_id, level, prior_level, reported_at FROM energy_states WHERE user_id = $1`
	var state domain.EnergyState
	err := sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx, query, userID).Scan(
		&state.UserID, &state.Level, &state.PriorLevel, &state.ReportedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.EnergyState{
			UserID:     userID,
			Level:      domain.DefaultEnergyLevel,
			PriorLevel: domain.DefaultEnergyLevel,
		}, nil
	}
	if err != nil {
		return domain.EnergyState{}, err
	}
	return state, nil
}

// Set stores a new reading, shifting the previous level into PriorLevel.
func (r *PostgresEnergyStateRepository) Set(ctx context.Context, userID uuid.UUID, level domain.EnergyLevel, reportedAt time.Time) error {
	query := `
		INSERT INTO energy_states (user_id, level, prior_level, reported_at)
		VALUES ($1, $2, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			prior_level = energy_states.level,
			level = EXCLUDED.level,
			reported_at = EXCLUDED.reported_at
	`
	_, err := sharedPersistence.Executor(ctx, r.pool).Exec(ctx, query, userID, int(level), reportedAt)
	return err
}
