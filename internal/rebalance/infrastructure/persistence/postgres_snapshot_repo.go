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

// PostgresSnapshotRepository implements domain.SnapshotRepository using
// PostgreSQL. Block states are stored as a JSONB document; the snapshot
// is written once at apply time and read once at undo time, so there is
// nothing to query inside it.
type PostgresSnapshotRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresSnapshotRepository creates a new PostgreSQL snapshot repository.
func NewPostgresSnapshotRepository(pool *pgxpool.Pool) *PostgresSnapshotRepository {
	return &PostgresSnapshotRepository{pool: pool}
}

// Save stores a snapshot. The proposal ID is the primary key, which
// enforces the one-snapshot-per-proposal invariant in the schema.
func (r *PostgresSnapshotRepository) Save(ctx context.Context, snapshot *domain.RollbackSnapshot) error {
	blocks, err := json.Marshal(snapshot.Blocks)
	if err != nil {
		return fmt.Errorf("marshal snapshot blocks: %w", err)
	}
	query := `
		INSERT INTO rebalance_snapshots (proposal_id, blocks, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (proposal_id) DO NOTHING
	`
	_, err = sharedPersistence.Executor(ctx, r.pool).Exec(ctx, query,
		snapshot.ProposalID, blocks, snapshot.CreatedAt)
	return err
}

// FindByProposal returns the snapshot, or ErrSnapshotNotFound.
func (r *PostgresSnapshotRepository) FindByProposal(ctx context.Context, proposalID uuid.UUID) (*domain.RollbackSnapshot, error) {
	query := `SELECT proposal_id, blocks, created_at FROM rebalance_snapshots WHERE proposal_id = $1`

	var (
		id        uuid.UUID
		blocksRaw []byte
		createdAt time.Time
	)
	err := sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx, query, proposalID).Scan(&id, &blocksRaw, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSnapshotNotFound
		}
		return nil, err
	}

	var blocks []domain.BlockSnapshot
	if err := json.Unmarshal(blocksRaw, &blocks); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot blocks: %w", err)
	}
	return &domain.RollbackSnapshot{ProposalID: id, Blocks: blocks, CreatedAt: createdAt}, nil
}
