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

// SQLiteSnapshotRepository implements domain.SnapshotRepository for the
// local single-user database.
type SQLiteSnapshotRepository struct {
	db *sql.DB
}

// NewSQLiteSnapshotRepository creates a new SQLite snapshot repository.
func NewSQLiteSnapshotRepository(db *sql.DB) *SQLiteSnapshotRepository {
	return &SQLiteSnapshotRepository{db: db}
}

// Save stores a snapshot, keyed by proposal ID.
func (r *SQLiteSnapshotRepository) Save(ctx context.Context, snapshot *domain.RollbackSnapshot) error {
	blocks, err := json.Marshal(snapshot.Blocks)
	if err != nil {
		return fmt.Errorf("marshal snapshot blocks: %w", err)
	}
	query := `
		INSERT INTO rebalance_snapshots (proposal_id, blocks, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (proposal_id) DO NOTHING
	`
	_, err = sharedPersistence.SQLiteExecutor(ctx, r.db).ExecContext(ctx, query,
		snapshot.ProposalID.String(),
		string(blocks),
		snapshot.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// FindByProposal returns the snapshot, or ErrSnapshotNotFound.
func (r *SQLiteSnapshotRepository) FindByProposal(ctx context.Context, proposalID uuid.UUID) (*domain.RollbackSnapshot, error) {
	query := `SELECT proposal_id, blocks, created_at FROM rebalance_snapshots WHERE proposal_id = ?`

	var idStr, blocksRaw, createdStr string
	err := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryRowContext(ctx, query, proposalID.String()).
		Scan(&idStr, &blocksRaw, &createdStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSnapshotNotFound
		}
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse proposal id: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, createdStr)
	if err != nil {
		return nil, fmt.Errorf("parse created at: %w", err)
	}
	var blocks []domain.BlockSnapshot
	if err := json.Unmarshal([]byte(blocksRaw), &blocks); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot blocks: %w", err)
	}
	return &domain.RollbackSnapshot{ProposalID: id, Blocks: blocks, CreatedAt: createdAt}, nil
}
