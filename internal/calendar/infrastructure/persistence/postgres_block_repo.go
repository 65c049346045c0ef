package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/studyflow/internal/calendar/domain"
	sharedPersistence "github.com/felixgeelhaar/studyflow/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBlockRepository implements domain.BlockRepository using
// PostgreSQL. Every mutation carries the optimistic version guard in its
// WHERE clause, so a stale write affects zero rows instead of clobbering
// a concurrent edit.
type PostgresBlockRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresBlockRepository creates a new PostgreSQL block repository.
func NewPostgresBlockRepository(pool *pgxpool.Pool) *PostgresBlockRepository {
	return &PostgresBlockRepository{pool: pool}
}

// Create inserts a new block.
func (r *PostgresBlockRepository) Create(ctx context.Context, block *domain.Block) error {
	metadata, err := json.Marshal(block.Metadata())
	if err != nil {
		return fmt.Errorf("marshal block metadata: %w", err)
	}

	query := `
		INSERT INTO calendar_blocks (
			id, owner_id, block_type, title, start_time, end_time,
			movable, work_item_id, metadata, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = sharedPersistence.Executor(ctx, r.pool).Exec(ctx, query,
		block.ID(),
		block.OwnerID(),
		string(block.BlockType()),
		block.Title(),
		block.StartTime(),
		block.EndTime(),
		block.IsMovable(),
		nullableUUID(block.WorkItemID()),
		metadata,
		block.Version(),
		block.CreatedAt(),
		block.UpdatedAt(),
	)
	return err
}

// FindByID returns a block, or ErrBlockNotFound.
func (r *PostgresBlockRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Block, error) {
	query := `
		SELECT id, owner_id, block_type, title, start_time, end_time,
		       movable, work_item_id, metadata, version, created_at, updated_at
		FROM calendar_blocks
		WHERE id = $1
	`
	block, err := scanBlock(sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBlockNotFound
		}
		return nil, err
	}
	return block, nil
}

// ListByOwnerInRange returns blocks overlapping [from, to) ordered by
// start time.
func (r *PostgresBlockRepository) ListByOwnerInRange(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]*domain.Block, error) {
	query := `
		SELECT id, owner_id, block_type, title, start_time, end_time,
		       movable, work_item_id, metadata, version, created_at, updated_at
		FROM calendar_blocks
		WHERE owner_id = $1 AND end_time > $2 AND start_time < $3
		ORDER BY start_time
	`
	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx, query, ownerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocks []*domain.Block
	for rows.Next() {
		block, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}
	return blocks, rows.Err()
}

// UpdateTimes moves or resizes a block guarded by the version token.
func (r *PostgresBlockRepository) UpdateTimes(ctx context.Context, id uuid.UUID, newStart, newEnd time.Time, expectedVersion int) error {
	query := `
		UPDATE calendar_blocks
		SET start_time = $2, end_time = $3, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $4 AND movable
	`
	tag, err := sharedPersistence.Executor(ctx, r.pool).Exec(ctx, query, id, newStart, newEnd, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.explainGuardFailure(ctx, id, expectedVersion)
	}
	return nil
}

// Delete removes a movable block guarded by the version token.
func (r *PostgresBlockRepository) Delete(ctx context.Context, id uuid.UUID, expectedVersion int) error {
	query := `DELETE FROM calendar_blocks WHERE id = $1 AND version = $2 AND movable`
	tag, err := sharedPersistence.Executor(ctx, r.pool).Exec(ctx, query, id, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.explainGuardFailure(ctx, id, expectedVersion)
	}
	return nil
}

// Restore writes back snapshotted state, guarded by the post-apply
// version so an interleaved edit is surfaced instead of overwritten.
func (r *PostgresBlockRepository) Restore(ctx context.Context, id uuid.UUID, start, end time.Time, metadata domain.Metadata, expectedVersion int) error {
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal block metadata: %w", err)
	}
	query := `
		UPDATE calendar_blocks
		SET start_time = $2, end_time = $3, metadata = $4, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $5
	`
	tag, err := sharedPersistence.Executor(ctx, r.pool).Exec(ctx, query, id, start, end, encoded, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.explainGuardFailure(ctx, id, expectedVersion)
	}
	return nil
}

// explainGuardFailure distinguishes the three reasons a guarded write can
// touch zero rows.
func (r *PostgresBlockRepository) explainGuardFailure(ctx context.Context, id uuid.UUID, expectedVersion int) error {
	var version int
	var movable bool
	query := `SELECT version, movable FROM calendar_blocks WHERE id = $1`
	err := sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx, query, id).Scan(&version, &movable)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrBlockNotFound
	}
	if err != nil {
		return err
	}
	if !movable {
		return domain.ErrBlockImmovable
	}
	if version != expectedVersion {
		return domain.ErrVersionMismatch
	}
	return domain.ErrVersionMismatch
}

func scanBlock(row pgx.Row) (*domain.Block, error) {
	var (
		id, ownerID          uuid.UUID
		blockType, title     string
		startTime, endTime   time.Time
		movable              bool
		workItemID           *uuid.UUID
		metadataRaw          []byte
		version              int
		createdAt, updatedAt time.Time
	)
	err := row.Scan(&id, &ownerID, &blockType, &title, &startTime, &endTime,
		&movable, &workItemID, &metadataRaw, &version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	var metadata domain.Metadata
	if len(metadataRaw) > 0 {
		if err := json.Unmarshal(metadataRaw, &metadata); err != nil {
			return nil, fmt.Errorf("unmarshal block metadata: %w", err)
		}
	}
	itemID := uuid.Nil
	if workItemID != nil {
		itemID = *workItemID
	}

	return domain.RehydrateBlock(
		id, ownerID, domain.BlockType(blockType), title,
		startTime, endTime, movable, itemID, metadata, version,
		createdAt, updatedAt,
	), nil
}

func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
