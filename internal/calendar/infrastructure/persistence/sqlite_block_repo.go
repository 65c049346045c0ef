package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/studyflow/internal/calendar/domain"
	sharedPersistence "github.com/felixgeelhaar/studyflow/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
)

// SQLiteBlockRepository implements domain.BlockRepository for the local
// single-user database. Timestamps are stored as RFC3339Nano strings.
type SQLiteBlockRepository struct {
	db *sql.DB
}

// NewSQLiteBlockRepository creates a new SQLite block repository.
func NewSQLiteBlockRepository(db *sql.DB) *SQLiteBlockRepository {
	return &SQLiteBlockRepository{db: db}
}

// Create inserts a new block.
func (r *SQLiteBlockRepository) Create(ctx context.Context, block *domain.Block) error {
	metadata, err := json.Marshal(block.Metadata())
	if err != nil {
		return fmt.Errorf("marshal block metadata: %w", err)
	}

	query := `
		INSERT INTO calendar_blocks (
			id, owner_id, block_type, title, start_time, end_time,
			movable, work_item_id, metadata, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	workItemID := ""
	if block.WorkItemID() != uuid.Nil {
		workItemID = block.WorkItemID().String()
	}
	_, err = sharedPersistence.SQLiteExecutor(ctx, r.db).ExecContext(ctx, query,
		block.ID().String(),
		block.OwnerID().String(),
		string(block.BlockType()),
		block.Title(),
		block.StartTime().UTC().Format(time.RFC3339Nano),
		block.EndTime().UTC().Format(time.RFC3339Nano),
		block.IsMovable(),
		workItemID,
		string(metadata),
		block.Version(),
		block.CreatedAt().UTC().Format(time.RFC3339Nano),
		block.UpdatedAt().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// FindByID returns a block, or ErrBlockNotFound.
func (r *SQLiteBlockRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Block, error) {
	query := `
		SELECT id, owner_id, block_type, title, start_time, end_time,
		       movable, work_item_id, metadata, version, created_at, updated_at
		FROM calendar_blocks
		WHERE id = ?
	`
	row := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryRowContext(ctx, query, id.String())
	block, err := scanSQLiteBlock(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBlockNotFound
		}
		return nil, err
	}
	return block, nil
}

// ListByOwnerInRange returns blocks overlapping [from, to) ordered by
// start time.
func (r *SQLiteBlockRepository) ListByOwnerInRange(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]*domain.Block, error) {
	query := `
		SELECT id, owner_id, block_type, title, start_time, end_time,
		       movable, work_item_id, metadata, version, created_at, updated_at
		FROM calendar_blocks
		WHERE owner_id = ? AND end_time > ? AND start_time < ?
		ORDER BY start_time
	`
	rows, err := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryContext(ctx, query,
		ownerID.String(),
		from.UTC().Format(time.RFC3339Nano),
		to.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocks []*domain.Block
	for rows.Next() {
		block, err := scanSQLiteBlock(rows.Scan)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}
	return blocks, rows.Err()
}

// UpdateTimes moves or resizes a block guarded by the version token.
func (r *SQLiteBlockRepository) UpdateTimes(ctx context.Context, id uuid.UUID, newStart, newEnd time.Time, expectedVersion int) error {
	query := `
		UPDATE calendar_blocks
		SET start_time = ?, end_time = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ? AND movable
	`
	result, err := sharedPersistence.SQLiteExecutor(ctx, r.db).ExecContext(ctx, query,
		newStart.UTC().Format(time.RFC3339Nano),
		newEnd.UTC().Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano),
		id.String(),
		expectedVersion,
	)
	if err != nil {
		return err
	}
	return r.checkGuard(ctx, result, id, expectedVersion)
}

// Delete removes a movable block guarded by the version token.
func (r *SQLiteBlockRepository) Delete(ctx context.Context, id uuid.UUID, expectedVersion int) error {
	query := `DELETE FROM calendar_blocks WHERE id = ? AND version = ? AND movable`
	result, err := sharedPersistence.SQLiteExecutor(ctx, r.db).ExecContext(ctx, query, id.String(), expectedVersion)
	if err != nil {
		return err
	}
	return r.checkGuard(ctx, result, id, expectedVersion)
}

// Restore writes back snapshotted state guarded by the post-apply version.
func (r *SQLiteBlockRepository) Restore(ctx context.Context, id uuid.UUID, start, end time.Time, metadata domain.Metadata, expectedVersion int) error {
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal block metadata: %w", err)
	}
	query := `
		UPDATE calendar_blocks
		SET start_time = ?, end_time = ?, metadata = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`
	result, err := sharedPersistence.SQLiteExecutor(ctx, r.db).ExecContext(ctx, query,
		start.UTC().Format(time.RFC3339Nano),
		end.UTC().Format(time.RFC3339Nano),
		string(encoded),
		time.Now().UTC().Format(time.RFC3339Nano),
		id.String(),
		expectedVersion,
	)
	if err != nil {
		return err
	}
	return r.checkGuard(ctx, result, id, expectedVersion)
}

func (r *SQLiteBlockRepository) checkGuard(ctx context.Context, result sql.Result, id uuid.UUID, expectedVersion int) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var version int
	var movable bool
	query := `SELECT version, movable FROM calendar_blocks WHERE id = ?`
	err = sharedPersistence.SQLiteExecutor(ctx, r.db).QueryRowContext(ctx, query, id.String()).Scan(&version, &movable)
	if errors.Is(err, sql.ErrNoRows) {
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

func scanSQLiteBlock(scan func(dest ...any) error) (*domain.Block, error) {
	var (
		idStr, ownerStr, blockType, title string
		startStr, endStr                  string
		movable                           bool
		workItemStr, metadataRaw          string
		version                           int
		createdStr, updatedStr            string
	)
	err := scan(&idStr, &ownerStr, &blockType, &title, &startStr, &endStr,
		&movable, &workItemStr, &metadataRaw, &version, &createdStr, &updatedStr)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse block id: %w", err)
	}
	ownerID, err := uuid.Parse(ownerStr)
	if err != nil {
		return nil, fmt.Errorf("parse owner id: %w", err)
	}
	workItemID := uuid.Nil
	if workItemStr != "" {
		if workItemID, err = uuid.Parse(workItemStr); err != nil {
			return nil, fmt.Errorf("parse work item id: %w", err)
		}
	}
	startTime, err := time.Parse(time.RFC3339Nano, startStr)
	if err != nil {
		return nil, fmt.Errorf("parse start time: %w", err)
	}
	endTime, err := time.Parse(time.RFC3339Nano, endStr)
	if err != nil {
		return nil, fmt.Errorf("parse end time: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, createdStr)
	if err != nil {
		return nil, fmt.Errorf("parse created at: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, updatedStr)
	if err != nil {
		return nil, fmt.Errorf("parse updated at: %w", err)
	}

	var metadata domain.Metadata
	if metadataRaw != "" {
		if err := json.Unmarshal([]byte(metadataRaw), &metadata); err != nil {
			return nil, fmt.Errorf("unmarshal block metadata: %w", err)
		}
	}

	return domain.RehydrateBlock(
		id, ownerID, domain.BlockType(blockType), title,
		startTime, endTime, movable, workItemID, metadata, version,
		createdAt, updatedAt,
	), nil
}
