package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBlockNotFound   = errors.New("calendar block not found")
	ErrVersionMismatch = errors.New("calendar block version mismatch")
)

// BlockRepository persists calendar blocks. Implementations must reject
// mutation of immovable blocks and enforce the version token on updates.
type BlockRepository interface {
	// Create inserts a new block.
	Create(ctx context.Context, block *Block) error

	// FindByID returns a block, or ErrBlockNotFound.
	FindByID(ctx context.Context, id uuid.UUID) (*Block, error)

	// ListByOwnerInRange returns all blocks for an owner overlapping
	// [from, to), ordered by start time.
	ListByOwnerInRange(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]*Block, error)

	// UpdateTimes moves or resizes a block guarded by expectedVersion.
	// Returns ErrVersionMismatch on a stale token, ErrBlockImmovable for
	// fixed blocks, ErrBlockNotFound when the block is gone.
	UpdateTimes(ctx context.Context, id uuid.UUID, newStart, newEnd time.Time, expectedVersion int) error

	// Delete removes a movable block guarded by expectedVersion.
	Delete(ctx context.Context, id uuid.UUID, expectedVersion int) error

	// Restore writes back a previously captured state regardless of the
	// current version, used only by proposal undo. Returns
	// ErrBlockNotFound when the block no longer exists and
	// ErrVersionMismatch when the block changed after apply.
	Restore(ctx context.Context, id uuid.UUID, start, end time.Time, metadata Metadata, expectedVersion int) error
}
