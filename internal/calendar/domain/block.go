package domain

import (
	"errors"
	"time"

	sharedDomain "github.com/felixgeelhaar/studyflow/internal/shared/domain"
	"github.com/google/uuid"
)

var (
	ErrInvalidTimeRange = errors.New("end time must be after start time")
	ErrBlockTooShort    = errors.New("calendar block must be at least 5 minutes")
	ErrBlockImmovable   = errors.New("calendar block is immovable")
)

// MinBlockDuration is the minimum allowed block duration.
const MinBlockDuration = 5 * time.Minute

// BlockType classifies a calendar block. Class, office-hours and due-date
// blocks are fixed commitments; focus, study and chill blocks are movable.
type BlockType string

const (
	BlockTypeClass       BlockType = "class"
	BlockTypeOfficeHours BlockType = "office_hours"
	BlockTypeDueDate     BlockType = "due_date"
	BlockTypeFocus       BlockType = "focus"
	BlockTypeStudy       BlockType = "study"
	BlockTypeChill       BlockType = "chill"
)

// IsMovableType reports whether blocks of this type may be rescheduled.
func IsMovableType(t BlockType) bool {
	switch t {
	case BlockTypeFocus, BlockTypeStudy, BlockTypeChill:
		return true
	default:
		return false
	}
}

// IsOverlapExempt reports whether overlaps with blocks of this type are
// tolerated silently. Office hours are drop-in and may be double-booked.
func IsOverlapExempt(t BlockType) bool {
	return t == BlockTypeOfficeHours
}

// Metadata is the closed set of typed attributes a block may carry, plus
// one explicit open extension map for collaborator-owned keys.
type Metadata struct {
	Phase      string            `json:"phase,omitempty"`
	Difficulty string            `json:"difficulty,omitempty"`
	Source     string            `json:"source,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Clone returns a deep copy of the metadata.
func (m Metadata) Clone() Metadata {
	c := m
	if m.Extra != nil {
		c.Extra = make(map[string]string, len(m.Extra))
		for k, v := range m.Extra {
			c.Extra[k] = v
		}
	}
	return c
}

// Block is a calendar entry. Fixed blocks (classes, due-date markers) are
// never mutated by the rebalancing engine; the movable flag is enforced
// here and again by the storage layer.
type Block struct {
	sharedDomain.BaseEntity
	ownerID    uuid.UUID
	blockType  BlockType
	title      string
	startTime  time.Time
	endTime    time.Time
	movable    bool
	workItemID uuid.UUID // uuid.Nil when the block is not linked to work
	metadata   Metadata
	version    int
}

// NewBlock creates a calendar block. Movability defaults from the type.
func NewBlock(
	ownerID uuid.UUID,
	blockType BlockType,
	title string,
	startTime, endTime time.Time,
	workItemID uuid.UUID,
	metadata Metadata,
) (*Block, error) {
	if !endTime.After(startTime) {
		return nil, ErrInvalidTimeRange
	}
	if endTime.Sub(startTime) < MinBlockDuration {
		return nil, ErrBlockTooShort
	}

	return &Block{
		BaseEntity: sharedDomain.NewBaseEntity(),
		ownerID:    ownerID,
		blockType:  blockType,
		title:      title,
		startTime:  startTime,
		endTime:    endTime,
		movable:    IsMovableType(blockType),
		workItemID: workItemID,
		metadata:   metadata,
		version:    1,
	}, nil
}

func (b *Block) OwnerID() uuid.UUID    { return b.ownerID }
func (b *Block) BlockType() BlockType  { return b.blockType }
func (b *Block) Title() string         { return b.title }
func (b *Block) StartTime() time.Time  { return b.startTime }
func (b *Block) EndTime() time.Time    { return b.endTime }
func (b *Block) IsMovable() bool       { return b.movable }
func (b *Block) WorkItemID() uuid.UUID { return b.workItemID }
func (b *Block) Metadata() Metadata    { return b.metadata }

// Version is the optimistic concurrency token for this block. It advances
// on every persisted mutation.
func (b *Block) Version() int { return b.version }

// Duration returns the block duration.
func (b *Block) Duration() time.Duration {
	return b.endTime.Sub(b.startTime)
}

// OverlapsWith checks interval intersection with another block.
func (b *Block) OverlapsWith(other *Block) bool {
	return b.startTime.Before(other.endTime) && b.endTime.After(other.startTime)
}

// OverlapsRange checks interval intersection with an arbitrary range.
func (b *Block) OverlapsRange(start, end time.Time) bool {
	return b.startTime.Before(end) && b.endTime.After(start)
}

// Reschedule moves a movable block to a new time.
func (b *Block) Reschedule(newStart, newEnd time.Time) error {
	if !b.movable {
		return ErrBlockImmovable
	}
	if !newEnd.After(newStart) {
		return ErrInvalidTimeRange
	}
	if newEnd.Sub(newStart) < MinBlockDuration {
		return ErrBlockTooShort
	}
	b.startTime = newStart
	b.endTime = newEnd
	b.version++
	b.Touch()
	return nil
}

// SetMetadata replaces the block metadata.
func (b *Block) SetMetadata(md Metadata) {
	b.metadata = md
	b.version++
	b.Touch()
}

// RehydrateBlock recreates a block from persisted state.
func RehydrateBlock(
	id uuid.UUID,
	ownerID uuid.UUID,
	blockType BlockType,
	title string,
	startTime, endTime time.Time,
	movable bool,
	workItemID uuid.UUID,
	metadata Metadata,
	version int,
	createdAt, updatedAt time.Time,
) *Block {
	return &Block{
		BaseEntity: sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt),
		ownerID:    ownerID,
		blockType:  blockType,
		title:      title,
		startTime:  startTime,
		endTime:    endTime,
		movable:    movable,
		workItemID: workItemID,
		metadata:   metadata,
		version:    version,
	}
}
