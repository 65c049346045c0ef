package domain

import (
	"time"

	calendar "github.com/felixgeelhaar/studyflow/internal/calendar/domain"
	"github.com/google/uuid"
)

// BlockSnapshot captures one block's pre-apply state. For blocks created
// by the apply, WasCreated is set and undo deletes them. For blocks
// deleted by the apply, WasDeleted is set and undo re-creates them from
// the prior fields. For moved or resized blocks, PostApplyVersion is the
// version written by the apply; undo restores only when the live version
// still matches, so an interleaved external edit is reported rather than
// silently overwritten.
type BlockSnapshot struct {
	BlockID          uuid.UUID
	OwnerID          uuid.UUID
	BlockType        calendar.BlockType
	Title            string
	PriorStart       time.Time
	PriorEnd         time.Time
	PriorMetadata    calendar.Metadata
	WorkItemID       uuid.UUID
	WasCreated       bool
	WasDeleted       bool
	PostApplyVersion int
}

// RollbackSnapshot holds the pre-mutation state of every block a proposal
// touched. Exactly one exists per applied proposal, written before the
// first mutation.
type RollbackSnapshot struct {
	ProposalID uuid.UUID
	Blocks     []BlockSnapshot
	CreatedAt  time.Time
}

// NewRollbackSnapshot creates a snapshot for a proposal.
func NewRollbackSnapshot(proposalID uuid.UUID, blocks []BlockSnapshot) *RollbackSnapshot {
	return &RollbackSnapshot{
		ProposalID: proposalID,
		Blocks:     blocks,
		CreatedAt:  time.Now().UTC(),
	}
}
