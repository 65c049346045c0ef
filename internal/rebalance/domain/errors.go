package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrProposalNotFound  = errors.New("proposal not found")
	ErrAttemptNotFound   = errors.New("apply attempt not found")
	ErrSnapshotNotFound  = errors.New("rollback snapshot not found")
	ErrUndoWindowExpired = errors.New("undo window has expired")
	ErrChurnCapExceeded  = errors.New("daily churn cap exceeded")
)

// ValidationError reports malformed request input. Nothing is persisted
// when one of these is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// MoveConflict describes one move whose target block changed since the
// proposal was generated.
type MoveConflict struct {
	MoveID  uuid.UUID `json:"move_id"`
	BlockID uuid.UUID `json:"block_id"`
	Reason  string    `json:"reason"`
}

// StaleConflictError aborts a strict-mode apply: at least one target block
// no longer matches its baseline version. No mutation happened.
type StaleConflictError struct {
	ProposalID uuid.UUID
	Conflicts  []MoveConflict
}

func (e *StaleConflictError) Error() string {
	return fmt.Sprintf("proposal %s has %d stale moves", e.ProposalID, len(e.Conflicts))
}
