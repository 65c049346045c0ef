package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AttemptOperation is the executor operation an attempt belongs to.
type AttemptOperation string

const (
	OperationConfirm AttemptOperation = "confirm"
	OperationUndo    AttemptOperation = "undo"
)

// AttemptStatus is the recorded outcome of an apply or undo attempt.
type AttemptStatus string

const (
	AttemptSuccess        AttemptStatus = "success"
	AttemptPartialSuccess AttemptStatus = "partial_success"
	AttemptStaleConflict  AttemptStatus = "stale_conflict"
	AttemptFailed         AttemptStatus = "failed"
)

// ApplyAttempt records one apply or undo execution keyed by its
// idempotency key. A repeated key returns the stored result unchanged and
// never re-executes, which is what makes apply and undo safe to retry.
type ApplyAttempt struct {
	ID             uuid.UUID
	ProposalID     uuid.UUID
	AttemptNumber  int
	Operation      AttemptOperation
	IdempotencyKey string
	Status         AttemptStatus
	Conflicts      []MoveConflict
	Result         json.RawMessage // serialized ApplyResult / UndoResult for replay
	AttemptedAt    time.Time
}

// NewApplyAttempt creates an attempt record ready for persistence.
func NewApplyAttempt(
	proposalID uuid.UUID,
	attemptNumber int,
	operation AttemptOperation,
	idempotencyKey string,
	status AttemptStatus,
	conflicts []MoveConflict,
	result json.RawMessage,
) ApplyAttempt {
	return ApplyAttempt{
		ID:             uuid.New(),
		ProposalID:     proposalID,
		AttemptNumber:  attemptNumber,
		Operation:      operation,
		IdempotencyKey: idempotencyKey,
		Status:         status,
		Conflicts:      conflicts,
		Result:         result,
		AttemptedAt:    time.Now().UTC(),
	}
}
