package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ProposalRepository persists proposals and their moves.
type ProposalRepository interface {
	// Save persists a proposal and its moves (create or update).
	Save(ctx context.Context, proposal *Proposal) error

	// FindByID returns a proposal with its moves, or ErrProposalNotFound.
	FindByID(ctx context.Context, id uuid.UUID) (*Proposal, error)

	// ListProposedBefore returns proposed proposals created before the
	// cutoff, for the expiry sweep.
	ListProposedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Proposal, error)

	// CountByStatusSince returns counts per status for proposals created
	// in [since, now), feeding the health monitor.
	CountByStatusSince(ctx context.Context, since time.Time) (map[Status]int, error)

	// CountCreatedSince returns the number of proposals created since the
	// given time.
	CountCreatedSince(ctx context.Context, since time.Time) (int, error)

	// CountUndoneSince returns proposals undone in [since, now).
	CountUndoneSince(ctx context.Context, since time.Time) (int, error)
}

// SnapshotRepository persists rollback snapshots.
type SnapshotRepository interface {
	// Save stores a snapshot. At most one exists per proposal.
	Save(ctx context.Context, snapshot *RollbackSnapshot) error

	// FindByProposal returns the snapshot, or ErrSnapshotNotFound.
	FindByProposal(ctx context.Context, proposalID uuid.UUID) (*RollbackSnapshot, error)
}

// ChurnRepository persists the churn ledger and settings.
type ChurnRepository interface {
	// GetLedger returns the ledger entry for a user/day; a zero entry
	// with the given cap when none exists.
	GetLedger(ctx context.Context, ownerID uuid.UUID, day string) (ChurnLedgerEntry, error)

	// IncrementLedger atomically adds minutes and moves to the user/day
	// row, inserting it if absent. Must be an upsert so concurrent
	// applies never lose an update.
	IncrementLedger(ctx context.Context, ownerID uuid.UUID, day string, minutes, moves, capSnapshot int) error

	// GetSettings returns the per-user cap override, or nil when the
	// system default applies.
	GetSettings(ctx context.Context, ownerID uuid.UUID) (*ChurnSettings, error)
}

// AttemptRepository persists apply/undo attempts for idempotent replay.
type AttemptRepository interface {
	// FindByKey returns the attempt recorded under the idempotency key,
	// or ErrAttemptNotFound.
	FindByKey(ctx context.Context, idempotencyKey string) (ApplyAttempt, error)

	// Create stores a new attempt. The idempotency key is unique;
	// concurrent duplicates surface as a constraint violation.
	Create(ctx context.Context, attempt ApplyAttempt) error

	// CountForProposal returns how many attempts exist for a proposal
	// and operation, for attempt numbering.
	CountForProposal(ctx context.Context, proposalID uuid.UUID, operation AttemptOperation) (int, error)
}
