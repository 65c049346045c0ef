package domain

import (
	"fmt"
	"sort"
	"time"

	profile "github.com/felixgeelhaar/studyflow/internal/profile/domain"
	sharedDomain "github.com/felixgeelhaar/studyflow/internal/shared/domain"
	"github.com/google/uuid"
)

// Status is the lifecycle state of a proposal. Transitions are monotonic:
// proposed -> applied | partially_applied | cancelled | expired, and
// applied | partially_applied -> undone.
type Status string

const (
	StatusProposed         Status = "proposed"
	StatusApplied          Status = "applied"
	StatusPartiallyApplied Status = "partially_applied"
	StatusCancelled        Status = "cancelled"
	StatusExpired          Status = "expired"
	StatusUndone           Status = "undone"
)

// ApplyMode controls how apply treats stale moves.
type ApplyMode string

const (
	// ApplyModeRequireAll aborts the whole apply on any stale move.
	ApplyModeRequireAll ApplyMode = "require_all"
	// ApplyModeBestEffort skips stale moves and applies the rest.
	ApplyModeBestEffort ApplyMode = "best_effort"
)

// Validate rejects unknown apply modes.
func (m ApplyMode) Validate() error {
	switch m {
	case ApplyModeRequireAll, ApplyModeBestEffort:
		return nil
	default:
		return &ValidationError{Field: "apply_mode", Reason: fmt.Sprintf("unknown apply mode %q", string(m))}
	}
}

// InvalidTransitionError reports a rejected status transition.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid proposal transition %s -> %s", e.From, e.To)
}

// Proposal is a reviewable batch of calendar moves with a lifecycle.
type Proposal struct {
	sharedDomain.BaseAggregateRoot
	ownerID        uuid.UUID
	trigger        Trigger
	causeContext   string
	energyLevel    profile.EnergyLevel
	moves          []*Move
	churnCostTotal int
	status         Status
	applyMode      ApplyMode
	appliedAt      *time.Time
	undoneAt       *time.Time
	idempotencyKey string
}

// NewProposal creates a proposal in the proposed state.
func NewProposal(
	ownerID uuid.UUID,
	trigger Trigger,
	causeContext string,
	energyLevel profile.EnergyLevel,
	applyMode ApplyMode,
	idempotencyKey string,
) (*Proposal, error) {
	if err := trigger.Validate(); err != nil {
		return nil, err
	}
	if err := energyLevel.Validate(); err != nil {
		return nil, &ValidationError{Field: "energy_level", Reason: err.Error()}
	}
	if err := applyMode.Validate(); err != nil {
		return nil, err
	}

	p := &Proposal{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(),
		ownerID:           ownerID,
		trigger:           trigger,
		causeContext:      causeContext,
		energyLevel:       energyLevel,
		status:            StatusProposed,
		applyMode:         applyMode,
		idempotencyKey:    idempotencyKey,
	}
	return p, nil
}

func (p *Proposal) OwnerID() uuid.UUID               { return p.ownerID }
func (p *Proposal) Trigger() Trigger                 { return p.trigger }
func (p *Proposal) CauseContext() string             { return p.causeContext }
func (p *Proposal) EnergyLevel() profile.EnergyLevel { return p.energyLevel }
func (p *Proposal) Moves() []*Move                   { return p.moves }
func (p *Proposal) MovesCount() int                  { return len(p.moves) }
func (p *Proposal) ChurnCostTotal() int              { return p.churnCostTotal }
func (p *Proposal) Status() Status                   { return p.status }
func (p *Proposal) ApplyMode() ApplyMode             { return p.applyMode }
func (p *Proposal) AppliedAt() *time.Time            { return p.appliedAt }
func (p *Proposal) UndoneAt() *time.Time             { return p.undoneAt }
func (p *Proposal) IdempotencyKey() string           { return p.idempotencyKey }

// FindMove returns a move by ID.
func (p *Proposal) FindMove(moveID uuid.UUID) (*Move, error) {
	for _, m := range p.moves {
		if m.ID() == moveID {
			return m, nil
		}
	}
	return nil, fmt.Errorf("move %s: not in proposal %s", moveID, p.ID())
}

// AddMove appends a move while the proposal is still proposed.
func (p *Proposal) AddMove(spec MoveSpec) (*Move, error) {
	if p.status != StatusProposed {
		return nil, &InvalidTransitionError{From: p.status, To: p.status}
	}
	move, err := NewMove(p.ID(), spec)
	if err != nil {
		return nil, err
	}
	p.moves = append(p.moves, move)
	p.churnCostTotal += move.ChurnCost()
	p.sortMoves()
	p.Touch()
	return move, nil
}

// TrimLowestPriority drops moves from the lowest-priority end until the
// proposal's churn cost fits the remaining budget. Returns the dropped
// moves.
func (p *Proposal) TrimLowestPriority(budget int) []*Move {
	var dropped []*Move
	for p.churnCostTotal > budget && len(p.moves) > 0 {
		last := p.moves[len(p.moves)-1]
		p.moves = p.moves[:len(p.moves)-1]
		p.churnCostTotal -= last.ChurnCost()
		dropped = append(dropped, last)
	}
	if len(dropped) > 0 {
		p.Touch()
	}
	return dropped
}

// MarkApplied transitions proposed -> applied.
func (p *Proposal) MarkApplied(now time.Time) error {
	if p.status != StatusProposed {
		return &InvalidTransitionError{From: p.status, To: StatusApplied}
	}
	p.status = StatusApplied
	t := now.UTC()
	p.appliedAt = &t
	p.Touch()
	p.AddDomainEvent(NewProposalApplied(p, len(p.moves), 0))
	return nil
}

// MarkPartiallyApplied transitions proposed -> partially_applied.
func (p *Proposal) MarkPartiallyApplied(now time.Time, appliedMoves, skippedMoves int) error {
	if p.status != StatusProposed {
		return &InvalidTransitionError{From: p.status, To: StatusPartiallyApplied}
	}
	p.status = StatusPartiallyApplied
	t := now.UTC()
	p.appliedAt = &t
	p.Touch()
	p.AddDomainEvent(NewProposalApplied(p, appliedMoves, skippedMoves))
	return nil
}

// MarkCancelled transitions proposed -> cancelled.
func (p *Proposal) MarkCancelled() error {
	if p.status != StatusProposed {
		return &InvalidTransitionError{From: p.status, To: StatusCancelled}
	}
	p.status = StatusCancelled
	p.Touch()
	p.AddDomainEvent(NewProposalCancelled(p))
	return nil
}

// MarkExpired transitions proposed -> expired after the retention window.
func (p *Proposal) MarkExpired() error {
	if p.status != StatusProposed {
		return &InvalidTransitionError{From: p.status, To: StatusExpired}
	}
	p.status = StatusExpired
	p.Touch()
	p.AddDomainEvent(NewProposalExpired(p))
	return nil
}

// MarkUndone transitions applied | partially_applied -> undone.
func (p *Proposal) MarkUndone(now time.Time, unrestored int) error {
	if p.status != StatusApplied && p.status != StatusPartiallyApplied {
		return &InvalidTransitionError{From: p.status, To: StatusUndone}
	}
	p.status = StatusUndone
	t := now.UTC()
	p.undoneAt = &t
	p.Touch()
	p.AddDomainEvent(NewProposalUndone(p, unrestored))
	return nil
}

// IsWithinUndoWindow reports whether undo is still allowed at now.
func (p *Proposal) IsWithinUndoWindow(now time.Time, window time.Duration) bool {
	if p.appliedAt == nil {
		return false
	}
	return now.Sub(*p.appliedAt) <= window
}

// sortMoves orders moves by descending final priority; the stable sort
// keeps insertion order for ties.
func (p *Proposal) sortMoves() {
	sort.SliceStable(p.moves, func(i, j int) bool {
		return p.moves[i].FinalPriority() > p.moves[j].FinalPriority()
	})
}

// RehydrateProposal recreates a proposal from persisted state.
func RehydrateProposal(
	id uuid.UUID,
	ownerID uuid.UUID,
	trigger Trigger,
	causeContext string,
	energyLevel profile.EnergyLevel,
	moves []*Move,
	churnCostTotal int,
	status Status,
	applyMode ApplyMode,
	appliedAt, undoneAt *time.Time,
	idempotencyKey string,
	createdAt, updatedAt time.Time,
) *Proposal {
	entity := sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt)
	p := &Proposal{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(entity, 0),
		ownerID:           ownerID,
		trigger:           trigger,
		causeContext:      causeContext,
		energyLevel:       energyLevel,
		moves:             moves,
		churnCostTotal:    churnCostTotal,
		status:            status,
		applyMode:         applyMode,
		appliedAt:         appliedAt,
		undoneAt:          undoneAt,
		idempotencyKey:    idempotencyKey,
	}
	p.sortMoves()
	return p
}
