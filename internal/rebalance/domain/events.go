package domain

import (
	"time"

	sharedDomain "github.com/felixgeelhaar/studyflow/internal/shared/domain"
	"github.com/google/uuid"
)

const (
	AggregateType = "Proposal"

	RoutingKeyProposalGenerated = "rebalance.proposal.generated"
	RoutingKeyProposalApplied   = "rebalance.proposal.applied"
	RoutingKeyProposalUndone    = "rebalance.proposal.undone"
	RoutingKeyProposalCancelled = "rebalance.proposal.cancelled"
	RoutingKeyProposalExpired   = "rebalance.proposal.expired"
	RoutingKeyProposalRejected  = "rebalance.proposal.rejected"
)

// ProposalGenerated is emitted when a proposal is persisted.
type ProposalGenerated struct {
	sharedDomain.BaseEvent
	OwnerID        uuid.UUID `json:"owner_id"`
	Trigger        string    `json:"trigger"`
	MovesCount     int       `json:"moves_count"`
	ChurnCostTotal int       `json:"churn_cost_total"`
	EnergyLevel    int       `json:"energy_level"`
}

// NewProposalGenerated creates a ProposalGenerated event.
func NewProposalGenerated(p *Proposal) *ProposalGenerated {
	return &ProposalGenerated{
		BaseEvent:      sharedDomain.NewBaseEvent(p.ID(), AggregateType, RoutingKeyProposalGenerated),
		OwnerID:        p.OwnerID(),
		Trigger:        string(p.Trigger()),
		MovesCount:     p.MovesCount(),
		ChurnCostTotal: p.ChurnCostTotal(),
		EnergyLevel:    int(p.EnergyLevel()),
	}
}

// ProposalApplied is emitted on a full or partial apply.
type ProposalApplied struct {
	sharedDomain.BaseEvent
	OwnerID      uuid.UUID `json:"owner_id"`
	Status       string    `json:"status"`
	AppliedMoves int       `json:"applied_moves"`
	SkippedMoves int       `json:"skipped_moves"`
	ChurnCost    int       `json:"churn_cost"`
	AppliedAt    time.Time `json:"applied_at"`
}

// NewProposalApplied creates a ProposalApplied event.
func NewProposalApplied(p *Proposal, appliedMoves, skippedMoves int) *ProposalApplied {
	var appliedAt time.Time
	if p.AppliedAt() != nil {
		appliedAt = *p.AppliedAt()
	}
	return &ProposalApplied{
		BaseEvent:    sharedDomain.NewBaseEvent(p.ID(), AggregateType, RoutingKeyProposalApplied),
		OwnerID:      p.OwnerID(),
		Status:       string(p.Status()),
		AppliedMoves: appliedMoves,
		SkippedMoves: skippedMoves,
		ChurnCost:    p.ChurnCostTotal(),
		AppliedAt:    appliedAt,
	}
}

// ProposalUndone is emitted after a snapshot restore.
type ProposalUndone struct {
	sharedDomain.BaseEvent
	OwnerID          uuid.UUID `json:"owner_id"`
	UnrestoredBlocks int       `json:"unrestored_blocks"`
}

// NewProposalUndone creates a ProposalUndone event.
func NewProposalUndone(p *Proposal, unrestored int) *ProposalUndone {
	return &ProposalUndone{
		BaseEvent:        sharedDomain.NewBaseEvent(p.ID(), AggregateType, RoutingKeyProposalUndone),
		OwnerID:          p.OwnerID(),
		UnrestoredBlocks: unrestored,
	}
}

// ProposalCancelled is emitted when the owner discards a proposal.
type ProposalCancelled struct {
	sharedDomain.BaseEvent
	OwnerID uuid.UUID `json:"owner_id"`
}

// NewProposalCancelled creates a ProposalCancelled event.
func NewProposalCancelled(p *Proposal) *ProposalCancelled {
	return &ProposalCancelled{
		BaseEvent: sharedDomain.NewBaseEvent(p.ID(), AggregateType, RoutingKeyProposalCancelled),
		OwnerID:   p.OwnerID(),
	}
}

// ProposalExpired is emitted by the retention sweep.
type ProposalExpired struct {
	sharedDomain.BaseEvent
	OwnerID uuid.UUID `json:"owner_id"`
}

// NewProposalExpired creates a ProposalExpired event.
func NewProposalExpired(p *Proposal) *ProposalExpired {
	return &ProposalExpired{
		BaseEvent: sharedDomain.NewBaseEvent(p.ID(), AggregateType, RoutingKeyProposalExpired),
		OwnerID:   p.OwnerID(),
	}
}

// ProposalRejected is emitted when the churn governor rejects a proposal
// outright in strict configuration.
type ProposalRejected struct {
	sharedDomain.BaseEvent
	OwnerID   uuid.UUID `json:"owner_id"`
	ChurnCost int       `json:"churn_cost"`
	Cap       int       `json:"cap"`
}

// NewProposalRejected creates a ProposalRejected event.
func NewProposalRejected(p *Proposal, cap int) *ProposalRejected {
	return &ProposalRejected{
		BaseEvent: sharedDomain.NewBaseEvent(p.ID(), AggregateType, RoutingKeyProposalRejected),
		OwnerID:   p.OwnerID(),
		ChurnCost: p.ChurnCostTotal(),
		Cap:       cap,
	}
}
