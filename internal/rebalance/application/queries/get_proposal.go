package queries

import (
	"context"
	"time"

	"github.com/felixgeelhaar/studyflow/internal/rebalance/domain"
	"github.com/google/uuid"
)

// GetProposalQuery fetches one proposal with its moves.
type GetProposalQuery struct {
	ProposalID uuid.UUID
}

// MoveView is the read model of one move.
type MoveView struct {
	ID            uuid.UUID
	Type          domain.MoveType
	SourceBlockID uuid.UUID
	Title         string
	TargetStart   *time.Time
	TargetEnd     *time.Time
	ChurnCost     int
	ReasonCodes   []domain.ReasonCode
	FinalPriority float64
	Unverified    bool
}

// ProposalView is the read model of a proposal.
type ProposalView struct {
	ID             uuid.UUID
	OwnerID        uuid.UUID
	Trigger        domain.Trigger
	CauseContext   string
	Status         domain.Status
	ApplyMode      domain.ApplyMode
	Moves          []MoveView
	ChurnCostTotal int
	AppliedAt      *time.Time
	UndoneAt       *time.Time
	CreatedAt      time.Time
}

// GetProposalHandler handles the GetProposalQuery.
type GetProposalHandler struct {
	proposalRepo domain.ProposalRepository
}

// NewGetProposalHandler creates a new GetProposalHandler.
func NewGetProposalHandler(proposalRepo domain.ProposalRepository) *GetProposalHandler {
	return &GetProposalHandler{proposalRepo: proposalRepo}
}

// Handle executes the GetProposalQuery.
func (h *GetProposalHandler) Handle(ctx context.Context, query GetProposalQuery) (*ProposalView, error) {
	proposal, err := h.proposalRepo.FindByID(ctx, query.ProposalID)
	if err != nil {
		return nil, err
	}

	moves := make([]MoveView, 0, proposal.MovesCount())
	for _, m := range proposal.Moves() {
		moves = append(moves, MoveView{
			ID:            m.ID(),
			Type:          m.Type(),
			SourceBlockID: m.SourceBlockID(),
			Title:         m.Title(),
			TargetStart:   m.TargetStart(),
			TargetEnd:     m.TargetEnd(),
			ChurnCost:     m.ChurnCost(),
			ReasonCodes:   m.ReasonCodes(),
			FinalPriority: m.FinalPriority(),
			Unverified:    m.IsUnverified(),
		})
	}

	return &ProposalView{
		ID:             proposal.ID(),
		OwnerID:        proposal.OwnerID(),
		Trigger:        proposal.Trigger(),
		CauseContext:   proposal.CauseContext(),
		Status:         proposal.Status(),
		ApplyMode:      proposal.ApplyMode(),
		Moves:          moves,
		ChurnCostTotal: proposal.ChurnCostTotal(),
		AppliedAt:      proposal.AppliedAt(),
		UndoneAt:       proposal.UndoneAt(),
		CreatedAt:      proposal.CreatedAt(),
	}, nil
}
