package commands

import (
	"context"
	"fmt"
	"time"

	profile "github.com/felixgeelhaar/studyflow/internal/profile/domain"
	"github.com/felixgeelhaar/studyflow/internal/rebalance/domain"
	"github.com/google/uuid"
)

// ReportEnergyCommand records a new self-reported energy level.
type ReportEnergyCommand struct {
	UserID uuid.UUID
	Level  profile.EnergyLevel
	Now    time.Time
}

// ReportEnergyResult reports the recorded state and, when the change was
// large enough to replan the near future, the generated proposal.
type ReportEnergyResult struct {
	PriorLevel profile.EnergyLevel
	Level      profile.EnergyLevel
	Proposal   *GenerateProposalResult
}

// ReportEnergyHandler persists the reading and triggers a short-window
// rebalance when energy shifted materially.
type ReportEnergyHandler struct {
	energyRepo profile.EnergyStateRepository
	generate   *GenerateProposalHandler
	// minShift is the absolute level change that triggers a rebalance.
	minShift int
}

// NewReportEnergyHandler creates a new ReportEnergyHandler.
func NewReportEnergyHandler(
	energyRepo profile.EnergyStateRepository,
	generate *GenerateProposalHandler,
	minShift int,
) *ReportEnergyHandler {
	if minShift <= 0 {
		minShift = 2
	}
	return &ReportEnergyHandler{
		energyRepo: energyRepo,
		generate:   generate,
		minShift:   minShift,
	}
}

// Handle executes the ReportEnergyCommand.
func (h *ReportEnergyHandler) Handle(ctx context.Context, cmd ReportEnergyCommand) (*ReportEnergyResult, error) {
	if err := cmd.Level.Validate(); err != nil {
		return nil, &domain.ValidationError{Field: "energy_level", Reason: err.Error()}
	}
	now := cmd.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	prior, err := h.energyRepo.Get(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("load energy state: %w", err)
	}
	if err := h.energyRepo.Set(ctx, cmd.UserID, cmd.Level, now); err != nil {
		return nil, fmt.Errorf("store energy state: %w", err)
	}

	result := &ReportEnergyResult{PriorLevel: prior.Level, Level: cmd.Level}

	shift := int(cmd.Level) - int(prior.Level)
	if shift < 0 {
		shift = -shift
	}
	if shift < h.minShift {
		return result, nil
	}

	proposal, err := h.generate.Handle(ctx, GenerateProposalCommand{
		UserID:       cmd.UserID,
		Trigger:      domain.TriggerEnergyChange,
		CauseContext: fmt.Sprintf("energy %d -> %d", prior.Level, cmd.Level),
		Now:          now,
	})
	if err != nil {
		return nil, fmt.Errorf("rebalance after energy change: %w", err)
	}
	result.Proposal = proposal
	return result, nil
}
