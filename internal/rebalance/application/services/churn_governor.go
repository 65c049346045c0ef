package services

import (
	"github.com/felixgeelhaar/studyflow/internal/rebalance/domain"
)

// GovernorConfig sets the churn ceiling policy.
type GovernorConfig struct {
	DefaultDailyCapMinutes int
	// Strict rejects a proposal outright instead of trimming it down.
	Strict bool
}

// DefaultGovernorConfig returns the standard policy.
func DefaultGovernorConfig() GovernorConfig {
	return GovernorConfig{
		DefaultDailyCapMinutes: 120,
		Strict:                 false,
	}
}

// ChurnGovernor enforces the per-user daily disruption budget.
type ChurnGovernor struct {
	config GovernorConfig
}

// NewChurnGovernor creates a governor.
func NewChurnGovernor(config GovernorConfig) *ChurnGovernor {
	return &ChurnGovernor{config: config}
}

// EffectiveCap resolves the cap for a user: the per-user override when
// set, the system default otherwise.
func (g *ChurnGovernor) EffectiveCap(settings *domain.ChurnSettings) int {
	if settings != nil && settings.DailyCapMinutes > 0 {
		return settings.DailyCapMinutes
	}
	return g.config.DefaultDailyCapMinutes
}

// GovernResult reports what the governor did to a proposal.
type GovernResult struct {
	Cap           int
	SpentMinutes  int
	TrimmedMoves  []*domain.Move
	RemainingCost int
}

// Govern fits a proposal into the user's remaining daily budget. Spent is
// the ledger's minutes already moved today. Low-priority moves are trimmed
// until the proposal fits; when strict, or when trimming would empty the
// proposal while it still carries cost, the whole proposal is rejected
// with ErrChurnCapExceeded.
func (g *ChurnGovernor) Govern(proposal *domain.Proposal, spent int, settings *domain.ChurnSettings) (GovernResult, error) {
	cap := g.EffectiveCap(settings)
	result := GovernResult{Cap: cap, SpentMinutes: spent}

	budget := cap - spent
	if budget < 0 {
		budget = 0
	}
	if proposal.ChurnCostTotal() <= budget {
		result.RemainingCost = proposal.ChurnCostTotal()
		return result, nil
	}
	if g.config.Strict {
		return result, domain.ErrChurnCapExceeded
	}

	result.TrimmedMoves = proposal.TrimLowestPriority(budget)
	result.RemainingCost = proposal.ChurnCostTotal()
	if proposal.MovesCount() == 0 && len(result.TrimmedMoves) > 0 {
		return result, domain.ErrChurnCapExceeded
	}
	return result, nil
}
