package queries

import (
	"context"
	"time"

	"github.com/felixgeelhaar/studyflow/internal/rebalance/domain"
)

// HealthStatus is the engine's aggregate state signal.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthDown     HealthStatus = "down"
)

// EngineHealthQuery asks for the rolling health signal.
type EngineHealthQuery struct {
	Now time.Time
}

// EngineHealthView aggregates the last 24 hours of engine activity.
type EngineHealthView struct {
	Status            HealthStatus
	Generated24h      int
	Applied24h        int
	Rejected24h       int
	Undone24h         int
	AcceptanceRate    float64
	UndoRate          float64
	GeneratedLastHour int
}

// EngineHealthHandler handles the EngineHealthQuery.
type EngineHealthHandler struct {
	proposalRepo domain.ProposalRepository
	// undoRateDegraded is the undo fraction above which the engine is
	// considered degraded.
	undoRateDegraded float64
}

// NewEngineHealthHandler creates a new EngineHealthHandler.
func NewEngineHealthHandler(proposalRepo domain.ProposalRepository) *EngineHealthHandler {
	return &EngineHealthHandler{
		proposalRepo:     proposalRepo,
		undoRateDegraded: 0.30,
	}
}

// Handle computes the health signal. down means no proposals at all in
// 24h; degraded means users are undoing too much, or generation went
// quiet in the last hour despite earlier activity.
func (h *EngineHealthHandler) Handle(ctx context.Context, query EngineHealthQuery) (*EngineHealthView, error) {
	now := query.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	counts, err := h.proposalRepo.CountByStatusSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}
	lastHour, err := h.proposalRepo.CountCreatedSince(ctx, now.Add(-time.Hour))
	if err != nil {
		return nil, err
	}
	undone, err := h.proposalRepo.CountUndoneSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}

	applied := counts[domain.StatusApplied] + counts[domain.StatusPartiallyApplied] + counts[domain.StatusUndone]
	rejected := counts[domain.StatusCancelled] + counts[domain.StatusExpired]
	generated := 0
	for _, n := range counts {
		generated += n
	}

	view := &EngineHealthView{
		Generated24h:      generated,
		Applied24h:        applied,
		Rejected24h:       rejected,
		Undone24h:         undone,
		GeneratedLastHour: lastHour,
	}
	if generated > 0 {
		view.AcceptanceRate = float64(applied) / float64(generated)
	}
	if applied > 0 {
		view.UndoRate = float64(undone) / float64(applied)
	}

	switch {
	case generated == 0:
		view.Status = HealthDown
	case view.UndoRate > h.undoRateDegraded:
		view.Status = HealthDegraded
	case lastHour == 0 && generated > 0:
		view.Status = HealthDegraded
	default:
		view.Status = HealthHealthy
	}
	return view, nil
}
