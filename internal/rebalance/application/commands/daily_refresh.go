package commands

import (
	"context"
	"log/slog"
	"time"

	coursework "github.com/felixgeelhaar/studyflow/internal/coursework/domain"
	"github.com/felixgeelhaar/studyflow/internal/rebalance/domain"
)

// DailyRefreshCommand regenerates proposals for every user with upcoming
// work. Zero values fall back to the defaults.
type DailyRefreshCommand struct {
	HorizonDays int
	Now         time.Time
}

// DailyRefreshResult summarizes one batch run.
type DailyRefreshResult struct {
	UsersProcessed int
	UsersFailed    int
	MovesProposed  int
}

// DailyRefreshHandler drives the periodic whole-population refresh. A
// failure for one user is logged and skipped; the batch always finishes.
type DailyRefreshHandler struct {
	generate     *GenerateProposalHandler
	workItemRepo coursework.WorkItemRepository
	logger       *slog.Logger
}

// NewDailyRefreshHandler creates a new DailyRefreshHandler.
func NewDailyRefreshHandler(
	generate *GenerateProposalHandler,
	workItemRepo coursework.WorkItemRepository,
	logger *slog.Logger,
) *DailyRefreshHandler {
	return &DailyRefreshHandler{
		generate:     generate,
		workItemRepo: workItemRepo,
		logger:       logger,
	}
}

// Handle executes the DailyRefreshCommand.
func (h *DailyRefreshHandler) Handle(ctx context.Context, cmd DailyRefreshCommand) (*DailyRefreshResult, error) {
	horizonDays := cmd.HorizonDays
	if horizonDays <= 0 {
		horizonDays = 14
	}
	now := cmd.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	owners, err := h.workItemRepo.ListOwnersWithUpcoming(ctx, now.AddDate(0, 0, horizonDays))
	if err != nil {
		return nil, err
	}

	result := &DailyRefreshResult{}
	for _, ownerID := range owners {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		res, err := h.generate.Handle(ctx, GenerateProposalCommand{
			UserID:       ownerID,
			Trigger:      domain.TriggerDailyRefresh,
			CauseContext: "daily refresh",
			Now:          now,
		})
		if err != nil {
			result.UsersFailed++
			h.logger.Error("daily refresh failed for user",
				slog.String("user_id", ownerID.String()),
				slog.String("error", err.Error()))
			continue
		}
		result.UsersProcessed++
		result.MovesProposed += res.MovesCount
	}
	return result, nil
}
