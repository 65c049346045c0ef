package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/studyflow/internal/rebalance/domain"
	sharedApplication "github.com/felixgeelhaar/studyflow/internal/shared/application"
	"github.com/felixgeelhaar/studyflow/internal/shared/infrastructure/outbox"
)

// DefaultProposalTTL is how long a proposal stays open for review.
const DefaultProposalTTL = 24 * time.Hour

// ExpireProposalsCommand sweeps stale proposed proposals. Zero values
// fall back to the defaults.
type ExpireProposalsCommand struct {
	TTL   time.Duration
	Limit int
	Now   time.Time
}

// ExpireProposalsResult reports one sweep.
type ExpireProposalsResult struct {
	Expired int
}

// ExpireProposalsHandler handles the ExpireProposalsCommand. The worker
// runs it periodically; proposals a user never confirmed go stale rather
// than applying against a calendar that has drifted.
type ExpireProposalsHandler struct {
	proposalRepo domain.ProposalRepository
	outboxRepo   outbox.Repository
	uow          sharedApplication.UnitOfWork
	logger       *slog.Logger
}

// NewExpireProposalsHandler creates a new ExpireProposalsHandler.
func NewExpireProposalsHandler(
	proposalRepo domain.ProposalRepository,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	logger *slog.Logger,
) *ExpireProposalsHandler {
	return &ExpireProposalsHandler{
		proposalRepo: proposalRepo,
		outboxRepo:   outboxRepo,
		uow:          uow,
		logger:       logger,
	}
}

// Handle expires every proposed proposal older than the TTL. Each
// proposal commits in its own transaction so one bad row never stalls
// the sweep.
func (h *ExpireProposalsHandler) Handle(ctx context.Context, cmd ExpireProposalsCommand) (*ExpireProposalsResult, error) {
	ttl := cmd.TTL
	if ttl <= 0 {
		ttl = DefaultProposalTTL
	}
	limit := cmd.Limit
	if limit <= 0 {
		limit = 100
	}
	now := cmd.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	stale, err := h.proposalRepo.ListProposedBefore(ctx, now.Add(-ttl), limit)
	if err != nil {
		return nil, err
	}

	result := &ExpireProposalsResult{}
	for _, proposal := range stale {
		p := proposal
		err := sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
			if err := p.MarkExpired(); err != nil {
				return err
			}
			if err := h.proposalRepo.Save(txCtx, p); err != nil {
				return err
			}
			return saveEvents(txCtx, h.outboxRepo, p, p.OwnerID())
		})
		if err != nil {
			h.logger.Error("failed to expire proposal",
				slog.String("proposal_id", p.ID().String()),
				slog.String("error", err.Error()))
			continue
		}
		result.Expired++
	}
	return result, nil
}
