package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	calendar "github.com/felixgeelhaar/studyflow/internal/calendar/domain"
	coursework "github.com/felixgeelhaar/studyflow/internal/coursework/domain"
	profile "github.com/felixgeelhaar/studyflow/internal/profile/domain"
	"github.com/felixgeelhaar/studyflow/internal/rebalance/application/services"
	"github.com/felixgeelhaar/studyflow/internal/rebalance/domain"
	sharedApplication "github.com/felixgeelhaar/studyflow/internal/shared/application"
	"github.com/felixgeelhaar/studyflow/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
)

// GenerateProposalCommand requests a rebalancing proposal for one user.
type GenerateProposalCommand struct {
	UserID       uuid.UUID
	Trigger      domain.Trigger
	CauseContext string
	ApplyMode    domain.ApplyMode
	// NewWorkItemIDs names freshly added items to chunk onto the
	// calendar (quick-add trigger).
	NewWorkItemIDs []uuid.UUID
	Now            time.Time
}

// GenerateProposalResult contains the persisted proposal summary.
type GenerateProposalResult struct {
	ProposalID     uuid.UUID
	Status         domain.Status
	MovesCount     int
	ChurnCostTotal int
	TrimmedMoves   int
	// Rejected is set when the churn governor refused the whole
	// proposal; the proposal is persisted as cancelled for audit.
	Rejected bool
}

// GenerateProposalHandler handles the GenerateProposalCommand.
type GenerateProposalHandler struct {
	builder      *services.ProposalBuilder
	governor     *services.ChurnGovernor
	proposalRepo domain.ProposalRepository
	churnRepo    domain.ChurnRepository
	blockRepo    calendar.BlockRepository
	workItemRepo coursework.WorkItemRepository
	courseRepo   coursework.CourseRepository
	profileRepo  profile.ProfileRepository
	energyRepo   profile.EnergyStateRepository
	outboxRepo   outbox.Repository
	uow          sharedApplication.UnitOfWork
	horizonDays  int
}

// NewGenerateProposalHandler creates a new GenerateProposalHandler.
func NewGenerateProposalHandler(
	builder *services.ProposalBuilder,
	governor *services.ChurnGovernor,
	proposalRepo domain.ProposalRepository,
	churnRepo domain.ChurnRepository,
	blockRepo calendar.BlockRepository,
	workItemRepo coursework.WorkItemRepository,
	courseRepo coursework.CourseRepository,
	profileRepo profile.ProfileRepository,
	energyRepo profile.EnergyStateRepository,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	horizonDays int,
) *GenerateProposalHandler {
	return &GenerateProposalHandler{
		builder:      builder,
		governor:     governor,
		proposalRepo: proposalRepo,
		churnRepo:    churnRepo,
		blockRepo:    blockRepo,
		workItemRepo: workItemRepo,
		courseRepo:   courseRepo,
		profileRepo:  profileRepo,
		energyRepo:   energyRepo,
		outboxRepo:   outboxRepo,
		uow:          uow,
		horizonDays:  horizonDays,
	}
}

// Handle builds, governs and persists a proposal. A proposal trimmed to
// nothing or rejected outright is still persisted (cancelled, with a
// rejection event) so the health monitor sees it.
func (h *GenerateProposalHandler) Handle(ctx context.Context, cmd GenerateProposalCommand) (*GenerateProposalResult, error) {
	if err := cmd.Trigger.Validate(); err != nil {
		return nil, err
	}
	now := cmd.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	applyMode := cmd.ApplyMode
	if applyMode == "" {
		applyMode = domain.ApplyModeBestEffort
	}

	loc := time.UTC
	if prof, err := h.profileRepo.FindByUser(ctx, cmd.UserID); err == nil {
		loc = prof.Location()
	} else if !errors.Is(err, profile.ErrProfileNotFound) {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	energy, err := h.energyRepo.Get(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("load energy state: %w", err)
	}

	horizon := now.AddDate(0, 0, h.horizonDays)
	blocks, err := h.blockRepo.ListByOwnerInRange(ctx, cmd.UserID, now, horizon)
	if err != nil {
		return nil, fmt.Errorf("load calendar: %w", err)
	}

	items, courses, newItems, err := h.loadCoursework(ctx, cmd, horizon)
	if err != nil {
		return nil, err
	}

	proposal, err := h.builder.Build(services.BuildInput{
		OwnerID:        cmd.UserID,
		Trigger:        cmd.Trigger,
		CauseContext:   cmd.CauseContext,
		ApplyMode:      applyMode,
		IdempotencyKey: uuid.NewString(),
		Blocks:         blocks,
		WorkItems:      items,
		Courses:        courses,
		NewItems:       newItems,
		EnergyLevel:    energy.Level,
		Location:       loc,
		Now:            now,
	})
	if err != nil {
		return nil, fmt.Errorf("build proposal: %w", err)
	}

	settings, err := h.churnRepo.GetSettings(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("load churn settings: %w", err)
	}
	ledger, err := h.churnRepo.GetLedger(ctx, cmd.UserID, domain.DayKey(now, loc))
	if err != nil {
		return nil, fmt.Errorf("load churn ledger: %w", err)
	}

	governed, govErr := h.governor.Govern(proposal, ledger.MinutesMoved, settings)
	rejected := errors.Is(govErr, domain.ErrChurnCapExceeded)
	if govErr != nil && !rejected {
		return nil, govErr
	}
	if rejected {
		if err := proposal.MarkCancelled(); err != nil {
			return nil, err
		}
		proposal.AddDomainEvent(domain.NewProposalRejected(proposal, governed.Cap))
	}

	err = sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		if err := h.proposalRepo.Save(txCtx, proposal); err != nil {
			return err
		}
		return saveEvents(txCtx, h.outboxRepo, proposal, cmd.UserID)
	})
	if err != nil {
		return nil, err
	}

	return &GenerateProposalResult{
		ProposalID:     proposal.ID(),
		Status:         proposal.Status(),
		MovesCount:     proposal.MovesCount(),
		ChurnCostTotal: proposal.ChurnCostTotal(),
		TrimmedMoves:   len(governed.TrimmedMoves),
		Rejected:       rejected,
	}, nil
}

// loadCoursework fetches the upcoming items, their courses and the set of
// items that still need chunks planned.
func (h *GenerateProposalHandler) loadCoursework(
	ctx context.Context,
	cmd GenerateProposalCommand,
	horizon time.Time,
) (map[uuid.UUID]*coursework.WorkItem, map[uuid.UUID]*coursework.Course, []*coursework.WorkItem, error) {
	upcoming, err := h.workItemRepo.ListUpcoming(ctx, cmd.UserID, horizon)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load work items: %w", err)
	}

	items := make(map[uuid.UUID]*coursework.WorkItem, len(upcoming))
	for _, item := range upcoming {
		items[item.ID] = item
	}
	for _, id := range cmd.NewWorkItemIDs {
		if _, ok := items[id]; ok {
			continue
		}
		item, err := h.workItemRepo.FindByID(ctx, id)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("load work item %s: %w", id, err)
		}
		items[item.ID] = item
	}

	courses := make(map[uuid.UUID]*coursework.Course)
	for _, item := range items {
		if _, ok := courses[item.CourseID]; ok {
			continue
		}
		course, err := h.courseRepo.FindByID(ctx, item.CourseID)
		if err != nil {
			if errors.Is(err, coursework.ErrCourseNotFound) {
				continue
			}
			return nil, nil, nil, fmt.Errorf("load course %s: %w", item.CourseID, err)
		}
		courses[course.ID] = course
	}

	// Quick-add plans the named items; refresh triggers plan whatever is
	// still unscheduled.
	var newItems []*coursework.WorkItem
	seen := map[uuid.UUID]struct{}{}
	for _, id := range cmd.NewWorkItemIDs {
		if item, ok := items[id]; ok {
			newItems = append(newItems, item)
			seen[id] = struct{}{}
		}
	}
	if cmd.Trigger == domain.TriggerDailyRefresh || cmd.Trigger == domain.TriggerManual {
		for _, item := range upcoming {
			if _, dup := seen[item.ID]; dup {
				continue
			}
			if item.Status == coursework.SchedulingStatusUnscheduled {
				newItems = append(newItems, item)
			}
		}
	}
	return items, courses, newItems, nil
}
