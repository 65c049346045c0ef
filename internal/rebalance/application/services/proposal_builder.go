package services

import (
	"fmt"
	"time"

	calendar "github.com/felixgeelhaar/studyflow/internal/calendar/domain"
	coursework "github.com/felixgeelhaar/studyflow/internal/coursework/domain"
	profile "github.com/felixgeelhaar/studyflow/internal/profile/domain"
	"github.com/felixgeelhaar/studyflow/internal/rebalance/domain"
	"github.com/google/uuid"
)

// BuilderConfig tunes proposal assembly.
type BuilderConfig struct {
	// EnergyChangeWindowDays narrows the scan after an energy report so
	// the proposal only touches the near future.
	EnergyChangeWindowDays int
	// DefaultBlockPriority scores moves for blocks with no linked work.
	DefaultBlockPriority float64
}

// DefaultBuilderConfig returns the standard assembly parameters.
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{
		EnergyChangeWindowDays: 2,
		DefaultBlockPriority:   0.2,
	}
}

// ProposalBuilder turns detector findings and chunk plans into a proposal.
// It is pure orchestration over the other services; commands fetch the
// calendar state and persist the result.
type ProposalBuilder struct {
	config   BuilderConfig
	scorer   *PriorityScorer
	detector *ConflictDetector
	planner  *ChunkPlanner
	finder   *SlotFinder
}

// NewProposalBuilder wires the engine services together.
func NewProposalBuilder(
	config BuilderConfig,
	scorer *PriorityScorer,
	detector *ConflictDetector,
	planner *ChunkPlanner,
	finder *SlotFinder,
) *ProposalBuilder {
	return &ProposalBuilder{
		config:   config,
		scorer:   scorer,
		detector: detector,
		planner:  planner,
		finder:   finder,
	}
}

// BuildInput carries the full calendar context for one user.
type BuildInput struct {
	OwnerID        uuid.UUID
	Trigger        domain.Trigger
	CauseContext   string
	ApplyMode      domain.ApplyMode
	IdempotencyKey string
	Blocks         []*calendar.Block
	WorkItems      map[uuid.UUID]*coursework.WorkItem
	Courses        map[uuid.UUID]*coursework.Course
	// NewItems are freshly added work items that still need chunks on
	// the calendar (quick-add and daily-refresh triggers).
	NewItems    []*coursework.WorkItem
	EnergyLevel profile.EnergyLevel
	Location    *time.Location
	Now         time.Time
}

// Build assembles a proposal. An empty proposal (no moves) is a valid
// result meaning the calendar needs no changes.
func (b *ProposalBuilder) Build(in BuildInput) (*domain.Proposal, error) {
	proposal, err := domain.NewProposal(
		in.OwnerID, in.Trigger, in.CauseContext, in.EnergyLevel, in.ApplyMode, in.IdempotencyKey,
	)
	if err != nil {
		return nil, err
	}
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}

	scan := ScanInput{
		Blocks:      in.Blocks,
		WorkItems:   in.WorkItems,
		EnergyLevel: in.EnergyLevel,
		Now:         in.Now,
		Location:    loc,
	}
	if in.Trigger == domain.TriggerEnergyChange {
		scan.WindowDays = b.config.EnergyChangeWindowDays
	}
	findings := b.detector.Scan(scan)

	// Merge findings per block so each block gets at most one fix move
	// carrying every reason that implicated it.
	targets := map[uuid.UUID][]domain.ReasonCode{}
	var order []uuid.UUID
	for _, f := range findings {
		for _, id := range f.BlockIDs {
			if _, seen := targets[id]; !seen {
				order = append(order, id)
			}
			targets[id] = mergeReasons(targets[id], f.Codes)
		}
	}

	byID := make(map[uuid.UUID]*calendar.Block, len(in.Blocks))
	for _, blk := range in.Blocks {
		byID[blk.ID()] = blk
	}
	exclude := make(map[string]struct{}, len(order))
	for _, id := range order {
		exclude[id.String()] = struct{}{}
	}

	// occupied accumulates planned placements so later searches in this
	// proposal do not collide with earlier ones.
	occupied := append([]*calendar.Block(nil), in.Blocks...)

	for _, id := range order {
		blk, ok := byID[id]
		if !ok || !blk.IsMovable() {
			continue
		}
		reasons := targets[id]
		base, category, ceiling := b.scoreBlock(blk, in)

		slot := b.finder.Find(SlotRequest{
			SearchStart: in.Now,
			Duration:    blk.Duration(),
			Ceiling:     ceiling,
			Blocks:      occupied,
			Exclude:     exclude,
			Location:    loc,
		})
		if !slot.Unverified && slot.Start.Equal(blk.StartTime()) {
			continue // already in the best place
		}

		version := blk.Version()
		start, end := slot.Start, slot.End
		move, err := proposal.AddMove(domain.MoveSpec{
			Type:             domain.MoveTypeMove,
			SourceBlockID:    blk.ID(),
			WorkItemID:       blk.WorkItemID(),
			TargetStart:      &start,
			TargetEnd:        &end,
			DeltaMinutes:     int(slot.Start.Sub(blk.StartTime()).Minutes()),
			ChurnCost:        int(blk.Duration().Minutes()),
			Category:         category,
			ReasonCodes:      reasons,
			BasePriority:     base,
			EnergyMultiplier: b.scorer.EnergyMultiplier(in.EnergyLevel, category),
			Unverified:       slot.Unverified,
			BaselineVersion:  &version,
			Title:            blk.Title(),
			MetadataPhase:    blk.Metadata().Phase,
		})
		if err != nil {
			return nil, fmt.Errorf("build move for block %s: %w", blk.ID(), err)
		}
		occupied = b.occupy(occupied, in.OwnerID, move.Title(), slot.Start, slot.End)
	}

	for _, item := range in.NewItems {
		if err := b.planNewItem(proposal, item, in, &occupied, exclude, loc); err != nil {
			return nil, err
		}
	}

	proposal.AddDomainEvent(domain.NewProposalGenerated(proposal))
	return proposal, nil
}

// planNewItem chunk-plans a new work item and inserts one move per chunk.
func (b *ProposalBuilder) planNewItem(
	proposal *domain.Proposal,
	item *coursework.WorkItem,
	in BuildInput,
	occupied *[]*calendar.Block,
	exclude map[string]struct{},
	loc *time.Location,
) error {
	if item.DueAt == nil || item.EstimateMinutes <= 0 {
		return nil
	}
	chunks, err := b.planner.Plan(PlanInput{
		Title:           item.Title,
		EstimateMinutes: item.EstimateMinutes,
		DueAt:           *item.DueAt,
		Difficulty:      item.Difficulty,
		Interest:        item.Interest,
		Now:             in.Now,
		Location:        loc,
	})
	if err != nil {
		return fmt.Errorf("plan chunks for %s: %w", item.ID, err)
	}

	course := in.Courses[item.CourseID]
	base := b.scorer.Score(item, course, in.Now)
	reasons := []domain.ReasonCode{domain.ReasonNewWork}
	if course != nil && b.scorer.IsGradeRescue(course) {
		reasons = append(reasons, domain.ReasonGradeRescue)
	}

	for _, chunk := range chunks {
		slot := b.finder.Find(SlotRequest{
			SearchStart: chunk.Start,
			Duration:    chunk.End.Sub(chunk.Start),
			Ceiling:     *item.DueAt,
			Blocks:      *occupied,
			Exclude:     exclude,
			Location:    loc,
		})
		start, end := slot.Start, slot.End
		_, err := proposal.AddMove(domain.MoveSpec{
			Type:             domain.MoveTypeInsert,
			WorkItemID:       item.ID,
			TargetStart:      &start,
			TargetEnd:        &end,
			ChurnCost:        0,
			Category:         item.Category,
			ReasonCodes:      reasons,
			BasePriority:     base,
			EnergyMultiplier: b.scorer.EnergyMultiplier(in.EnergyLevel, item.Category),
			Unverified:       slot.Unverified,
			Title:            chunk.Label,
			MetadataPhase:    string(chunk.Phase),
		})
		if err != nil {
			return fmt.Errorf("build insert for %s: %w", item.ID, err)
		}
		*occupied = b.occupy(*occupied, in.OwnerID, chunk.Label, slot.Start, slot.End)
	}
	return nil
}

// scoreBlock derives a priority and due-date ceiling for an existing block.
func (b *ProposalBuilder) scoreBlock(
	blk *calendar.Block,
	in BuildInput,
) (base float64, category coursework.Category, ceiling time.Time) {
	category = coursework.CategoryAdmin
	base = b.config.DefaultBlockPriority
	item, ok := in.WorkItems[blk.WorkItemID()]
	if !ok {
		return base, category, ceiling
	}
	category = item.Category
	base = b.scorer.Score(item, in.Courses[item.CourseID], in.Now)
	if item.DueAt != nil {
		ceiling = *item.DueAt
	}
	return base, category, ceiling
}

// occupy records a planned placement as a synthetic block so later slot
// searches within the same proposal avoid it.
func (b *ProposalBuilder) occupy(blocks []*calendar.Block, ownerID uuid.UUID, title string, start, end time.Time) []*calendar.Block {
	blk, err := calendar.NewBlock(ownerID, calendar.BlockTypeStudy, title, start, end, uuid.Nil, calendar.Metadata{})
	if err != nil {
		return blocks
	}
	return append(blocks, blk)
}

func mergeReasons(existing, add []domain.ReasonCode) []domain.ReasonCode {
	for _, code := range add {
		found := false
		for _, have := range existing {
			if have == code {
				found = true
				break
			}
		}
		if !found {
			existing = append(existing, code)
		}
	}
	return existing
}
