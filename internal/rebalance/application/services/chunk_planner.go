package services

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Chunk planning splits a long effort estimate into bounded sessions spread
// backward from the due date, leaving a buffer day before the deadline.

var (
	ErrNoEstimate  = errors.New("work item has no effort estimate")
	ErrPastDue     = errors.New("due date is in the past")
	ErrPlanTooLate = errors.New("not enough time before the due date to plan all chunks")
)

// Phase labels a chunk's place in the writing/studying arc.
type Phase string

const (
	PhaseOutline Phase = "outline"
	PhaseDraft   Phase = "draft"
	PhaseRevise  Phase = "revise"
	PhaseEdit    Phase = "edit"
	PhasePolish  Phase = "polish"
)

var phaseCycle = []Phase{PhaseOutline, PhaseDraft, PhaseRevise, PhaseEdit, PhasePolish}

// ChunkTag marks a chunk's structural role inside the plan.
type ChunkTag string

const (
	TagInitial     ChunkTag = "initial"
	TagConsistency ChunkTag = "consistency"
	TagBuffer      ChunkTag = "buffer"
	TagFinal       ChunkTag = "final"
)

// Chunk is one planned work session. BaseMinutes is the share of the raw
// estimate; Minutes is the calendar length, which adds context-reload
// overhead on later days and never drops below the minimum session size.
type Chunk struct {
	Label       string
	Phase       Phase
	Tag         ChunkTag
	Start       time.Time
	End         time.Time
	BaseMinutes int
	Minutes     int
}

// PlannerConfig sets chunk sizing and spacing.
type PlannerConfig struct {
	MaxChunkMinutes   int
	MicroChunkMinutes int // used when high-difficulty or low-interest
	MaxChunksPerDay   int
	SameDayRestGap    time.Duration
	BufferDays        int // reserved before the due date
	OverheadPercent   float64
	MorningAnchorHour int
	EveningAnchorHour int
	HighDifficulty    int // difficulty at or above this triggers micro-chunks
	LowInterest       int // interest at or below this triggers micro-chunks
	MinSessionMinutes int // shortest slot worth reserving on the calendar
}

// DefaultPlannerConfig returns the standard sizing rules.
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		MaxChunkMinutes:   120,
		MicroChunkMinutes: 45,
		MaxChunksPerDay:   2,
		SameDayRestGap:    8 * time.Hour,
		BufferDays:        1,
		OverheadPercent:   0.20,
		MorningAnchorHour: 9,
		EveningAnchorHour: 19,
		HighDifficulty:    4,
		LowInterest:       2,
		MinSessionMinutes: 15,
	}
}

// ChunkPlanner turns an effort estimate into a backward-planned chunk list.
type ChunkPlanner struct {
	config PlannerConfig
}

// NewChunkPlanner creates a planner.
func NewChunkPlanner(config PlannerConfig) *ChunkPlanner {
	return &ChunkPlanner{config: config}
}

// PlanInput is one item to split.
type PlanInput struct {
	Title           string
	EstimateMinutes int
	DueAt           time.Time
	Difficulty      int // 1-5, 0 means unknown
	Interest        int // 1-5, 0 means unknown
	Now             time.Time
	Location        *time.Location
}

// Plan splits the estimate into chunks. The chunks come back in
// chronological order, never overlapping, none starting before now.
func (p *ChunkPlanner) Plan(in PlanInput) ([]Chunk, error) {
	if in.EstimateMinutes <= 0 {
		return nil, ErrNoEstimate
	}
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	now := in.Now.In(loc)
	due := in.DueAt.In(loc)
	if !due.After(now) {
		return nil, ErrPastDue
	}

	cap := p.chunkCap(in.Difficulty, in.Interest)

	// The shares always add up to the raw estimate; overhead is layered
	// on top per chunk later.
	sizes := splitMinutes(in.EstimateMinutes, cap)

	// Walk backward from the day before the buffer, newest chunk first.
	lastDay := truncateToDay(due, loc).AddDate(0, 0, -p.config.BufferDays)
	if lastDay.Before(truncateToDay(now, loc)) {
		lastDay = truncateToDay(now, loc)
	}

	chunks := make([]Chunk, len(sizes))
	day := lastDay
	onDay := 0
	for i := len(sizes) - 1; i >= 0; i-- {
		anchor := p.config.EveningAnchorHour
		if onDay == 1 {
			anchor = p.config.MorningAnchorHour
		}
		start := day.Add(time.Duration(anchor) * time.Hour)
		chunks[i] = Chunk{
			Start:       start,
			BaseMinutes: sizes[i],
		}
		onDay++
		if onDay >= p.config.MaxChunksPerDay {
			day = day.AddDate(0, 0, -1)
			onDay = 0
		}
	}

	// Clamp forward: slide the whole head of the plan so nothing starts
	// in the past, keeping the daily spacing.
	p.clampForward(chunks, now, loc)

	firstDay := truncateToDay(chunks[0].Start, loc)
	for i := range chunks {
		minutes := chunks[i].BaseMinutes
		if !truncateToDay(chunks[i].Start, loc).Equal(firstDay) {
			withOverhead := int(math.Round(float64(minutes) * (1 + p.config.OverheadPercent)))
			if withOverhead > cap {
				withOverhead = cap
			}
			if withOverhead > minutes {
				minutes = withOverhead
			}
		}
		// The session can be longer than its share of the estimate,
		// never shorter; tiny shares still reserve a workable slot.
		if minutes < p.config.MinSessionMinutes {
			minutes = p.config.MinSessionMinutes
		}
		chunks[i].Minutes = minutes
		chunks[i].End = chunks[i].Start.Add(time.Duration(minutes) * time.Minute)
		chunks[i].Phase = phaseCycle[i%len(phaseCycle)]
		chunks[i].Tag = tagFor(i, len(chunks))
		chunks[i].Label = fmt.Sprintf("%s: %s %d/%d", in.Title, chunks[i].Phase, i+1, len(chunks))
	}

	for i := 1; i < len(chunks); i++ {
		if chunks[i].Start.Before(chunks[i-1].End) {
			return nil, ErrPlanTooLate
		}
	}
	if chunks[len(chunks)-1].End.After(due) {
		return nil, ErrPlanTooLate
	}
	return chunks, nil
}

// chunkCap picks the applicable maximum chunk size.
func (p *ChunkPlanner) chunkCap(difficulty, interest int) int {
	if difficulty >= p.config.HighDifficulty {
		return p.config.MicroChunkMinutes
	}
	if interest > 0 && interest <= p.config.LowInterest {
		return p.config.MicroChunkMinutes
	}
	return p.config.MaxChunkMinutes
}

// clampForward slides chunks that landed before now onto the earliest
// eligible future days, respecting the per-day ceiling and the rest gap
// to every chunk already placed on the candidate day, later ones
// included.
func (p *ChunkPlanner) clampForward(chunks []Chunk, now time.Time, loc *time.Location) {
	placed := make(map[string][]time.Time)
	for _, c := range chunks {
		if !c.Start.Before(now) {
			key := truncateToDay(c.Start, loc).Format("2006-01-02")
			placed[key] = append(placed[key], c.Start)
		}
	}
	for i := range chunks {
		if !chunks[i].Start.Before(now) {
			continue
		}
		candidate := now
		for {
			key := truncateToDay(candidate, loc).Format("2006-01-02")
			if len(placed[key]) < p.config.MaxChunksPerDay && p.restGapOK(candidate, placed[key]) {
				placed[key] = append(placed[key], candidate)
				chunks[i].Start = candidate
				break
			}
			candidate = truncateToDay(candidate, loc).AddDate(0, 0, 1).
				Add(time.Duration(p.config.MorningAnchorHour) * time.Hour)
		}
	}
}

// restGapOK reports whether candidate keeps the rest gap to every start
// already planned on its day.
func (p *ChunkPlanner) restGapOK(candidate time.Time, sameDay []time.Time) bool {
	for _, s := range sameDay {
		gap := candidate.Sub(s)
		if gap < 0 {
			gap = -gap
		}
		if gap < p.config.SameDayRestGap {
			return false
		}
	}
	return true
}

// splitMinutes divides total into near-even parts no larger than cap.
func splitMinutes(total, cap int) []int {
	count := (total + cap - 1) / cap
	if count < 1 {
		count = 1
	}
	base := total / count
	rem := total % count
	sizes := make([]int, count)
	for i := range sizes {
		sizes[i] = base
		if i < rem {
			sizes[i]++
		}
	}
	return sizes
}

func tagFor(i, n int) ChunkTag {
	switch {
	case n == 1:
		return TagFinal
	case i == 0:
		return TagInitial
	case i == n-1:
		return TagFinal
	case i == n-2 && n > 2:
		return TagBuffer
	default:
		return TagConsistency
	}
}

func truncateToDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
