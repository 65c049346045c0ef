package services

import (
	"sort"
	"time"

	calendar "github.com/felixgeelhaar/studyflow/internal/calendar/domain"
	coursework "github.com/felixgeelhaar/studyflow/internal/coursework/domain"
	profile "github.com/felixgeelhaar/studyflow/internal/profile/domain"
	"github.com/felixgeelhaar/studyflow/internal/rebalance/domain"
	"github.com/google/uuid"
)

// DetectorConfig bounds the scan and sets the pattern thresholds.
type DetectorConfig struct {
	WindowDays              int
	OverloadDayMinutes      int
	CrammingBlockThreshold  int
	CrammingDueSpread       time.Duration
	LowAlertnessEndHour     int // blocks starting before this hour are flagged
	LateNightStartHour      int // blocks starting at or after this hour are flagged
	PostLunchStartHour      int
	PostLunchEndHour        int
	DeepWorkEnergyThreshold profile.EnergyLevel
}

// DefaultDetectorConfig returns the default scan parameters.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		WindowDays:              14,
		OverloadDayMinutes:      360,
		CrammingBlockThreshold:  3,
		CrammingDueSpread:       24 * time.Hour,
		LowAlertnessEndHour:     7,
		LateNightStartHour:      23,
		PostLunchStartHour:      13,
		PostLunchEndHour:        14,
		DeepWorkEnergyThreshold: 4,
	}
}

// Finding is one detected scheduling problem. BlockIDs lists the movable
// blocks a fix should target, worst first.
type Finding struct {
	Codes    []domain.ReasonCode
	BlockIDs []uuid.UUID
	Day      string
}

// ConflictDetector scans a user's calendar window for overlaps, overload
// days, cramming, poor timing and energy mismatches.
type ConflictDetector struct {
	config DetectorConfig
}

// NewConflictDetector creates a detector.
func NewConflictDetector(config DetectorConfig) *ConflictDetector {
	return &ConflictDetector{config: config}
}

// ScanInput carries everything a scan needs; the detector itself does no
// storage access.
type ScanInput struct {
	Blocks      []*calendar.Block
	WorkItems   map[uuid.UUID]*coursework.WorkItem // keyed by work item ID
	EnergyLevel profile.EnergyLevel
	Now         time.Time
	Location    *time.Location
	// WindowDays overrides the configured window when positive
	// (energy-change triggers scan a shorter horizon).
	WindowDays int
}

// Scan returns all findings within the window.
func (d *ConflictDetector) Scan(in ScanInput) []Finding {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	windowDays := d.config.WindowDays
	if in.WindowDays > 0 {
		windowDays = in.WindowDays
	}
	windowEnd := in.Now.AddDate(0, 0, windowDays)

	blocks := make([]*calendar.Block, 0, len(in.Blocks))
	for _, b := range in.Blocks {
		if b.EndTime().After(in.Now) && b.StartTime().Before(windowEnd) {
			blocks = append(blocks, b)
		}
	}
	sort.Slice(blocks, func(i, j int) bool {
		return blocks[i].StartTime().Before(blocks[j].StartTime())
	})

	var findings []Finding
	findings = append(findings, d.scanOverlaps(blocks)...)
	findings = append(findings, d.scanOverloadDays(blocks, loc)...)
	findings = append(findings, d.scanCramming(blocks, in.WorkItems, loc)...)
	findings = append(findings, d.scanPoorTiming(blocks, loc)...)
	findings = append(findings, d.scanEnergyMismatch(blocks, in.WorkItems, in.EnergyLevel)...)
	return findings
}

// scanOverlaps flags pairs of intersecting blocks where at least one is
// movable. Overlap-exempt types (office hours) are skipped on either side.
func (d *ConflictDetector) scanOverlaps(blocks []*calendar.Block) []Finding {
	var findings []Finding
	for i := 0; i < len(blocks); i++ {
		a := blocks[i]
		if calendar.IsOverlapExempt(a.BlockType()) {
			continue
		}
		for j := i + 1; j < len(blocks); j++ {
			b := blocks[j]
			if !b.StartTime().Before(a.EndTime()) {
				break // sorted by start, nothing later overlaps a
			}
			if calendar.IsOverlapExempt(b.BlockType()) {
				continue
			}
			if !a.OverlapsWith(b) {
				continue
			}
			targets := movableOf(a, b)
			if len(targets) == 0 {
				continue
			}
			findings = append(findings, Finding{
				Codes:    []domain.ReasonCode{domain.ReasonOverlap},
				BlockIDs: targets,
			})
		}
	}
	return findings
}

// scanOverloadDays flags days whose movable minutes exceed the ceiling.
// Blocks are listed shortest first so fixes displace as little as possible.
func (d *ConflictDetector) scanOverloadDays(blocks []*calendar.Block, loc *time.Location) []Finding {
	type dayLoad struct {
		minutes int
		blocks  []*calendar.Block
	}
	days := make(map[string]*dayLoad)
	for _, b := range blocks {
		if !b.IsMovable() {
			continue
		}
		day := domain.DayKey(b.StartTime(), loc)
		load, ok := days[day]
		if !ok {
			load = &dayLoad{}
			days[day] = load
		}
		load.minutes += int(b.Duration().Minutes())
		load.blocks = append(load.blocks, b)
	}

	var overloaded []string
	for day, load := range days {
		if load.minutes > d.config.OverloadDayMinutes {
			overloaded = append(overloaded, day)
		}
	}
	sort.Strings(overloaded)

	var findings []Finding
	for _, day := range overloaded {
		load := days[day]
		sort.Slice(load.blocks, func(i, j int) bool {
			return load.blocks[i].Duration() < load.blocks[j].Duration()
		})
		ids := make([]uuid.UUID, 0, len(load.blocks))
		for _, b := range load.blocks {
			ids = append(ids, b.ID())
		}
		findings = append(findings, Finding{
			Codes:    []domain.ReasonCode{domain.ReasonOverloadDay},
			BlockIDs: ids,
			Day:      day,
		})
	}
	return findings
}

// scanCramming flags days carrying several movable blocks whose linked
// work is all due within a narrow band the following day.
func (d *ConflictDetector) scanCramming(blocks []*calendar.Block, items map[uuid.UUID]*coursework.WorkItem, loc *time.Location) []Finding {
	type group struct {
		ids  []uuid.UUID
		dues []time.Time
	}
	days := make(map[string]*group)
	for _, b := range blocks {
		if !b.IsMovable() || b.WorkItemID() == uuid.Nil {
			continue
		}
		item, ok := items[b.WorkItemID()]
		if !ok || item.DueAt == nil {
			continue
		}
		blockDay := domain.DayKey(b.StartTime(), loc)
		dueDay := domain.DayKey(item.DueAt.AddDate(0, 0, -1), loc)
		if blockDay != dueDay {
			continue // only the day immediately preceding the due date
		}
		g, ok := days[blockDay]
		if !ok {
			g = &group{}
			days[blockDay] = g
		}
		g.ids = append(g.ids, b.ID())
		g.dues = append(g.dues, *item.DueAt)
	}

	var crammed []string
	for day, g := range days {
		if len(g.ids) < d.config.CrammingBlockThreshold {
			continue
		}
		minDue, maxDue := g.dues[0], g.dues[0]
		for _, due := range g.dues[1:] {
			if due.Before(minDue) {
				minDue = due
			}
			if due.After(maxDue) {
				maxDue = due
			}
		}
		if maxDue.Sub(minDue) <= d.config.CrammingDueSpread {
			crammed = append(crammed, day)
		}
	}
	sort.Strings(crammed)

	var findings []Finding
	for _, day := range crammed {
		findings = append(findings, Finding{
			Codes:    []domain.ReasonCode{domain.ReasonCramming, domain.ReasonDeadlineProximity},
			BlockIDs: days[day].ids,
			Day:      day,
		})
	}
	return findings
}

// scanPoorTiming flags movable blocks starting in the low-alertness hours
// or inside the post-lunch dip.
func (d *ConflictDetector) scanPoorTiming(blocks []*calendar.Block, loc *time.Location) []Finding {
	var findings []Finding
	for _, b := range blocks {
		if !b.IsMovable() {
			continue
		}
		hour := b.StartTime().In(loc).Hour()
		poor := hour < d.config.LowAlertnessEndHour ||
			hour >= d.config.LateNightStartHour ||
			(hour >= d.config.PostLunchStartHour && hour < d.config.PostLunchEndHour)
		if !poor {
			continue
		}
		findings = append(findings, Finding{
			Codes:    []domain.ReasonCode{domain.ReasonPoorTiming},
			BlockIDs: []uuid.UUID{b.ID()},
		})
	}
	return findings
}

// scanEnergyMismatch flags deep-work blocks while declared energy is low.
func (d *ConflictDetector) scanEnergyMismatch(blocks []*calendar.Block, items map[uuid.UUID]*coursework.WorkItem, energy profile.EnergyLevel) []Finding {
	if energy > d.config.DeepWorkEnergyThreshold {
		return nil
	}
	var findings []Finding
	for _, b := range blocks {
		if !b.IsMovable() || b.WorkItemID() == uuid.Nil {
			continue
		}
		item, ok := items[b.WorkItemID()]
		if !ok || !item.Category.IsDeepWork() {
			continue
		}
		findings = append(findings, Finding{
			Codes:    []domain.ReasonCode{domain.ReasonEnergyMismatch},
			BlockIDs: []uuid.UUID{b.ID()},
		})
	}
	return findings
}

func movableOf(a, b *calendar.Block) []uuid.UUID {
	var ids []uuid.UUID
	if a.IsMovable() {
		ids = append(ids, a.ID())
	}
	if b.IsMovable() {
		ids = append(ids, b.ID())
	}
	return ids
}
