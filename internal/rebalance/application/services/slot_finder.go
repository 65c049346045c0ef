package services

import (
	"sort"
	"time"

	calendar "github.com/felixgeelhaar/studyflow/internal/calendar/domain"
)

// SlotFinderConfig bounds the forward search.
type SlotFinderConfig struct {
	Buffer             time.Duration // margin kept around existing blocks
	HorizonDays        int
	PreferredStartHour int
	PreferredEndHour   int
}

// DefaultSlotFinderConfig returns the standard search bounds.
func DefaultSlotFinderConfig() SlotFinderConfig {
	return SlotFinderConfig{
		Buffer:             15 * time.Minute,
		HorizonDays:        14,
		PreferredStartHour: 8,
		PreferredEndHour:   21,
	}
}

// Slot is a placement found for a session. Unverified slots fell out of
// the search horizon and keep the requested start; the caller decides
// whether to surface them.
type Slot struct {
	Start      time.Time
	End        time.Time
	Unverified bool
}

// SlotFinder walks forward through a user's calendar looking for a free
// interval of the requested duration.
type SlotFinder struct {
	config SlotFinderConfig
}

// NewSlotFinder creates a finder.
func NewSlotFinder(config SlotFinderConfig) *SlotFinder {
	return &SlotFinder{config: config}
}

// SlotRequest describes one search. Ceiling is the latest acceptable end,
// zero means no ceiling beyond the horizon. Exclude lists block IDs the
// search should ignore (blocks the proposal is already moving away).
type SlotRequest struct {
	SearchStart time.Time
	Duration    time.Duration
	Ceiling     time.Time
	Blocks      []*calendar.Block
	Exclude     map[string]struct{}
	Location    *time.Location
}

// Find returns the earliest free slot at or after the search start. When
// the horizon or ceiling is exhausted the original start comes back
// flagged Unverified rather than failing the whole proposal.
func (f *SlotFinder) Find(req SlotRequest) Slot {
	loc := req.Location
	if loc == nil {
		loc = time.UTC
	}
	horizon := req.SearchStart.AddDate(0, 0, f.config.HorizonDays)
	ceiling := req.Ceiling
	if ceiling.IsZero() || ceiling.After(horizon) {
		ceiling = horizon
	}

	blocks := make([]*calendar.Block, 0, len(req.Blocks))
	for _, b := range req.Blocks {
		if calendar.IsOverlapExempt(b.BlockType()) {
			continue
		}
		if req.Exclude != nil {
			if _, skip := req.Exclude[b.ID().String()]; skip {
				continue
			}
		}
		blocks = append(blocks, b)
	}
	sort.Slice(blocks, func(i, j int) bool {
		return blocks[i].StartTime().Before(blocks[j].StartTime())
	})

	cursor := req.SearchStart
	for cursor.Add(req.Duration).Before(ceiling) || cursor.Add(req.Duration).Equal(ceiling) {
		cursor = f.snapToWindow(cursor, loc)
		end := cursor.Add(req.Duration)
		if end.After(ceiling) {
			break
		}
		if conflict := f.firstConflict(blocks, cursor, end); conflict != nil {
			cursor = conflict.EndTime().Add(f.config.Buffer)
			continue
		}
		return Slot{Start: cursor, End: end}
	}
	return Slot{
		Start:      req.SearchStart,
		End:        req.SearchStart.Add(req.Duration),
		Unverified: true,
	}
}

// snapToWindow moves a cursor outside the preferred hours to the window
// start of the next eligible day.
func (f *SlotFinder) snapToWindow(cursor time.Time, loc *time.Location) time.Time {
	local := cursor.In(loc)
	hour := local.Hour()
	if hour >= f.config.PreferredStartHour && hour < f.config.PreferredEndHour {
		return cursor
	}
	day := time.Date(local.Year(), local.Month(), local.Day(), f.config.PreferredStartHour, 0, 0, 0, loc)
	if hour >= f.config.PreferredEndHour {
		day = day.AddDate(0, 0, 1)
	}
	return day
}

// firstConflict returns the earliest block intersecting the padded
// candidate interval, or nil when the interval is free.
func (f *SlotFinder) firstConflict(blocks []*calendar.Block, start, end time.Time) *calendar.Block {
	paddedStart := start.Add(-f.config.Buffer)
	paddedEnd := end.Add(f.config.Buffer)
	for _, b := range blocks {
		if b.StartTime().After(paddedEnd) || b.StartTime().Equal(paddedEnd) {
			break
		}
		if b.OverlapsRange(paddedStart, paddedEnd) {
			return b
		}
	}
	return nil
}
