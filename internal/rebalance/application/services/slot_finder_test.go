package services

import (
	"testing"
	"time"

	calendar "github.com/felixgeelhaar/studyflow/internal/calendar/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotFinder_Find(t *testing.T) {
	finder := NewSlotFinder(DefaultSlotFinderConfig())
	searchStart := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

	t.Run("empty calendar takes the search start", func(t *testing.T) {
		slot := finder.Find(SlotRequest{
			SearchStart: searchStart,
			Duration:    time.Hour,
		})

		assert.False(t, slot.Unverified)
		assert.Equal(t, searchStart, slot.Start)
		assert.Equal(t, searchStart.Add(time.Hour), slot.End)
	})

	t.Run("skips past an occupied interval with buffer", func(t *testing.T) {
		busy := mkBlock(t, calendar.BlockTypeClass,
			time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC),
			time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC), uuid.Nil)

		slot := finder.Find(SlotRequest{
			SearchStart: searchStart,
			Duration:    time.Hour,
			Blocks:      []*calendar.Block{busy},
		})

		require.False(t, slot.Unverified)
		assert.Equal(t, time.Date(2026, time.March, 2, 10, 15, 0, 0, time.UTC), slot.Start)
	})

	t.Run("ignores excluded blocks", func(t *testing.T) {
		moving := mkBlock(t, calendar.BlockTypeStudy,
			time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC),
			time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC), uuid.Nil)

		slot := finder.Find(SlotRequest{
			SearchStart: searchStart,
			Duration:    time.Hour,
			Blocks:      []*calendar.Block{moving},
			Exclude:     map[string]struct{}{moving.ID().String(): {}},
		})

		require.False(t, slot.Unverified)
		assert.Equal(t, searchStart, slot.Start)
	})

	t.Run("office hours do not block placement", func(t *testing.T) {
		office := mkBlock(t, calendar.BlockTypeOfficeHours,
			time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC),
			time.Date(2026, time.March, 2, 11, 0, 0, 0, time.UTC), uuid.Nil)

		slot := finder.Find(SlotRequest{
			SearchStart: searchStart,
			Duration:    time.Hour,
			Blocks:      []*calendar.Block{office},
		})

		require.False(t, slot.Unverified)
		assert.Equal(t, searchStart, slot.Start)
	})

	t.Run("late evening cursor snaps to the next morning", func(t *testing.T) {
		lateStart := time.Date(2026, time.March, 2, 22, 0, 0, 0, time.UTC)

		slot := finder.Find(SlotRequest{
			SearchStart: lateStart,
			Duration:    time.Hour,
		})

		require.False(t, slot.Unverified)
		assert.Equal(t, time.Date(2026, time.March, 3, 8, 0, 0, 0, time.UTC), slot.Start)
	})

	t.Run("early morning cursor snaps to the window start", func(t *testing.T) {
		earlyStart := time.Date(2026, time.March, 2, 5, 0, 0, 0, time.UTC)

		slot := finder.Find(SlotRequest{
			SearchStart: earlyStart,
			Duration:    time.Hour,
		})

		require.False(t, slot.Unverified)
		assert.Equal(t, time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC), slot.Start)
	})

	t.Run("ceiling exhaustion returns the request unverified", func(t *testing.T) {
		busy := mkBlock(t, calendar.BlockTypeClass,
			time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC),
			time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC), uuid.Nil)

		slot := finder.Find(SlotRequest{
			SearchStart: searchStart,
			Duration:    time.Hour,
			Ceiling:     time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC),
			Blocks:      []*calendar.Block{busy},
		})

		assert.True(t, slot.Unverified)
		assert.Equal(t, searchStart, slot.Start)
		assert.Equal(t, searchStart.Add(time.Hour), slot.End)
	})

	t.Run("fully booked horizon returns unverified", func(t *testing.T) {
		var blocks []*calendar.Block
		for day := 0; day < 15; day++ {
			start := time.Date(2026, time.March, 2+day, 7, 0, 0, 0, time.UTC)
			blocks = append(blocks, mkBlock(t, calendar.BlockTypeClass, start, start.Add(15*time.Hour), uuid.Nil))
		}

		slot := finder.Find(SlotRequest{
			SearchStart: searchStart,
			Duration:    2 * time.Hour,
			Blocks:      blocks,
		})

		assert.True(t, slot.Unverified)
	})

	t.Run("fits between two busy blocks", func(t *testing.T) {
		morning := mkBlock(t, calendar.BlockTypeClass,
			time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC),
			time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC), uuid.Nil)
		afternoon := mkBlock(t, calendar.BlockTypeClass,
			time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC),
			time.Date(2026, time.March, 2, 14, 0, 0, 0, time.UTC), uuid.Nil)

		slot := finder.Find(SlotRequest{
			SearchStart: searchStart,
			Duration:    time.Hour,
			Blocks:      []*calendar.Block{morning, afternoon},
		})

		require.False(t, slot.Unverified)
		assert.Equal(t, time.Date(2026, time.March, 2, 10, 15, 0, 0, time.UTC), slot.Start)
		assert.Equal(t, time.Date(2026, time.March, 2, 11, 15, 0, 0, time.UTC), slot.End)
	})
}
