package domain

import (
	"time"

	"github.com/google/uuid"
)

// DayKey normalizes a time to the ledger's calendar-day key in the given
// location.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// ChurnLedgerEntry records how much schedule disruption a user absorbed on
// one calendar day. One row per user per day, incremented on apply.
type ChurnLedgerEntry struct {
	OwnerID      uuid.UUID
	Day          string // YYYY-MM-DD in the user's timezone
	MinutesMoved int
	MovesCount   int
	CapSnapshot  int // effective cap at the time of the last increment
	UpdatedAt    time.Time
}

// Remaining returns the disruption minutes still allowed today.
func (e ChurnLedgerEntry) Remaining() int {
	if e.MinutesMoved >= e.CapSnapshot {
		return 0
	}
	return e.CapSnapshot - e.MinutesMoved
}

// ChurnSettings is a per-user override of the daily churn cap.
type ChurnSettings struct {
	OwnerID         uuid.UUID
	DailyCapMinutes int
	UpdatedAt       time.Time
}
