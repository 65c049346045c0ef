package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrProfileNotFound = errors.New("user profile not found")

// EnergyLevel is a self-reported 1-10 signal. Latest value wins; the
// engine keeps one persisted record per user rather than any in-process
// state.
type EnergyLevel int

const (
	MinEnergyLevel EnergyLevel = 1
	MaxEnergyLevel EnergyLevel = 10
	// DefaultEnergyLevel is assumed when a user never reported energy.
	DefaultEnergyLevel EnergyLevel = 6
)

// Validate checks the level is in range.
func (e EnergyLevel) Validate() error {
	if e < MinEnergyLevel || e > MaxEnergyLevel {
		return fmt.Errorf("energy level must be between %d and %d, got %d", MinEnergyLevel, MaxEnergyLevel, e)
	}
	return nil
}

// Profile holds per-user settings the engine reads.
type Profile struct {
	UserID    uuid.UUID
	Timezone  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Location resolves the profile timezone, falling back to UTC.
func (p *Profile) Location() *time.Location {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// EnergyState is the persisted latest energy reading for a user.
type EnergyState struct {
	UserID     uuid.UUID
	Level      EnergyLevel
	PriorLevel EnergyLevel
	ReportedAt time.Time
}

// ProfileRepository persists user profiles.
type ProfileRepository interface {
	// FindByUser returns the profile, or ErrProfileNotFound.
	FindByUser(ctx context.Context, userID uuid.UUID) (*Profile, error)
}

// EnergyStateRepository persists the per-user energy record.
type EnergyStateRepository interface {
	// Get returns the latest energy state. Missing users get the default
	// level with a zero ReportedAt.
	Get(ctx context.Context, userID uuid.UUID) (EnergyState, error)

	// Set stores a new reading, shifting the previous level into
	// PriorLevel.
	Set(ctx context.Context, userID uuid.UUID, level EnergyLevel, reportedAt time.Time) error
}
