package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrWorkItemNotFound = errors.New("work item not found")
	ErrCourseNotFound   = errors.New("course not found")
)

// WorkItemRepository is the read-only surface of the coursework store.
type WorkItemRepository interface {
	// FindByID returns a work item, or ErrWorkItemNotFound.
	FindByID(ctx context.Context, id uuid.UUID) (*WorkItem, error)

	// ListUpcoming returns unfinished items for an owner due before the
	// horizon, ordered by due date. Items without a due date sort last.
	ListUpcoming(ctx context.Context, ownerID uuid.UUID, horizon time.Time) ([]*WorkItem, error)

	// ListOwnersWithUpcoming returns owners that have unfinished work due
	// before the horizon. Drives the daily refresh batch.
	ListOwnersWithUpcoming(ctx context.Context, horizon time.Time) ([]uuid.UUID, error)
}

// CourseRepository is the read-only surface of the course store.
type CourseRepository interface {
	// FindByID returns a course, or ErrCourseNotFound.
	FindByID(ctx context.Context, id uuid.UUID) (*Course, error)
}
