package domain

import (
	"time"

	"github.com/google/uuid"
)

// Category classifies a work item. Weights feed the priority scorer;
// deep-work categories need high energy to be scheduled well.
type Category string

const (
	CategoryExamPrep   Category = "exam_prep"
	CategoryProject    Category = "project"
	CategoryProblemSet Category = "problem_set"
	CategoryEssay      Category = "essay"
	CategoryReading    Category = "reading"
	CategoryAdmin      Category = "admin"
)

// IsDeepWork reports whether the category demands sustained focus.
func (c Category) IsDeepWork() bool {
	switch c {
	case CategoryExamPrep, CategoryProject, CategoryEssay:
		return true
	default:
		return false
	}
}

// SchedulingStatus tracks whether the planner has placed a work item.
type SchedulingStatus string

const (
	SchedulingStatusUnscheduled SchedulingStatus = "unscheduled"
	SchedulingStatusScheduled   SchedulingStatus = "scheduled"
	SchedulingStatusDone        SchedulingStatus = "done"
)

// WorkItem is a read model of an assignment or task. Its lifecycle is
// owned by the coursework collaborator; the rebalancing engine only reads.
type WorkItem struct {
	ID              uuid.UUID
	OwnerID         uuid.UUID
	CourseID        uuid.UUID
	Title           string
	Category        Category
	DueAt           *time.Time
	EstimateMinutes int
	GradeWeight     float64
	Status          SchedulingStatus
	Difficulty      int // 1-5, hints the chunk planner
	Interest        int // 1-5
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsDue reports whether the item has a deadline.
func (w *WorkItem) IsDue() bool { return w.DueAt != nil }

// Course carries the grade and schedule metadata the scorer reads.
type Course struct {
	ID           uuid.UUID
	OwnerID      uuid.UUID
	Code         string
	Name         string
	Timezone     string
	CurrentGrade float64 // 0-100, negative when unknown
	Major        bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasGrade reports whether a current grade is known for the course.
func (c *Course) HasGrade() bool { return c.CurrentGrade >= 0 }
