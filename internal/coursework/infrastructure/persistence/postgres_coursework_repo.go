package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/studyflow/internal/coursework/domain"
	sharedPersistence "github.com/felixgeelhaar/studyflow/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresWorkItemRepository implements the read-only work item surface
// against the coursework tables owned by the assignment collaborator.
type PostgresWorkItemRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresWorkItemRepository creates a new PostgreSQL work item repository.
func NewPostgresWorkItemRepository(pool *pgxpool.Pool) *PostgresWorkItemRepository {
	return &PostgresWorkItemRepository{pool: pool}
}

const workItemColumns = `
	id, owner_id, course_id, title, category, due_at, estimate_minutes,
	grade_weight, status, difficulty, interest, created_at, updated_at
`

// FindByID returns a work item, or ErrWorkItemNotFound.
func (r *PostgresWorkItemRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items WHERE id = $1`
	item, err := scanWorkItem(sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWorkItemNotFound
		}
		return nil, err
	}
	return item, nil
}

// ListUpcoming returns unfinished items due before the horizon, plus items
// with no due date, ordered by due date.
func (r *PostgresWorkItemRepository) ListUpcoming(ctx context.Context, ownerID uuid.UUID, horizon time.Time) ([]*domain.WorkItem, error) {
	query := `
		SELECT ` + workItemColumns + `
		FROM work_items
		WHERE owner_id = $1 AND status != 'done'
		  AND (due_at IS NULL OR due_at < $2)
		ORDER BY due_at NULLS LAST
	`
	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx, query, ownerID, horizon)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.WorkItem
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListOwnersWithUpcoming returns owners that have unfinished work due
// before the horizon.
func (r *PostgresWorkItemRepository) ListOwnersWithUpcoming(ctx context.Context, horizon time.Time) ([]uuid.UUID, error) {
	query := `
		SELECT DISTINCT owner_id
		FROM work_items
		WHERE status != 'done' AND due_at IS NOT NULL AND due_at < $1
	`
	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx, query, horizon)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owners []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		owners = append(owners, id)
	}
	return owners, rows.Err()
}

func scanWorkItem(row pgx.Row) (*domain.WorkItem, error) {
	var item domain.WorkItem
	var category, status string
	err := row.Scan(
		&item.ID, &item.OwnerID, &item.CourseID, &item.Title, &category,
		&item.DueAt, &item.EstimateMinutes, &item.GradeWeight, &status,
		&item.Difficulty, &item.Interest, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	item.Category = domain.Category(category)
	item.Status = domain.SchedulingStatus(status)
	return &item, nil
}

// PostgresCourseRepository implements the read-only course surface.
type PostgresCourseRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresCourseRepository creates a new PostgreSQL course repository.
func NewPostgresCourseRepository(pool *pgxpool.Pool) *PostgresCourseRepository {
	return &PostgresCourseRepository{pool: pool}
}

// FindByID returns a course, or ErrCourseNotFound.
func (r *PostgresCourseRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Course, error) {
	query := `
		SELECT id, owner_id, code, name, timezone, current_grade, major,
		       created_at, updated_at
		FROM courses
		WHERE id = $1
	`
	var course domain.Course
	err := sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx, query, id).Scan(
		&course.ID, &course.OwnerID, &course.Code, &course.Name, &course.Timezone,
		&course.CurrentGrade, &course.Major, &course.CreatedAt, &course.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCourseNotFound
	}
	if err != nil {
		return nil, err
	}
	return &course, nil
}
