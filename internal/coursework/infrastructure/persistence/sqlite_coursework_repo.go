package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/felixgeelhaar/studyflow/internal/coursework/domain"
	sharedPersistence "github.com/felixgeelhaar/studyflow/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
)

// SQLiteWorkItemRepository implements the read-only work item surface
// for SQLite.
type SQLiteWorkItemRepository struct {
	db *sql.DB
}

// NewSQLiteWorkItemRepository creates a new SQLite work item repository.
func NewSQLiteWorkItemRepository(db *sql.DB) *SQLiteWorkItemRepository {
	return &SQLiteWorkItemRepository{db: db}
}

// FindByID returns a work item, or ErrWorkItemNotFound.
func (r *SQLiteWorkItemRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.WorkItem, error) {
	query := `
		SELECT id, owner_id, course_id, title, category, due_at, estimate_minutes,
		       grade_weight, status, difficulty, interest, created_at, updated_at
		FROM work_items WHERE id = ?
	`
	row := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryRowContext(ctx, query, id.String())
	item, err := scanSQLiteWorkItem(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrWorkItemNotFound
		}
		return nil, err
	}
	return item, nil
}

// ListUpcoming returns unfinished items due before the horizon, plus items
// with no due date, ordered by due date.
func (r *SQLiteWorkItemRepository) ListUpcoming(ctx context.Context, ownerID uuid.UUID, horizon time.Time) ([]*domain.WorkItem, error) {
	query := `
		SELECT id, owner_id, course_id, title, category, due_at, estimate_minutes,
		       grade_weight, status, difficulty, interest, created_at, updated_at
		FROM work_items
		WHERE owner_id = ? AND status != 'done'
		  AND (due_at IS NULL OR due_at < ?)
		ORDER BY due_at IS NULL, due_at
	`
	rows, err := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryContext(
		ctx, query, ownerID.String(), horizon.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.WorkItem
	for rows.Next() {
		item, err := scanSQLiteWorkItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListOwnersWithUpcoming returns owners that have unfinished work due
// before the horizon.
func (r *SQLiteWorkItemRepository) ListOwnersWithUpcoming(ctx context.Context, horizon time.Time) ([]uuid.UUID, error) {
	query := `
		SELECT DISTINCT owner_id
		FROM work_items
		WHERE status != 'done' AND due_at IS NOT NULL AND due_at < ?
	`
	rows, err := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryContext(
		ctx, query, horizon.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owners []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, err
		}
		owners = append(owners, id)
	}
	return owners, rows.Err()
}

func scanSQLiteWorkItem(scan func(dest ...any) error) (*domain.WorkItem, error) {
	var item domain.WorkItem
	var idStr, ownerStr, courseStr, category, status string
	var dueAt sql.NullString
	var createdAt, updatedAt string
	err := scan(
		&idStr, &ownerStr, &courseStr, &item.Title, &category, &dueAt,
		&item.EstimateMinutes, &item.GradeWeight, &status,
		&item.Difficulty, &item.Interest, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if item.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if item.OwnerID, err = uuid.Parse(ownerStr); err != nil {
		return nil, err
	}
	if item.CourseID, err = uuid.Parse(courseStr); err != nil {
		return nil, err
	}
	item.Category = domain.Category(category)
	item.Status = domain.SchedulingStatus(status)
	if dueAt.Valid {
		due, err := time.Parse(time.RFC3339Nano, dueAt.String)
		if err != nil {
			return nil, err
		}
		item.DueAt = &due
	}
	if item.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}
	if item.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, err
	}
	return &item, nil
}

// SQLiteCourseRepository implements the read-only course surface for SQLite.
type SQLiteCourseRepository struct {
	db *sql.DB
}

// NewSQLiteCourseRepository creates a new SQLite course repository.
func NewSQLiteCourseRepository(db *sql.DB) *SQLiteCourseRepository {
	return &SQLiteCourseRepository{db: db}
}

// FindByID returns a course, or ErrCourseNotFound.
func (r *SQLiteCourseRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Course, error) {
	query := `
		SELECT id, owner_id, code, name, timezone, current_grade, major,
		       created_at, updated_at
		FROM courses WHERE id = ?
	`
	var course domain.Course
	var idStr, ownerStr, createdAt, updatedAt string
	var major int
	err := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryRowContext(ctx, query, id.String()).Scan(
		&idStr, &ownerStr, &course.Code, &course.Name, &course.Timezone,
		&course.CurrentGrade, &major, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCourseNotFound
	}
	if err != nil {
		return nil, err
	}
	if course.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if course.OwnerID, err = uuid.Parse(ownerStr); err != nil {
		return nil, err
	}
	course.Major = major != 0
	if course.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}
	if course.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, err
	}
	return &course, nil
}
