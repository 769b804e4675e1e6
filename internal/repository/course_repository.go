package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/weekend-academy-api/internal/models"
)

const courseColumns = `id, name, description, status, head_teacher_id, end_date, created_at, updated_at`

// CourseRepository persists courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

func (r *CourseRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID fetches a course. sql.ErrNoRows is returned unwrapped.
func (r *CourseRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Course, error) {
	return r.get(ctx, exec, `SELECT `+courseColumns+` FROM courses WHERE id = $1`, id)
}

// LockByID fetches a course holding a row lock until the transaction ends.
func (r *CourseRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Course, error) {
	return r.get(ctx, exec, `SELECT `+courseColumns+` FROM courses WHERE id = $1 FOR UPDATE`, id)
}

func (r *CourseRepository) get(ctx context.Context, exec sqlx.ExtContext, query, id string) (*models.Course, error) {
	var course models.Course
	if err := sqlx.GetContext(ctx, r.exec(exec), &course, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get course: %w", err)
	}
	return &course, nil
}

// ListActive returns the public catalog.
func (r *CourseRepository) ListActive(ctx context.Context) ([]models.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE status = 'ACTIVE' ORDER BY name ASC`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query); err != nil {
		return nil, fmt.Errorf("list active courses: %w", err)
	}
	return courses, nil
}

// UpdateStatus changes the lifecycle state and returns the updated row.
func (r *CourseRepository) UpdateStatus(ctx context.Context, id string, status models.CourseStatus, updatedAt time.Time) (*models.Course, error) {
	query := `UPDATE courses SET status = $2, updated_at = $3 WHERE id = $1 RETURNING ` + courseColumns
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id, status, updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("update course status: %w", err)
	}
	return &course, nil
}

// SetHeadTeacher repoints the course head.
func (r *CourseRepository) SetHeadTeacher(ctx context.Context, exec sqlx.ExtContext, courseID, teacherID string, updatedAt time.Time) error {
	const query = `UPDATE courses SET head_teacher_id = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, courseID, teacherID, updatedAt); err != nil {
		return fmt.Errorf("set head teacher: %w", err)
	}
	return nil
}

// CountClasses returns how many classes the course owns.
func (r *CourseRepository) CountClasses(ctx context.Context, exec sqlx.ExtContext, courseID string) (int, error) {
	const query = `SELECT COUNT(*) FROM classes WHERE course_id = $1`
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, courseID); err != nil {
		return 0, fmt.Errorf("count course classes: %w", err)
	}
	return count, nil
}

// Delete removes a course row.
func (r *CourseRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `DELETE FROM courses WHERE id = $1`
	res, err := r.exec(exec).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
