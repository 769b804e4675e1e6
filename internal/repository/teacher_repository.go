package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/weekend-academy-api/internal/models"
)

const teacherColumns = `id, full_name, email, password_hash, course_id, teacher_role, created_at, updated_at`

// TeacherRepository persists teachers and their course roles.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs the repository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

func (r *TeacherRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID fetches a teacher. sql.ErrNoRows is returned unwrapped.
func (r *TeacherRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Teacher, error) {
	query := `SELECT ` + teacherColumns + ` FROM teachers WHERE id = $1`
	var teacher models.Teacher
	if err := sqlx.GetContext(ctx, r.exec(exec), &teacher, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find teacher: %w", err)
	}
	return &teacher, nil
}

// FindByEmail fetches a teacher for authentication.
func (r *TeacherRepository) FindByEmail(ctx context.Context, email string) (*models.Teacher, error) {
	query := `SELECT ` + teacherColumns + ` FROM teachers WHERE LOWER(email) = LOWER($1) LIMIT 1`
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find teacher by email: %w", err)
	}
	return &teacher, nil
}

// LockByIDs locks the given teacher rows in id order and returns them.
func (r *TeacherRepository) LockByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.Teacher, error) {
	query := `SELECT ` + teacherColumns + ` FROM teachers WHERE id = ANY($1) ORDER BY id FOR UPDATE`
	var teachers []models.Teacher
	if err := sqlx.SelectContext(ctx, r.exec(exec), &teachers, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("lock teachers: %w", err)
	}
	return teachers, nil
}

// UpdateRole sets the course attachment and role; nil values detach the teacher.
func (r *TeacherRepository) UpdateRole(ctx context.Context, exec sqlx.ExtContext, id string, courseID *string, role *models.TeacherRole, updatedAt time.Time) error {
	const query = `UPDATE teachers SET course_id = $2, teacher_role = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, courseID, role, updatedAt); err != nil {
		return fmt.Errorf("update teacher role: %w", err)
	}
	return nil
}

// CountHeads returns how many HEAD teachers the course has.
func (r *TeacherRepository) CountHeads(ctx context.Context, exec sqlx.ExtContext, courseID string) (int, error) {
	const query = `SELECT COUNT(*) FROM teachers WHERE course_id = $1 AND teacher_role = 'HEAD'`
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, courseID); err != nil {
		return 0, fmt.Errorf("count head teachers: %w", err)
	}
	return count, nil
}
