package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/weekend-academy-api/internal/models"
)

const studentColumns = `id, student_number, qr_uuid, surname, first_name, last_name, email, phone_number, password_hash,
	class_id, saturday_session_id, sunday_session_id, photo_url, created_at, updated_at`

// StudentRepository persists enrolled students.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

func (r *StudentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// EmailExists reports whether a student already uses email.
func (r *StudentRepository) EmailExists(ctx context.Context, exec sqlx.ExtContext, email string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM students WHERE LOWER(email) = LOWER($1))`
	var exists bool
	if err := sqlx.GetContext(ctx, r.exec(exec), &exists, query, email); err != nil {
		return false, fmt.Errorf("check student email: %w", err)
	}
	return exists, nil
}

// NextStudentNumber advances the student_number counter. The upsert keeps the
// counter row locked until the surrounding transaction ends; the first value
// continues from the highest numeric suffix already issued.
func (r *StudentRepository) NextStudentNumber(ctx context.Context, exec sqlx.ExtContext) (int64, error) {
	const query = `INSERT INTO counters (name, value)
VALUES ('student_number', (SELECT COALESCE(MAX(CAST(substring(student_number FROM '([0-9]+)$') AS BIGINT)), 0) FROM students) + 1)
ON CONFLICT (name) DO UPDATE SET value = counters.value + 1
RETURNING value`
	var next int64
	if err := sqlx.GetContext(ctx, r.exec(exec), &next, query); err != nil {
		return 0, fmt.Errorf("next student number: %w", err)
	}
	return next, nil
}

// Create inserts a student row.
func (r *StudentRepository) Create(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	if student.QRUUID == "" {
		student.QRUUID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, student_number, qr_uuid, surname, first_name, last_name, email, phone_number, password_hash,
	class_id, saturday_session_id, sunday_session_id, photo_url, created_at, updated_at)
VALUES (:id, :student_number, :qr_uuid, :surname, :first_name, :last_name, :email, :phone_number, :password_hash,
	:class_id, :saturday_session_id, :sunday_session_id, :photo_url, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, student); err != nil {
		return fmt.Errorf("insert student: %w", err)
	}
	return nil
}

// FindByID fetches a student. sql.ErrNoRows is returned unwrapped.
func (r *StudentRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE id = $1`
	var student models.Student
	if err := sqlx.GetContext(ctx, r.exec(exec), &student, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student: %w", err)
	}
	return &student, nil
}

// LockByID fetches a student holding its row lock for the rest of the
// transaction.
func (r *StudentRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE id = $1 FOR UPDATE`
	var student models.Student
	if err := sqlx.GetContext(ctx, r.exec(exec), &student, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock student: %w", err)
	}
	return &student, nil
}

// FindByEmail fetches a student for authentication.
func (r *StudentRepository) FindByEmail(ctx context.Context, email string) (*models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE LOWER(email) = LOWER($1) LIMIT 1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student by email: %w", err)
	}
	return &student, nil
}

// ListIDsBySession returns students whose day pointer targets sessionID.
func (r *StudentRepository) ListIDsBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string, day models.Day) ([]string, error) {
	column := "sunday_session_id"
	if day == models.DaySaturday {
		column = "saturday_session_id"
	}
	query := fmt.Sprintf(`SELECT id FROM students WHERE %s = $1 ORDER BY student_number`, column)
	var ids []string
	if err := sqlx.SelectContext(ctx, r.exec(exec), &ids, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session students: %w", err)
	}
	return ids, nil
}

// MoveSession repoints the student's day session. The class follows the
// Saturday session, so classID is only applied for Saturday moves.
func (r *StudentRepository) MoveSession(ctx context.Context, exec sqlx.ExtContext, studentID string, day models.Day, sessionID, classID string, updatedAt time.Time) error {
	var (
		query string
		args  []interface{}
	)
	if day == models.DaySaturday {
		query = `UPDATE students SET saturday_session_id = $2, class_id = $3, updated_at = $4 WHERE id = $1`
		args = []interface{}{studentID, sessionID, classID, updatedAt}
	} else {
		query = `UPDATE students SET sunday_session_id = $2, updated_at = $3 WHERE id = $1`
		args = []interface{}{studentID, sessionID, updatedAt}
	}
	if _, err := r.exec(exec).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("move student session: %w", err)
	}
	return nil
}
