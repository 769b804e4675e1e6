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

// AttendanceRepository persists attendance marks.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

func (r *AttendanceRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Upsert records the mark for (student, session, date), overwriting status,
// scan time and marker of an existing row. The stored row is returned.
func (r *AttendanceRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, mark *models.Attendance) (*models.Attendance, error) {
	if mark.ID == "" {
		mark.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	const query = `INSERT INTO attendance (id, student_id, session_id, date, status, scan_time, marked_by_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
ON CONFLICT (student_id, session_id, date)
DO UPDATE SET status = EXCLUDED.status, scan_time = EXCLUDED.scan_time, marked_by_id = EXCLUDED.marked_by_id, updated_at = EXCLUDED.updated_at
RETURNING id, student_id, session_id, date, status, scan_time, marked_by_id, created_at, updated_at`
	var stored models.Attendance
	if err := sqlx.GetContext(ctx, r.exec(exec), &stored, query,
		mark.ID, mark.StudentID, mark.SessionID, mark.Date, mark.Status, mark.ScanTime, mark.MarkedByID, now); err != nil {
		return nil, fmt.Errorf("upsert attendance: %w", err)
	}
	return &stored, nil
}

// InsertAbsentIfMissing writes an ABSENT mark unless one exists already for
// the day. It reports whether a row was inserted.
func (r *AttendanceRepository) InsertAbsentIfMissing(ctx context.Context, exec sqlx.ExtContext, studentID, sessionID string, date time.Time, markedByID string) (bool, error) {
	now := time.Now().UTC()
	const query = `INSERT INTO attendance (id, student_id, session_id, date, status, scan_time, marked_by_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, 'ABSENT', NULL, $5, $6, $6)
ON CONFLICT (student_id, session_id, date) DO NOTHING
RETURNING id`
	var id string
	if err := sqlx.GetContext(ctx, r.exec(exec), &id, query, uuid.NewString(), studentID, sessionID, date, markedByID, now); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("insert absent mark: %w", err)
	}
	return true, nil
}

// ListBySessionAndDate returns the marks of a session day with student identity.
func (r *AttendanceRepository) ListBySessionAndDate(ctx context.Context, sessionID string, date time.Time) ([]models.AttendanceReportRow, error) {
	const query = `
SELECT
	a.id AS attendance_id,
	a.student_id,
	s.student_number,
	TRIM(CONCAT_WS(' ', s.first_name, s.last_name, s.surname)) AS student_name,
	a.status,
	a.scan_time,
	a.marked_by_id
FROM attendance a
JOIN students s ON s.id = a.student_id
WHERE a.session_id = $1 AND a.date = $2
ORDER BY s.student_number ASC`
	var rows []models.AttendanceReportRow
	if err := r.db.SelectContext(ctx, &rows, query, sessionID, date); err != nil {
		return nil, fmt.Errorf("list session attendance: %w", err)
	}
	return rows, nil
}
