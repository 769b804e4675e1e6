package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/weekend-academy-api/internal/models"
)

const sessionColumns = `s.id, s.class_id, c.course_id, s.day, to_char(s.start_time, 'HH24:MI') AS start_time, to_char(s.end_time, 'HH24:MI') AS end_time, s.capacity`

// availabilitySelect derives the seat ledger of each session. Approved students
// are counted through the day column matching the session day.
const availabilitySelect = `
SELECT
	s.id AS session_id,
	s.class_id,
	c.name AS class_name,
	c.course_id,
	s.day,
	to_char(s.start_time, 'HH24:MI') AS start_time,
	to_char(s.end_time, 'HH24:MI') AS end_time,
	s.capacity,
	(SELECT COUNT(*) FROM students st
		WHERE (s.day = 'SATURDAY' AND st.saturday_session_id = s.id)
		   OR (s.day = 'SUNDAY' AND st.sunday_session_id = s.id)) AS approved,
	(SELECT COUNT(*) FROM student_registrations r
		WHERE r.status = 'PENDING'
		  AND (r.saturday_session_id = s.id OR r.sunday_session_id = s.id)) AS pending_registrations,
	(SELECT COUNT(*) FROM reassignment_requests rr
		WHERE rr.status = 'PENDING' AND rr.to_session_id = s.id) AS pending_reassignments
FROM sessions s
JOIN classes c ON c.id = s.class_id`

// SessionRepository reads sessions and their derived availability.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID returns a session with its course id. sql.ErrNoRows is returned unwrapped.
func (r *SessionRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions s JOIN classes c ON c.id = s.class_id WHERE s.id = $1`
	var session models.Session
	if err := sqlx.GetContext(ctx, r.exec(exec), &session, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &session, nil
}

// ListByClassAndDay returns the sessions a class runs on day.
func (r *SessionRepository) ListByClassAndDay(ctx context.Context, exec sqlx.ExtContext, classID string, day models.Day) ([]models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions s JOIN classes c ON c.id = s.class_id WHERE s.class_id = $1 AND s.day = $2 ORDER BY s.start_time`
	var sessions []models.Session
	if err := sqlx.SelectContext(ctx, r.exec(exec), &sessions, query, classID, day); err != nil {
		return nil, fmt.Errorf("list class sessions: %w", err)
	}
	return sessions, nil
}

// LockSessions takes row locks on the given sessions in id order so that
// concurrent writers always acquire them in the same sequence.
func (r *SessionRepository) LockSessions(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]string, error) {
	const query = `SELECT id FROM sessions WHERE id = ANY($1) ORDER BY id FOR UPDATE`
	var locked []string
	if err := sqlx.SelectContext(ctx, r.exec(exec), &locked, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("lock sessions: %w", err)
	}
	return locked, nil
}

// Availability derives the seat ledger for a session.
func (r *SessionRepository) Availability(ctx context.Context, exec sqlx.ExtContext, id string) (*models.SessionAvailability, error) {
	query := availabilitySelect + `
WHERE s.id = $1`
	var item models.SessionAvailability
	if err := sqlx.GetContext(ctx, r.exec(exec), &item, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("session availability: %w", err)
	}
	return &item, nil
}

// AvailabilityByCourse derives the seat ledger for every session of a course.
func (r *SessionRepository) AvailabilityByCourse(ctx context.Context, courseID string) ([]models.SessionAvailability, error) {
	query := availabilitySelect + `
WHERE c.course_id = $1
ORDER BY s.day, s.start_time, c.name`
	var items []models.SessionAvailability
	if err := r.db.SelectContext(ctx, &items, query, courseID); err != nil {
		return nil, fmt.Errorf("course availability: %w", err)
	}
	return items, nil
}
