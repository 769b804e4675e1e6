package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/weekend-academy-api/internal/models"
)

const reassignmentColumns = `rr.id, rr.student_id, rr.from_session_id, rr.to_session_id, rr.day, rr.status, rr.reason, rr.requested_at, rr.reviewed_by_id, rr.reviewed_at`

// ReassignmentRepository persists session move requests.
type ReassignmentRepository struct {
	db *sqlx.DB
}

// NewReassignmentRepository constructs the repository.
func NewReassignmentRepository(db *sqlx.DB) *ReassignmentRepository {
	return &ReassignmentRepository{db: db}
}

func (r *ReassignmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a PENDING request. A second PENDING request of the same
// student and day violates reassignment_requests_pending_day_uidx.
func (r *ReassignmentRepository) Create(ctx context.Context, exec sqlx.ExtContext, req *models.ReassignmentRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = models.ReassignmentPending
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}
	const query = `INSERT INTO reassignment_requests (id, student_id, from_session_id, to_session_id, day, status, requested_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.exec(exec).ExecContext(ctx, query, req.ID, req.StudentID, req.FromSessionID, req.ToSessionID, req.Day, req.Status, req.RequestedAt); err != nil {
		return fmt.Errorf("insert reassignment request: %w", err)
	}
	return nil
}

// FindByID fetches a request. sql.ErrNoRows is returned unwrapped.
func (r *ReassignmentRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ReassignmentRequest, error) {
	return r.get(ctx, exec, `SELECT `+reassignmentColumns+` FROM reassignment_requests rr WHERE rr.id = $1`, id)
}

// LockByID fetches a request holding its row lock.
func (r *ReassignmentRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ReassignmentRequest, error) {
	return r.get(ctx, exec, `SELECT `+reassignmentColumns+` FROM reassignment_requests rr WHERE rr.id = $1 FOR UPDATE`, id)
}

func (r *ReassignmentRepository) get(ctx context.Context, exec sqlx.ExtContext, query, id string) (*models.ReassignmentRequest, error) {
	var req models.ReassignmentRequest
	if err := sqlx.GetContext(ctx, r.exec(exec), &req, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get reassignment request: %w", err)
	}
	return &req, nil
}

// HasPending reports whether the student already has a PENDING request on day.
func (r *ReassignmentRepository) HasPending(ctx context.Context, exec sqlx.ExtContext, studentID string, day models.Day) (bool, error) {
	const query = `SELECT EXISTS (
	SELECT 1 FROM reassignment_requests rr
	WHERE rr.student_id = $1 AND rr.status = 'PENDING' AND rr.day = $2
)`
	var exists bool
	if err := sqlx.GetContext(ctx, r.exec(exec), &exists, query, studentID, day); err != nil {
		return false, fmt.Errorf("check pending reassignment: %w", err)
	}
	return exists, nil
}

// MarkReviewed moves a PENDING request to APPROVED or DENIED.
func (r *ReassignmentRepository) MarkReviewed(ctx context.Context, exec sqlx.ExtContext, id string, status models.ReassignmentStatus, reviewerID string, reason *string, reviewedAt time.Time) error {
	const query = `UPDATE reassignment_requests
SET status = $2, reviewed_by_id = $3, reason = $4, reviewed_at = $5
WHERE id = $1 AND status = 'PENDING'`
	res, err := r.exec(exec).ExecContext(ctx, query, id, status, reviewerID, reason, reviewedAt)
	if err != nil {
		return fmt.Errorf("update reassignment status: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns requests matching filter with the total count. Course scoping
// follows the target session's class.
func (r *ReassignmentRepository) List(ctx context.Context, filter models.ReassignmentFilter) ([]models.ReassignmentRequest, int, error) {
	var conditions []string
	var args []interface{}

	if filter.CourseID != "" {
		args = append(args, filter.CourseID)
		conditions = append(conditions, fmt.Sprintf("c.course_id = $%d", len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("rr.student_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("rr.status = $%d", len(args)))
	}

	from := ` FROM reassignment_requests rr
JOIN sessions s ON s.id = rr.to_session_id
JOIN classes c ON c.id = s.class_id`
	if len(conditions) > 0 {
		from += "\nWHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*)"+from, args...); err != nil {
		return nil, 0, fmt.Errorf("count reassignment requests: %w", err)
	}

	_, pageSize, offset := models.NormalizePage(filter.Page, filter.PageSize)
	args = append(args, pageSize, offset)
	query := fmt.Sprintf("SELECT %s%s\nORDER BY rr.requested_at DESC LIMIT $%d OFFSET $%d", reassignmentColumns, from, len(args)-1, len(args))

	var items []models.ReassignmentRequest
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list reassignment requests: %w", err)
	}
	return items, total, nil
}
