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

const registrationColumns = `id, surname, first_name, last_name, email, phone_number, course_id, saturday_session_id, sunday_session_id,
	password_hash, payment_receipt_url, payment_receipt_no, photo_url, status, reviewed_by_id, reviewed_at, rejection_reason, created_at`

// RegistrationRepository persists student registrations.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository constructs the repository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

func (r *RegistrationRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a PENDING registration.
func (r *RegistrationRepository) Create(ctx context.Context, exec sqlx.ExtContext, reg *models.Registration) error {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	if reg.Status == "" {
		reg.Status = models.RegistrationPending
	}
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO student_registrations (id, surname, first_name, last_name, email, phone_number, course_id,
	saturday_session_id, sunday_session_id, password_hash, payment_receipt_url, payment_receipt_no, photo_url, status, created_at)
VALUES (:id, :surname, :first_name, :last_name, :email, :phone_number, :course_id,
	:saturday_session_id, :sunday_session_id, :password_hash, :payment_receipt_url, :payment_receipt_no, :photo_url, :status, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, reg); err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

// FindByID fetches a registration. sql.ErrNoRows is returned unwrapped.
func (r *RegistrationRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Registration, error) {
	return r.get(ctx, exec, `SELECT `+registrationColumns+` FROM student_registrations WHERE id = $1`, id)
}

// LockByID fetches a registration holding its row lock.
func (r *RegistrationRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Registration, error) {
	return r.get(ctx, exec, `SELECT `+registrationColumns+` FROM student_registrations WHERE id = $1 FOR UPDATE`, id)
}

func (r *RegistrationRepository) get(ctx context.Context, exec sqlx.ExtContext, query, id string) (*models.Registration, error) {
	var reg models.Registration
	if err := sqlx.GetContext(ctx, r.exec(exec), &reg, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return &reg, nil
}

// HasPendingEmail reports whether a PENDING registration uses email.
func (r *RegistrationRepository) HasPendingEmail(ctx context.Context, exec sqlx.ExtContext, email string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM student_registrations WHERE email = $1 AND status = 'PENDING')`
	var exists bool
	if err := sqlx.GetContext(ctx, r.exec(exec), &exists, query, email); err != nil {
		return false, fmt.Errorf("check pending registration email: %w", err)
	}
	return exists, nil
}

// DeleteClosedByEmail removes REJECTED or EXPIRED registrations so the email can apply again.
func (r *RegistrationRepository) DeleteClosedByEmail(ctx context.Context, exec sqlx.ExtContext, email string) (int64, error) {
	const query = `DELETE FROM student_registrations WHERE email = $1 AND status IN ('REJECTED', 'EXPIRED')`
	res, err := r.exec(exec).ExecContext(ctx, query, email)
	if err != nil {
		return 0, fmt.Errorf("delete closed registrations: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

// MarkReviewed moves a registration to a terminal status.
func (r *RegistrationRepository) MarkReviewed(ctx context.Context, exec sqlx.ExtContext, id string, status models.RegistrationStatus, reviewerID string, reason *string, reviewedAt time.Time) error {
	const query = `UPDATE student_registrations
SET status = $2, reviewed_by_id = $3, rejection_reason = $4, reviewed_at = $5
WHERE id = $1 AND status = 'PENDING'`
	res, err := r.exec(exec).ExecContext(ctx, query, id, status, reviewerID, reason, reviewedAt)
	if err != nil {
		return fmt.Errorf("update registration status: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ExpireCreatedBefore flips PENDING registrations older than cutoff to EXPIRED.
func (r *RegistrationRepository) ExpireCreatedBefore(ctx context.Context, exec sqlx.ExtContext, cutoff time.Time, reviewerID string, reviewedAt time.Time) ([]string, error) {
	const query = `UPDATE student_registrations
SET status = 'EXPIRED', reviewed_by_id = $2, reviewed_at = $3
WHERE status = 'PENDING' AND created_at < $1
RETURNING id`
	var ids []string
	if err := sqlx.SelectContext(ctx, r.exec(exec), &ids, query, cutoff, reviewerID, reviewedAt); err != nil {
		return nil, fmt.Errorf("expire registrations: %w", err)
	}
	return ids, nil
}

// List returns registrations matching filter with the total count.
func (r *RegistrationRepository) List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, int, error) {
	var conditions []string
	var args []interface{}

	if filter.CourseID != "" {
		args = append(args, filter.CourseID)
		conditions = append(conditions, fmt.Sprintf("course_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(email LIKE $%d OR LOWER(surname) LIKE $%d OR LOWER(first_name) LIKE $%d)", len(args), len(args), len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM student_registrations"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count registrations: %w", err)
	}

	_, pageSize, offset := models.NormalizePage(filter.Page, filter.PageSize)
	args = append(args, pageSize, offset)
	query := fmt.Sprintf("SELECT %s FROM student_registrations%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		registrationColumns, where, len(args)-1, len(args))

	var items []models.Registration
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}
	return items, total, nil
}
