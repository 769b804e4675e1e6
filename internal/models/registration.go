package models

import "time"

// RegistrationStatus tracks the review lifecycle. Only PENDING moves.
type RegistrationStatus string

const (
	RegistrationPending  RegistrationStatus = "PENDING"
	RegistrationApproved RegistrationStatus = "APPROVED"
	RegistrationRejected RegistrationStatus = "REJECTED"
	RegistrationExpired  RegistrationStatus = "EXPIRED"
)

// Registration is a prospective student's application for a session pair.
type Registration struct {
	ID                string             `db:"id" json:"id"`
	Surname           string             `db:"surname" json:"surname"`
	FirstName         string             `db:"first_name" json:"first_name"`
	LastName          *string            `db:"last_name" json:"last_name,omitempty"`
	Email             string             `db:"email" json:"email"`
	PhoneNumber       *string            `db:"phone_number" json:"phone_number,omitempty"`
	CourseID          string             `db:"course_id" json:"course_id"`
	SaturdaySessionID string             `db:"saturday_session_id" json:"saturday_session_id"`
	SundaySessionID   string             `db:"sunday_session_id" json:"sunday_session_id"`
	PasswordHash      string             `db:"password_hash" json:"-"`
	PaymentReceiptURL string             `db:"payment_receipt_url" json:"payment_receipt_url"`
	PaymentReceiptNo  string             `db:"payment_receipt_no" json:"payment_receipt_no"`
	PhotoURL          *string            `db:"photo_url" json:"photo_url,omitempty"`
	Status            RegistrationStatus `db:"status" json:"status"`
	ReviewedByID      *string            `db:"reviewed_by_id" json:"reviewed_by_id,omitempty"`
	ReviewedAt        *time.Time         `db:"reviewed_at" json:"reviewed_at,omitempty"`
	RejectionReason   *string            `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CreatedAt         time.Time          `db:"created_at" json:"created_at"`
}

// FullName joins the name parts for emails and reports.
func (r *Registration) FullName() string {
	name := r.FirstName
	if r.LastName != nil && *r.LastName != "" {
		name += " " + *r.LastName
	}
	return name + " " + r.Surname
}

// RegistrationFilter narrows registration listings.
type RegistrationFilter struct {
	CourseID string
	Status   RegistrationStatus
	Search   string
	Page     int
	PageSize int
}
