package models

import "time"

// ReassignmentStatus tracks a session move request.
type ReassignmentStatus string

const (
	ReassignmentPending  ReassignmentStatus = "PENDING"
	ReassignmentApproved ReassignmentStatus = "APPROVED"
	ReassignmentDenied   ReassignmentStatus = "DENIED"
)

// ReassignmentRequest asks to move a student to another session of the same day.
type ReassignmentRequest struct {
	ID            string             `db:"id" json:"id"`
	StudentID     string             `db:"student_id" json:"student_id"`
	FromSessionID string             `db:"from_session_id" json:"from_session_id"`
	ToSessionID   string             `db:"to_session_id" json:"to_session_id"`
	Day           Day                `db:"day" json:"day"`
	Status        ReassignmentStatus `db:"status" json:"status"`
	Reason        *string            `db:"reason" json:"reason,omitempty"`
	RequestedAt   time.Time          `db:"requested_at" json:"requested_at"`
	ReviewedByID  *string            `db:"reviewed_by_id" json:"reviewed_by_id,omitempty"`
	ReviewedAt    *time.Time         `db:"reviewed_at" json:"reviewed_at,omitempty"`
}

// ReassignmentFilter narrows reassignment listings.
type ReassignmentFilter struct {
	CourseID  string
	StudentID string
	Status    ReassignmentStatus
	Page      int
	PageSize  int
}
