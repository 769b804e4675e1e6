package dto

import (
	"time"

	"github.com/noah-isme/weekend-academy-api/internal/models"
)

// SubmitRegistrationRequest is the public enrollment form.
type SubmitRegistrationRequest struct {
	Surname           string  `json:"surname" validate:"required,max=100"`
	FirstName         string  `json:"firstName" validate:"required,max=100"`
	LastName          *string `json:"lastName" validate:"omitempty,max=100"`
	Email             string  `json:"email" validate:"required,email"`
	PhoneNumber       *string `json:"phoneNumber" validate:"omitempty,max=32"`
	CourseID          string  `json:"courseId" validate:"required"`
	SaturdaySessionID string  `json:"saturdaySessionId" validate:"required"`
	SundaySessionID   string  `json:"sundaySessionId" validate:"required"`
	Password          string  `json:"password" validate:"required,min=8,max=72"`
	PaymentReceiptURL string  `json:"paymentReceiptUrl" validate:"required"`
	PaymentReceiptNo  string  `json:"paymentReceiptNo" validate:"required,max=100"`
	PhotoURL          *string `json:"photoUrl"`
}

// RegisteredSessions echoes the chosen session pair.
type RegisteredSessions struct {
	Saturday models.Session `json:"saturday"`
	Sunday   models.Session `json:"sunday"`
}

// SubmitRegistrationResponse acknowledges a stored registration.
type SubmitRegistrationResponse struct {
	RegistrationID string             `json:"registrationId"`
	Email          string             `json:"email"`
	Sessions       RegisteredSessions `json:"sessions"`
	SubmittedAt    time.Time          `json:"submittedAt"`
}

// ApproveRegistrationResponse identifies the created student.
type ApproveRegistrationResponse struct {
	RegistrationID string `json:"registrationId,omitempty"`
	StudentID      string `json:"studentId"`
	StudentNumber  string `json:"studentNumber"`
}

// BulkApproveRequest lists registrations to approve together.
type BulkApproveRequest struct {
	RegistrationIDs []string `json:"registrationIds" validate:"required,min=1,max=200,dive,required"`
}

// BulkApproveResponse splits the outcome per registration.
type BulkApproveResponse struct {
	Approved []ApproveRegistrationResponse `json:"approved"`
	Failed   []FailedItem                  `json:"failed"`
}

// RejectRegistrationRequest carries the mandatory rejection reason.
type RejectRegistrationRequest struct {
	Reason string `json:"reason"`
}

// ExpireRegistrationsRequest overrides the configured expiry threshold, e.g. "72h".
type ExpireRegistrationsRequest struct {
	OlderThan string `json:"olderThan"`
}

// ExpireRegistrationsResponse lists expired registrations.
type ExpireRegistrationsResponse struct {
	Expired         int      `json:"expired"`
	RegistrationIDs []string `json:"registrationIds"`
}
