package models

import "time"

// Student is an enrolled learner created from an approved registration.
type Student struct {
	ID                string    `db:"id" json:"id"`
	StudentNumber     string    `db:"student_number" json:"student_number"`
	QRUUID            string    `db:"qr_uuid" json:"-"`
	Surname           string    `db:"surname" json:"surname"`
	FirstName         string    `db:"first_name" json:"first_name"`
	LastName          *string   `db:"last_name" json:"last_name,omitempty"`
	Email             string    `db:"email" json:"email"`
	PhoneNumber       *string   `db:"phone_number" json:"phone_number,omitempty"`
	PasswordHash      string    `db:"password_hash" json:"-"`
	ClassID           string    `db:"class_id" json:"class_id"`
	SaturdaySessionID string    `db:"saturday_session_id" json:"saturday_session_id"`
	SundaySessionID   string    `db:"sunday_session_id" json:"sunday_session_id"`
	PhotoURL          *string   `db:"photo_url" json:"photo_url,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// FullName joins the name parts.
func (s *Student) FullName() string {
	name := s.FirstName
	if s.LastName != nil && *s.LastName != "" {
		name += " " + *s.LastName
	}
	return name + " " + s.Surname
}

// SessionFor returns the student's assigned session for day.
func (s *Student) SessionFor(day Day) string {
	if day == DaySaturday {
		return s.SaturdaySessionID
	}
	return s.SundaySessionID
}

// QRPayload is the JSON document encoded in a student's QR code.
type QRPayload struct {
	UUID      string `json:"uuid"`
	StudentID string `json:"studentId"`
}
