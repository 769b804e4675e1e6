package models

import "time"

// AttendanceStatus is the outcome recorded for a student on a session day.
type AttendanceStatus string

const (
	AttendancePresent      AttendanceStatus = "PRESENT"
	AttendanceAbsent       AttendanceStatus = "ABSENT"
	AttendanceWrongSession AttendanceStatus = "WRONG_SESSION"
)

// Valid reports whether the status is a known value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceWrongSession:
		return true
	}
	return false
}

// Attendance is unique per (student, session, date).
type Attendance struct {
	ID         string           `db:"id" json:"id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	SessionID  string           `db:"session_id" json:"session_id"`
	Date       time.Time        `db:"date" json:"date"`
	Status     AttendanceStatus `db:"status" json:"status"`
	ScanTime   *time.Time       `db:"scan_time" json:"scan_time,omitempty"`
	MarkedByID string           `db:"marked_by_id" json:"marked_by_id"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceReportRow joins an attendance mark with student identity.
type AttendanceReportRow struct {
	AttendanceID  string           `db:"attendance_id" json:"attendance_id"`
	StudentID     string           `db:"student_id" json:"student_id"`
	StudentNumber string           `db:"student_number" json:"student_number"`
	StudentName   string           `db:"student_name" json:"student_name"`
	Status        AttendanceStatus `db:"status" json:"status"`
	ScanTime      *time.Time       `db:"scan_time" json:"scan_time,omitempty"`
	MarkedByID    string           `db:"marked_by_id" json:"marked_by_id"`
}
