package models

import "time"

// CourseStatus enumerates the lifecycle of a course.
type CourseStatus string

const (
	CourseStatusActive    CourseStatus = "ACTIVE"
	CourseStatusInactive  CourseStatus = "INACTIVE"
	CourseStatusCompleted CourseStatus = "COMPLETED"
)

// Valid reports whether the status is one of the known values.
func (s CourseStatus) Valid() bool {
	switch s {
	case CourseStatusActive, CourseStatusInactive, CourseStatusCompleted:
		return true
	}
	return false
}

// Course groups classes under a single head teacher.
type Course struct {
	ID            string       `db:"id" json:"id"`
	Name          string       `db:"name" json:"name"`
	Description   *string      `db:"description" json:"description,omitempty"`
	Status        CourseStatus `db:"status" json:"status"`
	HeadTeacherID *string      `db:"head_teacher_id" json:"head_teacher_id,omitempty"`
	EndDate       *time.Time   `db:"end_date" json:"end_date,omitempty"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}
