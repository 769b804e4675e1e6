package models

import "time"

// TeacherRole distinguishes the single head of a course from its other staff.
type TeacherRole string

const (
	TeacherRoleHead       TeacherRole = "HEAD"
	TeacherRoleAdditional TeacherRole = "ADDITIONAL"
)

// Teacher represents a staff member, optionally attached to a course.
type Teacher struct {
	ID           string       `db:"id" json:"id"`
	FullName     string       `db:"full_name" json:"full_name"`
	Email        string       `db:"email" json:"email"`
	PasswordHash string       `db:"password_hash" json:"-"`
	CourseID     *string      `db:"course_id" json:"course_id,omitempty"`
	TeacherRole  *TeacherRole `db:"teacher_role" json:"teacher_role,omitempty"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// HasRole reports whether the teacher holds role in courseID.
func (t *Teacher) HasRole(courseID string, role TeacherRole) bool {
	return t != nil && t.CourseID != nil && *t.CourseID == courseID && t.TeacherRole != nil && *t.TeacherRole == role
}

// TeacherSummary is the public projection of a teacher.
type TeacherSummary struct {
	ID          string       `json:"id"`
	FullName    string       `json:"full_name"`
	Email       string       `json:"email"`
	CourseID    *string      `json:"course_id,omitempty"`
	TeacherRole *TeacherRole `json:"teacher_role,omitempty"`
}

// Summary projects the teacher for responses.
func (t *Teacher) Summary() TeacherSummary {
	return TeacherSummary{ID: t.ID, FullName: t.FullName, Email: t.Email, CourseID: t.CourseID, TeacherRole: t.TeacherRole}
}
