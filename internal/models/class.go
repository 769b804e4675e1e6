package models

import "time"

// Class belongs to a course and owns one Saturday and one Sunday session.
// Capacity here is advisory; sessions carry the enforced cap.
type Class struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	Name      string    `db:"name" json:"name"`
	Capacity  int       `db:"capacity" json:"capacity"`
	Enrolled  int       `db:"enrolled" json:"enrolled"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
