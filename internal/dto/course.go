package dto

import "github.com/noah-isme/weekend-academy-api/internal/models"

// SessionAvailabilityItem is the public seat view of a session.
type SessionAvailabilityItem struct {
	ID        string     `json:"id"`
	ClassID   string     `json:"classId"`
	ClassName string     `json:"className"`
	Day       models.Day `json:"day"`
	StartTime string     `json:"startTime"`
	EndTime   string     `json:"endTime"`
	Capacity  int        `json:"capacity"`
	Available int        `json:"available"`
	IsFull    bool       `json:"isFull"`
}

// CourseSessionsResponse groups sessions by day.
type CourseSessionsResponse struct {
	Saturday []SessionAvailabilityItem `json:"saturday"`
	Sunday   []SessionAvailabilityItem `json:"sunday"`
}

// ReplaceHeadTeacherRequest promotes an additional teacher to head.
type ReplaceHeadTeacherRequest struct {
	NewHeadTeacherID string `json:"newHeadTeacherId" validate:"required"`
	RemoveOldTeacher bool   `json:"removeOldTeacher"`
}

// ReplaceHeadTeacherResponse shows both teachers after the swap.
type ReplaceHeadTeacherResponse struct {
	OldTeacher models.TeacherSummary `json:"oldTeacher"`
	NewTeacher models.TeacherSummary `json:"newTeacher"`
}

// UpdateCourseStatusRequest changes a course lifecycle state.
type UpdateCourseStatusRequest struct {
	Status models.CourseStatus `json:"status" validate:"required"`
}
