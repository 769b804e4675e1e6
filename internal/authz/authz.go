// Package authz holds the capability table consulted by routes and services.
package authz

import (
	"sort"

	"github.com/noah-isme/weekend-academy-api/internal/models"
)

// Action names a guarded capability.
type Action string

const (
	RegistrationRead        Action = "registration:read"
	RegistrationApprove     Action = "registration:approve"
	RegistrationBulkApprove Action = "registration:bulk-approve"
	RegistrationReject      Action = "registration:reject"
	RegistrationExpire      Action = "registration:expire"

	AttendanceMark       Action = "attendance:mark"
	AttendanceAutoAbsent Action = "attendance:auto-absent"
	AttendanceRead       Action = "attendance:read"

	ReassignmentRequest Action = "reassignment:request"
	ReassignmentReview  Action = "reassignment:review"
	ReassignmentRead    Action = "reassignment:read"

	StudentQR    Action = "student:qr"
	CourseManage Action = "course:manage"
)

type principal string

const (
	principalAdmin      principal = "ADMIN"
	principalHead       principal = "TEACHER:HEAD"
	principalAdditional principal = "TEACHER:ADDITIONAL"
	principalStudent    principal = "STUDENT"
)

var staffActions = []Action{
	RegistrationRead, RegistrationApprove, RegistrationReject,
	AttendanceMark, AttendanceRead,
	ReassignmentReview, ReassignmentRead,
	StudentQR,
}

var capabilities = map[principal]map[Action]bool{
	principalAdmin: set(append(staffActions,
		RegistrationBulkApprove, RegistrationExpire, AttendanceAutoAbsent, CourseManage)...),
	principalHead:       set(append(staffActions, RegistrationBulkApprove, AttendanceAutoAbsent)...),
	principalAdditional: set(staffActions...),
	principalStudent:    set(ReassignmentRequest, StudentQR),
}

func set(actions ...Action) map[Action]bool {
	out := make(map[Action]bool, len(actions))
	for _, a := range actions {
		out[a] = true
	}
	return out
}

func principalOf(user *models.JWTClaims) principal {
	switch user.Role {
	case models.RoleAdmin:
		return principalAdmin
	case models.RoleStudent:
		return principalStudent
	case models.RoleTeacher:
		if user.TeacherRole != nil && *user.TeacherRole == models.TeacherRoleHead {
			return principalHead
		}
		if user.TeacherRole != nil && *user.TeacherRole == models.TeacherRoleAdditional {
			return principalAdditional
		}
	}
	return ""
}

// Can reports whether user holds the capability for action.
func Can(user *models.JWTClaims, action Action) bool {
	if user == nil {
		return false
	}
	return capabilities[principalOf(user)][action]
}

// Granted lists the capabilities user holds, sorted.
func Granted(user *models.JWTClaims) []Action {
	if user == nil {
		return nil
	}
	held := capabilities[principalOf(user)]
	out := make([]Action, 0, len(held))
	for action := range held {
		out = append(out, action)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// InCourse reports whether user may act on resources of courseID. Admins
// bypass course scoping; teachers are limited to their own course.
func InCourse(user *models.JWTClaims, courseID string) bool {
	if user == nil {
		return false
	}
	if user.IsAdmin() {
		return true
	}
	return user.Role == models.RoleTeacher && user.Course() != "" && user.Course() == courseID
}
