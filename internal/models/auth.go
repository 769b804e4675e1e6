package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating an admin, teacher or student.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	IP       string `json:"-"`
}

// LoginResponse returns the issued token and principal info.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	User        UserInfo  `json:"user"`
	IssuedAt    time.Time `json:"issued_at"`
}

// UserInfo describes the authenticated principal in responses.
type UserInfo struct {
	ID          string       `json:"id"`
	Email       string       `json:"email"`
	FullName    string       `json:"full_name"`
	Role        UserRole     `json:"role"`
	TeacherRole *TeacherRole `json:"teacher_role,omitempty"`
	CourseID    *string      `json:"course_id,omitempty"`
}

// JWTClaims is the authenticated user carried in access tokens.
type JWTClaims struct {
	UserID      string       `json:"user_id"`
	Role        UserRole     `json:"role"`
	TeacherRole *TeacherRole `json:"teacher_role,omitempty"`
	CourseID    *string      `json:"course_id,omitempty"`
	Email       string       `json:"email"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the principal is an administrator.
func (c *JWTClaims) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}

// IsHeadTeacher reports whether the principal heads a course.
func (c *JWTClaims) IsHeadTeacher() bool {
	return c != nil && c.Role == RoleTeacher && c.TeacherRole != nil && *c.TeacherRole == TeacherRoleHead
}

// Course returns the principal's course id or an empty string.
func (c *JWTClaims) Course() string {
	if c == nil || c.CourseID == nil {
		return ""
	}
	return *c.CourseID
}
