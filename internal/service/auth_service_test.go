package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/weekend-academy-api/internal/models"
	appErrors "github.com/noah-isme/weekend-academy-api/pkg/errors"
)

type mockAuthUsers struct {
	user     *models.User
	err      error
	loggedIn []string
}

func (m *mockAuthUsers) RecordLogin(ctx context.Context, id string, at time.Time) error {
	m.loggedIn = append(m.loggedIn, id)
	return nil
}

func (m *mockAuthUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.user == nil || m.user.Email != email {
		return nil, sql.ErrNoRows
	}
	return m.user, nil
}

type mockAuthTeachers struct {
	teacher *models.Teacher
}

func (m *mockAuthTeachers) FindByEmail(ctx context.Context, email string) (*models.Teacher, error) {
	if m.teacher == nil || m.teacher.Email != email {
		return nil, sql.ErrNoRows
	}
	return m.teacher, nil
}

type mockAuthStudents struct {
	student *models.Student
}

func (m *mockAuthStudents) FindByEmail(ctx context.Context, email string) (*models.Student, error) {
	if m.student == nil || m.student.Email != email {
		return nil, sql.ErrNoRows
	}
	return m.student, nil
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func newAuthFixture(t *testing.T) (*AuthService, *mockAuthUsers) {
	t.Helper()
	head := models.TeacherRoleHead
	course := "course-1"
	users := &mockAuthUsers{user: &models.User{ID: "admin-1", Email: "admin@example.com", FullName: "Admin", PasswordHash: hashPassword(t, "admin-pass"), Active: true}}
	teachers := &mockAuthTeachers{teacher: &models.Teacher{ID: "t-1", Email: "head@example.com", FullName: "Head", PasswordHash: hashPassword(t, "teacher-pass"), CourseID: &course, TeacherRole: &head}}
	students := &mockAuthStudents{student: &models.Student{ID: "stu-1", Email: "rina@example.com", FirstName: "Rina", Surname: "Santoso", PasswordHash: hashPassword(t, "student-pass")}}
	svc := NewAuthService(users, teachers, students, nil, nil, AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, Issuer: "weekend-academy"})
	return svc, users
}

func TestAuthLoginAdmin(t *testing.T) {
	svc, users := newAuthFixture(t)
	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "Admin@Example.com", Password: "admin-pass"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, resp.User.Role)
	assert.Equal(t, int64(3600), resp.ExpiresIn)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", claims.UserID)
	assert.True(t, claims.IsAdmin())
	assert.Equal(t, []string{"admin-1"}, users.loggedIn)
}

func TestAuthLoginTeacherCarriesCourseScope(t *testing.T) {
	svc, _ := newAuthFixture(t)
	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "head@example.com", Password: "teacher-pass"})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, models.RoleTeacher, claims.Role)
	assert.True(t, claims.IsHeadTeacher())
	assert.Equal(t, "course-1", claims.Course())
}

func TestAuthLoginStudent(t *testing.T) {
	svc, _ := newAuthFixture(t)
	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "rina@example.com", Password: "student-pass"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, resp.User.Role)
	assert.Equal(t, "Rina Santoso", resp.User.FullName)
}

func TestAuthLoginFailures(t *testing.T) {
	svc, users := newAuthFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "rina@example.com", Password: "wrong-pass"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "nobody@example.com", Password: "whatever"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "not-an-email", Password: "x"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	users.user.Active = false
	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "admin@example.com", Password: "admin-pass"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	users.err = errors.New("db down")
	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "admin@example.com", Password: "admin-pass"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestAuthValidateTokenRejectsForeignSecret(t *testing.T) {
	svc, _ := newAuthFixture(t)
	other := NewAuthService(nil, nil, nil, nil, nil, AuthConfig{AccessTokenSecret: "other", AccessTokenExpiry: time.Hour})
	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "admin@example.com", Password: "admin-pass"})
	require.NoError(t, err)

	_, err = other.ValidateToken(resp.AccessToken)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
