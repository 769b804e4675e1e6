package service

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/weekend-academy-api/internal/dto"
	"github.com/noah-isme/weekend-academy-api/internal/models"
	"github.com/noah-isme/weekend-academy-api/internal/notify"
	appErrors "github.com/noah-isme/weekend-academy-api/pkg/errors"
)

type courseRepoStub struct {
	courses map[string]models.Course
}

func (s *courseRepoStub) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Course, error) {
	c, ok := s.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

type sessionRepoStub struct {
	sessions map[string]models.Session
}

func (s *sessionRepoStub) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Session, error) {
	item, ok := s.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &item, nil
}

type registrationRepoStub struct {
	items        map[string]*models.Registration
	pendingEmail map[string]bool
	created      []*models.Registration
	expireCutoff time.Time
	expired      []string
	lastFilter   models.RegistrationFilter
	seq          int
}

func (s *registrationRepoStub) Create(ctx context.Context, exec sqlx.ExtContext, reg *models.Registration) error {
	s.seq++
	reg.ID = fmt.Sprintf("reg-new-%d", s.seq)
	if s.items == nil {
		s.items = map[string]*models.Registration{}
	}
	s.items[reg.ID] = reg
	s.created = append(s.created, reg)
	return nil
}

func (s *registrationRepoStub) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Registration, error) {
	reg, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *reg
	return &out, nil
}

func (s *registrationRepoStub) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Registration, error) {
	return s.FindByID(ctx, exec, id)
}

func (s *registrationRepoStub) HasPendingEmail(ctx context.Context, exec sqlx.ExtContext, email string) (bool, error) {
	if s.pendingEmail[email] {
		return true, nil
	}
	for _, reg := range s.items {
		if reg.Email == email && reg.Status == models.RegistrationPending {
			return true, nil
		}
	}
	return false, nil
}

func (s *registrationRepoStub) DeleteClosedByEmail(ctx context.Context, exec sqlx.ExtContext, email string) (int64, error) {
	var deleted int64
	for id, reg := range s.items {
		if reg.Email != email {
			continue
		}
		if reg.Status == models.RegistrationRejected || reg.Status == models.RegistrationExpired {
			delete(s.items, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *registrationRepoStub) MarkReviewed(ctx context.Context, exec sqlx.ExtContext, id string, status models.RegistrationStatus, reviewerID string, reason *string, reviewedAt time.Time) error {
	reg, ok := s.items[id]
	if !ok || reg.Status != models.RegistrationPending {
		return sql.ErrNoRows
	}
	reg.Status = status
	reg.ReviewedByID = &reviewerID
	reg.RejectionReason = reason
	return nil
}

func (s *registrationRepoStub) ExpireCreatedBefore(ctx context.Context, exec sqlx.ExtContext, cutoff time.Time, reviewerID string, reviewedAt time.Time) ([]string, error) {
	s.expireCutoff = cutoff
	return s.expired, nil
}

func (s *registrationRepoStub) List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, int, error) {
	s.lastFilter = filter
	return []models.Registration{}, 0, nil
}

type studentWriterStub struct {
	emails  map[string]bool
	next    int64
	created []*models.Student
}

func (s *studentWriterStub) EmailExists(ctx context.Context, exec sqlx.ExtContext, email string) (bool, error) {
	return s.emails[email], nil
}

func (s *studentWriterStub) NextStudentNumber(ctx context.Context, exec sqlx.ExtContext) (int64, error) {
	s.next++
	return s.next, nil
}

func (s *studentWriterStub) Create(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error {
	student.ID = fmt.Sprintf("stu-%d", len(s.created)+1)
	if s.emails == nil {
		s.emails = map[string]bool{}
	}
	s.emails[student.Email] = true
	s.created = append(s.created, student)
	return nil
}

type registrationFixture struct {
	svc      *RegistrationService
	mock     sqlmock.Sqlmock
	regs     *registrationRepoStub
	students *studentWriterStub
	ledger   *ledgerRepoStub
	notifier *notifierStub
}

func newRegistrationFixture(t *testing.T) *registrationFixture {
	t.Helper()
	tx, mock := newTxProviderMock(t)
	regs := &registrationRepoStub{items: map[string]*models.Registration{}}
	students := &studentWriterStub{}
	ledgerRepo := &ledgerRepoStub{items: map[string]models.SessionAvailability{
		"sat-1": availability("sat-1", "class-a", "course-1", models.DaySaturday, 2, 0, 0),
		"sun-1": availability("sun-1", "class-a", "course-1", models.DaySunday, 2, 0, 0),
	}}
	notifier := &notifierStub{}
	courses := &courseRepoStub{courses: map[string]models.Course{
		"course-1": {ID: "course-1", Name: "Robotics", Status: models.CourseStatusActive},
		"course-2": {ID: "course-2", Name: "Drawing", Status: models.CourseStatusInactive},
	}}
	sessions := &sessionRepoStub{sessions: map[string]models.Session{
		"sat-1": {ID: "sat-1", ClassID: "class-a", CourseID: "course-1", Day: models.DaySaturday, StartTime: "09:00", EndTime: "11:00", Capacity: 2},
		"sun-1": {ID: "sun-1", ClassID: "class-a", CourseID: "course-1", Day: models.DaySunday, StartTime: "09:00", EndTime: "11:00", Capacity: 2},
	}}
	svc := NewRegistrationService(tx, courses, sessions, regs, students, NewCapacityLedger(ledgerRepo, nil), notifier, nil, nil, nil,
		RegistrationConfig{StudentNumberPrefix: "STU"})
	svc.now = func() time.Time { return time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC) }
	return &registrationFixture{svc: svc, mock: mock, regs: regs, students: students, ledger: ledgerRepo, notifier: notifier}
}

func validSubmission() dto.SubmitRegistrationRequest {
	return dto.SubmitRegistrationRequest{
		Surname:           "Santoso",
		FirstName:         "Rina",
		Email:             "  Rina@Example.com ",
		CourseID:          "course-1",
		SaturdaySessionID: "sat-1",
		SundaySessionID:   "sun-1",
		Password:          "secret-password",
		PaymentReceiptURL: "/uploads/receipts/r.png",
		PaymentReceiptNo:  "RCP-1",
	}
}

func pendingRegistration(id string) *models.Registration {
	return &models.Registration{
		ID: id, Surname: "Santoso", FirstName: "Rina", Email: id + "@example.com",
		CourseID: "course-1", SaturdaySessionID: "sat-1", SundaySessionID: "sun-1",
		PasswordHash: "hash", Status: models.RegistrationPending,
	}
}

func TestRegistrationSubmitStoresPendingRegistration(t *testing.T) {
	f := newRegistrationFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	resp, err := f.svc.Submit(context.Background(), validSubmission())
	require.NoError(t, err)
	assert.Equal(t, "rina@example.com", resp.Email)
	assert.Equal(t, "sat-1", resp.Sessions.Saturday.ID)
	require.Len(t, f.regs.created, 1)
	created := f.regs.created[0]
	assert.Equal(t, models.RegistrationPending, created.Status)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("secret-password")))
	assert.Equal(t, []string{"sat-1", "sun-1"}, f.ledger.locked[0])
	assert.Equal(t, []string{notify.TemplateRegistrationReceived}, f.notifier.templates())
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRegistrationSubmitRejectsInactiveCourse(t *testing.T) {
	f := newRegistrationFixture(t)
	req := validSubmission()
	req.CourseID = "course-2"

	_, err := f.svc.Submit(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRegistrationSubmitRejectsSessionOnWrongDay(t *testing.T) {
	f := newRegistrationFixture(t)
	req := validSubmission()
	req.SaturdaySessionID = "sun-1"

	_, err := f.svc.Submit(context.Background(), req)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "Saturday session")
}

func TestRegistrationSubmitRejectsTakenEmail(t *testing.T) {
	f := newRegistrationFixture(t)
	f.students.emails = map[string]bool{"rina@example.com": true}
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Submit(context.Background(), validSubmission())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrEmailExists.Code, appErr.Code)
	assert.Equal(t, "Email already exists", appErr.Message)
	assert.Empty(t, f.regs.created)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRegistrationSubmitRejectsPendingEmail(t *testing.T) {
	f := newRegistrationFixture(t)
	f.regs.pendingEmail = map[string]bool{"rina@example.com": true}
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Submit(context.Background(), validSubmission())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrEmailExists.Code, appErrors.FromError(err).Code)
}

func TestRegistrationSubmitRejectsFullSession(t *testing.T) {
	f := newRegistrationFixture(t)
	f.ledger.items["sun-1"] = availability("sun-1", "class-a", "course-1", models.DaySunday, 2, 1, 1)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Submit(context.Background(), validSubmission())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrCapacityExceeded.Code, appErr.Code)
	assert.Equal(t, "Sunday session 09:00-11:00 is full", appErr.Message)
	assert.Empty(t, f.regs.created)
	assert.Empty(t, f.notifier.templates())
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRegistrationApproveCreatesStudent(t *testing.T) {
	f := newRegistrationFixture(t)
	f.regs.items["reg-1"] = pendingRegistration("reg-1")
	f.students.next = 6
	// the registration's own pending seat is already counted
	f.ledger.items["sat-1"] = availability("sat-1", "class-a", "course-1", models.DaySaturday, 2, 1, 1)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	resp, err := f.svc.Approve(context.Background(), "reg-1", teacherClaims("t-1", "course-1", models.TeacherRoleAdditional))
	require.NoError(t, err)
	assert.Equal(t, "STU-00007", resp.StudentNumber)
	require.Len(t, f.students.created, 1)
	student := f.students.created[0]
	assert.Equal(t, "class-a", student.ClassID)
	assert.Equal(t, "hash", student.PasswordHash)
	assert.Equal(t, models.RegistrationApproved, f.regs.items["reg-1"].Status)
	assert.Equal(t, []string{notify.TemplateRegistrationApproved}, f.notifier.templates())
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRegistrationApproveRejectsProcessedRegistration(t *testing.T) {
	f := newRegistrationFixture(t)
	reg := pendingRegistration("reg-1")
	reg.Status = models.RegistrationRejected
	f.regs.items["reg-1"] = reg
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Approve(context.Background(), "reg-1", adminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyProcessed.Code, appErrors.FromError(err).Code)
	assert.Empty(t, f.students.created)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRegistrationApproveEnforcesCourseScope(t *testing.T) {
	f := newRegistrationFixture(t)
	f.regs.items["reg-1"] = pendingRegistration("reg-1")
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Approve(context.Background(), "reg-1", teacherClaims("t-9", "course-9", models.TeacherRoleHead))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestRegistrationApproveRejectsStudentRole(t *testing.T) {
	f := newRegistrationFixture(t)
	_, err := f.svc.Approve(context.Background(), "reg-1", studentClaims("stu-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestRegistrationBulkApproveIsolatesFailures(t *testing.T) {
	f := newRegistrationFixture(t)
	f.regs.items["reg-1"] = pendingRegistration("reg-1")
	done := pendingRegistration("reg-2")
	done.Status = models.RegistrationApproved
	f.regs.items["reg-2"] = done

	f.mock.ExpectBegin()
	f.mock.ExpectExec(regexp.QuoteMeta("SAVEPOINT bulk_approve_0")).WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectExec(regexp.QuoteMeta("RELEASE SAVEPOINT bulk_approve_0")).WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectExec(regexp.QuoteMeta("SAVEPOINT bulk_approve_1")).WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectExec(regexp.QuoteMeta("ROLLBACK TO SAVEPOINT bulk_approve_1")).WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectCommit()

	resp, err := f.svc.BulkApprove(context.Background(), dto.BulkApproveRequest{RegistrationIDs: []string{"reg-1", "reg-2", "reg-1"}}, adminClaims())
	require.NoError(t, err)
	require.Len(t, resp.Approved, 1)
	assert.Equal(t, "reg-1", resp.Approved[0].RegistrationID)
	assert.Equal(t, "STU-00001", resp.Approved[0].StudentNumber)
	require.Len(t, resp.Failed, 2)
	assert.Equal(t, "reg-2", resp.Failed[0].ID)
	assert.Equal(t, "registration already approved", resp.Failed[0].Reason)
	assert.Equal(t, "Duplicate registration id", resp.Failed[1].Reason)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRegistrationBulkApproveReportsExistingStudentEmail(t *testing.T) {
	f := newRegistrationFixture(t)
	f.regs.items["reg-a"] = pendingRegistration("reg-a")
	f.regs.items["reg-b"] = pendingRegistration("reg-b")
	f.students.emails = map[string]bool{"reg-b@example.com": true}

	f.mock.ExpectBegin()
	f.mock.ExpectExec(regexp.QuoteMeta("SAVEPOINT bulk_approve_0")).WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectExec(regexp.QuoteMeta("RELEASE SAVEPOINT bulk_approve_0")).WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectExec(regexp.QuoteMeta("SAVEPOINT bulk_approve_1")).WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectExec(regexp.QuoteMeta("ROLLBACK TO SAVEPOINT bulk_approve_1")).WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectCommit()

	resp, err := f.svc.BulkApprove(context.Background(), dto.BulkApproveRequest{RegistrationIDs: []string{"reg-a", "reg-b"}}, adminClaims())
	require.NoError(t, err)
	require.Len(t, resp.Approved, 1)
	assert.Equal(t, "reg-a", resp.Approved[0].RegistrationID)
	assert.Equal(t, []dto.FailedItem{{ID: "reg-b", Reason: "Email already exists"}}, resp.Failed)
	require.Len(t, f.students.created, 1)
	assert.Equal(t, "reg-a@example.com", f.students.created[0].Email)
	assert.Equal(t, models.RegistrationApproved, f.regs.items["reg-a"].Status)
	assert.Equal(t, models.RegistrationPending, f.regs.items["reg-b"].Status)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRegistrationResubmitAfterRejection(t *testing.T) {
	f := newRegistrationFixture(t)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	first, err := f.svc.Submit(context.Background(), validSubmission())
	require.NoError(t, err)

	// still pending, so a second submission is refused
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = f.svc.Submit(context.Background(), validSubmission())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrEmailExists.Code, appErrors.FromError(err).Code)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	_, err = f.svc.Reject(context.Background(), first.RegistrationID, "Receipt unreadable", adminClaims())
	require.NoError(t, err)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	second, err := f.svc.Submit(context.Background(), validSubmission())
	require.NoError(t, err)
	assert.NotEqual(t, first.RegistrationID, second.RegistrationID)

	require.Len(t, f.regs.items, 1)
	_, stillThere := f.regs.items[first.RegistrationID]
	assert.False(t, stillThere)
	assert.Equal(t, models.RegistrationPending, f.regs.items[second.RegistrationID].Status)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRegistrationBulkApproveRequiresHeadTeacher(t *testing.T) {
	f := newRegistrationFixture(t)
	_, err := f.svc.BulkApprove(context.Background(), dto.BulkApproveRequest{RegistrationIDs: []string{"reg-1"}},
		teacherClaims("t-1", "course-1", models.TeacherRoleAdditional))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestRegistrationRejectRequiresReason(t *testing.T) {
	f := newRegistrationFixture(t)
	_, err := f.svc.Reject(context.Background(), "reg-1", "   ", adminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRegistrationRejectStoresReason(t *testing.T) {
	f := newRegistrationFixture(t)
	f.regs.items["reg-1"] = pendingRegistration("reg-1")
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	reg, err := f.svc.Reject(context.Background(), "reg-1", " Receipt unreadable ", adminClaims())
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationRejected, reg.Status)
	require.NotNil(t, reg.RejectionReason)
	assert.Equal(t, "Receipt unreadable", *reg.RejectionReason)
	assert.Equal(t, []string{notify.TemplateRegistrationRejected}, f.notifier.templates())
}

func TestRegistrationExpireStaleNeedsThreshold(t *testing.T) {
	f := newRegistrationFixture(t)
	_, err := f.svc.ExpireStale(context.Background(), dto.ExpireRegistrationsRequest{}, adminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = f.svc.ExpireStale(context.Background(), dto.ExpireRegistrationsRequest{OlderThan: "soon"}, adminClaims())
	require.Error(t, err)
}

func TestRegistrationExpireStaleUsesOlderThan(t *testing.T) {
	f := newRegistrationFixture(t)
	f.regs.expired = []string{"reg-1", "reg-2"}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	resp, err := f.svc.ExpireStale(context.Background(), dto.ExpireRegistrationsRequest{OlderThan: "48h"}, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Expired)
	assert.Equal(t, time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC), f.regs.expireCutoff)
}

func TestRegistrationListScopesTeachersToTheirCourse(t *testing.T) {
	f := newRegistrationFixture(t)
	_, pagination, err := f.svc.List(context.Background(), models.RegistrationFilter{CourseID: "course-9", Page: 2},
		teacherClaims("t-1", "course-1", models.TeacherRoleAdditional))
	require.NoError(t, err)
	assert.Equal(t, "course-1", f.regs.lastFilter.CourseID)
	assert.Equal(t, 2, pagination.Page)

	_, _, err = f.svc.List(context.Background(), models.RegistrationFilter{CourseID: "course-9"}, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, "course-9", f.regs.lastFilter.CourseID)
}

func TestRegistrationGetHidesOtherCourses(t *testing.T) {
	f := newRegistrationFixture(t)
	f.regs.items["reg-1"] = pendingRegistration("reg-1")

	_, err := f.svc.Get(context.Background(), "reg-1", teacherClaims("t-1", "course-2", models.TeacherRoleHead))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
