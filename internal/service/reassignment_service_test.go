package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/weekend-academy-api/internal/dto"
	"github.com/noah-isme/weekend-academy-api/internal/models"
	"github.com/noah-isme/weekend-academy-api/internal/notify"
	appErrors "github.com/noah-isme/weekend-academy-api/pkg/errors"
)

type reassignmentRepoStub struct {
	items      map[string]*models.ReassignmentRequest
	pending    map[string]bool
	created    []*models.ReassignmentRequest
	createErr  error
	lastFilter models.ReassignmentFilter
}

func (s *reassignmentRepoStub) Create(ctx context.Context, exec sqlx.ExtContext, req *models.ReassignmentRequest) error {
	if s.createErr != nil {
		return s.createErr
	}
	req.ID = "req-new"
	s.items[req.ID] = req
	s.created = append(s.created, req)
	return nil
}

func (s *reassignmentRepoStub) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ReassignmentRequest, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *item
	return &out, nil
}

func (s *reassignmentRepoStub) HasPending(ctx context.Context, exec sqlx.ExtContext, studentID string, day models.Day) (bool, error) {
	return s.pending[studentID+string(day)], nil
}

func (s *reassignmentRepoStub) MarkReviewed(ctx context.Context, exec sqlx.ExtContext, id string, status models.ReassignmentStatus, reviewerID string, reason *string, reviewedAt time.Time) error {
	item, ok := s.items[id]
	if !ok || item.Status != models.ReassignmentPending {
		return sql.ErrNoRows
	}
	item.Status = status
	item.Reason = reason
	return nil
}

func (s *reassignmentRepoStub) List(ctx context.Context, filter models.ReassignmentFilter) ([]models.ReassignmentRequest, int, error) {
	s.lastFilter = filter
	return []models.ReassignmentRequest{}, 0, nil
}

type reassignmentStudentStub struct {
	students map[string]models.Student
	locked   []string
	moves    []string
}

func (s *reassignmentStudentStub) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Student, error) {
	st, ok := s.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &st, nil
}

func (s *reassignmentStudentStub) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Student, error) {
	s.locked = append(s.locked, id)
	return s.FindByID(ctx, exec, id)
}

func (s *reassignmentStudentStub) MoveSession(ctx context.Context, exec sqlx.ExtContext, studentID string, day models.Day, sessionID, classID string, updatedAt time.Time) error {
	s.moves = append(s.moves, studentID+":"+string(day)+":"+sessionID+":"+classID)
	return nil
}

type reassignmentFixture struct {
	svc      *ReassignmentService
	mock     sqlmock.Sqlmock
	repo     *reassignmentRepoStub
	students *reassignmentStudentStub
	ledger   *ledgerRepoStub
	notifier *notifierStub
}

func newReassignmentFixture(t *testing.T) *reassignmentFixture {
	t.Helper()
	tx, mock := newTxProviderMock(t)
	repo := &reassignmentRepoStub{items: map[string]*models.ReassignmentRequest{}, pending: map[string]bool{}}
	students := &reassignmentStudentStub{students: map[string]models.Student{
		"stu-1": {ID: "stu-1", FirstName: "Rina", Surname: "Santoso", Email: "rina@example.com", ClassID: "class-a", SaturdaySessionID: "sat-1", SundaySessionID: "sun-1"},
	}}
	sessions := &sessionRepoStub{sessions: map[string]models.Session{
		"sat-1": {ID: "sat-1", ClassID: "class-a", CourseID: "course-1", Day: models.DaySaturday, StartTime: "09:00", EndTime: "11:00", Capacity: 2},
		"sat-2": {ID: "sat-2", ClassID: "class-b", CourseID: "course-1", Day: models.DaySaturday, StartTime: "13:00", EndTime: "15:00", Capacity: 1},
		"sun-1": {ID: "sun-1", ClassID: "class-a", CourseID: "course-1", Day: models.DaySunday, StartTime: "09:00", EndTime: "11:00", Capacity: 2},
		"sat-9": {ID: "sat-9", ClassID: "class-z", CourseID: "course-9", Day: models.DaySaturday, StartTime: "09:00", EndTime: "11:00", Capacity: 2},
	}}
	ledgerRepo := &ledgerRepoStub{items: map[string]models.SessionAvailability{
		"sat-2": availability("sat-2", "class-b", "course-1", models.DaySaturday, 1, 0, 0),
	}}
	notifier := &notifierStub{}
	svc := NewReassignmentService(tx, repo, students, sessions, NewCapacityLedger(ledgerRepo, nil), notifier, nil, nil, nil, 0)
	return &reassignmentFixture{svc: svc, mock: mock, repo: repo, students: students, ledger: ledgerRepo, notifier: notifier}
}

func pendingMove() *models.ReassignmentRequest {
	return &models.ReassignmentRequest{ID: "req-1", StudentID: "stu-1", FromSessionID: "sat-1", ToSessionID: "sat-2", Status: models.ReassignmentPending}
}

func TestReassignmentRequestCreatesPendingMove(t *testing.T) {
	f := newReassignmentFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	req, err := f.svc.Request(context.Background(), dto.CreateReassignmentRequest{ToSessionID: "sat-2"}, studentClaims("stu-1"))
	require.NoError(t, err)
	assert.Equal(t, "sat-1", req.FromSessionID)
	assert.Equal(t, models.DaySaturday, req.Day)
	assert.Equal(t, models.ReassignmentPending, req.Status)
	assert.Equal(t, []string{"stu-1"}, f.students.locked)
	assert.Equal(t, []string{"sat-2"}, f.ledger.locked[0])
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestReassignmentRequestConcurrentDuplicateIsConflict(t *testing.T) {
	f := newReassignmentFixture(t)
	// a parallel request committed first and tripped the pending-per-day index
	f.repo.createErr = &pq.Error{Code: "23505", Constraint: "reassignment_requests_pending_day_uidx"}
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Request(context.Background(), dto.CreateReassignmentRequest{ToSessionID: "sat-2"}, studentClaims("stu-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Equal(t, []string{"stu-1"}, f.students.locked)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestReassignmentRequestValidation(t *testing.T) {
	f := newReassignmentFixture(t)
	cases := []struct {
		name   string
		target string
		code   string
	}{
		{name: "same session", target: "sat-1", code: appErrors.ErrValidation.Code},
		{name: "other course", target: "sat-9", code: appErrors.ErrValidation.Code},
		{name: "unknown session", target: "sat-404", code: appErrors.ErrNotFound.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Request(context.Background(), dto.CreateReassignmentRequest{ToSessionID: tc.target}, studentClaims("stu-1"))
			require.Error(t, err)
			assert.Equal(t, tc.code, appErrors.FromError(err).Code)
		})
	}

	_, err := f.svc.Request(context.Background(), dto.CreateReassignmentRequest{ToSessionID: "sat-2"}, adminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestReassignmentRequestRejectsSecondPendingForDay(t *testing.T) {
	f := newReassignmentFixture(t)
	f.repo.pending["stu-1"+string(models.DaySaturday)] = true
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Request(context.Background(), dto.CreateReassignmentRequest{ToSessionID: "sat-2"}, studentClaims("stu-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestReassignmentRequestRejectsFullTarget(t *testing.T) {
	f := newReassignmentFixture(t)
	f.ledger.items["sat-2"] = availability("sat-2", "class-b", "course-1", models.DaySaturday, 1, 1, 0)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Request(context.Background(), dto.CreateReassignmentRequest{ToSessionID: "sat-2"}, studentClaims("stu-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCapacityExceeded.Code, appErrors.FromError(err).Code)
	assert.Empty(t, f.repo.created)
}

func TestReassignmentApproveMovesStudent(t *testing.T) {
	f := newReassignmentFixture(t)
	f.repo.items["req-1"] = pendingMove()
	// the request's own pending seat fills the target exactly
	item := availability("sat-2", "class-b", "course-1", models.DaySaturday, 1, 0, 0)
	item.PendingReassignments = 1
	f.ledger.items["sat-2"] = item
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	req, err := f.svc.Approve(context.Background(), "req-1", teacherClaims("t-1", "course-1", models.TeacherRoleAdditional))
	require.NoError(t, err)
	assert.Equal(t, models.ReassignmentApproved, req.Status)
	assert.Equal(t, []string{"stu-1:SATURDAY:sat-2:class-b"}, f.students.moves)
	assert.Equal(t, []string{notify.TemplateReassignmentApproved}, f.notifier.templates())
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestReassignmentApproveDeniesWhenSeatTaken(t *testing.T) {
	f := newReassignmentFixture(t)
	f.repo.items["req-1"] = pendingMove()
	item := availability("sat-2", "class-b", "course-1", models.DaySaturday, 1, 1, 0)
	item.PendingReassignments = 1
	f.ledger.items["sat-2"] = item
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	_, err := f.svc.Approve(context.Background(), "req-1", adminClaims())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrSeatTaken.Code, appErr.Code)
	assert.Equal(t, "Session is full", appErr.Message)
	assert.Equal(t, models.ReassignmentDenied, f.repo.items["req-1"].Status)
	require.NotNil(t, f.repo.items["req-1"].Reason)
	assert.Equal(t, "Session is full", *f.repo.items["req-1"].Reason)
	assert.Empty(t, f.students.moves)
	assert.Equal(t, []string{notify.TemplateReassignmentDenied}, f.notifier.templates())
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestReassignmentApproveDeniesStaleRequest(t *testing.T) {
	f := newReassignmentFixture(t)
	f.repo.items["req-1"] = pendingMove()
	moved := f.students.students["stu-1"]
	moved.SaturdaySessionID = "sat-5"
	f.students.students["stu-1"] = moved
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	_, err := f.svc.Approve(context.Background(), "req-1", adminClaims())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, "request is stale", appErr.Message)
	assert.Equal(t, models.ReassignmentDenied, f.repo.items["req-1"].Status)
	require.NotNil(t, f.repo.items["req-1"].Reason)
	assert.Equal(t, "Student's session changed since the request", *f.repo.items["req-1"].Reason)
	assert.Empty(t, f.students.moves)
	assert.Empty(t, f.ledger.locked)
	assert.Equal(t, []string{notify.TemplateReassignmentDenied}, f.notifier.templates())
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestReassignmentApproveRejectsProcessedRequest(t *testing.T) {
	f := newReassignmentFixture(t)
	done := pendingMove()
	done.Status = models.ReassignmentDenied
	f.repo.items["req-1"] = done
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Approve(context.Background(), "req-1", adminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyProcessed.Code, appErrors.FromError(err).Code)
}

func TestReassignmentDenyStoresOptionalReason(t *testing.T) {
	f := newReassignmentFixture(t)
	f.repo.items["req-1"] = pendingMove()
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	req, err := f.svc.Deny(context.Background(), "req-1", "  ", teacherClaims("t-1", "course-1", models.TeacherRoleHead))
	require.NoError(t, err)
	assert.Equal(t, models.ReassignmentDenied, req.Status)
	assert.Nil(t, req.Reason)
}

func TestReassignmentDenyEnforcesCourseScope(t *testing.T) {
	f := newReassignmentFixture(t)
	f.repo.items["req-1"] = pendingMove()
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Deny(context.Background(), "req-1", "no", teacherClaims("t-9", "course-9", models.TeacherRoleHead))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestReassignmentListScopesTeachers(t *testing.T) {
	f := newReassignmentFixture(t)
	_, _, err := f.svc.List(context.Background(), models.ReassignmentFilter{}, teacherClaims("t-1", "course-1", models.TeacherRoleAdditional))
	require.NoError(t, err)
	assert.Equal(t, "course-1", f.repo.lastFilter.CourseID)
}
