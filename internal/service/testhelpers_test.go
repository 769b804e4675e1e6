package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/weekend-academy-api/internal/models"
	"github.com/noah-isme/weekend-academy-api/internal/notify"
)

type txProviderMock struct {
	db *sqlx.DB
}

func newTxProviderMock(t *testing.T) (*txProviderMock, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlx.NewDb(db, "sqlmock")}, mock
}

func (p *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return p.db.BeginTxx(ctx, opts)
}

type ledgerRepoStub struct {
	items  map[string]models.SessionAvailability
	locked [][]string
}

func (s *ledgerRepoStub) LockSessions(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]string, error) {
	s.locked = append(s.locked, ids)
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := s.items[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *ledgerRepoStub) Availability(ctx context.Context, exec sqlx.ExtContext, id string) (*models.SessionAvailability, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &item, nil
}

type notifierStub struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (n *notifierStub) Notify(ctx context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return nil
}

func (n *notifierStub) templates() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.messages))
	for _, m := range n.messages {
		out = append(out, m.Template)
	}
	return out
}

func strPtr(v string) *string {
	return &v
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
}

func teacherClaims(id, courseID string, role models.TeacherRole) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleTeacher, TeacherRole: &role, CourseID: &courseID}
}

func studentClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleStudent}
}

func availability(sessionID, classID, courseID string, day models.Day, capacity, approved, pending int) models.SessionAvailability {
	return models.SessionAvailability{
		SessionID:            sessionID,
		ClassID:              classID,
		ClassName:            "Class " + classID,
		CourseID:             courseID,
		Day:                  day,
		StartTime:            "09:00",
		EndTime:              "11:00",
		Capacity:             capacity,
		Approved:             approved,
		PendingRegistrations: pending,
	}
}
