package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/weekend-academy-api/internal/models"
)

func TestRegistrationRepositoryMarkReviewedRequiresPending(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewRegistrationRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status = 'PENDING'")).
		WithArgs("reg-1", models.RegistrationApproved, "teacher-1", nil, now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkReviewed(context.Background(), nil, "reg-1", models.RegistrationApproved, "teacher-1", nil, now)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRegistrationRepositoryExpireCreatedBefore(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewRegistrationRepository(db)
	cutoff := time.Now().UTC().Add(-72 * time.Hour)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("SET status = 'EXPIRED'")).
		WithArgs(cutoff, "admin-1", now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("reg-1").AddRow("reg-2"))

	ids, err := repo.ExpireCreatedBefore(context.Background(), nil, cutoff, "admin-1", now)
	require.NoError(t, err)
	assert.Equal(t, []string{"reg-1", "reg-2"}, ids)
}

func TestRegistrationRepositoryDeleteClosedByEmail(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewRegistrationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM student_registrations WHERE email = $1 AND status IN ('REJECTED', 'EXPIRED')")).
		WithArgs("a@example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))

	affected, err := repo.DeleteClosedByEmail(context.Background(), nil, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
}

func TestRegistrationRepositoryListScopesCourse(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewRegistrationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM student_registrations WHERE course_id = $1 AND status = $2")).
		WithArgs("course-1", models.RegistrationPending).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC LIMIT $3 OFFSET $4")).
		WithArgs("course-1", models.RegistrationPending, 20, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "status"}).AddRow("reg-1", "a@example.com", "PENDING"))

	items, total, err := repo.List(context.Background(), models.RegistrationFilter{CourseID: "course-1", Status: models.RegistrationPending})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "reg-1", items[0].ID)
}
