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

func TestAttendanceRepositoryUpsertOverwritesOnConflict(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewAttendanceRepository(db)
	date := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	scan := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (student_id, session_id, date)\nDO UPDATE SET status = EXCLUDED.status")).
		WithArgs(sqlmock.AnyArg(), "stu-1", "sess-1", date, models.AttendancePresent, &scan, "teacher-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "session_id", "date", "status", "scan_time", "marked_by_id", "created_at", "updated_at"}).
			AddRow("att-existing", "stu-1", "sess-1", date, "PRESENT", scan, "teacher-1", scan, scan))

	stored, err := repo.Upsert(context.Background(), nil, &models.Attendance{
		StudentID: "stu-1", SessionID: "sess-1", Date: date, Status: models.AttendancePresent, ScanTime: &scan, MarkedByID: "teacher-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "att-existing", stored.ID)
	assert.Equal(t, models.AttendancePresent, stored.Status)
}

func TestAttendanceRepositoryInsertAbsentIfMissing(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewAttendanceRepository(db)
	date := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (student_id, session_id, date) DO NOTHING")).
		WithArgs(sqlmock.AnyArg(), "stu-1", "sess-1", date, "head-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("att-1"))
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (student_id, session_id, date) DO NOTHING")).
		WithArgs(sqlmock.AnyArg(), "stu-2", "sess-1", date, "head-1", sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)

	inserted, err := repo.InsertAbsentIfMissing(context.Background(), nil, "stu-1", "sess-1", date, "head-1")
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.InsertAbsentIfMissing(context.Background(), nil, "stu-2", "sess-1", date, "head-1")
	require.NoError(t, err)
	assert.False(t, inserted)
}
