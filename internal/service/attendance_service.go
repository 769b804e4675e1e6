package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/noah-isme/weekend-academy-api/internal/authz"
	"github.com/noah-isme/weekend-academy-api/internal/dto"
	"github.com/noah-isme/weekend-academy-api/internal/models"
	"github.com/noah-isme/weekend-academy-api/pkg/database"
	appErrors "github.com/noah-isme/weekend-academy-api/pkg/errors"
	"github.com/noah-isme/weekend-academy-api/pkg/export"
)

const dateLayout = "2006-01-02"

type attendanceRepository interface {
	Upsert(ctx context.Context, exec sqlx.ExtContext, mark *models.Attendance) (*models.Attendance, error)
	InsertAbsentIfMissing(ctx context.Context, exec sqlx.ExtContext, studentID, sessionID string, date time.Time, markedByID string) (bool, error)
	ListBySessionAndDate(ctx context.Context, sessionID string, date time.Time) ([]models.AttendanceReportRow, error)
}

type attendanceStudentRepository interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Student, error)
	ListIDsBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string, day models.Day) ([]string, error)
}

type attendanceSessionRepository interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Session, error)
	ListByClassAndDay(ctx context.Context, exec sqlx.ExtContext, classID string, day models.Day) ([]models.Session, error)
}

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type sheetRenderer interface {
	Render(sheet export.Sheet) ([]byte, error)
}

// AttendanceConfig tunes the attendance engine.
type AttendanceConfig struct {
	Location    *time.Location
	LockTimeout time.Duration
	QRSize      int
}

// AttendanceService records scans and manual marks and sweeps absentees.
type AttendanceService struct {
	tx         database.TxProvider
	attendance attendanceRepository
	students   attendanceStudentRepository
	sessions   attendanceSessionRepository
	classes    classReader
	sheets     sheetRenderer
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	config     AttendanceConfig
	now        func() time.Time
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(
	tx database.TxProvider,
	attendance attendanceRepository,
	students attendanceStudentRepository,
	sessions attendanceSessionRepository,
	classes classReader,
	sheets sheetRenderer,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	config AttendanceConfig,
) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.QRSize <= 0 {
		config.QRSize = 256
	}
	svc := &AttendanceService{
		tx:         tx,
		attendance: attendance,
		students:   students,
		sessions:   sessions,
		classes:    classes,
		sheets:     sheets,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		config:     config,
		now:        func() time.Time { return time.Now().UTC() },
	}
	svc.validator.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
		return models.AttendanceStatus(fl.Field().String()).Valid()
	})
	return svc
}

// today returns the academy calendar date as a UTC midnight.
func (s *AttendanceService) today() time.Time {
	local := s.now().In(s.config.Location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *AttendanceService) parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s.today(), nil
	}
	date, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "date must use YYYY-MM-DD")
	}
	return date, nil
}

// ScanQR decodes a student QR payload and records today's mark for the
// scanned session. A student scanned into a session other than their own for
// that day within the same course is recorded as WRONG_SESSION; students of
// other courses are refused.
func (s *AttendanceService) ScanQR(ctx context.Context, req dto.ScanRequest, actor *models.JWTClaims) (*dto.ScanResponse, error) {
	if !authz.Can(actor, authz.AttendanceMark) {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid scan payload")
	}

	var payload models.QRPayload
	if err := json.Unmarshal([]byte(req.QRData), &payload); err != nil || payload.UUID == "" || payload.StudentID == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidQR, "QR code could not be read")
	}

	student, err := s.students.FindByID(ctx, nil, payload.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Internal(err, "failed to load student")
	}
	if student.QRUUID != payload.UUID {
		return nil, appErrors.Clone(appErrors.ErrInvalidQR, "QR code does not match the student")
	}

	session, err := s.scopedSession(ctx, req.SessionID, actor)
	if err != nil {
		return nil, err
	}
	if err := s.ensureStudentInCourse(ctx, nil, student, session); err != nil {
		return nil, err
	}

	status := models.AttendancePresent
	message := "Attendance recorded"
	if student.SessionFor(session.Day) != session.ID {
		status = models.AttendanceWrongSession
		message = fmt.Sprintf("Student is assigned to a different %s session", strings.ToLower(string(session.Day)))
	}

	scanTime := s.now()
	mark, err := s.attendance.Upsert(ctx, nil, &models.Attendance{
		StudentID:  student.ID,
		SessionID:  session.ID,
		Date:       s.today(),
		Status:     status,
		ScanTime:   &scanTime,
		MarkedByID: actor.UserID,
	})
	if err != nil {
		return nil, database.Translate(err, "failed to record attendance")
	}

	s.metrics.RecordAttendanceMark(string(status), "scan")
	s.logger.Debug("attendance scanned",
		zap.String("student_id", student.ID), zap.String("session_id", session.ID), zap.String("status", string(status)))
	return &dto.ScanResponse{Attendance: mark, Status: status, Message: message}, nil
}

// MarkManual records a mark chosen by staff for today.
func (s *AttendanceService) MarkManual(ctx context.Context, req dto.ManualMarkRequest, actor *models.JWTClaims) (*models.Attendance, error) {
	if !authz.Can(actor, authz.AttendanceMark) {
		return nil, appErrors.ErrForbidden
	}
	req.Status = models.AttendanceStatus(strings.ToUpper(string(req.Status)))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	session, err := s.scopedSession(ctx, req.SessionID, actor)
	if err != nil {
		return nil, err
	}
	mark, err := s.markOne(ctx, nil, session, req.StudentID, req.Status, actor)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordAttendanceMark(string(mark.Status), "manual")
	return mark, nil
}

// BulkMark records many marks for one session in a single transaction. Each
// record runs in its own savepoint; rejected records are listed in Failed.
func (s *AttendanceService) BulkMark(ctx context.Context, req dto.BulkMarkRequest, actor *models.JWTClaims) (*dto.BulkMarkResponse, error) {
	if !authz.Can(actor, authz.AttendanceMark) {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk attendance payload")
	}
	session, err := s.scopedSession(ctx, req.SessionID, actor)
	if err != nil {
		return nil, err
	}

	resp := &dto.BulkMarkResponse{AttendanceRecords: []models.Attendance{}, Failed: []dto.FailedItem{}}
	err = database.WithTx(ctx, s.tx, s.config.LockTimeout, func(tx *sqlx.Tx) error {
		for i, record := range req.Records {
			status := models.AttendanceStatus(strings.ToUpper(string(record.Status)))
			var mark *models.Attendance
			itemErr, err := database.WithSavepoint(ctx, tx, fmt.Sprintf("bulk_mark_%d", i), func() error {
				if strings.TrimSpace(record.StudentID) == "" {
					return appErrors.Clone(appErrors.ErrValidation, "studentId is required")
				}
				if !status.Valid() {
					return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid status %q", record.Status))
				}
				var err error
				mark, err = s.markOne(ctx, tx, session, record.StudentID, status, actor)
				return err
			})
			if err != nil {
				return database.Translate(err, "failed to manage savepoint")
			}
			if itemErr != nil {
				resp.Failed = append(resp.Failed, dto.FailedItem{ID: record.StudentID, Reason: failureReason(itemErr)})
				continue
			}
			resp.AttendanceRecords = append(resp.AttendanceRecords, *mark)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, mark := range resp.AttendanceRecords {
		s.metrics.RecordAttendanceMark(string(mark.Status), "bulk")
	}
	resp.Count = len(resp.AttendanceRecords)
	s.logger.Info("bulk attendance recorded",
		zap.String("session_id", session.ID), zap.Int("count", resp.Count), zap.Int("failed", len(resp.Failed)))
	return resp, nil
}

func (s *AttendanceService) markOne(ctx context.Context, exec sqlx.ExtContext, session *models.Session, studentID string, status models.AttendanceStatus, actor *models.JWTClaims) (*models.Attendance, error) {
	student, err := s.students.FindByID(ctx, exec, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, database.Translate(err, "failed to load student")
	}
	if err := s.ensureStudentInCourse(ctx, exec, student, session); err != nil {
		return nil, err
	}
	mark, err := s.attendance.Upsert(ctx, exec, &models.Attendance{
		StudentID:  student.ID,
		SessionID:  session.ID,
		Date:       s.today(),
		Status:     status,
		MarkedByID: actor.UserID,
	})
	if err != nil {
		return nil, database.Translate(err, "failed to record attendance")
	}
	return mark, nil
}

// ensureStudentInCourse compares the course of the student's own session for
// the scanned day with the session being marked.
func (s *AttendanceService) ensureStudentInCourse(ctx context.Context, exec sqlx.ExtContext, student *models.Student, session *models.Session) error {
	ownID := student.SessionFor(session.Day)
	if ownID == session.ID {
		return nil
	}
	own, err := s.sessions.FindByID(ctx, exec, ownID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "student has no session on this day")
		}
		return database.Translate(err, "failed to load student session")
	}
	if own.CourseID != session.CourseID {
		return appErrors.Clone(appErrors.ErrValidation, "student is not enrolled in this course")
	}
	return nil
}

// AutoMarkAbsent records ABSENT for every student of the class who has no
// mark yet on the given day. Existing marks are never overwritten.
func (s *AttendanceService) AutoMarkAbsent(ctx context.Context, req dto.AutoMarkAbsentRequest, actor *models.JWTClaims) (*dto.AutoMarkAbsentResponse, error) {
	if !authz.Can(actor, authz.AttendanceAutoAbsent) {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid auto mark payload")
	}
	date, err := s.parseDate(req.Date)
	if err != nil {
		return nil, err
	}

	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Internal(err, "failed to load class")
	}
	if !actor.IsAdmin() && !(actor.IsHeadTeacher() && authz.InCourse(actor, class.CourseID)) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the head teacher of the course can sweep absentees")
	}

	day := models.DayOf(date)
	resp := &dto.AutoMarkAbsentResponse{StudentIDs: []string{}}
	err = database.WithTx(ctx, s.tx, s.config.LockTimeout, func(tx *sqlx.Tx) error {
		sessions, err := s.sessions.ListByClassAndDay(ctx, tx, class.ID, day)
		if err != nil {
			return database.Translate(err, "failed to list class sessions")
		}
		for _, session := range sessions {
			studentIDs, err := s.students.ListIDsBySession(ctx, tx, session.ID, day)
			if err != nil {
				return database.Translate(err, "failed to list session students")
			}
			for _, studentID := range studentIDs {
				inserted, err := s.attendance.InsertAbsentIfMissing(ctx, tx, studentID, session.ID, date, actor.UserID)
				if err != nil {
					return database.Translate(err, "failed to record absence")
				}
				if inserted {
					resp.StudentIDs = append(resp.StudentIDs, studentID)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp.MarkedAbsent = len(resp.StudentIDs)
	for range resp.StudentIDs {
		s.metrics.RecordAttendanceMark(string(models.AttendanceAbsent), "auto")
	}
	s.logger.Info("absentees marked",
		zap.String("class_id", class.ID), zap.String("date", date.Format(dateLayout)),
		zap.Int("enrolled", class.Enrolled), zap.Int("count", resp.MarkedAbsent))
	return resp, nil
}

// SessionReport lists the marks of a session on a date (default today).
func (s *AttendanceService) SessionReport(ctx context.Context, sessionID, date string, actor *models.JWTClaims) (*dto.SessionReport, error) {
	if !authz.Can(actor, authz.AttendanceRead) {
		return nil, appErrors.ErrForbidden
	}
	day, err := s.parseDate(date)
	if err != nil {
		return nil, err
	}
	session, err := s.scopedSession(ctx, sessionID, actor)
	if err != nil {
		return nil, err
	}
	rows, err := s.attendance.ListBySessionAndDate(ctx, session.ID, day)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load attendance")
	}
	if rows == nil {
		rows = []models.AttendanceReportRow{}
	}
	return &dto.SessionReport{Session: *session, Date: day.Format(dateLayout), Records: rows}, nil
}

// SessionSheet renders the session report as a printable PDF with a
// signature column.
func (s *AttendanceService) SessionSheet(ctx context.Context, sessionID, date string, actor *models.JWTClaims) ([]byte, string, error) {
	report, err := s.SessionReport(ctx, sessionID, date, actor)
	if err != nil {
		return nil, "", err
	}
	rows := make([][]string, 0, len(report.Records))
	for i, rec := range report.Records {
		scanned := "-"
		if rec.ScanTime != nil {
			scanned = rec.ScanTime.In(s.config.Location).Format("15:04")
		}
		rows = append(rows, []string{fmt.Sprintf("%d", i+1), rec.StudentNumber, rec.StudentName, string(rec.Status), scanned, ""})
	}
	sheet := export.Sheet{
		Title: "Attendance Sheet",
		Subtitle: []string{
			fmt.Sprintf("%s %s-%s", dayLabel(report.Session.Day), report.Session.StartTime, report.Session.EndTime),
			"Date: " + report.Date,
		},
		Headers: []string{"No", "Student No", "Name", "Status", "Scanned", "Signature"},
		Widths:  []float64{1, 3, 6, 3, 2, 4},
		Rows:    rows,
	}
	data, err := s.sheets.Render(sheet)
	if err != nil {
		return nil, "", appErrors.Internal(err, "failed to render attendance sheet")
	}
	filename := fmt.Sprintf("attendance-%s-%s.pdf", report.Session.ID, report.Date)
	return data, filename, nil
}

// StudentQRCode renders the PNG QR code a student shows at the scanner.
// Students may only fetch their own code.
func (s *AttendanceService) StudentQRCode(ctx context.Context, studentID string, actor *models.JWTClaims) ([]byte, error) {
	if !authz.Can(actor, authz.StudentQR) {
		return nil, appErrors.ErrForbidden
	}
	if actor.Role == models.RoleStudent && actor.UserID != studentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only view their own QR code")
	}
	student, err := s.students.FindByID(ctx, nil, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Internal(err, "failed to load student")
	}
	if actor.Role != models.RoleStudent && !actor.IsAdmin() {
		class, err := s.classes.FindByID(ctx, student.ClassID)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load class")
		}
		if !authz.InCourse(actor, class.CourseID) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
	}

	payload, err := json.Marshal(models.QRPayload{UUID: student.QRUUID, StudentID: student.ID})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to encode QR payload")
	}
	png, err := qrcode.Encode(string(payload), qrcode.Medium, s.config.QRSize)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render QR code")
	}
	return png, nil
}

func (s *AttendanceService) scopedSession(ctx context.Context, sessionID string, actor *models.JWTClaims) (*models.Session, error) {
	session, err := s.sessions.FindByID(ctx, nil, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Internal(err, "failed to load session")
	}
	if !authz.InCourse(actor, session.CourseID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "session belongs to another course")
	}
	return session, nil
}
