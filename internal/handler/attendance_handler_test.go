package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/weekend-academy-api/internal/dto"
	"github.com/noah-isme/weekend-academy-api/internal/middleware"
	"github.com/noah-isme/weekend-academy-api/internal/models"
	appErrors "github.com/noah-isme/weekend-academy-api/pkg/errors"
)

type attendanceServiceMock struct {
	scanResp   *dto.ScanResponse
	scanErr    error
	manualResp *models.Attendance
	bulkResp   *dto.BulkMarkResponse
	autoResp   *dto.AutoMarkAbsentResponse
	autoErr    error
	report     *dto.SessionReport
	sheet      []byte
	qr         []byte
	qrErr      error

	scanCalled   bool
	lastScan     dto.ScanRequest
	lastDate     string
	lastSession  string
	lastStudent  string
	lastBulkSize int
}

func (m *attendanceServiceMock) ScanQR(ctx context.Context, req dto.ScanRequest, actor *models.JWTClaims) (*dto.ScanResponse, error) {
	m.scanCalled = true
	m.lastScan = req
	return m.scanResp, m.scanErr
}

func (m *attendanceServiceMock) MarkManual(ctx context.Context, req dto.ManualMarkRequest, actor *models.JWTClaims) (*models.Attendance, error) {
	return m.manualResp, nil
}

func (m *attendanceServiceMock) BulkMark(ctx context.Context, req dto.BulkMarkRequest, actor *models.JWTClaims) (*dto.BulkMarkResponse, error) {
	m.lastBulkSize = len(req.Records)
	return m.bulkResp, nil
}

func (m *attendanceServiceMock) AutoMarkAbsent(ctx context.Context, req dto.AutoMarkAbsentRequest, actor *models.JWTClaims) (*dto.AutoMarkAbsentResponse, error) {
	return m.autoResp, m.autoErr
}

func (m *attendanceServiceMock) SessionReport(ctx context.Context, sessionID, date string, actor *models.JWTClaims) (*dto.SessionReport, error) {
	m.lastSession = sessionID
	m.lastDate = date
	return m.report, nil
}

func (m *attendanceServiceMock) SessionSheet(ctx context.Context, sessionID, date string, actor *models.JWTClaims) ([]byte, string, error) {
	m.lastSession = sessionID
	m.lastDate = date
	return m.sheet, "attendance-" + sessionID + "-" + date + ".pdf", nil
}

func (m *attendanceServiceMock) StudentQRCode(ctx context.Context, studentID string, actor *models.JWTClaims) ([]byte, error) {
	m.lastStudent = studentID
	return m.qr, m.qrErr
}

func teacherContextClaims() *models.JWTClaims {
	role := models.TeacherRoleAdditional
	course := "course-1"
	return &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher, TeacherRole: &role, CourseID: &course}
}

func TestAttendanceHandlerScan(t *testing.T) {
	mockSvc := &attendanceServiceMock{scanResp: &dto.ScanResponse{
		Attendance: &models.Attendance{ID: "att-1", Status: models.AttendancePresent},
		Status:     models.AttendancePresent,
		Message:    "Attendance recorded",
	}}
	handler := NewAttendanceHandler(mockSvc)

	c, w := newJSONContext(http.MethodPost, "/attendance/scan", []byte(`{"qrData":"{\"studentId\":\"stu-1\"}","sessionId":"sess-1"}`))
	c.Set(middleware.ContextUserKey, teacherContextClaims())
	handler.Scan(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sess-1", mockSvc.lastScan.SessionID)
	assert.Contains(t, w.Body.String(), `"status":"PRESENT"`)
}

func TestAttendanceHandlerScanInvalidQR(t *testing.T) {
	mockSvc := &attendanceServiceMock{scanErr: appErrors.Clone(appErrors.ErrInvalidQR, "QR payload is not valid JSON")}
	handler := NewAttendanceHandler(mockSvc)

	c, w := newJSONContext(http.MethodPost, "/attendance/scan", []byte(`{"qrData":"garbage","sessionId":"sess-1"}`))
	handler.Scan(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_QR")
}

func TestAttendanceHandlerScanMalformedBody(t *testing.T) {
	mockSvc := &attendanceServiceMock{}
	handler := NewAttendanceHandler(mockSvc)

	c, w := newJSONContext(http.MethodPost, "/attendance/scan", []byte(`[`))
	handler.Scan(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, mockSvc.scanCalled)
}

func TestAttendanceHandlerBulk(t *testing.T) {
	mockSvc := &attendanceServiceMock{bulkResp: &dto.BulkMarkResponse{
		AttendanceRecords: []models.Attendance{{ID: "att-1"}},
		Count:             1,
		Failed:            []dto.FailedItem{{ID: "stu-9", Reason: "student not found"}},
	}}
	handler := NewAttendanceHandler(mockSvc)

	body := []byte(`{"sessionId":"sess-1","attendanceRecords":[{"studentId":"stu-1","status":"PRESENT"},{"studentId":"stu-9","status":"ABSENT"}]}`)
	c, w := newJSONContext(http.MethodPost, "/attendance/scan/bulk", body)
	handler.Bulk(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, mockSvc.lastBulkSize)
	assert.Contains(t, w.Body.String(), "stu-9")
}

func TestAttendanceHandlerAutoMarkAbsentForbidden(t *testing.T) {
	mockSvc := &attendanceServiceMock{autoErr: appErrors.ErrForbidden}
	handler := NewAttendanceHandler(mockSvc)

	c, w := newJSONContext(http.MethodPost, "/attendance/auto-mark-absent", []byte(`{"classId":"class-1"}`))
	c.Set(middleware.ContextUserKey, teacherContextClaims())
	handler.AutoMarkAbsent(c)

	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestAttendanceHandlerSessionReportPassesDate(t *testing.T) {
	mockSvc := &attendanceServiceMock{report: &dto.SessionReport{Date: "2026-03-07"}}
	handler := NewAttendanceHandler(mockSvc)

	c, w := newJSONContext(http.MethodGet, "/attendance/sessions/sess-1?date=2026-03-07", nil)
	c.Params = gin.Params{{Key: "id", Value: "sess-1"}}
	handler.SessionReport(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sess-1", mockSvc.lastSession)
	assert.Equal(t, "2026-03-07", mockSvc.lastDate)
}

func TestAttendanceHandlerSessionSheetStreamsPDF(t *testing.T) {
	mockSvc := &attendanceServiceMock{sheet: []byte("%PDF-1.3 test")}
	handler := NewAttendanceHandler(mockSvc)

	c, w := newJSONContext(http.MethodGet, "/attendance/sessions/sess-1/sheet.pdf?date=2026-03-07", nil)
	c.Params = gin.Params{{Key: "id", Value: "sess-1"}}
	handler.SessionSheet(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attendance-sess-1-2026-03-07.pdf")
	assert.Equal(t, "%PDF-1.3 test", w.Body.String())
}

func TestAttendanceHandlerStudentQR(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	mockSvc := &attendanceServiceMock{qr: png}
	handler := NewAttendanceHandler(mockSvc)

	c, w := newJSONContext(http.MethodGet, "/students/stu-1/qr", nil)
	c.Params = gin.Params{{Key: "id", Value: "stu-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent})
	handler.StudentQR(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, png, w.Body.Bytes())
	assert.Equal(t, "stu-1", mockSvc.lastStudent)
}

func TestAttendanceHandlerStudentQRForbidden(t *testing.T) {
	mockSvc := &attendanceServiceMock{qrErr: appErrors.ErrForbidden}
	handler := NewAttendanceHandler(mockSvc)

	c, w := newJSONContext(http.MethodGet, "/students/stu-2/qr", nil)
	c.Params = gin.Params{{Key: "id", Value: "stu-2"}}
	handler.StudentQR(c)

	require.Equal(t, http.StatusForbidden, w.Code)
}
