package dto

import (
	"github.com/noah-isme/weekend-academy-api/internal/models"
)

// ScanRequest carries the raw QR text read by the scanner.
type ScanRequest struct {
	QRData    string `json:"qrData" validate:"required"`
	SessionID string `json:"sessionId" validate:"required"`
}

// ScanResponse reports the derived mark.
type ScanResponse struct {
	Attendance *models.Attendance      `json:"attendance"`
	Status     models.AttendanceStatus `json:"status"`
	Message    string                  `json:"message"`
}

// ManualMarkRequest records a mark without a scan.
type ManualMarkRequest struct {
	StudentID string                  `json:"studentId" validate:"required"`
	SessionID string                  `json:"sessionId" validate:"required"`
	Status    models.AttendanceStatus `json:"status" validate:"required,attendance_status"`
}

// BulkMarkRecord is one entry of a bulk mark.
type BulkMarkRecord struct {
	StudentID string                  `json:"studentId"`
	Status    models.AttendanceStatus `json:"status"`
}

// BulkMarkRequest marks many students of one session.
type BulkMarkRequest struct {
	SessionID string           `json:"sessionId" validate:"required"`
	Records   []BulkMarkRecord `json:"attendanceRecords" validate:"required,min=1,max=500"`
}

// BulkMarkResponse lists stored marks and rejected entries.
type BulkMarkResponse struct {
	AttendanceRecords []models.Attendance `json:"attendanceRecords"`
	Count             int                 `json:"count"`
	Failed            []FailedItem        `json:"failed"`
}

// AutoMarkAbsentRequest targets a class; Date defaults to today (YYYY-MM-DD).
type AutoMarkAbsentRequest struct {
	ClassID string `json:"classId" validate:"required"`
	Date    string `json:"date"`
}

// AutoMarkAbsentResponse lists students newly marked absent.
type AutoMarkAbsentResponse struct {
	MarkedAbsent int      `json:"markedAbsent"`
	StudentIDs   []string `json:"studentIds"`
}

// SessionReport lists the marks of one session on one day.
type SessionReport struct {
	Session models.Session               `json:"session"`
	Date    string                       `json:"date"`
	Records []models.AttendanceReportRow `json:"records"`
}
