package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/weekend-academy-api/internal/dto"
	"github.com/noah-isme/weekend-academy-api/internal/models"
	appErrors "github.com/noah-isme/weekend-academy-api/pkg/errors"
	"github.com/noah-isme/weekend-academy-api/pkg/response"
)

type attendanceService interface {
	ScanQR(ctx context.Context, req dto.ScanRequest, actor *models.JWTClaims) (*dto.ScanResponse, error)
	MarkManual(ctx context.Context, req dto.ManualMarkRequest, actor *models.JWTClaims) (*models.Attendance, error)
	BulkMark(ctx context.Context, req dto.BulkMarkRequest, actor *models.JWTClaims) (*dto.BulkMarkResponse, error)
	AutoMarkAbsent(ctx context.Context, req dto.AutoMarkAbsentRequest, actor *models.JWTClaims) (*dto.AutoMarkAbsentResponse, error)
	SessionReport(ctx context.Context, sessionID, date string, actor *models.JWTClaims) (*dto.SessionReport, error)
	SessionSheet(ctx context.Context, sessionID, date string, actor *models.JWTClaims) ([]byte, string, error)
	StudentQRCode(ctx context.Context, studentID string, actor *models.JWTClaims) ([]byte, error)
}

// AttendanceHandler exposes scanning, manual marking and session reports.
type AttendanceHandler struct {
	service attendanceService
}

// NewAttendanceHandler builds an attendance handler.
func NewAttendanceHandler(service attendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: service}
}

// Scan godoc
// @Summary Record attendance from a QR scan
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body dto.ScanRequest true "Scan"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /attendance/scan [post]
func (h *AttendanceHandler) Scan(c *gin.Context) {
	var req dto.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid scan payload"))
		return
	}
	res, err := h.service.ScanQR(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Manual godoc
// @Summary Mark attendance manually
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body dto.ManualMarkRequest true "Mark"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /attendance/scan/manual [post]
func (h *AttendanceHandler) Manual(c *gin.Context) {
	var req dto.ManualMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.service.MarkManual(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Bulk godoc
// @Summary Mark many students of one session
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body dto.BulkMarkRequest true "Marks"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /attendance/scan/bulk [post]
func (h *AttendanceHandler) Bulk(c *gin.Context) {
	var req dto.BulkMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	res, err := h.service.BulkMark(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// AutoMarkAbsent godoc
// @Summary Mark unrecorded students of a class absent
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body dto.AutoMarkAbsentRequest true "Class and date"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /attendance/auto-mark-absent [post]
func (h *AttendanceHandler) AutoMarkAbsent(c *gin.Context) {
	var req dto.AutoMarkAbsentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	res, err := h.service.AutoMarkAbsent(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// SessionReport godoc
// @Summary Attendance of one session on one day
// @Tags Attendance
// @Produce json
// @Param id path string true "Session ID"
// @Param date query string false "YYYY-MM-DD, defaults to today"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/sessions/{id} [get]
func (h *AttendanceHandler) SessionReport(c *gin.Context) {
	report, err := h.service.SessionReport(c.Request.Context(), c.Param("id"), c.Query("date"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// SessionSheet godoc
// @Summary Printable attendance sheet
// @Tags Attendance
// @Produce application/pdf
// @Param id path string true "Session ID"
// @Param date query string false "YYYY-MM-DD, defaults to today"
// @Success 200 {file} file
// @Router /attendance/sessions/{id}/sheet.pdf [get]
func (h *AttendanceHandler) SessionSheet(c *gin.Context) {
	data, filename, err := h.service.SessionSheet(c.Request.Context(), c.Param("id"), c.Query("date"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Binary(c, "application/pdf", filename, data)
}

// StudentQR godoc
// @Summary Student QR code
// @Tags Attendance
// @Produce image/png
// @Param id path string true "Student ID"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/qr [get]
func (h *AttendanceHandler) StudentQR(c *gin.Context) {
	data, err := h.service.StudentQRCode(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Binary(c, "image/png", "", data)
}
