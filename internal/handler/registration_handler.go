package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/weekend-academy-api/internal/dto"
	"github.com/noah-isme/weekend-academy-api/internal/models"
	appErrors "github.com/noah-isme/weekend-academy-api/pkg/errors"
	"github.com/noah-isme/weekend-academy-api/pkg/response"
)

type registrationService interface {
	Submit(ctx context.Context, req dto.SubmitRegistrationRequest) (*dto.SubmitRegistrationResponse, error)
	Approve(ctx context.Context, registrationID string, actor *models.JWTClaims) (*dto.ApproveRegistrationResponse, error)
	BulkApprove(ctx context.Context, req dto.BulkApproveRequest, actor *models.JWTClaims) (*dto.BulkApproveResponse, error)
	Reject(ctx context.Context, registrationID, reason string, actor *models.JWTClaims) (*models.Registration, error)
	ExpireStale(ctx context.Context, req dto.ExpireRegistrationsRequest, actor *models.JWTClaims) (*dto.ExpireRegistrationsResponse, error)
	List(ctx context.Context, filter models.RegistrationFilter, actor *models.JWTClaims) ([]models.Registration, *models.Pagination, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Registration, error)
}

// RegistrationHandler exposes the public enrollment form and its review queue.
type RegistrationHandler struct {
	service registrationService
}

// NewRegistrationHandler builds a registration handler.
func NewRegistrationHandler(service registrationService) *RegistrationHandler {
	return &RegistrationHandler{service: service}
}

// Submit godoc
// @Summary Submit a registration
// @Description Public enrollment form choosing one Saturday and one Sunday session
// @Tags Registrations
// @Accept json
// @Produce json
// @Param payload body dto.SubmitRegistrationRequest true "Registration"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /register [post]
func (h *RegistrationHandler) Submit(c *gin.Context) {
	var req dto.SubmitRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid registration payload"))
		return
	}
	res, err := h.service.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// List godoc
// @Summary List registrations
// @Tags Registrations
// @Produce json
// @Param status query string false "PENDING, APPROVED, REJECTED or EXPIRED"
// @Param courseId query string false "Course filter (admins only)"
// @Param search query string false "Name or email search"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /registrations [get]
func (h *RegistrationHandler) List(c *gin.Context) {
	filter := models.RegistrationFilter{
		CourseID: c.Query("courseId"),
		Status:   models.RegistrationStatus(strings.ToUpper(c.Query("status"))),
		Search:   c.Query("search"),
		Page:     queryInt(c, "page"),
		PageSize: queryInt(c, "pageSize"),
	}
	items, pagination, err := h.service.List(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get a registration
// @Tags Registrations
// @Produce json
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /registrations/{id} [get]
func (h *RegistrationHandler) Get(c *gin.Context) {
	reg, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reg, nil)
}

// Approve godoc
// @Summary Approve a pending registration
// @Tags Registrations
// @Produce json
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registrations/{id}/approve [post]
func (h *RegistrationHandler) Approve(c *gin.Context) {
	res, err := h.service.Approve(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// BulkApprove godoc
// @Summary Approve several registrations
// @Tags Registrations
// @Accept json
// @Produce json
// @Param payload body dto.BulkApproveRequest true "Registration IDs"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /registrations/bulk-approve [post]
func (h *RegistrationHandler) BulkApprove(c *gin.Context) {
	var req dto.BulkApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	res, err := h.service.BulkApprove(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Reject godoc
// @Summary Reject a pending registration
// @Tags Registrations
// @Accept json
// @Produce json
// @Param id path string true "Registration ID"
// @Param payload body dto.RejectRegistrationRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registrations/{id}/reject [post]
func (h *RegistrationHandler) Reject(c *gin.Context) {
	var req dto.RejectRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	reg, err := h.service.Reject(c.Request.Context(), c.Param("id"), req.Reason, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reg, nil)
}

// Expire godoc
// @Summary Expire stale pending registrations
// @Tags Registrations
// @Accept json
// @Produce json
// @Param payload body dto.ExpireRegistrationsRequest false "Threshold override"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /registrations/expire [post]
func (h *RegistrationHandler) Expire(c *gin.Context) {
	var req dto.ExpireRegistrationsRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	res, err := h.service.ExpireStale(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}
