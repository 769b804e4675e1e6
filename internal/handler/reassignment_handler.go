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

type reassignmentService interface {
	Request(ctx context.Context, req dto.CreateReassignmentRequest, actor *models.JWTClaims) (*models.ReassignmentRequest, error)
	Approve(ctx context.Context, requestID string, actor *models.JWTClaims) (*models.ReassignmentRequest, error)
	Deny(ctx context.Context, requestID, reason string, actor *models.JWTClaims) (*models.ReassignmentRequest, error)
	List(ctx context.Context, filter models.ReassignmentFilter, actor *models.JWTClaims) ([]models.ReassignmentRequest, *models.Pagination, error)
}

// ReassignmentHandler exposes session move requests.
type ReassignmentHandler struct {
	service reassignmentService
}

// NewReassignmentHandler builds a reassignment handler.
func NewReassignmentHandler(service reassignmentService) *ReassignmentHandler {
	return &ReassignmentHandler{service: service}
}

// Create godoc
// @Summary Request a move to another session of the same day
// @Tags Reassignments
// @Accept json
// @Produce json
// @Param payload body dto.CreateReassignmentRequest true "Target session"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /reassignments [post]
func (h *ReassignmentHandler) Create(c *gin.Context) {
	var req dto.CreateReassignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	request, err := h.service.Request(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// List godoc
// @Summary List reassignment requests
// @Tags Reassignments
// @Produce json
// @Param status query string false "PENDING, APPROVED or DENIED"
// @Param studentId query string false "Student filter"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /reassignments [get]
func (h *ReassignmentHandler) List(c *gin.Context) {
	filter := models.ReassignmentFilter{
		CourseID:  c.Query("courseId"),
		StudentID: c.Query("studentId"),
		Status:    models.ReassignmentStatus(strings.ToUpper(c.Query("status"))),
		Page:      queryInt(c, "page"),
		PageSize:  queryInt(c, "pageSize"),
	}
	items, pagination, err := h.service.List(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Approve godoc
// @Summary Approve a reassignment request
// @Tags Reassignments
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /reassignments/{id}/approve [post]
func (h *ReassignmentHandler) Approve(c *gin.Context) {
	request, err := h.service.Approve(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Deny godoc
// @Summary Deny a reassignment request
// @Tags Reassignments
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.ReviewReassignmentRequest false "Optional reason"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /reassignments/{id}/deny [post]
func (h *ReassignmentHandler) Deny(c *gin.Context) {
	var req dto.ReviewReassignmentRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	request, err := h.service.Deny(c.Request.Context(), c.Param("id"), req.Reason, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}
