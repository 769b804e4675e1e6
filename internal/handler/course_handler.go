package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/weekend-academy-api/internal/dto"
	"github.com/noah-isme/weekend-academy-api/internal/middleware"
	"github.com/noah-isme/weekend-academy-api/internal/models"
	appErrors "github.com/noah-isme/weekend-academy-api/pkg/errors"
	"github.com/noah-isme/weekend-academy-api/pkg/response"
)

type courseService interface {
	ListActive(ctx context.Context) ([]models.Course, bool, error)
	Sessions(ctx context.Context, courseID string) (*dto.CourseSessionsResponse, error)
	ReplaceHeadTeacher(ctx context.Context, courseID string, req dto.ReplaceHeadTeacherRequest, actor *models.JWTClaims) (*dto.ReplaceHeadTeacherResponse, error)
	UpdateStatus(ctx context.Context, courseID string, req dto.UpdateCourseStatusRequest, actor *models.JWTClaims) (*models.Course, error)
	Delete(ctx context.Context, courseID string, actor *models.JWTClaims) error
}

// CourseHandler serves the public catalog and course administration.
type CourseHandler struct {
	service courseService
}

// NewCourseHandler builds a course handler.
func NewCourseHandler(service courseService) *CourseHandler {
	return &CourseHandler{service: service}
}

// ListActive godoc
// @Summary List active courses
// @Tags Courses
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) ListActive(c *gin.Context) {
	courses, hit, err := h.service.ListActive(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, courses, nil, middleware.ExtractMeta(c))
}

// Sessions godoc
// @Summary List a course's sessions with live availability
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id}/sessions [get]
func (h *CourseHandler) Sessions(c *gin.Context) {
	res, err := h.service.Sessions(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// ReplaceHeadTeacher godoc
// @Summary Promote a teacher to head of a course
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body dto.ReplaceHeadTeacherRequest true "Replacement"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id}/replace-head-teacher [post]
func (h *CourseHandler) ReplaceHeadTeacher(c *gin.Context) {
	var req dto.ReplaceHeadTeacherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	res, err := h.service.ReplaceHeadTeacher(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// UpdateStatus godoc
// @Summary Change a course status
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body dto.UpdateCourseStatusRequest true "Status"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /courses/{id}/status [patch]
func (h *CourseHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateCourseStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	course, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Delete godoc
// @Summary Delete a course without enrollments
// @Tags Courses
// @Param id path string true "Course ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /courses/{id} [delete]
func (h *CourseHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
