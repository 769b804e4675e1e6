package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/weekend-academy-api/internal/authz"
	"github.com/noah-isme/weekend-academy-api/internal/dto"
	"github.com/noah-isme/weekend-academy-api/internal/models"
	appErrors "github.com/noah-isme/weekend-academy-api/pkg/errors"
	"github.com/noah-isme/weekend-academy-api/pkg/response"
)

type authService interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error)
}

// AuthHandler exposes sign-in and token introspection.
type AuthHandler struct {
	service authService
}

// NewAuthHandler builds the handler around the auth service.
func NewAuthHandler(svc authService) *AuthHandler {
	return &AuthHandler{service: svc}
}

// Login godoc
// @Summary Authenticate user
// @Description Authenticate an admin, teacher or student by email and password
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}
	req.IP = c.ClientIP()

	res, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// Me godoc
// @Summary Get current principal
// @Description Returns the identity, course scope and capabilities carried by the bearer token
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope{data=dto.MeResponse}
// @Failure 401 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	me := dto.MeResponse{
		UserInfo: models.UserInfo{
			ID:          claims.UserID,
			Email:       claims.Email,
			Role:        claims.Role,
			TeacherRole: claims.TeacherRole,
			CourseID:    claims.CourseID,
		},
		Permissions: authz.Granted(claims),
	}
	if claims.ExpiresAt != nil {
		expires := claims.ExpiresAt.Time
		me.ExpiresAt = &expires
	}
	response.JSON(c, http.StatusOK, me, nil)
}
