package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/weekend-academy-api/internal/authz"
	appErrors "github.com/noah-isme/weekend-academy-api/pkg/errors"
	"github.com/noah-isme/weekend-academy-api/pkg/response"
)

// Require admits the request only when the authenticated principal holds the
// capability for one of actions. Course scoping is left to the services.
func Require(actions ...authz.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := CurrentUser(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		for _, action := range actions {
			if authz.Can(claims, action) {
				c.Next()
				return
			}
		}
		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}
