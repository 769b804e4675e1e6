package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/weekend-academy-api/internal/middleware"
	"github.com/noah-isme/weekend-academy-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.CurrentUser(c)
}

func queryInt(c *gin.Context, key string) int {
	value, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return value
}
