package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/PixlGalaxy/EagleDocs/internal/middleware"
	"github.com/PixlGalaxy/EagleDocs/internal/models"
	appErrors "github.com/PixlGalaxy/EagleDocs/pkg/errors"
	"github.com/PixlGalaxy/EagleDocs/pkg/response"
)

// requireCaller returns the authenticated caller. When the JWT middleware did not run
// or stored something unexpected it writes a 401 and reports false.
func requireCaller(c *gin.Context) (*models.JWTClaims, bool) {
	if value, exists := c.Get(middleware.ContextUserKey); exists {
		if claims, ok := value.(*models.JWTClaims); ok && claims != nil && claims.UserID != "" {
			return claims, true
		}
	}
	response.Error(c, appErrors.ErrUnauthorized)
	return nil, false
}
