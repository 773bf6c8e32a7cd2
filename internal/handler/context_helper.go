package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/edubase/center-ops-api/internal/middleware"
	"github.com/edubase/center-ops-api/internal/models"
)

// claimsFromContext extracts the authenticated actor placed by the JWT
// middleware. Returns nil when the request carries no valid identity.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	if value, ok := c.Get(middleware.ContextUserKey); ok {
		if claims, ok := value.(*models.JWTClaims); ok {
			return claims
		}
	}
	return nil
}
