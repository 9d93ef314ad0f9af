package admin

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminHeader carries the venue admin session token.
const AdminHeader = "X-Venue-Admin"

// Middleware guards admin-only routes. The token itself names the venue it
// was issued for; when the route carries a :venueId param the two must
// match. Handlers whose venue id arrives in the body compare it against
// the "admin_venue_id" context value set here.
func Middleware(service *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(AdminHeader)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing " + AdminHeader})
			return
		}

		venueID, err := service.VenueForToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Session expired"})
			return
		}
		if param := c.Param("venueId"); param != "" && param != venueID {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token does not match venue"})
			return
		}

		if err := service.RequireAdmin(c.Request.Context(), venueID, token); err != nil {
			status := http.StatusUnauthorized
			msg := "Session expired"
			if !errors.Is(err, ErrSessionExpired) && !errors.Is(err, ErrUnauthorized) {
				status = http.StatusInternalServerError
				msg = "Authorization check failed"
			}
			c.AbortWithStatusJSON(status, gin.H{"error": msg})
			return
		}

		c.Set("admin_venue_id", venueID)
		c.Set("admin_token", token)
		c.Next()
	}
}
