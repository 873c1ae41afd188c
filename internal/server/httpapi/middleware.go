package httpapi

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/ecomauth/internal/common"
	"github.com/dmitrijs2005/ecomauth/internal/server/models"
	"github.com/dmitrijs2005/ecomauth/internal/server/services"
	"github.com/gin-gonic/gin"
)

const userKey = "user"

// requireRole lets the request through only for active, approved users
// holding one of the accepted roles. The user is stored under userKey.
func (s *HTTPServer) requireRole(accepted ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		user, err := s.auth.RequireRole(ctx, c.GetHeader(common.AuthorizationHeaderName), accepted...)
		if err != nil {
			status := services.StatusFor(err)
			if status == http.StatusInternalServerError {
				s.logger.Error(ctx, "role check failed", "error", err)
				c.AbortWithStatusJSON(status, services.Failure(status, "", nil))
				return
			}
			c.AbortWithStatusJSON(status, services.Failure(status, common.MessageOf(err), nil))
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

func (s *HTTPServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Debug(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
