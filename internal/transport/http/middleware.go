package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/fieldlab/arena-server/internal/auth"
)

const (
	// ContextKeyClientID is the context key for the authenticated client id.
	ContextKeyClientID = "client_id"
	// ContextKeyAdmin is the context key for the admin flag.
	ContextKeyAdmin = "admin"
)

// AuthMiddleware creates a middleware that validates JWT tokens.
func AuthMiddleware(authService *auth.Service, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.Debug().Msg("missing authorization header")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing authorization header"})
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			logger.Debug().Msg("invalid authorization header format")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			c.Abort()
			return
		}

		c.Set(ContextKeyClientID, claims.ClientID)
		c.Set(ContextKeyAdmin, claims.Admin)
		c.Next()
	}
}

// RequireAdmin rejects requests whose token does not carry the admin flag.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ContextKeyAdmin) {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "admin access required"})
			c.Abort()
			return
		}
		c.Next()
	}
}
