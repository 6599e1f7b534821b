package middleware

import (
	"github.com/Conceptual-Machines/melody-api/internal/config"
	"github.com/gin-gonic/gin"
)

// NoAuth is a pass-through middleware for AUTH_MODE=none.
// It marks every request as anonymous for logging.
func NoAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id_str", anonymousUser)
		c.Next()
	}
}

// Auth picks the middleware for the configured auth mode
func Auth(cfg *config.Config, required bool) gin.HandlerFunc {
	if !cfg.IsGatewayMode() {
		return NoAuth()
	}
	if required {
		return GatewayAuth()
	}
	return OptionalGatewayAuth()
}
