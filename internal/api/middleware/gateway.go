package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const anonymousUser = "anonymous"

// GatewayAuth trusts user info from gateway headers (X-User-ID, X-User-Email, X-User-Role).
//
// When AUTH_MODE=gateway the API trusts these headers unconditionally, so it
// must only be reachable through the gateway.
func GatewayAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":      "unauthorized",
				"message":    "Missing X-User-ID header from gateway",
				"request_id": c.GetString("request_id"),
			})
			return
		}

		setGatewayUser(c, userID)
		c.Next()
	}
}

// OptionalGatewayAuth is like GatewayAuth but lets anonymous requests through.
// The web form uses it so visitors without an account keep a session seed.
func OptionalGatewayAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := c.GetHeader("X-User-ID"); userID != "" {
			setGatewayUser(c, userID)
		}
		c.Next()
	}
}

func setGatewayUser(c *gin.Context, userID string) {
	c.Set("user_id", userID)
	c.Set("user_id_str", userID)
	c.Set("user_email", c.GetHeader("X-User-Email"))
	c.Set("user_role", c.GetHeader("X-User-Role"))
}

// GetUserIDFromGateway retrieves the user ID set from gateway headers.
// Anonymous requests report false.
func GetUserIDFromGateway(c *gin.Context) (string, bool) {
	id := c.GetString("user_id_str")
	if id == "" || id == anonymousUser {
		return "", false
	}
	return id, true
}
