package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/iamasit07/connect4-remote/pkg/auth"
)

const ClientKey = "client"

// apiKeyFromRequest reads the key from "Authorization: Bearer <key>" or,
// for websocket clients that cannot set headers freely, the apikey header
// or query parameter.
func apiKeyFromRequest(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if key := c.GetHeader("apikey"); key != "" {
		return key
	}
	return c.Query("apikey")
}

// APIKeyMiddleware rejects requests without a valid relay API key.
func APIKeyMiddleware(keys *auth.Keys, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := apiKeyFromRequest(c)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing api key"})
			return
		}

		claims, err := keys.Validate(key)
		if err != nil {
			logger.Debug().Err(err).Str("path", c.FullPath()).Msg("rejected api key")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}

		c.Set(ClientKey, claims.Subject)
		c.Next()
	}
}
