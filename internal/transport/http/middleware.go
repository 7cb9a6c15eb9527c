package http

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/anandk/vidya-server/internal/auth"
)

// ContextKeyRole is the context key for the authenticated admin role.
const ContextKeyRole = "role"

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AdminAuthMiddleware validates admin bearer tokens.
func AdminAuthMiddleware(authService *auth.Service, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			logger.Debug().Msg("missing or malformed authorization header")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing authorization header"})
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			logger.Debug().Err(err).Msg("invalid admin token")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			c.Abort()
			return
		}

		c.Set(ContextKeyRole, claims.Role)
		c.Next()
	}
}

// AgentKeyMiddleware guards the agent-facing routes with a shared
// secret, presented either as a bearer token or an X-Agent-Key header.
func AgentKeyMiddleware(agentKey string, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := c.GetHeader("X-Agent-Key")
		if presented == "" {
			presented, _ = bearerToken(c)
		}

		if agentKey == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(agentKey)) != 1 {
			logger.Debug().Msg("agent key mismatch")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid agent key"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// LoggerMiddleware logs HTTP requests after completion.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	return parts[1], true
}
