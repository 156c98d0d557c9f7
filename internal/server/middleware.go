package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"weeknotes.app/server/internal/instrumentation"
	"weeknotes.app/server/internal/logging"
)

const userIDKey = "weeknotes.userID"

// BearerAuth resolves the request user from a static token allowlist
// (token -> user ID). Unknown or missing tokens get a 401.
func BearerAuth(users map[string]string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		userID, ok := users[token]
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// userFrom returns the authenticated user ID set by BearerAuth.
func userFrom(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// RequestLogger logs each request and records the HTTP request metric.
func RequestLogger(logger *slog.Logger, metrics *instrumentation.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := c.Writer.Status()

		metrics.RecordHTTPRequest(c.Request.Context(), c.Request.Method, path, status, duration)

		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.Duration("duration", duration),
			logging.UserHash(userFrom(c)),
		)
	}
}
