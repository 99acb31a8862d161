package api

import (
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	sessionCookie = "colloquy_session"
	userIDKey     = "userID"
)

// requireSession authenticates the session cookie and stores the user id on
// the request context.
func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		value, err := c.Cookie(sessionCookie)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		userID, err := s.sessions.Verify(value)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// requireInternalKey guards the worker/watchdog surface with the pre-shared
// key header.
func (s *Server) requireInternalKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader("X-Brain-Api-Key")
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.BrainAPIKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// securityHeaders sets standard security response headers.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

func currentUserID(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}

// pathID parses a numeric path parameter, answering 400 on garbage.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
