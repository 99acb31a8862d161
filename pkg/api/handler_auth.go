package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/colloquy-ai/colloquy/pkg/crypto"
	"github.com/colloquy-ai/colloquy/pkg/models"
)

func (s *Server) setSessionCookie(c *gin.Context, userID int64) {
	value := s.sessions.Issue(userID)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, value, int(crypto.SessionTTL.Seconds()), "/", "", false, true)
}

func (s *Server) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
}

// Register handles POST /api/auth/register.
func (s *Server) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondSchemaError(c, err)
		return
	}

	user, err := s.svc.Users.Register(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	s.setSessionCookie(c, user.ID)
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// Login handles POST /api/auth/login.
func (s *Server) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondSchemaError(c, err)
		return
	}

	user, err := s.svc.Users.Login(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	s.setSessionCookie(c, user.ID)
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// Logout handles POST /api/auth/logout. Sessions are stateless, so logout is
// just dropping the cookie.
func (s *Server) Logout(c *gin.Context) {
	s.clearSessionCookie(c)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// WhoAmI handles GET /api/auth/me.
func (s *Server) WhoAmI(c *gin.Context) {
	user, err := s.svc.Users.GetUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}
