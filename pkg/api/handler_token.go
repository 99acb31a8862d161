package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/colloquy-ai/colloquy/pkg/models"
)

// ListTokens handles GET /api/tokens. Secrets never appear in responses.
func (s *Server) ListTokens(c *gin.Context) {
	tokens, err := s.svc.Tokens.ListTokens(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

// CreateToken handles POST /api/tokens.
func (s *Server) CreateToken(c *gin.Context) {
	var req models.CreateTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondSchemaError(c, err)
		return
	}

	token, err := s.svc.Tokens.CreateToken(c.Request.Context(), currentUserID(c), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": token})
}

// DeleteToken handles DELETE /api/tokens/:id.
func (s *Server) DeleteToken(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if s.cfg.DemoTokenID != 0 && id == s.cfg.DemoTokenID {
		respondForbidden(c)
		return
	}

	if err := s.svc.Tokens.DeleteToken(c.Request.Context(), currentUserID(c), id); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// EnableToken handles PATCH /api/tokens/:id/enable.
func (s *Server) EnableToken(c *gin.Context) {
	s.setTokenActive(c, true)
}

// DisableToken handles PATCH /api/tokens/:id/disable. The demo token cannot
// be disabled.
func (s *Server) DisableToken(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if s.cfg.DemoTokenID != 0 && id == s.cfg.DemoTokenID {
		respondForbidden(c)
		return
	}
	s.updateTokenActive(c, id, false)
}

func (s *Server) setTokenActive(c *gin.Context, active bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	s.updateTokenActive(c, id, active)
}

func (s *Server) updateTokenActive(c *gin.Context, id int64, active bool) {
	token, err := s.svc.Tokens.SetTokenActive(c.Request.Context(), currentUserID(c), id, active)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}
