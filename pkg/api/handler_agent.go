package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/colloquy-ai/colloquy/pkg/models"
)

// ListAgents handles GET /api/agents.
func (s *Server) ListAgents(c *gin.Context) {
	agents, err := s.svc.Agents.ListAgents(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": agents})
}

// CreateAgent handles POST /api/agents.
func (s *Server) CreateAgent(c *gin.Context) {
	var req models.CreateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondSchemaError(c, err)
		return
	}

	agent, err := s.svc.Agents.CreateAgent(c.Request.Context(), currentUserID(c), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"agent": agent})
}

// GetAgent handles GET /api/agents/:id.
func (s *Server) GetAgent(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	agent, err := s.svc.Agents.GetAgent(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent": agent})
}

// DeleteAgent handles DELETE /api/agents/:id.
func (s *Server) DeleteAgent(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := s.svc.Agents.DeleteAgent(c.Request.Context(), currentUserID(c), id); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
