package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/colloquy-ai/colloquy/pkg/models"
)

// ListProjects handles GET /api/projects.
func (s *Server) ListProjects(c *gin.Context) {
	projects, err := s.svc.Projects.ListProjects(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// CreateProject handles POST /api/projects.
func (s *Server) CreateProject(c *gin.Context) {
	var req models.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondSchemaError(c, err)
		return
	}

	userID := currentUserID(c)
	if req.HasLimit {
		req.MessageLimit = s.clampLimit(userID, req.MessageLimit)
	}

	project, err := s.svc.Projects.CreateProject(c.Request.Context(), userID, req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"project": project})
}

// GetProject handles GET /api/projects/:id.
func (s *Server) GetProject(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	detail, err := s.svc.Projects.GetProjectDetail(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": detail})
}

// DeleteProject handles DELETE /api/projects/:id.
func (s *Server) DeleteProject(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if s.protectedProject(id) {
		respondForbidden(c)
		return
	}

	if err := s.svc.Projects.DeleteProject(c.Request.Context(), currentUserID(c), id); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// SetProjectStatus handles POST /api/projects/:id/status and
// PATCH /api/settings/project/:id/pause. Resuming nudges the worker.
func (s *Server) SetProjectStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if s.protectedProject(id) {
		respondForbidden(c)
		return
	}

	var req models.SetPausedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondSchemaError(c, err)
		return
	}

	project, err := s.svc.Projects.SetPaused(c.Request.Context(), currentUserID(c), id, req.Paused)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if !project.Paused {
		s.nudger.Nudge(c.Request.Context(), project.ID)
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

// SetProjectToken handles PATCH /api/settings/project/:id/token.
func (s *Server) SetProjectToken(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if s.protectedProject(id) {
		respondForbidden(c)
		return
	}

	var req models.SetTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondSchemaError(c, err)
		return
	}

	project, err := s.svc.Projects.SetToken(c.Request.Context(), currentUserID(c), id, req.TokenID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

// SetProjectLimit handles PATCH /api/settings/project/:id/limit.
func (s *Server) SetProjectLimit(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if s.protectedProject(id) {
		respondForbidden(c)
		return
	}

	var req models.SetLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondSchemaError(c, err)
		return
	}

	userID := currentUserID(c)
	project, err := s.svc.Projects.SetLimit(c.Request.Context(), userID, id, s.clampLimit(userID, req.Limit))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

// clampLimit caps the message budget for the demo account.
func (s *Server) clampLimit(userID int64, limit int) int {
	if s.cfg.DemoUserID != 0 && userID == s.cfg.DemoUserID && limit > s.cfg.DemoMessageLimitMax {
		return s.cfg.DemoMessageLimitMax
	}
	return limit
}
