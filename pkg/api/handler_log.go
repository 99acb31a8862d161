package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListLogs handles GET /api/logs/:projectId, newest first.
func (s *Server) ListLogs(c *gin.Context) {
	projectID, ok := pathID(c, "projectId")
	if !ok {
		return
	}

	logs, err := s.svc.Logs.ListLogs(c.Request.Context(), currentUserID(c), projectID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// ClearLogs handles DELETE /api/logs/:projectId.
func (s *Server) ClearLogs(c *gin.Context) {
	projectID, ok := pathID(c, "projectId")
	if !ok {
		return
	}
	if s.protectedProject(projectID) {
		respondForbidden(c)
		return
	}

	if err := s.svc.Logs.ClearLogs(c.Request.Context(), currentUserID(c), projectID); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}
