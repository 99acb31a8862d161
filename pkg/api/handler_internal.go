package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/colloquy-ai/colloquy/pkg/models"
)

// InternalGetContext handles GET /api/internal/projects/:id/context.
func (s *Server) InternalGetContext(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	pc, err := s.svc.Projects.GetContext(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, pc)
}

// InternalGetFlags handles GET /api/internal/projects/:id/flags.
func (s *Server) InternalGetFlags(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	flags, err := s.svc.Projects.GetFlags(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, flags)
}

// InternalPendingQueue handles GET /api/internal/projects/:id/pending.
func (s *Server) InternalPendingQueue(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	messages, err := s.svc.Messages.PendingQueue(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// InternalOldestPending handles GET /api/internal/projects/:id/oldest-pending.
func (s *Server) InternalOldestPending(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ts, err := s.svc.Messages.OldestPending(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"oldestPending": ts})
}

// InternalRecentAgentMessages handles
// GET /api/internal/projects/:id/recent-messages/:agentId?limit=N.
func (s *Server) InternalRecentAgentMessages(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	agentID, ok := pathID(c, "agentId")
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "14"))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	messages, err := s.svc.Messages.RecentAgentMessages(c.Request.Context(), id, agentID, limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// InternalListSummaries handles GET /api/internal/projects/:id/summaries.
func (s *Server) InternalListSummaries(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	summaries, err := s.svc.Summaries.ListSummaries(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summaries": summaries})
}

// InternalGetSummary handles GET /api/internal/projects/:id/summaries/:agentId.
func (s *Server) InternalGetSummary(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	agentID, ok := pathID(c, "agentId")
	if !ok {
		return
	}
	summary, err := s.svc.Summaries.GetSummary(c.Request.Context(), id, agentID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

// InternalDecrementBudget handles POST /api/internal/projects/:id/decrement-budget.
func (s *Server) InternalDecrementBudget(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	budget, err := s.svc.Projects.DecrementBudget(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"budget": budget})
}

// InternalIncrementAgentCount handles
// POST /api/internal/projects/:id/increment-count/:agentId.
func (s *Server) InternalIncrementAgentCount(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	agentID, ok := pathID(c, "agentId")
	if !ok {
		return
	}
	count, err := s.svc.Summaries.IncrementAgentCount(c.Request.Context(), id, agentID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messageCount": count})
}

type pauseRequest struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// InternalPause handles POST /api/internal/projects/:id/pause.
func (s *Server) InternalPause(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req pauseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondSchemaError(c, err)
		return
	}
	if req.Code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}

	if err := s.svc.Projects.Pause(c.Request.Context(), id, req.Code, req.Message); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// InternalActiveProjects handles GET /api/internal/active-projects.
func (s *Server) InternalActiveProjects(c *gin.Context) {
	ids, err := s.svc.Projects.ActiveProjects(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projectIds": ids})
}

// InternalCreateAgentMessage handles POST /api/internal/messages.
func (s *Server) InternalCreateAgentMessage(c *gin.Context) {
	var req models.CreateAgentMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondSchemaError(c, err)
		return
	}

	message, err := s.svc.Messages.CreateAgentMessage(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": message})
}

// InternalUpdateMessageStatus handles PATCH /api/internal/messages/:id/status.
func (s *Server) InternalUpdateMessageStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req models.UpdateMessageStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondSchemaError(c, err)
		return
	}

	message, err := s.svc.Messages.UpdateMessageStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": message})
}

// InternalCreateLog handles POST /api/internal/logs.
func (s *Server) InternalCreateLog(c *gin.Context) {
	var req models.CreateLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondSchemaError(c, err)
		return
	}

	log, err := s.svc.Logs.Append(c.Request.Context(), req.ProjectID, req.Level, req.Code, req.Message)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"log": log})
}

// InternalUpsertSummary handles PUT /api/internal/summaries.
func (s *Server) InternalUpsertSummary(c *gin.Context) {
	var req models.UpsertSummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondSchemaError(c, err)
		return
	}

	summary, err := s.svc.Summaries.UpsertSummary(c.Request.Context(), req.ProjectID, req.AgentID, req.Summary, req.Snapshot)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

// InternalNudge handles POST /api/internal/nudge, the remote-worker wake-up.
func (s *Server) InternalNudge(c *gin.Context) {
	var req models.NudgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondSchemaError(c, err)
		return
	}

	s.nudger.Nudge(c.Request.Context(), req.ProjectID)
	c.JSON(http.StatusAccepted, gin.H{"status": "scheduled"})
}
