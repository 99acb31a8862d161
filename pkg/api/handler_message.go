package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/colloquy-ai/colloquy/pkg/models"
)

// ListMessages handles GET /api/messages/:conversationId, oldest first.
func (s *Server) ListMessages(c *gin.Context) {
	conversationID, ok := pathID(c, "conversationId")
	if !ok {
		return
	}

	messages, err := s.svc.Messages.ListMessages(c.Request.Context(), currentUserID(c), conversationID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// SendMessage handles POST /api/messages/:conversationId. The sender is the
// System agent; the insert publishes new_message and the worker is nudged.
func (s *Server) SendMessage(c *gin.Context) {
	conversationID, ok := pathID(c, "conversationId")
	if !ok {
		return
	}

	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondSchemaError(c, err)
		return
	}

	userID := currentUserID(c)

	conversation, err := s.svc.Conversations.GetConversation(c.Request.Context(), userID, conversationID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if s.cfg.SnapshotProjectID != 0 && conversation.ProjectID == s.cfg.SnapshotProjectID {
		respondForbidden(c)
		return
	}

	message, err := s.svc.Messages.CreateUserMessage(c.Request.Context(), userID, conversationID, req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	s.nudger.Nudge(c.Request.Context(), message.ProjectID)
	c.JSON(http.StatusCreated, gin.H{"message": message})
}
