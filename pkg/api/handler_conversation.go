package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/colloquy-ai/colloquy/pkg/models"
)

// ListConversations handles GET /api/conversations/:projectId.
func (s *Server) ListConversations(c *gin.Context) {
	projectID, ok := pathID(c, "projectId")
	if !ok {
		return
	}

	conversations, err := s.svc.Conversations.ListConversations(c.Request.Context(), currentUserID(c), projectID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

// CreateConversation handles POST /api/conversations/:projectId. The user
// always converses as the System agent, so only the receiver is named.
func (s *Server) CreateConversation(c *gin.Context) {
	projectID, ok := pathID(c, "projectId")
	if !ok {
		return
	}

	var req models.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondSchemaError(c, err)
		return
	}

	conversation, err := s.svc.Conversations.CreateConversation(c.Request.Context(), currentUserID(c), projectID, req.ReceiverID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"conversation": conversation})
}
