package api

import (
	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
)

// HandleWebSocket upgrades GET /ws and hands the connection to the hub. Join
// requests are authorized against project ownership for the session's user.
func (s *Server) HandleWebSocket(c *gin.Context) {
	userID := currentUserID(c)

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}

	authorize := func(projectID int64) bool {
		return s.svc.Projects.UserOwnsProject(c.Request.Context(), userID, projectID)
	}

	// Blocks until the connection closes.
	s.hub.HandleConnection(c.Request.Context(), conn, authorize)
}
