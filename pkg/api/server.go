package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/colloquy-ai/colloquy/pkg/config"
	"github.com/colloquy-ai/colloquy/pkg/crypto"
	"github.com/colloquy-ai/colloquy/pkg/database"
	"github.com/colloquy-ai/colloquy/pkg/events"
	"github.com/colloquy-ai/colloquy/pkg/services"
	"github.com/colloquy-ai/colloquy/pkg/worker"
)

// Services bundles the service layer handed to the server.
type Services struct {
	Users         *services.UserService
	Agents        *services.AgentService
	Tokens        *services.TokenService
	Projects      *services.ProjectService
	Conversations *services.ConversationService
	Messages      *services.MessageService
	Summaries     *services.SummaryService
	Logs          *services.LogService
}

// Server is the HTTP API: the user-facing surface, the internal surface for
// the worker and watchdog, and the live-update WebSocket endpoint.
type Server struct {
	cfg      *config.Config
	db       *database.Client
	svc      Services
	hub      *events.Hub
	nudger   worker.Nudger
	sessions *crypto.SessionSigner
}

// NewServer creates the API server.
func NewServer(cfg *config.Config, db *database.Client, svc Services, hub *events.Hub, nudger worker.Nudger) *Server {
	return &Server{
		cfg:      cfg,
		db:       db,
		svc:      svc,
		hub:      hub,
		nudger:   nudger,
		sessions: crypto.NewSessionSigner([]byte(cfg.SessionSecret)),
	}
}

// RegisterRoutes attaches every route to the engine.
func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.Use(securityHeaders())

	r.GET("/health", s.Health)
	r.GET("/ws", s.requireSession(), s.HandleWebSocket)

	api := r.Group("/api")

	api.POST("/auth/register", s.Register)
	api.POST("/auth/login", s.Login)
	api.POST("/auth/logout", s.Logout)

	auth := api.Group("", s.requireSession())
	auth.GET("/auth/me", s.WhoAmI)

	auth.GET("/agents", s.ListAgents)
	auth.POST("/agents", s.CreateAgent)
	auth.GET("/agents/:id", s.GetAgent)
	auth.DELETE("/agents/:id", s.DeleteAgent)

	auth.GET("/tokens", s.ListTokens)
	auth.POST("/tokens", s.CreateToken)
	auth.DELETE("/tokens/:id", s.DeleteToken)
	auth.PATCH("/tokens/:id/enable", s.EnableToken)
	auth.PATCH("/tokens/:id/disable", s.DisableToken)

	auth.GET("/projects", s.ListProjects)
	auth.POST("/projects", s.CreateProject)
	auth.GET("/projects/:id", s.GetProject)
	auth.DELETE("/projects/:id", s.DeleteProject)
	auth.POST("/projects/:id/status", s.SetProjectStatus)

	auth.PATCH("/settings/project/:id/token", s.SetProjectToken)
	auth.PATCH("/settings/project/:id/pause", s.SetProjectStatus)
	auth.PATCH("/settings/project/:id/limit", s.SetProjectLimit)

	auth.GET("/conversations/:projectId", s.ListConversations)
	auth.POST("/conversations/:projectId", s.CreateConversation)

	auth.GET("/messages/:conversationId", s.ListMessages)
	auth.POST("/messages/:conversationId", s.SendMessage)

	auth.GET("/logs/:projectId", s.ListLogs)
	auth.DELETE("/logs/:projectId", s.ClearLogs)

	internal := api.Group("/internal", s.requireInternalKey())
	internal.GET("/projects/:id/context", s.InternalGetContext)
	internal.GET("/projects/:id/flags", s.InternalGetFlags)
	internal.GET("/projects/:id/pending", s.InternalPendingQueue)
	internal.GET("/projects/:id/oldest-pending", s.InternalOldestPending)
	internal.GET("/projects/:id/recent-messages/:agentId", s.InternalRecentAgentMessages)
	internal.GET("/projects/:id/summaries", s.InternalListSummaries)
	internal.GET("/projects/:id/summaries/:agentId", s.InternalGetSummary)
	internal.POST("/projects/:id/decrement-budget", s.InternalDecrementBudget)
	internal.POST("/projects/:id/increment-count/:agentId", s.InternalIncrementAgentCount)
	internal.POST("/projects/:id/pause", s.InternalPause)
	internal.GET("/active-projects", s.InternalActiveProjects)
	internal.POST("/messages", s.InternalCreateAgentMessage)
	internal.PATCH("/messages/:id/status", s.InternalUpdateMessageStatus)
	internal.POST("/logs", s.InternalCreateLog)
	internal.PUT("/summaries", s.InternalUpsertSummary)
	internal.POST("/nudge", s.InternalNudge)
}

// Health reports liveness and database reachability.
func (s *Server) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(ctx, s.db.Pool())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": dbHealth,
			"error":    err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": dbHealth,
	})
}

// protectedProject reports whether a project id is demo/snapshot guarded.
func (s *Server) protectedProject(id int64) bool {
	if s.cfg.SnapshotProjectID != 0 && id == s.cfg.SnapshotProjectID {
		return true
	}
	return s.cfg.IsDemoProject(id)
}
