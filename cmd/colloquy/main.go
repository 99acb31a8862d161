// Colloquy server — multi-agent conversation API, turn worker, and watchdog
// in one process.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/colloquy-ai/colloquy/pkg/api"
	"github.com/colloquy-ai/colloquy/pkg/config"
	"github.com/colloquy-ai/colloquy/pkg/crypto"
	"github.com/colloquy-ai/colloquy/pkg/database"
	"github.com/colloquy-ai/colloquy/pkg/events"
	"github.com/colloquy-ai/colloquy/pkg/llm"
	"github.com/colloquy-ai/colloquy/pkg/services"
	"github.com/colloquy-ai/colloquy/pkg/watchdog"
	"github.com/colloquy-ai/colloquy/pkg/worker"
)

// watchdogStore adapts the service layer to the watchdog's read surface.
type watchdogStore struct {
	projects *services.ProjectService
	messages *services.MessageService
}

func (s *watchdogStore) ActiveProjects(ctx context.Context) ([]int64, error) {
	return s.projects.ActiveProjects(ctx)
}

func (s *watchdogStore) OldestPending(ctx context.Context, projectID int64) (*time.Time, error) {
	return s.messages.OldestPending(ctx, projectID)
}

func (s *watchdogStore) LastActivity(ctx context.Context, projectID int64) (time.Time, error) {
	return s.projects.LastActivity(ctx, projectID)
}

func (s *watchdogStore) Pause(ctx context.Context, projectID int64, code, message string) error {
	return s.projects.Pause(ctx, projectID, code, message)
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file, continuing with existing environment")
	}

	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Database (runs migrations)
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()
	slog.Info("Connected to PostgreSQL database")

	// 3. Live-update hub and services
	hub := events.NewHub(10 * time.Second)
	pool := dbClient.Pool()

	sealer, err := crypto.NewSealer([]byte(cfg.EncryptSecret))
	if err != nil {
		slog.Error("Failed to initialize token encryption", "error", err)
		os.Exit(1)
	}

	svc := api.Services{
		Users:         services.NewUserService(pool),
		Agents:        services.NewAgentService(pool),
		Tokens:        services.NewTokenService(pool, sealer),
		Projects:      services.NewProjectService(pool, hub),
		Conversations: services.NewConversationService(pool),
		Messages:      services.NewMessageService(pool, hub, cfg.MaxMessageLength),
		Summaries:     services.NewSummaryService(pool),
		Logs:          services.NewLogService(pool),
	}
	slog.Info("Services initialized")

	// 4. Turn engine
	backend := &worker.ServiceBackend{
		Projects:  svc.Projects,
		Messages:  svc.Messages,
		Summaries: svc.Summaries,
		Logs:      svc.Logs,
	}
	llmClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMTimeout)
	runner := worker.NewRunner(backend, llmClient, sealer, worker.Config{
		DefaultModel:     cfg.LLMDefaultModel,
		MaxRetries:       cfg.MaxRetries,
		HistoryWindow:    cfg.HistoryWindow,
		MinHistoryWindow: cfg.MinHistoryWindow,
		SummaryThreshold: cfg.SummaryThreshold,
		SummaryWindow:    cfg.SummaryWindow,
		MaxMessageLength: cfg.MaxMessageLength,
		MaxRunIterations: cfg.MaxRunIterations,
	})

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	dispatcher := worker.NewDispatcher(workerCtx, runner)

	// A configured worker base URL means runs happen in a separate
	// deployment; this process forwards nudges over the internal API.
	var nudger worker.Nudger
	if cfg.WorkerBaseURL != "" {
		nudger = worker.NewHTTPNudger(cfg.WorkerBaseURL, cfg.BrainAPIKey)
		slog.Info("Using remote worker", "base_url", cfg.WorkerBaseURL)
	} else {
		nudger = &worker.LocalNudger{Dispatcher: dispatcher}
	}

	// 5. Watchdog
	wd := watchdog.New(
		&watchdogStore{projects: svc.Projects, messages: svc.Messages},
		cfg.WatchdogInterval, cfg.StallTimeout, cfg.IdleTimeout,
	)
	go wd.Start(workerCtx)

	// 6. HTTP server
	router := gin.New()
	router.Use(gin.Recovery())
	server := api.NewServer(cfg, dbClient, svc, hub, nudger)
	server.RegisterRoutes(router)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// 7. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 8. Graceful shutdown: stop accepting requests, then drain runs.
	httpCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	stopWorkers()
	done := make(chan struct{})
	go func() {
		dispatcher.Wait()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("Worker runs drained")
	case <-time.After(30 * time.Second):
		slog.Warn("Shutdown timeout exceeded; pending triggers retry on next start")
	}

	slog.Info("Shutdown complete")
}
