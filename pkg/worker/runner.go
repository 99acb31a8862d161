package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/colloquy-ai/colloquy/pkg/crypto"
	"github.com/colloquy-ai/colloquy/pkg/llm"
	"github.com/colloquy-ai/colloquy/pkg/models"
)

// Config holds the turn engine tunables.
type Config struct {
	DefaultModel     string
	MaxRetries       int
	HistoryWindow    int
	MinHistoryWindow int
	SummaryThreshold int
	SummaryWindow    int
	MaxMessageLength int
	MaxRunIterations int
}

// ChatClient is the LLM surface the runner calls. Implemented by llm.Client;
// tests substitute a scripted fake.
type ChatClient interface {
	Chat(ctx context.Context, apiKey string, req llm.Request) (*llm.Response, error)
}

// Runner executes one project run: drain pending messages, one turn each,
// until a stop condition. Runners are stateless; the dispatcher guarantees
// at most one concurrent run per project.
type Runner struct {
	backend Backend
	llm     ChatClient
	sealer  *crypto.Sealer
	cfg     Config
}

// NewRunner creates a Runner.
func NewRunner(backend Backend, chat ChatClient, sealer *crypto.Sealer, cfg Config) *Runner {
	return &Runner{backend: backend, llm: chat, sealer: sealer, cfg: cfg}
}

// Run processes everything pending for projectID until the project pauses,
// the budget runs out, the queue drains, or the iteration cap is hit.
func (r *Runner) Run(ctx context.Context, projectID int64) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Run crashed", "project_id", projectID, "panic", rec)
			_ = r.backend.CreateLog(ctx, projectID, models.LogLevelError, "run-crash",
				fmt.Sprintf("Run crashed: %v", rec))
			_ = r.backend.Pause(ctx, projectID, "run-crash", "Project paused after a worker crash")
		}
	}()

	slog.Debug("Run starting", "project_id", projectID)

	pc, err := r.backend.GetContext(ctx, projectID)
	if err != nil {
		slog.Error("Failed to fetch project context", "project_id", projectID, "error", err)
		return
	}
	if pc.Project.Paused {
		return
	}

	if pc.EncryptedAPIKey == "" {
		_ = r.backend.CreateLog(ctx, projectID, models.LogLevelWarn, "token-missing",
			"Run stopped: no API token is bound to this project")
		return
	}
	if !pc.TokenActive {
		_ = r.backend.CreateLog(ctx, projectID, models.LogLevelWarn, "token-inactive",
			"Run stopped: the bound API token is inactive")
		return
	}

	apiKey, err := r.sealer.Open(pc.EncryptedAPIKey)
	if err != nil {
		slog.Error("Failed to decrypt token secret", "project_id", projectID, "error", err)
		_ = r.backend.CreateLog(ctx, projectID, models.LogLevelError, "decrypt-failed",
			"Project paused: failed to decrypt the bound API token")
		_ = r.backend.Pause(ctx, projectID, "decrypt-failed", "Failed to decrypt the bound API token")
		return
	}

	idx := buildIndex(pc)

	for iteration := 0; iteration < r.cfg.MaxRunIterations; iteration++ {
		flags, err := r.backend.ProjectFlags(ctx, projectID)
		if err != nil {
			slog.Error("Failed to fetch project flags", "project_id", projectID, "error", err)
			return
		}
		if flags.Paused {
			return
		}
		if !flags.TokenActive {
			_ = r.backend.Pause(ctx, projectID, "token-inactive",
				"Run stopped: the bound API token became inactive")
			return
		}
		if flags.Budget <= 0 {
			return
		}

		queue, err := r.backend.PendingQueue(ctx, projectID)
		if err != nil {
			slog.Error("Failed to fetch pending queue", "project_id", projectID, "error", err)
			return
		}
		if len(queue) == 0 {
			slog.Debug("Run finished, queue drained", "project_id", projectID)
			return
		}

		r.processTurn(ctx, idx, apiKey, &queue[0])
	}

	slog.Warn("Run hit iteration cap", "project_id", projectID, "cap", r.cfg.MaxRunIterations)
	_ = r.backend.CreateLog(ctx, projectID, models.LogLevelWarn, "max-iterations",
		fmt.Sprintf("Run stopped after %d iterations", r.cfg.MaxRunIterations))
}

// processTurn handles one trigger message: build the prompt, call the LLM
// with a bounded correction loop, persist the reply, and update memory.
// Internal failures leave the trigger pending so the next nudge retries it;
// validation exhaustion marks it failed.
func (r *Runner) processTurn(ctx context.Context, idx *projectContextIndex, apiKey string, trigger *models.Message) {
	projectID := idx.project.ID

	// Messages addressed to System are for the human side. Delivery is the
	// live-update fan-out, not another LLM turn.
	if trigger.ReceiverID == models.SystemAgentID {
		if err := r.backend.UpdateMessageStatus(ctx, trigger.ID, models.MessageStatusSent); err != nil {
			slog.Error("Failed to mark delivered", "project_id", projectID, "message_id", trigger.ID, "error", err)
		}
		return
	}

	responder, ok := idx.members[trigger.ReceiverID]
	if !ok {
		_ = r.backend.CreateLog(ctx, projectID, models.LogLevelError, "agent-not-found",
			fmt.Sprintf("Message %d addresses agent %d, which is not a project member", trigger.ID, trigger.ReceiverID))
		_ = r.backend.UpdateMessageStatus(ctx, trigger.ID, models.MessageStatusFailed)
		return
	}

	messageCount := idx.summaries[responder.AgentID].MessageCount
	window := historyWindow(messageCount, r.cfg.HistoryWindow, r.cfg.MinHistoryWindow)
	history, err := r.backend.RecentAgentMessages(ctx, projectID, responder.AgentID, window)
	if err != nil {
		slog.Error("Failed to fetch history", "project_id", projectID, "agent_id", responder.AgentID, "error", err)
		return
	}

	messages := buildTurnPrompt(idx, responder, history, trigger)
	allowed := idx.allowedRecipients(responder.AgentID)

	model := r.cfg.DefaultModel
	if responder.Agent != nil && responder.Agent.Model != "" {
		model = responder.Agent.Model
	}

	var reply *Reply
	var lastReason string
	for attempt := 1; attempt <= r.cfg.MaxRetries; attempt++ {
		resp, err := r.llm.Chat(ctx, apiKey, llm.Request{
			Model:          model,
			Messages:       messages,
			Temperature:    0.7,
			ResponseFormat: llm.AgentReplyFormat(),
		})
		if err != nil {
			// Transport and upstream failures count as attempts just
			// like format violations; the loop is the only retry.
			lastReason = err.Error()
			slog.Warn("LLM call failed", "project_id", projectID,
				"message_id", trigger.ID, "attempt", attempt, "error", err)
			if errors.Is(err, context.Canceled) {
				return
			}
			continue
		}

		parsed, rerr := parseReply(resp.Content, allowed, r.cfg.MaxMessageLength)
		if rerr != nil {
			lastReason = rerr.reason
			slog.Warn("Reply validation failed", "project_id", projectID,
				"message_id", trigger.ID, "attempt", attempt, "reason", rerr.reason)
			messages = append(messages, llm.Message{Role: "system", Content: rerr.notice})
			continue
		}
		reply = parsed
		break
	}

	if reply == nil {
		_ = r.backend.UpdateMessageStatus(ctx, trigger.ID, models.MessageStatusFailed)
		_ = r.backend.CreateLog(ctx, projectID, models.LogLevelError, "format-invalid",
			fmt.Sprintf("Message %d failed all %d attempts: %s", trigger.ID, r.cfg.MaxRetries, lastReason))
		return
	}

	conversationID := idx.conversationFor(responder.AgentID, reply.RecipientID)
	if conversationID == 0 {
		_ = r.backend.CreateLog(ctx, projectID, models.LogLevelError, "missing-conversation",
			fmt.Sprintf("No conversation exists between agents %d and %d", responder.AgentID, reply.RecipientID))
		_ = r.backend.UpdateMessageStatus(ctx, trigger.ID, models.MessageStatusFailed)
		return
	}

	if err := r.backend.UpdateMessageStatus(ctx, trigger.ID, models.MessageStatusSent); err != nil {
		slog.Error("Failed to mark trigger sent", "project_id", projectID, "message_id", trigger.ID, "error", err)
		return
	}
	_, err = r.backend.CreateAgentMessage(ctx, models.CreateAgentMessageRequest{
		ProjectID:      projectID,
		ConversationID: conversationID,
		SenderID:       responder.AgentID,
		ReceiverID:     reply.RecipientID,
		Content:        reply.Body,
		Type:           models.MessageTypeAssistant,
		Status:         models.MessageStatusPending,
	})
	if err != nil {
		slog.Error("Failed to persist reply", "project_id", projectID, "message_id", trigger.ID, "error", err)
		return
	}

	if _, err := r.backend.DecrementBudget(ctx, projectID); err != nil {
		slog.Error("Failed to decrement budget", "project_id", projectID, "error", err)
	}

	count, err := r.backend.IncrementAgentCount(ctx, projectID, responder.AgentID)
	if err != nil {
		slog.Error("Failed to increment agent count", "project_id", projectID, "agent_id", responder.AgentID, "error", err)
		return
	}
	idx.bumpMessageCount(responder.AgentID, count)

	if count >= r.cfg.SummaryThreshold {
		if err := r.summarize(ctx, idx, responder.AgentID, apiKey, model); err != nil {
			slog.Warn("Summarization failed", "project_id", projectID, "agent_id", responder.AgentID, "error", err)
			_ = r.backend.CreateLog(ctx, projectID, models.LogLevelWarn, "summary-failure",
				fmt.Sprintf("Failed to summarize agent %d: %v", responder.AgentID, err))
		}
	}
}

// summarizerPrompt is the fixed system instruction for memory condensation.
const summarizerPrompt = "You are an AI summarizer. Summarize the following conversation/messages " +
	"as a task-focused memory. Retain key facts, decisions, and outcomes. " +
	"Do not add interpretations or analysis. Be concise, clear, and specific."

// summarize condenses the agent's recent messages into its long-term memory
// row. Failures are reported to the caller and never abort the run.
func (r *Runner) summarize(ctx context.Context, idx *projectContextIndex, agentID int64, apiKey, model string) error {
	recent, err := r.backend.RecentAgentMessages(ctx, idx.project.ID, agentID, r.cfg.SummaryWindow)
	if err != nil {
		return fmt.Errorf("fetching messages: %w", err)
	}
	if len(recent) == 0 {
		return nil
	}

	// Oldest first for the summarizer.
	lines := make([]string, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		m := recent[i]
		lines = append(lines, fmt.Sprintf("[%s to %s]: %s",
			idx.name(m.SenderID), idx.name(m.ReceiverID), strings.TrimSpace(m.Content)))
	}
	snapshot := strings.Join(lines, "\n\n")

	resp, err := r.llm.Chat(ctx, apiKey, llm.Request{
		Model: model,
		Messages: []llm.Message{
			{Role: "system", Content: summarizerPrompt},
			{Role: "user", Content: "Please summarize the following conversation extract:\n\n" + snapshot},
		},
		Temperature: 0.3,
		MaxTokens:   512,
	})
	if err != nil {
		return fmt.Errorf("summarizer call: %w", err)
	}
	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return fmt.Errorf("summarizer returned an empty result")
	}

	if err := r.backend.UpsertSummary(ctx, idx.project.ID, agentID, summary, snapshot); err != nil {
		return fmt.Errorf("saving summary: %w", err)
	}
	idx.resetMessageCount(agentID, summary)
	return nil
}

// bumpMessageCount keeps the in-run snapshot's counter in step with the
// store so the history window and summary trigger see fresh values.
func (idx *projectContextIndex) bumpMessageCount(agentID int64, count int) {
	sum := idx.summaries[agentID]
	sum.AgentID = agentID
	sum.MessageCount = count
	idx.summaries[agentID] = sum
}

func (idx *projectContextIndex) resetMessageCount(agentID int64, summary string) {
	sum := idx.summaries[agentID]
	sum.AgentID = agentID
	sum.MessageCount = 0
	sum.Summary = summary
	idx.summaries[agentID] = sum
}
