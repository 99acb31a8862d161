package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/colloquy-ai/colloquy/pkg/events"
	"github.com/colloquy-ai/colloquy/pkg/models"
)

// MessageService owns the append-only message pool: user sends, worker
// inserts, status transitions, and the pending queue the worker drains.
type MessageService struct {
	pool             *pgxpool.Pool
	hub              events.Publisher
	maxMessageLength int
}

// NewMessageService creates a new MessageService.
func NewMessageService(pool *pgxpool.Pool, hub events.Publisher, maxMessageLength int) *MessageService {
	return &MessageService{pool: pool, hub: hub, maxMessageLength: maxMessageLength}
}

// ListMessages returns a conversation's messages, oldest first. The caller
// must own the enclosing project.
func (s *MessageService) ListMessages(httpCtx context.Context, userID, conversationID int64) ([]models.Message, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	if _, err := s.visibleConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, project_id, sender_id, receiver_id,
		        content, type, status, created_at
		 FROM messages WHERE conversation_id = $1
		 ORDER BY created_at, id`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// CreateUserMessage inserts a user send. The message is attributed to the
// System agent; the receiver is the other member of the conversation. The
// insert and the last_activity_at bump commit together; new_message is
// published after commit. The caller nudges the worker.
func (s *MessageService) CreateUserMessage(httpCtx context.Context, userID, conversationID int64, req models.SendMessageRequest) (*models.Message, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, NewValidationError("content", "required")
	}
	if len(content) > s.maxMessageLength {
		return nil, NewValidationError("content",
			fmt.Sprintf("exceeds maximum length of %d", s.maxMessageLength))
	}
	msgType := req.Type
	if msgType == "" {
		msgType = models.MessageTypeUser
	}
	if msgType != models.MessageTypeUser && msgType != models.MessageTypeSystem {
		return nil, NewValidationError("type", "must be user or system")
	}

	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	conv, err := s.visibleConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	// Users speak as System, so the conversation must include the System
	// agent; the receiver is the other side.
	var receiverID int64
	switch models.SystemAgentID {
	case conv.SenderID:
		receiverID = conv.ReceiverID
	case conv.ReceiverID:
		receiverID = conv.SenderID
	default:
		return nil, NewValidationError("conversationId", "conversation does not include the System agent")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	msg := &models.Message{
		ConversationID: conversationID,
		ProjectID:      conv.ProjectID,
		SenderID:       models.SystemAgentID,
		ReceiverID:     receiverID,
		Content:        content,
		Type:           msgType,
		Status:         models.MessageStatusPending,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO messages (conversation_id, project_id, sender_id, receiver_id, content, type, status)
		 VALUES ($1, $2, $3, $4, $5, $6, 'pending')
		 RETURNING id, created_at`,
		conversationID, conv.ProjectID, msg.SenderID, receiverID, content, msgType,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE projects SET last_activity_at = now() WHERE id = $1`,
		conv.ProjectID); err != nil {
		return nil, fmt.Errorf("failed to bump activity: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit message: %w", err)
	}

	s.hub.Publish(conv.ProjectID, events.NewMessageEvent(msg))
	return msg, nil
}

// CreateAgentMessage inserts a worker-produced message into the conversation
// for the (sender, receiver) pair. Atomic with the last_activity_at bump;
// publishes new_message after commit. Does not nudge: the worker that calls
// this is already active.
func (s *MessageService) CreateAgentMessage(httpCtx context.Context, req models.CreateAgentMessageRequest) (*models.Message, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, NewValidationError("content", "required")
	}
	msgType := req.Type
	if msgType == "" {
		msgType = models.MessageTypeAssistant
	}
	status := req.Status
	if status == "" {
		status = models.MessageStatusPending
	}

	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	conversationID := req.ConversationID
	if conversationID == 0 {
		pair := orderPair(req.SenderID, req.ReceiverID)
		err := s.pool.QueryRow(ctx,
			`SELECT id FROM conversations
			 WHERE project_id = $1 AND sender_id = $2 AND receiver_id = $3`,
			req.ProjectID, pair[0], pair[1],
		).Scan(&conversationID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: no conversation for pair (%d, %d)", ErrNotFound, pair[0], pair[1])
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve conversation: %w", err)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	msg := &models.Message{
		ConversationID: conversationID,
		ProjectID:      req.ProjectID,
		SenderID:       req.SenderID,
		ReceiverID:     req.ReceiverID,
		Content:        req.Content,
		Type:           msgType,
		Status:         status,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO messages (conversation_id, project_id, sender_id, receiver_id, content, type, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		conversationID, req.ProjectID, req.SenderID, req.ReceiverID, req.Content, msgType, status,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE projects SET last_activity_at = now() WHERE id = $1`,
		req.ProjectID); err != nil {
		return nil, fmt.Errorf("failed to bump activity: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit message: %w", err)
	}

	s.hub.Publish(req.ProjectID, events.NewMessageEvent(msg))
	return msg, nil
}

// UpdateMessageStatus transitions a message out of pending. Publishes
// message_updated after commit.
func (s *MessageService) UpdateMessageStatus(httpCtx context.Context, messageID int64, status string) (*models.Message, error) {
	if status != models.MessageStatusSent && status != models.MessageStatusFailed {
		return nil, NewValidationError("status", "must be sent or failed")
	}

	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	msg := &models.Message{ID: messageID, Status: status}
	err := s.pool.QueryRow(ctx,
		`UPDATE messages SET status = $2
		 WHERE id = $1 AND status = 'pending'
		 RETURNING conversation_id, project_id, sender_id, receiver_id, content, type, created_at`,
		messageID, status,
	).Scan(&msg.ConversationID, &msg.ProjectID, &msg.SenderID, &msg.ReceiverID,
		&msg.Content, &msg.Type, &msg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: message %d is not pending", ErrConflict, messageID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update message status: %w", err)
	}

	s.hub.Publish(msg.ProjectID, events.MessageUpdatedEvent(msg))
	return msg, nil
}

// PendingQueue returns a project's pending messages, oldest first with id as
// the tie-break.
func (s *MessageService) PendingQueue(httpCtx context.Context, projectID int64) ([]models.Message, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, project_id, sender_id, receiver_id,
		        content, type, status, created_at
		 FROM messages
		 WHERE project_id = $1 AND status = 'pending'
		 ORDER BY created_at, id`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// OldestPending returns the creation time of a project's oldest pending
// message, or nil when nothing is pending. Watchdog surface.
func (s *MessageService) OldestPending(httpCtx context.Context, projectID int64) (*time.Time, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	var ts time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT created_at FROM messages
		 WHERE project_id = $1 AND status = 'pending'
		 ORDER BY created_at, id
		 LIMIT 1`,
		projectID,
	).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load oldest pending: %w", err)
	}
	return &ts, nil
}

// RecentAgentMessages returns the last limit sent user/assistant messages
// involving agentID, newest first. Used by the prompt builder.
func (s *MessageService) RecentAgentMessages(httpCtx context.Context, projectID, agentID int64, limit int) ([]models.Message, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, project_id, sender_id, receiver_id,
		        content, type, status, created_at
		 FROM messages
		 WHERE project_id = $1
		   AND (sender_id = $2 OR receiver_id = $2)
		   AND status = 'sent'
		   AND type IN ('user', 'assistant')
		 ORDER BY created_at DESC, id DESC
		 LIMIT $3`,
		projectID, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows pgx.Rows) ([]models.Message, error) {
	messages := []models.Message{}
	for rows.Next() {
		var m models.Message
		err := rows.Scan(&m.ID, &m.ConversationID, &m.ProjectID, &m.SenderID, &m.ReceiverID,
			&m.Content, &m.Type, &m.Status, &m.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// visibleConversation loads a conversation if userID owns its project.
func (s *MessageService) visibleConversation(ctx context.Context, userID, conversationID int64) (*models.Conversation, error) {
	conv := &models.Conversation{}
	err := s.pool.QueryRow(ctx,
		`SELECT c.id, c.project_id, c.sender_id, c.receiver_id, c.created_at
		 FROM conversations c
		 JOIN projects p ON p.id = c.project_id
		 WHERE c.id = $1 AND p.user_id = $2`,
		conversationID, userID,
	).Scan(&conv.ID, &conv.ProjectID, &conv.SenderID, &conv.ReceiverID, &conv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return conv, nil
}
