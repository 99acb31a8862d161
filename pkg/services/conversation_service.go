package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/colloquy-ai/colloquy/pkg/models"
)

// ConversationService manages the pairwise channels inside a project.
// Conversations are normally created eagerly at project creation; the only
// user-initiated create is a System channel.
type ConversationService struct {
	pool *pgxpool.Pool
}

// NewConversationService creates a new ConversationService.
func NewConversationService(pool *pgxpool.Pool) *ConversationService {
	return &ConversationService{pool: pool}
}

// ListConversations returns a project's conversations, oldest first.
func (s *ConversationService) ListConversations(httpCtx context.Context, userID, projectID int64) ([]models.Conversation, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	if err := s.checkOwnership(ctx, userID, projectID); err != nil {
		return nil, err
	}
	return loadConversations(ctx, s.pool, projectID)
}

// CreateConversation opens a System channel to receiverID. Users always act
// as the System agent, so the pair is (0, receiver). Creating an existing
// channel returns the existing row.
func (s *ConversationService) CreateConversation(httpCtx context.Context, userID, projectID, receiverID int64) (*models.Conversation, error) {
	if receiverID == models.SystemAgentID {
		return nil, NewValidationError("receiverId", "cannot converse with the System agent itself")
	}

	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	if err := s.checkOwnership(ctx, userID, projectID); err != nil {
		return nil, err
	}

	var isMember bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM project_members WHERE project_id = $1 AND agent_id = $2)`,
		projectID, receiverID,
	).Scan(&isMember)
	if err != nil {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}
	if !isMember {
		return nil, NewValidationError("receiverId", "agent is not a project member")
	}

	pair := orderPair(models.SystemAgentID, receiverID)
	conv := &models.Conversation{ProjectID: projectID, SenderID: pair[0], ReceiverID: pair[1]}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO conversations (project_id, sender_id, receiver_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (project_id, sender_id, receiver_id)
		 DO UPDATE SET project_id = EXCLUDED.project_id
		 RETURNING id, created_at`,
		projectID, pair[0], pair[1],
	).Scan(&conv.ID, &conv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// GetConversation loads a conversation visible to userID.
func (s *ConversationService) GetConversation(httpCtx context.Context, userID, conversationID int64) (*models.Conversation, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

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

func (s *ConversationService) checkOwnership(ctx context.Context, userID, projectID int64) error {
	var owns bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1 AND user_id = $2)`,
		projectID, userID,
	).Scan(&owns)
	if err != nil {
		return fmt.Errorf("failed to check ownership: %w", err)
	}
	if !owns {
		return ErrNotFound
	}
	return nil
}
