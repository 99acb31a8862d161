package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/colloquy-ai/colloquy/pkg/models"
)

// AgentService manages reusable agent definitions.
type AgentService struct {
	pool *pgxpool.Pool
}

// NewAgentService creates a new AgentService.
func NewAgentService(pool *pgxpool.Pool) *AgentService {
	return &AgentService{pool: pool}
}

// CreateAgent stores a new agent definition owned by userID.
func (s *AgentService) CreateAgent(httpCtx context.Context, userID int64, req models.CreateAgentRequest) (*models.Agent, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, NewValidationError("name", "required")
	}

	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	agent := &models.Agent{
		UserID:      &userID,
		Name:        name,
		Role:        strings.TrimSpace(req.Role),
		Description: req.Description,
		Model:       strings.TrimSpace(req.Model),
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO agents (user_id, name, role, description, model)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		userID, agent.Name, agent.Role, agent.Description, agent.Model,
	).Scan(&agent.ID, &agent.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}
	return agent, nil
}

// ListAgents returns the agents owned by userID.
func (s *AgentService) ListAgents(httpCtx context.Context, userID int64) ([]models.Agent, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, role, description, model, created_at
		 FROM agents WHERE user_id = $1
		 ORDER BY id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	agents := []models.Agent{}
	for rows.Next() {
		var a models.Agent
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.Role, &a.Description, &a.Model, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// GetAgent loads one agent owned by userID. The System agent is readable by
// everyone.
func (s *AgentService) GetAgent(httpCtx context.Context, userID, agentID int64) (*models.Agent, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	agent := &models.Agent{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, name, role, description, model, created_at
		 FROM agents
		 WHERE id = $1 AND (user_id = $2 OR user_id IS NULL)`,
		agentID, userID,
	).Scan(&agent.ID, &agent.UserID, &agent.Name, &agent.Role, &agent.Description, &agent.Model, &agent.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load agent: %w", err)
	}
	return agent, nil
}

// DeleteAgent removes an agent definition. Agents still participating in a
// project are refused.
func (s *AgentService) DeleteAgent(httpCtx context.Context, userID, agentID int64) error {
	if agentID == models.SystemAgentID {
		return fmt.Errorf("%w: the System agent cannot be deleted", ErrForbidden)
	}

	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	var inUse bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM project_members WHERE agent_id = $1)`,
		agentID,
	).Scan(&inUse)
	if err != nil {
		return fmt.Errorf("failed to check agent usage: %w", err)
	}
	if inUse {
		return fmt.Errorf("%w: agent is a member of a project", ErrConflict)
	}

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM agents WHERE id = $1 AND user_id = $2`,
		agentID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
