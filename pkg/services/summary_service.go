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

// SummaryService manages per-(project, agent) long-term memory rows.
type SummaryService struct {
	pool *pgxpool.Pool
}

// NewSummaryService creates a new SummaryService.
func NewSummaryService(pool *pgxpool.Pool) *SummaryService {
	return &SummaryService{pool: pool}
}

// GetSummary loads the memory row for one agent, or ErrNotFound when the
// agent has no row yet.
func (s *SummaryService) GetSummary(httpCtx context.Context, projectID, agentID int64) (*models.AgentSummary, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	sum := &models.AgentSummary{}
	err := s.pool.QueryRow(ctx,
		`SELECT project_id, agent_id, summary, snapshot, message_count, summary_count, updated_at
		 FROM agent_summaries
		 WHERE project_id = $1 AND agent_id = $2`,
		projectID, agentID,
	).Scan(&sum.ProjectID, &sum.AgentID, &sum.Summary, &sum.Snapshot,
		&sum.MessageCount, &sum.SummaryCount, &sum.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load summary: %w", err)
	}
	return sum, nil
}

// ListSummaries returns all memory rows of a project.
func (s *SummaryService) ListSummaries(httpCtx context.Context, projectID int64) ([]models.AgentSummary, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT project_id, agent_id, summary, snapshot, message_count, summary_count, updated_at
		 FROM agent_summaries
		 WHERE project_id = $1
		 ORDER BY agent_id`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list summaries: %w", err)
	}
	defer rows.Close()

	summaries := []models.AgentSummary{}
	for rows.Next() {
		var sum models.AgentSummary
		err := rows.Scan(&sum.ProjectID, &sum.AgentID, &sum.Summary, &sum.Snapshot,
			&sum.MessageCount, &sum.SummaryCount, &sum.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// UpsertSummary replaces an agent's summary text, zeroes the message count,
// and increments the summary count.
func (s *SummaryService) UpsertSummary(httpCtx context.Context, projectID, agentID int64, summary, snapshot string) (*models.AgentSummary, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	var snap *string
	if snapshot != "" {
		snap = &snapshot
	}

	sum := &models.AgentSummary{ProjectID: projectID, AgentID: agentID, Summary: summary, Snapshot: snap}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO agent_summaries (project_id, agent_id, summary, snapshot, message_count, summary_count, updated_at)
		 VALUES ($1, $2, $3, $4, 0, 1, now())
		 ON CONFLICT (project_id, agent_id) DO UPDATE
		 SET summary = EXCLUDED.summary,
		     snapshot = EXCLUDED.snapshot,
		     message_count = 0,
		     summary_count = agent_summaries.summary_count + 1,
		     updated_at = now()
		 RETURNING message_count, summary_count, updated_at`,
		projectID, agentID, summary, snap,
	).Scan(&sum.MessageCount, &sum.SummaryCount, &sum.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert summary: %w", err)
	}
	return sum, nil
}

// IncrementAgentCount bumps the messages-since-last-summary counter,
// creating the memory row on first use. Returns the new count.
func (s *SummaryService) IncrementAgentCount(httpCtx context.Context, projectID, agentID int64) (int, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	var count int
	err := s.pool.QueryRow(ctx,
		`INSERT INTO agent_summaries (project_id, agent_id, summary, message_count, summary_count, updated_at)
		 VALUES ($1, $2, '', 1, 0, now())
		 ON CONFLICT (project_id, agent_id) DO UPDATE
		 SET message_count = agent_summaries.message_count + 1,
		     updated_at = now()
		 RETURNING message_count`,
		projectID, agentID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to increment agent count: %w", err)
	}
	return count, nil
}
