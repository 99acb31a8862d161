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

// defaultMessageLimit is the budget a project starts with when the request
// does not set one.
const defaultMessageLimit = 50

// ProjectService manages projects, memberships, and the shared
// pause/budget state machine. Worker-facing reads (context, flags) and the
// budget decrement primitive also live here.
type ProjectService struct {
	pool *pgxpool.Pool
	hub  events.Publisher
}

// NewProjectService creates a new ProjectService.
func NewProjectService(pool *pgxpool.Pool, hub events.Publisher) *ProjectService {
	return &ProjectService{pool: pool, hub: hub}
}

// CreateProject atomically inserts the project, its membership rows
// (creating inline agent definitions as needed), the optional token binding,
// and one conversation per allowed communication edge. Projects start
// paused.
func (s *ProjectService) CreateProject(httpCtx context.Context, userID int64, req models.CreateProjectRequest) (*models.Project, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, NewValidationError("title", "required")
	}
	if len(req.Agents) == 0 {
		return nil, NewValidationError("agents", "at least one agent is required")
	}
	limit := defaultMessageLimit
	if req.HasLimit {
		if req.MessageLimit < 0 {
			return nil, NewValidationError("messageLimit", "must be >= 0")
		}
		limit = req.MessageLimit
	}

	ctx, cancel := context.WithTimeout(httpCtx, 10*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var tokenID *int64
	if req.TokenID != 0 {
		if err := checkTokenUsable(ctx, tx, userID, req.TokenID); err != nil {
			return nil, err
		}
		tokenID = &req.TokenID
	}

	project := &models.Project{
		UserID:       userID,
		Title:        title,
		Description:  req.Description,
		SystemPrompt: req.SystemPrompt,
		Paused:       true,
		MessageLimit: limit,
		TokenID:      tokenID,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO projects (user_id, title, description, system_prompt, paused, message_limit, token_id)
		 VALUES ($1, $2, $3, $4, TRUE, $5, $6)
		 RETURNING id, created_at, last_activity_at`,
		userID, title, req.Description, req.SystemPrompt, limit, tokenID,
	).Scan(&project.ID, &project.CreatedAt, &project.LastActivityAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: a project with this title already exists", ErrConflict)
		}
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	// Resolve member agent ids, creating inline definitions as we go.
	memberIDs := make([]int64, 0, len(req.Agents))
	for i, spec := range req.Agents {
		agentID := spec.AgentID
		if agentID == 0 {
			if strings.TrimSpace(spec.Name) == "" {
				return nil, NewValidationError("agents", fmt.Sprintf("entry %d needs an agentId or a name", i))
			}
			err = tx.QueryRow(ctx,
				`INSERT INTO agents (user_id, name, role, description, model)
				 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
				userID, strings.TrimSpace(spec.Name), spec.Role, spec.Description, spec.Model,
			).Scan(&agentID)
			if err != nil {
				return nil, fmt.Errorf("failed to create inline agent: %w", err)
			}
		} else {
			var owned bool
			err = tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM agents WHERE id = $1 AND user_id = $2)`,
				agentID, userID,
			).Scan(&owned)
			if err != nil {
				return nil, fmt.Errorf("failed to check agent ownership: %w", err)
			}
			if !owned {
				return nil, fmt.Errorf("%w: agent %d", ErrNotFound, agentID)
			}
		}
		memberIDs = append(memberIDs, agentID)
	}

	memberSet := make(map[int64]bool, len(memberIDs))
	for _, id := range memberIDs {
		memberSet[id] = true
	}

	// Insert membership rows. A member without an explicit can-message list
	// may address every other member.
	for i, spec := range req.Agents {
		agentID := memberIDs[i]
		var canMessage []int64
		if spec.HasCanList {
			for _, target := range spec.CanMessage {
				if target != models.SystemAgentID && !memberSet[target] {
					return nil, NewValidationError("canMessageIds",
						fmt.Sprintf("agent %d is not a project member", target))
				}
				if target != agentID {
					canMessage = append(canMessage, target)
				}
			}
		} else {
			for _, other := range memberIDs {
				if other != agentID {
					canMessage = append(canMessage, other)
				}
			}
		}
		if canMessage == nil {
			canMessage = []int64{}
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO project_members (project_id, agent_id, role, prompt, can_message)
			 VALUES ($1, $2, $3, $4, $5)`,
			project.ID, agentID, spec.Role, spec.Prompt, canMessage)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, fmt.Errorf("%w: agent %d listed twice", ErrConflict, agentID)
			}
			return nil, fmt.Errorf("failed to create membership: %w", err)
		}
	}

	// The System agent is an implicit member of every project and may
	// address everyone.
	_, err = tx.Exec(ctx,
		`INSERT INTO project_members (project_id, agent_id, role, prompt, can_message)
		 VALUES ($1, $2, 'system', '', $3)`,
		project.ID, models.SystemAgentID, memberIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create system membership: %w", err)
	}

	// One conversation per unordered pair implied by the union of
	// can-message sets, plus one System channel per member.
	edges := make(map[[2]int64]bool)
	for _, id := range memberIDs {
		edges[orderPair(models.SystemAgentID, id)] = true
	}
	for i, spec := range req.Agents {
		agentID := memberIDs[i]
		targets := spec.CanMessage
		if !spec.HasCanList {
			targets = memberIDs
		}
		for _, target := range targets {
			if target == agentID {
				continue
			}
			edges[orderPair(agentID, target)] = true
		}
	}
	for pair := range edges {
		_, err = tx.Exec(ctx,
			`INSERT INTO conversations (project_id, sender_id, receiver_id)
			 VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			project.ID, pair[0], pair[1])
		if err != nil {
			return nil, fmt.Errorf("failed to create conversation: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit project: %w", err)
	}
	return project, nil
}

func orderPair(a, b int64) [2]int64 {
	if a > b {
		a, b = b, a
	}
	return [2]int64{a, b}
}

// checkTokenUsable verifies the token exists, belongs to userID, and is
// active.
func checkTokenUsable(ctx context.Context, tx pgx.Tx, userID, tokenID int64) error {
	var ownerID int64
	var active bool
	err := tx.QueryRow(ctx,
		`SELECT user_id, active FROM tokens WHERE id = $1`, tokenID,
	).Scan(&ownerID, &active)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: token %d", ErrNotFound, tokenID)
	}
	if err != nil {
		return fmt.Errorf("failed to check token: %w", err)
	}
	if ownerID != userID {
		return fmt.Errorf("%w: token %d", ErrNotFound, tokenID)
	}
	if !active {
		return NewValidationError("tokenId", "token is inactive")
	}
	return nil
}

// ListProjects returns userID's projects, newest first.
func (s *ProjectService) ListProjects(httpCtx context.Context, userID int64) ([]models.Project, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, title, description, system_prompt, paused,
		        message_limit, token_id, created_at, last_activity_at
		 FROM projects WHERE user_id = $1
		 ORDER BY id DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := []models.Project{}
	for rows.Next() {
		var p models.Project
		if err := scanProject(rows, &p); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func scanProject(row pgx.Row, p *models.Project) error {
	err := row.Scan(&p.ID, &p.UserID, &p.Title, &p.Description, &p.SystemPrompt,
		&p.Paused, &p.MessageLimit, &p.TokenID, &p.CreatedAt, &p.LastActivityAt)
	if err != nil {
		return fmt.Errorf("failed to scan project: %w", err)
	}
	return nil
}

// GetProject loads one project owned by userID.
func (s *ProjectService) GetProject(httpCtx context.Context, userID, projectID int64) (*models.Project, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	p := &models.Project{}
	err := scanProject(s.pool.QueryRow(ctx,
		`SELECT id, user_id, title, description, system_prompt, paused,
		        message_limit, token_id, created_at, last_activity_at
		 FROM projects WHERE id = $1 AND user_id = $2`,
		projectID, userID), p)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// GetProjectDetail loads a project with its members (agent definitions
// embedded) and conversations.
func (s *ProjectService) GetProjectDetail(httpCtx context.Context, userID, projectID int64) (*models.ProjectDetail, error) {
	project, err := s.GetProject(httpCtx, userID, projectID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	members, err := loadMembers(ctx, s.pool, projectID)
	if err != nil {
		return nil, err
	}
	conversations, err := loadConversations(ctx, s.pool, projectID)
	if err != nil {
		return nil, err
	}

	return &models.ProjectDetail{
		Project:       *project,
		Members:       members,
		Conversations: conversations,
	}, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadMembers(ctx context.Context, q querier, projectID int64) ([]models.ProjectMember, error) {
	rows, err := q.Query(ctx,
		`SELECT m.project_id, m.agent_id, m.role, m.prompt, m.can_message,
		        a.id, a.user_id, a.name, a.role, a.description, a.model, a.created_at
		 FROM project_members m
		 JOIN agents a ON a.id = m.agent_id
		 WHERE m.project_id = $1
		 ORDER BY m.agent_id`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := []models.ProjectMember{}
	for rows.Next() {
		var m models.ProjectMember
		var a models.Agent
		err := rows.Scan(&m.ProjectID, &m.AgentID, &m.Role, &m.Prompt, &m.CanMessage,
			&a.ID, &a.UserID, &a.Name, &a.Role, &a.Description, &a.Model, &a.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.Agent = &a
		members = append(members, m)
	}
	return members, rows.Err()
}

func loadConversations(ctx context.Context, q querier, projectID int64) ([]models.Conversation, error) {
	rows, err := q.Query(ctx,
		`SELECT id, project_id, sender_id, receiver_id, created_at
		 FROM conversations WHERE project_id = $1
		 ORDER BY id`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	conversations := []models.Conversation{}
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.SenderID, &c.ReceiverID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

// DeleteProject removes a project; the schema cascades to memberships,
// conversations, messages, summaries, and logs.
func (s *ProjectService) DeleteProject(httpCtx context.Context, userID, projectID int64) error {
	ctx, cancel := context.WithTimeout(httpCtx, 10*time.Second)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM projects WHERE id = $1 AND user_id = $2`,
		projectID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPaused flips the paused flag. Resuming bumps last_activity_at so the
// watchdog's idle clock restarts. Publishes project_updated after commit.
func (s *ProjectService) SetPaused(httpCtx context.Context, userID, projectID int64, paused bool) (*models.Project, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	query := `UPDATE projects SET paused = $3
	          WHERE id = $1 AND user_id = $2
	          RETURNING id, user_id, title, description, system_prompt, paused,
	                    message_limit, token_id, created_at, last_activity_at`
	if !paused {
		query = `UPDATE projects SET paused = $3, last_activity_at = now()
		         WHERE id = $1 AND user_id = $2
		         RETURNING id, user_id, title, description, system_prompt, paused,
		                   message_limit, token_id, created_at, last_activity_at`
	}

	p := &models.Project{}
	err := scanProject(s.pool.QueryRow(ctx, query, projectID, userID, paused), p)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	s.hub.Publish(projectID, events.ProjectUpdatedEvent(projectID, p.Paused, p.MessageLimit))
	return p, nil
}

// SetToken rebinds a project's token. Inactive and foreign tokens are
// refused. tokenID 0 unbinds.
func (s *ProjectService) SetToken(httpCtx context.Context, userID, projectID, tokenID int64) (*models.Project, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var bind *int64
	if tokenID != 0 {
		if err := checkTokenUsable(ctx, tx, userID, tokenID); err != nil {
			return nil, err
		}
		bind = &tokenID
	}

	p := &models.Project{}
	err = scanProject(tx.QueryRow(ctx,
		`UPDATE projects SET token_id = $3
		 WHERE id = $1 AND user_id = $2
		 RETURNING id, user_id, title, description, system_prompt, paused,
		           message_limit, token_id, created_at, last_activity_at`,
		projectID, userID, bind), p)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit token binding: %w", err)
	}
	return p, nil
}

// SetLimit replaces the remaining-message budget. Publishes project_updated
// after commit.
func (s *ProjectService) SetLimit(httpCtx context.Context, userID, projectID int64, limit int) (*models.Project, error) {
	if limit < 0 {
		return nil, NewValidationError("limit", "must be >= 0")
	}

	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	p := &models.Project{}
	err := scanProject(s.pool.QueryRow(ctx,
		`UPDATE projects SET message_limit = $3
		 WHERE id = $1 AND user_id = $2
		 RETURNING id, user_id, title, description, system_prompt, paused,
		           message_limit, token_id, created_at, last_activity_at`,
		projectID, userID, limit), p)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	s.hub.Publish(projectID, events.ProjectUpdatedEvent(projectID, p.Paused, p.MessageLimit))
	return p, nil
}

// UserOwnsProject reports whether userID owns projectID. Used by the
// WebSocket join authorizer.
func (s *ProjectService) UserOwnsProject(httpCtx context.Context, userID, projectID int64) bool {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	var owns bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1 AND user_id = $2)`,
		projectID, userID,
	).Scan(&owns)
	return err == nil && owns
}

// GetFlags returns the cheap per-iteration worker check: paused flag,
// remaining budget, and whether an active token is bound.
func (s *ProjectService) GetFlags(httpCtx context.Context, projectID int64) (*models.ProjectFlags, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	flags := &models.ProjectFlags{}
	err := s.pool.QueryRow(ctx,
		`SELECT p.paused, p.message_limit, COALESCE(t.active, FALSE)
		 FROM projects p
		 LEFT JOIN tokens t ON t.id = p.token_id
		 WHERE p.id = $1`,
		projectID,
	).Scan(&flags.Paused, &flags.Budget, &flags.TokenActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}
	return flags, nil
}

// GetContext returns the read-consistent snapshot a worker run starts from:
// project config, members with overrides, conversations, latest summary per
// agent, and the bound token's sealed secret. Everything is read in one
// transaction.
func (s *ProjectService) GetContext(httpCtx context.Context, projectID int64) (*models.ProjectContext, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 10*time.Second)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	pc := &models.ProjectContext{}
	var secretEnc *string
	var tokenActive *bool
	err = tx.QueryRow(ctx,
		`SELECT p.id, p.user_id, p.title, p.description, p.system_prompt, p.paused,
		        p.message_limit, p.token_id, p.created_at, p.last_activity_at,
		        t.secret_enc, t.active
		 FROM projects p
		 LEFT JOIN tokens t ON t.id = p.token_id
		 WHERE p.id = $1`,
		projectID,
	).Scan(&pc.Project.ID, &pc.Project.UserID, &pc.Project.Title, &pc.Project.Description,
		&pc.Project.SystemPrompt, &pc.Project.Paused, &pc.Project.MessageLimit,
		&pc.Project.TokenID, &pc.Project.CreatedAt, &pc.Project.LastActivityAt,
		&secretEnc, &tokenActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	if secretEnc != nil {
		pc.EncryptedAPIKey = *secretEnc
	}
	if tokenActive != nil {
		pc.TokenActive = *tokenActive
	}

	if pc.Members, err = loadMembers(ctx, tx, projectID); err != nil {
		return nil, err
	}
	if pc.Conversations, err = loadConversations(ctx, tx, projectID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx,
		`SELECT project_id, agent_id, summary, snapshot, message_count, summary_count, updated_at
		 FROM agent_summaries WHERE project_id = $1`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list summaries: %w", err)
	}
	defer rows.Close()
	pc.Summaries = []models.AgentSummary{}
	for rows.Next() {
		var sum models.AgentSummary
		err := rows.Scan(&sum.ProjectID, &sum.AgentID, &sum.Summary, &sum.Snapshot,
			&sum.MessageCount, &sum.SummaryCount, &sum.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		pc.Summaries = append(pc.Summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit snapshot read: %w", err)
	}
	return pc, nil
}

// DecrementBudget is the single budget primitive: atomically decrement, and
// when the new value reaches zero, pause the project and append the
// message-limit warn log in the same transaction. Returns the new budget.
func (s *ProjectService) DecrementBudget(httpCtx context.Context, projectID int64) (int, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var budget int
	var paused bool
	err = tx.QueryRow(ctx,
		`UPDATE projects
		 SET message_limit = GREATEST(message_limit - 1, 0)
		 WHERE id = $1
		 RETURNING message_limit, paused`,
		projectID,
	).Scan(&budget, &paused)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to decrement budget: %w", err)
	}

	exhausted := budget <= 0 && !paused
	if exhausted {
		if _, err := tx.Exec(ctx,
			`UPDATE projects SET paused = TRUE WHERE id = $1`, projectID); err != nil {
			return 0, fmt.Errorf("failed to pause project: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO logs (project_id, level, code, message)
			 VALUES ($1, 'warn', 'message-limit', 'Message limit reached, project paused')`,
			projectID); err != nil {
			return 0, fmt.Errorf("failed to append limit log: %w", err)
		}
		paused = true
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit budget decrement: %w", err)
	}

	if exhausted {
		s.hub.Publish(projectID, events.ProjectUpdatedEvent(projectID, true, budget))
	}
	return budget, nil
}

// Pause sets paused=true with a warn log carrying the machine code. It is
// idempotent: pausing an already paused project writes nothing.
func (s *ProjectService) Pause(httpCtx context.Context, projectID int64, code, message string) error {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var limit int
	err = tx.QueryRow(ctx,
		`UPDATE projects SET paused = TRUE
		 WHERE id = $1 AND paused = FALSE
		 RETURNING message_limit`,
		projectID,
	).Scan(&limit)
	if errors.Is(err, pgx.ErrNoRows) {
		// Already paused or absent; nothing to do.
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to pause project: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO logs (project_id, level, code, message)
		 VALUES ($1, 'warn', $2, $3)`,
		projectID, code, message); err != nil {
		return fmt.Errorf("failed to append pause log: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit pause: %w", err)
	}

	s.hub.Publish(projectID, events.ProjectUpdatedEvent(projectID, true, limit))
	return nil
}

// ActiveProjects lists ids of unpaused projects. Watchdog surface.
func (s *ProjectService) ActiveProjects(httpCtx context.Context) ([]int64, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id FROM projects WHERE paused = FALSE ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active projects: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan project id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LastActivity returns a project's last_activity_at. Watchdog surface.
func (s *ProjectService) LastActivity(httpCtx context.Context, projectID int64) (time.Time, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	var ts time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT last_activity_at FROM projects WHERE id = $1`, projectID,
	).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to load last activity: %w", err)
	}
	return ts, nil
}
