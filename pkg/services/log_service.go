package services

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/colloquy-ai/colloquy/pkg/models"
)

// LogService appends and serves the persisted, user-visible project log.
type LogService struct {
	pool *pgxpool.Pool
}

// NewLogService creates a new LogService.
func NewLogService(pool *pgxpool.Pool) *LogService {
	return &LogService{pool: pool}
}

// Append writes one log row. code may be empty.
func (s *LogService) Append(httpCtx context.Context, projectID int64, level, code, message string) (*models.Log, error) {
	switch level {
	case models.LogLevelDebug, models.LogLevelInfo, models.LogLevelWarn, models.LogLevelError:
	default:
		return nil, NewValidationError("level", "must be debug, info, warn, or error")
	}

	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	var codeVal *string
	if code != "" {
		codeVal = &code
	}

	log := &models.Log{ProjectID: projectID, Level: level, Code: codeVal, Message: message}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO logs (project_id, level, code, message)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		projectID, level, codeVal, message,
	).Scan(&log.ID, &log.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: project %d", ErrNotFound, projectID)
		}
		return nil, fmt.Errorf("failed to append log: %w", err)
	}
	return log, nil
}

// ListLogs returns a project's logs, newest first. The caller must own the
// project.
func (s *LogService) ListLogs(httpCtx context.Context, userID, projectID int64) ([]models.Log, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT l.id, l.project_id, l.level, l.code, l.message, l.created_at
		 FROM logs l
		 JOIN projects p ON p.id = l.project_id
		 WHERE l.project_id = $1 AND p.user_id = $2
		 ORDER BY l.created_at DESC, l.id DESC`,
		projectID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}
	defer rows.Close()

	logs := []models.Log{}
	for rows.Next() {
		var l models.Log
		if err := rows.Scan(&l.ID, &l.ProjectID, &l.Level, &l.Code, &l.Message, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// ClearLogs removes all log rows of a project owned by userID.
func (s *LogService) ClearLogs(httpCtx context.Context, userID, projectID int64) error {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

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

	if _, err := s.pool.Exec(ctx, `DELETE FROM logs WHERE project_id = $1`, projectID); err != nil {
		return fmt.Errorf("failed to clear logs: %w", err)
	}
	return nil
}
