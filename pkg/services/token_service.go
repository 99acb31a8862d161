package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/colloquy-ai/colloquy/pkg/crypto"
	"github.com/colloquy-ai/colloquy/pkg/models"
)

// TokenService manages LLM API tokens. Secrets are sealed before insert and
// never returned by any read.
type TokenService struct {
	pool   *pgxpool.Pool
	sealer *crypto.Sealer
}

// NewTokenService creates a new TokenService.
func NewTokenService(pool *pgxpool.Pool, sealer *crypto.Sealer) *TokenService {
	return &TokenService{pool: pool, sealer: sealer}
}

// CreateToken seals and stores a new token for userID.
func (s *TokenService) CreateToken(httpCtx context.Context, userID int64, req models.CreateTokenRequest) (*models.Token, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, NewValidationError("name", "required")
	}
	if strings.TrimSpace(req.APIKey) == "" {
		return nil, NewValidationError("apiKey", "required")
	}

	sealed, err := s.sealer.Seal(req.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to seal token secret: %w", err)
	}

	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	token := &models.Token{UserID: userID, Name: name, Active: true}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO tokens (user_id, name, secret_enc, active)
		 VALUES ($1, $2, $3, TRUE)
		 RETURNING id, created_at`,
		userID, name, sealed,
	).Scan(&token.ID, &token.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create token: %w", err)
	}
	return token, nil
}

// ListTokens returns userID's tokens with their in-use flag. The sealed
// secret stays in the database.
func (s *TokenService) ListTokens(httpCtx context.Context, userID int64) ([]models.Token, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT t.id, t.user_id, t.name, t.active, t.created_at,
		        EXISTS (SELECT 1 FROM projects p WHERE p.token_id = t.id) AS in_use
		 FROM tokens t
		 WHERE t.user_id = $1
		 ORDER BY t.id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	tokens := []models.Token{}
	for rows.Next() {
		var t models.Token
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &t.Active, &t.CreatedAt, &t.InUse); err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// SetTokenActive flips a token's active flag.
func (s *TokenService) SetTokenActive(httpCtx context.Context, userID, tokenID int64, active bool) (*models.Token, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	token := &models.Token{ID: tokenID, UserID: userID, Active: active}
	err := s.pool.QueryRow(ctx,
		`UPDATE tokens SET active = $3
		 WHERE id = $1 AND user_id = $2
		 RETURNING name, created_at`,
		tokenID, userID, active,
	).Scan(&token.Name, &token.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update token: %w", err)
	}
	return token, nil
}

// DeleteToken removes a token. Tokens still bound to a project are refused;
// unbind them first.
func (s *TokenService) DeleteToken(httpCtx context.Context, userID, tokenID int64) error {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	var inUse bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM projects WHERE token_id = $1)`,
		tokenID,
	).Scan(&inUse)
	if err != nil {
		return fmt.Errorf("failed to check token usage: %w", err)
	}
	if inUse {
		return fmt.Errorf("%w: token is bound to a project", ErrConflict)
	}

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM tokens WHERE id = $1 AND user_id = $2`,
		tokenID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// OpenTokenSecret decrypts the sealed secret of a token. Worker-side only.
func (s *TokenService) OpenTokenSecret(sealed string) (string, error) {
	return s.sealer.Open(sealed)
}
