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

// UserService manages account registration and authentication.
type UserService struct {
	pool *pgxpool.Pool
}

// NewUserService creates a new UserService.
func NewUserService(pool *pgxpool.Pool) *UserService {
	return &UserService{pool: pool}
}

// Register creates a new account. The email must be unused.
func (s *UserService) Register(httpCtx context.Context, req models.RegisterRequest) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, NewValidationError("email", "must be a valid email address")
	}
	if len(req.Password) < 8 {
		return nil, NewValidationError("password", "must be at least 8 characters")
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		username = email[:strings.Index(email, "@")]
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	user := &models.User{Username: username, Email: email}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO users (username, email, password_hash)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		username, email, hash,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: email already registered", ErrConflict)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// Login verifies credentials and returns the account. Unknown emails and
// wrong passwords produce the same error.
func (s *UserService) Login(httpCtx context.Context, req models.LoginRequest) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, ErrUnauthorized
	}

	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	user := &models.User{}
	var hash string
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, email, password_hash, created_at
		 FROM users WHERE email = $1`,
		email,
	).Scan(&user.ID, &user.Username, &user.Email, &hash, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Burn a hash comparison anyway so the timing does not reveal
		// whether the email exists.
		crypto.CheckPassword("$2a$12$invalidsaltinvalidsaltinvalidsaltinvalid", req.Password)
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if !crypto.CheckPassword(hash, req.Password) {
		return nil, ErrUnauthorized
	}
	return user, nil
}

// GetUser loads an account by id.
func (s *UserService) GetUser(httpCtx context.Context, id int64) (*models.User, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	user := &models.User{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, email, created_at FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Username, &user.Email, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}
