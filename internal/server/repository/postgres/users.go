package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelchat/kestrel/internal/common"
	"github.com/kestrelchat/kestrel/internal/dbx"
	"github.com/kestrelchat/kestrel/internal/server/models"
)

// UsersRepository is the Postgres-backed repository.Users implementation.
type UsersRepository struct{}

func NewUsersRepository() *UsersRepository {
	return &UsersRepository{}
}

func (r *UsersRepository) Create(ctx context.Context, db dbx.DBTX, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	query := `INSERT INTO users (id, username, password_verifier, salt)
	          VALUES ($1, $2, $3, $4)
	          RETURNING created_at, last_seen`

	err := db.QueryRowContext(ctx, query, u.ID, u.Username, u.PasswordVerifier, u.Salt).
		Scan(&u.CreatedAt, &u.LastSeen)
	if err != nil {
		if isUniqueViolation(err) {
			return common.ErrUsernameTaken
		}
		return fmt.Errorf("users: create: %w", err)
	}
	return nil
}

func (r *UsersRepository) GetByUsername(ctx context.Context, db dbx.DBTX, username string) (*models.User, error) {
	query := `SELECT id, username, password_verifier, salt, created_at, last_seen, is_online
	          FROM users WHERE username = $1`
	u := &models.User{}
	err := db.QueryRowContext(ctx, query, username).Scan(
		&u.ID, &u.Username, &u.PasswordVerifier, &u.Salt, &u.CreatedAt, &u.LastSeen, &u.IsOnline)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("users: get by username: %w", err)
	}
	return u, nil
}

// GetByUsernameForUpdate locks the user's row for the duration of the
// caller's transaction. Only meaningful inside a transaction; on a bare
// *sql.DB the lock is released as soon as the statement completes.
func (r *UsersRepository) GetByUsernameForUpdate(ctx context.Context, db dbx.DBTX, username string) (*models.User, error) {
	query := `SELECT id, username, password_verifier, salt, created_at, last_seen, is_online
	          FROM users WHERE username = $1 FOR UPDATE`
	u := &models.User{}
	err := db.QueryRowContext(ctx, query, username).Scan(
		&u.ID, &u.Username, &u.PasswordVerifier, &u.Salt, &u.CreatedAt, &u.LastSeen, &u.IsOnline)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("users: get by username for update: %w", err)
	}
	return u, nil
}

func (r *UsersRepository) GetByID(ctx context.Context, db dbx.DBTX, id string) (*models.User, error) {
	query := `SELECT id, username, password_verifier, salt, created_at, last_seen, is_online
	          FROM users WHERE id = $1`
	u := &models.User{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.Username, &u.PasswordVerifier, &u.Salt, &u.CreatedAt, &u.LastSeen, &u.IsOnline)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("users: get by id: %w", err)
	}
	return u, nil
}

func (r *UsersRepository) List(ctx context.Context, db dbx.DBTX) ([]*models.User, error) {
	query := `SELECT id, username, password_verifier, salt, created_at, last_seen, is_online
	          FROM users ORDER BY username`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		u := &models.User{}
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordVerifier, &u.Salt, &u.CreatedAt, &u.LastSeen, &u.IsOnline); err != nil {
			return nil, fmt.Errorf("users: list scan: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *UsersRepository) SetOnline(ctx context.Context, db dbx.DBTX, userID string, online bool) error {
	_, err := db.ExecContext(ctx, `UPDATE users SET is_online = $2 WHERE id = $1`, userID, online)
	if err != nil {
		return fmt.Errorf("users: set online: %w", err)
	}
	return nil
}

func (r *UsersRepository) TouchLastSeen(ctx context.Context, db dbx.DBTX, userID string, at time.Time) error {
	_, err := db.ExecContext(ctx, `UPDATE users SET last_seen = $2 WHERE id = $1`, userID, at)
	if err != nil {
		return fmt.Errorf("users: touch last seen: %w", err)
	}
	return nil
}
