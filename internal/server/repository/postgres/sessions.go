package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kestrelchat/kestrel/internal/common"
	"github.com/kestrelchat/kestrel/internal/dbx"
	"github.com/kestrelchat/kestrel/internal/server/models"
)

// SessionsRepository is the Postgres-backed repository.Sessions
// implementation.
type SessionsRepository struct{}

func NewSessionsRepository() *SessionsRepository {
	return &SessionsRepository{}
}

func (r *SessionsRepository) DeleteByUserID(ctx context.Context, db dbx.DBTX, userID string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("sessions: delete by user id: %w", err)
	}
	return nil
}

func (r *SessionsRepository) Create(ctx context.Context, db dbx.DBTX, s *models.Session) error {
	query := `INSERT INTO sessions (token, user_id, expires_at)
	          VALUES ($1, $2, $3)
	          RETURNING created_at`
	err := db.QueryRowContext(ctx, query, s.Token, s.UserID, s.ExpiresAt).Scan(&s.CreatedAt)
	if err != nil {
		return fmt.Errorf("sessions: create: %w", err)
	}
	return nil
}

func (r *SessionsRepository) GetByToken(ctx context.Context, db dbx.DBTX, token string) (*models.Session, error) {
	query := `SELECT token, user_id, created_at, expires_at FROM sessions WHERE token = $1`
	s := &models.Session{}
	err := db.QueryRowContext(ctx, query, token).Scan(&s.Token, &s.UserID, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("sessions: get by token: %w", err)
	}
	return s, nil
}

func (r *SessionsRepository) DeleteByToken(ctx context.Context, db dbx.DBTX, token string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("sessions: delete by token: %w", err)
	}
	return nil
}

func (r *SessionsRepository) DeleteExpired(ctx context.Context, db dbx.DBTX, now time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("sessions: delete expired: %w", err)
	}
	return res.RowsAffected()
}
