package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kestrelchat/kestrel/internal/dbx"
	"github.com/kestrelchat/kestrel/internal/server/models"
)

// SessionEventsRepository is the Postgres-backed repository.SessionEvents
// implementation, an append-only audit trail.
type SessionEventsRepository struct{}

func NewSessionEventsRepository() *SessionEventsRepository {
	return &SessionEventsRepository{}
}

func (r *SessionEventsRepository) Append(ctx context.Context, db dbx.DBTX, e *models.SessionEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	query := `INSERT INTO session_events (id, user_id, kind) VALUES ($1, $2, $3) RETURNING at`
	err := db.QueryRowContext(ctx, query, e.ID, e.UserID, e.Kind).Scan(&e.At)
	if err != nil {
		return fmt.Errorf("session_events: append: %w", err)
	}
	return nil
}
