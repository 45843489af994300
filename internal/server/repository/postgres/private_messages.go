package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kestrelchat/kestrel/internal/dbx"
	"github.com/kestrelchat/kestrel/internal/server/models"
)

// PrivateMessagesRepository is the Postgres-backed
// repository.PrivateMessages implementation.
type PrivateMessagesRepository struct{}

func NewPrivateMessagesRepository() *PrivateMessagesRepository {
	return &PrivateMessagesRepository{}
}

func (r *PrivateMessagesRepository) Insert(ctx context.Context, db dbx.DBTX, m *models.PrivateMessage) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	query := `INSERT INTO private_messages (id, sender_id, receiver_id, content)
	          VALUES ($1, $2, $3, $4)
	          RETURNING "timestamp"`
	err := db.QueryRowContext(ctx, query, m.ID, m.SenderID, m.ReceiverID, m.Content).Scan(&m.Timestamp)
	if err != nil {
		return fmt.Errorf("private_messages: insert: %w", err)
	}
	return nil
}

// ListBetween returns every message exchanged between userA and userB,
// in either direction, oldest first, skipping rows the requesting side
// has soft-deleted. Both directions are included regardless of which of
// userA/userB sent it.
func (r *PrivateMessagesRepository) ListBetween(ctx context.Context, db dbx.DBTX, userA, userB string) ([]*models.PrivateMessage, error) {
	query := `SELECT id, sender_id, receiver_id, content, "timestamp", sender_deleted, receiver_deleted
	          FROM private_messages
	          WHERE (sender_id = $1 AND receiver_id = $2 AND NOT sender_deleted)
	             OR (sender_id = $2 AND receiver_id = $1 AND NOT receiver_deleted)
	          ORDER BY "timestamp"`
	rows, err := db.QueryContext(ctx, query, userA, userB)
	if err != nil {
		return nil, fmt.Errorf("private_messages: list between: %w", err)
	}
	defer rows.Close()

	var out []*models.PrivateMessage
	for rows.Next() {
		m := &models.PrivateMessage{}
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.Timestamp,
			&m.SenderDeleted, &m.ReceiverDeleted); err != nil {
			return nil, fmt.Errorf("private_messages: list between scan: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SoftDeleteForUser marks every message between userA and userB as
// deleted from requestingUserID's point of view only; the other party
// keeps their copy, mirroring a one-sided "delete for me".
func (r *PrivateMessagesRepository) SoftDeleteForUser(ctx context.Context, db dbx.DBTX, userA, userB, requestingUserID string) error {
	_, err := db.ExecContext(ctx, `
		UPDATE private_messages SET sender_deleted = true
		WHERE sender_id = $3 AND ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))`,
		userA, userB, requestingUserID)
	if err != nil {
		return fmt.Errorf("private_messages: soft delete (sender side): %w", err)
	}
	_, err = db.ExecContext(ctx, `
		UPDATE private_messages SET receiver_deleted = true
		WHERE receiver_id = $3 AND ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))`,
		userA, userB, requestingUserID)
	if err != nil {
		return fmt.Errorf("private_messages: soft delete (receiver side): %w", err)
	}
	return nil
}
