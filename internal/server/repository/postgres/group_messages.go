package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kestrelchat/kestrel/internal/dbx"
	"github.com/kestrelchat/kestrel/internal/server/models"
)

// GroupMessagesRepository is the Postgres-backed
// repository.GroupMessages implementation.
type GroupMessagesRepository struct{}

func NewGroupMessagesRepository() *GroupMessagesRepository {
	return &GroupMessagesRepository{}
}

func (r *GroupMessagesRepository) Insert(ctx context.Context, db dbx.DBTX, m *models.GroupMessage) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	query := `INSERT INTO group_messages (id, sender_id, group_id, content)
	          VALUES ($1, $2, $3, $4)
	          RETURNING "timestamp"`
	err := db.QueryRowContext(ctx, query, m.ID, m.SenderID, m.GroupID, m.Content).Scan(&m.Timestamp)
	if err != nil {
		return fmt.Errorf("group_messages: insert: %w", err)
	}
	return nil
}

func (r *GroupMessagesRepository) ListByGroup(ctx context.Context, db dbx.DBTX, groupID string) ([]*models.GroupMessage, error) {
	query := `SELECT id, sender_id, group_id, content, "timestamp", is_deleted
	          FROM group_messages WHERE group_id = $1 AND NOT is_deleted ORDER BY "timestamp"`
	rows, err := db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("group_messages: list by group: %w", err)
	}
	defer rows.Close()

	var out []*models.GroupMessage
	for rows.Next() {
		m := &models.GroupMessage{}
		if err := rows.Scan(&m.ID, &m.SenderID, &m.GroupID, &m.Content, &m.Timestamp, &m.IsDeleted); err != nil {
			return nil, fmt.Errorf("group_messages: list by group scan: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *GroupMessagesRepository) SoftDeleteByGroup(ctx context.Context, db dbx.DBTX, groupID string) error {
	_, err := db.ExecContext(ctx, `UPDATE group_messages SET is_deleted = true WHERE group_id = $1`, groupID)
	if err != nil {
		return fmt.Errorf("group_messages: soft delete by group: %w", err)
	}
	return nil
}
