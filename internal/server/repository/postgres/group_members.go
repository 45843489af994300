package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kestrelchat/kestrel/internal/common"
	"github.com/kestrelchat/kestrel/internal/dbx"
	"github.com/kestrelchat/kestrel/internal/server/models"
)

// GroupMembersRepository is the Postgres-backed repository.GroupMembers
// implementation.
type GroupMembersRepository struct{}

func NewGroupMembersRepository() *GroupMembersRepository {
	return &GroupMembersRepository{}
}

func (r *GroupMembersRepository) Add(ctx context.Context, db dbx.DBTX, m *models.GroupMember) error {
	if m.Role == "" {
		m.Role = models.RoleMember
	}
	query := `INSERT INTO group_members (group_id, user_id, role)
	          VALUES ($1, $2, $3)
	          RETURNING joined_at`
	err := db.QueryRowContext(ctx, query, m.GroupID, m.UserID, m.Role).Scan(&m.JoinedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return common.ErrAlreadyExists
		}
		return fmt.Errorf("group_members: add: %w", err)
	}
	return nil
}

func (r *GroupMembersRepository) Remove(ctx context.Context, db dbx.DBTX, groupID, userID string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	if err != nil {
		return fmt.Errorf("group_members: remove: %w", err)
	}
	return nil
}

func (r *GroupMembersRepository) Get(ctx context.Context, db dbx.DBTX, groupID, userID string) (*models.GroupMember, error) {
	query := `SELECT group_id, user_id, role, joined_at FROM group_members WHERE group_id = $1 AND user_id = $2`
	m := &models.GroupMember{}
	err := db.QueryRowContext(ctx, query, groupID, userID).Scan(&m.GroupID, &m.UserID, &m.Role, &m.JoinedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("group_members: get: %w", err)
	}
	return m, nil
}

func (r *GroupMembersRepository) ListByGroup(ctx context.Context, db dbx.DBTX, groupID string) ([]*models.GroupMember, error) {
	query := `SELECT group_id, user_id, role, joined_at FROM group_members WHERE group_id = $1 ORDER BY joined_at`
	rows, err := db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("group_members: list by group: %w", err)
	}
	defer rows.Close()

	var out []*models.GroupMember
	for rows.Next() {
		m := &models.GroupMember{}
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("group_members: list by group scan: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *GroupMembersRepository) Count(ctx context.Context, db dbx.DBTX, groupID string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT count(*) FROM group_members WHERE group_id = $1`, groupID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("group_members: count: %w", err)
	}
	return n, nil
}
