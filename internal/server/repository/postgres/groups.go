package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kestrelchat/kestrel/internal/common"
	"github.com/kestrelchat/kestrel/internal/dbx"
	"github.com/kestrelchat/kestrel/internal/server/models"
)

// GroupsRepository is the Postgres-backed repository.Groups implementation.
type GroupsRepository struct{}

func NewGroupsRepository() *GroupsRepository {
	return &GroupsRepository{}
}

func (r *GroupsRepository) Create(ctx context.Context, db dbx.DBTX, g *models.Group) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.MaxMembers == 0 {
		g.MaxMembers = 256
	}
	query := `INSERT INTO groups (id, name, created_by, max_members)
	          VALUES ($1, $2, $3, $4)
	          RETURNING created_at, is_active`
	err := db.QueryRowContext(ctx, query, g.ID, g.Name, g.CreatedBy, g.MaxMembers).
		Scan(&g.CreatedAt, &g.IsActive)
	if err != nil {
		return fmt.Errorf("groups: create: %w", err)
	}
	return nil
}

func (r *GroupsRepository) GetByID(ctx context.Context, db dbx.DBTX, id string) (*models.Group, error) {
	query := `SELECT id, name, created_by, created_at, is_active, max_members
	          FROM groups WHERE id = $1`
	g := &models.Group{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&g.ID, &g.Name, &g.CreatedBy, &g.CreatedAt, &g.IsActive, &g.MaxMembers)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("groups: get by id: %w", err)
	}
	return g, nil
}

func (r *GroupsRepository) ListForUser(ctx context.Context, db dbx.DBTX, userID string) ([]*models.Group, error) {
	query := `SELECT g.id, g.name, g.created_by, g.created_at, g.is_active, g.max_members
	          FROM groups g
	          JOIN group_members gm ON gm.group_id = g.id
	          WHERE gm.user_id = $1
	          ORDER BY g.created_at`
	rows, err := db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("groups: list for user: %w", err)
	}
	defer rows.Close()

	var out []*models.Group
	for rows.Next() {
		g := &models.Group{}
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedBy, &g.CreatedAt, &g.IsActive, &g.MaxMembers); err != nil {
			return nil, fmt.Errorf("groups: list for user scan: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
