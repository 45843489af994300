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

// GroupInvitesRepository is the Postgres-backed repository.GroupInvites
// implementation.
type GroupInvitesRepository struct{}

func NewGroupInvitesRepository() *GroupInvitesRepository {
	return &GroupInvitesRepository{}
}

func (r *GroupInvitesRepository) Create(ctx context.Context, db dbx.DBTX, inv *models.GroupInvite) error {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.Status == "" {
		inv.Status = models.InvitePending
	}
	query := `INSERT INTO group_invites (id, group_id, inviter_id, invitee_id, status, expires_at)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          RETURNING created_at`
	err := db.QueryRowContext(ctx, query, inv.ID, inv.GroupID, inv.InviterID, inv.InviteeID, inv.Status, inv.ExpiresAt).
		Scan(&inv.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return common.ErrInvitePending
		}
		return fmt.Errorf("group_invites: create: %w", err)
	}
	return nil
}

func (r *GroupInvitesRepository) GetPending(ctx context.Context, db dbx.DBTX, groupID, inviteeID string) (*models.GroupInvite, error) {
	query := `SELECT id, group_id, inviter_id, invitee_id, status, created_at, expires_at, responded_at
	          FROM group_invites WHERE group_id = $1 AND invitee_id = $2 AND status = 'pending'`
	return scanInvite(db.QueryRowContext(ctx, query, groupID, inviteeID))
}

func (r *GroupInvitesRepository) GetByID(ctx context.Context, db dbx.DBTX, id string) (*models.GroupInvite, error) {
	query := `SELECT id, group_id, inviter_id, invitee_id, status, created_at, expires_at, responded_at
	          FROM group_invites WHERE id = $1`
	return scanInvite(db.QueryRowContext(ctx, query, id))
}

func (r *GroupInvitesRepository) ListPendingForUser(ctx context.Context, db dbx.DBTX, userID string) ([]*models.GroupInvite, error) {
	query := `SELECT id, group_id, inviter_id, invitee_id, status, created_at, expires_at, responded_at
	          FROM group_invites WHERE invitee_id = $1 AND status = 'pending' ORDER BY created_at`
	rows, err := db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("group_invites: list pending for user: %w", err)
	}
	defer rows.Close()

	var out []*models.GroupInvite
	for rows.Next() {
		inv := &models.GroupInvite{}
		if err := rows.Scan(&inv.ID, &inv.GroupID, &inv.InviterID, &inv.InviteeID, &inv.Status,
			&inv.CreatedAt, &inv.ExpiresAt, &inv.RespondedAt); err != nil {
			return nil, fmt.Errorf("group_invites: list pending for user scan: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *GroupInvitesRepository) UpdateStatus(ctx context.Context, db dbx.DBTX, id string, status models.InviteStatus, respondedAt time.Time) error {
	_, err := db.ExecContext(ctx, `UPDATE group_invites SET status = $2, responded_at = $3 WHERE id = $1`,
		id, status, respondedAt)
	if err != nil {
		return fmt.Errorf("group_invites: update status: %w", err)
	}
	return nil
}

func scanInvite(row *sql.Row) (*models.GroupInvite, error) {
	inv := &models.GroupInvite{}
	err := row.Scan(&inv.ID, &inv.GroupID, &inv.InviterID, &inv.InviteeID, &inv.Status,
		&inv.CreatedAt, &inv.ExpiresAt, &inv.RespondedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("group_invites: scan: %w", err)
	}
	return inv, nil
}
