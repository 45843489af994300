// Package groups implements group lifecycle operations: creation
// (which also seats the creator as an admin member in the same
// transaction), invitations, and membership changes. At most one
// pending invitation may exist per (group, invitee) pair, enforced both
// here and by a partial unique index at the storage layer.
package groups

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelchat/kestrel/internal/common"
	"github.com/kestrelchat/kestrel/internal/dbx"
	"github.com/kestrelchat/kestrel/internal/logging"
	"github.com/kestrelchat/kestrel/internal/server/models"
	"github.com/kestrelchat/kestrel/internal/server/repository"
)

type Service struct {
	db      *sql.DB
	groups  repository.Groups
	members repository.GroupMembers
	invites repository.GroupInvites
	users   repository.Users
	log     logging.Logger
}

func NewService(db *sql.DB, groups repository.Groups, members repository.GroupMembers, invites repository.GroupInvites, users repository.Users, log logging.Logger) *Service {
	return &Service{db: db, groups: groups, members: members, invites: invites, users: users, log: log}
}

// CreateGroup inserts the group and seats its creator as an admin
// member in one transaction, so a group is never observably memberless.
func (s *Service) CreateGroup(ctx context.Context, creatorID, name string) (*models.Group, error) {
	var g *models.Group
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		g = &models.Group{ID: uuid.NewString(), Name: name, CreatedBy: creatorID}
		if err := s.groups.Create(ctx, tx, g); err != nil {
			return err
		}
		return s.members.Add(ctx, tx, &models.GroupMember{GroupID: g.ID, UserID: creatorID, Role: models.RoleAdmin})
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// MyGroups lists every group userID currently belongs to.
func (s *Service) MyGroups(ctx context.Context, userID string) ([]*models.Group, error) {
	return s.groups.ListForUser(ctx, s.db, userID)
}

// Invite creates a pending invitation from inviterID for inviteeName to
// join groupID. inviterID must already be a member; fails with
// common.ErrInvitePending if one is already outstanding for the same
// pair.
func (s *Service) Invite(ctx context.Context, inviterID, groupID, inviteeName string) (*models.GroupInvite, error) {
	if _, err := s.members.Get(ctx, s.db, groupID, inviterID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrNotAMember
		}
		return nil, err
	}

	invitee, err := s.users.GetByUsername(ctx, s.db, inviteeName)
	if err != nil {
		return nil, err
	}

	if _, err := s.invites.GetPending(ctx, s.db, groupID, invitee.ID); err == nil {
		return nil, common.ErrInvitePending
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	inv := &models.GroupInvite{
		ID:        uuid.NewString(),
		GroupID:   groupID,
		InviterID: inviterID,
		InviteeID: invitee.ID,
		Status:    models.InvitePending,
	}
	if err := s.invites.Create(ctx, s.db, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// MyInvites lists every pending invitation addressed to userID.
func (s *Service) MyInvites(ctx context.Context, userID string) ([]*models.GroupInvite, error) {
	return s.invites.ListPendingForUser(ctx, s.db, userID)
}

// AcceptInvite flips the invitation's status and inserts the membership
// row in one transaction, so an invite can never be marked accepted
// without a corresponding membership.
func (s *Service) AcceptInvite(ctx context.Context, userID, inviteID string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		inv, err := s.invites.GetByID(ctx, tx, inviteID)
		if err != nil {
			return err
		}
		if inv.InviteeID != userID {
			return common.ErrUnauthorized
		}
		if inv.Status != models.InvitePending {
			return common.ErrInviteNotPending
		}

		now := time.Now().UTC()
		if err := s.invites.UpdateStatus(ctx, tx, inviteID, models.InviteAccepted, now); err != nil {
			return err
		}
		return s.members.Add(ctx, tx, &models.GroupMember{GroupID: inv.GroupID, UserID: userID, Role: models.RoleMember})
	})
}

// RejectInvite flips the invitation's status without touching
// membership.
func (s *Service) RejectInvite(ctx context.Context, userID, inviteID string) error {
	inv, err := s.invites.GetByID(ctx, s.db, inviteID)
	if err != nil {
		return err
	}
	if inv.InviteeID != userID {
		return common.ErrUnauthorized
	}
	if inv.Status != models.InvitePending {
		return common.ErrInviteNotPending
	}
	return s.invites.UpdateStatus(ctx, s.db, inviteID, models.InviteRejected, time.Now().UTC())
}

// LeaveGroup removes userID's membership row.
func (s *Service) LeaveGroup(ctx context.Context, userID, groupID string) error {
	if _, err := s.members.Get(ctx, s.db, groupID, userID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrNotAMember
		}
		return err
	}
	return s.members.Remove(ctx, s.db, groupID, userID)
}

// IsMember reports whether userID currently belongs to groupID.
func (s *Service) IsMember(ctx context.Context, userID, groupID string) (bool, error) {
	_, err := s.members.Get(ctx, s.db, groupID, userID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
