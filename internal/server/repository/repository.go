// Package repository declares the persistence interfaces used by the
// service layer. Every method takes a dbx.DBTX so callers can pass
// either the pool or an in-flight transaction.
package repository

import (
	"context"
	"time"

	"github.com/kestrelchat/kestrel/internal/dbx"
	"github.com/kestrelchat/kestrel/internal/server/models"
)

type Users interface {
	Create(ctx context.Context, db dbx.DBTX, u *models.User) error
	GetByUsername(ctx context.Context, db dbx.DBTX, username string) (*models.User, error)
	// GetByUsernameForUpdate is GetByUsername with a row lock (SELECT ...
	// FOR UPDATE), used by the login transaction so two concurrent
	// logins for the same user serialize on this row instead of both
	// observing zero prior sessions and each inserting one.
	GetByUsernameForUpdate(ctx context.Context, db dbx.DBTX, username string) (*models.User, error)
	GetByID(ctx context.Context, db dbx.DBTX, id string) (*models.User, error)
	List(ctx context.Context, db dbx.DBTX) ([]*models.User, error)
	SetOnline(ctx context.Context, db dbx.DBTX, userID string, online bool) error
	TouchLastSeen(ctx context.Context, db dbx.DBTX, userID string, at time.Time) error
}

type Sessions interface {
	DeleteByUserID(ctx context.Context, db dbx.DBTX, userID string) error
	Create(ctx context.Context, db dbx.DBTX, s *models.Session) error
	GetByToken(ctx context.Context, db dbx.DBTX, token string) (*models.Session, error)
	DeleteByToken(ctx context.Context, db dbx.DBTX, token string) error
	DeleteExpired(ctx context.Context, db dbx.DBTX, now time.Time) (int64, error)
}

type SessionEvents interface {
	Append(ctx context.Context, db dbx.DBTX, e *models.SessionEvent) error
}

type Groups interface {
	Create(ctx context.Context, db dbx.DBTX, g *models.Group) error
	GetByID(ctx context.Context, db dbx.DBTX, id string) (*models.Group, error)
	ListForUser(ctx context.Context, db dbx.DBTX, userID string) ([]*models.Group, error)
}

type GroupMembers interface {
	Add(ctx context.Context, db dbx.DBTX, m *models.GroupMember) error
	Remove(ctx context.Context, db dbx.DBTX, groupID, userID string) error
	Get(ctx context.Context, db dbx.DBTX, groupID, userID string) (*models.GroupMember, error)
	ListByGroup(ctx context.Context, db dbx.DBTX, groupID string) ([]*models.GroupMember, error)
	Count(ctx context.Context, db dbx.DBTX, groupID string) (int, error)
}

type GroupInvites interface {
	Create(ctx context.Context, db dbx.DBTX, inv *models.GroupInvite) error
	GetPending(ctx context.Context, db dbx.DBTX, groupID, inviteeID string) (*models.GroupInvite, error)
	GetByID(ctx context.Context, db dbx.DBTX, id string) (*models.GroupInvite, error)
	ListPendingForUser(ctx context.Context, db dbx.DBTX, userID string) ([]*models.GroupInvite, error)
	UpdateStatus(ctx context.Context, db dbx.DBTX, id string, status models.InviteStatus, respondedAt time.Time) error
}

type PrivateMessages interface {
	Insert(ctx context.Context, db dbx.DBTX, m *models.PrivateMessage) error
	ListBetween(ctx context.Context, db dbx.DBTX, userA, userB string) ([]*models.PrivateMessage, error)
	SoftDeleteForUser(ctx context.Context, db dbx.DBTX, userA, userB, requestingUserID string) error
}

type GroupMessages interface {
	Insert(ctx context.Context, db dbx.DBTX, m *models.GroupMessage) error
	ListByGroup(ctx context.Context, db dbx.DBTX, groupID string) ([]*models.GroupMessage, error)
	SoftDeleteByGroup(ctx context.Context, db dbx.DBTX, groupID string) error
}
