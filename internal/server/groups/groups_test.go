package groups

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/kestrelchat/kestrel/internal/common"
	"github.com/kestrelchat/kestrel/internal/logging"
	"github.com/kestrelchat/kestrel/internal/server/repository/postgres"
)

// setupDB provisions an in-memory sqlite database with a
// postgres-flavored subset of the schema (RETURNING is supported by
// modern sqlite) so groups.Service can be exercised without a real
// Postgres instance.
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:groups_tests?mode=memory&cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	schema := []string{
		`CREATE TABLE users (id TEXT PRIMARY KEY, username TEXT UNIQUE, password_verifier BLOB, salt BLOB,
		 created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP, last_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP, is_online INTEGER DEFAULT 0)`,
		`CREATE TABLE groups (id TEXT PRIMARY KEY, name TEXT, created_by TEXT, created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		 is_active INTEGER DEFAULT 1, max_members INTEGER DEFAULT 256)`,
		`CREATE TABLE group_members (group_id TEXT, user_id TEXT, role TEXT DEFAULT 'member',
		 joined_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP, PRIMARY KEY (group_id, user_id))`,
		`CREATE TABLE group_invites (id TEXT PRIMARY KEY, group_id TEXT, inviter_id TEXT, invitee_id TEXT,
		 status TEXT DEFAULT 'pending', created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP, expires_at TIMESTAMP, responded_at TIMESTAMP)`,
		`CREATE UNIQUE INDEX idx_pending_unique ON group_invites(group_id, invitee_id) WHERE status = 'pending'`,
	}
	for _, stmt := range schema {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return db
}

func seedUser(t *testing.T, db *sql.DB, id, username string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO users (id, username, password_verifier, salt) VALUES (?, ?, ?, ?)`,
		id, username, []byte("v"), []byte("s"))
	require.NoError(t, err)
}

func newTestService(db *sql.DB) *Service {
	return NewService(db,
		postgres.NewGroupsRepository(),
		postgres.NewGroupMembersRepository(),
		postgres.NewGroupInvitesRepository(),
		postgres.NewUsersRepository(),
		logging.NopLogger{},
	)
}

func TestCreateGroup_SeatsCreatorAsAdmin(t *testing.T) {
	db := setupDB(t)
	seedUser(t, db, "u-alice", "alice")
	svc := newTestService(db)

	g, err := svc.CreateGroup(context.Background(), "u-alice", "book club")
	require.NoError(t, err)
	require.NotEmpty(t, g.ID)

	isMember, err := svc.IsMember(context.Background(), "u-alice", g.ID)
	require.NoError(t, err)
	require.True(t, isMember)
}

func TestInviteAndAccept_CreatesMembership(t *testing.T) {
	db := setupDB(t)
	seedUser(t, db, "u-alice", "alice")
	seedUser(t, db, "u-bob", "bob")
	svc := newTestService(db)

	g, err := svc.CreateGroup(context.Background(), "u-alice", "book club")
	require.NoError(t, err)

	inv, err := svc.Invite(context.Background(), "u-alice", g.ID, "bob")
	require.NoError(t, err)

	require.NoError(t, svc.AcceptInvite(context.Background(), "u-bob", inv.ID))

	isMember, err := svc.IsMember(context.Background(), "u-bob", g.ID)
	require.NoError(t, err)
	require.True(t, isMember)
}

func TestInvite_SecondPendingInviteRejected(t *testing.T) {
	db := setupDB(t)
	seedUser(t, db, "u-alice", "alice")
	seedUser(t, db, "u-bob", "bob")
	svc := newTestService(db)

	g, err := svc.CreateGroup(context.Background(), "u-alice", "book club")
	require.NoError(t, err)

	_, err = svc.Invite(context.Background(), "u-alice", g.ID, "bob")
	require.NoError(t, err)

	_, err = svc.Invite(context.Background(), "u-alice", g.ID, "bob")
	require.ErrorIs(t, err, common.ErrInvitePending)
}

func TestInvite_NonMemberInviterRejected(t *testing.T) {
	db := setupDB(t)
	seedUser(t, db, "u-alice", "alice")
	seedUser(t, db, "u-bob", "bob")
	seedUser(t, db, "u-carol", "carol")
	svc := newTestService(db)

	g, err := svc.CreateGroup(context.Background(), "u-alice", "book club")
	require.NoError(t, err)

	_, err = svc.Invite(context.Background(), "u-carol", g.ID, "bob")
	require.ErrorIs(t, err, common.ErrNotAMember)
}

func TestRejectInvite_LeavesNoMembership(t *testing.T) {
	db := setupDB(t)
	seedUser(t, db, "u-alice", "alice")
	seedUser(t, db, "u-bob", "bob")
	svc := newTestService(db)

	g, err := svc.CreateGroup(context.Background(), "u-alice", "book club")
	require.NoError(t, err)

	inv, err := svc.Invite(context.Background(), "u-alice", g.ID, "bob")
	require.NoError(t, err)

	require.NoError(t, svc.RejectInvite(context.Background(), "u-bob", inv.ID))

	isMember, err := svc.IsMember(context.Background(), "u-bob", g.ID)
	require.NoError(t, err)
	require.False(t, isMember)

	// A fresh invite can be issued once the old one is no longer pending.
	_, err = svc.Invite(context.Background(), "u-alice", g.ID, "bob")
	require.NoError(t, err)
}

func TestLeaveGroup_RemovesMembership(t *testing.T) {
	db := setupDB(t)
	seedUser(t, db, "u-alice", "alice")
	svc := newTestService(db)

	g, err := svc.CreateGroup(context.Background(), "u-alice", "book club")
	require.NoError(t, err)

	require.NoError(t, svc.LeaveGroup(context.Background(), "u-alice", g.ID))

	isMember, err := svc.IsMember(context.Background(), "u-alice", g.ID)
	require.NoError(t, err)
	require.False(t, isMember)
}
