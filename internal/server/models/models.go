// Package models holds the persistent entities of the chat core.
// Identifiers are opaque UUIDs rendered as text; timestamps are UTC.
package models

import "time"

// User is a registered account. IsOnline is a derived view of the
// presence registry — it is written whenever that registry transitions
// between empty and non-empty for the user, never read from it directly
// at query time.
type User struct {
	ID               string
	Username         string
	PasswordVerifier []byte
	Salt             []byte
	CreatedAt        time.Time
	LastSeen         time.Time
	IsOnline         bool
}

// Session is a single active login. The single-session invariant means
// at most one non-expired row exists per user at any time.
type Session struct {
	Token     string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionEventKind enumerates the append-only audit event kinds.
type SessionEventKind string

const (
	EventLoginSuccess SessionEventKind = "login_success"
	EventLogout       SessionEventKind = "logout"
	EventQuit         SessionEventKind = "quit"
	EventKickedOut    SessionEventKind = "kicked_out"
)

// SessionEvent is one row of the append-only security audit log.
type SessionEvent struct {
	ID     string
	UserID string
	Kind   SessionEventKind
	At     time.Time
}

// GroupRole is a member's privilege level within a group.
type GroupRole string

const (
	RoleAdmin     GroupRole = "admin"
	RoleModerator GroupRole = "moderator"
	RoleMember    GroupRole = "member"
)

// Group is a named collection of users that share group messages.
type Group struct {
	ID         string
	Name       string
	CreatedBy  string
	CreatedAt  time.Time
	IsActive   bool
	MaxMembers int
}

// GroupMember is one row of the group_members composite-key table.
type GroupMember struct {
	GroupID  string
	UserID   string
	Role     GroupRole
	JoinedAt time.Time
}

// InviteStatus is the lifecycle state of a GroupInvite.
type InviteStatus string

const (
	InvitePending  InviteStatus = "pending"
	InviteAccepted InviteStatus = "accepted"
	InviteRejected InviteStatus = "rejected"
	InviteExpired  InviteStatus = "expired"
)

// GroupInvite is a pending, accepted, rejected or expired invitation to
// join a Group. At most one pending row may exist per (GroupID,
// InviteeID) pair.
type GroupInvite struct {
	ID          string
	GroupID     string
	InviterID   string
	InviteeID   string
	Status      InviteStatus
	CreatedAt   time.Time
	ExpiresAt   *time.Time
	RespondedAt *time.Time
}

// PrivateMessage is a one-to-one message. Content is either envelope
// JSON or opaque legacy plaintext.
type PrivateMessage struct {
	ID              string
	SenderID        string
	ReceiverID      string
	Content         string
	Timestamp       time.Time
	SenderDeleted   bool
	ReceiverDeleted bool
}

// GroupMessage is a message posted to a Group.
type GroupMessage struct {
	ID        string
	SenderID  string
	GroupID   string
	Content   string
	Timestamp time.Time
	IsDeleted bool
}
