// Package auth implements the session & authentication manager: atomic
// login enforcing a single-session invariant, registration, stateless
// session validation, logout, and a periodic expiry sweep. Sessions are
// a single opaque token rather than a JWT access/refresh pair — a
// self-verifying token cannot be revoked mid-lifetime, which the
// single-session invariant requires.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelchat/kestrel/internal/common"
	"github.com/kestrelchat/kestrel/internal/cryptox"
	"github.com/kestrelchat/kestrel/internal/dbx"
	"github.com/kestrelchat/kestrel/internal/logging"
	"github.com/kestrelchat/kestrel/internal/server/models"
	"github.com/kestrelchat/kestrel/internal/server/repository"
)

// sessionTokenBytes yields a 256-bit token, comfortably above the
// 128-bit floor needed to make guessing infeasible, rendered as hex by
// common.MakeRandHexString.
const sessionTokenBytes = 32

type Manager struct {
	db       *sql.DB
	users    repository.Users
	sessions repository.Sessions
	events   repository.SessionEvents
	log      logging.Logger

	sessionLifetime time.Duration
}

func NewManager(db *sql.DB, users repository.Users, sessions repository.Sessions, events repository.SessionEvents, log logging.Logger, sessionLifetime time.Duration) *Manager {
	return &Manager{
		db:              db,
		users:           users,
		sessions:        sessions,
		events:          events,
		log:             log,
		sessionLifetime: sessionLifetime,
	}
}

// Register inserts a new user row. Fails with common.ErrUsernameTaken on
// a uniqueness violation.
func (m *Manager) Register(ctx context.Context, username, password string) (*models.User, error) {
	salt := common.GenerateRandByteArray(cryptox.SaltSize)
	verifier := cryptox.DerivePasswordVerifier([]byte(password), salt)

	u := &models.User{
		ID:               uuid.NewString(),
		Username:         username,
		PasswordVerifier: verifier,
		Salt:             salt,
	}
	if err := m.users.Create(ctx, m.db, u); err != nil {
		return nil, err
	}
	return u, nil
}

// LoginResult is what the connection handler needs to complete the
// registry-kick step, which is the caller's responsibility, not
// Login's.
type LoginResult struct {
	User  *models.User
	Token string
}

// Login runs the full atomic sequence: verify password, delete prior
// sessions, insert a fresh one, mark the user online, append a
// login_success event, commit. The presence-registry kick is the
// caller's responsibility (the connection handler) — the invariant
// holds without it because the old tokens are already gone by the time
// this function returns.
func (m *Manager) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	var result *LoginResult

	err := dbx.WithTx(ctx, m.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		// Lock the user row so a second concurrent login for the same
		// username blocks here until this transaction commits or rolls
		// back, instead of both transactions reading zero prior sessions
		// and each inserting one.
		u, err := m.users.GetByUsernameForUpdate(ctx, tx, username)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return common.ErrUnauthorized
			}
			return err
		}
		if !cryptox.VerifyPassword([]byte(password), u.Salt, u.PasswordVerifier) {
			return common.ErrUnauthorized
		}

		if err := m.sessions.DeleteByUserID(ctx, tx, u.ID); err != nil {
			return err
		}

		token, err := common.MakeRandHexString(sessionTokenBytes)
		if err != nil {
			return fmt.Errorf("generate token: %w", err)
		}
		now := time.Now().UTC()
		session := &models.Session{
			Token:     token,
			UserID:    u.ID,
			ExpiresAt: now.Add(m.sessionLifetime),
		}
		if err := m.sessions.Create(ctx, tx, session); err != nil {
			return err
		}

		if err := m.users.SetOnline(ctx, tx, u.ID, true); err != nil {
			return err
		}
		if err := m.users.TouchLastSeen(ctx, tx, u.ID, now); err != nil {
			return err
		}

		if err := m.events.Append(ctx, tx, &models.SessionEvent{UserID: u.ID, Kind: models.EventLoginSuccess}); err != nil {
			return err
		}

		u.IsOnline = true
		result = &LoginResult{User: u, Token: token}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.log.Info(ctx, "login committed", "user_id", result.User.ID, "username", username)
	return result, nil
}

// ValidateSession returns the owning user for token if a non-expired
// session row exists. It never kicks: auto-login must not evict a
// user's other live devices.
func (m *Manager) ValidateSession(ctx context.Context, token string) (*models.User, error) {
	s, err := m.sessions.GetByToken(ctx, m.db, token)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, err
	}
	if time.Now().UTC().After(s.ExpiresAt) {
		return nil, common.ErrInvalidToken
	}
	return m.users.GetByID(ctx, m.db, s.UserID)
}

// Logout deletes every session row for the user, clears the online
// flag, and appends a logout event, all in one transaction. The caller
// must subsequently invoke KickAll on the presence registry so other
// live connections of the same user are torn down — both the logout
// event recorded here and the quit event each kicked connection records
// during its own cleanup are intentionally kept: this is an
// acknowledged audit duplication, not a bug.
func (m *Manager) Logout(ctx context.Context, userID string) error {
	err := dbx.WithTx(ctx, m.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := m.sessions.DeleteByUserID(ctx, tx, userID); err != nil {
			return err
		}
		if err := m.users.SetOnline(ctx, tx, userID, false); err != nil {
			return err
		}
		return m.events.Append(ctx, tx, &models.SessionEvent{UserID: userID, Kind: models.EventLogout})
	})
	if err != nil {
		return err
	}
	m.log.Info(ctx, "logout committed", "user_id", userID)
	return nil
}

// MarkOffline clears the online flag and appends kind as an audit
// event. Callers invoke this once a connection's cleanup observes the
// presence registry's count for userID drop to zero — it does not
// touch the sessions table, since a kick or quit does not by itself
// invalidate a still-valid token held by another device.
func (m *Manager) MarkOffline(ctx context.Context, userID string, kind models.SessionEventKind) error {
	err := dbx.WithTx(ctx, m.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := m.users.SetOnline(ctx, tx, userID, false); err != nil {
			return err
		}
		return m.events.Append(ctx, tx, &models.SessionEvent{UserID: userID, Kind: kind})
	})
	if err != nil {
		return err
	}
	m.log.Info(ctx, "marked offline", "user_id", userID, "event", kind)
	return nil
}

// Sweep deletes every session row whose expires_at has passed and
// returns how many were removed. Intended to run on a timer, default
// every 10-60 minutes.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	n, err := m.sessions.DeleteExpired(ctx, m.db, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.log.Info(ctx, "swept expired sessions", "count", n)
	}
	return n, nil
}
