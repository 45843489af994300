package command

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrelchat/kestrel/internal/common"
	"github.com/kestrelchat/kestrel/internal/server/router"
)

func TestErrResponse_MapsSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{common.ErrUsernameTaken, "ERR: username taken"},
		{common.ErrUnauthorized, "ERR: invalid credentials"},
		{common.ErrInvalidToken, "ERR: invalid session"},
		{common.ErrNotFound, "ERR: not found"},
		{common.ErrNotAMember, "ERR: not a member"},
		{common.ErrValidation, "ERR: validation error"},
		{common.ErrInvitePending, "ERR: invitation already pending"},
		{common.ErrInviteNotPending, "ERR: invitation not pending"},
		{common.ErrAlreadyExists, "ERR: already exists"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, errResponse(c.err))
	}
}

func TestErrResponse_WrappedSentinel(t *testing.T) {
	wrapped := errors.New("layer: " + common.ErrNotAMember.Error())
	require.Equal(t, "ERR: "+wrapped.Error(), errResponse(wrapped))

	wrapped2 := errorsJoinWrap(common.ErrValidation)
	require.Equal(t, "ERR: validation error", errResponse(wrapped2))
}

func errorsJoinWrap(err error) error {
	return &wrapErr{err}
}

type wrapErr struct{ inner error }

func (w *wrapErr) Error() string { return "wrapped: " + w.inner.Error() }
func (w *wrapErr) Unwrap() error { return w.inner }

func TestFormatHistory_EmptyBodyStillTerminates(t *testing.T) {
	got := formatHistory("Messages:", nil)
	require.Equal(t, "OK: Messages:\n.", got)
}

func TestFormatHistory_MultipleLinesEndWithSentinel(t *testing.T) {
	ts := time.Date(2026, 1, 1, 10, 30, 0, 0, time.UTC)
	lines := []router.HistoryLine{
		{SenderName: "alice", Content: "hi", Timestamp: ts},
		{SenderName: "bob", Content: "hello back", Timestamp: ts.Add(time.Minute)},
	}
	got := formatHistory("Private messages:", lines)

	want := "OK: Private messages:\n" +
		"[10:30:00] alice: hi\n" +
		"[10:31:00] bob: hello back\n" +
		"."
	require.Equal(t, want, got)
}

func TestUnauthenticatedAllowlist(t *testing.T) {
	for _, name := range []string{"register", "login", "validate_session", "users", "help"} {
		require.True(t, unauthenticated[name], "%s should be reachable without a session", name)
	}
	for _, name := range []string{"send", "create_group", "logout", "invite"} {
		require.False(t, unauthenticated[name], "%s must require a session token", name)
	}
}
