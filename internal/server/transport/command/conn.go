package command

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/kestrelchat/kestrel/internal/common"
	"github.com/kestrelchat/kestrel/internal/server/models"
	"github.com/kestrelchat/kestrel/internal/server/presence"
)

// unauthenticated is the command name allowlist the connection handler
// accepts before a valid session token has been presented.
var unauthenticated = map[string]bool{
	"register":         true,
	"login":            true,
	"validate_session": true,
	"users":            true,
	"help":             true,
}

type connHandler struct {
	s    *Server
	conn net.Conn

	writeMu sync.Mutex
	w       *bufio.Writer

	userID   string
	username string
	handle   *presence.Handle
}

func newConnHandler(s *Server, conn net.Conn) *connHandler {
	return &connHandler{s: s, conn: conn, w: bufio.NewWriter(conn)}
}

// writeLine serializes writes to the socket so that a pushed event
// frame never interleaves with a command response mid-line.
func (c *connHandler) writeLine(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.w.WriteString(line); err != nil {
		return err
	}
	if !strings.HasSuffix(line, "\n") {
		if _, err := c.w.WriteString("\n"); err != nil {
			return err
		}
	}
	return c.w.Flush()
}

// send implements presence.Handle's Send contract for a command-stream
// connection: a pushed event is framed as a line prefixed "EVENT: "
// carrying the JSON frame, distinguishable from command responses which
// always start with OK: or ERR:.
func (c *connHandler) send(frame presence.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return c.writeLine("EVENT: " + string(data))
}

func (c *connHandler) run(ctx context.Context) {
	defer c.cleanup(ctx)

	reader := bufio.NewReader(c.conn)
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		for {
			line, err := reader.ReadString('\n')
			if line != "" {
				lines <- strings.TrimRight(line, "\r\n")
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	var kicked <-chan struct{}

	for {
		if c.handle != nil {
			kicked = c.handle.Kicked()
		}
		select {
		case <-ctx.Done():
			return
		case <-kicked:
			_ = c.writeLine("EVENT: {\"message_type\":\"kicked\"}")
			return
		case err := <-readErr:
			_ = err
			return
		case line := <-lines:
			if strings.TrimSpace(line) == "" {
				continue
			}
			resp := c.dispatch(ctx, line)
			if err := c.writeLine(resp); err != nil {
				return
			}
		}
	}
}

func (c *connHandler) cleanup(ctx context.Context) {
	_ = c.conn.Close()
	if c.handle == nil || c.userID == "" {
		return
	}
	c.s.presence.UnregisterOne(c.userID, c.handle.ConnID)
	if c.s.presence.Count(c.userID) == 0 {
		kind := models.EventQuit
		select {
		case <-c.handle.Kicked():
			kind = models.EventKickedOut
		default:
		}
		if err := c.s.auth.MarkOffline(ctx, c.userID, kind); err != nil {
			c.s.log.Warn(ctx, "command: mark offline failed", "user_id", c.userID, "error", err)
		}
	}
}

func (c *connHandler) dispatch(ctx context.Context, line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "ERR: empty command"
	}
	name := strings.TrimPrefix(fields[0], "/")
	args := fields[1:]

	if !unauthenticated[name] {
		if len(args) == 0 {
			return "ERR: not authenticated"
		}
		user, err := c.s.auth.ValidateSession(ctx, args[0])
		if err != nil {
			return "ERR: not authenticated"
		}
		c.userID = user.ID
		c.username = user.Username
		args = args[1:]
	}

	switch name {
	case "register":
		return c.cmdRegister(ctx, args)
	case "login":
		return c.cmdLogin(ctx, args)
	case "validate_session":
		return c.cmdValidateSession(ctx, args)
	case "logout":
		return c.cmdLogout(ctx)
	case "users":
		return c.cmdUsers(ctx)
	case "create_group":
		return c.cmdCreateGroup(ctx, args)
	case "my_groups":
		return c.cmdMyGroups(ctx)
	case "invite":
		return c.cmdInvite(ctx, args)
	case "my_invites":
		return c.cmdMyInvites(ctx)
	case "accept_invite":
		return c.cmdAcceptInvite(ctx, args)
	case "reject_invite":
		return c.cmdRejectInvite(ctx, args)
	case "leave_group":
		return c.cmdLeaveGroup(ctx, args)
	case "send":
		return c.cmdSendGroup(ctx, args)
	case "send_private":
		return c.cmdSendPrivate(ctx, args)
	case "get_group_messages":
		return c.cmdGetGroupMessages(ctx, args)
	case "get_private_messages":
		return c.cmdGetPrivateMessages(ctx, args)
	case "delete_group_messages":
		return c.cmdDeleteGroupMessages(ctx, args)
	case "delete_private_messages":
		return c.cmdDeletePrivateMessages(ctx, args)
	case "help":
		return "OK: register|login|validate_session|logout|users|create_group|my_groups|invite|my_invites|accept_invite|reject_invite|leave_group|send|send_private|get_group_messages|get_private_messages|delete_group_messages|delete_private_messages"
	default:
		return "ERR: unknown command"
	}
}

func errResponse(err error) string {
	switch {
	case errors.Is(err, common.ErrUsernameTaken):
		return "ERR: username taken"
	case errors.Is(err, common.ErrUnauthorized):
		return "ERR: invalid credentials"
	case errors.Is(err, common.ErrInvalidToken):
		return "ERR: invalid session"
	case errors.Is(err, common.ErrNotFound):
		return "ERR: not found"
	case errors.Is(err, common.ErrNotAMember):
		return "ERR: not a member"
	case errors.Is(err, common.ErrValidation):
		return "ERR: validation error"
	case errors.Is(err, common.ErrInvitePending):
		return "ERR: invitation already pending"
	case errors.Is(err, common.ErrInviteNotPending):
		return "ERR: invitation not pending"
	case errors.Is(err, common.ErrAlreadyExists):
		return "ERR: already exists"
	default:
		return fmt.Sprintf("ERR: %v", err)
	}
}

func fmtTimestamp(t time.Time) string {
	return t.Format("15:04:05")
}
