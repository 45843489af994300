package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kestrelchat/kestrel/internal/server/router"
)

func (c *connHandler) cmdRegister(ctx context.Context, args []string) string {
	if len(args) != 2 {
		return "ERR: usage: register <user> <pass>"
	}
	if _, err := c.s.auth.Register(ctx, args[0], args[1]); err != nil {
		return errResponse(err)
	}
	return "OK: registered"
}

func (c *connHandler) cmdLogin(ctx context.Context, args []string) string {
	if len(args) != 2 {
		return "ERR: usage: login <user> <pass>"
	}
	result, err := c.s.auth.Login(ctx, args[0], args[1])
	if err != nil {
		return errResponse(err)
	}

	// Sever the user's other live connections before this one joins the
	// registry, so the freshly issued token's own connection survives.
	c.s.presence.KickAll(result.User.ID)

	c.userID = result.User.ID
	c.username = result.User.Username
	c.handle = c.s.presence.Register(result.User.ID, uuid.NewString(), c.send)

	return "OK: logged in SESSION: " + result.Token
}

func (c *connHandler) cmdValidateSession(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return "ERR: usage: validate_session <token>"
	}
	user, err := c.s.auth.ValidateSession(ctx, args[0])
	if err != nil {
		return errResponse(err)
	}
	return "OK: " + user.Username
}

func (c *connHandler) cmdLogout(ctx context.Context) string {
	if err := c.s.auth.Logout(ctx, c.userID); err != nil {
		return errResponse(err)
	}
	c.s.presence.KickAll(c.userID)
	return "OK: logged out"
}

func (c *connHandler) cmdUsers(ctx context.Context) string {
	users, err := c.s.users.List(ctx, c.s.db)
	if err != nil {
		return errResponse(err)
	}
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Username)
	}
	return "OK: " + strings.Join(names, ",")
}

func (c *connHandler) cmdCreateGroup(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return "ERR: usage: create_group <name>"
	}
	g, err := c.s.groups.CreateGroup(ctx, c.userID, args[0])
	if err != nil {
		return errResponse(err)
	}
	return "OK: " + g.ID
}

func (c *connHandler) cmdMyGroups(ctx context.Context) string {
	gs, err := c.s.groups.MyGroups(ctx, c.userID)
	if err != nil {
		return errResponse(err)
	}
	parts := make([]string, 0, len(gs))
	for _, g := range gs {
		parts = append(parts, g.ID+":"+g.Name)
	}
	return "OK: " + strings.Join(parts, ", ")
}

func (c *connHandler) cmdInvite(ctx context.Context, args []string) string {
	if len(args) != 2 {
		return "ERR: usage: invite <user> <group>"
	}
	if _, err := c.s.groups.Invite(ctx, c.userID, args[1], args[0]); err != nil {
		return errResponse(err)
	}
	return "OK: invited"
}

func (c *connHandler) cmdMyInvites(ctx context.Context) string {
	invites, err := c.s.groups.MyInvites(ctx, c.userID)
	if err != nil {
		return errResponse(err)
	}
	parts := make([]string, 0, len(invites))
	for _, inv := range invites {
		parts = append(parts, inv.ID+":"+inv.GroupID)
	}
	return "OK: " + strings.Join(parts, ", ")
}

func (c *connHandler) cmdAcceptInvite(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return "ERR: usage: accept_invite <invite_id>"
	}
	if err := c.s.groups.AcceptInvite(ctx, c.userID, args[0]); err != nil {
		return errResponse(err)
	}
	return "OK: joined"
}

func (c *connHandler) cmdRejectInvite(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return "ERR: usage: reject_invite <invite_id>"
	}
	if err := c.s.groups.RejectInvite(ctx, c.userID, args[0]); err != nil {
		return errResponse(err)
	}
	return "OK: rejected"
}

func (c *connHandler) cmdLeaveGroup(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return "ERR: usage: leave_group <group>"
	}
	if err := c.s.groups.LeaveGroup(ctx, c.userID, args[0]); err != nil {
		return errResponse(err)
	}
	return "OK: left"
}

func (c *connHandler) cmdSendGroup(ctx context.Context, args []string) string {
	if len(args) < 2 {
		return "ERR: usage: send <group> <message>"
	}
	groupID, body := args[0], strings.Join(args[1:], " ")
	if err := c.s.router.SendGroup(ctx, c.userID, c.username, groupID, body); err != nil {
		return errResponse(err)
	}
	return "OK: sent"
}

func (c *connHandler) cmdSendPrivate(ctx context.Context, args []string) string {
	if len(args) < 2 {
		return "ERR: usage: send_private <user> <message>"
	}
	receiver, body := args[0], strings.Join(args[1:], " ")
	if err := c.s.router.SendPrivate(ctx, c.userID, c.username, receiver, body); err != nil {
		return errResponse(err)
	}
	return "OK: sent"
}

func (c *connHandler) cmdGetGroupMessages(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return "ERR: usage: get_group_messages <group>"
	}
	lines, err := c.s.router.GetGroupHistory(ctx, args[0])
	if err != nil {
		return errResponse(err)
	}
	return formatHistory("Messages:", lines)
}

func (c *connHandler) cmdGetPrivateMessages(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return "ERR: usage: get_private_messages <user>"
	}
	lines, err := c.s.router.GetPrivateHistory(ctx, c.userID, c.username, args[0])
	if err != nil {
		return errResponse(err)
	}
	return formatHistory("Private messages:", lines)
}

func (c *connHandler) cmdDeleteGroupMessages(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return "ERR: usage: delete_group_messages <group>"
	}
	// DeleteGroupMessages does not check membership itself; the caller
	// must, same as SendGroup enforces it inline for sends.
	isMember, err := c.s.groups.IsMember(ctx, c.userID, args[0])
	if err != nil {
		return errResponse(err)
	}
	if !isMember {
		return "ERR: not a member"
	}
	if err := c.s.router.DeleteGroupMessages(ctx, args[0]); err != nil {
		return errResponse(err)
	}
	return "OK: cleared"
}

func (c *connHandler) cmdDeletePrivateMessages(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return "ERR: usage: delete_private_messages <user>"
	}
	if err := c.s.router.DeletePrivateMessages(ctx, c.userID, args[0]); err != nil {
		return errResponse(err)
	}
	return "OK: cleared"
}

// formatHistory renders a multiline OK response. Since the command
// stream is otherwise one line in, one line out, a multiline body ends
// with a lone "." line so the client knows where it stops.
func formatHistory(header string, lines []router.HistoryLine) string {
	var b strings.Builder
	b.WriteString("OK: ")
	b.WriteString(header)
	for _, l := range lines {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("[%s] %s: %s", fmtTimestamp(l.Timestamp), l.SenderName, l.Content))
	}
	b.WriteString("\n.")
	return b.String()
}
