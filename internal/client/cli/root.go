package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

func (a *App) root(ctx context.Context) {
	fmt.Println("Welcome to the kestrel chat CLI (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Printf("kestrel %s> ", a.status())
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			a.printHelp()
		case "register":
			a.register(ctx)
		case "login":
			a.login(ctx)
		case "logout":
			a.logout(ctx)
		case "users":
			a.listUsers(ctx)
		case "create_group":
			a.requireArgs(ctx, args, 1, "usage: create_group <name>", func() { a.send(ctx, "create_group", args[0]) })
		case "my_groups":
			a.send(ctx, "my_groups")
		case "invite":
			a.requireArgs(ctx, args, 2, "usage: invite <user> <group>", func() { a.send(ctx, "invite", args[0], args[1]) })
		case "my_invites":
			a.send(ctx, "my_invites")
		case "accept_invite":
			a.requireArgs(ctx, args, 1, "usage: accept_invite <invite_id>", func() { a.send(ctx, "accept_invite", args[0]) })
		case "reject_invite":
			a.requireArgs(ctx, args, 1, "usage: reject_invite <invite_id>", func() { a.send(ctx, "reject_invite", args[0]) })
		case "leave_group":
			a.requireArgs(ctx, args, 1, "usage: leave_group <group>", func() { a.send(ctx, "leave_group", args[0]) })
		case "send":
			a.requireArgs(ctx, args, 2, "usage: send <group> <message...>", func() {
				a.send(ctx, "send", append([]string{args[0]}, args[1:]...)...)
			})
		case "send_private":
			a.requireArgs(ctx, args, 2, "usage: send_private <user> <message...>", func() {
				a.send(ctx, "send_private", append([]string{args[0]}, args[1:]...)...)
			})
		case "get_group_messages":
			a.requireArgs(ctx, args, 1, "usage: get_group_messages <group>", func() { a.send(ctx, "get_group_messages", args[0]) })
		case "get_private_messages":
			a.requireArgs(ctx, args, 1, "usage: get_private_messages <user>", func() { a.send(ctx, "get_private_messages", args[0]) })
		case "delete_group_messages":
			a.requireArgs(ctx, args, 1, "usage: delete_group_messages <group>", func() { a.send(ctx, "delete_group_messages", args[0]) })
		case "delete_private_messages":
			a.requireArgs(ctx, args, 1, "usage: delete_private_messages <user>", func() { a.send(ctx, "delete_private_messages", args[0]) })
		case "exit", "quit":
			fmt.Println("Bye!")
			return
		default:
			fmt.Println("Unknown command:", cmd)
		}
	}
}

func (a *App) requireArgs(ctx context.Context, args []string, min int, usage string, fn func()) {
	if len(args) < min {
		fmt.Println(usage)
		return
	}
	fn()
}

func (a *App) printHelp() {
	if a.isLoggedIn() {
		fmt.Println("Available: users, create_group, my_groups, invite, my_invites, accept_invite, reject_invite, leave_group, send, send_private, get_group_messages, get_private_messages, delete_group_messages, delete_private_messages, logout, exit")
	} else {
		fmt.Println("Available: register, login, users, exit")
	}
}
