package cli

import (
	"context"
	"fmt"
	"strings"
)

func (a *App) register(ctx context.Context) {
	username, err := getLine(a.reader, "Enter username")
	if err != nil {
		fmt.Println(err)
		return
	}
	password, err := getPassword()
	if err != nil {
		fmt.Println(err)
		return
	}
	resp, err := a.client.Send(fmt.Sprintf("/register %s %s", username, password))
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(resp)
}

func (a *App) login(ctx context.Context) {
	username, err := getLine(a.reader, "Enter username")
	if err != nil {
		fmt.Println(err)
		return
	}
	password, err := getPassword()
	if err != nil {
		fmt.Println(err)
		return
	}
	resp, err := a.client.Send(fmt.Sprintf("/login %s %s", username, password))
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(resp)

	const marker = "SESSION: "
	if idx := strings.Index(resp, marker); idx >= 0 {
		a.token = strings.TrimSpace(resp[idx+len(marker):])
		a.username = username
	}
}

func (a *App) logout(ctx context.Context) {
	if !a.isLoggedIn() {
		fmt.Println("not logged in")
		return
	}
	resp, err := a.client.Send(fmt.Sprintf("/logout %s", a.token))
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(resp)
	a.token = ""
	a.username = ""
}

// authed builds a command line with the session token spliced in as
// the first argument, matching every authenticated command's wire
// shape.
func (a *App) authed(name string, args ...string) string {
	parts := append([]string{"/" + name, a.token}, args...)
	return strings.Join(parts, " ")
}

func (a *App) send(ctx context.Context, name string, args ...string) {
	if !a.isLoggedIn() {
		fmt.Println("not logged in")
		return
	}
	resp, err := a.client.Send(a.authed(name, args...))
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(resp)
}

func (a *App) listUsers(ctx context.Context) {
	resp, err := a.client.Send("/users")
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(resp)
}
