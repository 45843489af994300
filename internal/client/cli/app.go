// Package cli implements the chat client's interactive REPL over the
// command-stream transport.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/kestrelchat/kestrel/internal/client/config"
	"github.com/kestrelchat/kestrel/internal/client/transport"
)

// App holds the state of one interactive session: the transport
// connection, the current session token once logged in, and the
// buffered stdin reader shared by every prompt.
type App struct {
	config *config.Config
	client *transport.Client
	reader *bufio.Reader

	username string
	token    string
}

func NewApp(c *config.Config) (*App, error) {
	client, err := transport.Dial(c.ServerAddr, c.TLSEnabled)
	if err != nil {
		return nil, err
	}
	return &App{
		config: c,
		client: client,
		reader: bufio.NewReader(os.Stdin),
	}, nil
}

func (a *App) isLoggedIn() bool {
	return a.token != ""
}

func (a *App) status() string {
	if a.isLoggedIn() {
		return fmt.Sprintf("(%s)", a.username)
	}
	return ""
}

// Run starts the REPL and blocks until the user exits or stdin closes.
func (a *App) Run(ctx context.Context) {
	defer a.client.Close()
	a.root(ctx)
}
