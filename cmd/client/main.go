package main

import (
	"context"
	"log"

	"github.com/kestrelchat/kestrel/internal/client/cli"
	"github.com/kestrelchat/kestrel/internal/client/config"
)

func main() {
	cfg := config.LoadConfig()

	app, err := cli.NewApp(cfg)
	if err != nil {
		log.Fatalf("client: %v", err)
	}

	app.Run(context.Background())
}
