package main

import (
	"context"
	"log"

	"github.com/kestrelchat/kestrel/internal/server"
	"github.com/kestrelchat/kestrel/internal/server/config"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	app, err := server.NewApp(cfg)
	if err != nil {
		log.Fatalf("server: %v", err)
	}

	app.Run(ctx)
}
