// Package config holds runtime settings for the chat CLI client.
package config

import (
	"flag"
	"os"
	"time"

	"github.com/kestrelchat/kestrel/internal/flagx"
)

// Config holds everything the CLI needs to reach the server.
type Config struct {
	ServerAddr          string
	TLSEnabled          bool
	OnlineCheckInterval time.Duration
}

// LoadDefaults returns the built-in baseline: a plaintext connection to
// a server on the same machine.
func LoadDefaults() *Config {
	return &Config{
		ServerAddr:          "127.0.0.1:7000",
		TLSEnabled:          false,
		OnlineCheckInterval: 3 * time.Second,
	}
}

// LoadConfig applies defaults, then command-line flag overrides.
func LoadConfig() *Config {
	cfg := LoadDefaults()
	parseFlags(cfg)
	return cfg
}

func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-server", "-tls"})

	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	addr := fs.String("server", cfg.ServerAddr, "command stream server address")
	tlsEnabled := fs.Bool("tls", cfg.TLSEnabled, "use TLS when connecting")

	if err := fs.Parse(args); err != nil {
		return
	}
	cfg.ServerAddr = *addr
	cfg.TLSEnabled = *tlsEnabled
}
