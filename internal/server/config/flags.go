package config

import (
	"flag"
	"os"
	"time"

	"github.com/kestrelchat/kestrel/internal/flagx"
)

// parseFlags overlays cfg with command-line flags, the final and
// highest-priority stage.
func parseFlags(cfg *Config) {
	allowed := []string{
		"-a", "-rt", "-d", "-tls", "-cert", "-key",
		"-k", "-session-days", "-sweep", "-redis", "-l",
	}
	args := flagx.FilterArgs(os.Args[1:], allowed)

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	commandAddr := fs.String("a", cfg.CommandAddr, "command stream listen address")
	realtimeAddr := fs.String("rt", cfg.RealtimeAddr, "real-time stream listen address")
	databaseURL := fs.String("d", cfg.DatabaseURL, "database connection URL")
	tlsEnabled := fs.Bool("tls", cfg.TLSEnabled, "enable TLS on both listeners")
	certFile := fs.String("cert", cfg.TLSCertFile, "TLS certificate file")
	keyFile := fs.String("key", cfg.TLSKeyFile, "TLS key file")
	masterKey := fs.String("k", cfg.MasterKeyHex, "master encryption key, 64 hex characters")
	sessionDays := fs.Int("session-days", int(cfg.SessionLifetime/(24*time.Hour)), "session lifetime in days")
	sweepMinutes := fs.Int("sweep", int(cfg.SweepInterval/time.Minute), "expired session sweep interval in minutes")
	redisURL := fs.String("redis", cfg.RedisURL, "Redis URL; empty selects the in-process broadcast bus")
	logLevel := fs.String("l", cfg.LogLevel, "log level: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		return
	}

	cfg.CommandAddr = *commandAddr
	cfg.RealtimeAddr = *realtimeAddr
	cfg.DatabaseURL = *databaseURL
	cfg.TLSEnabled = *tlsEnabled
	cfg.TLSCertFile = *certFile
	cfg.TLSKeyFile = *keyFile
	cfg.MasterKeyHex = *masterKey
	cfg.SessionLifetime = time.Duration(*sessionDays) * 24 * time.Hour
	cfg.SweepInterval = time.Duration(*sweepMinutes) * time.Minute
	cfg.RedisURL = *redisURL
	cfg.LogLevel = *logLevel
}
