package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/kestrelchat/kestrel/internal/flagx"
)

// jsonDuration accepts either a Go duration string ("5m", "24h") or a
// bare number of seconds, so hand-written config files don't need to
// know Go's duration grammar.
type jsonDuration time.Duration

func (d *jsonDuration) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		parsed, err := time.ParseDuration(asString)
		if err != nil {
			return err
		}
		*d = jsonDuration(parsed)
		return nil
	}

	var asSeconds float64
	if err := json.Unmarshal(data, &asSeconds); err != nil {
		return err
	}
	*d = jsonDuration(asSeconds * float64(time.Second))
	return nil
}

// jsonConfig mirrors Config but with JSON-friendly field names and
// duration types; zero values are simply not copied over, so a file
// only needs to set what it wants to override.
type jsonConfig struct {
	CommandAddr  string `json:"command_addr"`
	RealtimeAddr string `json:"realtime_addr"`

	DatabaseURL string `json:"database_url"`

	TLSEnabled  *bool  `json:"tls_enabled"`
	TLSCertFile string `json:"tls_cert_file"`
	TLSKeyFile  string `json:"tls_key_file"`

	MasterKeyHex string `json:"master_key_hex"`

	SessionLifetime jsonDuration `json:"session_lifetime"`
	SweepInterval   jsonDuration `json:"sweep_interval"`

	RedisURL string `json:"redis_url"`
	LogLevel string `json:"log_level"`
}

// parseJSON overlays cfg with values from the file named by -c/-config,
// if any. A missing flag is not an error; the file itself must parse if
// the flag names one.
func parseJSON(cfg *Config) error {
	path := flagx.JSONConfigFlags()
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var jc jsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return err
	}

	if jc.CommandAddr != "" {
		cfg.CommandAddr = jc.CommandAddr
	}
	if jc.RealtimeAddr != "" {
		cfg.RealtimeAddr = jc.RealtimeAddr
	}
	if jc.DatabaseURL != "" {
		cfg.DatabaseURL = jc.DatabaseURL
	}
	if jc.TLSEnabled != nil {
		cfg.TLSEnabled = *jc.TLSEnabled
	}
	if jc.TLSCertFile != "" {
		cfg.TLSCertFile = jc.TLSCertFile
	}
	if jc.TLSKeyFile != "" {
		cfg.TLSKeyFile = jc.TLSKeyFile
	}
	if jc.MasterKeyHex != "" {
		cfg.MasterKeyHex = jc.MasterKeyHex
	}
	if jc.SessionLifetime != 0 {
		cfg.SessionLifetime = time.Duration(jc.SessionLifetime)
	}
	if jc.SweepInterval != 0 {
		cfg.SweepInterval = time.Duration(jc.SweepInterval)
	}
	if jc.RedisURL != "" {
		cfg.RedisURL = jc.RedisURL
	}
	if jc.LogLevel != "" {
		cfg.LogLevel = jc.LogLevel
	}
	return nil
}
