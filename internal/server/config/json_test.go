package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON_OverlaysProvidedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"command_addr": ":9000",
		"session_lifetime": "72h",
		"sweep_interval": 120,
		"log_level": "debug"
	}`), 0o644))

	oldArgs := os.Args
	t.Cleanup(func() { os.Args = oldArgs })
	os.Args = []string{"cmd", "-c", path}

	cfg := LoadDefaults()
	require.NoError(t, parseJSON(cfg))

	assert.Equal(t, ":9000", cfg.CommandAddr)
	assert.Equal(t, 72*time.Hour, cfg.SessionLifetime)
	assert.Equal(t, 2*time.Minute, cfg.SweepInterval)
	assert.Equal(t, "debug", cfg.LogLevel)
	// Untouched fields keep their defaults.
	assert.Equal(t, ":7001", cfg.RealtimeAddr)
}

func TestParseJSON_NoFlagIsNoop(t *testing.T) {
	oldArgs := os.Args
	t.Cleanup(func() { os.Args = oldArgs })
	os.Args = []string{"cmd"}

	cfg := LoadDefaults()
	require.NoError(t, parseJSON(cfg))
	assert.Equal(t, ":7000", cfg.CommandAddr)
}

func TestParseJSON_MissingFileIsError(t *testing.T) {
	oldArgs := os.Args
	t.Cleanup(func() { os.Args = oldArgs })
	os.Args = []string{"cmd", "-c", "/no/such/file.json"}

	cfg := LoadDefaults()
	require.Error(t, parseJSON(cfg))
}
