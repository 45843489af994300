package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	c := LoadDefaults()

	assert.Equal(t, ":7000", c.CommandAddr)
	assert.Equal(t, ":7001", c.RealtimeAddr)
	assert.False(t, c.TLSEnabled)
	assert.Equal(t, 7*24*time.Hour, c.SessionLifetime)
	assert.Equal(t, 10*time.Minute, c.SweepInterval)
	assert.Equal(t, "info", c.LogLevel)
	assert.Empty(t, c.MasterKeyHex)
}

func TestValidate_RejectsWrongLengthMasterKey(t *testing.T) {
	c := LoadDefaults()
	c.MasterKeyHex = "not-hex-and-not-64-chars"
	assert.Error(t, c.Validate())
}

func TestValidate_AcceptsSixtyFourHexChars(t *testing.T) {
	c := LoadDefaults()
	c.MasterKeyHex = "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
	assert.NoError(t, c.Validate())
}

func TestValidate_TLSEnabledRequiresFiles(t *testing.T) {
	c := LoadDefaults()
	c.MasterKeyHex = "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
	c.TLSEnabled = true
	assert.Error(t, c.Validate())
}

func TestLoadConfig_GeneratesMasterKeyWhenUnset(t *testing.T) {
	c, err := LoadConfig()
	assert := assert.New(t)
	assert.NoError(err)
	assert.Len(c.MasterKeyHex, 64)

	key, err := c.MasterKey()
	assert.NoError(err)
	assert.Len(key, masterKeySize)
}
