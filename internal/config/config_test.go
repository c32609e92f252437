package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Auth.ServerURL = "https://vault.example.com"

	require.NoError(t, Validate(cfg))
}

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, defaultParallelTransfers, cfg.Transfers.ParallelTransfers)
	assert.Equal(t, defaultMaxRetries, cfg.Transfers.MaxRetries)
	assert.Equal(t, "info", cfg.Logging.LogLevel)
	assert.Equal(t, "auto", cfg.Logging.LogFormat)
	assert.Equal(t, "10s", cfg.Network.ConnectTimeout)
	assert.Equal(t, "60s", cfg.Network.DataTimeout)
}
