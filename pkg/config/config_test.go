package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btctrack/pkg/models"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)

	assert.True(t, cfg.DefaultTLS)
	assert.Equal(t, 10*time.Second, cfg.CallTimeout())
	assert.True(t, cfg.Discovery.Enabled)
	assert.Equal(t, 50, cfg.Discovery.MaxServers)
	assert.Equal(t, 10*time.Minute, cfg.Discovery.StaleAfter())
	assert.Equal(t, "127.0.0.1:8000", cfg.API.Listen)
	assert.Empty(t, cfg.Servers)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "btctrack.toml")

	cfg := Default()
	cfg.Addresses = []string{"1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"}
	cfg.Servers = []models.Endpoint{
		{Host: "electrum.example.org", Port: 50002, TLS: true},
		{Host: "plain.example.org", Port: 50001},
	}
	cfg.Discovery.MaxServers = 25
	cfg.API.APIKey = "secret"

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "btctrack.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
call_timeout_seconds = 3

[[servers]]
host = "electrum.example.org"
port = 50002
tls = true
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.CallTimeout())
	require.Len(t, cfg.Servers, 1)
	assert.Equal(t, models.Endpoint{Host: "electrum.example.org", Port: 50002, TLS: true}, cfg.Servers[0])
	// Untouched sections keep their defaults.
	assert.Equal(t, 8, cfg.Discovery.ProbeConcurrency)
	assert.Equal(t, 120, cfg.API.RatePerMin)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "btctrack.toml")
	require.NoError(t, os.WriteFile(path, []byte("this is { not toml"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
