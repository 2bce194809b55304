package config

import (
	"encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewWritesDefaultWhenMissing(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")

	m, err := New(path)
	require.NoError(t, err)

	cfg := m.Get()
	assert.Equal(t, DefaultHost, cfg.IRC.Host)
	assert.Equal(t, TransportTLS, cfg.IRC.Transport)
	assert.Equal(t, 100, cfg.Backoff.MaxDelaySecs)
	assert.Equal(t, 2, cfg.App.Workers)

	_, err = os.Stat(path)
	require.NoError(t, err)

	again, err := New(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again.Get())
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"irc":{"host":"localhost","transport":"tcp"}}`), 0644))

	m, err := New(path)
	require.NoError(t, err)

	cfg := m.Get()
	assert.Equal(t, "localhost", cfg.IRC.Host)
	assert.Equal(t, TransportTCP, cfg.IRC.Transport)
	assert.Equal(t, 6697, cfg.IRC.Port)
	assert.Equal(t, 20, cfg.IRC.Limiter.Requests)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(cfg *Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad level", func(c *Config) { c.App.LogLevel = "loud" }, "app.log_level"},
		{"no workers", func(c *Config) { c.App.Workers = 0 }, "app.workers"},
		{"bad transport", func(c *Config) { c.IRC.Transport = "udp" }, "irc.transport"},
		{"bad port", func(c *Config) { c.IRC.Port = 70000 }, "irc.port"},
		{"half limiter", func(c *Config) { c.IRC.Limiter.Per = 0 }, "irc.limiter"},
		{"no backoff bound", func(c *Config) { c.Backoff.MaxDelaySecs = 0 }, "backoff"},
		{"bad proxy", func(c *Config) { c.Proxy = &Proxy{Address: "127.0.0.1"} }, "proxy.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := &Manager{}
			cfg := m.GetDefault()
			tt.modify(cfg)

			err := m.validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestUpdatePersists(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	m, err := New(path)
	require.NoError(t, err)

	require.NoError(t, m.Update(func(cfg *Config) {
		cfg.App.Workers = 4
		cfg.Backoff.Unit = 10 * time.Millisecond
	}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var onDisk Config
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, 4, onDisk.App.Workers)
	assert.Equal(t, 10*time.Millisecond, onDisk.Backoff.Unit)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	assert.Error(t, m.Update(func(cfg *Config) { cfg.App.Workers = 0 }))
	assert.Equal(t, 4, m.Get().App.Workers, "rejected update leaves the live config alone")
}

func TestAppCredentialsPreferEnvironment(t *testing.T) {
	cfg := (&Manager{}).GetDefault()
	cfg.App.ClientID = "file-id"
	cfg.App.ClientSecret = "file-secret"

	m, err := NewFromConfig(cfg)
	require.NoError(t, err)

	t.Setenv(EnvClientID, "")
	t.Setenv(EnvClientSecret, "")
	id, secret := m.AppCredentials()
	assert.Equal(t, "file-id", id)
	assert.Equal(t, "file-secret", secret)

	t.Setenv(EnvClientID, "env-id")
	t.Setenv(EnvClientSecret, "env-secret")
	id, secret = m.AppCredentials()
	assert.Equal(t, "env-id", id)
	assert.Equal(t, "env-secret", secret)

	assert.ErrorIs(t, m.Update(func(*Config) {}), ErrNoFile)
}
