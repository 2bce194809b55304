package app

import (
	"context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
	"twitchbot/internal/app/domain/credential"
	"twitchbot/internal/app/infrastructure/config"
	"twitchbot/internal/app/infrastructure/storage"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()

	path := filepath.Join(dir, "config.json")
	data := `{
  "app": {
    "data_dir": "` + filepath.Join(dir, "data") + `",
    "log_file": "` + filepath.Join(dir, "logs", "main.log") + `",
    "workers": 1,
    "metrics_addr": "",
    "client_id": "from-file"
  }
}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestNewWiresFromConfig(t *testing.T) {
	dir := t.TempDir()

	a, err := New(writeConfig(t, dir), filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "data"), a.Store.Root())
	assert.Equal(t, config.DefaultHost, a.Manager.Get().IRC.Host)
	assert.NotNil(t, a.Overseer)
}

func TestNewLoadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte(config.EnvClientID+"=from-env\n"), 0o600))
	t.Setenv(config.EnvClientID, "")
	require.NoError(t, os.Unsetenv(config.EnvClientID))

	a, err := New(writeConfig(t, dir), envPath)
	require.NoError(t, err)

	id, _ := a.Manager.AppCredentials()
	assert.Equal(t, "from-env", id)
}

func TestRunWithoutSessions(t *testing.T) {
	dir := t.TempDir()

	a, err := New(writeConfig(t, dir), "")
	require.NoError(t, err)

	assert.ErrorIs(t, a.Run(context.Background(), nil), ErrNoSessions)
}

func TestRunFailsWhenNoSessionStarts(t *testing.T) {
	dir := t.TempDir()

	a, err := New(writeConfig(t, dir), "")
	require.NoError(t, err)
	require.NoError(t, a.Manager.Update(func(cfg *config.Config) {
		cfg.App.MetricsAddr = "127.0.0.1:0"
	}))

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background(), []string{"ghost"}) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrNoSessionStarted)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	case <-time.After(5 * time.Second):
		t.Fatal("Run kept idling with no session started")
	}
}

func TestRunStopsOverseerWhenRouterFails(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = busy.Close() })

	closed, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ircPort := closed.Addr().(*net.TCPAddr).Port
	require.NoError(t, closed.Close())

	a, err := New(writeConfig(t, dir), "")
	require.NoError(t, err)
	require.NoError(t, a.Manager.Update(func(cfg *config.Config) {
		cfg.App.MetricsAddr = busy.Addr().String()
	}))
	require.NoError(t, a.Store.SaveCredential(ctx, "main", credential.Credential{Username: "bot", AccessToken: "a"}))
	require.NoError(t, a.Overseer.CreateSession(ctx, "bot1", storage.SessionRecord{
		Credential: "main", Host: "127.0.0.1", Port: ircPort, Transport: config.TransportTCP,
	}))

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, nil) }()

	select {
	case err := <-done:
		assert.Error(t, err)
		assert.Empty(t, a.Overseer.Sessions())
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after the router failed")
	}
}

func TestEnrolmentNeedsRedirectURL(t *testing.T) {
	dir := t.TempDir()

	a, err := New(writeConfig(t, dir), "")
	require.NoError(t, err)
	assert.Nil(t, a.enrolment())

	require.NoError(t, a.Manager.Update(func(cfg *config.Config) {
		cfg.App.RedirectURL = "http://localhost:9100/callback"
	}))

	e := a.enrolment()
	require.NotNil(t, e)
	assert.Equal(t, "from-file", e.ClientID)
	assert.Equal(t, []string{"chat:read", "chat:edit", "moderator:manage:banned_users"}, e.Scopes)
}
