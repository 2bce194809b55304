package main

import (
	"bytes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
	"twitchbot/internal/app/infrastructure/storage"
	"twitchbot/internal/pkg/app"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()

	path := filepath.Join(dir, "config.json")
	data := `{
  "app": {
    "data_dir": "` + filepath.Join(dir, "data") + `",
    "log_file": "` + filepath.Join(dir, "logs", "main.log") + `",
    "workers": 1
  }
}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func executeCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(append([]string{"--config", configPath, "--env", ""}, args...))

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestCredsLifecycle(t *testing.T) {
	cfg := writeConfig(t, t.TempDir())

	out, _, err := executeCLI(t, cfg, "creds", "add", "bot",
		"--username", "botname", "--access-token", "oauth:abc", "--refresh-token", "r1", "--scopes", "chat:read chat:edit")
	require.NoError(t, err)
	assert.Contains(t, out, "saved credential bot")

	out, _, err = executeCLI(t, cfg, "creds", "list")
	require.NoError(t, err)
	assert.Equal(t, "bot\tbotname\tchat:read chat:edit\n", out)

	out, _, err = executeCLI(t, cfg, "creds", "delete", "bot")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted credential bot")

	out, _, err = executeCLI(t, cfg, "creds", "list")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCredsAddRejectsIncompleteCredential(t *testing.T) {
	cfg := writeConfig(t, t.TempDir())

	_, _, err := executeCLI(t, cfg, "creds", "add", "bot", "--username", "botname")
	assert.Error(t, err, "access token flag is required")

	_, _, err = executeCLI(t, cfg, "creds", "add", "bot", "--access-token", "abc")
	assert.Error(t, err, "username is required without --validate")
}

func TestSessionsLifecycle(t *testing.T) {
	cfg := writeConfig(t, t.TempDir())

	_, _, err := executeCLI(t, cfg, "creds", "add", "bot", "--username", "botname", "--access-token", "abc")
	require.NoError(t, err)

	out, _, err := executeCLI(t, cfg, "sessions", "create", "main",
		"--credential", "bot", "--channel", "alice", "--channel", "bob")
	require.NoError(t, err)
	assert.Contains(t, out, "created session main")

	out, _, err = executeCLI(t, cfg, "sessions", "list")
	require.NoError(t, err)
	assert.Equal(t, "main\tbot\ttls://irc.chat.twitch.tv:6697\talice,bob\n", out)

	_, _, err = executeCLI(t, cfg, "creds", "delete", "bot")
	assert.ErrorIs(t, err, storage.ErrInUse)

	_, _, err = executeCLI(t, cfg, "sessions", "create", "main", "--credential", "bot")
	assert.ErrorIs(t, err, storage.ErrExists)

	_, _, err = executeCLI(t, cfg, "sessions", "delete", "main")
	require.NoError(t, err)

	out, _, err = executeCLI(t, cfg, "sessions", "list")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSessionsCreateNeedsKnownCredential(t *testing.T) {
	cfg := writeConfig(t, t.TempDir())

	_, _, err := executeCLI(t, cfg, "sessions", "create", "main", "--credential", "ghost")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRunWithoutSessions(t *testing.T) {
	cfg := writeConfig(t, t.TempDir())

	_, _, err := executeCLI(t, cfg, "run")
	assert.ErrorIs(t, err, app.ErrNoSessions)
}
