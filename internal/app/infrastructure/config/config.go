package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	EnvClientID     = "TWITCH_CLIENT_ID"
	EnvClientSecret = "TWITCH_CLIENT_SECRET"
)

// The file carries the OAuth client secret and the admin token.
const fileMode = 0o600

var ErrNoFile = errors.New("config is not backed by a file")

type Manager struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
}

// New loads path, writing a default config there first if it does not exist.
func New(path string) (*Manager, error) {
	if path == "" {
		return nil, errors.New("no config path provided")
	}
	m := &Manager{path: path}

	cfg, err := m.load()
	switch {
	case err == nil:
		m.cfg = cfg
	case errors.Is(err, os.ErrNotExist):
		m.cfg = m.GetDefault()
		if err := m.saveLocked(); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	return m, nil
}

// NewFromConfig wraps an in-memory config that is never written to disk.
func NewFromConfig(cfg *Config) (*Manager, error) {
	m := &Manager{cfg: cfg}
	if err := m.validate(cfg); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	return m, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.cfg
}

// Update applies modify to a copy and persists it; the live config only
// changes when the result validates and is written.
func (m *Manager) Update(modify func(cfg *Config)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.path == "" {
		return ErrNoFile
	}

	next := *m.cfg
	if m.cfg.Proxy != nil {
		proxy := *m.cfg.Proxy
		next.Proxy = &proxy
	}
	modify(&next)

	if err := m.validate(&next); err != nil {
		return fmt.Errorf("invalid config update: %w", err)
	}

	prev := m.cfg
	m.cfg = &next
	if err := m.saveLocked(); err != nil {
		m.cfg = prev
		return err
	}
	return nil
}

// AppCredentials returns the OAuth client id and secret, preferring the environment.
func (m *Manager) AppCredentials() (string, string) {
	cfg := m.Get()

	id, secret := cfg.App.ClientID, cfg.App.ClientSecret
	if v := os.Getenv(EnvClientID); v != "" {
		id = v
	}
	if v := os.Getenv(EnvClientSecret); v != "" {
		secret = v
	}
	return id, secret
}

// load overlays the file on the defaults, so a partial file is valid.
func (m *Manager) load() (*Config, error) {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}

	cfg := m.GetDefault()
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", m.path, err)
	}
	if err := m.validate(cfg); err != nil {
		return nil, fmt.Errorf("validate %s: %w", m.path, err)
	}
	return cfg, nil
}

func (m *Manager) saveLocked() error {
	data, err := json.MarshalIndent(m.cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(m.path, data)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(fileMode); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
