package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/pelletier/go-toml/v2"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"twitchbot/internal/app/domain/credential"
)

const (
	dirMode  = 0o700
	fileMode = 0o600

	credentialsDir = "credentials"
	sessionsDir    = "sessions"
	tokenFile      = "token.json"
	sessionFile    = "session.toml"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrExists      = errors.New("already exists")
	ErrInvalidName = errors.New("invalid name")
	ErrInUse       = errors.New("credential is referenced by a session")
)

// SessionRecord is a stored session configuration. Sessions point at a
// credential by name, so several sessions observe one renewed token.
type SessionRecord struct {
	Credential string   `toml:"credential"`
	Host       string   `toml:"host"`
	Port       int      `toml:"port"`
	Transport  string   `toml:"transport"`
	Channels   []string `toml:"channels"`
}

func (r SessionRecord) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// Store keeps credentials and session records as flat files under root:
//
//	credentials/<name>/token.json
//	sessions/<name>/session.toml
type Store struct {
	root string
	mu   sync.RWMutex

	credentials *Cache[cachedCredential]
	sessions    *Cache[SessionRecord]
}

// cachedCredential remembers the file it was read from. Another process (the
// CLI while the bot runs) may replace the file, so a hit only counts while
// the file still has the same modification time and size.
type cachedCredential struct {
	cred    credential.Credential
	modTime time.Time
	size    int64
}

func (c cachedCredential) matches(info os.FileInfo) bool {
	return c.modTime.Equal(info.ModTime()) && c.size == info.Size()
}

func NewStore(root string) *Store {
	return &Store{
		root:        filepath.Clean(root),
		credentials: NewCache[cachedCredential](256, 10*time.Minute),
		sessions:    NewCache[SessionRecord](256, 10*time.Minute),
	}
}

func (s *Store) Root() string {
	return s.root
}

func (s *Store) ListCredentials(ctx context.Context) ([]string, error) {
	return s.list(ctx, credentialsDir)
}

func (s *Store) LoadCredential(ctx context.Context, name string) (credential.Credential, error) {
	if err := ctx.Err(); err != nil {
		return credential.Credential{}, err
	}
	if err := validateName(name); err != nil {
		return credential.Credential{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.path(credentialsDir, name, tokenFile)
	info, err := os.Stat(path)
	if err != nil {
		s.credentials.ClearKey(name)
		if errors.Is(err, os.ErrNotExist) {
			return credential.Credential{}, fmt.Errorf("credential %q: %w", name, ErrNotFound)
		}
		return credential.Credential{}, fmt.Errorf("stat credential %q: %w", name, err)
	}

	if cached, ok := s.credentials.Get(name); ok && cached.matches(info) {
		return cached.cred, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return credential.Credential{}, fmt.Errorf("credential %q: %w", name, ErrNotFound)
		}
		return credential.Credential{}, fmt.Errorf("read credential %q: %w", name, err)
	}

	var cred credential.Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return credential.Credential{}, fmt.Errorf("parse credential %q: %w", name, err)
	}

	s.credentials.Set(name, cachedCredential{cred: cred, modTime: info.ModTime(), size: info.Size()})
	return cred, nil
}

// SaveCredential creates or replaces a credential.
func (s *Store) SaveCredential(ctx context.Context, name string, cred credential.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateName(name); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credential %q: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(credentialsDir, name, tokenFile)
	if err := writeAtomic(path, data); err != nil {
		s.credentials.ClearKey(name)
		return fmt.Errorf("write credential %q: %w", name, err)
	}

	if info, err := os.Stat(path); err == nil {
		s.credentials.Set(name, cachedCredential{cred: cred, modTime: info.ModTime(), size: info.Size()})
	} else {
		s.credentials.ClearKey(name)
	}
	return nil
}

func (s *Store) DeleteCredential(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	sessions, err := s.ListSessions(ctx)
	if err != nil {
		return err
	}
	for _, sessionName := range sessions {
		rec, err := s.LoadSession(ctx, sessionName)
		if err != nil {
			return err
		}
		if rec.Credential == name {
			return fmt.Errorf("delete credential %q: %w (session %q)", name, ErrInUse, sessionName)
		}
	}

	return s.remove(ctx, credentialsDir, name, s.credentials.ClearKey)
}

func (s *Store) ListSessions(ctx context.Context) ([]string, error) {
	return s.list(ctx, sessionsDir)
}

func (s *Store) LoadSession(ctx context.Context, name string) (SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return SessionRecord{}, err
	}
	if err := validateName(name); err != nil {
		return SessionRecord{}, err
	}

	if rec, ok := s.sessions.Get(name); ok {
		return rec, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := os.ReadFile(s.path(sessionsDir, name, sessionFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return SessionRecord{}, fmt.Errorf("session %q: %w", name, ErrNotFound)
		}
		return SessionRecord{}, fmt.Errorf("read session %q: %w", name, err)
	}

	var rec SessionRecord
	if err := toml.Unmarshal(raw, &rec); err != nil {
		return SessionRecord{}, fmt.Errorf("parse session %q: %w", name, err)
	}

	s.sessions.Set(name, rec)
	return rec, nil
}

// CreateSession persists a new session record. The referenced credential must exist.
func (s *Store) CreateSession(ctx context.Context, name string, rec SessionRecord) error {
	if err := validateName(name); err != nil {
		return err
	}
	if _, err := s.LoadCredential(ctx, rec.Credential); err != nil {
		return fmt.Errorf("create session %q: %w", name, err)
	}
	if _, err := s.LoadSession(ctx, name); err == nil {
		return fmt.Errorf("create session %q: %w", name, ErrExists)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	return s.SaveSession(ctx, name, rec)
}

func (s *Store) SaveSession(ctx context.Context, name string, rec SessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateName(name); err != nil {
		return err
	}

	data, err := toml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session %q: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeAtomic(s.path(sessionsDir, name, sessionFile), data); err != nil {
		s.sessions.ClearKey(name)
		return fmt.Errorf("write session %q: %w", name, err)
	}

	s.sessions.Set(name, rec)
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, name string) error {
	return s.remove(ctx, sessionsDir, name, s.sessions.ClearKey)
}

// SessionDir is where a session's own files (logs) live.
func (s *Store) SessionDir(name string) string {
	return s.path(sessionsDir, name)
}

func (s *Store) list(ctx context.Context, kind string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.path(kind))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) remove(ctx context.Context, kind, name string, evict func(string)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.path(kind, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s %q: %w", strings.TrimSuffix(kind, "s"), name, ErrNotFound)
	}

	evict(name)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete %s %q: %w", strings.TrimSuffix(kind, "s"), name, err)
	}
	return nil
}

func (s *Store) path(parts ...string) string {
	return filepath.Join(append([]string{s.root}, parts...)...)
}

func validateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || trimmed != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return err
	}

	tmp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d", filepath.Base(path), time.Now().UnixNano()))
	if err := os.WriteFile(tmp, data, fileMode); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
