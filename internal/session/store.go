// Package session persists the user's API tokens and profile between CLI
// invocations.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jonathan/ad-dashboard/internal/types"
)

// Data is the persisted session.
type Data struct {
	AccessToken  string      `json:"access_token,omitempty"`
	RefreshToken string      `json:"refresh_token,omitempty"`
	User         *types.User `json:"user,omitempty"`
	SavedAt      time.Time   `json:"saved_at,omitempty"`
}

// Store holds the session in memory and mirrors it to a file. A store with an
// empty path is memory only. Store is safe for concurrent use.
type Store struct {
	path string

	mu   sync.RWMutex
	data Data

	// saveMu serializes file writes.
	saveMu sync.Mutex
}

// NewStore creates a store backed by path. It does not read the file; call Load.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// NewMemoryStore creates a store that never touches the filesystem, seeded
// with an access token.
func NewMemoryStore(accessToken string) *Store {
	return &Store{data: Data{AccessToken: accessToken}}
}

// DefaultPath returns the session file location under the user config dir.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(dir, "ad-dashboard", "session.json"), nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the session file. A missing file leaves the session empty.
func (s *Store) Load() error {
	if s.path == "" {
		return nil
	}

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read session file: %w", err)
	}

	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("failed to parse session file %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
	return nil
}

// Save writes the session file with owner-only permissions.
func (s *Store) Save() error {
	if s.path == "" {
		return nil
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	s.data.SavedAt = time.Now().UTC()
	raw, err := json.MarshalIndent(s.data, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// Clear forgets the session and removes the file.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.data = Data{}
	s.mu.Unlock()

	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

// AccessToken returns the current access token.
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.AccessToken
}

// RefreshToken returns the current refresh token.
func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.RefreshToken
}

// SetTokens replaces both tokens and saves the session.
func (s *Store) SetTokens(access, refresh string) error {
	s.mu.Lock()
	s.data.AccessToken = access
	s.data.RefreshToken = refresh
	s.mu.Unlock()
	return s.Save()
}

// User returns the cached profile, if any.
func (s *Store) User() *types.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data.User == nil {
		return nil
	}
	u := *s.data.User
	return &u
}

// SetUser caches the profile and saves the session.
func (s *Store) SetUser(u *types.User) error {
	s.mu.Lock()
	if u == nil {
		s.data.User = nil
	} else {
		cp := *u
		s.data.User = &cp
	}
	s.mu.Unlock()
	return s.Save()
}

// Authenticated reports whether an access token is present.
func (s *Store) Authenticated() bool {
	return s.AccessToken() != ""
}

// ExpiresWithin reports whether the access token expires within d.
func (s *Store) ExpiresWithin(d time.Duration) bool {
	return ExpiresWithin(s.AccessToken(), d)
}
