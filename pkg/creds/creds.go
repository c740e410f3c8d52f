// Package creds is the durable credential store for the MockMate client.
//
// It owns the persisted user profile and token pair. Every method is
// non-throwing: storage failures degrade to no-op writes and nil reads so
// callers never need defensive guards around credential access. A corrupt
// file on disk is removed and treated as absent.
package creds

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Profile is the authenticated user as reported by the service.
type Profile struct {
	ID    string `yaml:"id,omitempty" json:"id,omitempty"`
	Name  string `yaml:"name,omitempty" json:"name,omitempty"`
	Email string `yaml:"email,omitempty" json:"email,omitempty"`
}

// TokenPair holds the bearer credentials issued by the service.
type TokenPair struct {
	AccessToken  string `yaml:"access_token" json:"access_token"`
	RefreshToken string `yaml:"refresh_token" json:"refresh_token"`
}

// Store is the single source of truth for the current user and tokens.
// Implementations never return errors; a failed read reports absence.
type Store interface {
	SaveUser(p *Profile)
	User() *Profile
	ClearUser()

	SaveTokens(t TokenPair)
	AccessToken() string
	RefreshToken() string
	ClearTokens()

	// Clear wipes both the profile and the tokens.
	Clear()
}

// fileData is the on-disk layout.
type fileData struct {
	User         *Profile `yaml:"user,omitempty"`
	AccessToken  string   `yaml:"access_token,omitempty"`
	RefreshToken string   `yaml:"refresh_token,omitempty"`
}

// FileStore persists credentials as a 0600 YAML file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store backed by the given file path. The parent
// directory is created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// load reads the file, removing it if it cannot be parsed.
func (s *FileStore) load() fileData {
	var d fileData
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return d
	}
	if err := yaml.Unmarshal(raw, &d); err != nil {
		slog.Warn("credential file corrupt, discarding", "path", s.path, "err", err)
		_ = os.Remove(s.path)
		return fileData{}
	}
	return d
}

func (s *FileStore) save(d fileData) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		slog.Warn("create credential dir failed", "err", err)
		return
	}
	raw, err := yaml.Marshal(d)
	if err != nil {
		slog.Warn("encode credentials failed", "err", err)
		return
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		slog.Warn("write credentials failed", "path", s.path, "err", err)
	}
}

// SaveUser persists the profile. A nil profile is ignored.
func (s *FileStore) SaveUser(p *Profile) {
	if p == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.load()
	d.User = p
	s.save(d)
}

// User returns the stored profile, or nil if absent or unreadable.
func (s *FileStore) User() *Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load().User
}

// ClearUser removes the stored profile, keeping tokens.
func (s *FileStore) ClearUser() {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.load()
	d.User = nil
	s.save(d)
}

// SaveTokens persists the token pair. Empty fields leave the existing
// value untouched so a refresh that rotates only the access token keeps
// the current refresh token.
func (s *FileStore) SaveTokens(t TokenPair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.load()
	if t.AccessToken != "" {
		d.AccessToken = t.AccessToken
	}
	if t.RefreshToken != "" {
		d.RefreshToken = t.RefreshToken
	}
	s.save(d)
}

// AccessToken returns the stored access token, or "".
func (s *FileStore) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load().AccessToken
}

// RefreshToken returns the stored refresh token, or "".
func (s *FileStore) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load().RefreshToken
}

// ClearTokens removes both tokens, keeping the profile.
func (s *FileStore) ClearTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.load()
	d.AccessToken = ""
	d.RefreshToken = ""
	s.save(d)
}

// Clear wipes the whole credential file.
func (s *FileStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("remove credentials failed", "path", s.path, "err", err)
	}
}

var _ Store = (*FileStore)(nil)
