package creds

import "sync"

// MemoryStore is an in-memory Store for tests. It mirrors FileStore
// behavior, including the keep-existing-on-empty token save semantics.
type MemoryStore struct {
	mu      sync.Mutex
	user    *Profile
	access  string
	refresh string
}

// NewMemory creates an empty in-memory credential store.
func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) SaveUser(p *Profile) {
	if p == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.user = &cp
}

func (s *MemoryStore) User() *Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	cp := *s.user
	return &cp
}

func (s *MemoryStore) ClearUser() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
}

func (s *MemoryStore) SaveTokens(t TokenPair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.AccessToken != "" {
		s.access = t.AccessToken
	}
	if t.RefreshToken != "" {
		s.refresh = t.RefreshToken
	}
}

func (s *MemoryStore) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.access
}

func (s *MemoryStore) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refresh
}

func (s *MemoryStore) ClearTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access, s.refresh = "", ""
}

func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.access, s.refresh = "", ""
}

var _ Store = (*MemoryStore)(nil)
