package challenge

import "sync"

// CredentialStore persists accepted credentials per protection space
type CredentialStore interface {
	Credential(space ProtectionSpace) (*Credential, bool)
	SetCredential(space ProtectionSpace, cred *Credential)
	RemoveCredential(space ProtectionSpace)
}

// MemoryStore is a process-local CredentialStore
type MemoryStore struct {
	mu          sync.RWMutex
	credentials map[string]*Credential
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{credentials: make(map[string]*Credential)}
}

// Credential returns a copy of the stored credential for space
func (s *MemoryStore) Credential(space ProtectionSpace) (*Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.credentials[space.Key()]
	if !ok {
		return nil, false
	}
	c := *cred
	return &c, true
}

// SetCredential stores a copy of cred for space
func (s *MemoryStore) SetCredential(space ProtectionSpace, cred *Credential) {
	if cred == nil {
		return
	}
	c := *cred
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[space.Key()] = &c
}

// RemoveCredential forgets space
func (s *MemoryStore) RemoveCredential(space ProtectionSpace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.credentials, space.Key())
}

// Len returns the number of stored credentials
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.credentials)
}
