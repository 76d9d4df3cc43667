package security

import (
	"maps"
	"slices"
	"sync"
)

// Credential names used by rolechat.
const (
	CredProviderKey  = "provider.api_key"
	CredGatewayToken = "gateway.bearer_token"
	CredGatewayPass  = "gateway.basic_pass"
)

// CredentialStore is the runtime source of truth for secrets. The gateway
// reads auth credentials from it and the Redactor mirrors its values.
type CredentialStore struct {
	mu    sync.RWMutex
	creds map[string]string
}

// NewCredentialStore creates an empty credential store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{creds: make(map[string]string)}
}

// Set stores a credential. An empty value deletes it.
func (s *CredentialStore) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == "" {
		delete(s.creds, name)
		return
	}
	s.creds[name] = value
}

// Replace swaps the whole store for creds. Empty values are dropped.
// Used on configuration reload.
func (s *CredentialStore) Replace(creds map[string]string) {
	next := make(map[string]string, len(creds))
	for k, v := range creds {
		if v != "" {
			next[k] = v
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = next
}

// Get returns the credential value and whether it is set.
func (s *CredentialStore) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.creds[name]
	return v, ok
}

// Names returns the sorted credential names.
func (s *CredentialStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.creds))
}

// Values returns all credential values in no particular order.
func (s *CredentialStore) Values() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Collect(maps.Values(s.creds))
}

// Len returns the number of stored credentials.
func (s *CredentialStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.creds)
}
