package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/portal/core"
	"github.com/layer-3/portal/ports"
)

// MemoryCredentialStore keeps the token in process memory.
// Intended for tests and short-lived processes.
type MemoryCredentialStore struct {
	token string
	mu    sync.RWMutex
}

// NewMemoryCredentialStore creates an empty in-memory credential store
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{}
}

// Get returns the stored token
func (s *MemoryCredentialStore) Get(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token == "" {
		return "", core.ErrNoCredential
	}
	return s.token, nil
}

// Set replaces the stored token
func (s *MemoryCredentialStore) Set(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = token
	return nil
}

// Clear empties the slot
func (s *MemoryCredentialStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	return nil
}

// MemoryRevocationStore is an in-memory implementation of ports.RevocationStore
type MemoryRevocationStore struct {
	invalidatedTokens map[string]time.Time
	mu                sync.RWMutex
	now               func() time.Time
}

// NewMemoryRevocationStore creates a new in-memory revocation store
func NewMemoryRevocationStore() ports.RevocationStore {
	return &MemoryRevocationStore{
		invalidatedTokens: make(map[string]time.Time),
		now:               time.Now,
	}
}

// InvalidateToken marks a token as invalidated until expiry elapses
func (s *MemoryRevocationStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.invalidatedTokens[tokenID] = now.Add(expiry)

	// Expired entries are swept lazily on write instead of one goroutine per token
	for id, until := range s.invalidatedTokens {
		if now.After(until) {
			delete(s.invalidatedTokens, id)
		}
	}

	return nil
}

// IsTokenInvalidated checks if a token is invalidated
func (s *MemoryRevocationStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expiryTime, exists := s.invalidatedTokens[tokenID]
	if !exists {
		return false, nil
	}

	return !s.now().After(expiryTime), nil
}
