package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TokenStore holds server-issued session tokens in process memory. Tokens are
// handed out by the bootstrap endpoint and presented back on the websocket
// upgrade. Expired entries fail lookup and are dropped lazily.
type TokenStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	tokens map[string]tokenEntry
}

type tokenEntry struct {
	principal Principal
	expiresAt time.Time
}

func NewTokenStore(ttl time.Duration) *TokenStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &TokenStore{
		ttl:    ttl,
		tokens: make(map[string]tokenEntry),
	}
}

// Issue mints an opaque token bound to the principal.
func (s *TokenStore) Issue(p Principal) string {
	token := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = tokenEntry{principal: p, expiresAt: time.Now().Add(s.ttl)}
	return token
}

// Lookup resolves a token to its principal; absent or expired tokens fail.
func (s *TokenStore) Lookup(token string) (Principal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.tokens[token]
	if !ok {
		return Principal{}, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.tokens, token)
		return Principal{}, false
	}
	return entry.principal, true
}

// Revoke removes a token, if present.
func (s *TokenStore) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// Purge drops every expired token. Called by the session janitor sweep.
func (s *TokenStore) Purge() int {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for token, entry := range s.tokens {
		if now.After(entry.expiresAt) {
			delete(s.tokens, token)
			removed++
		}
	}
	return removed
}
