package storage

import (
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	// ErrInvalidTokenID indicates an empty token identifier was supplied.
	ErrInvalidTokenID = errors.New("token id must not be empty")
)

// RevocationStore tracks token identifiers that must no longer be accepted.
type RevocationStore interface {
	Revoke(tokenID string, expiresAt time.Time) error
	IsRevoked(tokenID string) (bool, error)
}

// MemoryRevocationStore keeps revoked token ids in-memory and guards access with a RWMutex.
type MemoryRevocationStore struct {
	mu      sync.RWMutex
	revoked map[string]time.Time
	clock   func() time.Time
}

// MemoryOption configures a MemoryRevocationStore.
type MemoryOption func(*MemoryRevocationStore)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) MemoryOption {
	return func(s *MemoryRevocationStore) {
		s.clock = clock
	}
}

// NewMemoryRevocationStore initialises an empty store.
func NewMemoryRevocationStore(opts ...MemoryOption) *MemoryRevocationStore {
	s := &MemoryRevocationStore{
		revoked: make(map[string]time.Time),
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Revoke records tokenID until expiresAt. Expired entries are pruned on every write.
func (s *MemoryRevocationStore) Revoke(tokenID string, expiresAt time.Time) error {
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return ErrInvalidTokenID
	}

	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)
	if !expiresAt.After(now) {
		return nil
	}
	if current, ok := s.revoked[tokenID]; ok && current.After(expiresAt) {
		return nil
	}
	s.revoked[tokenID] = expiresAt
	return nil
}

// IsRevoked reports whether tokenID was revoked and has not yet expired.
func (s *MemoryRevocationStore) IsRevoked(tokenID string) (bool, error) {
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return false, ErrInvalidTokenID
	}

	s.mu.RLock()
	expiresAt, ok := s.revoked[tokenID]
	s.mu.RUnlock()

	if !ok {
		return false, nil
	}
	return expiresAt.After(s.clock()), nil
}

// Len returns the number of tracked entries, expired ones included until the next prune.
func (s *MemoryRevocationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.revoked)
}

func (s *MemoryRevocationStore) pruneLocked(now time.Time) {
	for id, expiresAt := range s.revoked {
		if !expiresAt.After(now) {
			delete(s.revoked, id)
		}
	}
}
