// Copyright (c) 2026 Loginless Contributors
//
// This file is part of loginless.
//
// loginless is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package webauthn

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// MemoryChallengeStore is an in-memory ChallengeStore with TTL-based
// expiry. Pending ceremonies are inherently ephemeral, so this store is
// suitable for single-instance production use as well as tests.
type MemoryChallengeStore struct {
	mu      sync.Mutex
	pending map[string]*PendingCeremony
	ttl     time.Duration
}

// NewMemoryChallengeStore creates a challenge store with a 2 minute TTL.
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return NewMemoryChallengeStoreWithTTL(2 * time.Minute)
}

// NewMemoryChallengeStoreWithTTL creates a challenge store with a custom TTL.
func NewMemoryChallengeStoreWithTTL(ttl time.Duration) *MemoryChallengeStore {
	return &MemoryChallengeStore{
		pending: make(map[string]*PendingCeremony),
		ttl:     ttl,
	}
}

// Save records a pending ceremony under a fresh random id.
func (s *MemoryChallengeStore) Save(ctx context.Context, kind CeremonyKind, userID []byte, data *webauthn.SessionData) (string, error) {
	idBytes := make([]byte, 16)
	if _, err := rand.Read(idBytes); err != nil {
		return "", err
	}
	ceremonyID := hex.EncodeToString(idBytes)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[ceremonyID] = &PendingCeremony{
		Kind:      kind,
		UserID:    userID,
		Session:   data,
		CreatedAt: time.Now(),
	}
	return ceremonyID, nil
}

// Consume retrieves and removes the pending ceremony. The removal
// happens under the lock, so racing finish calls cannot spend the same
// challenge twice.
func (s *MemoryChallengeStore) Consume(ctx context.Context, ceremonyID string, kind CeremonyKind) (*PendingCeremony, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.pending[ceremonyID]
	if !ok {
		return nil, ErrNoPendingChallenge
	}
	delete(s.pending, ceremonyID)

	// An expired entry is indistinguishable from a missing one.
	if time.Since(entry.CreatedAt) > s.ttl {
		return nil, ErrNoPendingChallenge
	}
	if entry.Kind != kind {
		return nil, ErrNoPendingChallenge
	}
	return entry, nil
}

// Count returns the number of pending ceremonies.
func (s *MemoryChallengeStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Cleanup removes expired entries and returns how many were removed.
func (s *MemoryChallengeStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, entry := range s.pending {
		if now.Sub(entry.CreatedAt) > s.ttl {
			delete(s.pending, id)
			removed++
		}
	}
	return removed
}

// StartCleanup runs Cleanup on the given interval until ctx is done.
func (s *MemoryChallengeStore) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Cleanup()
			}
		}
	}()
}

// MemoryCredentialStore is an in-memory CredentialStore guarded by a
// mutex. Intended for development and tests; production deployments use
// the sqlite store.
type MemoryCredentialStore struct {
	mu       sync.RWMutex
	byID     map[string]*Credential
	byUserID map[string][]string
}

// NewMemoryCredentialStore creates an empty in-memory credential store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		byID:     make(map[string]*Credential),
		byUserID: make(map[string][]string),
	}
}

// Insert stores a new credential if its id is not already taken.
func (s *MemoryCredentialStore) Insert(ctx context.Context, cred *Credential) error {
	credKey := hex.EncodeToString(cred.ID)
	userKey := hex.EncodeToString(cred.UserID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[credKey]; exists {
		return ErrDuplicateCredential
	}

	stored := *cred
	s.byID[credKey] = &stored
	s.byUserID[userKey] = append(s.byUserID[userKey], credKey)
	return nil
}

// GetByID retrieves a credential by its id.
func (s *MemoryCredentialStore) GetByID(ctx context.Context, credID []byte) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.byID[hex.EncodeToString(credID)]
	if !ok {
		return nil, ErrUnknownCredential
	}
	c := *cred
	return &c, nil
}

// GetByUserID retrieves all credentials owned by a user.
func (s *MemoryCredentialStore) GetByUserID(ctx context.Context, userID []byte) ([]*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := s.byUserID[hex.EncodeToString(userID)]
	creds := make([]*Credential, 0, len(keys))
	for _, k := range keys {
		if cred, ok := s.byID[k]; ok {
			c := *cred
			creds = append(creds, &c)
		}
	}
	return creds, nil
}

// UpdateCounter persists a new signature counter for a credential.
func (s *MemoryCredentialStore) UpdateCounter(ctx context.Context, credID []byte, signCount uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.byID[hex.EncodeToString(credID)]
	if !ok {
		return ErrUnknownCredential
	}
	now := time.Now().UTC()
	cred.SignCount = signCount
	cred.LastUsedAt = &now
	return nil
}

// Count returns the total number of credentials.
func (s *MemoryCredentialStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
