// Copyright (c) 2026 Loginless Contributors
//
// This file is part of loginless.
//
// loginless is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package user

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the interface for user persistence.
type Store interface {
	// Create creates a new user with a fresh id. Username and email are
	// normalized before storage. Returns ErrDuplicateUser if either is
	// already taken; the check-and-insert is atomic.
	Create(ctx context.Context, displayName, username, email string) (*User, error)

	// GetByID retrieves a user by the raw bytes of its id (the WebAuthn
	// user handle). Returns ErrUserNotFound if absent.
	GetByID(ctx context.Context, id []byte) (*User, error)

	// GetByLogin retrieves a user by username or email. The input is
	// normalized, making the lookup case-insensitive. Returns
	// ErrUserNotFound if absent.
	GetByLogin(ctx context.Context, usernameOrEmail string) (*User, error)

	// Update persists changes to mutable fields (e.g. LastLoginAt).
	// Returns ErrUserNotFound if the user does not exist.
	Update(ctx context.Context, u *User) error
}

// MemoryStore is an in-memory Store guarded by a mutex. Intended for
// development and tests; production deployments use the sqlite store.
type MemoryStore struct {
	mu         sync.RWMutex
	byID       map[uuid.UUID]*User
	byUsername map[string]uuid.UUID
	byEmail    map[string]uuid.UUID
}

// NewMemoryStore creates an empty in-memory user store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[uuid.UUID]*User),
		byUsername: make(map[string]uuid.UUID),
		byEmail:    make(map[string]uuid.UUID),
	}
}

// Create creates a new user.
func (s *MemoryStore) Create(ctx context.Context, displayName, username, email string) (*User, error) {
	username = NormalizeLogin(username)
	email = NormalizeLogin(email)
	if username == "" || email == "" {
		return nil, ErrInvalidUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byUsername[username]; taken {
		return nil, ErrDuplicateUser
	}
	if _, taken := s.byEmail[email]; taken {
		return nil, ErrDuplicateUser
	}

	u := &User{
		ID:          uuid.New(),
		Username:    username,
		Email:       email,
		DisplayName: displayName,
		CreatedAt:   time.Now().UTC(),
	}

	s.byID[u.ID] = u
	s.byUsername[username] = u.ID
	s.byEmail[email] = u.ID

	return cloneUser(u), nil
}

// GetByID retrieves a user by the raw bytes of its id.
func (s *MemoryStore) GetByID(ctx context.Context, id []byte) (*User, error) {
	uid, err := uuid.FromBytes(id)
	if err != nil {
		return nil, ErrUserNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[uid]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneUser(u), nil
}

// GetByLogin retrieves a user by normalized username or email.
func (s *MemoryStore) GetByLogin(ctx context.Context, usernameOrEmail string) (*User, error) {
	login := NormalizeLogin(usernameOrEmail)
	if login == "" {
		return nil, ErrUserNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if uid, ok := s.byUsername[login]; ok {
		return cloneUser(s.byID[uid]), nil
	}
	if uid, ok := s.byEmail[login]; ok {
		return cloneUser(s.byID[uid]), nil
	}
	return nil, ErrUserNotFound
}

// Update persists changes to mutable fields.
func (s *MemoryStore) Update(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byID[u.ID]
	if !ok {
		return ErrUserNotFound
	}

	// Identifying fields are immutable.
	stored.DisplayName = u.DisplayName
	stored.LastLoginAt = u.LastLoginAt
	return nil
}

// Count returns the number of users in the store.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func cloneUser(u *User) *User {
	c := *u
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		c.LastLoginAt = &t
	}
	return &c
}
