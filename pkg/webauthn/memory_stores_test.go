// Copyright (c) 2026 Loginless Contributors
//
// This file is part of loginless.
//
// loginless is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package webauthn

import (
	"context"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryChallengeStore_SaveAndConsume(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryChallengeStore()

	session := &webauthn.SessionData{Challenge: "test-challenge"}
	userID := []byte("user-handle-0001")

	id, err := store.Save(ctx, CeremonyRegistration, userID, session)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Equal(t, 1, store.Count())

	pending, err := store.Consume(ctx, id, CeremonyRegistration)
	require.NoError(t, err)
	assert.Equal(t, CeremonyRegistration, pending.Kind)
	assert.Equal(t, userID, pending.UserID)
	assert.Equal(t, "test-challenge", pending.Session.Challenge)
	assert.Equal(t, 0, store.Count())
}

func TestMemoryChallengeStore_ConsumeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryChallengeStore()

	id, err := store.Save(ctx, CeremonyAuthentication, []byte("u"), &webauthn.SessionData{})
	require.NoError(t, err)

	_, err = store.Consume(ctx, id, CeremonyAuthentication)
	require.NoError(t, err)

	_, err = store.Consume(ctx, id, CeremonyAuthentication)
	assert.ErrorIs(t, err, ErrNoPendingChallenge)
}

func TestMemoryChallengeStore_ConsumeUnknownID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryChallengeStore()

	_, err := store.Consume(ctx, "does-not-exist", CeremonyRegistration)
	assert.ErrorIs(t, err, ErrNoPendingChallenge)
}

func TestMemoryChallengeStore_ConsumeKindMismatch(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryChallengeStore()

	id, err := store.Save(ctx, CeremonyRegistration, []byte("u"), &webauthn.SessionData{})
	require.NoError(t, err)

	_, err = store.Consume(ctx, id, CeremonyAuthentication)
	assert.ErrorIs(t, err, ErrNoPendingChallenge)

	// The mismatched consume still spent the entry.
	_, err = store.Consume(ctx, id, CeremonyRegistration)
	assert.ErrorIs(t, err, ErrNoPendingChallenge)
}

func TestMemoryChallengeStore_ConsumeExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryChallengeStoreWithTTL(time.Nanosecond)

	id, err := store.Save(ctx, CeremonyRegistration, []byte("u"), &webauthn.SessionData{})
	require.NoError(t, err)

	time.Sleep(time.Millisecond)

	_, err = store.Consume(ctx, id, CeremonyRegistration)
	assert.ErrorIs(t, err, ErrNoPendingChallenge)
}

func TestMemoryChallengeStore_UniqueIDs(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryChallengeStore()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := store.Save(ctx, CeremonyRegistration, []byte("u"), &webauthn.SessionData{})
		require.NoError(t, err)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestMemoryChallengeStore_Cleanup(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryChallengeStoreWithTTL(time.Nanosecond)

	for i := 0; i < 5; i++ {
		_, err := store.Save(ctx, CeremonyRegistration, []byte("u"), &webauthn.SessionData{})
		require.NoError(t, err)
	}

	time.Sleep(time.Millisecond)

	removed := store.Cleanup()
	assert.Equal(t, 5, removed)
	assert.Equal(t, 0, store.Count())
}

func TestMemoryCredentialStore_InsertAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCredentialStore()

	cred := &Credential{
		ID:        []byte("cred-1"),
		UserID:    []byte("user-1"),
		PublicKey: []byte("pubkey"),
		SignCount: 0,
		CreatedAt: time.Now(),
	}

	require.NoError(t, store.Insert(ctx, cred))
	assert.Equal(t, 1, store.Count())

	got, err := store.GetByID(ctx, []byte("cred-1"))
	require.NoError(t, err)
	assert.Equal(t, cred.ID, got.ID)
	assert.Equal(t, cred.UserID, got.UserID)
	assert.Equal(t, cred.PublicKey, got.PublicKey)
}

func TestMemoryCredentialStore_InsertDuplicate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCredentialStore()

	cred := &Credential{ID: []byte("cred-1"), UserID: []byte("user-1")}
	require.NoError(t, store.Insert(ctx, cred))

	// Same credential id for a different user must not overwrite.
	dup := &Credential{ID: []byte("cred-1"), UserID: []byte("user-2")}
	err := store.Insert(ctx, dup)
	assert.ErrorIs(t, err, ErrDuplicateCredential)

	got, err := store.GetByID(ctx, []byte("cred-1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("user-1"), got.UserID)
	assert.Equal(t, 1, store.Count())
}

func TestMemoryCredentialStore_GetByIDUnknown(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCredentialStore()

	_, err := store.GetByID(ctx, []byte("nope"))
	assert.ErrorIs(t, err, ErrUnknownCredential)
}

func TestMemoryCredentialStore_GetByUserID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCredentialStore()

	require.NoError(t, store.Insert(ctx, &Credential{ID: []byte("c1"), UserID: []byte("u1")}))
	require.NoError(t, store.Insert(ctx, &Credential{ID: []byte("c2"), UserID: []byte("u1")}))
	require.NoError(t, store.Insert(ctx, &Credential{ID: []byte("c3"), UserID: []byte("u2")}))

	creds, err := store.GetByUserID(ctx, []byte("u1"))
	require.NoError(t, err)
	assert.Len(t, creds, 2)

	creds, err = store.GetByUserID(ctx, []byte("u3"))
	require.NoError(t, err)
	assert.Empty(t, creds)
}

func TestMemoryCredentialStore_UpdateCounter(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCredentialStore()

	require.NoError(t, store.Insert(ctx, &Credential{ID: []byte("c1"), UserID: []byte("u1"), SignCount: 1}))

	require.NoError(t, store.UpdateCounter(ctx, []byte("c1"), 7))

	got, err := store.GetByID(ctx, []byte("c1"))
	require.NoError(t, err)
	assert.Equal(t, uint32(7), got.SignCount)
	require.NotNil(t, got.LastUsedAt)

	err = store.UpdateCounter(ctx, []byte("ghost"), 1)
	assert.ErrorIs(t, err, ErrUnknownCredential)
}

func TestMemoryCredentialStore_InsertStoresCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCredentialStore()

	cred := &Credential{ID: []byte("c1"), UserID: []byte("u1"), SignCount: 1}
	require.NoError(t, store.Insert(ctx, cred))

	// Mutating the caller's struct must not affect the stored record.
	cred.SignCount = 99

	got, err := store.GetByID(ctx, []byte("c1"))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), got.SignCount)
}
