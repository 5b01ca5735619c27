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

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loginless/loginless/pkg/user"
)

func TestRememberedIdentity_IssueAndVerify(t *testing.T) {
	ctx := context.Background()

	ri, err := NewRememberedIdentity([]byte("test-secret-key"))
	require.NoError(t, err)

	u := &user.User{ID: uuid.New(), Username: "alice"}

	token, err := ri.Issue(ctx, u)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	got, err := ri.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got)
}

func TestRememberedIdentity_RequiresSecret(t *testing.T) {
	_, err := NewRememberedIdentity(nil)
	assert.Error(t, err)

	_, err = NewRememberedIdentity([]byte{})
	assert.Error(t, err)
}

func TestRememberedIdentity_RejectsForgedToken(t *testing.T) {
	ctx := context.Background()

	ri, err := NewRememberedIdentity([]byte("secret-a"))
	require.NoError(t, err)
	other, err := NewRememberedIdentity([]byte("secret-b"))
	require.NoError(t, err)

	u := &user.User{ID: uuid.New(), Username: "alice"}
	token, err := ri.Issue(ctx, u)
	require.NoError(t, err)

	// Signed with a different secret.
	_, err = other.Verify(token)
	assert.Error(t, err)

	// Tampered payload.
	_, err = ri.Verify(token + "x")
	assert.Error(t, err)

	// Not a token at all.
	_, err = ri.Verify("not-a-jwt")
	assert.Error(t, err)
}

func TestRememberedIdentity_RejectsExpiredToken(t *testing.T) {
	ctx := context.Background()

	ri, err := NewRememberedIdentity([]byte("test-secret"), WithTTL(-time.Minute))
	require.NoError(t, err)

	token, err := ri.Issue(ctx, &user.User{ID: uuid.New()})
	require.NoError(t, err)

	_, err = ri.Verify(token)
	assert.Error(t, err)
}

func TestRememberedIdentity_RejectsWrongIssuer(t *testing.T) {
	ctx := context.Background()

	a, err := NewRememberedIdentity([]byte("shared-secret"), WithIssuer("service-a"))
	require.NoError(t, err)
	b, err := NewRememberedIdentity([]byte("shared-secret"), WithIssuer("service-b"))
	require.NoError(t, err)

	token, err := a.Issue(ctx, &user.User{ID: uuid.New()})
	require.NoError(t, err)

	_, err = b.Verify(token)
	assert.Error(t, err)
}

func TestRememberedIdentity_VerifierInterface(t *testing.T) {
	ri, err := NewRememberedIdentity([]byte("test-secret"))
	require.NoError(t, err)

	var _ user.TokenVerifier = ri
	var _ TokenIssuer = ri
}
