// Copyright (c) 2026 Loginless Contributors
//
// This file is part of loginless.
//
// loginless is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package user

import (
	"context"

	"github.com/google/uuid"
)

// TokenVerifier validates a remembered-identity token and returns the
// user id it was issued for. Tokens are tamper-evident (signed); a
// forged or expired token must fail verification.
type TokenVerifier interface {
	Verify(token string) (uuid.UUID, error)
}

// Resolver looks up users by login string or by remembered-identity
// token. It has no side effects: every miss, including malformed input,
// is reported as ErrUserNotFound rather than an error that aborts the
// caller.
type Resolver struct {
	store  Store
	tokens TokenVerifier
}

// NewResolver creates a Resolver. tokens may be nil, in which case
// ResolveRemembered always reports not found.
func NewResolver(store Store, tokens TokenVerifier) *Resolver {
	return &Resolver{store: store, tokens: tokens}
}

// Resolve finds a user by username or email, case-insensitively.
func (r *Resolver) Resolve(ctx context.Context, usernameOrEmail string) (*User, error) {
	return r.store.GetByLogin(ctx, usernameOrEmail)
}

// ResolveRemembered finds a user by a remembered-identity token, as
// carried in the user_uid cookie. An empty, forged, or expired token
// resolves to ErrUserNotFound.
func (r *Resolver) ResolveRemembered(ctx context.Context, token string) (*User, error) {
	if token == "" || r.tokens == nil {
		return nil, ErrUserNotFound
	}
	uid, err := r.tokens.Verify(token)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return r.store.GetByID(ctx, uid[:])
}
