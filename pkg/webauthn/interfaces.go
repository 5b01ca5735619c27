// Copyright (c) 2026 Loginless Contributors
//
// This file is part of loginless.
//
// loginless is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package webauthn

import (
	"context"

	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/loginless/loginless/pkg/user"
)

// ChallengeStore manages pending ceremony state. Entries are
// short-lived (bounded by the ceremony timeout) and strictly single
// use: Consume removes the entry whether or not the subsequent
// verification succeeds.
type ChallengeStore interface {
	// Save records a pending ceremony and returns its opaque id, which
	// the client must present to the finish operation.
	Save(ctx context.Context, kind CeremonyKind, userID []byte, data *webauthn.SessionData) (string, error)

	// Consume retrieves and removes the pending ceremony. It returns
	// ErrNoPendingChallenge when the id is unknown, the entry has
	// expired, or the recorded kind does not match.
	Consume(ctx context.Context, ceremonyID string, kind CeremonyKind) (*PendingCeremony, error)
}

// CredentialStore manages durable credential records.
type CredentialStore interface {
	// Insert stores a new credential. The insert is atomic on the
	// credential id: if a record with the same id already exists, for
	// any user, Insert returns ErrDuplicateCredential and leaves the
	// store unchanged.
	Insert(ctx context.Context, cred *Credential) error

	// GetByID retrieves a credential by its id. Returns
	// ErrUnknownCredential if absent.
	GetByID(ctx context.Context, credID []byte) (*Credential, error)

	// GetByUserID retrieves all credentials owned by a user. Returns an
	// empty slice when the user has none.
	GetByUserID(ctx context.Context, userID []byte) ([]*Credential, error)

	// UpdateCounter persists a new signature counter and last-used time
	// for an existing credential. Returns ErrUnknownCredential if absent.
	UpdateCounter(ctx context.Context, credID []byte, signCount uint32) error
}

// TokenIssuer mints a remembered-identity token for a user after a
// verified ceremony. Optional; without it the service issues no token.
type TokenIssuer interface {
	Issue(ctx context.Context, u *user.User) (string, error)
}
