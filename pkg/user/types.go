// Copyright (c) 2026 Loginless Contributors
//
// This file is part of loginless.
//
// loginless is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

// Package user provides the user model and identity resolution for the
// loginless service. Users authenticate exclusively with FIDO2/WebAuthn
// credentials; there are no passwords anywhere in this model.
package user

import (
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
)

// User is an account that owns zero or more WebAuthn credentials.
// The identifying fields (ID, Username, Email) are immutable after creation.
//
// Implements the webauthn.User interface so a User can be handed directly
// to the ceremony layer. Credential material is kept in the credential
// store, not on the user; WebAuthnCredentials therefore returns nil here
// and the ceremony layer wraps the user together with its stored
// credentials before talking to the WebAuthn library.
type User struct {
	// ID is the stable unique identifier, also used as the WebAuthn
	// user handle (its raw 16 bytes).
	ID uuid.UUID `json:"id"`

	// Username is the unique login name, stored normalized (lowercase).
	Username string `json:"username"`

	// Email is the unique email address, stored normalized (lowercase).
	Email string `json:"email"`

	// DisplayName is the human-readable name shown during ceremonies.
	DisplayName string `json:"display_name"`

	// CreatedAt is when the account was created.
	CreatedAt time.Time `json:"created_at"`

	// LastLoginAt is the time of the last successful authentication.
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// WebAuthnID returns the user's WebAuthn user handle.
func (u *User) WebAuthnID() []byte {
	return u.ID[:]
}

// WebAuthnName returns the user's username.
func (u *User) WebAuthnName() string {
	return u.Username
}

// WebAuthnDisplayName returns the user's display name, falling back to
// the username when none was provided.
func (u *User) WebAuthnDisplayName() string {
	if u.DisplayName == "" {
		return u.Username
	}
	return u.DisplayName
}

// WebAuthnCredentials returns nil; credentials live in the credential
// store and are attached by the ceremony layer.
func (u *User) WebAuthnCredentials() []webauthn.Credential {
	return nil
}

// NormalizeLogin canonicalizes a username or email for comparison.
// Matching is case-insensitive by normalizing both sides, never by
// relying on locale-specific collation in the store.
func NormalizeLogin(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
