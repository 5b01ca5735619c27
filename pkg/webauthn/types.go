// Copyright (c) 2026 Loginless Contributors
//
// This file is part of loginless.
//
// loginless is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package webauthn

import (
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/loginless/loginless/pkg/user"
)

// CeremonyKind distinguishes the two WebAuthn ceremonies. A pending
// challenge issued for one kind can never be consumed by the other.
type CeremonyKind string

const (
	// CeremonyRegistration enrolls a new credential (attestation).
	CeremonyRegistration CeremonyKind = "registration"

	// CeremonyAuthentication proves possession of an enrolled
	// credential (assertion).
	CeremonyAuthentication CeremonyKind = "authentication"
)

// PendingCeremony is the short-lived server-side state of one in-flight
// ceremony: the challenge (inside the library session data) bound to a
// user and a ceremony kind. It is consumed exactly once.
type PendingCeremony struct {
	// Kind is the ceremony this challenge was issued for.
	Kind CeremonyKind `json:"kind"`

	// UserID is the WebAuthn user handle the challenge is bound to.
	UserID []byte `json:"user_id"`

	// Session is the library session data, including the challenge.
	Session *webauthn.SessionData `json:"session"`

	// CreatedAt is when the challenge was issued.
	CreatedAt time.Time `json:"created_at"`
}

// Credential is a WebAuthn public-key credential as stored by the
// relying party. A credential id is globally unique and owned by
// exactly one user.
type Credential struct {
	// ID is the credential identifier assigned by the authenticator.
	ID []byte `json:"id"`

	// UserID is the WebAuthn user handle of the owning user.
	UserID []byte `json:"user_id"`

	// PublicKey is the credential's public key in COSE format.
	PublicKey []byte `json:"public_key"`

	// AttestationType records the attestation format used at enrollment.
	AttestationType string `json:"attestation_type"`

	// Transport lists the transports reported by the authenticator.
	Transport []protocol.AuthenticatorTransport `json:"transport,omitempty"`

	// Flags are the authenticator capability flags at enrollment.
	Flags CredentialFlags `json:"flags"`

	// SignCount is the authenticator's signature counter, updated on
	// every successful authentication. Zero on both sides means the
	// authenticator does not support counters.
	SignCount uint32 `json:"sign_count"`

	// CreatedAt is when the credential was registered.
	CreatedAt time.Time `json:"created_at"`

	// LastUsedAt is when the credential last completed authentication.
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// CredentialFlags are the authenticator flags captured at enrollment.
type CredentialFlags struct {
	UserPresent    bool `json:"user_present"`
	UserVerified   bool `json:"user_verified"`
	BackupEligible bool `json:"backup_eligible"`
	BackupState    bool `json:"backup_state"`
}

// toLibrary converts the stored record to the go-webauthn credential type.
func (c *Credential) toLibrary() webauthn.Credential {
	return webauthn.Credential{
		ID:              c.ID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Transport:       c.Transport,
		Flags: webauthn.CredentialFlags{
			UserPresent:    c.Flags.UserPresent,
			UserVerified:   c.Flags.UserVerified,
			BackupEligible: c.Flags.BackupEligible,
			BackupState:    c.Flags.BackupState,
		},
		Authenticator: webauthn.Authenticator{
			SignCount: c.SignCount,
		},
	}
}

// newCredential builds a stored record from a freshly verified
// go-webauthn credential.
func newCredential(userID []byte, wc *webauthn.Credential) *Credential {
	return &Credential{
		ID:              wc.ID,
		UserID:          userID,
		PublicKey:       wc.PublicKey,
		AttestationType: wc.AttestationType,
		Transport:       wc.Transport,
		Flags: CredentialFlags{
			UserPresent:    wc.Flags.UserPresent,
			UserVerified:   wc.Flags.UserVerified,
			BackupEligible: wc.Flags.BackupEligible,
			BackupState:    wc.Flags.BackupState,
		},
		SignCount: wc.Authenticator.SignCount,
		CreatedAt: time.Now().UTC(),
	}
}

// ceremonyUser pairs a user with its stored credentials for the
// duration of one ceremony. The user model itself does not carry
// credential material; the go-webauthn library needs both together.
type ceremonyUser struct {
	*user.User
	creds []*Credential
}

func newCeremonyUser(u *user.User, creds []*Credential) *ceremonyUser {
	return &ceremonyUser{User: u, creds: creds}
}

// WebAuthnCredentials returns the user's stored credentials in library form.
func (c *ceremonyUser) WebAuthnCredentials() []webauthn.Credential {
	out := make([]webauthn.Credential, len(c.creds))
	for i, cred := range c.creds {
		out[i] = cred.toLibrary()
	}
	return out
}

// Result is the outcome of a successfully verified ceremony.
type Result struct {
	// User is the account the ceremony was performed for.
	User *user.User

	// Credential is the enrolled (registration) or used
	// (authentication) credential record.
	Credential *Credential

	// Token is the remembered-identity token to surface as the
	// user_uid cookie. Empty when no token issuer is configured.
	Token string
}
