// Copyright (c) 2026 Loginless Contributors
//
// This file is part of loginless.
//
// loginless is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

// Package webauthn implements the passwordless ceremony state machine:
// it issues single-use challenges bound to a user and ceremony kind,
// verifies the authenticator's cryptographic response, and commits
// credential records on success.
//
// A ceremony moves through exactly one path:
//
//	Issued -> Pending -> {Verified, Failed, Invalidated}
//
// BeginRegistration/BeginAuthentication issue a challenge and record a
// pending ceremony. FinishRegistration/FinishAuthentication consume the
// pending ceremony exactly once, success or failure; a second attempt
// against the same ceremony fails with ErrNoPendingChallenge.
//
// The cryptographic heavy lifting (COSE key parsing, attestation and
// assertion signature verification, origin and RP-ID checks) is
// delegated to github.com/go-webauthn/webauthn. This package owns the
// state around it: challenge lifecycle, credential uniqueness,
// signature-counter anti-replay, and the signed remembered-identity
// token surfaced to the HTTP layer as the user_uid cookie.
//
// Basic usage:
//
//	svc, err := webauthn.NewService(webauthn.ServiceParams{
//	    Config:          &webauthn.Config{RPID: "example.com", RPDisplayName: "Example", RPOrigins: []string{"https://example.com"}},
//	    UserStore:       user.NewMemoryStore(),
//	    ChallengeStore:  webauthn.NewMemoryChallengeStore(),
//	    CredentialStore: webauthn.NewMemoryCredentialStore(),
//	})
package webauthn
