// Copyright (c) 2026 Loginless Contributors
//
// This file is part of loginless.
//
// loginless is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package webauthn

import (
	"errors"
	"fmt"
)

// Sentinel errors for ceremony operations. All of them map to a
// 400-class response at the HTTP boundary; none carry cryptographic
// diagnostic detail (that is logged server-side only).
var (
	// ErrNoPendingChallenge is returned when no pending ceremony of the
	// expected kind exists: the ceremony id is unknown, the challenge was
	// already consumed, the session expired, or the kind does not match.
	ErrNoPendingChallenge = errors.New("no pending challenge")

	// ErrDuplicateCredential is returned when registering a credential
	// whose id already exists, for any user. The existing record is
	// never overwritten.
	ErrDuplicateCredential = errors.New("credential already registered")

	// ErrUnknownCredential is returned when an assertion references a
	// credential that does not exist or is not owned by the expected user.
	ErrUnknownCredential = errors.New("unknown credential")

	// ErrNoCredentials is returned when beginning authentication for a
	// user with no registered credentials.
	ErrNoCredentials = errors.New("user has no registered credentials")

	// ErrInvalidRegistrationResponse is returned when the attestation
	// response fails structural or cryptographic verification.
	ErrInvalidRegistrationResponse = errors.New("invalid registration response")

	// ErrInvalidAuthenticationResponse is returned when the assertion
	// response fails structural or cryptographic verification.
	ErrInvalidAuthenticationResponse = errors.New("invalid authentication response")

	// ErrReplayedCounter is returned when the assertion's signature
	// counter did not increase over the stored value, indicating a
	// cloned or replayed authenticator.
	ErrReplayedCounter = errors.New("signature counter did not increase")

	// ErrNotConfigured is returned when the service was not built
	// through NewService.
	ErrNotConfigured = errors.New("webauthn service not configured")
)

// CeremonyError wraps an error with the operation that failed.
type CeremonyError struct {
	Op  string
	Err error
}

// Error returns the error message.
func (e *CeremonyError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *CeremonyError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches the underlying error.
func (e *CeremonyError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a CeremonyError for the given operation.
func NewError(op string, err error) error {
	return &CeremonyError{Op: op, Err: err}
}

// WrapError wraps err with the operation name, or returns nil if err is nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(op, err)
}

// IsNoPendingChallenge reports whether err indicates a consumed, expired,
// or missing challenge.
func IsNoPendingChallenge(err error) bool {
	return errors.Is(err, ErrNoPendingChallenge)
}

// IsDuplicateCredential reports whether err indicates a credential id collision.
func IsDuplicateCredential(err error) bool {
	return errors.Is(err, ErrDuplicateCredential)
}

// IsUnknownCredential reports whether err indicates a missing or
// wrongly-owned credential.
func IsUnknownCredential(err error) bool {
	return errors.Is(err, ErrUnknownCredential)
}

// IsReplayedCounter reports whether err indicates counter replay.
func IsReplayedCounter(err error) bool {
	return errors.Is(err, ErrReplayedCounter)
}
