// Copyright (c) 2026 Loginless Contributors
//
// This file is part of loginless.
//
// loginless is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package http

// HeaderCeremonyID is the header carrying the ceremony identifier
// between begin and finish operations.
const HeaderCeremonyID = "X-Ceremony-Id"

// CookieName is the remembered-identity cookie.
const CookieName = "user_uid"

// BeginRegistrationRequest is the request body for starting registration.
type BeginRegistrationRequest struct {
	// Username is the unique login name (required).
	Username string `json:"username"`

	// Email is the unique email address (required).
	Email string `json:"email"`

	// DisplayName is the human-readable name (optional, defaults to
	// the username).
	DisplayName string `json:"display_name,omitempty"`
}

// BeginLoginRequest is the request body for starting authentication.
// With an empty body the user is resolved from the user_uid cookie.
type BeginLoginRequest struct {
	// UsernameOrEmail identifies the account, matched case-insensitively.
	UsernameOrEmail string `json:"username_or_email,omitempty"`
}

// BeginLoginResponse is the response for a started authentication.
type BeginLoginResponse struct {
	// Username is the resolved account's login name.
	Username string `json:"username"`

	// Options are the WebAuthn assertion options for the client.
	Options any `json:"options"`
}

// VerifyResponse is the response for finish operations.
type VerifyResponse struct {
	// Verified reports whether the ceremony completed successfully.
	Verified bool `json:"verified"`

	// UserID is the user's id (uuid), present when verified.
	UserID string `json:"user_id,omitempty"`

	// Username is the user's login name, present when verified.
	Username string `json:"username,omitempty"`

	// Error is the stable error code, present when not verified.
	Error string `json:"error,omitempty"`
}

// ErrorResponse is the response format for non-ceremony errors.
type ErrorResponse struct {
	// Error is the error code.
	Error string `json:"error"`

	// Message is a human-readable error message.
	Message string `json:"message"`
}

// Error codes returned in VerifyResponse and ErrorResponse.
const (
	ErrorCodeInvalidRequest      = "invalid_request"
	ErrorCodeInvalidCeremony     = "invalid_ceremony"
	ErrorCodeNoPendingChallenge  = "no_pending_challenge"
	ErrorCodeUserNotFound        = "user_not_found"
	ErrorCodeDuplicateUser       = "duplicate_user"
	ErrorCodeDuplicateCredential = "duplicate_credential"
	ErrorCodeUnknownCredential   = "unknown_credential"
	ErrorCodeNoCredentials       = "no_credentials"
	ErrorCodeReplayedCounter     = "replayed_counter"
	ErrorCodeVerificationFailed  = "verification_failed"
	ErrorCodeInternalError       = "internal_error"
)
