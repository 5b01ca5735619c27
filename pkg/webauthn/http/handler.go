// Copyright (c) 2026 Loginless Contributors
//
// This file is part of loginless.
//
// loginless is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/loginless/loginless/pkg/user"
	"github.com/loginless/loginless/pkg/webauthn"
)

const defaultCookieTTL = 30 * 24 * time.Hour

// Handler provides HTTP handlers for the loginless ceremonies.
// The handlers can be mounted on any HTTP router.
type Handler struct {
	service   *webauthn.Service
	users     user.Store
	resolver  *user.Resolver
	logger    *slog.Logger
	cookieTTL time.Duration
}

// NewHandler creates a handler over a ceremony service, a user store,
// and an identity resolver.
func NewHandler(service *webauthn.Service, users user.Store, resolver *user.Resolver) *Handler {
	return &Handler{
		service:   service,
		users:     users,
		resolver:  resolver,
		logger:    slog.Default(),
		cookieTTL: defaultCookieTTL,
	}
}

// WithLogger sets a custom logger for the handler.
func (h *Handler) WithLogger(logger *slog.Logger) *Handler {
	h.logger = logger
	return h
}

// WithCookieTTL sets the remembered-identity cookie lifetime.
func (h *Handler) WithCookieTTL(ttl time.Duration) *Handler {
	h.cookieTTL = ttl
	return h
}

// BeginRegistration handles POST /registration/begin
//
// Request body:
//
//	{
//	    "username": "alice",
//	    "email": "alice@example.com",
//	    "display_name": "Alice Example" // optional
//	}
//
// Creates the account, then returns the WebAuthn
// PublicKeyCredentialCreationOptions.
// Header: X-Ceremony-Id (ceremony identifier for FinishRegistration)
func (h *Handler) BeginRegistration(w http.ResponseWriter, r *http.Request) {
	var req BeginRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}

	if req.Username == "" || req.Email == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "username and email are required")
		return
	}

	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Username
	}

	u, err := h.users.Create(r.Context(), displayName, req.Username, req.Email)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	options, ceremonyID, err := h.service.BeginRegistration(r.Context(), u)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.Header().Set(HeaderCeremonyID, ceremonyID)
	h.writeJSON(w, http.StatusOK, options)
}

// FinishRegistration handles POST /registration/finish
//
// Header: X-Ceremony-Id (from BeginRegistration)
// Request body: Attestation response from the authenticator
// Response: VerifyResponse; on success the user_uid cookie is set.
func (h *Handler) FinishRegistration(w http.ResponseWriter, r *http.Request) {
	ceremonyID := r.Header.Get(HeaderCeremonyID)
	if ceremonyID == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidCeremony, "ceremony ID header is required")
		return
	}

	response, err := protocol.ParseCredentialCreationResponseBody(r.Body)
	if err != nil {
		h.logger.Warn("malformed attestation response", "reason", err)
		h.writeVerifyFailure(w, http.StatusBadRequest, ErrorCodeInvalidRequest)
		return
	}

	result, err := h.service.FinishRegistration(r.Context(), ceremonyID, response)
	if err != nil {
		h.handleCeremonyError(w, err)
		return
	}

	h.setRememberCookie(w, result.Token)
	h.writeJSON(w, http.StatusCreated, VerifyResponse{
		Verified: true,
		UserID:   result.User.ID.String(),
		Username: result.User.Username,
	})
}

// BeginLogin handles POST /login/begin
//
// Request body:
//
//	{
//	    "username_or_email": "alice" // matched case-insensitively
//	}
//
// With an empty body, the user is resolved from the user_uid cookie.
// Response: BeginLoginResponse with the assertion options.
// Header: X-Ceremony-Id (ceremony identifier for FinishLogin)
func (h *Handler) BeginLogin(w http.ResponseWriter, r *http.Request) {
	var req BeginLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// Empty body selects the remembered-user flow.
		req = BeginLoginRequest{}
	}

	var (
		u   *user.User
		err error
	)
	if req.UsernameOrEmail != "" {
		u, err = h.resolver.Resolve(r.Context(), req.UsernameOrEmail)
	} else {
		u, err = h.resolver.ResolveRemembered(r.Context(), h.rememberCookie(r))
	}
	if err != nil {
		if user.IsNotFound(err) {
			h.writeError(w, http.StatusNotFound, ErrorCodeUserNotFound, "user not found")
			return
		}
		h.handleServiceError(w, err)
		return
	}

	options, ceremonyID, err := h.service.BeginAuthentication(r.Context(), u)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.Header().Set(HeaderCeremonyID, ceremonyID)
	h.writeJSON(w, http.StatusOK, BeginLoginResponse{
		Username: u.Username,
		Options:  options,
	})
}

// FinishLogin handles POST /login/finish
//
// Header: X-Ceremony-Id (from BeginLogin)
// Request body: Assertion response from the authenticator
// Response: VerifyResponse; on success the user_uid cookie is refreshed.
func (h *Handler) FinishLogin(w http.ResponseWriter, r *http.Request) {
	ceremonyID := r.Header.Get(HeaderCeremonyID)
	if ceremonyID == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidCeremony, "ceremony ID header is required")
		return
	}

	response, err := protocol.ParseCredentialRequestResponseBody(r.Body)
	if err != nil {
		h.logger.Warn("malformed assertion response", "reason", err)
		h.writeVerifyFailure(w, http.StatusBadRequest, ErrorCodeInvalidRequest)
		return
	}

	result, err := h.service.FinishAuthentication(r.Context(), ceremonyID, response)
	if err != nil {
		h.handleCeremonyError(w, err)
		return
	}

	h.setRememberCookie(w, result.Token)
	h.writeJSON(w, http.StatusOK, VerifyResponse{
		Verified: true,
		UserID:   result.User.ID.String(),
		Username: result.User.Username,
	})
}

// ForgetLogin handles POST /login/forget
//
// Clears the user_uid cookie so the next login asks for an identity
// again. Always succeeds.
func (h *Handler) ForgetLogin(w http.ResponseWriter, r *http.Request) {
	h.clearRememberCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleCeremonyError maps finish-operation failures to VerifyResponse
// payloads. The client learns a stable code; the reason stays in the log.
func (h *Handler) handleCeremonyError(w http.ResponseWriter, err error) {
	switch {
	case webauthn.IsNoPendingChallenge(err):
		h.writeVerifyFailure(w, http.StatusBadRequest, ErrorCodeNoPendingChallenge)
	case webauthn.IsReplayedCounter(err):
		h.writeVerifyFailure(w, http.StatusBadRequest, ErrorCodeReplayedCounter)
	case webauthn.IsDuplicateCredential(err):
		h.writeVerifyFailure(w, http.StatusBadRequest, ErrorCodeDuplicateCredential)
	case webauthn.IsUnknownCredential(err):
		h.writeVerifyFailure(w, http.StatusBadRequest, ErrorCodeUnknownCredential)
	case errors.Is(err, webauthn.ErrInvalidRegistrationResponse),
		errors.Is(err, webauthn.ErrInvalidAuthenticationResponse):
		h.writeVerifyFailure(w, http.StatusBadRequest, ErrorCodeVerificationFailed)
	case user.IsNotFound(err):
		h.writeVerifyFailure(w, http.StatusNotFound, ErrorCodeUserNotFound)
	default:
		h.logger.Error("ceremony finish failed", "error", err)
		h.writeVerifyFailure(w, http.StatusInternalServerError, ErrorCodeInternalError)
	}
}

// handleServiceError maps begin-operation and account errors to HTTP
// responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case user.IsDuplicate(err):
		h.writeError(w, http.StatusBadRequest, ErrorCodeDuplicateUser, "username or email already taken")
	case user.IsNotFound(err):
		h.writeError(w, http.StatusNotFound, ErrorCodeUserNotFound, "user not found")
	case errors.Is(err, user.ErrInvalidUser):
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "username and email are required")
	case errors.Is(err, webauthn.ErrNoCredentials):
		h.writeError(w, http.StatusBadRequest, ErrorCodeNoCredentials, "user has no registered credentials")
	case webauthn.IsNoPendingChallenge(err):
		h.writeError(w, http.StatusBadRequest, ErrorCodeNoPendingChallenge, "no pending challenge")
	default:
		h.logger.Error("request failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal server error")
	}
}

func (h *Handler) rememberCookie(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func (h *Handler) setRememberCookie(w http.ResponseWriter, token string) {
	if token == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearRememberCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Response headers already written, can only log the error
		h.logger.Error("failed to encode JSON response",
			"error", err,
			"status", status)
	}
}

// writeVerifyFailure writes a failed VerifyResponse.
func (h *Handler) writeVerifyFailure(w http.ResponseWriter, status int, code string) {
	h.writeJSON(w, status, VerifyResponse{
		Verified: false,
		Error:    code,
	})
}

// writeError writes an error response.
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}
