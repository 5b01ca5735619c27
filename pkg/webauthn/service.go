// Copyright (c) 2026 Loginless Contributors
//
// This file is part of loginless.
//
// loginless is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package webauthn

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/loginless/loginless/pkg/user"
)

// Service drives WebAuthn registration and authentication ceremonies.
type Service struct {
	webauthn   *webauthn.WebAuthn
	config     *Config
	users      user.Store
	challenges ChallengeStore
	creds      CredentialStore
	tokens     TokenIssuer // optional
	logger     *slog.Logger
	configured bool
}

// ServiceParams contains the dependencies for creating a Service.
type ServiceParams struct {
	// Config is the relying-party configuration (required).
	Config *Config

	// UserStore is the user persistence layer (required).
	UserStore user.Store

	// ChallengeStore holds pending ceremony state (required).
	ChallengeStore ChallengeStore

	// CredentialStore is the credential persistence layer (required).
	CredentialStore CredentialStore

	// TokenIssuer mints remembered-identity tokens after verified
	// ceremonies. If nil, Result.Token is empty.
	TokenIssuer TokenIssuer

	// Logger receives diagnostic detail for rejected responses. The
	// detail is never returned to callers. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewService creates a ceremony service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.UserStore == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if params.ChallengeStore == nil {
		return nil, fmt.Errorf("challenge store is required")
	}
	if params.CredentialStore == nil {
		return nil, fmt.Errorf("credential store is required")
	}

	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	wa, err := webauthn.New(params.Config.toLibraryConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create webauthn instance: %w", err)
	}

	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		webauthn:   wa,
		config:     params.Config,
		users:      params.UserStore,
		challenges: params.ChallengeStore,
		creds:      params.CredentialStore,
		tokens:     params.TokenIssuer,
		logger:     logger,
		configured: true,
	}, nil
}

// Config returns the service configuration.
func (s *Service) Config() *Config {
	return s.config
}

// BeginRegistration issues a registration challenge for the given user.
// The user must already exist; creating it is the caller's job. The
// options exclude every credential the user already owns, so the same
// authenticator cannot be enrolled twice. Returns the creation options
// to send to the client and the ceremony id for FinishRegistration.
func (s *Service) BeginRegistration(ctx context.Context, u *user.User) (*protocol.CredentialCreation, string, error) {
	if !s.configured {
		return nil, "", ErrNotConfigured
	}

	existing, err := s.creds.GetByUserID(ctx, u.WebAuthnID())
	if err != nil {
		return nil, "", WrapError("get credentials", err)
	}

	exclusions := make([]protocol.CredentialDescriptor, len(existing))
	for i, cred := range existing {
		exclusions[i] = protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: cred.ID,
			Transport:    cred.Transport,
		}
	}

	options, session, err := s.webauthn.BeginRegistration(newCeremonyUser(u, existing),
		webauthn.WithExclusions(exclusions),
	)
	if err != nil {
		return nil, "", WrapError("begin registration", err)
	}

	ceremonyID, err := s.challenges.Save(ctx, CeremonyRegistration, u.WebAuthnID(), session)
	if err != nil {
		return nil, "", WrapError("save pending challenge", err)
	}

	return options, ceremonyID, nil
}

// FinishRegistration verifies a registration response against the
// pending challenge and, on success, commits the new credential. The
// pending challenge is consumed whether or not verification succeeds;
// retrying with the same ceremony id fails with ErrNoPendingChallenge.
func (s *Service) FinishRegistration(ctx context.Context, ceremonyID string, response *protocol.ParsedCredentialCreationData) (*Result, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}

	pending, err := s.challenges.Consume(ctx, ceremonyID, CeremonyRegistration)
	if err != nil {
		observeCeremony(CeremonyRegistration, err)
		return nil, WrapError("consume pending challenge", err)
	}

	res, err := s.finishRegistration(ctx, pending, response)
	observeCeremony(CeremonyRegistration, err)
	return res, err
}

func (s *Service) finishRegistration(ctx context.Context, pending *PendingCeremony, response *protocol.ParsedCredentialCreationData) (*Result, error) {
	u, err := s.users.GetByID(ctx, pending.UserID)
	if err != nil {
		return nil, WrapError("get user", err)
	}

	existing, err := s.creds.GetByUserID(ctx, pending.UserID)
	if err != nil {
		return nil, WrapError("get credentials", err)
	}

	libCred, err := s.webauthn.CreateCredential(newCeremonyUser(u, existing), *pending.Session, response)
	if err != nil {
		s.logger.Warn("registration response rejected",
			"username", u.Username,
			"reason", err)
		return nil, NewError("verify registration", ErrInvalidRegistrationResponse)
	}

	cred := newCredential(u.WebAuthnID(), libCred)
	if err := s.creds.Insert(ctx, cred); err != nil {
		return nil, WrapError("insert credential", err)
	}

	token, err := s.issueToken(ctx, u)
	if err != nil {
		return nil, WrapError("issue token", err)
	}

	return &Result{User: u, Credential: cred, Token: token}, nil
}

// BeginAuthentication issues an authentication challenge for the given
// user. The options restrict the allowed credentials to those the user
// owns. Fails with ErrNoCredentials when the user has none.
func (s *Service) BeginAuthentication(ctx context.Context, u *user.User) (*protocol.CredentialAssertion, string, error) {
	if !s.configured {
		return nil, "", ErrNotConfigured
	}

	existing, err := s.creds.GetByUserID(ctx, u.WebAuthnID())
	if err != nil {
		return nil, "", WrapError("get credentials", err)
	}
	if len(existing) == 0 {
		return nil, "", NewError("begin authentication", ErrNoCredentials)
	}

	options, session, err := s.webauthn.BeginLogin(newCeremonyUser(u, existing))
	if err != nil {
		return nil, "", WrapError("begin authentication", err)
	}

	ceremonyID, err := s.challenges.Save(ctx, CeremonyAuthentication, u.WebAuthnID(), session)
	if err != nil {
		return nil, "", WrapError("save pending challenge", err)
	}

	return options, ceremonyID, nil
}

// FinishAuthentication verifies an assertion response against the
// pending challenge. On success the stored signature counter is
// advanced and a remembered-identity token is issued; on any failure
// nothing is mutated. The pending challenge is consumed either way.
func (s *Service) FinishAuthentication(ctx context.Context, ceremonyID string, response *protocol.ParsedCredentialAssertionData) (*Result, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}

	pending, err := s.challenges.Consume(ctx, ceremonyID, CeremonyAuthentication)
	if err != nil {
		observeCeremony(CeremonyAuthentication, err)
		return nil, WrapError("consume pending challenge", err)
	}

	res, err := s.finishAuthentication(ctx, pending, response)
	observeCeremony(CeremonyAuthentication, err)
	return res, err
}

func (s *Service) finishAuthentication(ctx context.Context, pending *PendingCeremony, response *protocol.ParsedCredentialAssertionData) (*Result, error) {
	u, err := s.users.GetByID(ctx, pending.UserID)
	if err != nil {
		return nil, WrapError("get user", err)
	}

	// The credential must exist and belong to the user the challenge
	// was issued for, before any cryptographic work happens.
	stored, err := s.creds.GetByID(ctx, response.RawID)
	if err != nil {
		return nil, NewError("lookup credential", ErrUnknownCredential)
	}
	if !bytes.Equal(stored.UserID, pending.UserID) {
		return nil, NewError("lookup credential", ErrUnknownCredential)
	}

	existing, err := s.creds.GetByUserID(ctx, pending.UserID)
	if err != nil {
		return nil, WrapError("get credentials", err)
	}

	validated, err := s.webauthn.ValidateLogin(newCeremonyUser(u, existing), *pending.Session, response)
	if err != nil {
		s.logger.Warn("authentication response rejected",
			"username", u.Username,
			"reason", err)
		return nil, NewError("verify authentication", ErrInvalidAuthenticationResponse)
	}

	// The library flags a non-increasing counter instead of failing.
	// A cloned authenticator must not authenticate, and the stored
	// counter must stay where it was.
	if validated.Authenticator.CloneWarning {
		s.logger.Warn("authentication counter replay detected",
			"username", u.Username,
			"stored_count", stored.SignCount,
			"response_count", validated.Authenticator.SignCount)
		return nil, NewError("verify authentication", ErrReplayedCounter)
	}

	if err := s.creds.UpdateCounter(ctx, stored.ID, validated.Authenticator.SignCount); err != nil {
		return nil, WrapError("update counter", err)
	}
	stored.SignCount = validated.Authenticator.SignCount

	now := time.Now().UTC()
	u.LastLoginAt = &now
	if err := s.users.Update(ctx, u); err != nil {
		return nil, WrapError("update user", err)
	}

	token, err := s.issueToken(ctx, u)
	if err != nil {
		return nil, WrapError("issue token", err)
	}

	return &Result{User: u, Credential: stored, Token: token}, nil
}

// Credentials returns all credentials owned by a user.
func (s *Service) Credentials(ctx context.Context, u *user.User) ([]*Credential, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	return s.creds.GetByUserID(ctx, u.WebAuthnID())
}

// HasCredentials reports whether a user has any registered credentials.
func (s *Service) HasCredentials(ctx context.Context, u *user.User) (bool, error) {
	creds, err := s.Credentials(ctx, u)
	if err != nil {
		return false, err
	}
	return len(creds) > 0, nil
}

func (s *Service) issueToken(ctx context.Context, u *user.User) (string, error) {
	if s.tokens == nil {
		return "", nil
	}
	return s.tokens.Issue(ctx, u)
}
