// Copyright (c) 2026 Loginless Contributors
//
// This file is part of loginless.
//
// loginless is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package webauthn

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/descope/virtualwebauthn"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loginless/loginless/pkg/user"
)

// testEnv bundles the service, stores, and a virtual authenticator for
// full ceremony tests.
type testEnv struct {
	svc   *Service
	users user.Store
	creds *MemoryCredentialStore
	rp    virtualwebauthn.RelyingParty
	auth  virtualwebauthn.Authenticator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &Config{
		RPID:          "example.com",
		RPDisplayName: "Example Corp",
		RPOrigins:     []string{"https://example.com"},
	}

	users := user.NewMemoryStore()
	creds := NewMemoryCredentialStore()

	ri, err := NewRememberedIdentity([]byte("integration-test-secret"))
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Config:          cfg,
		UserStore:       users,
		ChallengeStore:  NewMemoryChallengeStore(),
		CredentialStore: creds,
		TokenIssuer:     ri,
	})
	require.NoError(t, err)

	return &testEnv{
		svc:   svc,
		users: users,
		creds: creds,
		rp: virtualwebauthn.RelyingParty{
			Name:   cfg.RPDisplayName,
			ID:     cfg.RPID,
			Origin: cfg.RPOrigins[0],
		},
		auth: virtualwebauthn.NewAuthenticator(),
	}
}

// register runs a full registration ceremony for the user with the
// given credential and attaches the credential to the authenticator.
func (e *testEnv) register(t *testing.T, u *user.User, cred *virtualwebauthn.Credential) *Result {
	t.Helper()
	ctx := context.Background()

	options, ceremonyID, err := e.svc.BeginRegistration(ctx, u)
	require.NoError(t, err)

	optionsJSON, err := json.Marshal(options.Response)
	require.NoError(t, err)

	parsedOptions, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	require.NoError(t, err)

	attestation := virtualwebauthn.CreateAttestationResponse(e.rp, e.auth, *cred, *parsedOptions)
	parsedResponse, err := parseAttestationResponse(attestation)
	require.NoError(t, err)

	result, err := e.svc.FinishRegistration(ctx, ceremonyID, parsedResponse)
	require.NoError(t, err)

	e.auth.AddCredential(*cred)
	return result
}

// assertionFor begins an authentication ceremony and produces a parsed
// assertion response from the virtual authenticator.
func (e *testEnv) assertionFor(t *testing.T, u *user.User, cred *virtualwebauthn.Credential) (string, *protocol.ParsedCredentialAssertionData) {
	t.Helper()
	ctx := context.Background()

	options, ceremonyID, err := e.svc.BeginAuthentication(ctx, u)
	require.NoError(t, err)

	optionsJSON, err := json.Marshal(options.Response)
	require.NoError(t, err)

	parsedOptions, err := virtualwebauthn.ParseAssertionOptions(string(optionsJSON))
	require.NoError(t, err)

	assertion := virtualwebauthn.CreateAssertionResponse(e.rp, e.auth, *cred, *parsedOptions)
	parsedResponse, err := parseAssertionResponse(assertion)
	require.NoError(t, err)

	return ceremonyID, parsedResponse
}

func TestIntegration_FullRegistrationFlow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	u, err := env.users.Create(ctx, "Alice Example", "alice", "alice@example.com")
	require.NoError(t, err)

	options, ceremonyID, err := env.svc.BeginRegistration(ctx, u)
	require.NoError(t, err)
	require.NotNil(t, options)
	require.NotEmpty(t, ceremonyID)

	assert.Equal(t, "example.com", options.Response.RelyingParty.ID)
	assert.Equal(t, "Example Corp", options.Response.RelyingParty.Name)
	assert.Equal(t, "alice", options.Response.User.Name)
	assert.Equal(t, "Alice Example", options.Response.User.DisplayName)
	assert.GreaterOrEqual(t, len(options.Response.Challenge), 16)
	assert.Empty(t, options.Response.CredentialExcludeList)

	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	optionsJSON, err := json.Marshal(options.Response)
	require.NoError(t, err)
	parsedOptions, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	require.NoError(t, err)

	attestation := virtualwebauthn.CreateAttestationResponse(env.rp, env.auth, cred, *parsedOptions)
	parsedResponse, err := parseAttestationResponse(attestation)
	require.NoError(t, err)

	result, err := env.svc.FinishRegistration(ctx, ceremonyID, parsedResponse)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, u.ID, result.User.ID)
	assert.NotEmpty(t, result.Token)
	require.NotNil(t, result.Credential)
	assert.Equal(t, u.WebAuthnID(), result.Credential.UserID)

	stored, err := env.svc.Credentials(ctx, u)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestIntegration_FullLoginFlow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	u, err := env.users.Create(ctx, "Alice", "alice", "alice@example.com")
	require.NoError(t, err)

	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	env.register(t, u, &cred)

	cred.Counter++
	ceremonyID, parsedResponse := env.assertionFor(t, u, &cred)

	result, err := env.svc.FinishAuthentication(ctx, ceremonyID, parsedResponse)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, u.ID, result.User.ID)
	assert.NotEmpty(t, result.Token)
	require.NotNil(t, result.User.LastLoginAt)

	// The remembered-identity token identifies the user.
	ri, err := NewRememberedIdentity([]byte("integration-test-secret"))
	require.NoError(t, err)
	uid, err := ri.Verify(result.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, uid)
}

func TestIntegration_ChallengeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	u, err := env.users.Create(ctx, "Alice", "alice", "alice@example.com")
	require.NoError(t, err)

	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	env.register(t, u, &cred)

	cred.Counter++
	ceremonyID, parsedResponse := env.assertionFor(t, u, &cred)

	_, err = env.svc.FinishAuthentication(ctx, ceremonyID, parsedResponse)
	require.NoError(t, err)

	// Replaying the identical finish must fail: the challenge was
	// consumed by the first call.
	_, err = env.svc.FinishAuthentication(ctx, ceremonyID, parsedResponse)
	assert.ErrorIs(t, err, ErrNoPendingChallenge)
}

func TestIntegration_FailedFinishConsumesChallenge(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	u, err := env.users.Create(ctx, "Alice", "alice", "alice@example.com")
	require.NoError(t, err)

	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	reg := env.register(t, u, &cred)

	// An assertion built for one ceremony's challenge presented against
	// another ceremony must fail verification.
	_, staleResponse := env.assertionFor(t, u, &cred)
	freshID, _ := env.assertionFor(t, u, &cred)

	_, err = env.svc.FinishAuthentication(ctx, freshID, staleResponse)
	assert.ErrorIs(t, err, ErrInvalidAuthenticationResponse)

	// The failure spent the challenge and left the counter alone.
	stored, err := env.creds.GetByID(ctx, reg.Credential.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), stored.SignCount)

	_, err = env.svc.FinishAuthentication(ctx, freshID, staleResponse)
	assert.ErrorIs(t, err, ErrNoPendingChallenge)
}

func TestIntegration_CounterReplay(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	u, err := env.users.Create(ctx, "Alice", "alice", "alice@example.com")
	require.NoError(t, err)

	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	reg := env.register(t, u, &cred)

	// First login advances the stored counter to 5.
	cred.Counter = 5
	ceremonyID, parsedResponse := env.assertionFor(t, u, &cred)
	_, err = env.svc.FinishAuthentication(ctx, ceremonyID, parsedResponse)
	require.NoError(t, err)

	stored, err := env.creds.GetByID(ctx, reg.Credential.ID)
	require.NoError(t, err)
	require.Equal(t, uint32(5), stored.SignCount)

	// A cloned authenticator replays an older counter value.
	cred.Counter = 2
	ceremonyID, parsedResponse = env.assertionFor(t, u, &cred)
	_, err = env.svc.FinishAuthentication(ctx, ceremonyID, parsedResponse)
	assert.ErrorIs(t, err, ErrReplayedCounter)

	// The stored counter must not move on a rejected assertion.
	stored, err = env.creds.GetByID(ctx, reg.Credential.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), stored.SignCount)
}

func TestIntegration_CounterAdvancesAcrossLogins(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	u, err := env.users.Create(ctx, "Alice", "alice", "alice@example.com")
	require.NoError(t, err)

	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	reg := env.register(t, u, &cred)

	stored, err := env.creds.GetByID(ctx, reg.Credential.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), stored.SignCount)

	numLogins := 3
	for i := 0; i < numLogins; i++ {
		cred.Counter++
		ceremonyID, parsedResponse := env.assertionFor(t, u, &cred)
		_, err := env.svc.FinishAuthentication(ctx, ceremonyID, parsedResponse)
		require.NoError(t, err)
	}

	stored, err = env.creds.GetByID(ctx, reg.Credential.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(numLogins), stored.SignCount)
}

func TestIntegration_DuplicateCredential(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	alice, err := env.users.Create(ctx, "Alice", "alice", "alice@example.com")
	require.NoError(t, err)
	bob, err := env.users.Create(ctx, "Bob", "bob", "bob@example.com")
	require.NoError(t, err)

	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	env.register(t, alice, &cred)

	// Bob presents an attestation carrying the same credential id.
	options, ceremonyID, err := env.svc.BeginRegistration(ctx, bob)
	require.NoError(t, err)

	optionsJSON, err := json.Marshal(options.Response)
	require.NoError(t, err)
	parsedOptions, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	require.NoError(t, err)

	attestation := virtualwebauthn.CreateAttestationResponse(env.rp, env.auth, cred, *parsedOptions)
	parsedResponse, err := parseAttestationResponse(attestation)
	require.NoError(t, err)

	_, err = env.svc.FinishRegistration(ctx, ceremonyID, parsedResponse)
	assert.ErrorIs(t, err, ErrDuplicateCredential)

	// The existing record keeps its original owner.
	stored, err := env.creds.GetByID(ctx, cred.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.WebAuthnID(), stored.UserID)
	assert.Equal(t, 1, env.creds.Count())
}

func TestIntegration_MultipleCredentials(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	u, err := env.users.Create(ctx, "Alice", "alice", "alice@example.com")
	require.NoError(t, err)

	cred1 := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	env.register(t, u, &cred1)

	// The second registration's exclude list names the first credential.
	options, ceremonyID, err := env.svc.BeginRegistration(ctx, u)
	require.NoError(t, err)
	require.Len(t, options.Response.CredentialExcludeList, 1)
	assert.Equal(t, cred1.ID, []byte(options.Response.CredentialExcludeList[0].CredentialID))

	cred2 := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	optionsJSON, err := json.Marshal(options.Response)
	require.NoError(t, err)
	parsedOptions, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	require.NoError(t, err)

	attestation := virtualwebauthn.CreateAttestationResponse(env.rp, env.auth, cred2, *parsedOptions)
	parsedResponse, err := parseAttestationResponse(attestation)
	require.NoError(t, err)

	_, err = env.svc.FinishRegistration(ctx, ceremonyID, parsedResponse)
	require.NoError(t, err)
	env.auth.AddCredential(cred2)

	stored, err := env.svc.Credentials(ctx, u)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	// Either credential can authenticate.
	cred2.Counter++
	loginID, loginResponse := env.assertionFor(t, u, &cred2)
	_, err = env.svc.FinishAuthentication(ctx, loginID, loginResponse)
	require.NoError(t, err)
}

func TestIntegration_CredentialOwnershipEnforced(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	alice, err := env.users.Create(ctx, "Alice", "alice", "alice@example.com")
	require.NoError(t, err)
	bob, err := env.users.Create(ctx, "Bob", "bob", "bob@example.com")
	require.NoError(t, err)

	aliceCred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	env.register(t, alice, &aliceCred)
	bobCred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	env.register(t, bob, &bobCred)

	// An assertion signed with Alice's credential cannot finish a
	// ceremony issued for Bob.
	options, ceremonyID, err := env.svc.BeginAuthentication(ctx, bob)
	require.NoError(t, err)

	optionsJSON, err := json.Marshal(options.Response)
	require.NoError(t, err)
	parsedOptions, err := virtualwebauthn.ParseAssertionOptions(string(optionsJSON))
	require.NoError(t, err)

	aliceCred.Counter++
	assertion := virtualwebauthn.CreateAssertionResponse(env.rp, env.auth, aliceCred, *parsedOptions)
	parsedResponse, err := parseAssertionResponse(assertion)
	require.NoError(t, err)

	_, err = env.svc.FinishAuthentication(ctx, ceremonyID, parsedResponse)
	assert.ErrorIs(t, err, ErrUnknownCredential)
}

// parseAttestationResponse parses a virtual authenticator attestation
// response into the format expected by go-webauthn.
func parseAttestationResponse(attestation string) (*protocol.ParsedCredentialCreationData, error) {
	var ccr protocol.CredentialCreationResponse
	if err := json.Unmarshal([]byte(attestation), &ccr); err != nil {
		return nil, err
	}
	return ccr.Parse()
}

// parseAssertionResponse parses a virtual authenticator assertion
// response into the format expected by go-webauthn.
func parseAssertionResponse(assertion string) (*protocol.ParsedCredentialAssertionData, error) {
	var car protocol.CredentialAssertionResponse
	if err := json.Unmarshal([]byte(assertion), &car); err != nil {
		return nil, err
	}
	return car.Parse()
}
