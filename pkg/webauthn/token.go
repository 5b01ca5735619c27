// Copyright (c) 2026 Loginless Contributors
//
// This file is part of loginless.
//
// loginless is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package webauthn

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/loginless/loginless/pkg/user"
)

const defaultTokenTTL = 30 * 24 * time.Hour

// RememberedIdentity issues and verifies signed remembered-identity
// tokens. The token carries the user id as its subject and is signed
// with HMAC-SHA256, so a client cannot forge one by editing the cookie
// value. It implements both TokenIssuer and user.TokenVerifier.
type RememberedIdentity struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

// RememberedIdentityOption customizes a RememberedIdentity.
type RememberedIdentityOption func(*RememberedIdentity)

// WithTTL sets the token lifetime. Default: 30 days.
func WithTTL(ttl time.Duration) RememberedIdentityOption {
	return func(r *RememberedIdentity) {
		r.ttl = ttl
	}
}

// WithIssuer sets the token issuer claim. Default: "loginless".
func WithIssuer(issuer string) RememberedIdentityOption {
	return func(r *RememberedIdentity) {
		r.issuer = issuer
	}
}

// NewRememberedIdentity creates a token issuer/verifier from a signing
// secret. The secret must be non-empty.
func NewRememberedIdentity(secret []byte, opts ...RememberedIdentityOption) (*RememberedIdentity, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("signing secret is required")
	}
	r := &RememberedIdentity{
		secret: secret,
		ttl:    defaultTokenTTL,
		issuer: "loginless",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Issue mints a signed token identifying the user.
func (r *RememberedIdentity) Issue(ctx context.Context, u *user.User) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    r.issuer,
		Subject:   u.ID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(r.ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(r.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the token signature and claims and returns the user id
// it identifies.
func (r *RememberedIdentity) Verify(tokenString string) (uuid.UUID, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return r.secret, nil
		},
		jwt.WithIssuer(r.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return uuid.Nil, fmt.Errorf("invalid token claims")
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid token subject: %w", err)
	}
	return id, nil
}
