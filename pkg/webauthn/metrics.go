// Copyright (c) 2026 Loginless Contributors
//
// This file is part of loginless.
//
// loginless is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package webauthn

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ceremoniesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "loginless",
		Subsystem: "webauthn",
		Name:      "ceremonies_total",
		Help:      "Completed WebAuthn ceremony finish operations by kind and outcome.",
	},
	[]string{"kind", "outcome"},
)

// observeCeremony records the outcome of one finish operation.
func observeCeremony(kind CeremonyKind, err error) {
	ceremoniesTotal.WithLabelValues(string(kind), ceremonyOutcome(err)).Inc()
}

func ceremonyOutcome(err error) string {
	switch {
	case err == nil:
		return "verified"
	case errors.Is(err, ErrNoPendingChallenge):
		return "no_pending_challenge"
	case errors.Is(err, ErrReplayedCounter):
		return "replayed_counter"
	case errors.Is(err, ErrDuplicateCredential):
		return "duplicate_credential"
	case errors.Is(err, ErrUnknownCredential):
		return "unknown_credential"
	case errors.Is(err, ErrInvalidRegistrationResponse),
		errors.Is(err, ErrInvalidAuthenticationResponse):
		return "invalid_response"
	default:
		return "error"
	}
}
