// Copyright (c) 2026 Loginless Contributors
//
// This file is part of loginless.
//
// loginless is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

// Package http provides composable HTTP handlers for the loginless
// WebAuthn ceremonies.
//
// # Usage
//
// Create a handler from a ceremony service and mount it on a chi router:
//
//	svc, _ := webauthn.NewService(...)
//	handler := webauthnhttp.NewHandler(svc, users, resolver)
//
//	r.Route("/auth", func(r chi.Router) {
//	    webauthnhttp.MountChi(r, handler)
//	})
//
// # Endpoints
//
//	POST /registration/begin   - Create the account and start registration
//	POST /registration/finish  - Complete registration
//	POST /login/begin          - Start authentication
//	POST /login/finish         - Complete authentication
//	POST /login/forget         - Forget the remembered user
//
// # Headers and cookies
//
// Begin operations return the ceremony identifier in the X-Ceremony-Id
// header; finish operations require it. Verified ceremonies set the
// user_uid cookie: a signed remembered-identity token, HttpOnly, Secure,
// SameSite=Strict, expiring after 30 days. A login begin with an empty
// body resolves the user from that cookie.
//
// # Response format
//
// All responses are JSON. Finish operations answer with
//
//	{"verified": true, "user_id": "...", "username": "..."}
//
// or, on any rejection,
//
//	{"verified": false, "error": "error_code"}
//
// Rejection reasons are logged server-side and never detailed to the
// client beyond the stable error code.
package http
