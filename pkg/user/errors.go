// Copyright (c) 2026 Loginless Contributors
//
// This file is part of loginless.
//
// loginless is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package user

import "errors"

var (
	// ErrUserNotFound is returned when no user matches the given id,
	// username, email, or remembered-identity token.
	ErrUserNotFound = errors.New("user not found")

	// ErrDuplicateUser is returned when creating a user whose username
	// or email is already taken.
	ErrDuplicateUser = errors.New("username or email already in use")

	// ErrInvalidUser is returned when required identifying fields are
	// missing or malformed.
	ErrInvalidUser = errors.New("invalid user")
)

// IsNotFound reports whether err indicates a missing user.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

// IsDuplicate reports whether err indicates a username/email collision.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateUser)
}
