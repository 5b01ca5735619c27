// Copyright (c) 2026 Loginless Contributors
//
// This file is part of loginless.
//
// loginless is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

// Package sqlite provides durable user and credential stores backed by
// SQLite. Uniqueness of usernames, emails, and credential ids is
// enforced by the database engine, never by check-then-insert.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/loginless/loginless/pkg/user"
	"github.com/loginless/loginless/pkg/webauthn"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            BLOB PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	email         TEXT NOT NULL UNIQUE,
	display_name  TEXT NOT NULL,
	created_at    DATETIME NOT NULL,
	last_login_at DATETIME
);

CREATE TABLE IF NOT EXISTS credentials (
	id               BLOB PRIMARY KEY,
	user_id          BLOB NOT NULL REFERENCES users(id),
	public_key       BLOB NOT NULL,
	attestation_type TEXT NOT NULL,
	transports       TEXT NOT NULL,
	user_present     INTEGER NOT NULL,
	user_verified    INTEGER NOT NULL,
	backup_eligible  INTEGER NOT NULL,
	backup_state     INTEGER NOT NULL,
	sign_count       INTEGER NOT NULL,
	created_at       DATETIME NOT NULL,
	last_used_at     DATETIME
);

CREATE INDEX IF NOT EXISTS idx_credentials_user_id ON credentials(user_id);
`

// DB wraps a SQLite handle and exposes the loginless stores over it.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the database at the given DSN and applies the
// schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database handle.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Users returns the user store backed by this database.
func (db *DB) Users() *UserStore {
	return &UserStore{conn: db.conn}
}

// Credentials returns the credential store backed by this database.
func (db *DB) Credentials() *CredentialStore {
	return &CredentialStore{conn: db.conn}
}

func isConstraintViolation(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint
}

// UserStore implements user.Store on SQLite.
type UserStore struct {
	conn *sql.DB
}

// Create creates a new user. Username and email collisions surface as
// user.ErrDuplicateUser via the UNIQUE constraints.
func (s *UserStore) Create(ctx context.Context, displayName, username, email string) (*user.User, error) {
	username = user.NormalizeLogin(username)
	email = user.NormalizeLogin(email)
	if username == "" || email == "" {
		return nil, user.ErrInvalidUser
	}

	u := &user.User{
		ID:          uuid.New(),
		Username:    username,
		Email:       email,
		DisplayName: displayName,
		CreatedAt:   time.Now().UTC(),
	}

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO users (id, username, email, display_name, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID[:], u.Username, u.Email, u.DisplayName, u.CreatedAt)
	if err != nil {
		if isConstraintViolation(err) {
			return nil, user.ErrDuplicateUser
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return u, nil
}

// GetByID retrieves a user by the raw bytes of its id.
func (s *UserStore) GetByID(ctx context.Context, id []byte) (*user.User, error) {
	if _, err := uuid.FromBytes(id); err != nil {
		return nil, user.ErrUserNotFound
	}
	return s.scanUser(s.conn.QueryRowContext(ctx,
		`SELECT id, username, email, display_name, created_at, last_login_at FROM users WHERE id = ?`,
		id))
}

// GetByLogin retrieves a user by normalized username or email.
func (s *UserStore) GetByLogin(ctx context.Context, usernameOrEmail string) (*user.User, error) {
	login := user.NormalizeLogin(usernameOrEmail)
	if login == "" {
		return nil, user.ErrUserNotFound
	}
	return s.scanUser(s.conn.QueryRowContext(ctx,
		`SELECT id, username, email, display_name, created_at, last_login_at FROM users WHERE username = ? OR email = ?`,
		login, login))
}

// Update persists changes to mutable fields.
func (s *UserStore) Update(ctx context.Context, u *user.User) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE users SET display_name = ?, last_login_at = ? WHERE id = ?`,
		u.DisplayName, nullTime(u.LastLoginAt), u.ID[:])
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if rows == 0 {
		return user.ErrUserNotFound
	}
	return nil
}

func (s *UserStore) scanUser(row *sql.Row) (*user.User, error) {
	var (
		id        []byte
		u         user.User
		lastLogin sql.NullTime
	)
	err := row.Scan(&id, &u.Username, &u.Email, &u.DisplayName, &u.CreatedAt, &lastLogin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, user.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	u.ID, err = uuid.FromBytes(id)
	if err != nil {
		return nil, fmt.Errorf("corrupt user id: %w", err)
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

// CredentialStore implements webauthn.CredentialStore on SQLite.
type CredentialStore struct {
	conn *sql.DB
}

// Insert stores a new credential. A credential id collision surfaces as
// webauthn.ErrDuplicateCredential via the PRIMARY KEY constraint, so
// the existing record is never overwritten.
func (s *CredentialStore) Insert(ctx context.Context, cred *webauthn.Credential) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO credentials
			(id, user_id, public_key, attestation_type, transports,
			 user_present, user_verified, backup_eligible, backup_state,
			 sign_count, created_at, last_used_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cred.ID, cred.UserID, cred.PublicKey, cred.AttestationType,
		encodeTransports(cred.Transport),
		cred.Flags.UserPresent, cred.Flags.UserVerified,
		cred.Flags.BackupEligible, cred.Flags.BackupState,
		cred.SignCount, cred.CreatedAt, nullTime(cred.LastUsedAt))
	if err != nil {
		if isConstraintViolation(err) {
			return webauthn.ErrDuplicateCredential
		}
		return fmt.Errorf("failed to insert credential: %w", err)
	}
	return nil
}

// GetByID retrieves a credential by its id.
func (s *CredentialStore) GetByID(ctx context.Context, credID []byte) (*webauthn.Credential, error) {
	rows, err := s.conn.QueryContext(ctx, selectCredentials+` WHERE id = ?`, credID)
	if err != nil {
		return nil, fmt.Errorf("failed to query credential: %w", err)
	}
	defer rows.Close()

	creds, err := scanCredentials(rows)
	if err != nil {
		return nil, err
	}
	if len(creds) == 0 {
		return nil, webauthn.ErrUnknownCredential
	}
	return creds[0], nil
}

// GetByUserID retrieves all credentials owned by a user.
func (s *CredentialStore) GetByUserID(ctx context.Context, userID []byte) ([]*webauthn.Credential, error) {
	rows, err := s.conn.QueryContext(ctx, selectCredentials+` WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query credentials: %w", err)
	}
	defer rows.Close()

	return scanCredentials(rows)
}

// UpdateCounter persists a new signature counter and last-used time.
func (s *CredentialStore) UpdateCounter(ctx context.Context, credID []byte, signCount uint32) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE credentials SET sign_count = ?, last_used_at = ? WHERE id = ?`,
		signCount, time.Now().UTC(), credID)
	if err != nil {
		return fmt.Errorf("failed to update counter: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if rows == 0 {
		return webauthn.ErrUnknownCredential
	}
	return nil
}

const selectCredentials = `
SELECT id, user_id, public_key, attestation_type, transports,
       user_present, user_verified, backup_eligible, backup_state,
       sign_count, created_at, last_used_at
FROM credentials`

func scanCredentials(rows *sql.Rows) ([]*webauthn.Credential, error) {
	var creds []*webauthn.Credential
	for rows.Next() {
		var (
			c          webauthn.Credential
			transports string
			lastUsed   sql.NullTime
		)
		err := rows.Scan(&c.ID, &c.UserID, &c.PublicKey, &c.AttestationType, &transports,
			&c.Flags.UserPresent, &c.Flags.UserVerified,
			&c.Flags.BackupEligible, &c.Flags.BackupState,
			&c.SignCount, &c.CreatedAt, &lastUsed)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		c.Transport = decodeTransports(transports)
		if lastUsed.Valid {
			t := lastUsed.Time
			c.LastUsedAt = &t
		}
		creds = append(creds, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate credentials: %w", err)
	}
	if creds == nil {
		creds = []*webauthn.Credential{}
	}
	return creds, nil
}

func encodeTransports(transports []protocol.AuthenticatorTransport) string {
	parts := make([]string, len(transports))
	for i, t := range transports {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}

func decodeTransports(s string) []protocol.AuthenticatorTransport {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	transports := make([]protocol.AuthenticatorTransport, len(parts))
	for i, p := range parts {
		transports[i] = protocol.AuthenticatorTransport(p)
	}
	return transports
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
