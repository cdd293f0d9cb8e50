// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres implements account.Store on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authd/internal/account"
)

// Unique index names from the accounts migration.
const (
	emailConstraint    = "accounts_email_key"
	usernameConstraint = "accounts_username_key"
)

const accountColumns = `id, email, username, password_hash, is_active, role, email_verified,
	refresh_token_hash, refresh_token_expires_at,
	verification_token_hash, verification_token_expires_at,
	reset_token_hash, reset_token_expires_at,
	created_at, updated_at`

// poolIface is the subset of *pgxpool.Pool used by Store, so tests can
// substitute pgxmock.
type poolIface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Store implements account.Store using PostgreSQL.
type Store struct {
	pool    poolIface
	timeout time.Duration
}

var _ account.Store = (*Store)(nil)

// NewStore creates a Store. Every call is bounded by timeout; a non-positive
// timeout selects account.DefaultQueryTimeout.
func NewStore(pool poolIface, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = account.DefaultQueryTimeout
	}
	return &Store{pool: pool, timeout: timeout}
}

func (s *Store) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// isUnavailable reports whether err means the database could not serve the
// request in time, as opposed to rejecting it.
func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgerrcode.IsConnectionException(pgErr.Code) ||
			pgerrcode.IsInsufficientResources(pgErr.Code) ||
			pgerrcode.IsOperatorIntervention(pgErr.Code)
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// wrapErr classifies err into STORE_UNAVAILABLE or the supplied failure code.
// Any failure after the bounded context expired counts as unavailable.
func wrapErr(ctx context.Context, err error, code, operation string) error {
	if ctx.Err() != nil || isUnavailable(err) {
		return oops.Code(account.CodeStoreUnavailable).
			With("operation", operation).
			With("reason", err.Error()).
			Wrap(account.ErrStoreUnavailable)
	}
	return oops.Code(code).With("operation", operation).Wrap(err)
}

// Create inserts a new account. The existence checks and insert share one
// transaction; a unique-index violation from a concurrent insert is mapped to
// the same duplicate errors.
func (s *Store) Create(ctx context.Context, in account.NewAccount) (*account.Account, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, wrapErr(ctx, err, "ACCOUNT_CREATE_FAILED", "begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var taken bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE lower(email) = lower($1))`,
		in.Email).Scan(&taken)
	if err != nil {
		return nil, wrapErr(ctx, err, "ACCOUNT_CREATE_FAILED", "check email")
	}
	if taken {
		return nil, oops.Code(account.CodeDuplicateEmail).Wrap(account.ErrDuplicateEmail)
	}

	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE username = $1)`,
		in.Username).Scan(&taken)
	if err != nil {
		return nil, wrapErr(ctx, err, "ACCOUNT_CREATE_FAILED", "check username")
	}
	if taken {
		return nil, oops.Code(account.CodeDuplicateUsername).
			With("username", in.Username).
			Wrap(account.ErrDuplicateUsername)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	acct := &account.Account{
		ID:           ulid.Make(),
		Email:        in.Email,
		Username:     in.Username,
		PasswordHash: in.PasswordHash,
		IsActive:     true,
		Role:         account.DefaultRole,

		VerificationToken: in.Verification,

		CreatedAt: now,
		UpdatedAt: now,
	}
	verifyHash, verifyExp := slotArgs(in.Verification)

	_, err = tx.Exec(ctx, `
		INSERT INTO accounts (id, email, username, password_hash, is_active, role, email_verified,
			verification_token_hash, verification_token_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		acct.ID.String(),
		acct.Email,
		acct.Username,
		acct.PasswordHash,
		acct.IsActive,
		acct.Role,
		acct.EmailVerified,
		verifyHash,
		verifyExp,
		acct.CreatedAt,
		acct.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			switch pgErr.ConstraintName {
			case emailConstraint:
				return nil, oops.Code(account.CodeDuplicateEmail).Wrap(account.ErrDuplicateEmail)
			case usernameConstraint:
				return nil, oops.Code(account.CodeDuplicateUsername).
					With("username", in.Username).
					Wrap(account.ErrDuplicateUsername)
			}
		}
		return nil, wrapErr(ctx, err, "ACCOUNT_CREATE_FAILED", "insert account")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, wrapErr(ctx, err, "ACCOUNT_CREATE_FAILED", "commit")
	}
	return acct, nil
}

// FindByID retrieves an account by id.
func (s *Store) FindByID(ctx context.Context, id ulid.ULID) (*account.Account, error) {
	return s.findOne(ctx, "find account by id", "id", id.String(),
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`)
}

// FindByEmail retrieves an account by email, ignoring case.
func (s *Store) FindByEmail(ctx context.Context, email string) (*account.Account, error) {
	return s.findOne(ctx, "find account by email", "email", email,
		`SELECT `+accountColumns+` FROM accounts WHERE lower(email) = lower($1)`)
}

// FindByUsername retrieves an account by exact username.
func (s *Store) FindByUsername(ctx context.Context, username string) (*account.Account, error) {
	return s.findOne(ctx, "find account by username", "username", username,
		`SELECT `+accountColumns+` FROM accounts WHERE username = $1`)
}

func (s *Store) findOne(ctx context.Context, operation, key, value, query string) (*account.Account, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	acct, err := scanAccount(s.pool.QueryRow(ctx, query, value))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(account.CodeNotFound).With(key, value).Wrap(account.ErrNotFound)
	}
	if err != nil {
		return nil, wrapErr(ctx, err, "ACCOUNT_QUERY_FAILED", operation)
	}
	return acct, nil
}

// SetRefreshToken replaces the stored refresh token.
func (s *Store) SetRefreshToken(ctx context.Context, id ulid.ULID, next account.TokenSlot) error {
	return s.execOne(ctx, "set refresh token", id, `
		UPDATE accounts SET refresh_token_hash = $2, refresh_token_expires_at = $3, updated_at = now()
		WHERE id = $1
	`, next.Hash, next.ExpiresAt)
}

// RotateRefreshToken replaces the refresh slot only while it still holds currentHash.
func (s *Store) RotateRefreshToken(ctx context.Context, id ulid.ULID, currentHash string, next account.TokenSlot) (bool, error) {
	return s.swap(ctx, "rotate refresh token", `
		UPDATE accounts SET refresh_token_hash = $3, refresh_token_expires_at = $4, updated_at = now()
		WHERE id = $1 AND refresh_token_hash = $2
	`, id.String(), currentHash, next.Hash, next.ExpiresAt)
}

// RevokeRefreshToken clears the refresh slot only while it still holds presentedHash.
func (s *Store) RevokeRefreshToken(ctx context.Context, id ulid.ULID, presentedHash string) (bool, error) {
	return s.swap(ctx, "revoke refresh token", `
		UPDATE accounts SET refresh_token_hash = NULL, refresh_token_expires_at = NULL, updated_at = now()
		WHERE id = $1 AND refresh_token_hash = $2
	`, id.String(), presentedHash)
}

// MarkEmailVerified sets the verified flag and consumes the verification
// token, provided it is still the stored one.
func (s *Store) MarkEmailVerified(ctx context.Context, id ulid.ULID, presentedHash string) (bool, error) {
	return s.swap(ctx, "mark email verified", `
		UPDATE accounts SET email_verified = TRUE,
			verification_token_hash = NULL, verification_token_expires_at = NULL, updated_at = now()
		WHERE id = $1 AND verification_token_hash = $2
	`, id.String(), presentedHash)
}

// SetPasswordResetToken replaces the stored reset token.
func (s *Store) SetPasswordResetToken(ctx context.Context, id ulid.ULID, next account.TokenSlot) error {
	return s.execOne(ctx, "set reset token", id, `
		UPDATE accounts SET reset_token_hash = $2, reset_token_expires_at = $3, updated_at = now()
		WHERE id = $1
	`, next.Hash, next.ExpiresAt)
}

// ResetPassword stores passwordHash and ends outstanding reset and refresh
// tokens, provided the reset slot still holds presentedHash.
func (s *Store) ResetPassword(ctx context.Context, id ulid.ULID, presentedHash, passwordHash string) (bool, error) {
	return s.swap(ctx, "reset password", `
		UPDATE accounts SET password_hash = $3,
			reset_token_hash = NULL, reset_token_expires_at = NULL,
			refresh_token_hash = NULL, refresh_token_expires_at = NULL,
			updated_at = now()
		WHERE id = $1 AND reset_token_hash = $2
	`, id.String(), presentedHash, passwordHash)
}

// UpdatePasswordHash stores a new credential hash.
func (s *Store) UpdatePasswordHash(ctx context.Context, id ulid.ULID, hash string) error {
	return s.execOne(ctx, "update password hash", id, `
		UPDATE accounts SET password_hash = $2, updated_at = now()
		WHERE id = $1
	`, hash)
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	if err := s.pool.Ping(ctx); err != nil {
		return oops.Code(account.CodeStoreUnavailable).
			With("operation", "ping").
			With("reason", err.Error()).
			Wrap(account.ErrStoreUnavailable)
	}
	return nil
}

// execOne runs a single-row UPDATE keyed by id as its first parameter.
func (s *Store) execOne(ctx context.Context, operation string, id ulid.ULID, query string, args ...any) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, query, append([]any{id.String()}, args...)...)
	if err != nil {
		return wrapErr(ctx, err, "ACCOUNT_UPDATE_FAILED", operation)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code(account.CodeNotFound).
			With("operation", operation).
			With("id", id.String()).
			Wrap(account.ErrNotFound)
	}
	return nil
}

// swap runs a single-row UPDATE guarded by the stored token digest and
// reports whether it matched.
func (s *Store) swap(ctx context.Context, operation, query string, args ...any) (bool, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, wrapErr(ctx, err, "ACCOUNT_UPDATE_FAILED", operation)
	}
	return tag.RowsAffected() > 0, nil
}

// slotArgs maps an empty slot to SQL NULLs.
func slotArgs(slot account.TokenSlot) (*string, *time.Time) {
	if slot.Empty() {
		return nil, nil
	}
	return &slot.Hash, &slot.ExpiresAt
}

func scanAccount(row pgx.Row) (*account.Account, error) {
	var (
		a                               account.Account
		idStr                           string
		refreshHash, verifyHash, resetHash *string
		refreshExp, verifyExp, resetExp *time.Time
	)

	err := row.Scan(
		&idStr, &a.Email, &a.Username, &a.PasswordHash, &a.IsActive, &a.Role, &a.EmailVerified,
		&refreshHash, &refreshExp,
		&verifyHash, &verifyExp,
		&resetHash, &resetExp,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers classify pgx.ErrNoRows
	}

	a.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_CORRUPT_ID").With("id", idStr).Wrap(err)
	}
	a.RefreshToken = slot(refreshHash, refreshExp)
	a.VerificationToken = slot(verifyHash, verifyExp)
	a.ResetToken = slot(resetHash, resetExp)
	return &a, nil
}

func slot(hash *string, expiresAt *time.Time) account.TokenSlot {
	if hash == nil {
		return account.TokenSlot{}
	}
	s := account.TokenSlot{Hash: *hash}
	if expiresAt != nil {
		s.ExpiresAt = *expiresAt
	}
	return s
}
