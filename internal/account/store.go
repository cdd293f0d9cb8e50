// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

// Sentinel errors. Implementations wrap these with oops codes so callers can
// use errors.Is regardless of the backend.
var (
	ErrNotFound          = errors.New("account not found")
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrDuplicateUsername = errors.New("username already taken")
	ErrStoreUnavailable  = errors.New("account store unavailable")
)

// Error codes shared by all Store implementations.
const (
	CodeNotFound          = "ACCOUNT_NOT_FOUND"
	CodeDuplicateEmail    = "DUPLICATE_EMAIL"
	CodeDuplicateUsername = "DUPLICATE_USERNAME"
	CodeStoreUnavailable  = "STORE_UNAVAILABLE"
)

// DefaultQueryTimeout bounds every store call when no timeout is configured.
const DefaultQueryTimeout = 5 * time.Second

// Store persists accounts. Every mutation touches exactly one account and is
// atomic. Token slots hold digests from HashToken, never plaintext tokens.
// Consuming a token is a compare-and-swap on its digest, so a token can be
// redeemed at most once even under concurrent requests.
type Store interface {
	// Create inserts a new active account with the default role and its
	// verification slot in one statement.
	// Returns ErrDuplicateEmail or ErrDuplicateUsername on conflict.
	Create(ctx context.Context, in NewAccount) (*Account, error)

	FindByID(ctx context.Context, id ulid.ULID) (*Account, error)
	// FindByEmail matches case-insensitively.
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByUsername(ctx context.Context, username string) (*Account, error)

	// SetRefreshToken replaces any stored refresh token.
	SetRefreshToken(ctx context.Context, id ulid.ULID, next TokenSlot) error
	// RotateRefreshToken replaces the refresh slot only while it still holds
	// currentHash. Reports whether the swap happened.
	RotateRefreshToken(ctx context.Context, id ulid.ULID, currentHash string, next TokenSlot) (bool, error)
	// RevokeRefreshToken clears the refresh slot only while it still holds
	// presentedHash. Reports whether a token was cleared.
	RevokeRefreshToken(ctx context.Context, id ulid.ULID, presentedHash string) (bool, error)

	// MarkEmailVerified sets the verified flag and clears the verification
	// slot only while it still holds presentedHash.
	MarkEmailVerified(ctx context.Context, id ulid.ULID, presentedHash string) (bool, error)

	// SetPasswordResetToken replaces any stored reset token.
	SetPasswordResetToken(ctx context.Context, id ulid.ULID, next TokenSlot) error
	// ResetPassword stores passwordHash and clears the reset and refresh
	// slots only while the reset slot still holds presentedHash.
	ResetPassword(ctx context.Context, id ulid.ULID, presentedHash, passwordHash string) (bool, error)

	UpdatePasswordHash(ctx context.Context, id ulid.ULID, hash string) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}
