// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory provides an in-process account.Store for development and tests.
package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authd/internal/account"
)

// Store is a mutex-guarded, map-backed account.Store.
type Store struct {
	mu         sync.RWMutex
	byID       map[ulid.ULID]*account.Account
	byEmail    map[string]ulid.ULID
	byUsername map[string]ulid.ULID
	now        func() time.Time
}

var _ account.Store = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		byID:       make(map[ulid.ULID]*account.Account),
		byEmail:    make(map[string]ulid.ULID),
		byUsername: make(map[string]ulid.ULID),
		now:        time.Now,
	}
}

// checkContext makes a cancelled or expired caller context behave like a
// backend timeout.
func checkContext(ctx context.Context, operation string) error {
	if err := ctx.Err(); err != nil {
		return oops.Code(account.CodeStoreUnavailable).
			With("operation", operation).
			With("reason", err.Error()).
			Wrap(account.ErrStoreUnavailable)
	}
	return nil
}

func notFound(key string, value any) error {
	return oops.Code(account.CodeNotFound).With(key, value).Wrap(account.ErrNotFound)
}

// Create stores a new account.
func (s *Store) Create(ctx context.Context, in account.NewAccount) (*account.Account, error) {
	if err := checkContext(ctx, "create account"); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	emailKey := strings.ToLower(in.Email)
	if _, exists := s.byEmail[emailKey]; exists {
		return nil, oops.Code(account.CodeDuplicateEmail).Wrap(account.ErrDuplicateEmail)
	}
	if _, exists := s.byUsername[in.Username]; exists {
		return nil, oops.Code(account.CodeDuplicateUsername).
			With("username", in.Username).
			Wrap(account.ErrDuplicateUsername)
	}

	now := s.now().UTC()
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
	s.byID[acct.ID] = acct
	s.byEmail[emailKey] = acct.ID
	s.byUsername[in.Username] = acct.ID

	out := *acct
	return &out, nil
}

// FindByID returns a copy of the account with the given id.
func (s *Store) FindByID(ctx context.Context, id ulid.ULID) (*account.Account, error) {
	if err := checkContext(ctx, "find account by id"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.byID[id]
	if !ok {
		return nil, notFound("id", id.String())
	}
	out := *acct
	return &out, nil
}

// FindByEmail returns a copy of the account with the given email, ignoring case.
func (s *Store) FindByEmail(ctx context.Context, email string) (*account.Account, error) {
	if err := checkContext(ctx, "find account by email"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, notFound("email", email)
	}
	out := *s.byID[id]
	return &out, nil
}

// FindByUsername returns a copy of the account with the given username.
func (s *Store) FindByUsername(ctx context.Context, username string) (*account.Account, error) {
	if err := checkContext(ctx, "find account by username"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[username]
	if !ok {
		return nil, notFound("username", username)
	}
	out := *s.byID[id]
	return &out, nil
}

// update applies fn to the stored account under the write lock.
func (s *Store) update(ctx context.Context, operation string, id ulid.ULID, fn func(*account.Account)) error {
	if err := checkContext(ctx, operation); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.byID[id]
	if !ok {
		return notFound("id", id.String())
	}
	fn(acct)
	acct.UpdatedAt = s.now().UTC()
	return nil
}

// SetRefreshToken replaces the stored refresh token.
func (s *Store) SetRefreshToken(ctx context.Context, id ulid.ULID, next account.TokenSlot) error {
	return s.update(ctx, "set refresh token", id, func(a *account.Account) {
		a.RefreshToken = next
	})
}

// swap applies fn only while the slot chosen by pick holds presentedHash.
func (s *Store) swap(
	ctx context.Context,
	operation string,
	id ulid.ULID,
	presentedHash string,
	pick func(*account.Account) account.TokenSlot,
	fn func(*account.Account),
) (bool, error) {
	var swapped bool
	err := s.update(ctx, operation, id, func(a *account.Account) {
		current := pick(a)
		if presentedHash == "" || current.Empty() || current.Hash != presentedHash {
			return
		}
		fn(a)
		swapped = true
	})
	if errors.Is(err, account.ErrNotFound) {
		return false, nil
	}
	return swapped, err
}

func refreshSlot(a *account.Account) account.TokenSlot      { return a.RefreshToken }
func verificationSlot(a *account.Account) account.TokenSlot { return a.VerificationToken }
func resetSlot(a *account.Account) account.TokenSlot        { return a.ResetToken }

// RotateRefreshToken replaces the refresh slot if it still holds currentHash.
func (s *Store) RotateRefreshToken(ctx context.Context, id ulid.ULID, currentHash string, next account.TokenSlot) (bool, error) {
	return s.swap(ctx, "rotate refresh token", id, currentHash, refreshSlot, func(a *account.Account) {
		a.RefreshToken = next
	})
}

// RevokeRefreshToken clears the refresh slot if it still holds presentedHash.
func (s *Store) RevokeRefreshToken(ctx context.Context, id ulid.ULID, presentedHash string) (bool, error) {
	return s.swap(ctx, "revoke refresh token", id, presentedHash, refreshSlot, func(a *account.Account) {
		a.RefreshToken = account.TokenSlot{}
	})
}

// MarkEmailVerified sets the verified flag and consumes the verification token.
func (s *Store) MarkEmailVerified(ctx context.Context, id ulid.ULID, presentedHash string) (bool, error) {
	return s.swap(ctx, "mark email verified", id, presentedHash, verificationSlot, func(a *account.Account) {
		a.EmailVerified = true
		a.VerificationToken = account.TokenSlot{}
	})
}

// SetPasswordResetToken replaces the stored reset token.
func (s *Store) SetPasswordResetToken(ctx context.Context, id ulid.ULID, next account.TokenSlot) error {
	return s.update(ctx, "set reset token", id, func(a *account.Account) {
		a.ResetToken = next
	})
}

// ResetPassword stores passwordHash and ends outstanding reset and refresh
// tokens, provided the reset slot still holds presentedHash.
func (s *Store) ResetPassword(ctx context.Context, id ulid.ULID, presentedHash, passwordHash string) (bool, error) {
	return s.swap(ctx, "reset password", id, presentedHash, resetSlot, func(a *account.Account) {
		a.PasswordHash = passwordHash
		a.ResetToken = account.TokenSlot{}
		a.RefreshToken = account.TokenSlot{}
	})
}

// UpdatePasswordHash stores a new credential hash.
func (s *Store) UpdatePasswordHash(ctx context.Context, id ulid.ULID, hash string) error {
	return s.update(ctx, "update password hash", id, func(a *account.Account) {
		a.PasswordHash = hash
	})
}

// Ping always succeeds unless ctx is done.
func (s *Store) Ping(ctx context.Context) error {
	return checkContext(ctx, "ping")
}

// SetActive toggles the active flag. Used by tests and administrative tooling.
func (s *Store) SetActive(ctx context.Context, id ulid.ULID, active bool) error {
	return s.update(ctx, "set active", id, func(a *account.Account) {
		a.IsActive = active
	})
}
