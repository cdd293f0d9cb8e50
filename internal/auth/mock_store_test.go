// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/holomush/authd/internal/account"
)

// mockStore fails the test on any call that was not set up with On.
type mockStore struct {
	mock.Mock
}

var _ account.Store = (*mockStore)(nil)

func (m *mockStore) account(args mock.Arguments) (*account.Account, error) {
	acct, _ := args.Get(0).(*account.Account)
	return acct, args.Error(1)
}

func (m *mockStore) Create(ctx context.Context, in account.NewAccount) (*account.Account, error) {
	return m.account(m.Called(ctx, in))
}

func (m *mockStore) FindByID(ctx context.Context, id ulid.ULID) (*account.Account, error) {
	return m.account(m.Called(ctx, id))
}

func (m *mockStore) FindByEmail(ctx context.Context, email string) (*account.Account, error) {
	return m.account(m.Called(ctx, email))
}

func (m *mockStore) FindByUsername(ctx context.Context, username string) (*account.Account, error) {
	return m.account(m.Called(ctx, username))
}

func (m *mockStore) SetRefreshToken(ctx context.Context, id ulid.ULID, next account.TokenSlot) error {
	return m.Called(ctx, id, next).Error(0)
}

func (m *mockStore) RotateRefreshToken(ctx context.Context, id ulid.ULID, currentHash string, next account.TokenSlot) (bool, error) {
	args := m.Called(ctx, id, currentHash, next)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) RevokeRefreshToken(ctx context.Context, id ulid.ULID, presentedHash string) (bool, error) {
	args := m.Called(ctx, id, presentedHash)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) MarkEmailVerified(ctx context.Context, id ulid.ULID, presentedHash string) (bool, error) {
	args := m.Called(ctx, id, presentedHash)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) SetPasswordResetToken(ctx context.Context, id ulid.ULID, next account.TokenSlot) error {
	return m.Called(ctx, id, next).Error(0)
}

func (m *mockStore) ResetPassword(ctx context.Context, id ulid.ULID, presentedHash, passwordHash string) (bool, error) {
	args := m.Called(ctx, id, presentedHash, passwordHash)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) UpdatePasswordHash(ctx context.Context, id ulid.ULID, hash string) error {
	return m.Called(ctx, id, hash).Error(0)
}

func (m *mockStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func legacyHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}
