// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"

	"github.com/samber/oops"

	"github.com/holomush/authd/internal/account"
	"github.com/holomush/authd/pkg/errutil"
)

// Login authenticates by email (identifier contains "@") or username and
// issues a new session. Unknown identifiers, wrong passwords and inactive
// accounts all fail with the same INVALID_CREDENTIALS error, and the password
// is always hashed so response time does not reveal which check failed.
func (s *Service) Login(ctx context.Context, identifier, password string) (*Session, error) {
	session, err := s.login(ctx, identifier, password)
	return session, s.finish(FlowLogin, err)
}

func (s *Service) login(ctx context.Context, identifier, password string) (*Session, error) {
	acct, err := s.lookup(ctx, identifier)
	if err != nil && !errors.Is(err, account.ErrNotFound) {
		return nil, oops.With("operation", "find account for login").Wrap(err)
	}

	targetHash := dummyPasswordHash
	if acct != nil {
		targetHash = acct.PasswordHash
	}
	valid := s.hasher.Verify(password, targetHash)

	if acct == nil || !valid || !acct.IsActive {
		return nil, invalidCredentials()
	}

	// Checked after the password so unverified accounts cannot be probed.
	if s.cfg.RequireVerifiedEmail && !acct.EmailVerified {
		return nil, oops.Code(CodeEmailNotVerified).With("account_id", acct.ID.String()).Wrap(ErrEmailNotVerified)
	}

	if s.hasher.NeedsUpgrade(acct.PasswordHash) {
		s.upgradeHash(ctx, acct, password)
	}

	session, err := s.issueSession(ctx, acct)
	if err != nil {
		return nil, err
	}

	s.logger.Info("login succeeded", "account_id", acct.ID.String())
	return session, nil
}

func (s *Service) lookup(ctx context.Context, identifier string) (*account.Account, error) {
	if account.IsEmailIdentifier(identifier) {
		return s.store.FindByEmail(ctx, NormalizeEmail(identifier))
	}
	return s.store.FindByUsername(ctx, identifier)
}

// upgradeHash rehashes a legacy password with argon2id. Login succeeds even
// if the upgrade cannot be stored.
func (s *Service) upgradeHash(ctx context.Context, acct *account.Account, password string) {
	hash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.store.UpdatePasswordHash(ctx, acct.ID, hash)
	}
	if err != nil {
		errutil.LogWarn(s.logger, "password hash upgrade failed", err, "account_id", acct.ID.String())
		return
	}
	acct.PasswordHash = hash
	s.logger.Info("password hash upgraded", "account_id", acct.ID.String())
}
