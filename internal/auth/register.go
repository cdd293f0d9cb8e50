// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"

	"github.com/samber/oops"

	"github.com/holomush/authd/internal/account"
	"github.com/holomush/authd/internal/token"
)

// Register creates an unverified account and sends its verification email.
// Input is validated before the store is touched. Email delivery problems
// never fail registration.
func (s *Service) Register(ctx context.Context, email, username, password string) (*account.Account, error) {
	acct, err := s.register(ctx, NormalizeEmail(email), username, password)
	return acct, s.finish(FlowRegister, err)
}

func (s *Service) register(ctx context.Context, email, username, password string) (*account.Account, error) {
	if err := ValidateRegistration(email, username, password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.With("operation", "hash password").Wrap(err)
	}

	// The verification token names the email, so it can be issued before the
	// account exists and written in the same insert.
	verification, expiresAt, err := s.tokens.Issue(token.PurposeEmailVerification, email)
	if err != nil {
		return nil, oops.With("operation", "issue verification token").Wrap(err)
	}

	acct, err := s.store.Create(ctx, account.NewAccount{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Verification: account.NewTokenSlot(verification, expiresAt),
	})
	if err != nil {
		return nil, oops.With("operation", "create account").With("username", username).Wrap(err)
	}

	s.mailer.SendVerification(context.WithoutCancel(ctx), acct.Email, verification)

	s.logger.Info("account registered", "account_id", acct.ID.String(), "username", acct.Username)
	return acct, nil
}
