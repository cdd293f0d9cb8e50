// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"

	"github.com/samber/oops"

	"github.com/holomush/authd/internal/account"
	"github.com/holomush/authd/internal/token"
)

// RequestPasswordReset starts a password reset for email. The result is the
// same whether or not the address belongs to an account. Only a failed lookup
// is returned; later failures are logged and swallowed so they cannot reveal
// that the account exists.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	acct, err := s.store.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return s.finish(FlowRequestPasswordReset, nil)
		}
		return s.finish(FlowRequestPasswordReset, oops.With("operation", "find account for reset").Wrap(err))
	}

	if err := s.startReset(ctx, acct); err != nil {
		_ = s.finish(FlowRequestPasswordReset, err)
		return nil
	}
	return s.finish(FlowRequestPasswordReset, nil)
}

func (s *Service) startReset(ctx context.Context, acct *account.Account) error {
	subject := acct.ID.String()
	reset, expiresAt, err := s.tokens.Issue(token.PurposePasswordReset, subject)
	if err != nil {
		return oops.With("operation", "issue reset token").Wrap(err)
	}
	if err := s.store.SetPasswordResetToken(ctx, acct.ID, account.NewTokenSlot(reset, expiresAt)); err != nil {
		return oops.With("operation", "store reset token").With("account_id", subject).Wrap(err)
	}

	s.mailer.SendPasswordReset(context.WithoutCancel(ctx), acct.Email, reset)
	s.logger.Info("password reset requested", "account_id", subject)
	return nil
}

// ResetPassword sets a new password using a reset token. The token is
// single-use, and every outstanding session for the account ends.
func (s *Service) ResetPassword(ctx context.Context, tok, newPassword string) error {
	return s.finish(FlowResetPassword, s.resetPassword(ctx, tok, newPassword))
}

func (s *Service) resetPassword(ctx context.Context, tok, newPassword string) error {
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	acct, err := s.resolve(ctx, tok, token.PurposePasswordReset, invalidToken)
	if err != nil {
		return err
	}

	if !acct.ResetToken.Matches(tok, s.now()) {
		return invalidToken("not the stored token")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.With("operation", "hash password").Wrap(err)
	}

	reset, err := s.store.ResetPassword(ctx, acct.ID, account.HashToken(tok), hash)
	if err != nil {
		return oops.With("operation", "store new password").With("account_id", acct.ID.String()).Wrap(err)
	}
	if !reset {
		return invalidToken("already consumed")
	}

	s.logger.Info("password reset", "account_id", acct.ID.String())
	return nil
}
