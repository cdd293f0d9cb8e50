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

// VerifyEmail confirms the address the verification token was issued for.
// The token must still be the one stored on the account; it is cleared on
// success so it cannot be used twice.
func (s *Service) VerifyEmail(ctx context.Context, tok string) error {
	return s.finish(FlowVerifyEmail, s.verifyEmail(ctx, tok))
}

func (s *Service) verifyEmail(ctx context.Context, tok string) error {
	claims, err := s.tokens.Verify(tok, token.PurposeEmailVerification)
	if err != nil {
		return invalidToken(tokenFailure(err))
	}

	acct, err := s.store.FindByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return invalidToken("unknown subject")
		}
		return oops.With("operation", "find account for verification").Wrap(err)
	}

	if !acct.VerificationToken.Matches(tok, s.now()) {
		return invalidToken("not the stored token")
	}

	verified, err := s.store.MarkEmailVerified(ctx, acct.ID, account.HashToken(tok))
	if err != nil {
		return oops.With("operation", "mark email verified").With("account_id", acct.ID.String()).Wrap(err)
	}
	if !verified {
		return invalidToken("already consumed")
	}

	s.logger.Info("email verified", "account_id", acct.ID.String())
	return nil
}

// tokenFailure names the codec check that rejected a token, for logs only.
func tokenFailure(err error) string {
	switch {
	case errors.Is(err, token.ErrExpired):
		return "expired"
	case errors.Is(err, token.ErrWrongPurpose):
		return "wrong purpose"
	default:
		return "bad signature"
	}
}
