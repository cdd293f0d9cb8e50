// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/authd/internal/account"
	"github.com/holomush/authd/internal/token"
	"github.com/holomush/authd/pkg/errutil"
)

// RefreshSession exchanges a refresh token for a new session. The presented
// token must be the one currently stored; it is replaced, so a rotated-out
// token can never be used again.
func (s *Service) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	session, err := s.refresh(ctx, refreshToken)
	return session, s.finish(FlowRefresh, err)
}

func (s *Service) refresh(ctx context.Context, refreshToken string) (*Session, error) {
	acct, err := s.resolve(ctx, refreshToken, token.PurposeRefresh, invalidRefreshToken)
	if err != nil {
		return nil, err
	}
	if !acct.IsActive {
		return nil, invalidRefreshToken("inactive account")
	}
	if !acct.RefreshToken.Matches(refreshToken, s.now()) {
		return nil, invalidRefreshToken("not the stored token")
	}

	session, err := s.mintSession(acct)
	if err != nil {
		return nil, err
	}
	next := account.NewTokenSlot(session.RefreshToken, session.RefreshExpiresAt)
	rotated, err := s.store.RotateRefreshToken(ctx, acct.ID, account.HashToken(refreshToken), next)
	if err != nil {
		return nil, oops.With("operation", "rotate refresh token").With("account_id", acct.ID.String()).Wrap(err)
	}
	if !rotated {
		return nil, invalidRefreshToken("already rotated")
	}
	return session, nil
}

// Logout revokes the stored refresh token when the presented one is valid and
// still current. It never fails: an absent, forged or already rotated token
// simply leaves server state alone.
func (s *Service) Logout(ctx context.Context, refreshToken string) {
	if refreshToken == "" {
		_ = s.finish(FlowLogout, nil)
		return
	}
	claims, err := s.tokens.Verify(refreshToken, token.PurposeRefresh)
	if err != nil {
		_ = s.finish(FlowLogout, nil)
		return
	}
	id, err := ulid.Parse(claims.Subject)
	if err != nil {
		_ = s.finish(FlowLogout, nil)
		return
	}

	revoked, err := s.store.RevokeRefreshToken(ctx, id, account.HashToken(refreshToken))
	if err != nil {
		errutil.LogWarn(s.logger, "refresh token revocation failed", err, "account_id", claims.Subject)
	}
	if revoked {
		s.logger.Info("session revoked", "account_id", claims.Subject)
	}
	_ = s.finish(FlowLogout, nil)
}

// Authenticate returns the account an access token was issued to.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*account.Account, error) {
	acct, err := s.authenticate(ctx, accessToken)
	return acct, s.finish(FlowAuthenticate, err)
}

func (s *Service) authenticate(ctx context.Context, accessToken string) (*account.Account, error) {
	acct, err := s.resolve(ctx, accessToken, token.PurposeAccess, func(reason string) error {
		return oops.Code(CodeInvalidCredentials).With("reason", reason).Wrap(ErrInvalidCredentials)
	})
	if err != nil {
		return nil, err
	}
	if !acct.IsActive {
		return nil, invalidCredentials()
	}
	return acct, nil
}

// resolve verifies tok for purpose and loads the account named by its
// subject. Rejections are built by reject so each flow reports its own code.
func (s *Service) resolve(
	ctx context.Context,
	tok string,
	purpose token.Purpose,
	reject func(reason string) error,
) (*account.Account, error) {
	if tok == "" {
		return nil, reject("missing")
	}
	claims, err := s.tokens.Verify(tok, purpose)
	if err != nil {
		return nil, reject(tokenFailure(err))
	}
	id, err := ulid.Parse(claims.Subject)
	if err != nil {
		return nil, reject("malformed subject")
	}
	acct, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, reject("unknown subject")
		}
		return nil, oops.With("operation", "find account").With("purpose", purpose.String()).Wrap(err)
	}
	return acct, nil
}
