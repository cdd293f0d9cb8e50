// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/authd/internal/account"
	"github.com/holomush/authd/internal/observability"
	"github.com/holomush/authd/internal/token"
	"github.com/holomush/authd/pkg/errutil"
)

// Flow names used for metrics and logs.
const (
	FlowRegister             = "register"
	FlowVerifyEmail          = "verify_email"
	FlowRequestPasswordReset = "request_password_reset"
	FlowResetPassword        = "reset_password"
	FlowLogin                = "login"
	FlowRefresh              = "refresh"
	FlowLogout               = "logout"
	FlowAuthenticate         = "authenticate"
)

// dummyPasswordHash is verified when the login identifier is unknown so the
// response time does not reveal whether the account exists. It never matches.
//
//nolint:gosec // G101: intentionally fake hash, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Mailer delivers transactional email. Implementations must return quickly;
// delivery happens in the background and failures are not reported back.
type Mailer interface {
	SendVerification(ctx context.Context, email, token string)
	SendPasswordReset(ctx context.Context, email, token string)
}

// Config holds flow policy.
type Config struct {
	// RequireVerifiedEmail rejects logins from accounts that have not
	// confirmed their email address.
	RequireVerifiedEmail bool

	// Now overrides the clock used for stored-token expiry checks.
	Now func() time.Time
}

// Session is the token pair handed out by Login and RefreshSession.
type Session struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Service orchestrates registration, verification, password reset and
// session issuance over an account store.
type Service struct {
	cfg    Config
	store  account.Store
	tokens *token.Codec
	hasher PasswordHasher
	mailer Mailer
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a Service that logs through slog.Default.
func NewService(cfg Config, store account.Store, tokens *token.Codec, hasher PasswordHasher, mailer Mailer) (*Service, error) {
	return NewServiceWithLogger(cfg, store, tokens, hasher, mailer, slog.Default())
}

// NewServiceWithLogger creates a Service. All collaborators are required.
func NewServiceWithLogger(
	cfg Config,
	store account.Store,
	tokens *token.Codec,
	hasher PasswordHasher,
	mailer Mailer,
	logger *slog.Logger,
) (*Service, error) {
	switch {
	case store == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("account store is required")
	case tokens == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("token codec is required")
	case hasher == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("password hasher is required")
	case mailer == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("mailer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		cfg:    cfg,
		store:  store,
		tokens: tokens,
		hasher: hasher,
		mailer: mailer,
		logger: logger,
		now:    now,
	}, nil
}

// finish records the flow outcome and logs failures that are not ordinary
// client mistakes.
func (s *Service) finish(flow string, err error) error {
	if err == nil {
		observability.RecordFlow(flow, "success")
		return nil
	}
	code := errutil.Code(err)
	if code == "" {
		code = CodeInternal
	}
	observability.RecordFlow(flow, code)
	if !isClientError(code) {
		errutil.LogError(s.logger, "auth flow failed", err, "flow", flow)
	}
	return err
}

func isClientError(code string) bool {
	switch code {
	case CodeValidationFailed, CodeInvalidUsername, CodeWeakPassword, CodePasswordMismatch,
		CodeInvalidToken, CodeInvalidCredentials, CodeInvalidRefreshToken, CodeEmailNotVerified,
		account.CodeDuplicateEmail, account.CodeDuplicateUsername:
		return true
	}
	return false
}

// issueSession mints an access/refresh pair for acct and persists the refresh
// token, replacing any previous one.
func (s *Service) issueSession(ctx context.Context, acct *account.Account) (*Session, error) {
	session, err := s.mintSession(acct)
	if err != nil {
		return nil, err
	}
	next := account.NewTokenSlot(session.RefreshToken, session.RefreshExpiresAt)
	if err := s.store.SetRefreshToken(ctx, acct.ID, next); err != nil {
		return nil, oops.With("operation", "store refresh token").With("account_id", acct.ID.String()).Wrap(err)
	}
	return session, nil
}

func (s *Service) mintSession(acct *account.Account) (*Session, error) {
	subject := acct.ID.String()
	access, accessExp, err := s.tokens.Issue(token.PurposeAccess, subject)
	if err != nil {
		return nil, oops.With("operation", "issue access token").Wrap(err)
	}
	refresh, refreshExp, err := s.tokens.Issue(token.PurposeRefresh, subject)
	if err != nil {
		return nil, oops.With("operation", "issue refresh token").Wrap(err)
	}
	return &Session{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}
