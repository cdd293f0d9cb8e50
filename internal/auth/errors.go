// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// Error codes produced by the auth flows. Store codes (DUPLICATE_EMAIL,
// DUPLICATE_USERNAME, STORE_UNAVAILABLE) pass through unchanged.
const (
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeInvalidUsername     = "INVALID_USERNAME"
	CodeWeakPassword        = "WEAK_PASSWORD"
	CodePasswordMismatch    = "PASSWORD_MISMATCH"
	CodeInvalidToken        = "INVALID_TOKEN"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	CodeEmailNotVerified    = "EMAIL_NOT_VERIFIED"
	CodeInternal            = "AUTH_INTERNAL"
)

// Sentinel errors wrapped by the coded errors above.
var (
	ErrValidation          = errors.New("invalid input")
	ErrInvalidUsername     = errors.New("invalid username")
	ErrWeakPassword        = errors.New("password too weak")
	ErrPasswordMismatch    = errors.New("passwords do not match")
	ErrInvalidToken        = errors.New("invalid or expired token")
	ErrInvalidCredentials  = errors.New("invalid username or password")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrEmailNotVerified    = errors.New("email not verified")
)

// invalidCredentials is the single failure returned by Login for unknown
// identifiers, wrong passwords and inactive accounts alike.
func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Wrap(ErrInvalidCredentials)
}

func invalidToken(reason string) error {
	return oops.Code(CodeInvalidToken).With("reason", reason).Wrap(ErrInvalidToken)
}

func invalidRefreshToken(reason string) error {
	return oops.Code(CodeInvalidRefreshToken).With("reason", reason).Wrap(ErrInvalidRefreshToken)
}

// PasswordMismatch is returned when a password and its confirmation differ.
func PasswordMismatch() error {
	return oops.Code(CodePasswordMismatch).Wrap(ErrPasswordMismatch)
}
