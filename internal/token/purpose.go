// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package token

import "time"

// Purpose tags a token with the single flow it may be used for.
type Purpose string

// Token purposes.
const (
	PurposeAccess            Purpose = "access"
	PurposeRefresh           Purpose = "refresh"
	PurposeEmailVerification Purpose = "email_verification"
	PurposePasswordReset     Purpose = "password_reset"
)

// Fixed lifetimes per purpose.
const (
	AccessTTL            = 30 * time.Minute
	RefreshTTL           = 7 * 24 * time.Hour
	EmailVerificationTTL = 24 * time.Hour
	PasswordResetTTL     = 60 * time.Minute
)

// TTL returns the default lifetime for the purpose, or zero if the purpose is unknown.
func (p Purpose) TTL() time.Duration {
	switch p {
	case PurposeAccess:
		return AccessTTL
	case PurposeRefresh:
		return RefreshTTL
	case PurposeEmailVerification:
		return EmailVerificationTTL
	case PurposePasswordReset:
		return PasswordResetTTL
	default:
		return 0
	}
}

// Valid reports whether p is one of the known purposes.
func (p Purpose) Valid() bool {
	return p.TTL() > 0
}

func (p Purpose) String() string {
	return string(p)
}
