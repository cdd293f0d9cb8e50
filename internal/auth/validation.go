// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/samber/oops"
)

// Username and password constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
	MinPasswordLength = 8
	MaxEmailLength    = 254
)

var usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{3,30}$`)

// ValidateEmail checks the shape of an email address.
func ValidateEmail(email string) error {
	err := validation.Validate(email,
		validation.Required,
		validation.Length(3, MaxEmailLength),
		is.Email,
	)
	if err != nil {
		return oops.Code(CodeValidationFailed).
			With("field", "email").
			With("reason", err.Error()).
			Wrap(ErrValidation)
	}
	return nil
}

// ValidateUsername enforces 3 to 30 characters drawn from letters, digits,
// underscore and hyphen.
func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return oops.Code(CodeInvalidUsername).
			With("min", MinUsernameLength).
			With("max", MaxUsernameLength).
			Wrap(ErrInvalidUsername)
	}
	return nil
}

// ValidatePassword requires at least MinPasswordLength characters including
// one ASCII letter and one ASCII digit.
func ValidatePassword(password string) error {
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z':
			hasLetter = true
		case '0' <= r && r <= '9':
			hasDigit = true
		}
	}
	if len([]rune(password)) < MinPasswordLength || !hasLetter || !hasDigit {
		return oops.Code(CodeWeakPassword).
			With("min_length", MinPasswordLength).
			Wrap(ErrWeakPassword)
	}
	return nil
}

// ValidateRegistration checks every registration field before any store access.
func ValidateRegistration(email, username, password string) error {
	if err := ValidateEmail(email); err != nil {
		return err
	}
	if err := ValidateUsername(username); err != nil {
		return err
	}
	return ValidatePassword(password)
}

// NormalizeEmail trims surrounding whitespace. Case is preserved for display;
// lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(email)
}
