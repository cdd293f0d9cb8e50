// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package account defines the persisted user account and its storage contract.
package account

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// DefaultRole is assigned to every newly registered account.
const DefaultRole = "user"

// HashToken returns the hex SHA-256 digest stored in place of a bearer token.
func HashToken(tok string) string {
	h := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(h[:])
}

// TokenSlot holds the digest of the single outstanding token of one purpose.
// The plaintext token is only ever held by its recipient.
// The zero value is an empty slot.
type TokenSlot struct {
	Hash      string
	ExpiresAt time.Time
}

// NewTokenSlot builds the slot that stores tok until expiresAt.
func NewTokenSlot(tok string, expiresAt time.Time) TokenSlot {
	return TokenSlot{Hash: HashToken(tok), ExpiresAt: expiresAt}
}

// Empty reports whether no token is stored.
func (s TokenSlot) Empty() bool {
	return s.Hash == ""
}

// Matches reports whether presented hashes to the stored digest and the
// stored expiry has not passed at now.
func (s TokenSlot) Matches(presented string, now time.Time) bool {
	if s.Empty() || presented == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(s.Hash), []byte(HashToken(presented))) != 1 {
		return false
	}
	return !now.After(s.ExpiresAt)
}

// Account is a registered user.
type Account struct {
	ID            ulid.ULID
	Email         string
	Username      string
	PasswordHash  string
	IsActive      bool
	Role          string
	EmailVerified bool

	RefreshToken      TokenSlot
	VerificationToken TokenSlot
	ResetToken        TokenSlot

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAccount is the input to Store.Create.
type NewAccount struct {
	Email        string
	Username     string
	PasswordHash string
	// Verification is stored with the account so the row never exists
	// without its verification token.
	Verification TokenSlot
}

// IsEmailIdentifier reports whether a login identifier should be resolved by email.
func IsEmailIdentifier(identifier string) bool {
	return strings.Contains(identifier, "@")
}
