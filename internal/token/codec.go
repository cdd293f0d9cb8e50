// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package token issues and verifies signed, expiring, purpose-tagged tokens.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Sentinel errors returned by Verify, in the order the checks run.
var (
	ErrInvalidSignature = errors.New("token signature invalid")
	ErrWrongPurpose     = errors.New("token purpose mismatch")
	ErrExpired          = errors.New("token expired")
)

// Error codes attached to Verify failures.
const (
	CodeInvalidSignature = "TOKEN_INVALID_SIGNATURE"
	CodeWrongPurpose     = "TOKEN_WRONG_PURPOSE"
	CodeExpired          = "TOKEN_EXPIRED"
)

const signingAlgorithm = "HS256"

// Claims is the verified content of a token.
type Claims struct {
	ID        string
	Subject   string
	Purpose   Purpose
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// wireClaims is the JWT payload.
type wireClaims struct {
	jwt.RegisteredClaims
	Type string `json:"type"`
}

// Codec signs and verifies tokens with a process-wide HMAC secret.
// A Codec is immutable after construction and safe for concurrent use.
type Codec struct {
	secret []byte
	now    func() time.Time
	parser *jwt.Parser
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock replaces the wall clock used for issuing and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCodec creates a Codec bound to secret. The secret is copied.
func NewCodec(secret []byte, opts ...Option) (*Codec, error) {
	if len(secret) == 0 {
		return nil, oops.Code("TOKEN_SECRET_MISSING").Errorf("token secret cannot be empty")
	}

	c := &Codec{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
		// Expiry is checked in Verify, after the purpose.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{signingAlgorithm}),
			jwt.WithoutClaimsValidation(),
		),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue creates a token for subject using the purpose's fixed lifetime.
func (c *Codec) Issue(purpose Purpose, subject string) (string, time.Time, error) {
	return c.IssueWithTTL(purpose, subject, purpose.TTL())
}

// IssueWithTTL creates a token for subject that expires after ttl.
// The returned expiry is the one embedded in the token.
func (c *Codec) IssueWithTTL(purpose Purpose, subject string, ttl time.Duration) (string, time.Time, error) {
	if !purpose.Valid() {
		return "", time.Time{}, oops.Code("TOKEN_ISSUE_FAILED").
			With("purpose", string(purpose)).
			Errorf("unknown token purpose")
	}
	if subject == "" {
		return "", time.Time{}, oops.Code("TOKEN_ISSUE_FAILED").
			With("purpose", string(purpose)).
			Errorf("token subject cannot be empty")
	}
	if ttl <= 0 {
		return "", time.Time{}, oops.Code("TOKEN_ISSUE_FAILED").
			With("purpose", string(purpose)).
			With("ttl", ttl.String()).
			Errorf("token lifetime must be positive")
	}

	now := c.now()
	issuedAt := jwt.NewNumericDate(now)
	expiresAt := jwt.NewNumericDate(now.Add(ttl))

	claims := wireClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.Make().String(),
			Subject:   subject,
			IssuedAt:  issuedAt,
			ExpiresAt: expiresAt,
		},
		Type: string(purpose),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, oops.Code("TOKEN_ISSUE_FAILED").
			With("operation", "sign token").
			With("purpose", string(purpose)).
			Wrap(err)
	}
	return signed, expiresAt.Time, nil
}

// Verify checks, in order, the token's signature, that its purpose equals
// expected, and that it has not expired.
func (c *Codec) Verify(tokenString string, expected Purpose) (*Claims, error) {
	var wc wireClaims
	_, err := c.parser.ParseWithClaims(tokenString, &wc, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, oops.Code(CodeInvalidSignature).
			With("expected_purpose", string(expected)).
			With("reason", err.Error()).
			Wrap(ErrInvalidSignature)
	}

	if Purpose(wc.Type) != expected {
		return nil, oops.Code(CodeWrongPurpose).
			With("expected_purpose", string(expected)).
			With("purpose", wc.Type).
			Wrap(ErrWrongPurpose)
	}

	if wc.ExpiresAt == nil || wc.Subject == "" {
		return nil, oops.Code(CodeInvalidSignature).
			With("expected_purpose", string(expected)).
			With("reason", "missing required claims").
			Wrap(ErrInvalidSignature)
	}

	if c.now().After(wc.ExpiresAt.Time) {
		return nil, oops.Code(CodeExpired).
			With("purpose", wc.Type).
			With("expired_at", wc.ExpiresAt.Time).
			Wrap(ErrExpired)
	}

	claims := &Claims{
		ID:        wc.ID,
		Subject:   wc.Subject,
		Purpose:   Purpose(wc.Type),
		ExpiresAt: wc.ExpiresAt.Time,
	}
	if wc.IssuedAt != nil {
		claims.IssuedAt = wc.IssuedAt.Time
	}
	return claims, nil
}
