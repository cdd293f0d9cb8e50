// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package token_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authd/internal/token"
	"github.com/holomush/authd/pkg/errutil"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newCodec(t *testing.T) (*token.Codec, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)}
	codec, err := token.NewCodec(testSecret, token.WithClock(clock.Now))
	require.NoError(t, err)
	return codec, clock
}

func TestNewCodec(t *testing.T) {
	t.Run("rejects empty secret", func(t *testing.T) {
		_, err := token.NewCodec(nil)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "TOKEN_SECRET_MISSING")
	})

	t.Run("copies the secret", func(t *testing.T) {
		secret := []byte("mutable-secret")
		codec, err := token.NewCodec(secret)
		require.NoError(t, err)

		tok, _, err := codec.Issue(token.PurposeAccess, "subject")
		require.NoError(t, err)

		secret[0] = 'X'
		_, err = codec.Verify(tok, token.PurposeAccess)
		assert.NoError(t, err)
	})
}

func TestCodec_IssueAndVerify(t *testing.T) {
	tests := []struct {
		purpose token.Purpose
		ttl     time.Duration
	}{
		{token.PurposeAccess, 30 * time.Minute},
		{token.PurposeRefresh, 7 * 24 * time.Hour},
		{token.PurposeEmailVerification, 24 * time.Hour},
		{token.PurposePasswordReset, 60 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(string(tt.purpose), func(t *testing.T) {
			codec, clock := newCodec(t)

			tok, exp, err := codec.Issue(tt.purpose, "01HZXYZ")
			require.NoError(t, err)
			assert.Equal(t, clock.now.Add(tt.ttl), exp.UTC())

			claims, err := codec.Verify(tok, tt.purpose)
			require.NoError(t, err)
			assert.Equal(t, "01HZXYZ", claims.Subject)
			assert.Equal(t, tt.purpose, claims.Purpose)
			assert.Equal(t, clock.now, claims.IssuedAt.UTC())
			assert.Equal(t, exp.UTC(), claims.ExpiresAt.UTC())
			assert.NotEmpty(t, claims.ID)
		})
	}
}

func TestCodec_Issue(t *testing.T) {
	codec, _ := newCodec(t)

	t.Run("tokens issued in the same instant are distinct", func(t *testing.T) {
		a, _, err := codec.Issue(token.PurposeRefresh, "user")
		require.NoError(t, err)
		b, _, err := codec.Issue(token.PurposeRefresh, "user")
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("rejects unknown purpose", func(t *testing.T) {
		_, _, err := codec.Issue(token.Purpose("admin"), "user")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "TOKEN_ISSUE_FAILED")
	})

	t.Run("rejects empty subject", func(t *testing.T) {
		_, _, err := codec.Issue(token.PurposeAccess, "")
		require.Error(t, err)
	})

	t.Run("rejects non-positive ttl", func(t *testing.T) {
		_, _, err := codec.IssueWithTTL(token.PurposeAccess, "user", 0)
		require.Error(t, err)
	})

	t.Run("custom ttl", func(t *testing.T) {
		codec, clock := newCodec(t)
		_, exp, err := codec.IssueWithTTL(token.PurposeAccess, "user", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, clock.now.Add(time.Minute), exp.UTC())
	})
}

func TestCodec_Verify(t *testing.T) {
	t.Run("wrong purpose", func(t *testing.T) {
		codec, _ := newCodec(t)
		tok, _, err := codec.Issue(token.PurposeAccess, "user")
		require.NoError(t, err)

		_, err = codec.Verify(tok, token.PurposeRefresh)
		require.ErrorIs(t, err, token.ErrWrongPurpose)
		errutil.AssertErrorCode(t, err, token.CodeWrongPurpose)
	})

	t.Run("valid exactly at expiry", func(t *testing.T) {
		codec, clock := newCodec(t)
		tok, _, err := codec.Issue(token.PurposePasswordReset, "user")
		require.NoError(t, err)

		clock.Advance(token.PasswordResetTTL)
		_, err = codec.Verify(tok, token.PurposePasswordReset)
		assert.NoError(t, err)
	})

	t.Run("expired after ttl", func(t *testing.T) {
		codec, clock := newCodec(t)
		tok, _, err := codec.Issue(token.PurposePasswordReset, "user")
		require.NoError(t, err)

		clock.Advance(token.PasswordResetTTL + time.Second)
		_, err = codec.Verify(tok, token.PurposePasswordReset)
		require.ErrorIs(t, err, token.ErrExpired)
		errutil.AssertErrorCode(t, err, token.CodeExpired)
	})

	t.Run("purpose is checked before expiry", func(t *testing.T) {
		codec, clock := newCodec(t)
		tok, _, err := codec.Issue(token.PurposeAccess, "user")
		require.NoError(t, err)

		clock.Advance(time.Hour)
		_, err = codec.Verify(tok, token.PurposeRefresh)
		assert.ErrorIs(t, err, token.ErrWrongPurpose)
	})

	t.Run("tampered payload", func(t *testing.T) {
		codec, _ := newCodec(t)
		tok, _, err := codec.Issue(token.PurposeAccess, "user")
		require.NoError(t, err)

		parts := strings.Split(tok, ".")
		require.Len(t, parts, 3)
		other, _, err := codec.Issue(token.PurposeAccess, "someone-else")
		require.NoError(t, err)
		forged := strings.Join([]string{parts[0], strings.Split(other, ".")[1], parts[2]}, ".")

		_, err = codec.Verify(forged, token.PurposeAccess)
		require.ErrorIs(t, err, token.ErrInvalidSignature)
		errutil.AssertErrorCode(t, err, token.CodeInvalidSignature)
	})

	t.Run("signed with a different secret", func(t *testing.T) {
		codec, _ := newCodec(t)
		other, err := token.NewCodec([]byte("another-secret"))
		require.NoError(t, err)
		tok, _, err := other.Issue(token.PurposeAccess, "user")
		require.NoError(t, err)

		_, err = codec.Verify(tok, token.PurposeAccess)
		assert.ErrorIs(t, err, token.ErrInvalidSignature)
	})

	t.Run("signature is checked before expiry", func(t *testing.T) {
		codec, clock := newCodec(t)
		other, err := token.NewCodec([]byte("another-secret"), token.WithClock(clock.Now))
		require.NoError(t, err)
		tok, _, err := other.Issue(token.PurposeAccess, "user")
		require.NoError(t, err)

		clock.Advance(24 * time.Hour)
		_, err = codec.Verify(tok, token.PurposeAccess)
		assert.ErrorIs(t, err, token.ErrInvalidSignature)
	})

	t.Run("rejects alg none", func(t *testing.T) {
		codec, clock := newCodec(t)
		claims := jwt.MapClaims{
			"sub":  "user",
			"type": "access",
			"exp":  clock.now.Add(time.Hour).Unix(),
		}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = codec.Verify(tok, token.PurposeAccess)
		assert.ErrorIs(t, err, token.ErrInvalidSignature)
	})

	t.Run("rejects other HMAC algorithms", func(t *testing.T) {
		codec, clock := newCodec(t)
		claims := jwt.MapClaims{
			"sub":  "user",
			"type": "access",
			"exp":  clock.now.Add(time.Hour).Unix(),
		}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(testSecret)
		require.NoError(t, err)

		_, err = codec.Verify(tok, token.PurposeAccess)
		assert.ErrorIs(t, err, token.ErrInvalidSignature)
	})

	t.Run("rejects token without expiry", func(t *testing.T) {
		codec, _ := newCodec(t)
		claims := jwt.MapClaims{"sub": "user", "type": "access"}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
		require.NoError(t, err)

		_, err = codec.Verify(tok, token.PurposeAccess)
		assert.ErrorIs(t, err, token.ErrInvalidSignature)
	})

	t.Run("garbage input", func(t *testing.T) {
		codec, _ := newCodec(t)
		for _, input := range []string{"", "abc", "a.b.c", "....."} {
			_, err := codec.Verify(input, token.PurposeAccess)
			assert.ErrorIs(t, err, token.ErrInvalidSignature, "input %q", input)
		}
	})
}

func TestPurpose_TTL(t *testing.T) {
	assert.Equal(t, 30*time.Minute, token.PurposeAccess.TTL())
	assert.Equal(t, 7*24*time.Hour, token.PurposeRefresh.TTL())
	assert.Equal(t, 24*time.Hour, token.PurposeEmailVerification.TTL())
	assert.Equal(t, time.Hour, token.PurposePasswordReset.TTL())
	assert.Zero(t, token.Purpose("bogus").TTL())
	assert.False(t, token.Purpose("bogus").Valid())
}
