// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/holomush/authd/internal/auth"
	"github.com/holomush/authd/pkg/errutil"
)

func TestHashPassword(t *testing.T) {
	hasher := auth.NewArgon2idHasher()

	t.Run("produces valid hash", func(t *testing.T) {
		hash, err := hasher.Hash("password123")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=1,p=4$"))
	})

	t.Run("same password produces different hashes (salt)", func(t *testing.T) {
		hash1, err := hasher.Hash("samepassword1")
		require.NoError(t, err)
		hash2, err := hasher.Hash("samepassword1")
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)
		assert.True(t, hasher.Verify("samepassword1", hash1))
		assert.True(t, hasher.Verify("samepassword1", hash2))
	})

	t.Run("rejects empty password", func(t *testing.T) {
		_, err := hasher.Hash("")
		errutil.AssertErrorCode(t, err, "AUTH_EMPTY_PASSWORD")
	})
}

func TestVerifyPassword(t *testing.T) {
	hasher := auth.NewArgon2idHasher()

	hash, err := hasher.Hash("correctpassword1")
	require.NoError(t, err)

	t.Run("correct password verifies", func(t *testing.T) {
		assert.True(t, hasher.Verify("correctpassword1", hash))
	})

	t.Run("incorrect password fails", func(t *testing.T) {
		assert.False(t, hasher.Verify("wrongpassword1", hash))
	})

	malformed := map[string]string{
		"not a hash":          "not-a-valid-hash",
		"empty":               "",
		"wrong algorithm":     "$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		"invalid version":     "$argon2id$vXX$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		"unknown version":     "$argon2id$v=16$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		"invalid parameters":  "$argon2id$v=19$invalid$c2FsdA$aGFzaA",
		"invalid salt base64": "$argon2id$v=19$m=65536,t=1,p=4$!!!invalid!!!$aGFzaA",
		"invalid hash base64": "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$!!!invalid!!!",
		"threads overflow":    "$argon2id$v=19$m=65536,t=1,p=256$c2FsdA$aGFzaA",
		"zero threads":        "$argon2id$v=19$m=65536,t=1,p=0$c2FsdA$aGFzaA",
		"memory too large":    "$argon2id$v=19$m=4294967295,t=1,p=4$c2FsdA$aGFzaA",
		"truncated bcrypt":    "$2a$10$short",
		"empty key":           "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$",
		"extra segments":      hash + "$extra",
	}
	for name, bad := range malformed {
		t.Run(name+" never matches", func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.False(t, hasher.Verify("correctpassword1", bad))
			})
		})
	}
}

func TestVerifyLegacyBcrypt(t *testing.T) {
	hasher := auth.NewArgon2idHasher()

	legacy, err := bcrypt.GenerateFromPassword([]byte("legacypass1"), bcrypt.MinCost)
	require.NoError(t, err)

	t.Run("verifies bcrypt hashes", func(t *testing.T) {
		assert.True(t, hasher.Verify("legacypass1", string(legacy)))
		assert.False(t, hasher.Verify("otherpass1", string(legacy)))
	})

	t.Run("detects bcrypt hash needing upgrade", func(t *testing.T) {
		assert.True(t, hasher.NeedsUpgrade(string(legacy)))
	})

	t.Run("argon2id hash does not need upgrade", func(t *testing.T) {
		hash, err := hasher.Hash("password1")
		require.NoError(t, err)
		assert.False(t, hasher.NeedsUpgrade(hash))
	})
}
