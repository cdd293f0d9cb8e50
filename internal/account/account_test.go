// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/holomush/authd/internal/account"
)

func TestTokenSlot_Matches(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	slot := account.NewTokenSlot("abc", now.Add(time.Minute))

	tests := []struct {
		name      string
		slot      account.TokenSlot
		presented string
		at        time.Time
		want      bool
	}{
		{"match before expiry", slot, "abc", now, true},
		{"match at expiry", slot, "abc", now.Add(time.Minute), true},
		{"expired", slot, "abc", now.Add(time.Minute + time.Nanosecond), false},
		{"different value", slot, "abd", now, false},
		{"empty presented", slot, "", now, false},
		{"empty slot", account.TokenSlot{}, "abc", now, false},
		{"empty slot and presented", account.TokenSlot{}, "", now, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.slot.Matches(tt.presented, tt.at))
		})
	}
}

func TestTokenSlot_StoresDigest(t *testing.T) {
	slot := account.NewTokenSlot("bearer-token", time.Now())
	assert.NotContains(t, slot.Hash, "bearer-token")
	assert.Len(t, slot.Hash, 64)
	assert.Equal(t, account.HashToken("bearer-token"), slot.Hash)
	assert.NotEqual(t, account.HashToken("bearer-tokem"), slot.Hash)
}

func TestIsEmailIdentifier(t *testing.T) {
	assert.True(t, account.IsEmailIdentifier("a@x.com"))
	assert.False(t, account.IsEmailIdentifier("alice"))
}
