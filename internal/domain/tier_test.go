package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDailyJobLimit(t *testing.T) {
	tests := []struct {
		tier    Tier
		limit   int
		bounded bool
	}{
		{TierFree, 3, true},
		{TierPlus, 8, true},
		{TierPro, 20, true},
		{TierMax, 40, true},
		{TierEnterprise, 0, false},
		{Tier("UNKNOWN"), 3, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			limit, bounded := tt.tier.DailyJobLimit()
			assert.Equal(t, tt.bounded, bounded)
			if bounded {
				assert.Equal(t, tt.limit, limit)
			}
		})
	}
}

func TestMonthlyCreditLimit(t *testing.T) {
	tests := []struct {
		tier    Tier
		limit   int64
		bounded bool
	}{
		{TierFree, 0, false},
		{TierPlus, 280, true},
		{TierPro, 650, true},
		{TierMax, 1500, true},
		{TierEnterprise, 0, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			limit, bounded := tt.tier.MonthlyCreditLimit()
			assert.Equal(t, tt.bounded, bounded)
			if bounded {
				assert.Equal(t, tt.limit, limit)
			}
		})
	}
}

func TestTierEntitlements(t *testing.T) {
	assert.False(t, TierFree.AllowsRemoteSandbox())
	assert.False(t, TierPlus.AllowsRemoteSandbox())
	assert.True(t, TierPro.AllowsRemoteSandbox())
	assert.True(t, TierMax.AllowsRemoteSandbox())
	assert.True(t, TierEnterprise.AllowsRemoteSandbox())

	assert.False(t, TierPro.UpgradesModelOnDeepFix())
	assert.True(t, TierMax.UpgradesModelOnDeepFix())
	assert.True(t, TierEnterprise.UpgradesModelOnDeepFix())
}

func TestReservationKey(t *testing.T) {
	assert.Equal(t, "u1:j1:phase1", ReservationKey("u1", "j1", 1))
	assert.Equal(t, "u1:j1:phase2", ReservationKey("u1", "j1", 2))
}
