package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKillSwitchCachesWithinTTL(t *testing.T) {
	loads := 0
	active := false
	load := func(ctx context.Context) (bool, string, error) {
		loads++
		return active, "maintenance", nil
	}

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ks := NewKillSwitchWithClock(load, func() time.Time { return now })

	blocked, _ := ks.IsBlocked(context.Background())
	assert.False(t, blocked)
	assert.Equal(t, 1, loads)

	// The flag flips in the store, but the cache is still fresh.
	active = true
	now = now.Add(5 * time.Second)
	blocked, _ = ks.IsBlocked(context.Background())
	assert.False(t, blocked)
	assert.Equal(t, 1, loads)

	// Past the TTL the flip becomes visible.
	now = now.Add(6 * time.Second)
	blocked, reason := ks.IsBlocked(context.Background())
	assert.True(t, blocked)
	assert.Equal(t, "maintenance", reason)
	assert.Equal(t, 2, loads)
}

func TestKillSwitchFailsOpen(t *testing.T) {
	calls := 0
	load := func(ctx context.Context) (bool, string, error) {
		calls++
		if calls == 1 {
			return true, "maintenance", nil
		}
		return false, "", errors.New("db down")
	}

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ks := NewKillSwitchWithClock(load, func() time.Time { return now })

	blocked, _ := ks.IsBlocked(context.Background())
	assert.True(t, blocked)

	// The refresh fails; requests pass rather than being rejected on a
	// stale or unreadable flag.
	now = now.Add(11 * time.Second)
	blocked, reason := ks.IsBlocked(context.Background())
	assert.False(t, blocked)
	assert.Empty(t, reason)

	// The failed refresh did not overwrite the cached timestamp, so the
	// next read tries the store again.
	assert.Equal(t, 2, calls)
	ks.IsBlocked(context.Background())
	assert.Equal(t, 3, calls)
}
