package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// killSwitchTTL bounds how stale a cached flag may be before a refresh.
const killSwitchTTL = 10 * time.Second

// KillSwitch is a process-wide read-through cache of the global disable
// flag. Reads within the TTL window are served from memory; a refresh
// failure fails open so availability wins over enforcement for at most one
// TTL window.
type KillSwitch struct {
	load func(ctx context.Context) (bool, string, error)
	now  func() time.Time
	ttl  time.Duration

	mu        sync.Mutex
	active    bool
	reason    string
	fetchedAt time.Time
}

// NewKillSwitch creates a KillSwitch backed by the given loader.
func NewKillSwitch(load func(ctx context.Context) (bool, string, error)) *KillSwitch {
	return &KillSwitch{
		load: load,
		now:  time.Now,
		ttl:  killSwitchTTL,
	}
}

// NewKillSwitchWithClock creates a KillSwitch with an injected clock, for
// deterministic tests.
func NewKillSwitchWithClock(load func(ctx context.Context) (bool, string, error), now func() time.Time) *KillSwitch {
	ks := NewKillSwitch(load)
	ks.now = now
	return ks
}

// IsBlocked reports whether the service is disabled, and why.
func (k *KillSwitch) IsBlocked(ctx context.Context) (bool, string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	if k.fetchedAt.IsZero() || now.Sub(k.fetchedAt) > k.ttl {
		active, reason, err := k.load(ctx)
		if err != nil {
			// Fail open: an unreadable flag must not take the service down.
			slog.Warn("kill switch refresh failed", "error", err)
			return false, ""
		}
		k.active = active
		k.reason = reason
		k.fetchedAt = now
	}

	return k.active, k.reason
}
