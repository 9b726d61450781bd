package pairing

import (
	"context"
	"sync"
	"time"
)

// Limiter gates redemption attempts per caller address.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

const (
	limiterMaxEntries      = 10000
	limiterCleanupInterval = time.Minute
	limiterEntryTTL        = 5 * time.Minute
)

type limiterEntry struct {
	timestamps []time.Time
	lastAccess time.Time
}

// MemoryLimiter is a per-process sliding-window limiter. It is the default
// when no Redis is configured; each relay instance then enforces the limit
// independently.
type MemoryLimiter struct {
	limit  int
	window time.Duration

	mu          sync.Mutex
	store       map[string]*limiterEntry
	lastCleanup time.Time

	now func() time.Time
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:       limit,
		window:      window,
		store:       make(map[string]*limiterEntry),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cleanup()

	now := l.now()
	windowStart := now.Add(-l.window)

	entry, exists := l.store[key]
	if !exists {
		entry = &limiterEntry{}
		l.store[key] = entry
	}
	entry.lastAccess = now

	kept := entry.timestamps[:0]
	for _, ts := range entry.timestamps {
		if ts.After(windowStart) {
			kept = append(kept, ts)
		}
	}
	entry.timestamps = kept

	if len(entry.timestamps) >= l.limit {
		return false
	}
	entry.timestamps = append(entry.timestamps, now)
	return true
}

// cleanup bounds the store: stale entries age out, and a hard cap sheds
// arbitrary entries if an attacker rotates addresses faster than the TTL.
func (l *MemoryLimiter) cleanup() {
	now := l.now()
	if now.Sub(l.lastCleanup) < limiterCleanupInterval {
		return
	}
	l.lastCleanup = now

	for key, entry := range l.store {
		if now.Sub(entry.lastAccess) > limiterEntryTTL {
			delete(l.store, key)
		}
	}

	if len(l.store) > limiterMaxEntries {
		shed := len(l.store) / 5
		for key := range l.store {
			delete(l.store, key)
			shed--
			if shed <= 0 {
				break
			}
		}
	}
}
