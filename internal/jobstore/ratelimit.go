package jobstore

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RateLimiter enforces a cap on audits per (chainID, agentID) within a
// sliding window. RedisRateLimiter backs the Redis store; MemoryRateLimiter
// backs MemoryStore, so the limit applies regardless of storage backend.
type RateLimiter interface {
	Allow(ctx context.Context, chainID uint64, agentID string) (bool, error)
	Remaining(ctx context.Context, chainID uint64, agentID string) (int, error)
}

// MemoryRateLimiter enforces a sliding-window cap on audits per
// (chainID, agentID) using a mutex-guarded map of request timestamps.
type MemoryRateLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	limit  int
	window time.Duration
}

// NewMemoryRateLimiter builds a limiter allowing limit audits per window for
// a given (chainID, agentID) pair.
func NewMemoryRateLimiter(limit int, window time.Duration) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
	}
}

func rateLimitMapKey(chainID uint64, agentID string) string {
	return fmt.Sprintf("%d:%s", chainID, agentID)
}

// prune drops timestamps older than the window's start from key's history and
// returns the surviving slice. Callers must hold r.mu.
func (r *MemoryRateLimiter) prune(key string, now time.Time) []time.Time {
	cutoff := now.Add(-r.window)
	hits := r.hits[key]
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	r.hits[key] = kept
	return kept
}

// Allow records a request for (chainID, agentID) and reports whether it
// stays within the configured limit.
func (r *MemoryRateLimiter) Allow(ctx context.Context, chainID uint64, agentID string) (bool, error) {
	key := rateLimitMapKey(chainID, agentID)
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	hits := r.prune(key, now)
	if len(hits) >= r.limit {
		return false, nil
	}
	r.hits[key] = append(hits, now)
	return true, nil
}

// Remaining reports how many audits (chainID, agentID) can still perform in
// the current window, for surfacing in an error message.
func (r *MemoryRateLimiter) Remaining(ctx context.Context, chainID uint64, agentID string) (int, error) {
	key := rateLimitMapKey(chainID, agentID)

	r.mu.Lock()
	defer r.mu.Unlock()
	hits := r.prune(key, time.Now())
	remaining := r.limit - len(hits)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
