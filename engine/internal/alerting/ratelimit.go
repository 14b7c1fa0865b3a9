// Package alerting drives the alert state machine: suppression, rate limiting,
// rule matching, and timed escalation.
package alerting

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/99souls/anomalyengine/engine/clock"
)

// RateLimiter enforces fixed-window per-minute and per-hour caps on the
// number of alerts a rule may open. Windows reset on expiry rather than
// sliding or token-bucket refilling — race windows at reset are acceptable
// per the alerting design (a handful of extra alerts right at a boundary is
// harmless; starving alerts for a whole window is not).
type RateLimiter struct {
	clock clock.Clock

	mu     sync.Mutex
	shards []*ruleShard
	mask   uint64
}

type ruleShard struct {
	mu    sync.Mutex
	rules map[string]*ruleWindow
}

type ruleWindow struct {
	minuteStart time.Time
	minuteCount int
	hourStart   time.Time
	hourCount   int
}

// NewRateLimiter builds a limiter sharded by rule ID to bound lock
// contention under many concurrently-firing rules.
func NewRateLimiter(c clock.Clock) *RateLimiter {
	if c == nil {
		c = clock.Real()
	}
	const shardCount = 16
	shards := make([]*ruleShard, shardCount)
	for i := range shards {
		shards[i] = &ruleShard{rules: make(map[string]*ruleWindow)}
	}
	return &RateLimiter{clock: c, shards: shards, mask: shardCount - 1}
}

func (l *RateLimiter) shardFor(ruleID string) *ruleShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ruleID))
	return l.shards[uint64(h.Sum32())&l.mask]
}

// Allow reports whether a new alert may be opened for ruleID under the given
// per-minute and per-hour caps. A cap of 0 means unlimited for that window.
func (l *RateLimiter) Allow(ruleID string, perMinute, perHour int) bool {
	shard := l.shardFor(ruleID)
	now := l.clock.Now()

	shard.mu.Lock()
	defer shard.mu.Unlock()

	w := shard.rules[ruleID]
	if w == nil {
		w = &ruleWindow{minuteStart: now, hourStart: now}
		shard.rules[ruleID] = w
	}

	if now.Sub(w.minuteStart) >= time.Minute {
		w.minuteStart = now
		w.minuteCount = 0
	}
	if now.Sub(w.hourStart) >= time.Hour {
		w.hourStart = now
		w.hourCount = 0
	}

	if perMinute > 0 && w.minuteCount >= perMinute {
		return false
	}
	if perHour > 0 && w.hourCount >= perHour {
		return false
	}

	w.minuteCount++
	w.hourCount++
	return true
}

// Reset clears the window state for a rule, e.g. when the rule is deleted.
func (l *RateLimiter) Reset(ruleID string) {
	shard := l.shardFor(ruleID)
	shard.mu.Lock()
	delete(shard.rules, ruleID)
	shard.mu.Unlock()
}
