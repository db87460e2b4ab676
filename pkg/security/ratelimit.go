package security

import (
	"sync"
	"time"
)

// AnonymousTeam is the rate-limit bucket for callers with no resolvable
// team id. It only sees traffic when team isolation is disabled; with
// isolation on, team-less calls are rejected before the limiter runs.
const AnonymousTeam = "anonymous"

type rateWindow struct {
	start time.Time
	count int
}

// RateLimiter is a fixed-window counter per team. Entries are created
// lazily on first use and are independent across teams: one team
// exhausting its budget never affects another.
type RateLimiter struct {
	mu       sync.Mutex
	entries  map[string]*rateWindow
	requests int
	window   time.Duration
	nowFunc  func() time.Time
}

// NewRateLimiter creates a limiter allowing `requests` calls per team in
// each `windowMs` span.
func NewRateLimiter(requests, windowMs int) *RateLimiter {
	return &RateLimiter{
		entries:  make(map[string]*rateWindow),
		requests: requests,
		window:   time.Duration(windowMs) * time.Millisecond,
		nowFunc:  time.Now,
	}
}

// Allow records one call for the team and reports whether it fits the
// current window. The read-and-increment is a single critical section.
func (l *RateLimiter) Allow(teamID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.requests <= 0 {
		return true
	}

	now := l.nowFunc()
	w, ok := l.entries[teamID]
	if !ok || now.Sub(w.start) >= l.window {
		l.entries[teamID] = &rateWindow{start: now, count: 1}
		return 1 <= l.requests
	}

	w.count++
	return w.count <= l.requests
}

// Limit returns the configured per-window request budget.
func (l *RateLimiter) Limit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.requests
}

// Update applies a new budget. Windows already in flight keep their
// counts; the new budget applies from the next Allow.
func (l *RateLimiter) Update(requests, windowMs int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests = requests
	l.window = time.Duration(windowMs) * time.Millisecond
}

// ActiveEntries reports how many team windows currently exist.
func (l *RateLimiter) ActiveEntries() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// SweepExpired drops windows that ended before now. Expired entries are
// semantically reset already; this just returns their memory.
func (l *RateLimiter) SweepExpired(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for teamID, w := range l.entries {
		if now.Sub(w.start) >= l.window {
			delete(l.entries, teamID)
			removed++
		}
	}
	return removed
}
