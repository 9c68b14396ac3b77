// Package ratelimit throttles requesters to one accepted message per cooldown.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter tracks the last accepted message per requester
type Limiter struct {
	mu       sync.Mutex
	last     map[string]time.Time
	cooldown time.Duration
}

// New creates a limiter; a zero cooldown accepts everything
func New(cooldown time.Duration) *Limiter {
	return &Limiter{
		last:     make(map[string]time.Time),
		cooldown: cooldown,
	}
}

// Allow reports whether id may send at now, recording now when it may
func (l *Limiter) Allow(id string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if last, ok := l.last[id]; ok && now.Sub(last) < l.cooldown {
		return false
	}
	l.last[id] = now
	return true
}

// Tracked returns how many requesters have been seen
func (l *Limiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.last)
}
