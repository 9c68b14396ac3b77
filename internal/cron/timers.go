package cron

import (
	"sync"
	"time"

	. "github.com/roelfdiedericks/relaybot/internal/logging"
)

// Timers runs keyed one-shot tasks. At most one task per key is pending at a
// time; scheduling a key that is already pending is a no-op.
type Timers struct {
	mu      sync.Mutex
	pending map[string]*time.Timer
	stopped bool
}

// NewTimers creates an empty timer set
func NewTimers() *Timers {
	return &Timers{pending: make(map[string]*time.Timer)}
}

// After schedules fn to run once after delay under key.
// Returns false if key already has a pending task or the set is stopped.
func (t *Timers) After(key string, delay time.Duration, fn func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return false
	}
	if _, ok := t.pending[key]; ok {
		L_trace("cron: timer already pending", "key", key)
		return false
	}

	var tm *time.Timer
	tm = time.AfterFunc(delay, func() {
		t.mu.Lock()
		if t.pending[key] != tm {
			t.mu.Unlock()
			return
		}
		delete(t.pending, key)
		t.mu.Unlock()

		defer func() {
			if r := recover(); r != nil {
				L_error("cron: timer task panicked", "key", key, "panic", r)
			}
		}()
		fn()
	})
	t.pending[key] = tm
	L_debug("cron: timer scheduled", "key", key, "delay", delay)
	return true
}

// Pending reports whether key has a task waiting to run
func (t *Timers) Pending(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[key]
	return ok
}

// Cancel drops the pending task for key. Best effort: a task that already
// started will still finish.
func (t *Timers) Cancel(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tm, ok := t.pending[key]; ok {
		tm.Stop()
		delete(t.pending, key)
	}
}

// Len returns the number of pending tasks
func (t *Timers) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Stop cancels every pending task and refuses new ones
func (t *Timers) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	for key, tm := range t.pending {
		tm.Stop()
		delete(t.pending, key)
	}
}
