package llm

import (
	"sync"
	"time"

	. "github.com/roelfdiedericks/relaybot/internal/logging"
)

// Scheduler runs keyed one-shot tasks. After returns false when key already
// has a pending task or the scheduler no longer accepts tasks; Pending tells
// the two apart.
type Scheduler interface {
	After(key string, delay time.Duration, fn func()) bool
	Pending(key string) bool
	Cancel(key string)
}

const bulkRecoveryKey = "recover:all"

func recoveryKey(name string) string {
	return "recover:" + name
}

// ProviderState is a point-in-time view of one provider's availability
type ProviderState struct {
	Name      string
	CatchAll  bool
	Available bool
	Until     time.Time // when recovery is due; zero when available
}

// LimitTracker tracks per-provider availability and schedules recovery.
// The catch-all provider is always available.
type LimitTracker struct {
	mu          sync.Mutex
	catalog     *Catalog
	unavailable map[string]time.Time
	sched       Scheduler
	now         func() time.Time
}

// NewLimitTracker creates a tracker with every provider available
func NewLimitTracker(catalog *Catalog, sched Scheduler) *LimitTracker {
	return &LimitTracker{
		catalog:     catalog,
		unavailable: make(map[string]time.Time),
		sched:       sched,
		now:         time.Now,
	}
}

func (t *LimitTracker) IsAvailable(name string) bool {
	if cp := t.catalog.CatchAll(); cp != nil && cp.Name == name {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, down := t.unavailable[name]
	return !down
}

// MarkUnavailable takes a provider out of rotation for d. A provider that
// already has a recovery pending keeps its original deadline.
func (t *LimitTracker) MarkUnavailable(name string, d time.Duration) {
	if cp := t.catalog.CatchAll(); cp != nil && cp.Name == name {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := recoveryKey(name)
	if t.sched.After(key, d, func() { t.recover(name) }) {
		t.unavailable[name] = t.now().Add(d)
		L_info("llm: provider unavailable", "provider", name, "recoverIn", d)
		return
	}
	if !t.sched.Pending(key) {
		// scheduler stopped: an unavailable provider must have a recovery task
		L_debug("llm: recovery not scheduled, provider left available", "provider", name)
		return
	}
	if _, down := t.unavailable[name]; !down {
		// A bulk recovery brought it back before its own task fired; that
		// task is still outstanding and will restore it again.
		t.unavailable[name] = t.now().Add(d)
	}
	L_debug("llm: recovery already scheduled", "provider", name)
}

// MarkAllUnavailableExceptCatchAll takes every regular provider out of
// rotation and schedules one bulk recovery after d.
func (t *LimitTracker) MarkAllUnavailableExceptCatchAll(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	until := t.now().Add(d)
	scheduled := t.sched.After(bulkRecoveryKey, d, t.recoverAll)
	if !scheduled && !t.sched.Pending(bulkRecoveryKey) {
		L_debug("llm: bulk recovery not scheduled, providers left available")
		return
	}
	for _, p := range t.catalog.Providers() {
		if p.CatchAll {
			continue
		}
		if cur, down := t.unavailable[p.Name]; !down || (scheduled && until.After(cur)) {
			t.unavailable[p.Name] = until
		}
	}
	if scheduled {
		L_warn("llm: all providers except catch-all unavailable", "recoverIn", d)
	} else {
		L_debug("llm: bulk recovery already scheduled")
	}
}

// ForceAvailable puts a provider back into rotation immediately and drops
// its pending recovery
func (t *LimitTracker) ForceAvailable(name string) {
	t.sched.Cancel(recoveryKey(name))
	t.recover(name)
}

// BulkPending reports whether a bulk recovery is outstanding
func (t *LimitTracker) BulkPending() bool {
	return t.sched.Pending(bulkRecoveryKey)
}

// Snapshot returns the state of every provider in catalog order
func (t *LimitTracker) Snapshot() []ProviderState {
	t.mu.Lock()
	defer t.mu.Unlock()

	providers := t.catalog.Providers()
	out := make([]ProviderState, 0, len(providers))
	for _, p := range providers {
		until, down := t.unavailable[p.Name]
		if p.CatchAll {
			down = false
		}
		st := ProviderState{Name: p.Name, CatchAll: p.CatchAll, Available: !down}
		if down {
			st.Until = until
		}
		out = append(out, st)
	}
	return out
}

func (t *LimitTracker) recover(name string) {
	t.mu.Lock()
	_, down := t.unavailable[name]
	delete(t.unavailable, name)
	t.mu.Unlock()
	if down {
		L_info("llm: provider recovered", "provider", name)
	}
}

func (t *LimitTracker) recoverAll() {
	t.mu.Lock()
	n := len(t.unavailable)
	clear(t.unavailable)
	t.mu.Unlock()
	L_info("llm: bulk recovery", "restored", n)
}
