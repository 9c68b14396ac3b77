package llm

import (
	"net/http"
	"testing"
	"time"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog: %v", err)
	}
	if c.Len() != 6 {
		t.Fatalf("Len() = %d, want 6", c.Len())
	}
	if c.First().Name != "gemini-1.5-pro" {
		t.Errorf("First() = %s", c.First().Name)
	}
	ca := c.CatchAll()
	if ca.Name != "mistral-tiny" || ca.Family != FamilyChat || ca.Credential != "MISTRAL_API_KEY" {
		t.Errorf("catch-all = %+v", ca)
	}
	ps := c.Providers()
	if ps[len(ps)-1] != ca {
		t.Error("catch-all is not last")
	}
	for _, p := range ps[:len(ps)-1] {
		if p.Family != FamilyGenerate || p.Credential != "GEMINI_API_KEY" {
			t.Errorf("unexpected regular provider %+v", p)
		}
	}
}

func TestNewCatalogValidation(t *testing.T) {
	ok := Provider{Name: "x", Family: FamilyGenerate, Endpoint: "http://x"}
	ca := Provider{Name: "z", Family: FamilyChat, Endpoint: "http://z", CatchAll: true}

	tests := []struct {
		name string
		list []Provider
	}{
		{"empty", nil},
		{"no catch-all", []Provider{ok}},
		{"catch-all not last", []Provider{ca, ok}},
		{"two catch-alls", []Provider{ca, {Name: "z2", Family: FamilyChat, Endpoint: "http://z2", CatchAll: true}}},
		{"duplicate", []Provider{ok, ok, ca}},
		{"no name", []Provider{{Family: FamilyChat, Endpoint: "http://n"}, ca}},
		{"no endpoint", []Provider{{Name: "n", Family: FamilyChat}, ca}},
		{"bad family", []Provider{{Name: "n", Family: "smoke", Endpoint: "http://n"}, ca}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewCatalog(tt.list); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := NewCatalog([]Provider{ok, ca}); err != nil {
		t.Errorf("valid catalog rejected: %v", err)
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		errStatus string
		errMsg    string
		match     string
		want      ErrorKind
	}{
		{"429", http.StatusTooManyRequests, "", "", "", KindQuotaExceeded},
		{"400 any", http.StatusBadRequest, "INVALID_ARGUMENT", "bad", "", KindUnsupported},
		{"400 status match", http.StatusBadRequest, "FAILED_PRECONDITION", "", "failed_precondition", KindUnsupported},
		{"400 message match", http.StatusBadRequest, "", "User location is not supported", "location is not supported", KindUnsupported},
		{"400 no match", http.StatusBadRequest, "INVALID_ARGUMENT", "bad", "FAILED_PRECONDITION", KindTransport},
		{"500", http.StatusInternalServerError, "", "", "", KindTransport},
		{"401", http.StatusUnauthorized, "", "", "", KindTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyStatus(tt.status, tt.errStatus, tt.errMsg, tt.match); got != tt.want {
				t.Errorf("ClassifyStatus() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLimitTrackerIdempotentRecovery(t *testing.T) {
	c := testCatalog(t, "http://unused")
	sched := newFakeScheduler()
	lt := NewLimitTracker(c, sched)

	lt.MarkUnavailable("a", time.Minute)
	lt.MarkUnavailable("a", time.Minute)
	lt.MarkUnavailable("a", 2*time.Minute)

	if sched.count() != 1 {
		t.Fatalf("pending tasks = %d, want 1", sched.count())
	}
	if sched.delays["recover:a"] != time.Minute {
		t.Errorf("delay = %v, want original 1m", sched.delays["recover:a"])
	}
	if lt.IsAvailable("a") {
		t.Error("a should be unavailable")
	}

	sched.fire(t, "recover:a")
	if !lt.IsAvailable("a") {
		t.Error("a should be available after recovery")
	}

	// a fresh mark after recovery schedules again
	lt.MarkUnavailable("a", time.Minute)
	if !sched.Pending("recover:a") {
		t.Error("new recovery not scheduled")
	}
}

func TestLimitTrackerCatchAllAlwaysAvailable(t *testing.T) {
	c := testCatalog(t, "http://unused")
	sched := newFakeScheduler()
	lt := NewLimitTracker(c, sched)

	lt.MarkUnavailable("d", time.Minute)
	lt.MarkAllUnavailableExceptCatchAll(time.Minute)
	lt.MarkAllUnavailableExceptCatchAll(time.Minute)

	if !lt.IsAvailable("d") {
		t.Error("catch-all unavailable")
	}
	if sched.Pending("recover:d") {
		t.Error("recovery scheduled for catch-all")
	}
	if sched.count() != 1 || !lt.BulkPending() {
		t.Errorf("expected exactly the bulk task, have %d", sched.count())
	}

	snap := lt.Snapshot()
	if len(snap) != 4 {
		t.Fatalf("snapshot len = %d", len(snap))
	}
	for _, st := range snap {
		if st.CatchAll != st.Available {
			t.Errorf("state %+v", st)
		}
		if !st.Available && st.Until.IsZero() {
			t.Errorf("%s unavailable without deadline", st.Name)
		}
	}
}

func TestLimitTrackerForceAvailable(t *testing.T) {
	sched := newFakeScheduler()
	lt := NewLimitTracker(testCatalog(t, "http://unused"), sched)
	lt.MarkUnavailable("b", time.Minute)
	lt.ForceAvailable("b")
	if !lt.IsAvailable("b") {
		t.Error("ForceAvailable did not restore b")
	}
	if sched.Pending("recover:b") {
		t.Error("pending recovery not cancelled")
	}

	// a new cooldown gets its own task
	lt.MarkUnavailable("b", 2*time.Minute)
	if !sched.Pending("recover:b") || sched.delays["recover:b"] != 2*time.Minute {
		t.Errorf("recovery after force = %v", sched.delays["recover:b"])
	}
}

func TestLimitTrackerStoppedSchedulerLeavesProvidersAvailable(t *testing.T) {
	sched := newFakeScheduler()
	lt := NewLimitTracker(testCatalog(t, "http://unused"), sched)
	sched.stop()

	lt.MarkUnavailable("a", time.Minute)
	if !lt.IsAvailable("a") {
		t.Error("a marked unavailable without a recovery task")
	}
	lt.MarkAllUnavailableExceptCatchAll(time.Minute)
	for _, st := range lt.Snapshot() {
		if !st.Available {
			t.Errorf("%s unavailable without a recovery task", st.Name)
		}
	}
}
