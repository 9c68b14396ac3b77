package gateway

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/roelfdiedericks/relaybot/internal/llm"
	. "github.com/roelfdiedericks/relaybot/internal/logging"
	"github.com/roelfdiedericks/relaybot/internal/metrics"
)

// Status is a point-in-time view of the relay
type Status struct {
	Active        string
	Providers     []llm.ProviderState
	BulkPending   bool
	QueueEnabled  bool
	QueueDepth    int
	QueueCapacity int
	Workers       int
	Debug         bool
	Uptime        time.Duration
}

func (g *Gateway) Status() Status {
	s := Status{
		Active:      g.controller.Active().Name,
		Providers:   g.controller.Limits().Snapshot(),
		BulkPending: g.controller.Limits().BulkPending(),
		Debug:       g.debug.Load(),
		Uptime:      g.now().Sub(g.startTime),
	}
	if g.queue != nil {
		s.QueueEnabled = true
		s.QueueDepth = g.queue.Len()
		s.QueueCapacity = g.queue.Capacity()
		s.Workers = g.pool.Workers()
	}
	return s
}

// Format renders the status as a chat message
func (s Status) Format(now time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Active model: %s\n", s.Active)
	sb.WriteString("Models:\n")
	for _, p := range s.Providers {
		mark := "✅"
		detail := ""
		if !p.Available {
			mark = "⏸"
			if wait := p.Until.Sub(now); wait > 0 {
				detail = fmt.Sprintf(" (back in %s)", wait.Round(time.Second))
			}
		}
		if p.CatchAll {
			detail += " [catch-all]"
		}
		fmt.Fprintf(&sb, "  %s %s%s\n", mark, p.Name, detail)
	}
	if s.BulkPending {
		sb.WriteString("Bulk recovery pending\n")
	}
	if s.QueueEnabled {
		capacity := "unbounded"
		if s.QueueCapacity > 0 {
			capacity = fmt.Sprint(s.QueueCapacity)
		}
		fmt.Fprintf(&sb, "Queue: %d waiting (capacity %s, %d workers)\n", s.QueueDepth, capacity, s.Workers)
	} else {
		sb.WriteString("Queue: disabled\n")
	}
	fmt.Fprintf(&sb, "Uptime: %s", s.Uptime.Round(time.Second))
	if s.Debug {
		sb.WriteString("\nDebug: on")
	}
	return sb.String()
}

// FormatStats renders counters and outcomes, sorted by path
func FormatStats(snap metrics.Snapshot) string {
	if len(snap.Counters) == 0 && len(snap.Outcomes) == 0 && len(snap.Timings) == 0 {
		return "No statistics yet."
	}

	var sb strings.Builder
	for _, path := range sortedKeys(snap.Counters) {
		fmt.Fprintf(&sb, "%s: %d\n", path, snap.Counters[path])
	}
	for _, path := range sortedKeys(snap.Outcomes) {
		o := snap.Outcomes[path]
		parts := make([]string, 0, len(o.Outcomes))
		for _, name := range sortedKeys(o.Outcomes) {
			parts = append(parts, fmt.Sprintf("%s=%d", name, o.Outcomes[name]))
		}
		fmt.Fprintf(&sb, "%s: %s\n", path, strings.Join(parts, " "))
	}
	for _, path := range sortedKeys(snap.Timings) {
		t := snap.Timings[path]
		fmt.Fprintf(&sb, "%s: n=%d avg=%s max=%s\n", path, t.Count,
			t.Avg().Round(time.Millisecond), t.Max.Round(time.Millisecond))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LogStatus writes a one-line status summary; run periodically from cron
func (g *Gateway) LogStatus() {
	s := g.Status()
	down := make([]string, 0)
	for _, p := range s.Providers {
		if !p.Available {
			down = append(down, p.Name)
		}
	}
	L_info("gateway: status", "active", s.Active, "unavailable", strings.Join(down, ","),
		"queueDepth", s.QueueDepth, "uptime", s.Uptime.Round(time.Second).String())
}
