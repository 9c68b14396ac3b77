// Package gateway admits user messages and relays them to the provider
// controller, either through the worker queue or synchronously.
package gateway

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/roelfdiedericks/relaybot/internal/llm"
	. "github.com/roelfdiedericks/relaybot/internal/logging"
	. "github.com/roelfdiedericks/relaybot/internal/metrics"
	"github.com/roelfdiedericks/relaybot/internal/queue"
	"github.com/roelfdiedericks/relaybot/internal/ratelimit"
)

const (
	throttledNotice = "Слишком быстро! Подождите секунду."
	queueFullNotice = "Бот перегружен, попробуйте позже."
)

// Outcome of admitting one message
type Outcome string

const (
	OutcomeQueued        Outcome = "queued"
	OutcomeServed        Outcome = "served" // handled synchronously, queue disabled
	OutcomeThrottled     Outcome = "throttled"
	OutcomeQueueFull     Outcome = "queue_full"
	OutcomeConfigMissing Outcome = "config_missing"
)

// Options configures admission
type Options struct {
	QueueEnabled     bool
	Workers          int
	Capacity         int // 0 = unbounded
	ThrottleCooldown time.Duration
	Debug            bool
}

// Gateway is the admission layer between the chat transport and the controller
type Gateway struct {
	controller *llm.Controller
	limiter    *ratelimit.Limiter
	queue      *queue.Queue
	pool       *queue.Pool
	debug      atomic.Bool
	startTime  time.Time
	now        func() time.Time
}

// New creates a gateway. Workers are not started until Start.
func New(controller *llm.Controller, opts Options) *Gateway {
	g := &Gateway{
		controller: controller,
		limiter:    ratelimit.New(opts.ThrottleCooldown),
		startTime:  time.Now(),
		now:        time.Now,
	}
	g.debug.Store(opts.Debug)

	if opts.QueueEnabled {
		g.queue = queue.New(opts.Capacity)
		g.pool = queue.NewPool(g.queue, g.handle, queue.PoolConfig{
			Workers:     opts.Workers,
			FormatError: llm.FormatErrorForUser,
		})
	}
	return g
}

// Start launches the worker pool, if queueing is enabled
func (g *Gateway) Start(ctx context.Context) {
	if g.pool != nil {
		g.pool.Start(ctx)
	}
}

// Stop drains the worker pool
func (g *Gateway) Stop(timeout time.Duration) {
	if g.pool != nil {
		g.pool.Stop(timeout)
	}
}

func (g *Gateway) Controller() *llm.Controller {
	return g.controller
}

// SetDebug toggles delivery of per-request log lines
func (g *Gateway) SetDebug(on bool) {
	if g.debug.Swap(on) != on {
		L_info("gateway: debug delivery changed", "enabled", on)
	}
}

func (g *Gateway) Debug() bool {
	return g.debug.Load()
}

// Submit admits one message. Rejections are answered on sink immediately.
func (g *Gateway) Submit(ctx context.Context, requester, text string, sink queue.Sink) Outcome {
	outcome := g.admit(ctx, requester, text, sink)
	MetricOutcome("gateway", "submit", string(outcome))
	return outcome
}

func (g *Gateway) admit(ctx context.Context, requester, text string, sink queue.Sink) Outcome {
	if !g.controller.Configured() {
		g.notify(sink, llm.NoCredentialsNotice())
		return OutcomeConfigMissing
	}
	if !g.limiter.Allow(requester, g.now()) {
		L_debug("gateway: throttled", "requester", requester)
		g.notify(sink, throttledNotice)
		return OutcomeThrottled
	}

	r := queue.NewRequest(requester, text, sink)
	if g.queue == nil {
		if err := sink.SendTyping(); err != nil {
			L_debug("gateway: typing action failed", "error", err)
		}
		if err := g.handle(ctx, r); err != nil {
			g.notify(sink, llm.FormatErrorForUser(err))
		}
		return OutcomeServed
	}

	if !g.queue.Enqueue(r) {
		L_warn("gateway: queue full", "requester", requester, "capacity", g.queue.Capacity())
		g.notify(sink, queueFullNotice)
		return OutcomeQueueFull
	}
	MetricSet("queue", "depth", int64(g.queue.Len()))
	L_debug("gateway: queued", "request", r.ID, "requester", requester, "depth", g.queue.Len())
	return OutcomeQueued
}

// handle runs one request through the controller and delivers the reply,
// followed by the captured log lines when debug is on.
func (g *Gateway) handle(ctx context.Context, r *queue.Request) error {
	var capture *Capture
	if g.debug.Load() {
		capture = NewCapture()
		ctx = WithCapture(ctx, capture)
	}

	stop := MetricStartAuto("gateway", "reply")
	start := time.Now()
	reply := g.controller.Reply(ctx, r.Text)
	stop()
	L_elapsed(start, "gateway: request done", "request", r.ID)

	if err := r.Sink.Send(reply); err != nil {
		return err
	}
	if capture == nil {
		return nil
	}
	if lines := capture.Lines(); len(lines) > 0 {
		return r.Sink.Send("debug:\n" + strings.Join(lines, "\n"))
	}
	return nil
}

func (g *Gateway) notify(sink queue.Sink, text string) {
	if err := sink.Send(text); err != nil {
		L_warn("gateway: notice delivery failed", "error", err)
	}
}
