package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/roelfdiedericks/relaybot/internal/logging"
	. "github.com/roelfdiedericks/relaybot/internal/metrics"
)

// Handler processes one request and delivers its reply to r.Sink. A returned
// error is formatted and sent to the sink by the pool.
type Handler func(ctx context.Context, r *Request) error

// Pool manages a fixed number of workers draining a Queue
type Pool struct {
	queue       *Queue
	handler     Handler
	formatError func(error) string
	workerCount int
	wg          sync.WaitGroup
}

// PoolConfig contains worker pool configuration
type PoolConfig struct {
	Workers     int
	FormatError func(error) string // renders handler errors for the sink
}

func NewPool(q *Queue, handler Handler, cfg PoolConfig) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.FormatError == nil {
		cfg.FormatError = func(err error) string { return err.Error() }
	}
	return &Pool{
		queue:       q,
		handler:     handler,
		formatError: cfg.FormatError,
		workerCount: cfg.Workers,
	}
}

// Start launches the workers. They run until the queue is closed and drained.
func (p *Pool) Start(ctx context.Context) {
	L_info("queue: starting worker pool", "workers", p.workerCount, "capacity", p.queue.Capacity())
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.work(ctx, id)
		}(i + 1)
	}
}

// Stop closes the queue and waits for workers to finish, up to timeout
func (p *Pool) Stop(timeout time.Duration) {
	p.queue.Close()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		L_info("queue: all workers stopped")
	case <-time.After(timeout):
		L_warn("queue: worker pool shutdown timed out")
	}
}

func (p *Pool) Workers() int {
	return p.workerCount
}

func (p *Pool) work(ctx context.Context, id int) {
	for {
		r, ok := p.queue.Dequeue()
		if !ok {
			L_debug("queue: worker exiting", "worker", id)
			return
		}
		MetricSet("queue", "depth", int64(p.queue.Len()))
		MetricDuration("queue", "wait", time.Since(r.QueuedAt))
		p.process(ctx, id, r)
	}
}

// process handles one request; a panic or error is reported to the sink and
// the worker carries on.
func (p *Pool) process(ctx context.Context, id int, r *Request) {
	defer func() {
		if rec := recover(); rec != nil {
			L_error("queue: handler panicked", "worker", id, "request", r.ID, "panic", rec)
			MetricOutcome("queue", "process", "panic")
			p.deliver(r, p.formatError(fmt.Errorf("internal error: %v", rec)))
		}
	}()

	if err := r.Sink.SendTyping(); err != nil {
		L_debug("queue: typing action failed", "request", r.ID, "error", err)
	}

	L_debug("queue: processing", "worker", id, "request", r.ID, "requester", r.Requester)
	if err := p.handler(ctx, r); err != nil {
		L_warn("queue: request failed", "request", r.ID, "error", err)
		MetricOutcome("queue", "process", "error")
		p.deliver(r, p.formatError(err))
		return
	}
	MetricOutcome("queue", "process", "success")
}

func (p *Pool) deliver(r *Request, text string) {
	if text == "" {
		return
	}
	if err := r.Sink.Send(text); err != nil {
		L_warn("queue: reply delivery failed", "request", r.ID, "error", err)
	}
}
