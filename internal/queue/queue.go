// Package queue buffers user requests and runs them on a fixed set of workers.
package queue

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sink delivers text back to the requester
type Sink interface {
	Send(text string) error
	SendTyping() error
}

// Request is one admitted user message, consumed exactly once by a worker
type Request struct {
	ID        string
	Requester string
	Text      string
	Sink      Sink
	QueuedAt  time.Time
}

// NewRequest creates a request with a fresh ID
func NewRequest(requester, text string, sink Sink) *Request {
	return &Request{
		ID:        uuid.NewString(),
		Requester: requester,
		Text:      text,
		Sink:      sink,
		QueuedAt:  time.Now(),
	}
}

// Queue is a FIFO of requests, optionally bounded. Capacity 0 is unbounded.
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []*Request
	capacity int
	closed   bool
}

func New(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	q := &Queue{capacity: capacity}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends r. Returns false when the queue is full or closed.
func (q *Queue) Enqueue(r *Request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	if q.capacity > 0 && len(q.items) >= q.capacity {
		return false
	}
	q.items = append(q.items, r)
	q.cond.Signal()
	return true
}

// Dequeue blocks until a request is available. Returns false once the queue
// is closed and drained.
func (q *Queue) Dequeue() (*Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	r := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return r, true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) Capacity() int {
	return q.capacity
}

// Close stops accepting requests and wakes blocked consumers. Requests
// already queued are still handed out.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
