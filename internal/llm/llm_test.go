package llm

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeScheduler records tasks and runs them only when fired
type fakeScheduler struct {
	mu      sync.Mutex
	tasks   map[string]func()
	delays  map[string]time.Duration
	calls   int
	stopped bool
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{tasks: make(map[string]func()), delays: make(map[string]time.Duration)}
}

func (f *fakeScheduler) After(key string, delay time.Duration, fn func()) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.stopped {
		return false
	}
	if _, ok := f.tasks[key]; ok {
		return false
	}
	f.tasks[key] = fn
	f.delays[key] = delay
	return true
}

func (f *fakeScheduler) Pending(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.tasks[key]
	return ok
}

func (f *fakeScheduler) Cancel(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tasks, key)
	delete(f.delays, key)
}

func (f *fakeScheduler) stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	clear(f.tasks)
}

func (f *fakeScheduler) fire(t *testing.T, key string) {
	t.Helper()
	f.mu.Lock()
	fn, ok := f.tasks[key]
	delete(f.tasks, key)
	f.mu.Unlock()
	if !ok {
		t.Fatalf("no task pending for %s", key)
	}
	fn()
}

func (f *fakeScheduler) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

type fakeReply struct {
	status int
	body   string
	delay  time.Duration
}

// backend serves every test provider from one httptest server, routed by path
type backend struct {
	mu      sync.Mutex
	replies map[string]fakeReply
	calls   map[string]int
	headers map[string]http.Header
	bodies  map[string][]byte
	srv     *httptest.Server
}

func newBackend(t *testing.T) *backend {
	b := &backend{
		replies: make(map[string]fakeReply),
		calls:   make(map[string]int),
		headers: make(map[string]http.Header),
		bodies:  make(map[string][]byte),
	}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/")
		body, _ := io.ReadAll(r.Body)

		b.mu.Lock()
		b.calls[name]++
		b.headers[name] = r.Header.Clone()
		b.bodies[name] = body
		reply, ok := b.replies[name]
		b.mu.Unlock()

		if !ok {
			http.Error(w, "no reply configured", http.StatusInternalServerError)
			return
		}
		if reply.delay > 0 {
			select {
			case <-time.After(reply.delay):
			case <-r.Context().Done():
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(reply.status)
		_, _ = w.Write([]byte(reply.body))
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) set(name string, status int, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replies[name] = fakeReply{status: status, body: body}
}

func (b *backend) callCount(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[name]
}

func generateOK(text string) string {
	return `{"candidates":[{"content":{"parts":[{"text":"` + text + `"}],"role":"model"}}]}`
}

func chatOK(text string) string {
	return `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"` + text + `"},"finish_reason":"stop"}]}`
}

const (
	quotaBody        = `{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`
	preconditionBody = `{"error":{"code":400,"message":"User location is not supported for the API use.","status":"FAILED_PRECONDITION"}}`
	badArgumentBody  = `{"error":{"code":400,"message":"Invalid JSON payload","status":"INVALID_ARGUMENT"}}`
)

func testCatalog(t *testing.T, base string) *Catalog {
	t.Helper()
	c, err := NewCatalog([]Provider{
		{Name: "a", Family: FamilyGenerate, Endpoint: base + "/a", Credential: "G_KEY"},
		{Name: "b", Family: FamilyGenerate, Endpoint: base + "/b", Credential: "G_KEY"},
		{Name: "c", Family: FamilyGenerate, Endpoint: base + "/c", Credential: "G_KEY"},
		{Name: "d", Family: FamilyChat, Endpoint: base + "/d", Model: "tiny", Credential: "M_KEY", CatchAll: true},
	})
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	return c
}

func staticCreds(keys map[string]string) CredentialSource {
	return func(key string) string { return keys[key] }
}

var allCreds = staticCreds(map[string]string{"G_KEY": "g-secret", "M_KEY": "m-secret"})

func newTestController(t *testing.T, b *backend, mutate func(*Options)) (*Controller, *fakeScheduler) {
	t.Helper()
	sched := newFakeScheduler()
	opts := Options{
		Catalog:     testCatalog(t, b.srv.URL),
		Credentials: allCreds,
		Scheduler:   sched,
		Timeout:     2 * time.Second,
		Generation:  Generation{Temperature: 0.7, MaxTokens: 1024},
	}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := NewController(opts)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return c, sched
}
