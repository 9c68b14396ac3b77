package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	. "github.com/roelfdiedericks/relaybot/internal/logging"
	. "github.com/roelfdiedericks/relaybot/internal/metrics"
)

const maxResponseBytes = 1 << 20

// Options configures a Controller. Zero durations fall back to the defaults.
type Options struct {
	Catalog          *Catalog
	Credentials      CredentialSource // nil: process environment
	Scheduler        Scheduler
	HTTPClient       *http.Client
	DumpDir          string // when set (and HTTPClient is nil), failed calls are written here
	Initial          string // initial active provider; "" = first credentialed entry
	QuotaCooldown    time.Duration
	BulkRecovery     time.Duration
	Timeout          time.Duration
	Generation       Generation
	UnsupportedMatch string // gate for treating a 400 as unsupported; "" = any 400
}

// Result is a successful reply plus the switches made while producing it
type Result struct {
	Text     string
	Provider string
	Switches []string
}

// Annotation renders the switch notices that precede the reply text
func (r *Result) Annotation() string {
	var sb strings.Builder
	for _, name := range r.Switches {
		sb.WriteString(switchNotice)
		sb.WriteString(name)
		sb.WriteString("\n")
	}
	return sb.String()
}

// String is the full text delivered to the user
func (r *Result) String() string {
	return r.Annotation() + r.Text
}

// Controller owns the active provider and drives failover between providers
type Controller struct {
	catalog *Catalog
	creds   CredentialSource
	limits  *LimitTracker
	client  *http.Client

	quotaCooldown time.Duration
	bulkRecovery  time.Duration
	timeout       time.Duration
	gen           Generation
	match         string

	active atomic.Pointer[Provider]
}

// NewController validates options and picks the initial active provider
func NewController(opts Options) (*Controller, error) {
	if opts.Catalog == nil {
		return nil, fmt.Errorf("controller: catalog is required")
	}
	if opts.Scheduler == nil {
		return nil, fmt.Errorf("controller: scheduler is required")
	}

	c := &Controller{
		catalog:       opts.Catalog,
		creds:         opts.Credentials,
		limits:        NewLimitTracker(opts.Catalog, opts.Scheduler),
		client:        opts.HTTPClient,
		quotaCooldown: opts.QuotaCooldown,
		bulkRecovery:  opts.BulkRecovery,
		timeout:       opts.Timeout,
		gen:           opts.Generation,
		match:         opts.UnsupportedMatch,
	}
	if c.creds == nil {
		c.creds = os.Getenv
	}
	if c.client == nil {
		c.client = &http.Client{}
		if opts.DumpDir != "" {
			dump, err := NewDumpTransport(opts.DumpDir)
			if err != nil {
				return nil, err
			}
			c.client.Transport = dump
		}
	}
	if c.quotaCooldown <= 0 {
		c.quotaCooldown = 60 * time.Second
	}
	if c.bulkRecovery <= 0 {
		c.bulkRecovery = 60 * time.Second
	}
	if c.timeout <= 0 {
		c.timeout = 10 * time.Second
	}

	initial := c.catalog.First()
	if opts.Initial != "" {
		p, ok := c.catalog.Lookup(opts.Initial)
		if !ok {
			return nil, fmt.Errorf("controller: unknown initial provider %q", opts.Initial)
		}
		initial = p
	} else {
		for _, p := range c.catalog.Providers() {
			if c.hasCredential(p) {
				initial = p
				break
			}
		}
	}
	c.active.Store(initial)
	L_debug("llm: controller ready", "active", initial.Name, "providers", c.catalog.Len())
	return c, nil
}

// Active returns the currently selected provider
func (c *Controller) Active() *Provider {
	return c.active.Load()
}

// Catalog returns the provider catalog
func (c *Controller) Catalog() *Catalog {
	return c.catalog
}

// Limits exposes the availability tracker
func (c *Controller) Limits() *LimitTracker {
	return c.limits
}

// Select force-selects a provider by name. It must exist, have a credential
// (unless it is the catch-all) and currently be available.
func (c *Controller) Select(name string) error {
	p, ok := c.catalog.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown provider %q", name)
	}
	if !p.CatchAll && !c.hasCredential(p) {
		return fmt.Errorf("provider %q has no credential configured", name)
	}
	if !c.limits.IsAvailable(name) {
		return fmt.Errorf("provider %q is temporarily unavailable", name)
	}
	prev := c.active.Swap(p)
	L_info("llm: provider selected", "from", prev.Name, "to", name)
	MetricInc("llm", "select")
	return nil
}

// Resume puts a cooling-down provider back into rotation and selects it
func (c *Controller) Resume(name string) error {
	p, ok := c.catalog.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown provider %q", name)
	}
	if !c.limits.IsAvailable(name) {
		c.limits.ForceAvailable(p.Name)
		L_info("llm: provider resumed early", "provider", name)
	}
	return c.Select(name)
}

// Configured reports whether at least one provider has a credential
func (c *Controller) Configured() bool {
	for _, p := range c.catalog.Providers() {
		if c.hasCredential(p) {
			return true
		}
	}
	return false
}

func (c *Controller) hasCredential(p *Provider) bool {
	return p.Credential != "" && c.creds(p.Credential) != ""
}

// usable: available and credentialed. The catch-all is always tried.
func (c *Controller) usable(p *Provider) bool {
	if p.CatchAll {
		return true
	}
	return c.hasCredential(p) && c.limits.IsAvailable(p.Name)
}

// selectProvider picks the provider for the next attempt. The active provider
// is kept unless it is unusable, already tried in this chain, or the
// catch-all while a regular provider is available again.
func (c *Controller) selectProvider(visited map[string]bool) *Provider {
	cur := c.active.Load()
	if cur != nil && !cur.CatchAll && !visited[cur.Name] && c.usable(cur) {
		return cur
	}
	for _, p := range c.catalog.Providers() {
		if p.CatchAll || visited[p.Name] {
			continue
		}
		if c.usable(p) {
			return p
		}
	}
	if ca := c.catalog.CatchAll(); !visited[ca.Name] {
		return ca
	}
	return nil
}

// Query relays text through the active provider, failing over on quota and
// unsupported-request errors. Each provider is tried at most once per call.
// On error the returned Result still carries the switches made before the
// failure (nil only when nothing was attempted).
func (c *Controller) Query(ctx context.Context, text string) (*Result, error) {
	if !c.Configured() {
		return nil, ErrNoCredentials
	}

	start := time.Now()
	res := &Result{}
	visited := make(map[string]bool, c.catalog.Len())
	var lastErr error

	for range c.catalog.Len() {
		p := c.selectProvider(visited)
		if p == nil {
			break
		}
		visited[p.Name] = true

		if prev := c.active.Swap(p); prev != p {
			res.Switches = append(res.Switches, p.Name)
			L_infoc(ctx, "llm: switched provider", "from", prev.Name, "to", p.Name)
			MetricInc("llm", "switch")
		}

		L_infoc(ctx, "llm: calling", "provider", p.Name)
		reply, err := c.call(ctx, p, text)
		if err == nil {
			res.Text = reply
			res.Provider = p.Name
			MetricOutcome("llm", "query", "success")
			MetricDuration("llm", p.Name, time.Since(start))
			return res, nil
		}
		lastErr = err

		kind := KindOf(err)
		L_warnc(ctx, "llm: call failed", "provider", p.Name, "kind", string(kind), "error", err)
		MetricOutcome("llm", "query", string(kind))

		if p.CatchAll {
			return res, err
		}

		switch kind {
		case KindQuotaExceeded:
			c.limits.MarkUnavailable(p.Name, c.quotaCooldown)
		case KindUnsupported:
			c.limits.MarkAllUnavailableExceptCatchAll(c.bulkRecovery)
		default:
			return res, err
		}
	}

	return res, fmt.Errorf("%w (last: %v)", ErrExhausted, lastErr)
}

// Reply runs Query and renders the outcome as chat text. Switch notices are
// kept in front of an error too.
func (c *Controller) Reply(ctx context.Context, text string) string {
	res, err := c.Query(ctx, text)
	if err != nil {
		if res == nil {
			return FormatErrorForUser(err)
		}
		return res.Annotation() + FormatErrorForUser(err)
	}
	return res.String()
}

// call performs one request against p with the per-call timeout
func (c *Controller) call(ctx context.Context, p *Provider, text string) (string, error) {
	fam, err := FamilyFor(p.Family)
	if err != nil {
		return "", &CallError{Kind: KindTransport, Provider: p.Name, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := fam.BuildRequest(ctx, p, c.creds(p.Credential), text, c.gen)
	if err != nil {
		return "", &CallError{Kind: KindTransport, Provider: p.Name, Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s", c.timeout)
		}
		return "", &CallError{Kind: KindTransport, Provider: p.Name, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", &CallError{Kind: KindTransport, Provider: p.Name, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errStatus, errMessage := fam.ErrorDetail(body)
		detail := errMessage
		if detail == "" {
			detail = truncate(strings.TrimSpace(string(body)), 300)
		}
		return "", &CallError{
			Kind:     ClassifyStatus(resp.StatusCode, errStatus, errMessage, c.match),
			Provider: p.Name,
			Status:   resp.StatusCode,
			Detail:   detail,
		}
	}

	reply, err := fam.ParseResponse(p, body)
	if err != nil {
		return "", &CallError{Kind: KindTransport, Provider: p.Name, Err: err}
	}
	return reply, nil
}
