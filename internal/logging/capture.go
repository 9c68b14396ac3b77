package logging

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
)

// Capture collects the log lines produced while serving a single request so
// they can be shown to the requesting user when debug delivery is enabled.
type Capture struct {
	mu    sync.Mutex
	lines []string
}

// NewCapture returns an empty capture
func NewCapture() *Capture {
	return &Capture{}
}

// Add appends a line
func (c *Capture) Add(line string) {
	c.mu.Lock()
	c.lines = append(c.lines, line)
	c.mu.Unlock()
}

// Lines returns a copy of the collected lines
func (c *Capture) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.lines))
	copy(out, c.lines)
	return out
}

type captureKey struct{}

// WithCapture attaches a capture to ctx
func WithCapture(ctx context.Context, c *Capture) context.Context {
	return context.WithValue(ctx, captureKey{}, c)
}

// CaptureFrom returns the capture attached to ctx, or nil
func CaptureFrom(ctx context.Context) *Capture {
	if ctx == nil {
		return nil
	}
	c, _ := ctx.Value(captureKey{}).(*Capture)
	return c
}

// L_infoc logs at info level and records the line in ctx's capture, if any
func L_infoc(ctx context.Context, msg string, args ...interface{}) {
	logMsg(log.InfoLevel, msg, args...)
	record(ctx, msg, args)
}

// L_warnc logs at warn level and records the line in ctx's capture, if any
func L_warnc(ctx context.Context, msg string, args ...interface{}) {
	logMsg(log.WarnLevel, msg, args...)
	record(ctx, msg, args)
}

func record(ctx context.Context, msg string, args []interface{}) {
	if c := CaptureFrom(ctx); c != nil {
		c.Add(FormatLine(msg, args...))
	}
}
