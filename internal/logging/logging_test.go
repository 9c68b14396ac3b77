package logging

import (
	"context"
	"testing"
)

func TestFormatLine(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		args []interface{}
		want string
	}{
		{"plain", "hello", nil, "hello"},
		{"printf", "value is %d", []interface{}{42}, "value is 42"},
		{"structured", "llm: switched", []interface{}{"from", "a", "to", "b"}, "llm: switched from=a to=b"},
		{"odd keyvals", "x", []interface{}{"k"}, "x k="},
		{"escaped percent", "100%% done", []interface{}{"k", 1}, "100%% done k=1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatLine(tt.msg, tt.args...); got != tt.want {
				t.Errorf("FormatLine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCaptureCollectsContextLines(t *testing.T) {
	c := NewCapture()
	ctx := WithCapture(context.Background(), c)

	L_infoc(ctx, "llm: calling", "provider", "gemini-1.5-pro")
	L_warnc(ctx, "llm: quota exceeded on %s", "gemini-1.5-pro")
	L_infoc(context.Background(), "not captured")

	lines := c.Lines()
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %v", len(lines), lines)
	}
	if lines[0] != "llm: calling provider=gemini-1.5-pro" {
		t.Errorf("unexpected first line: %q", lines[0])
	}
	if lines[1] != "llm: quota exceeded on gemini-1.5-pro" {
		t.Errorf("unexpected second line: %q", lines[1])
	}
}

func TestCaptureFromWithoutCapture(t *testing.T) {
	if CaptureFrom(context.Background()) != nil {
		t.Error("expected nil capture on bare context")
	}
}
