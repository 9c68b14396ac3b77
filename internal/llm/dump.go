package llm

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	. "github.com/roelfdiedericks/relaybot/internal/logging"
)

const (
	defaultDumpKeep = 20
	maxDumpBody     = 50000
)

// DumpTransport is an http.RoundTripper that writes every failed provider
// exchange (transport error or status >= 400) to a file under Dir, keeping
// only the newest Keep files. Request headers are never written.
type DumpTransport struct {
	Base http.RoundTripper
	Dir  string
	Keep int

	mu  sync.Mutex
	seq int
}

// NewDumpTransport creates dir if needed
func NewDumpTransport(dir string) (*DumpTransport, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create dump dir: %w", err)
	}
	return &DumpTransport{Dir: dir, Keep: defaultDumpKeep}, nil
}

func (t *DumpTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var reqBody []byte
	if req.Body != nil {
		reqBody, _ = io.ReadAll(req.Body)
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(reqBody))
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	start := time.Now()
	resp, err := base.RoundTrip(req)
	if err != nil {
		t.write(req, reqBody, 0, nil, err, time.Since(start))
		return resp, err
	}
	if resp.StatusCode < 400 {
		return resp, nil
	}

	// re-wrap so the caller can still read it
	respBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(respBody))
	t.write(req, reqBody, resp.StatusCode, respBody, nil, time.Since(start))
	return resp, nil
}

func (t *DumpTransport) write(req *http.Request, reqBody []byte, status int, respBody []byte, callErr error, elapsed time.Duration) {
	now := time.Now()
	var sb strings.Builder
	sb.WriteString("=== PROVIDER CALL DUMP ===\n")
	fmt.Fprintf(&sb, "Timestamp: %s\n", now.Format(time.RFC3339))
	fmt.Fprintf(&sb, "Duration: %s\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(&sb, "URL: %s %s\n", req.Method, req.URL.Redacted())
	if callErr != nil {
		fmt.Fprintf(&sb, "Error: %v\n", callErr)
	} else {
		fmt.Fprintf(&sb, "Status: %d\n", status)
	}
	writeSection(&sb, "Request Body", reqBody)
	writeSection(&sb, "Response Body", respBody)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	name := fmt.Sprintf("%s_%s_%04d_%d.txt", sanitizeFilename(req.URL.Host), now.Format("20060102-150405.000"), t.seq%10000, status)
	path := filepath.Join(t.Dir, name)
	if err := os.WriteFile(path, []byte(sb.String()), 0600); err != nil {
		L_warn("dump: failed to write", "path", path, "error", err)
		return
	}
	L_debug("dump: provider failure captured", "path", path, "status", status)
	t.cleanup()
}

func writeSection(sb *strings.Builder, title string, body []byte) {
	if len(body) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n--- %s ---\n", title)
	if len(body) > maxDumpBody {
		sb.Write(body[:maxDumpBody])
		fmt.Fprintf(sb, "\n... (truncated, total %d bytes)\n", len(body))
		return
	}
	sb.Write(body)
	sb.WriteString("\n")
}

func sanitizeFilename(s string) string {
	return strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_").Replace(s)
}

// cleanup keeps only the newest Keep files. Caller holds t.mu.
func (t *DumpTransport) cleanup() {
	keep := t.Keep
	if keep <= 0 {
		keep = defaultDumpKeep
	}
	entries, err := os.ReadDir(t.Dir)
	if err != nil {
		return
	}

	type fileInfo struct {
		name    string
		modTime time.Time
	}
	var files []fileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{name: e.Name(), modTime: info.ModTime()})
	}
	if len(files) <= keep {
		return
	}

	// oldest first; names carry the timestamp and break mod-time ties
	sort.Slice(files, func(i, j int) bool {
		if files[i].modTime.Equal(files[j].modTime) {
			return files[i].name < files[j].name
		}
		return files[i].modTime.Before(files[j].modTime)
	})
	for _, f := range files[:len(files)-keep] {
		path := filepath.Join(t.Dir, f.name)
		if err := os.Remove(path); err != nil {
			L_warn("dump: failed to remove old dump", "path", path, "error", err)
		}
	}
}
