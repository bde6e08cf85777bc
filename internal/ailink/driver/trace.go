package driver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// TraceEntry is one provider round trip, written as a single NDJSON line.
type TraceEntry struct {
	Timestamp   time.Time       `json:"timestamp"`
	Driver      string          `json:"driver"`
	Endpoint    string          `json:"endpoint"`
	Method      string          `json:"method"`
	Model       string          `json:"model,omitempty"`
	RequestBody json.RawMessage `json:"request_body,omitempty"`
	StatusCode  int             `json:"status_code,omitempty"`
	Response    json.RawMessage `json:"response,omitempty"`
	Error       string          `json:"error,omitempty"`
	DurationMs  int64           `json:"duration_ms"`
}

// Tracer appends entries to a writer. Safe for concurrent use.
type Tracer struct {
	mu sync.Mutex
	w  io.Writer
}

var active atomic.Pointer[Tracer]

// NewTracer returns a tracer writing to w.
func NewTracer(w io.Writer) *Tracer {
	return &Tracer{w: w}
}

// EnableTracing appends every provider round trip to the file at path. The
// returned func turns tracing off again.
func EnableTracing(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	SetTracer(NewTracer(f))
	return DisableTracing, nil
}

// SetTracer swaps the process tracer; the previous one is closed.
func SetTracer(t *Tracer) {
	if prev := active.Swap(t); prev != nil {
		_ = prev.Close()
	}
}

func DisableTracing() { SetTracer(nil) }

func IsTracingEnabled() bool { return active.Load() != nil }

// Trace records entry on the process tracer, if any.
func Trace(entry TraceEntry) {
	active.Load().Write(entry)
}

func (t *Tracer) Write(entry TraceEntry) {
	if t == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.w != nil {
		_, _ = t.w.Write(append(line, '\n'))
	}
}

// Close closes the writer if it is an io.Closer. Later writes are dropped.
func (t *Tracer) Close() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	w := t.w
	t.w = nil
	if c, ok := w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// RawJSON returns body unchanged when it is valid JSON and as a quoted string
// otherwise, so a trace line never breaks on an HTML error page.
func RawJSON(body []byte) json.RawMessage {
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		return body
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(string(body)); err != nil {
		return nil
	}
	return bytes.TrimRight(buf.Bytes(), "\n")
}
