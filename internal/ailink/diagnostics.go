package ailink

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/core"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/metrics"
)

// DefaultDiagnosticQueueSize is used when no queue size is configured.
const DefaultDiagnosticQueueSize = 64

// DiagnosticLog appends upstream failures to a text file.
//
// RecordUpstreamFailure never blocks: entries are queued for a single writer
// goroutine and dropped when the queue is full.
type DiagnosticLog struct {
	path   string
	file   *os.File
	logger *logging.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan core.UpstreamFailure
	done   chan struct{}

	dropped atomic.Int64
	written atomic.Int64
}

// OpenDiagnosticLog opens path for appending and starts the writer.
func OpenDiagnosticLog(path string, queueSize int, logger *logging.Logger) (*DiagnosticLog, error) {
	if queueSize <= 0 {
		queueSize = DefaultDiagnosticQueueSize
	}

	if dir := filepath.Dir(filepath.Clean(path)); dir != "." {
		// #nosec G301 -- diagnostics directory mirrors the data directory permissions
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create diagnostics directory: %w", err)
		}
	}

	// #nosec G304 -- path comes from operator configuration
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open diagnostics log: %w", err)
	}

	d := &DiagnosticLog{
		path:   path,
		file:   f,
		logger: logger,
		queue:  make(chan core.UpstreamFailure, queueSize),
		done:   make(chan struct{}),
	}
	go d.run()
	return d, nil
}

// Path returns the log file path.
func (d *DiagnosticLog) Path() string {
	return d.path
}

// RecordUpstreamFailure queues failure for writing.
func (d *DiagnosticLog) RecordUpstreamFailure(failure core.UpstreamFailure) {
	if d == nil {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop()
		return
	}

	select {
	case d.queue <- failure:
	default:
		d.drop()
	}
}

// Dropped returns the number of entries discarded.
func (d *DiagnosticLog) Dropped() int64 {
	return d.dropped.Load()
}

// Written returns the number of entries appended to the file.
func (d *DiagnosticLog) Written() int64 {
	return d.written.Load()
}

// Close drains queued entries and closes the file.
func (d *DiagnosticLog) Close() error {
	if d == nil {
		return nil
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	<-d.done
	return d.file.Close()
}

func (d *DiagnosticLog) drop() {
	d.dropped.Add(1)
	metrics.RecordDiagnosticsDropped()
}

func (d *DiagnosticLog) run() {
	defer close(d.done)

	w := bufio.NewWriter(d.file)
	for failure := range d.queue {
		if _, err := w.WriteString(FormatDiagnostic(failure)); err != nil {
			d.logWriteError(err)
			continue
		}
		// flush while idle so entries land even if the process is killed
		if len(d.queue) == 0 {
			if err := w.Flush(); err != nil {
				d.logWriteError(err)
				continue
			}
		}
		d.written.Add(1)
	}
	if err := w.Flush(); err != nil {
		d.logWriteError(err)
	}
}

func (d *DiagnosticLog) logWriteError(err error) {
	if d.logger != nil {
		d.logger.Warn("Failed to write diagnostics entry", zap.String("path", d.path), zap.Error(err))
	}
}

// FormatDiagnostic renders one failure as a log entry.
func FormatDiagnostic(failure core.UpstreamFailure) string {
	at := failure.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	errText := "unknown error"
	if failure.Err != nil {
		errText = safeOneLine(failure.Err.Error())
	}

	raw := "No response body"
	if len(failure.RawResponse) > 0 {
		raw = string(failure.RawResponse)
	}

	return fmt.Sprintf("[%s] user=%d DeepSeek API Error: %s\nRaw response: %s\n",
		at.UTC().Format(time.RFC3339), failure.UserID, errText, raw)
}
