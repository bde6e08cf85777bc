package integration

import (
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/observability"
)

// sandboxDenied reports whether err is a sandbox refusing to open a socket.
func sandboxDenied(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, os.ErrPermission), errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "permission denied") || strings.Contains(msg, "not permitted")
}

func skipIfDenied(t *testing.T, err error, what string) {
	t.Helper()
	if sandboxDenied(err) {
		t.Skipf("%s not permitted here: %v", what, err)
	}
	require.NoError(t, err)
}

// initMetricsOrSkip starts an exporter on a free port and shuts it down when
// the test ends.
func initMetricsOrSkip(t *testing.T) {
	t.Helper()
	skipIfDenied(t, observability.InitMetrics("test", 0, "test"), "metrics exporter")
	t.Cleanup(func() { _ = observability.ShutdownMetrics() })
}

// disableMetrics clears global telemetry for the duration of the test.
func disableMetrics(t *testing.T) {
	t.Helper()
	_ = observability.ShutdownMetrics()
	t.Cleanup(func() { _ = observability.ShutdownMetrics() })
}

// serveHandler serves h on IPv4 loopback.
func serveHandler(t *testing.T, h http.Handler) (*httptest.Server, *http.Client) {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	skipIfDenied(t, err, "loopback listener")

	ts := httptest.NewUnstartedServer(h)
	_ = ts.Listener.Close()
	ts.Listener = ln
	ts.Start()
	t.Cleanup(ts.Close)
	return ts, ts.Client()
}
