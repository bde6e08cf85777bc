// Package metrics emits the relay's counters, gauges and histograms through
// the process telemetry system. Every recorder is a no-op until
// observability.InitMetrics has run.
package metrics

import (
	"strconv"
	"time"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/observability"
)

const (
	RelayMessagesTotal       = "relay_messages_total"
	RelayUpstreamCallsTotal  = "relay_upstream_calls_total"
	RelayUpstreamDuration    = "relay_upstream_duration_ms"
	LedgerPersistErrorsTotal = "ledger_persist_errors_total"
	LedgerUsers              = "ledger_users"
	DiagnosticsDroppedTotal  = "diagnostics_dropped_total"
	TransportUpdatesTotal    = "transport_updates_total"
	ServerStartTime          = "app_server_start_time_seconds"

	ErrorsTotal      = "errors_total"
	PanicsTotal      = "panics_total"
	ErrorsByEndpoint = "errors_by_endpoint"
)

type labels = map[string]string

func count(name string, tags labels) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Counter(name, 1, tags)
	}
}

func gauge(name string, value float64) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Gauge(name, value, nil)
	}
}

func outcomeStatus(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// RecordRelayOutcome counts one handled message by its reply kind.
func RecordRelayOutcome(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	count(RelayMessagesTotal, labels{"outcome": outcome})
}

// RecordUpstreamCall counts one completion call and observes its latency.
func RecordUpstreamCall(success bool, duration time.Duration) {
	tags := labels{"status": outcomeStatus(success)}
	count(RelayUpstreamCallsTotal, tags)
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Histogram(RelayUpstreamDuration, duration, tags)
	}
}

func RecordLedgerPersistError() { count(LedgerPersistErrorsTotal, nil) }

// RecordDiagnosticsDropped counts entries discarded on a full writer queue.
func RecordDiagnosticsDropped() { count(DiagnosticsDroppedTotal, nil) }

func SetLedgerUsers(n int) { gauge(LedgerUsers, float64(n)) }

// RecordTransportUpdate counts an inbound chat update by how it was handled.
func RecordTransportUpdate(transport, kind string) {
	count(TransportUpdatesTotal, labels{"transport": transport, "kind": kind})
}

// SetServerStartTime records the server start as a Unix timestamp.
func SetServerStartTime(unix int64) { gauge(ServerStartTime, float64(unix)) }

func RecordError(code string, status int) {
	count(ErrorsTotal, labels{"error_code": code, "http_status": strconv.Itoa(status)})
}

func RecordErrorByEndpoint(endpoint, code string) {
	count(ErrorsByEndpoint, labels{"endpoint": endpoint, "error_code": code})
}

func RecordPanic() { count(PanicsTotal, nil) }
