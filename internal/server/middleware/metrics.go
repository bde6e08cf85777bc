package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/observability"
)

// routeLabel returns the matched chi pattern. Unrouted requests fall back to
// a fixed set of labels so user ids never become label values.
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}

	switch path := r.URL.Path; {
	case path == "/", path == "/version", path == "/metrics", path == "/v1/relay":
		return path
	case path == "/health", strings.HasPrefix(path, "/health/"):
		return "/health/*"
	case strings.HasPrefix(path, "/v1/users/"):
		return "/v1/users/{id}"
	}
	return "/unknown"
}

func errorClass(status int) string {
	if status >= http.StatusInternalServerError {
		return "server_error"
	}
	return "client_error"
}

// RequestMetrics emits http_* telemetry and one access log line per request.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sys := observability.TelemetrySystem
		if sys == nil {
			next.ServeHTTP(w, r)
			return
		}

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		elapsed := time.Since(started)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		inBytes := max(r.ContentLength, 0)
		outBytes := int64(ww.BytesWritten())

		route := routeLabel(r)
		tags := map[string]string{"method": r.Method, "endpoint": route, "status": strconv.Itoa(status)}
		sizeTags := map[string]string{"method": r.Method, "endpoint": route}

		_ = sys.Counter("http_requests_total", 1, tags)
		_ = sys.Histogram("http_request_duration_ms", elapsed, tags)
		_ = sys.Gauge("http_request_size_bytes", float64(inBytes), sizeTags)
		_ = sys.Gauge("http_response_size_bytes", float64(outBytes), sizeTags)
		if status >= http.StatusBadRequest {
			errTags := map[string]string{"error_type": errorClass(status)}
			for k, v := range tags {
				errTags[k] = v
			}
			_ = sys.Counter("http_errors_total", 1, errTags)
		}

		if logger := observability.ServerLogger; logger != nil {
			logger.Info("HTTP request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("endpoint", route),
				zap.Int("status", status),
				zap.Duration("duration", elapsed),
				zap.Int64("request_size", inBytes),
				zap.Int64("response_size", outBytes),
				zap.String("requestID", GetRequestID(r.Context())),
			)
		}
	})
}
