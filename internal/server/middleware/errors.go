package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/metrics"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/observability"
)

// panicCode matches errors.CodeInternal; that package imports this one.
const panicCode = "INTERNAL_ERROR"

// ErrorResponse has the same shape as the body internal/errors writes.
type ErrorResponse struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	} `json:"error"`
}

// Recovery turns a handler panic into a 500 INTERNAL_ERROR body.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				recovered(w, r, v)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func recovered(w http.ResponseWriter, r *http.Request, v any) {
	id := GetRequestID(r.Context())
	env := errors.NewErrorEnvelope(panicCode, fmt.Sprintf("panic: %v", v)).WithCorrelationID(id)
	if critical, err := env.WithSeverity(errors.SeverityCritical); err == nil {
		env = critical
	}

	metrics.RecordPanic()
	if logger := observability.ServerLogger; logger != nil {
		logger.Error("HTTP handler panic",
			zap.String("path", r.URL.Path),
			zap.String("requestID", id),
			zap.Any("panic", v),
			zap.ByteString("stack", debug.Stack()))
	}

	var body ErrorResponse
	body.Error.Code = env.Code
	body.Error.Message = env.Message
	body.Error.RequestID = env.CorrelationID

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(body)
}
