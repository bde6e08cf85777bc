package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/fortify/timeout"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/core"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/metrics"
)

// Fixed user-facing replies.
const (
	QuotaExceededReply = "You've reached your usage limit. Please try again later."
	FallbackReply      = "Sorry, I couldn't process your request."
)

// DefaultUpstreamTimeout bounds a single completion call.
const DefaultUpstreamTimeout = 60 * time.Second

// ReplyKind classifies how an invocation ended.
type ReplyKind string

const (
	ReplyQuota    ReplyKind = "quota_exceeded"
	ReplyAnswer   ReplyKind = "answered"
	ReplyFallback ReplyKind = "fallback"
)

// Completer sends one instruction to the completion endpoint. Implementations
// must return once ctx is done; the relay's upstream timeout only cancels ctx.
type Completer interface {
	Complete(ctx context.Context, instruction string) (string, error)
}

// DiagnosticSink records upstream failures. Implementations must not block.
type DiagnosticSink interface {
	RecordUpstreamFailure(failure core.UpstreamFailure)
}

// Reply is the result of one Handle call.
type Reply struct {
	Text  string
	Kind  ReplyKind
	State string

	// Err holds the failure detail behind a fallback or a storage warning; it is
	// never shown to the user.
	Err error
}

// Relay admits inbound messages against the ledger and forwards them upstream.
type Relay struct {
	Ledger   *Ledger
	Upstream Completer
	Sink     DiagnosticSink
	Logger   *logging.Logger

	// Limit is the lifetime request quota per user.
	Limit int

	// UpstreamTimeout bounds the completion call; zero means DefaultUpstreamTimeout.
	UpstreamTimeout time.Duration

	Clock func() time.Time
}

// Handle processes one message from userID and always returns a reply.
func (r *Relay) Handle(ctx context.Context, userID int64, text string) (reply Reply) {
	inv := newInvocation()

	defer func() {
		if recovered := recover(); recovered != nil {
			reply = Reply{
				Text:  FallbackReply,
				Kind:  ReplyFallback,
				State: StateRepliedFallback,
				Err:   fmt.Errorf("relay panic: %v", recovered),
			}
			r.logError("Relay recovered from panic", userID, reply.Err)
		}
		metrics.RecordRelayOutcome(string(reply.Kind))
	}()

	if ctx == nil {
		ctx = context.Background()
	}

	r.advance(inv, eventCheck)

	if r == nil || r.Ledger == nil || r.Upstream == nil {
		r.advance(inv, eventFail)
		r.advance(inv, eventReply)
		return Reply{Text: FallbackReply, Kind: ReplyFallback, State: inv.state(), Err: errors.New("relay is not configured")}
	}

	outcome, err := r.Ledger.CheckAndIncrement(ctx, userID, r.Limit)
	var storageErr error
	if err != nil {
		if outcome != OutcomeAdmitted || !errors.Is(err, ErrStorageWrite) {
			r.logError("Ledger admission failed", userID, err)
			r.advance(inv, eventFail)
			r.advance(inv, eventReply)
			return Reply{Text: FallbackReply, Kind: ReplyFallback, State: inv.state(), Err: err}
		}
		// counted in memory; durability is best-effort
		storageErr = err
		metrics.RecordLedgerPersistError()
		r.logWarn("Ledger snapshot write failed; increment kept in memory", userID, err)
	}

	if outcome == OutcomeRejected {
		r.advance(inv, eventReject)
		r.advance(inv, eventReply)
		r.logInfo("Quota exceeded", userID)
		return Reply{Text: QuotaExceededReply, Kind: ReplyQuota, State: inv.state()}
	}

	r.advance(inv, eventAdmit)
	r.advance(inv, eventQuery)

	answer, err := r.complete(ctx, text)
	if err != nil {
		r.advance(inv, eventFail)
		r.advance(inv, eventReply)
		r.recordFailure(userID, err)
		return Reply{Text: FallbackReply, Kind: ReplyFallback, State: inv.state(), Err: err}
	}

	r.advance(inv, eventSucceed)
	r.advance(inv, eventReply)
	if r.Logger != nil {
		r.Logger.Debug("Relay answered",
			zap.Int64("user_id", userID),
			zap.Int("reply_length", len(answer)))
	}
	return Reply{Text: answer, Kind: ReplyAnswer, State: inv.state(), Err: storageErr}
}

// complete runs the upstream call once, detached from caller cancellation but
// bounded by UpstreamTimeout.
func (r *Relay) complete(ctx context.Context, text string) (string, error) {
	limit := r.UpstreamTimeout
	if limit <= 0 {
		limit = DefaultUpstreamTimeout
	}

	t := timeout.New[string](timeout.Config{
		DefaultTimeout: limit,
	})

	start := r.now()
	answer, err := t.Execute(context.WithoutCancel(ctx), limit, func(ctx context.Context) (answer string, err error) {
		// runs on the caller's goroutine; a panic becomes an upstream failure
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("upstream panic: %v", recovered)
			}
		}()
		return r.Upstream.Complete(ctx, text)
	})
	metrics.RecordUpstreamCall(err == nil, r.now().Sub(start))
	if err != nil {
		return "", err
	}
	return answer, nil
}

func (r *Relay) recordFailure(userID int64, err error) {
	failure := core.UpstreamFailure{
		At:     r.now(),
		UserID: userID,
		Err:    err,
	}

	var raw core.RawResponder
	if errors.As(err, &raw) && raw != nil {
		failure.RawResponse = raw.RawBody()
	}

	if r.Logger != nil {
		fields := []zap.Field{zap.Int64("user_id", userID), zap.Error(err)}
		if len(failure.RawResponse) > 0 {
			fields = append(fields, zap.Int("raw_response_bytes", len(failure.RawResponse)))
		}
		r.Logger.Warn("Upstream completion failed", fields...)
	}

	if r.Sink != nil {
		r.Sink.RecordUpstreamFailure(failure)
	}
}

func (r *Relay) advance(inv *invocation, event string) {
	if err := inv.fire(event); err != nil {
		r.logError("Relay state transition rejected", 0, err)
	}
}

func (r *Relay) now() time.Time {
	if r != nil && r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}

func (r *Relay) logInfo(msg string, userID int64) {
	if r == nil || r.Logger == nil {
		return
	}
	r.Logger.Info(msg, zap.Int64("user_id", userID), zap.Int("limit", r.Limit))
}

func (r *Relay) logWarn(msg string, userID int64, err error) {
	if r == nil || r.Logger == nil {
		return
	}
	r.Logger.Warn(msg, zap.Int64("user_id", userID), zap.Error(err))
}

func (r *Relay) logError(msg string, userID int64, err error) {
	if r == nil || r.Logger == nil {
		return
	}
	r.Logger.Error(msg, zap.Int64("user_id", userID), zap.Error(err))
}
