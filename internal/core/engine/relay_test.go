package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/core"
)

type scriptedCompleter struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	answer  func(ctx context.Context, instruction string) (string, error)
}

func (s *scriptedCompleter) Complete(ctx context.Context, instruction string) (string, error) {
	s.mu.Lock()
	s.calls++
	s.prompts = append(s.prompts, instruction)
	answer := s.answer
	s.mu.Unlock()

	if answer == nil {
		return "echo: " + instruction, nil
	}
	return answer(ctx, instruction)
}

func (s *scriptedCompleter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type capturingSink struct {
	mu       sync.Mutex
	failures []core.UpstreamFailure
}

func (c *capturingSink) RecordUpstreamFailure(failure core.UpstreamFailure) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, failure)
}

func (c *capturingSink) recorded() []core.UpstreamFailure {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.UpstreamFailure(nil), c.failures...)
}

type rawBodyError struct {
	body []byte
}

func (e *rawBodyError) Error() string   { return "upstream returned 500" }
func (e *rawBodyError) RawBody() []byte { return e.body }

func newTestRelay(t *testing.T, limit int, upstream Completer) (*Relay, *memorySnapshotStore, *capturingSink) {
	t.Helper()
	s := &memorySnapshotStore{}
	sink := &capturingSink{}
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	relay := &Relay{
		Ledger:          loadedLedger(t, s),
		Upstream:        upstream,
		Sink:            sink,
		Limit:           limit,
		UpstreamTimeout: time.Second,
		Clock:           func() time.Time { return clock },
	}
	return relay, s, sink
}

func TestRelayQuotaScenario(t *testing.T) {
	upstream := &scriptedCompleter{}
	relay, s, sink := newTestRelay(t, 3, upstream)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		reply := relay.Handle(ctx, 42, "hello")
		require.Equal(t, ReplyAnswer, reply.Kind)
		require.Equal(t, "echo: hello", reply.Text)
		require.Equal(t, StateRepliedAnswer, reply.State)
		require.NoError(t, reply.Err)
	}

	reply := relay.Handle(ctx, 42, "hello")
	require.Equal(t, ReplyQuota, reply.Kind)
	require.Equal(t, QuotaExceededReply, reply.Text)
	require.Equal(t, StateRepliedQuota, reply.State)

	require.Equal(t, 3, upstream.callCount())
	require.Empty(t, sink.recorded())

	doc, _ := s.persisted()
	require.Equal(t, []core.UserRecord{{ID: 42, RequestCount: 3}}, doc.Users)
}

func TestRelayUsersAreIndependent(t *testing.T) {
	upstream := &scriptedCompleter{}
	relay, _, _ := newTestRelay(t, 1, upstream)
	ctx := context.Background()

	require.Equal(t, ReplyAnswer, relay.Handle(ctx, 1, "a").Kind)
	require.Equal(t, ReplyQuota, relay.Handle(ctx, 1, "a").Kind)
	require.Equal(t, ReplyAnswer, relay.Handle(ctx, 2, "b").Kind)
}

func TestRelayUpstreamFailureCountsAndRecordsRawBody(t *testing.T) {
	upstream := &scriptedCompleter{answer: func(ctx context.Context, instruction string) (string, error) {
		return "", &rawBodyError{body: []byte(`{"error":"boom"}`)}
	}}
	relay, _, sink := newTestRelay(t, 5, upstream)

	reply := relay.Handle(context.Background(), 7, "question")
	require.Equal(t, ReplyFallback, reply.Kind)
	require.Equal(t, FallbackReply, reply.Text)
	require.Equal(t, StateRepliedFallback, reply.State)
	require.Error(t, reply.Err)

	record, ok := relay.Ledger.Get(7)
	require.True(t, ok)
	require.Equal(t, 1, record.RequestCount, "failed upstream call still consumes quota")

	failures := sink.recorded()
	require.Len(t, failures, 1)
	require.Equal(t, int64(7), failures[0].UserID)
	require.Equal(t, `{"error":"boom"}`, string(failures[0].RawResponse))
	require.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), failures[0].At)
}

func TestRelayUpstreamErrorWithoutBody(t *testing.T) {
	upstream := &scriptedCompleter{answer: func(ctx context.Context, instruction string) (string, error) {
		return "", errors.New("connection refused")
	}}
	relay, _, sink := newTestRelay(t, 5, upstream)

	reply := relay.Handle(context.Background(), 7, "question")
	require.Equal(t, ReplyFallback, reply.Kind)

	failures := sink.recorded()
	require.Len(t, failures, 1)
	require.Nil(t, failures[0].RawResponse)
	require.EqualError(t, failures[0].Err, "connection refused")
}

func TestRelayUpstreamTimeout(t *testing.T) {
	upstream := &scriptedCompleter{answer: func(ctx context.Context, instruction string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	relay, _, sink := newTestRelay(t, 5, upstream)
	relay.UpstreamTimeout = 50 * time.Millisecond

	started := time.Now()
	reply := relay.Handle(context.Background(), 42, "slow")
	require.Less(t, time.Since(started), 5*time.Second)

	require.Equal(t, ReplyFallback, reply.Kind)
	require.Equal(t, FallbackReply, reply.Text)
	require.Len(t, sink.recorded(), 1)

	record, _ := relay.Ledger.Get(42)
	require.Equal(t, 1, record.RequestCount)
}

func TestRelayUpstreamContextCarriesDeadline(t *testing.T) {
	var deadline time.Time
	var hasDeadline bool
	upstream := &scriptedCompleter{answer: func(ctx context.Context, instruction string) (string, error) {
		deadline, hasDeadline = ctx.Deadline()
		return "ok", nil
	}}
	relay, _, _ := newTestRelay(t, 5, upstream)
	relay.UpstreamTimeout = 200 * time.Millisecond

	started := time.Now()
	reply := relay.Handle(context.Background(), 42, "hi")
	require.Equal(t, ReplyAnswer, reply.Kind)
	require.True(t, hasDeadline)
	require.WithinDuration(t, started.Add(200*time.Millisecond), deadline, time.Second)
}

func TestRelayUpstreamIgnoresCallerCancellation(t *testing.T) {
	upstream := &scriptedCompleter{answer: func(ctx context.Context, instruction string) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "still here", nil
	}}
	relay, _, _ := newTestRelay(t, 5, upstream)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reply := relay.Handle(ctx, 42, "hi")
	require.Equal(t, ReplyAnswer, reply.Kind)
	require.Equal(t, "still here", reply.Text)
}

func TestRelayPanicBecomesFallback(t *testing.T) {
	upstream := &scriptedCompleter{answer: func(ctx context.Context, instruction string) (string, error) {
		panic("driver exploded")
	}}
	relay, _, _ := newTestRelay(t, 5, upstream)

	var reply Reply
	require.NotPanics(t, func() {
		reply = relay.Handle(context.Background(), 1, "hi")
	})
	require.Equal(t, ReplyFallback, reply.Kind)
	require.Equal(t, FallbackReply, reply.Text)
	require.Error(t, reply.Err)
}

func TestRelayStorageWriteFailureStillAnswers(t *testing.T) {
	upstream := &scriptedCompleter{}
	relay, s, _ := newTestRelay(t, 5, upstream)
	s.failWrites(errors.New("disk full"))

	reply := relay.Handle(context.Background(), 1, "hi")
	require.Equal(t, ReplyAnswer, reply.Kind)
	require.ErrorIs(t, reply.Err, ErrStorageWrite)
	require.Equal(t, 1, upstream.callCount())
}

func TestRelayUnloadedLedgerFallsBack(t *testing.T) {
	upstream := &scriptedCompleter{}
	relay := &Relay{
		Ledger:   NewLedger(&memorySnapshotStore{}),
		Upstream: upstream,
		Limit:    5,
	}

	reply := relay.Handle(context.Background(), 1, "hi")
	require.Equal(t, ReplyFallback, reply.Kind)
	require.ErrorIs(t, reply.Err, ErrNotLoaded)
	require.Equal(t, 0, upstream.callCount())
}

func TestRelayUnconfiguredFallsBack(t *testing.T) {
	relay := &Relay{Limit: 5}

	reply := relay.Handle(context.Background(), 1, "hi")
	require.Equal(t, ReplyFallback, reply.Kind)
	require.Equal(t, StateRepliedFallback, reply.State)
}

func TestRelayConcurrentSameUserLimitOne(t *testing.T) {
	upstream := &scriptedCompleter{}
	relay, _, _ := newTestRelay(t, 1, upstream)

	const workers = 32
	replies := make(chan Reply, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			replies <- relay.Handle(context.Background(), 5, "race")
		}()
	}
	wg.Wait()
	close(replies)

	counts := map[ReplyKind]int{}
	for reply := range replies {
		counts[reply.Kind]++
	}
	require.Equal(t, 1, counts[ReplyAnswer])
	require.Equal(t, workers-1, counts[ReplyQuota])
	require.Equal(t, 1, upstream.callCount())
}

func TestRelayForwardsInstructionVerbatim(t *testing.T) {
	upstream := &scriptedCompleter{}
	relay, _, _ := newTestRelay(t, 5, upstream)

	relay.Handle(context.Background(), 1, "  spaced\ntext  ")
	require.Equal(t, []string{"  spaced\ntext  "}, upstream.prompts)
}

func TestInvocationTransitions(t *testing.T) {
	inv := newInvocation()
	require.Equal(t, StateReceived, inv.state())

	require.Error(t, inv.fire(eventReply))
	require.Equal(t, StateReceived, inv.state())

	for _, event := range []string{eventCheck, eventAdmit, eventQuery, eventSucceed, eventReply} {
		require.NoError(t, inv.fire(event), event)
	}
	require.Equal(t, StateRepliedAnswer, inv.state())
	require.True(t, IsTerminalState(inv.state()))

	require.Error(t, inv.fire(eventReply))
}

func TestInvocationRejectPath(t *testing.T) {
	inv := newInvocation()
	require.NoError(t, inv.fire(eventCheck))
	require.NoError(t, inv.fire(eventReject))
	require.Error(t, inv.fire(eventQuery))
	require.NoError(t, inv.fire(eventReply))
	require.Equal(t, StateRepliedQuota, inv.state())
	require.False(t, IsTerminalState(StateQuerying))
}
