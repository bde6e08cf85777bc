package telegram

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/config"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/core/engine"
)

type sentMessage struct {
	chatID int64
	text   string
}

type fakeAPI struct {
	updates chan tgbotapi.Update

	mu         sync.Mutex
	config     tgbotapi.UpdateConfig
	sent       []sentMessage
	sendErr    error
	stopCalled bool
}

func newFakeAPI(buffer int) *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, buffer)}
}

func (f *fakeAPI) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	f.mu.Lock()
	f.config = config
	f.mu.Unlock()
	return f.updates
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, errors.New("unexpected chattable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{chatID: msg.ChatID, text: msg.Text})
	return tgbotapi.Message{}, f.sendErr
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalled = true
}

func (f *fakeAPI) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]sentMessage(nil), f.sent...)
	sort.Slice(out, func(i, j int) bool { return out[i].chatID < out[j].chatID })
	return out
}

type fakeRelay struct {
	mu    sync.Mutex
	calls map[int64][]string
	block chan struct{}
}

func (r *fakeRelay) Handle(ctx context.Context, userID int64, text string) engine.Reply {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = make(map[int64][]string)
	}
	r.calls[userID] = append(r.calls[userID], text)
	return engine.Reply{Text: "answer to " + text, Kind: engine.ReplyAnswer}
}

func (r *fakeRelay) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, texts := range r.calls {
		n += len(texts)
	}
	return n
}

func textUpdate(id int, userID, chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: id,
		Message: &tgbotapi.Message{
			MessageID: id,
			From:      &tgbotapi.User{ID: userID},
			Chat:      &tgbotapi.Chat{ID: chatID},
			Text:      text,
		},
	}
}

func commandUpdate(id int, userID, chatID int64, command string) tgbotapi.Update {
	update := textUpdate(id, userID, chatID, command)
	update.Message.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(command)}}
	return update
}

func TestBotDispatchesUpdates(t *testing.T) {
	api := newFakeAPI(8)
	relay := &fakeRelay{}
	bot := &Bot{API: api, Relay: relay, Workers: 2, PollTimeout: 30}

	api.updates <- commandUpdate(1, 10, 100, "/start")
	api.updates <- textUpdate(2, 20, 200, "hello")
	api.updates <- tgbotapi.Update{UpdateID: 3}
	noSender := textUpdate(4, 0, 400, "who am i")
	noSender.Message.From = nil
	api.updates <- noSender
	api.updates <- textUpdate(5, 50, 500, "")
	close(api.updates)

	require.NoError(t, bot.Run(context.Background()))

	assert.Equal(t, []sentMessage{
		{chatID: 100, text: config.DefaultGreeting},
		{chatID: 200, text: "answer to hello"},
	}, api.messages())
	assert.Equal(t, 1, relay.callCount())
	assert.Equal(t, 30, api.config.Timeout)
}

func TestBotStartUsesConfiguredGreeting(t *testing.T) {
	api := newFakeAPI(1)
	bot := &Bot{API: api, Relay: &fakeRelay{}, Greeting: "hi there"}

	api.updates <- commandUpdate(1, 10, 100, "/start")
	close(api.updates)

	require.NoError(t, bot.Run(context.Background()))
	assert.Equal(t, []sentMessage{{chatID: 100, text: "hi there"}}, api.messages())
}

func TestBotForwardsOtherCommandsAsText(t *testing.T) {
	api := newFakeAPI(1)
	relay := &fakeRelay{}
	bot := &Bot{API: api, Relay: relay}

	api.updates <- commandUpdate(1, 10, 100, "/help")
	close(api.updates)

	require.NoError(t, bot.Run(context.Background()))
	assert.Equal(t, []string{"/help"}, relay.calls[10])
}

func TestBotSendFailureDoesNotStopLoop(t *testing.T) {
	api := newFakeAPI(2)
	api.sendErr = errors.New("chat not found")
	relay := &fakeRelay{}
	bot := &Bot{API: api, Relay: relay}

	api.updates <- textUpdate(1, 1, 1, "a")
	api.updates <- textUpdate(2, 2, 2, "b")
	close(api.updates)

	require.NoError(t, bot.Run(context.Background()))
	assert.Equal(t, 2, relay.callCount())
}

func TestBotStopsOnContextCancel(t *testing.T) {
	api := newFakeAPI(0)
	bot := &Bot{API: api, Relay: &fakeRelay{}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bot.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("bot did not stop after cancel")
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.True(t, api.stopCalled)
}

func TestBotWaitsForInFlightHandlers(t *testing.T) {
	api := newFakeAPI(1)
	relay := &fakeRelay{block: make(chan struct{})}
	bot := &Bot{API: api, Relay: relay, Workers: 1}

	api.updates <- textUpdate(1, 7, 70, "slow")
	close(api.updates)

	done := make(chan error, 1)
	go func() { done <- bot.Run(context.Background()) }()

	select {
	case <-done:
		t.Fatal("Run returned before the handler finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(relay.block)
	require.NoError(t, <-done)
	assert.Equal(t, []sentMessage{{chatID: 70, text: "answer to slow"}}, api.messages())
}

func TestBotRequiresConfiguration(t *testing.T) {
	require.Error(t, (&Bot{}).Run(context.Background()))
}

func TestDialRequiresToken(t *testing.T) {
	_, err := Dial("  ", false)
	require.Error(t, err)
}
