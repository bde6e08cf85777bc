// Package telegram receives chat messages by long polling and answers them through the relay.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/logging"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/config"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/core/engine"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/metrics"
)

const transportName = "telegram"

// Update kinds reported to metrics.
const (
	updateStart   = "start"
	updateMessage = "message"
	updateIgnored = "ignored"
)

const (
	defaultPollTimeout = 60
	defaultWorkers     = 8
)

// API is the subset of *tgbotapi.BotAPI the bot uses.
type API interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	StopReceivingUpdates()
}

// Relayer answers one chat message.
type Relayer interface {
	Handle(ctx context.Context, userID int64, text string) engine.Reply
}

// Bot dispatches Telegram updates to the relay.
type Bot struct {
	API      API
	Relay    Relayer
	Logger   *logging.Logger
	Greeting string

	// PollTimeout is the long-poll timeout in seconds.
	PollTimeout int

	// Workers bounds how many updates are handled at once.
	Workers int
}

// Dial authenticates token against the Bot API.
func Dial(token string, debug bool) (*tgbotapi.BotAPI, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	api.Debug = debug
	return api, nil
}

// Run polls for updates until ctx is cancelled or the update channel closes,
// then waits for in-flight handlers.
func (b *Bot) Run(ctx context.Context) error {
	if b == nil || b.API == nil || b.Relay == nil {
		return fmt.Errorf("telegram bot is not configured")
	}

	pollTimeout := b.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}
	workers := b.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeout
	cfg.AllowedUpdates = []string{"message"}
	updates := b.API.GetUpdatesChan(cfg)

	b.logInfo("Telegram polling started", zap.Int("poll_timeout", pollTimeout), zap.Int("workers", workers))

	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.API.StopReceivingUpdates()
			b.logInfo("Telegram polling stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				b.API.StopReceivingUpdates()
				return nil
			}

			wg.Add(1)
			go func(update tgbotapi.Update) {
				defer wg.Done()
				defer func() { <-sem }()
				b.handleUpdate(ctx, update)
			}(update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if recovered := recover(); recovered != nil && b.Logger != nil {
			b.Logger.Error("Telegram update handler panic",
				zap.Int("update_id", update.UpdateID),
				zap.Any("panic", recovered))
		}
	}()

	msg := update.Message
	if msg == nil || msg.Chat == nil || msg.From == nil || msg.From.ID == 0 {
		metrics.RecordTransportUpdate(transportName, updateIgnored)
		return
	}

	if msg.IsCommand() && msg.Command() == "start" {
		metrics.RecordTransportUpdate(transportName, updateStart)
		b.send(msg.Chat.ID, b.greeting())
		return
	}

	if msg.Text == "" {
		metrics.RecordTransportUpdate(transportName, updateIgnored)
		return
	}

	metrics.RecordTransportUpdate(transportName, updateMessage)
	reply := b.Relay.Handle(ctx, msg.From.ID, msg.Text)
	b.send(msg.Chat.ID, reply.Text)
}

func (b *Bot) send(chatID int64, text string) {
	if text == "" {
		return
	}
	if _, err := b.API.Send(tgbotapi.NewMessage(chatID, text)); err != nil && b.Logger != nil {
		b.Logger.Warn("Telegram send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) greeting() string {
	if g := strings.TrimSpace(b.Greeting); g != "" {
		return g
	}
	return config.DefaultGreeting
}

func (b *Bot) logInfo(msg string, fields ...zap.Field) {
	if b.Logger != nil {
		b.Logger.Info(msg, fields...)
	}
}

