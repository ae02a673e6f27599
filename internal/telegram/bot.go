package telegram

import (
	"context"
	"fmt"
	"runtime/debug"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"vigil/internal/logger"
	"vigil/internal/metrics"
)

// Handler executes one inbound message and returns the reply text.
type Handler interface {
	Handle(ctx context.Context, subscriberID int64, text string) string
}

// Bot is the Telegram transport. It long-polls for subscriber commands,
// dispatches them to the command handler, and doubles as the notification
// sink for the engine.
type Bot struct {
	api     *tgbotapi.BotAPI
	handler Handler
}

// New authenticates against the Bot API with the given token.
func New(token string, handler Handler) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram authentication failed: %w", err)
	}

	log := logger.WithComponent("telegram")
	log.Info().
		Str("username", api.Self.UserName).
		Msg("telegram bot authorized")

	return &Bot{api: api, handler: handler}, nil
}

// Send implements notify.Sink: one-way, fire-and-forget delivery of a
// formatted message to a subscriber chat.
func (b *Bot) Send(ctx context.Context, subscriberID int64, text string) error {
	msg := tgbotapi.NewMessage(subscriberID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send to %d failed: %w", subscriberID, err)
	}
	return nil
}

// Run long-polls updates until the context is cancelled. Each message is
// handled in its own goroutine; the command handler's stores do the
// synchronization.
func (b *Bot) Run(ctx context.Context) error {
	log := logger.WithComponent("telegram")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	log.Info().Msg("listening for commands")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			log.Info().Msg("stopped listening for commands")
			return ctx.Err()

		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			go b.handleMessage(ctx, update.Message)
		}
	}
}

// handleMessage dispatches one inbound message and sends the reply.
func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	log := logger.WithComponent("telegram")

	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			log.Error().
				Interface("panic", r).
				Bytes("stack", stack).
				Int64("chat_id", msg.Chat.ID).
				Msg("message handler panic recovered")
			metrics.PanicsRecovered.WithLabelValues("telegram").Inc()
		}
	}()

	reply := b.handler.Handle(ctx, msg.Chat.ID, msg.Text)
	if reply == "" {
		return
	}

	if err := b.Send(ctx, msg.Chat.ID, reply); err != nil {
		log.Error().
			Err(err).
			Int64("chat_id", msg.Chat.ID).
			Msg("failed to send reply")
	}
}
