// Package telegram is the optional long-polling channel. Updates run through
// the same dedup gate and command glue as LINE webhooks.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"omochi-bot/internal/bot"
	"omochi-bot/internal/metrics"
)

const Channel = "telegram"

type Gate interface {
	Accept(ctx context.Context, id string) bool
}

type Responder interface {
	Handle(ctx context.Context, in bot.Incoming) string
}

type Bot struct {
	s         sender
	updates   updateSource
	username  string
	gate      Gate
	responder Responder
	logger    logrus.FieldLogger
	metrics   *metrics.Metrics
}

func New(botToken string, gate Gate, responder Responder, logger logrus.FieldLogger, m *metrics.Metrics) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &Bot{
		s:         botAPISender{api: api},
		updates:   api,
		username:  api.Self.UserName,
		gate:      gate,
		responder: responder,
		logger:    logger,
		metrics:   m,
	}, nil
}

// Start polls updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.updates.GetUpdatesChan(u)
	b.logger.WithField("username", b.username).Info("Telegram polling started")
	for {
		select {
		case <-ctx.Done():
			b.updates.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil {
		b.metrics.Inbound(Channel, "other")
		return
	}
	b.metrics.Inbound(Channel, "message")
	if !b.gate.Accept(ctx, "tg:"+strconv.Itoa(update.UpdateID)) {
		b.logger.WithField("update_id", update.UpdateID).Info("Duplicate update skipped")
		return
	}
	if msg.From == nil || msg.Text == "" {
		return
	}
	in, ok := b.incoming(msg)
	if !ok {
		return
	}
	reply := b.responder.Handle(ctx, in)
	if reply == "" {
		return
	}
	out := tgbotapi.NewMessage(msg.Chat.ID, reply)
	out.ReplyToMessageID = msg.MessageID
	if _, err := b.s.Send(out); err != nil {
		b.logger.WithError(err).WithField("chat_id", msg.Chat.ID).Error("Failed to send telegram reply")
	}
}

// incoming maps a message to bot input. Group messages count only when they
// address the bot by @username, which is removed from the text.
func (b *Bot) incoming(msg *tgbotapi.Message) (bot.Incoming, bool) {
	text := msg.Text
	private := msg.Chat != nil && msg.Chat.IsPrivate()
	if !private {
		handle := "@" + b.username
		if b.username == "" || !strings.Contains(text, handle) {
			return bot.Incoming{}, false
		}
		text = strings.ReplaceAll(text, handle, "")
	}
	in := bot.Incoming{
		Channel:   Channel,
		UserID:    "tg:" + strconv.FormatInt(msg.From.ID, 10),
		Text:      strings.TrimSpace(text),
		MessageID: messageID(msg),
		Direct:    private,
	}
	if msg.ReplyToMessage != nil {
		in.QuotedMessageID = messageID(msg.ReplyToMessage)
	}
	return in, true
}

func messageID(m *tgbotapi.Message) string {
	var chat int64
	if m.Chat != nil {
		chat = m.Chat.ID
	}
	return fmt.Sprintf("tg:%d:%d", chat, m.MessageID)
}
