// Package line receives LINE Messaging API webhooks and sends replies.
package line

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	"github.com/sirupsen/logrus"

	"omochi-bot/internal/bot"
	"omochi-bot/internal/metrics"
)

const (
	Channel = "line"

	welcomeText  = "おもちだよ、よろしくな"
	maxBodyBytes = 1 << 20
)

type Gate interface {
	Accept(ctx context.Context, id string) bool
}

type Responder interface {
	Handle(ctx context.Context, in bot.Incoming) string
}

type Replier interface {
	Reply(ctx context.Context, replyToken, text string) error
}

type Webhook struct {
	secret    string
	botUserID string
	gate      Gate
	responder Responder
	replier   Replier
	logger    logrus.FieldLogger
	metrics   *metrics.Metrics
}

type WebhookOptions struct {
	// ChannelSecret enables signature checks. Without it bodies are accepted
	// unsigned, which is only meant for local testing.
	ChannelSecret string
	// BotUserID identifies the bot in group mentions. The delivery's
	// destination is used when empty.
	BotUserID string
	Metrics   *metrics.Metrics
}

func NewWebhook(gate Gate, responder Responder, replier Replier, logger logrus.FieldLogger, opts WebhookOptions) *Webhook {
	return &Webhook{
		secret:    opts.ChannelSecret,
		botUserID: opts.BotUserID,
		gate:      gate,
		responder: responder,
		replier:   replier,
		logger:    logger,
		metrics:   opts.Metrics,
	}
}

// Register mounts POST /webhook on r.
func (w *Webhook) Register(r gin.IRouter) {
	r.POST("/webhook", w.Receive)
}

// Receive is the gin handler for LINE webhook deliveries. It answers 200 for
// every parseable body so LINE does not redeliver events that failed
// downstream.
func (w *Webhook) Receive(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	cb, err := w.parse(c.Request)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			w.logger.Warn("LINE webhook signature mismatch")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
		w.logger.WithError(err).Warn("Unreadable LINE webhook body")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	botUserID := w.botUserID
	if botUserID == "" {
		botUserID = cb.Destination
	}
	for _, ev := range cb.Events {
		w.process(c.Request.Context(), ev, botUserID)
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (w *Webhook) parse(r *http.Request) (*webhook.CallbackRequest, error) {
	if w.secret != "" {
		return webhook.ParseRequest(w.secret, r)
	}
	var cb webhook.CallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		return nil, err
	}
	return &cb, nil
}

// envelope holds the fields shared by the event kinds the bot reacts to.
type envelope struct {
	kind       string
	id         string
	replyToken string
	redelivery bool
	source     webhook.SourceInterface
}

func envelopeOf(ev webhook.EventInterface) (envelope, bool) {
	switch e := ev.(type) {
	case webhook.MessageEvent:
		return envelope{"message", e.WebhookEventId, e.ReplyToken, redelivered(e.DeliveryContext), e.Source}, true
	case webhook.FollowEvent:
		return envelope{"follow", e.WebhookEventId, e.ReplyToken, redelivered(e.DeliveryContext), e.Source}, true
	}
	return envelope{}, false
}

func redelivered(dc *webhook.DeliveryContext) bool {
	return dc != nil && dc.IsRedelivery
}

func (w *Webhook) process(ctx context.Context, ev webhook.EventInterface, botUserID string) {
	env, ok := envelopeOf(ev)
	if !ok {
		w.metrics.Inbound(Channel, "other")
		return
	}
	w.metrics.Inbound(Channel, env.kind)
	kind, userID := sourceOf(env.source)
	log := w.logger.WithFields(logrus.Fields{
		"webhook_event_id": env.id,
		"event_type":       env.kind,
		"source_type":      kind,
		"user_id":          userID,
	})

	if !w.gate.Accept(ctx, env.id) {
		log.Info("Duplicate webhook event skipped")
		return
	}
	if env.redelivery {
		log.Warn("Redelivered webhook event skipped")
		return
	}

	switch e := ev.(type) {
	case webhook.FollowEvent:
		w.reply(ctx, log, env.replyToken, welcomeText)
	case webhook.MessageEvent:
		msg, ok := e.Message.(webhook.TextMessageContent)
		if !ok {
			return
		}
		in, ok := incoming(kind, userID, msg, botUserID)
		if !ok {
			log.Debug("Group message without bot mention ignored")
			return
		}
		w.reply(ctx, log, env.replyToken, w.responder.Handle(ctx, in))
	}
}

func sourceOf(s webhook.SourceInterface) (kind, userID string) {
	switch s := s.(type) {
	case webhook.UserSource:
		return "user", s.UserId
	case webhook.GroupSource:
		return "group", s.UserId
	case webhook.RoomSource:
		return "room", s.UserId
	}
	return "", ""
}

// incoming converts a text message. Group and room messages are only taken
// when they mention the bot, with the mention removed from the text.
func incoming(kind, userID string, msg webhook.TextMessageContent, botUserID string) (bot.Incoming, bool) {
	text := msg.Text
	if kind == "group" || kind == "room" {
		if !mentionsBot(msg.Mention, botUserID) {
			return bot.Incoming{}, false
		}
		text = stripBotMentions(msg.Text, msg.Mention, botUserID)
	}
	return bot.Incoming{
		Channel:         Channel,
		UserID:          userID,
		Text:            text,
		MessageID:       msg.Id,
		QuotedMessageID: msg.QuotedMessageId,
		Direct:          kind == "user",
	}, true
}

func (w *Webhook) reply(ctx context.Context, log logrus.FieldLogger, token, text string) {
	if text == "" {
		return
	}
	if token == "" {
		log.Warn("Event has no reply token, reply skipped")
		return
	}
	if err := w.replier.Reply(ctx, token, text); err != nil {
		if errors.Is(err, ErrNoAccessToken) {
			log.Warn("LINE access token missing, reply skipped")
			return
		}
		log.WithError(err).Error("Failed to send LINE reply")
	}
}
