// Package bot turns one inbound text message into a reply: commands, name
// onboarding, or a quip followed by the user's log of the day.
package bot

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"omochi-bot/internal/metrics"
	"omochi-bot/internal/storage"
	"omochi-bot/internal/timeutil"
	"omochi-bot/internal/users"
)

var clockRe = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):[0-5][0-9]$`)

// Incoming is a text message from any channel.
type Incoming struct {
	Channel         string
	UserID          string
	Text            string
	MessageID       string
	QuotedMessageID string
	// Direct is true for one-to-one chats; group replies omit the day's log.
	Direct bool
}

type Messages interface {
	Append(ctx context.Context, u storage.Utterance) error
	Latest(ctx context.Context, userID string) (*storage.Utterance, error)
	FindByTime(ctx context.Context, userID, hhmm string) (*storage.Utterance, error)
	Delete(ctx context.Context, h storage.Handle) (bool, error)
	TodayLines(ctx context.Context, userID string) ([]string, error)
	Thread(ctx context.Context, messageID string) ([]storage.Utterance, error)
}

type Names interface {
	DisplayName(ctx context.Context, userID string) (string, error)
	SetName(ctx context.Context, userID, name string) error
}

type Quipper interface {
	Quip(ctx context.Context, text string, thread []string) string
}

type Handler struct {
	messages Messages
	names    Names
	quips    Quipper
	loc      *time.Location
	logger   logrus.FieldLogger
	metrics  *metrics.Metrics
	now      func() time.Time
}

type Option func(*Handler)

func WithClock(now func() time.Time) Option { return func(h *Handler) { h.now = now } }

func WithMetrics(m *metrics.Metrics) Option { return func(h *Handler) { h.metrics = m } }

func New(messages Messages, names Names, quips Quipper, loc *time.Location, logger logrus.FieldLogger, opts ...Option) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	h := &Handler{messages: messages, names: names, quips: quips, loc: loc, logger: logger, now: time.Now}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Handle returns the reply text for in. An empty reply means nothing should
// be sent.
func (h *Handler) Handle(ctx context.Context, in Incoming) string {
	text := strings.TrimSpace(in.Text)
	if text == "" || in.UserID == "" {
		return ""
	}
	log := h.logger.WithField("channel", in.Channel).WithField("user", in.UserID)

	name, err := h.names.DisplayName(ctx, in.UserID)
	if err != nil {
		log.WithError(err).Warn("display name lookup failed")
	}

	switch {
	case strings.HasPrefix(text, "/setname"):
		return h.setName(ctx, in.UserID, strings.TrimSpace(strings.TrimPrefix(text, "/setname")))
	case strings.HasPrefix(text, "/delete"):
		return h.delete(ctx, in.UserID, text)
	case isHelp(text):
		return usageGuide(name)
	}

	// onboarding: ask for a name, then take the next message as the name
	if err == nil && name == "" {
		if err := h.names.SetName(ctx, in.UserID, users.Pending); err != nil {
			log.WithError(err).Warn("failed to mark user as pending")
		}
		return "あなたの名前を教えて！"
	}
	if name == users.Pending {
		return h.setName(ctx, in.UserID, text)
	}

	return h.record(ctx, in, text)
}

func (h *Handler) record(ctx context.Context, in Incoming, text string) string {
	log := h.logger.WithField("channel", in.Channel).WithField("user", in.UserID)

	var thread []string
	if in.QuotedMessageID != "" {
		chain, err := h.messages.Thread(ctx, in.QuotedMessageID)
		if err != nil {
			log.WithError(err).Warn("failed to load quoted thread")
		}
		for _, u := range chain {
			thread = append(thread, u.Text)
		}
	}

	var today []string
	if in.Direct {
		lines, err := h.messages.TodayLines(ctx, in.UserID)
		if err != nil {
			log.WithError(err).Warn("failed to load today's messages")
		}
		today = lines
	}

	quip := h.quips.Quip(ctx, text, thread)
	now := h.now()
	lines := append([]string{quip}, today...)
	lines = append(lines, now.In(h.loc).Format(timeutil.ClockLayout)+" "+text)

	err := h.messages.Append(ctx, storage.Utterance{
		Timestamp:       now,
		UserID:          in.UserID,
		Text:            text,
		Reply:           quip,
		MessageID:       in.MessageID,
		QuotedMessageID: in.QuotedMessageID,
	})
	if err != nil {
		log.WithError(err).Error("failed to record utterance")
	} else {
		h.metrics.Utterance()
	}
	return strings.Join(lines, "\n")
}

func (h *Handler) setName(ctx context.Context, userID, name string) string {
	if name == "" || name == users.Pending {
		return "名前を設定できませんでした。正しい形式で入力してください。"
	}
	if err := h.names.SetName(ctx, userID, name); err != nil {
		h.logger.WithError(err).WithField("user", userID).Error("failed to set name")
		return "名前を設定できませんでした。正しい形式で入力してください。"
	}
	return "名前を「" + name + "」に設定したよ！"
}

func (h *Handler) delete(ctx context.Context, userID, text string) string {
	if text == "/delete" {
		u, err := h.messages.Latest(ctx, userID)
		if err != nil {
			h.logger.WithError(err).WithField("user", userID).Error("latest lookup failed")
			return "削除処理中にエラーが発生しました。"
		}
		if u == nil {
			return "削除できるメッセージが見つかりません。"
		}
		return h.remove(ctx, userID, u, u.Clock(h.loc))
	}
	if !strings.HasPrefix(text, "/delete ") {
		return "削除コマンドの形式が正しくありません。\n/delete または /delete HH:MM の形式で入力してください。"
	}
	clock := strings.TrimSpace(strings.TrimPrefix(text, "/delete "))
	if !clockRe.MatchString(clock) {
		return "時間の形式が正しくありません。HH:MM（例：10:30）の形式で入力してください。"
	}
	u, err := h.messages.FindByTime(ctx, userID, clock)
	if err != nil {
		h.logger.WithError(err).WithField("user", userID).Error("time lookup failed")
		return "削除処理中にエラーが発生しました。"
	}
	if u == nil {
		return clock + "のメッセージが見つかりません。今日のメッセージのみ削除できます。"
	}
	return h.remove(ctx, userID, u, clock)
}

func (h *Handler) remove(ctx context.Context, userID string, u *storage.Utterance, clock string) string {
	ok, err := h.messages.Delete(ctx, u.Handle)
	if err != nil {
		h.logger.WithError(err).WithField("user", userID).Error("delete failed")
		return "メッセージの削除に失敗しました。"
	}
	if !ok {
		return "メッセージの削除に失敗しました。"
	}
	return clock + "のメッセージ「" + u.Text + "」を削除しました。"
}

func isHelp(text string) bool {
	return strings.HasPrefix(text, "使い方") || strings.HasPrefix(text, "つかいかた") || text == "ヘルプ" || text == "へるぷ"
}

func usageGuide(name string) string {
	if name == "" || name == users.Pending {
		name = "あなた"
	}
	return "👋 おもちだよ！\n" + name + "、まったりしていってね！\n" +
		"あなたのつぶやきを記録するよ。\n\n" +
		"📖 使い方ガイド 📖\n" +
		"• 基本的にはただつぶやくだけ\n" +
		"• 「/setname あなたの名前」名前を設定し直せるよ\n" +
		"• 「/delete」直前のつぶやきを削除できるよ\n" +
		"• 「/delete hh:mm (例: /delete 10:30)」時間指定で削除できるよ"
}
