package line

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"omochi-bot/internal/bot"
	"omochi-bot/internal/dedup"
	"omochi-bot/internal/eventlog"
	"omochi-bot/internal/logging"
	"omochi-bot/internal/sheet"
)

type fakeResponder struct {
	got []bot.Incoming
}

func (f *fakeResponder) Handle(_ context.Context, in bot.Incoming) string {
	f.got = append(f.got, in)
	return "reply:" + in.Text
}

type sentReply struct{ token, text string }

type fakeReplier struct {
	mu   sync.Mutex
	sent []sentReply
	err  error
}

func (f *fakeReplier) Reply(_ context.Context, token, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentReply{token, text})
	return f.err
}

type fixture struct {
	router    *gin.Engine
	responder *fakeResponder
	replier   *fakeReplier
}

func newFixture(t *testing.T, opts WebhookOptions) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tbl := sheet.NewMemoryTable("processed_events", eventlog.Header)
	gate := dedup.New(eventlog.New(tbl), 24*time.Hour, logging.Discard())
	f := &fixture{router: gin.New(), responder: &fakeResponder{}, replier: &fakeReplier{}}
	NewWebhook(gate, f.responder, f.replier, logging.Discard(), opts).Register(f.router)
	return f
}

func (f *fixture) post(t *testing.T, body, signature string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Line-Signature", signature)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w.Code
}

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type event map[string]any

func source(kind string) map[string]any {
	switch kind {
	case "group":
		return map[string]any{"type": "group", "groupId": "G1", "userId": "U1"}
	case "room":
		return map[string]any{"type": "room", "roomId": "R1", "userId": "U1"}
	}
	return map[string]any{"type": "user", "userId": "U1"}
}

func textEvent(id, sourceType, text string) event {
	return event{
		"type":            "message",
		"mode":            "active",
		"timestamp":       1715300000000,
		"webhookEventId":  id,
		"deliveryContext": map[string]any{"isRedelivery": false},
		"replyToken":      "rt-" + id,
		"source":          source(sourceType),
		"message":         map[string]any{"id": "m-" + id, "type": "text", "text": text, "quoteToken": "qt-" + id},
	}
}

func (e event) message() map[string]any { return e["message"].(map[string]any) }

func mentionOf(userID string, index, length int) map[string]any {
	return map[string]any{"mentionees": []map[string]any{
		{"index": index, "length": length, "type": "user", "userId": userID},
	}}
}

func encode(t *testing.T, destination string, events ...event) string {
	t.Helper()
	if events == nil {
		events = []event{}
	}
	b, err := json.Marshal(map[string]any{"destination": destination, "events": events})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func TestWebhook_DuplicateEventIDProcessedOnce(t *testing.T) {
	f := newFixture(t, WebhookOptions{})
	body := encode(t, "Ubot", textEvent("ev-1", "user", "ねむい"))

	if code := f.post(t, body, ""); code != http.StatusOK {
		t.Fatalf("first delivery status %d", code)
	}
	if code := f.post(t, body, ""); code != http.StatusOK {
		t.Fatalf("second delivery status %d", code)
	}
	if len(f.responder.got) != 1 {
		t.Fatalf("expected one handled message, got %d", len(f.responder.got))
	}
	if len(f.replier.sent) != 1 || f.replier.sent[0].token != "rt-ev-1" || f.replier.sent[0].text != "reply:ねむい" {
		t.Fatalf("unexpected replies: %+v", f.replier.sent)
	}
	in := f.responder.got[0]
	if !in.Direct || in.MessageID != "m-ev-1" || in.UserID != "U1" || in.Channel != Channel {
		t.Fatalf("unexpected incoming: %+v", in)
	}
}

func TestWebhook_RedeliverySkipped(t *testing.T) {
	f := newFixture(t, WebhookOptions{})
	ev := textEvent("ev-2", "user", "hi")
	ev["deliveryContext"] = map[string]any{"isRedelivery": true}

	if code := f.post(t, encode(t, "Ubot", ev), ""); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if len(f.responder.got) != 0 || len(f.replier.sent) != 0 {
		t.Fatalf("redelivered event must not be processed")
	}
}

func TestWebhook_GroupNeedsMention(t *testing.T) {
	f := newFixture(t, WebhookOptions{BotUserID: "Ubot"})
	plain := textEvent("ev-3", "group", "みんなおはよう")
	other := textEvent("ev-3b", "room", "@A やあ")
	other.message()["mention"] = mentionOf("UA", 0, 2)
	mentioned := textEvent("ev-4", "group", "@おもち カレー食べた")
	mentioned.message()["quotedMessageId"] = "m-0"
	mentioned.message()["mention"] = mentionOf("Ubot", 0, 4)

	f.post(t, encode(t, "Udest", plain, other, mentioned), "")

	if len(f.responder.got) != 1 {
		t.Fatalf("expected only the mentioned message, got %+v", f.responder.got)
	}
	in := f.responder.got[0]
	if in.Text != "カレー食べた" || in.Direct || in.QuotedMessageID != "m-0" || in.UserID != "U1" {
		t.Fatalf("unexpected incoming: %+v", in)
	}
}

func TestWebhook_DestinationIdentifiesBot(t *testing.T) {
	f := newFixture(t, WebhookOptions{})
	ev := textEvent("ev-8", "room", "@おもち ただいま")
	ev.message()["mention"] = mentionOf("Udest", 0, 4)

	f.post(t, encode(t, "Udest", ev), "")

	if len(f.responder.got) != 1 || f.responder.got[0].Text != "ただいま" {
		t.Fatalf("mention of the destination must address the bot: %+v", f.responder.got)
	}
}

func TestWebhook_FollowSendsWelcome(t *testing.T) {
	f := newFixture(t, WebhookOptions{})
	follow := event{
		"type":           "follow",
		"mode":           "active",
		"timestamp":      1715300000000,
		"webhookEventId": "ev-5",
		"replyToken":     "rt",
		"source":         source("user"),
		"follow":         map[string]any{"isUnblocked": false},
	}
	f.post(t, encode(t, "Ubot", follow), "")
	if len(f.replier.sent) != 1 || f.replier.sent[0].text != welcomeText {
		t.Fatalf("unexpected replies: %+v", f.replier.sent)
	}
}

func TestWebhook_OtherEventsIgnored(t *testing.T) {
	f := newFixture(t, WebhookOptions{})
	sticker := textEvent("ev-9", "user", "")
	sticker["message"] = map[string]any{"id": "m-9", "type": "sticker", "packageId": "1", "stickerId": "2", "stickerResourceType": "STATIC"}
	unfollow := event{"type": "unfollow", "mode": "active", "timestamp": 1715300000000, "webhookEventId": "ev-10", "source": source("user")}

	if code := f.post(t, encode(t, "Ubot", sticker, unfollow), ""); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if len(f.responder.got) != 0 || len(f.replier.sent) != 0 {
		t.Fatalf("only text messages and follows get answers")
	}
}

func TestWebhook_Signature(t *testing.T) {
	f := newFixture(t, WebhookOptions{ChannelSecret: "s3cret"})
	body := encode(t, "Ubot", textEvent("ev-6", "user", "hi"))

	if code := f.post(t, body, "bm9wZQ=="); code != http.StatusUnauthorized {
		t.Fatalf("bad signature status %d", code)
	}
	if code := f.post(t, body, ""); code != http.StatusUnauthorized {
		t.Fatalf("missing signature status %d", code)
	}
	if code := f.post(t, body, sign("s3cret", body)); code != http.StatusOK {
		t.Fatalf("good signature status %d", code)
	}
	if len(f.responder.got) != 1 {
		t.Fatalf("signed event should be handled once")
	}
}

func TestWebhook_InvalidJSON(t *testing.T) {
	f := newFixture(t, WebhookOptions{})
	if code := f.post(t, "{", ""); code != http.StatusBadRequest {
		t.Fatalf("status %d", code)
	}
	signed := newFixture(t, WebhookOptions{ChannelSecret: "s3cret"})
	if code := signed.post(t, "{", sign("s3cret", "{")); code != http.StatusBadRequest {
		t.Fatalf("signed status %d", code)
	}
}

func TestWebhook_MissingReplyToken(t *testing.T) {
	f := newFixture(t, WebhookOptions{})
	ev := textEvent("ev-7", "user", "hi")
	delete(ev, "replyToken")
	f.post(t, encode(t, "Ubot", ev), "")
	if len(f.responder.got) != 1 || len(f.replier.sent) != 0 {
		t.Fatalf("message should be handled but not replied")
	}
}

func TestStripBotMentions(t *testing.T) {
	cases := []struct {
		name string
		text string
		m    *webhook.Mention
		want string
	}{
		{"no mention", "  hi ", nil, "hi"},
		{"leading", "@おもち カレー", &webhook.Mention{Mentionees: []webhook.MentioneeInterface{webhook.UserMentionee{Index: 0, Length: 4, UserId: "Ubot"}}}, "カレー"},
		{"surrogate pair before", "😀@おもち hi", &webhook.Mention{Mentionees: []webhook.MentioneeInterface{webhook.UserMentionee{Index: 2, Length: 4, UserId: "Ubot"}}}, "😀 hi"},
		{"other user kept", "@A @おもち yo", &webhook.Mention{Mentionees: []webhook.MentioneeInterface{
			webhook.UserMentionee{Index: 3, Length: 4, UserId: "Ubot"},
			webhook.UserMentionee{Index: 0, Length: 2, UserId: "UA"},
		}}, "@A  yo"},
		{"only others", "@A yo", &webhook.Mention{Mentionees: []webhook.MentioneeInterface{webhook.UserMentionee{Index: 0, Length: 2, UserId: "UA"}}}, "@A yo"},
		{"everyone", "@All yo", &webhook.Mention{Mentionees: []webhook.MentioneeInterface{webhook.AllMentionee{Index: 0, Length: 4}}}, "@All yo"},
	}
	for _, tc := range cases {
		if got := stripBotMentions(tc.text, tc.m, "Ubot"); got != tc.want {
			t.Errorf("%s: got %q want %q", tc.name, got, tc.want)
		}
	}
}

func TestClient_Reply(t *testing.T) {
	var gotAuth string
	var got struct {
		ReplyToken string           `json:"replyToken"`
		Messages   []map[string]any `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/bot/message/reply" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sentMessages":[{"id":"1","quoteToken":"q"}]}`))
	}))
	defer srv.Close()

	c := NewClient("tok", srv.URL, srv.Client())
	if err := c.Reply(context.Background(), "rt", "やあ"); err != nil {
		t.Fatalf("reply: %v", err)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("auth header %q", gotAuth)
	}
	if got.ReplyToken != "rt" || len(got.Messages) != 1 || got.Messages[0]["type"] != "text" || got.Messages[0]["text"] != "やあ" {
		t.Fatalf("unexpected body: %+v", got)
	}

	if err := NewClient("", srv.URL, nil).Reply(context.Background(), "rt", "x"); err != ErrNoAccessToken {
		t.Fatalf("expected ErrNoAccessToken, got %v", err)
	}
}

func TestClient_ReplyError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"Invalid reply token"}`))
	}))
	defer srv.Close()

	if err := NewClient("tok", srv.URL, nil).Reply(context.Background(), "rt", "x"); err == nil {
		t.Fatalf("expected API error")
	}
}
