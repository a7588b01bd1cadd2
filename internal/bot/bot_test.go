package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	"omochi-bot/internal/logging"
	"omochi-bot/internal/sheet"
	"omochi-bot/internal/storage"
	"omochi-bot/internal/users"
)

var jst = time.FixedZone("JST", 9*3600)

type fakeQuipper struct{ thread []string }

func (f *fakeQuipper) Quip(_ context.Context, text string, thread []string) string {
	f.thread = thread
	return "ツッコミ:" + text
}

type fixture struct {
	now   time.Time
	log   *sheet.MemoryTable
	store *storage.Store
	names *users.Directory
	quips *fakeQuipper
	h     *Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{now: time.Date(2024, 5, 10, 9, 0, 0, 0, jst), quips: &fakeQuipper{}}
	clock := func() time.Time { return f.now }
	f.log = sheet.NewMemoryTable("log", storage.Header)
	f.store = storage.New(f.log, jst, storage.WithClock(clock))
	f.names = users.New(sheet.NewMemoryTable("users", users.Header))
	if err := f.names.SetName(context.Background(), "UA", "A"); err != nil {
		t.Fatalf("seed name: %v", err)
	}
	f.h = New(f.store, f.names, f.quips, jst, logging.Discard(), WithClock(clock))
	return f
}

func (f *fixture) send(text string) string {
	return f.h.Handle(context.Background(), Incoming{Channel: "line", UserID: "UA", Text: text, Direct: true})
}

func TestHandle_RecordsAndRepliesWithTodaysLog(t *testing.T) {
	f := newFixture(t)
	f.send("おはよう")
	f.now = f.now.Add(15 * time.Minute)
	reply := f.send("眠い")

	want := "ツッコミ:眠い\n09:00 おはよう\n09:15 眠い"
	if reply != want {
		t.Fatalf("reply:\n got %q\nwant %q", reply, want)
	}
	rows, _ := f.log.Rows(context.Background())
	if len(rows) != 2 || rows[1][2] != "眠い" || rows[1][3] != "ツッコミ:眠い" {
		t.Fatalf("rows: %v", rows)
	}
}

func TestHandle_GroupReplyOmitsTodaysLog(t *testing.T) {
	f := newFixture(t)
	f.send("おはよう")
	reply := f.h.Handle(context.Background(), Incoming{Channel: "line", UserID: "UA", Text: "やあ"})
	if strings.Contains(reply, "おはよう") {
		t.Fatalf("group reply must not include the day's log: %q", reply)
	}
}

func TestHandle_DeleteByTimeNotFound(t *testing.T) {
	f := newFixture(t)
	f.now = time.Date(2024, 5, 10, 9, 15, 0, 0, jst)
	f.send("眠い")

	reply := f.send("/delete 09:00")
	if reply != "09:00のメッセージが見つかりません。今日のメッセージのみ削除できます。" {
		t.Fatalf("unexpected reply %q", reply)
	}
	rows, _ := f.log.Rows(context.Background())
	if len(rows) != 1 {
		t.Fatalf("no row may be deleted, rows=%v", rows)
	}
}

func TestHandle_DeleteCommands(t *testing.T) {
	f := newFixture(t)
	f.send("おはよう")
	f.now = f.now.Add(15 * time.Minute)
	f.send("眠い")

	if got := f.send("/delete 9:00"); got != "9:00のメッセージ「おはよう」を削除しました。" {
		t.Fatalf("delete by time: %q", got)
	}
	if got := f.send("/delete"); got != "09:15のメッセージ「眠い」を削除しました。" {
		t.Fatalf("delete latest: %q", got)
	}
	if got := f.send("/delete"); got != "削除できるメッセージが見つかりません。" {
		t.Fatalf("nothing left: %q", got)
	}
	if got := f.send("/delete 25:00"); !strings.HasPrefix(got, "時間の形式が正しくありません") {
		t.Fatalf("bad clock: %q", got)
	}
	if got := f.send("/deleteall"); !strings.HasPrefix(got, "削除コマンドの形式が正しくありません") {
		t.Fatalf("bad command: %q", got)
	}
}

func TestHandle_OnboardingAndSetName(t *testing.T) {
	f := newFixture(t)
	in := Incoming{Channel: "line", UserID: "UB", Text: "こんにちは", Direct: true}
	if got := f.h.Handle(context.Background(), in); got != "あなたの名前を教えて！" {
		t.Fatalf("first contact: %q", got)
	}
	in.Text = "もちこ"
	if got := f.h.Handle(context.Background(), in); got != "名前を「もちこ」に設定したよ！" {
		t.Fatalf("name answer: %q", got)
	}
	if name, _ := f.names.DisplayName(context.Background(), "UB"); name != "もちこ" {
		t.Fatalf("stored name: %q", name)
	}
	rows, _ := f.log.Rows(context.Background())
	if len(rows) != 0 {
		t.Fatalf("onboarding must not be logged: %v", rows)
	}

	if got := f.send("/setname おもち"); got != "名前を「おもち」に設定したよ！" {
		t.Fatalf("setname: %q", got)
	}
	if got := f.send("ヘルプ"); !strings.Contains(got, "おもち、まったりしていってね！") {
		t.Fatalf("help: %q", got)
	}
}

func TestHandle_QuotedThreadGoesToQuipper(t *testing.T) {
	f := newFixture(t)
	f.h.Handle(context.Background(), Incoming{Channel: "line", UserID: "UA", Text: "カレー食べた", MessageID: "m1"})
	f.h.Handle(context.Background(), Incoming{Channel: "line", UserID: "UA", Text: "おいしかった", MessageID: "m2", QuotedMessageID: "m1"})
	if len(f.quips.thread) != 1 || f.quips.thread[0] != "カレー食べた" {
		t.Fatalf("thread passed to quipper: %v", f.quips.thread)
	}
}
