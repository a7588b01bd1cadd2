package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"omochi-bot/internal/logging"
)

type fakeLLM struct {
	reply string
	err   error
	got   []Message
}

func (f *fakeLLM) Generate(_ context.Context, msgs []Message) (Response, error) {
	f.got = msgs
	if f.err != nil {
		return Response{}, f.err
	}
	return Response{Content: f.reply}, nil
}

func TestWriter_Quip(t *testing.T) {
	f := &fakeLLM{reply: "  ねむいのはみんな一緒！\n"}
	w := NewWriter(f, "ツッコんで", "タイトル", 20, logging.Discard())
	got := w.Quip(context.Background(), "眠い", []string{"おはよう"})
	if got != "ねむいのはみんな一緒！" {
		t.Fatalf("quip: %q", got)
	}
	prompt := f.got[0].Content
	if !strings.HasPrefix(prompt, "おはよう\n眠い") || !strings.HasSuffix(prompt, "ツッコんで") {
		t.Fatalf("prompt layout: %q", prompt)
	}

	f.err = errors.New("boom")
	if got := w.Quip(context.Background(), "眠い", nil); got != PlaceholderQuip {
		t.Fatalf("failure must yield placeholder, got %q", got)
	}
}

func TestWriter_Title(t *testing.T) {
	f := &fakeLLM{reply: "今日のパワーワードは\nとても長いタイトルになってしまいました"}
	w := NewWriter(f, "", "タイトル", 20, logging.Discard())
	got, err := w.Title(context.Background(), "content")
	if err != nil {
		t.Fatalf("title: %v", err)
	}
	if n := len([]rune(got)); n != 20 || strings.Contains(got, "\n") {
		t.Fatalf("title must be one line of 20 runes, got %q (%d)", got, n)
	}

	f.err = errors.New("quota")
	if _, err := w.Title(context.Background(), "x"); err == nil {
		t.Fatalf("Title must surface the error")
	}
	if got := w.TitleOrPlaceholder(context.Background(), "x"); got != PlaceholderTitle {
		t.Fatalf("placeholder expected, got %q", got)
	}
	if got := NewWriter(nil, "", "", 0, logging.Discard()).TitleOrPlaceholder(context.Background(), "x"); got != PlaceholderTitle {
		t.Fatalf("missing client must fall back to placeholder")
	}
}

func TestTruncate(t *testing.T) {
	if Truncate("おもちおもち", 3) != "おもち" || Truncate("abc", 5) != "abc" {
		t.Fatalf("truncate by runes")
	}
}
