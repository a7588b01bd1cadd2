package llm

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	PlaceholderQuip  = "申し訳ございません、現在応答できません。"
	PlaceholderTitle = "おきもち"
)

// Writer turns prompts into the two short texts the bot needs: a one-line
// quip for each message and a title for a day's page. Failures never
// propagate; the placeholders are returned instead.
type Writer struct {
	client      Client
	quipPrompt  string
	titlePrompt string
	titleMaxLen int
	logger      logrus.FieldLogger
}

func NewWriter(client Client, quipPrompt, titlePrompt string, titleMaxLen int, logger logrus.FieldLogger) *Writer {
	if titleMaxLen <= 0 {
		titleMaxLen = 20
	}
	return &Writer{
		client:      client,
		quipPrompt:  quipPrompt,
		titlePrompt: titlePrompt,
		titleMaxLen: titleMaxLen,
		logger:      logger,
	}
}

// Quip answers text. thread holds earlier messages of a reply chain, oldest
// first, and may be empty.
func (w *Writer) Quip(ctx context.Context, text string, thread []string) string {
	var b strings.Builder
	if len(thread) > 0 {
		b.WriteString(strings.Join(thread, "\n"))
		b.WriteString("\n")
	}
	b.WriteString(text)
	out, err := w.ask(ctx, b.String(), w.quipPrompt)
	if err != nil {
		w.logger.WithError(err).Warn("quip generation failed")
		return PlaceholderQuip
	}
	if out == "" {
		return PlaceholderQuip
	}
	return out
}

// Title summarizes a day's content into at most titleMaxLen runes.
func (w *Writer) Title(ctx context.Context, content string) (string, error) {
	out, err := w.ask(ctx, content, w.titlePrompt)
	if err != nil {
		return "", err
	}
	out = Truncate(strings.Join(strings.Fields(out), " "), w.titleMaxLen)
	if out == "" {
		return PlaceholderTitle, nil
	}
	return out, nil
}

// TitleOrPlaceholder is Title with failures replaced by PlaceholderTitle.
func (w *Writer) TitleOrPlaceholder(ctx context.Context, content string) string {
	t, err := w.Title(ctx, content)
	if err != nil {
		w.logger.WithError(err).Warn("title generation failed, using placeholder")
		return PlaceholderTitle
	}
	return t
}

func (w *Writer) ask(ctx context.Context, content, prompt string) (string, error) {
	if w.client == nil {
		return "", errNoClient
	}
	resp, err := w.client.Generate(ctx, []Message{{Role: "user", Content: content + "\n\n" + prompt}})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
