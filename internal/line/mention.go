package line

import (
	"sort"
	"strings"
	"unicode/utf16"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

type span struct{ index, length int }

// botSpans returns the mentions of botUserID ordered by position. Index and
// length count UTF-16 code units.
func botSpans(m *webhook.Mention, botUserID string) []span {
	if m == nil || botUserID == "" {
		return nil
	}
	var spans []span
	for _, e := range m.Mentionees {
		if u, ok := e.(webhook.UserMentionee); ok && u.UserId == botUserID {
			spans = append(spans, span{int(u.Index), int(u.Length)})
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].index < spans[j].index })
	return spans
}

func mentionsBot(m *webhook.Mention, botUserID string) bool {
	return len(botSpans(m, botUserID)) > 0
}

// stripBotMentions removes the bot's mention spans from text and trims the
// result. Mentions of other users are kept.
func stripBotMentions(text string, m *webhook.Mention, botUserID string) string {
	spans := botSpans(m, botUserID)
	if len(spans) == 0 {
		return strings.TrimSpace(text)
	}
	units := utf16.Encode([]rune(text))

	var out []uint16
	last := 0
	for _, s := range spans {
		start, end := clamp(s.index, len(units)), clamp(s.index+s.length, len(units))
		if start > last {
			out = append(out, units[last:start]...)
		}
		if end > last {
			last = end
		}
	}
	if last < len(units) {
		out = append(out, units[last:]...)
	}
	return strings.TrimSpace(string(utf16.Decode(out)))
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}
