package notionsync

import (
	"context"
	"sort"
	"strings"
	"time"

	"omochi-bot/internal/notion"
	"omochi-bot/internal/storage"
	"omochi-bot/internal/timeutil"
)

const (
	unnamedDaily = "誰か"
	replyPrefix  = `    "( ๑•ᴗ•๑)" ＜ `
)

type dailyEntry struct {
	line  string
	reply string
}

type dailyGroup struct {
	name    string
	entries []dailyEntry
}

// groupDaily groups utterances by display name, in order of first appearance.
func groupDaily(ctx context.Context, d Deps, us []storage.Utterance, loc *time.Location) []dailyGroup {
	resolved := map[string]string{}
	index := map[string]int{}
	var groups []dailyGroup
	for _, u := range us {
		name, ok := resolved[u.UserID]
		if !ok {
			name = displayName(ctx, d, u.UserID, unnamedDaily)
			resolved[u.UserID] = name
		}
		e := dailyEntry{line: "「" + u.Text + "」(" + u.Timestamp.In(loc).Format(timeutil.ClockLayout) + ")"}
		if u.Reply != "" {
			e.reply = replyPrefix + u.Reply
		}
		i, ok := index[name]
		if !ok {
			i = len(groups)
			index[name] = i
			groups = append(groups, dailyGroup{name: name})
		}
		groups[i].entries = append(groups[i].entries, e)
	}
	return groups
}

func dailyBlocks(groups []dailyGroup, footer string) []notion.Block {
	var blocks []notion.Block
	for _, g := range groups {
		blocks = append(blocks, notion.Heading3(g.name))
		for _, e := range g.entries {
			blocks = append(blocks, notion.Paragraph(e.line))
			if e.reply != "" {
				blocks = append(blocks, notion.Paragraph(e.reply))
			}
		}
	}
	return append(blocks, notion.LinkParagraph(footer))
}

// dailyTitleSource is the text handed to the title generator.
func dailyTitleSource(groups []dailyGroup) string {
	var lines []string
	for _, g := range groups {
		lines = append(lines, g.name)
		for _, e := range g.entries {
			lines = append(lines, e.line)
			if e.reply != "" {
				lines = append(lines, strings.TrimLeft(e.reply, " "))
			}
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func dailyTitle(day time.Time, generated string) string {
	return day.Format(timeutil.DateLayout) + " " + generated
}

// monthlyBlocks renders one heading per calendar date and one paragraph per
// message, in timestamp order.
func monthlyBlocks(us []storage.Utterance, loc *time.Location, footer string) []notion.Block {
	sorted := append([]storage.Utterance(nil), us...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	var blocks []notion.Block
	current := ""
	for _, u := range sorted {
		ts := u.Timestamp.In(loc)
		date := ts.Format("2006/01/02")
		if date != current {
			blocks = append(blocks, notion.Heading3(date))
			current = date
		}
		blocks = append(blocks, notion.Paragraph(u.Text+"("+ts.Format(timeutil.ClockLayout)+")"))
	}
	return append(blocks, notion.LinkParagraph(footer))
}

func monthlyTitle(name, epoch string) string {
	return name + "さんの" + strings.Replace(epoch, "-", "年", 1) + "月のおきもち"
}

func monthlyMemo(name, epoch string) string {
	return epoch + " の " + name + " のレポート"
}

func unnamedMonthly(userID string) string {
	short := userID
	if len(short) > 8 {
		short = short[:8]
	}
	return "名前未設定ユーザー (" + short + ")"
}

func displayName(ctx context.Context, d Deps, userID, fallback string) string {
	if d.Names == nil {
		return fallback
	}
	name, err := d.Names.DisplayName(ctx, userID)
	if err != nil {
		d.Logger.WithError(err).WithField("user", userID).Warn("display name lookup failed")
		return fallback
	}
	if name == "" {
		return fallback
	}
	return name
}
