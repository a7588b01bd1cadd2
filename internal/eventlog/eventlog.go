// Package eventlog keeps processed webhook event ids in the processed_events
// sheet so that redeliveries can be recognised.
package eventlog

import (
	"context"
	"fmt"
	"time"

	"omochi-bot/internal/sheet"
)

var Header = []string{"処理時刻", "WebhookEventId"}

const (
	colTime = 0
	colID   = 1
)

type Log struct {
	table sheet.Table
}

func New(table sheet.Table) *Log {
	return &Log{table: table}
}

// Open resolves the named sheet in book, creating it with the header if needed.
func Open(ctx context.Context, book sheet.Book, name string) (*Log, error) {
	t, err := book.Table(ctx, name, Header)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	return New(t), nil
}

// Seen reports whether id was recorded strictly after since.
func (l *Log) Seen(ctx context.Context, id string, since time.Time) (bool, error) {
	rows, err := l.table.Rows(ctx)
	if err != nil {
		return false, fmt.Errorf("read event log: %w", err)
	}
	for _, row := range rows {
		if sheet.Cell(row, colID) != id {
			continue
		}
		at, ok := parseTime(sheet.Cell(row, colTime))
		if ok && at.After(since) {
			return true, nil
		}
	}
	return false, nil
}

func (l *Log) Record(ctx context.Context, id string, at time.Time) error {
	if err := l.table.Append(ctx, []string{at.Format(time.RFC3339Nano), id}); err != nil {
		return fmt.Errorf("record event %s: %w", id, err)
	}
	return nil
}

// Prune deletes entries recorded before the cutoff, bottom-up so that
// earlier indexes stay valid. Rows with an unreadable time are left alone.
func (l *Log) Prune(ctx context.Context, before time.Time) (int, error) {
	rows, err := l.table.Rows(ctx)
	if err != nil {
		return 0, fmt.Errorf("read event log: %w", err)
	}
	removed := 0
	for i := len(rows) - 1; i >= 0; i-- {
		at, ok := parseTime(sheet.Cell(rows[i], colTime))
		if !ok || !at.Before(before) {
			continue
		}
		if err := l.table.Delete(ctx, i); err != nil {
			return removed, fmt.Errorf("prune event log row %d: %w", i, err)
		}
		removed++
	}
	return removed, nil
}

func parseTime(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
