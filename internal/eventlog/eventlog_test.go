package eventlog

import (
	"context"
	"testing"
	"time"

	"omochi-bot/internal/sheet"
)

func TestLog_SeenAndPrune(t *testing.T) {
	ctx := context.Background()
	tbl := sheet.NewMemoryTable("processed_events", Header)
	l := New(tbl)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	if err := l.Record(ctx, "old", base.Add(-30*time.Hour)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := l.Record(ctx, "new", base.Add(-time.Hour)); err != nil {
		t.Fatalf("record: %v", err)
	}
	_ = tbl.Append(ctx, []string{"garbage", "broken"})

	since := base.Add(-24 * time.Hour)
	if ok, _ := l.Seen(ctx, "new", since); !ok {
		t.Fatalf("new event must be seen")
	}
	if ok, _ := l.Seen(ctx, "old", since); ok {
		t.Fatalf("event outside window must not count")
	}
	if ok, _ := l.Seen(ctx, "broken", since); ok {
		t.Fatalf("row without a time must not count")
	}

	n, err := l.Prune(ctx, since)
	if err != nil || n != 1 {
		t.Fatalf("prune: n=%d err=%v", n, err)
	}
	rows, _ := tbl.Rows(ctx)
	if len(rows) != 2 || rows[0][1] != "new" {
		t.Fatalf("unexpected rows after prune: %v", rows)
	}
}
