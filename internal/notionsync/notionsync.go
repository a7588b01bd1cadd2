// Package notionsync republishes the message log to Notion: an hourly upsert
// of today's page, a final rewrite of yesterday's page after midnight, and a
// resumable per-user monthly export.
//
// Every run reads its state from the message log, Notion and the checkpoint
// store, so runs can be repeated or interrupted at any point.
package notionsync

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"omochi-bot/internal/checkpoint"
	"omochi-bot/internal/notion"
	"omochi-bot/internal/storage"
)

type Messages interface {
	Range(ctx context.Context, start, end time.Time) ([]storage.Utterance, error)
	RangeForUser(ctx context.Context, userID string, start, end time.Time) ([]storage.Utterance, error)
}

type Documents interface {
	FindPage(ctx context.Context, titlePrefix, label string) (*notion.Page, error)
	LastEdited(ctx context.Context, pageID string) (time.Time, error)
	CreatePage(ctx context.Context, page notion.NewPage) (string, error)
	ReplacePage(ctx context.Context, pageID, title string, blocks []notion.Block) error
}

type Names interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

type Titles interface {
	TitleOrPlaceholder(ctx context.Context, content string) string
}

type Checkpoints interface {
	Load(ctx context.Context, epoch string) (checkpoint.Status, bool, error)
	Save(ctx context.Context, epoch string, st checkpoint.Status) error
	PruneBefore(ctx context.Context, epoch string) ([]string, error)
}

// Options carries the page conventions shared by all jobs.
type Options struct {
	Location     *time.Location
	DailyLabel   string
	MonthlyLabel string
	FooterURL    string
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.DailyLabel == "" {
		o.DailyLabel = "今日のおきもち"
	}
	if o.MonthlyLabel == "" {
		o.MonthlyLabel = "ひと月のおきもち"
	}
	if o.FooterURL == "" {
		o.FooterURL = "https://line.me/R/ti/p/@838dxysu"
	}
	return o
}

// Deps are the collaborators of the sync jobs.
type Deps struct {
	Messages    Messages
	Documents   Documents
	Names       Names
	Titles      Titles
	Checkpoints Checkpoints
	Logger      logrus.FieldLogger
	Now         func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

var _ Documents = (*notion.Client)(nil)

// replaceFailed logs a failed ReplacePage. Children are deleted before the new
// ones are appended, so a failure part-way can leave the page empty with a
// fresh last-edited time that makes later hourly runs skip it.
func replaceFailed(log logrus.FieldLogger, err error, pageID, day string) {
	log.WithError(err).WithField("page", pageID).
		Errorf("page replace failed, it may be left empty; repair with: omochi-sync finalize --date %s", day)
}
