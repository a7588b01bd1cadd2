package notionsync

import (
	"context"
	"fmt"
	"time"

	"omochi-bot/internal/timeutil"
)

type FinalizeResult struct {
	Day        string `json:"day"`
	PageID     string `json:"page_id,omitempty"`
	Title      string `json:"title,omitempty"`
	Utterances int    `json:"utterances"`
	Updated    bool   `json:"updated"`
	Reason     string `json:"reason,omitempty"`
}

// DayFinalizer rewrites a finished day's page with the full day's content and
// a title generated from all of it. It never creates a page.
type DayFinalizer struct {
	deps Deps
	opts Options
}

func NewDayFinalizer(d Deps, o Options) *DayFinalizer {
	return &DayFinalizer{deps: d, opts: o.withDefaults()}
}

func (f *DayFinalizer) Run(ctx context.Context, day time.Time) (FinalizeResult, error) {
	loc := f.opts.Location
	day = day.In(loc)
	start, end := timeutil.StartOfDay(day), timeutil.EndOfDay(day)
	res := FinalizeResult{Day: start.Format(timeutil.DateLayout)}
	log := f.deps.Logger.WithField("job", "finalize").WithField("day", res.Day)

	us, err := f.deps.Messages.Range(ctx, start, end)
	if err != nil {
		return res, fmt.Errorf("collect %s: %w", res.Day, err)
	}
	res.Utterances = len(us)
	if len(us) == 0 {
		res.Reason = "no utterances"
		log.Info("no messages for the day, skipping finalization")
		return res, nil
	}

	page, err := f.deps.Documents.FindPage(ctx, res.Day, f.opts.DailyLabel)
	if err != nil {
		return res, fmt.Errorf("find page for %s: %w", res.Day, err)
	}
	if page == nil {
		res.Reason = "no page"
		log.Info("no page for the day, skipping finalization")
		return res, nil
	}
	res.PageID = page.ID

	groups := groupDaily(ctx, f.deps, us, loc)
	res.Title = dailyTitle(start, f.deps.Titles.TitleOrPlaceholder(ctx, dailyTitleSource(groups)))
	if err := f.deps.Documents.ReplacePage(ctx, page.ID, res.Title, dailyBlocks(groups, f.opts.FooterURL)); err != nil {
		replaceFailed(log, err, page.ID, res.Day)
		return res, fmt.Errorf("finalize page %s: %w", page.ID, err)
	}
	res.Updated = true
	log.WithField("page", page.ID).WithField("title", res.Title).Info("finalized day page")
	return res, nil
}
