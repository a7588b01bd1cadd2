package notionsync

import (
	"context"
	"fmt"

	"omochi-bot/internal/notion"
	"omochi-bot/internal/storage"
	"omochi-bot/internal/timeutil"
)

type Decision string

const (
	DecisionSkip   Decision = "skip"
	DecisionCreate Decision = "create"
	DecisionUpdate Decision = "update"
)

type Result struct {
	Decision   Decision        `json:"decision"`
	Reason     string          `json:"reason,omitempty"`
	Day        string          `json:"day"`
	PageID     string          `json:"page_id,omitempty"`
	Title      string          `json:"title,omitempty"`
	Utterances int             `json:"utterances"`
	Finalized  *FinalizeResult `json:"finalized,omitempty"`
}

// HourlySyncer keeps today's page in step with the message log.
type HourlySyncer struct {
	deps      Deps
	opts      Options
	finalizer *DayFinalizer
}

func NewHourlySyncer(d Deps, o Options) *HourlySyncer {
	return &HourlySyncer{deps: d, opts: o.withDefaults(), finalizer: NewDayFinalizer(d, o)}
}

func (h *HourlySyncer) Run(ctx context.Context) (Result, error) {
	loc := h.opts.Location
	now := h.deps.now().In(loc)
	todayStart := timeutil.StartOfDay(now)
	res := Result{Day: todayStart.Format(timeutil.DateLayout)}
	log := h.deps.Logger.WithField("job", "hourly").WithField("day", res.Day)

	if now.Hour() == 0 {
		fr, err := h.finalizer.Run(ctx, todayStart.AddDate(0, 0, -1))
		if err != nil {
			log.WithError(err).Error("finalizing yesterday failed")
		}
		res.Finalized = &fr
	}

	us, err := h.deps.Messages.Range(ctx, todayStart, now)
	if err != nil {
		return res, fmt.Errorf("collect today: %w", err)
	}
	res.Utterances = len(us)
	if len(us) == 0 {
		res.Decision, res.Reason = DecisionSkip, "no utterances"
		log.Info("no messages today yet, skipping")
		return res, nil
	}

	page, err := h.deps.Documents.FindPage(ctx, res.Day, h.opts.DailyLabel)
	if err != nil {
		return res, fmt.Errorf("find today's page: %w", err)
	}
	res.Decision, res.Reason = h.decide(ctx, page, us)
	if page != nil {
		res.PageID = page.ID
	}
	log = log.WithField("decision", res.Decision)
	if res.Decision == DecisionSkip {
		log.Info(res.Reason)
		return res, nil
	}

	groups := groupDaily(ctx, h.deps, us, loc)
	res.Title = dailyTitle(todayStart, h.deps.Titles.TitleOrPlaceholder(ctx, dailyTitleSource(groups)))
	blocks := dailyBlocks(groups, h.opts.FooterURL)

	if res.Decision == DecisionCreate {
		id, err := h.deps.Documents.CreatePage(ctx, notion.NewPage{
			Title:    res.Title,
			Label:    h.opts.DailyLabel,
			Children: blocks,
		})
		if err != nil {
			return res, fmt.Errorf("create today's page: %w", err)
		}
		res.PageID = id
	} else if err := h.deps.Documents.ReplacePage(ctx, page.ID, res.Title, blocks); err != nil {
		replaceFailed(log, err, page.ID, res.Day)
		return res, fmt.Errorf("update today's page: %w", err)
	}
	log.WithField("page", res.PageID).WithField("messages", len(us)).Info("synced today's page")
	return res, nil
}

func (h *HourlySyncer) decide(ctx context.Context, page *notion.Page, us []storage.Utterance) (Decision, string) {
	if page == nil {
		return DecisionCreate, "no page for today"
	}
	last, err := h.deps.Documents.LastEdited(ctx, page.ID)
	if err != nil {
		h.deps.Logger.WithError(err).WithField("page", page.ID).Warn("last edited time unavailable")
		return DecisionUpdate, "last edited time unavailable"
	}
	if last.IsZero() {
		return DecisionUpdate, "last edited time unavailable"
	}
	for _, u := range us {
		if u.Timestamp.After(last) {
			return DecisionUpdate, "new messages since last edit"
		}
	}
	return DecisionSkip, "no new messages since last edit"
}
