package notionsync

import (
	"context"
	"fmt"
	"time"

	"omochi-bot/internal/checkpoint"
	"omochi-bot/internal/notion"
	"omochi-bot/internal/timeutil"
)

type MonthlyOutcome string

const (
	MonthlyInitialized MonthlyOutcome = "initialized"
	MonthlyEmpty       MonthlyOutcome = "empty"
	MonthlyExported    MonthlyOutcome = "exported"
	MonthlyNoMessages  MonthlyOutcome = "no_messages"
	MonthlyComplete    MonthlyOutcome = "complete"
)

type MonthlyResult struct {
	Epoch   string         `json:"epoch"`
	Outcome MonthlyOutcome `json:"outcome"`
	UserID  string         `json:"user_id,omitempty"`
	PageID  string         `json:"page_id,omitempty"`
	Title   string         `json:"title,omitempty"`
	Pruned  []string       `json:"pruned,omitempty"`
	Pending int            `json:"pending"`
	Total   int            `json:"total"`
}

// MonthlyExporter exports the previous month one user per run, recording
// progress in the checkpoint store.
type MonthlyExporter struct {
	deps Deps
	opts Options
}

func NewMonthlyExporter(d Deps, o Options) *MonthlyExporter {
	return &MonthlyExporter{deps: d, opts: o.withDefaults()}
}

// Epoch is the month this run works on.
func (m *MonthlyExporter) Epoch() string {
	return timeutil.PreviousMonth(m.deps.now().In(m.opts.Location))
}

func (m *MonthlyExporter) Run(ctx context.Context) (MonthlyResult, error) {
	epoch := m.Epoch()
	res := MonthlyResult{Epoch: epoch}
	log := m.deps.Logger.WithField("job", "monthly").WithField("epoch", epoch)

	start, end, err := timeutil.MonthRange(epoch, m.opts.Location)
	if err != nil {
		return res, fmt.Errorf("month range %s: %w", epoch, err)
	}

	pruned, err := m.deps.Checkpoints.PruneBefore(ctx, epoch)
	if err != nil {
		log.WithError(err).Warn("pruning old checkpoints failed")
	}
	res.Pruned = pruned

	status, found, err := m.deps.Checkpoints.Load(ctx, epoch)
	if err != nil {
		return res, err
	}
	if !found {
		status, err = m.initialize(ctx, epoch, start, end)
		if err != nil {
			return res, err
		}
		if len(status) == 0 {
			res.Outcome = MonthlyEmpty
			log.Info("nobody posted during the month")
			return res, nil
		}
		log.WithField("users", len(status)).Info("initialized monthly export status")
	}
	res.Total = len(status)

	pending := status.Pending()
	if len(pending) == 0 {
		res.Outcome = MonthlyComplete
		log.Info("monthly export already complete")
		return res, nil
	}
	userID := pending[0]
	res.UserID = userID
	log = log.WithField("user", userID)

	us, err := m.deps.Messages.RangeForUser(ctx, userID, start, end)
	if err != nil {
		return res, fmt.Errorf("collect %s for %s: %w", epoch, userID, err)
	}
	if len(us) == 0 {
		status[userID] = true
		if err := m.deps.Checkpoints.Save(ctx, epoch, status); err != nil {
			return res, err
		}
		res.Outcome, res.Pending = MonthlyNoMessages, len(pending)-1
		log.Info("user has no messages left for the month, marked done")
		return res, nil
	}

	name := displayName(ctx, m.deps, userID, unnamedMonthly(userID))
	res.Title = monthlyTitle(name, epoch)
	id, err := m.deps.Documents.CreatePage(ctx, notion.NewPage{
		Title:    res.Title,
		Label:    m.opts.MonthlyLabel,
		Memo:     monthlyMemo(name, epoch),
		Children: monthlyBlocks(us, m.opts.Location, m.opts.FooterURL),
	})
	if err != nil {
		res.Pending = len(pending)
		return res, fmt.Errorf("create monthly page for %s: %w", userID, err)
	}
	res.PageID = id

	status[userID] = true
	if err := m.deps.Checkpoints.Save(ctx, epoch, status); err != nil {
		return res, err
	}
	res.Outcome, res.Pending = MonthlyExported, len(pending)-1
	log.WithField("page", id).WithField("messages", len(us)).Info("exported monthly page")
	return res, nil
}

// Status returns the checkpoint of the current epoch without changing it.
func (m *MonthlyExporter) Status(ctx context.Context) (string, checkpoint.Status, bool, error) {
	epoch := m.Epoch()
	st, found, err := m.deps.Checkpoints.Load(ctx, epoch)
	return epoch, st, found, err
}

// initialize marks every user who posted during the month as pending and
// persists the map, empty or not.
func (m *MonthlyExporter) initialize(ctx context.Context, epoch string, start, end time.Time) (checkpoint.Status, error) {
	us, err := m.deps.Messages.Range(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", epoch, err)
	}
	status := checkpoint.Status{}
	for _, u := range us {
		if u.UserID != "" {
			status[u.UserID] = false
		}
	}
	if err := m.deps.Checkpoints.Save(ctx, epoch, status); err != nil {
		return nil, err
	}
	return status, nil
}
