// Package app builds the object graph shared by the bot server, the sync CLI
// and the MCP server from a Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"omochi-bot/internal/bot"
	"omochi-bot/internal/checkpoint"
	"omochi-bot/internal/config"
	"omochi-bot/internal/dedup"
	"omochi-bot/internal/eventlog"
	"omochi-bot/internal/llm"
	"omochi-bot/internal/metrics"
	"omochi-bot/internal/notion"
	"omochi-bot/internal/notionsync"
	"omochi-bot/internal/props"
	"omochi-bot/internal/scheduler"
	"omochi-bot/internal/sheet"
	"omochi-bot/internal/storage"
	"omochi-bot/internal/timeutil"
	"omochi-bot/internal/users"
)

const (
	JobHourly  = "hourly_sync"
	JobMonthly = "monthly_export"

	// OutcomeDisabled is reported by sync jobs when Notion is not configured.
	OutcomeDisabled = "notion_disabled"
)

type App struct {
	Config   *config.Config
	Logger   logrus.FieldLogger
	Metrics  *metrics.Metrics
	Location *time.Location

	Messages    *storage.Store
	Users       *users.Directory
	Gate        *dedup.Gate
	Notion      *notion.Client
	Writer      *llm.Writer
	Checkpoints *checkpoint.Store
	Bot         *bot.Handler

	Hourly    *notionsync.HourlySyncer
	Finalizer *notionsync.DayFinalizer
	Monthly   *notionsync.MonthlyExporter

	closers []func() error
}

// New opens the storage backends and wires every component. Call Close when
// done.
func New(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics.New(),
		Location: loc,
	}

	book, err := OpenBook(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store, closeProps, err := OpenProps(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if closeProps != nil {
		a.closers = append(a.closers, closeProps)
	}

	if a.Messages, err = storage.Open(ctx, book, cfg.MessageSheet, a.Location); err != nil {
		a.Close()
		return nil, fmt.Errorf("open message sheet: %w", err)
	}
	if a.Users, err = users.Open(ctx, book, cfg.UserSheet); err != nil {
		a.Close()
		return nil, fmt.Errorf("open user sheet: %w", err)
	}
	events, err := eventlog.Open(ctx, book, cfg.EventSheet)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open event sheet: %w", err)
	}
	a.Gate = dedup.New(events, cfg.DedupWindow, logger.WithField("component", "dedup"), dedup.WithMetrics(a.Metrics))
	a.Checkpoints = checkpoint.New(store)

	a.Notion = notion.New(notion.Options{
		Token:         cfg.NotionToken,
		DatabaseID:    cfg.NotionDatabaseID,
		BaseURL:       cfg.NotionBaseURL,
		APIVersion:    cfg.NotionAPIVersion,
		Metrics:       a.Metrics,
		TitleProperty: cfg.NotionTitleProperty,
		LabelProperty: cfg.NotionLabelProperty,
		MemoProperty:  cfg.NotionMemoProperty,
	})
	if !a.Notion.Configured() {
		logger.Warn("Notion token or database id missing, sync jobs are disabled")
	}

	client, err := llm.NewFactory(cfg).CreateClient(cfg.LLMProvider)
	if err != nil {
		logger.WithError(err).Warn("LLM client unavailable, placeholder texts will be used")
	}
	a.Writer = llm.NewWriter(client, cfg.QuipPrompt, cfg.TitlePrompt, cfg.TitleMaxLen, logger.WithField("component", "llm"))

	a.Bot = bot.New(a.Messages, a.Users, a.Writer, a.Location, logger.WithField("component", "bot"), bot.WithMetrics(a.Metrics))

	deps := notionsync.Deps{
		Messages:    a.Messages,
		Documents:   a.Notion,
		Names:       a.Users,
		Titles:      a.Writer,
		Checkpoints: a.Checkpoints,
		Logger:      logger.WithField("component", "notionsync"),
	}
	opts := notionsync.Options{
		Location:     a.Location,
		DailyLabel:   cfg.DailyLabel,
		MonthlyLabel: cfg.MonthlyLabel,
		FooterURL:    cfg.FooterURL,
	}
	a.Hourly = notionsync.NewHourlySyncer(deps, opts)
	a.Finalizer = notionsync.NewDayFinalizer(deps, opts)
	a.Monthly = notionsync.NewMonthlyExporter(deps, opts)
	return a, nil
}

// OpenBook selects the sheet backend.
func OpenBook(ctx context.Context, cfg *config.Config) (sheet.Book, error) {
	switch cfg.SheetBackend {
	case config.SheetGoogle:
		if cfg.SpreadsheetID == "" {
			return nil, errors.New("SPREADSHEET_ID is required for the google sheet backend")
		}
		srv, err := sheet.NewSheetsService(ctx, cfg.GoogleCredentialsJSON, cfg.GoogleRefreshToken)
		if err != nil {
			return nil, fmt.Errorf("sheets service: %w", err)
		}
		return sheet.NewGoogleBook(srv, cfg.SpreadsheetID), nil
	case config.SheetXLSX:
		return sheet.OpenXLSX(cfg.XLSXPath)
	case config.SheetMemory:
		return sheet.NewMemoryBook(), nil
	default:
		return nil, fmt.Errorf("unknown sheet backend: %s", cfg.SheetBackend)
	}
}

// OpenProps selects the property store. The returned closer may be nil.
func OpenProps(ctx context.Context, cfg *config.Config) (props.Store, func() error, error) {
	switch cfg.PropsBackend {
	case config.PropsFile:
		s, err := props.NewFileStore(cfg.PropsFilePath)
		if err != nil {
			return nil, nil, fmt.Errorf("property file: %w", err)
		}
		return s, nil, nil
	case config.PropsRedis:
		s, err := props.NewRedisStore(ctx, cfg.RedisURL, cfg.RedisPrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("redis properties: %w", err)
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown props backend: %s", cfg.PropsBackend)
	}
}

// Jobs are the two scheduled sync jobs.
func (a *App) Jobs() []scheduler.Job {
	return []scheduler.Job{
		{Name: JobHourly, Spec: a.Config.HourlyCron, Run: a.RunHourly},
		{Name: JobMonthly, Spec: a.Config.MonthlyCron, Run: a.RunMonthly},
	}
}

func (a *App) RunHourly(ctx context.Context) (string, error) {
	if !a.Notion.Configured() {
		return OutcomeDisabled, nil
	}
	res, err := a.SyncHourly(ctx)
	if err != nil {
		return "error", err
	}
	return string(res.Decision), nil
}

func (a *App) RunMonthly(ctx context.Context) (string, error) {
	if !a.Notion.Configured() {
		return OutcomeDisabled, nil
	}
	res, err := a.ExportMonthly(ctx)
	if err != nil {
		return "error", err
	}
	return string(res.Outcome), nil
}

func (a *App) SyncHourly(ctx context.Context) (notionsync.Result, error) {
	return a.Hourly.Run(ctx)
}

func (a *App) ExportMonthly(ctx context.Context) (notionsync.MonthlyResult, error) {
	return a.Monthly.Run(ctx)
}

// FinalizeDay parses a YYYY-MM-DD date in the configured zone and rewrites
// that day's page.
func (a *App) FinalizeDay(ctx context.Context, date string) (notionsync.FinalizeResult, error) {
	day, err := time.ParseInLocation(timeutil.DateLayout, date, a.Location)
	if err != nil {
		return notionsync.FinalizeResult{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	if !a.Notion.Configured() {
		return notionsync.FinalizeResult{Day: date, Reason: OutcomeDisabled}, nil
	}
	return a.Finalizer.Run(ctx, day)
}

type MonthlyStatus struct {
	Epoch       string   `json:"epoch"`
	Initialized bool     `json:"initialized"`
	Total       int      `json:"total"`
	Done        int      `json:"done"`
	Pending     []string `json:"pending"`
}

// MonthlyStatus reads the checkpoint of the month the exporter works on.
func (a *App) MonthlyStatus(ctx context.Context) (MonthlyStatus, error) {
	epoch, st, found, err := a.Monthly.Status(ctx)
	if err != nil {
		return MonthlyStatus{Epoch: epoch}, err
	}
	return MonthlyStatus{
		Epoch:       epoch,
		Initialized: found,
		Total:       len(st),
		Done:        st.Done(),
		Pending:     st.Pending(),
	}, nil
}

// NewScheduler registers Jobs on a cron scheduler in the configured zone.
func (a *App) NewScheduler() (*scheduler.Scheduler, error) {
	s := scheduler.New(a.Location, a.Config.SyncTimeout, a.Logger.WithField("component", "scheduler"), a.Metrics)
	for _, j := range a.Jobs() {
		if err := s.Add(j); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", j.Name, err)
		}
	}
	return s, nil
}

func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
