// Package dedup suppresses inbound events that were already processed within
// a trailing window.
package dedup

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"omochi-bot/internal/metrics"
)

// EventLog is the persistence the gate needs.
type EventLog interface {
	Seen(ctx context.Context, id string, since time.Time) (bool, error)
	Record(ctx context.Context, id string, at time.Time) error
	Prune(ctx context.Context, before time.Time) (int, error)
}

type Gate struct {
	log     EventLog
	window  time.Duration
	logger  logrus.FieldLogger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Gate)

func WithClock(now func() time.Time) Option { return func(g *Gate) { g.now = now } }

func WithMetrics(m *metrics.Metrics) Option { return func(g *Gate) { g.metrics = m } }

func New(log EventLog, window time.Duration, logger logrus.FieldLogger, opts ...Option) *Gate {
	if window <= 0 {
		window = 24 * time.Hour
	}
	g := &Gate{log: log, window: window, logger: logger, now: time.Now}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Accept returns false only when id was recorded inside the window. Storage
// failures let the event through. Empty ids are always accepted and not
// recorded.
func (g *Gate) Accept(ctx context.Context, id string) bool {
	if id == "" {
		return true
	}
	now := g.now()
	cutoff := now.Add(-g.window)

	seen, err := g.log.Seen(ctx, id, cutoff)
	if err != nil {
		g.logger.WithError(err).WithField("event_id", id).Warn("dedup lookup failed, accepting event")
		g.metrics.Dedup("error")
		return true
	}
	if seen {
		g.logger.WithField("event_id", id).Info("duplicate event skipped")
		g.metrics.Dedup("rejected")
		return false
	}

	if err := g.log.Record(ctx, id, now); err != nil {
		g.logger.WithError(err).WithField("event_id", id).Warn("failed to record event")
		g.metrics.Dedup("error")
		return true
	}
	g.metrics.Dedup("accepted")

	if n, err := g.log.Prune(ctx, cutoff); err != nil {
		g.logger.WithError(err).Warn("event log prune failed")
	} else if n > 0 {
		g.logger.WithField("removed", n).Debug("pruned old event records")
	}
	return true
}
