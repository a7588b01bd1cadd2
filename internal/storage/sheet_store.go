package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"omochi-bot/internal/sheet"
	"omochi-bot/internal/timeutil"
)

var Header = []string{"日時", "ユーザーID", "本文", "おもちメッセージ", "メッセージID", "引用メッセージID", "行ID"}

const (
	colTime = iota
	colUser
	colText
	colReply
	colMessageID
	colQuotedID
	colRowID
)

// legacy layouts written by the spreadsheet UI before timestamps were RFC3339
var legacyLayouts = []string{"2006/01/02 15:04:05", "2006-01-02 15:04:05", "2006/01/02 15:04"}

const maxThreadDepth = 20

// Store is the append-only utterance log backed by a sheet table.
type Store struct {
	table sheet.Table
	loc   *time.Location
	now   func() time.Time
	newID func() string
}

type Option func(*Store)

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func WithIDs(newID func() string) Option { return func(s *Store) { s.newID = newID } }

func New(table sheet.Table, loc *time.Location, opts ...Option) *Store {
	if loc == nil {
		loc = time.UTC
	}
	s := &Store{table: table, loc: loc, now: time.Now, newID: uuid.NewString}
	for _, o := range opts {
		o(s)
	}
	return s
}

func Open(ctx context.Context, book sheet.Book, name string, loc *time.Location, opts ...Option) (*Store, error) {
	t, err := book.Table(ctx, name, Header)
	if err != nil {
		return nil, fmt.Errorf("open message log: %w", err)
	}
	return New(t, loc, opts...), nil
}

func (s *Store) Location() *time.Location { return s.loc }

// Append writes u as one row. A zero timestamp is replaced with the current time.
func (s *Store) Append(ctx context.Context, u Utterance) error {
	if u.Timestamp.IsZero() {
		u.Timestamp = s.now()
	}
	row := []string{
		u.Timestamp.In(s.loc).Format(time.RFC3339Nano),
		u.UserID,
		u.Text,
		u.Reply,
		u.MessageID,
		u.QuotedMessageID,
		s.newID(),
	}
	if err := s.table.Append(ctx, row); err != nil {
		return fmt.Errorf("append utterance: %w", err)
	}
	return nil
}

// Range returns every utterance with a timestamp in [start, end], in
// insertion order.
func (s *Store) Range(ctx context.Context, start, end time.Time) ([]Utterance, error) {
	return s.RangeForUser(ctx, "", start, end)
}

// RangeForUser is Range restricted to one user. An empty userID matches all.
func (s *Store) RangeForUser(ctx context.Context, userID string, start, end time.Time) ([]Utterance, error) {
	all, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	var out []Utterance
	for _, u := range all {
		if userID != "" && u.UserID != userID {
			continue
		}
		if !timeutil.InRange(u.Timestamp, start, end) {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

// Latest returns the user's most recent utterance or nil.
func (s *Store) Latest(ctx context.Context, userID string) (*Utterance, error) {
	all, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].UserID == userID {
			u := all[i]
			return &u, nil
		}
	}
	return nil, nil
}

// FindByTime returns the user's most recent utterance of today whose clock
// time is hhmm ("9:05" and "09:05" are equivalent), or nil.
func (s *Store) FindByTime(ctx context.Context, userID, hhmm string) (*Utterance, error) {
	want, err := time.Parse(timeutil.ClockLayout, strings.TrimSpace(hhmm))
	if err != nil {
		return nil, nil
	}
	clock := want.Format(timeutil.ClockLayout)
	start, end := s.today()
	all, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	for i := len(all) - 1; i >= 0; i-- {
		u := all[i]
		if u.UserID != userID || !timeutil.InRange(u.Timestamp, start, end) {
			continue
		}
		if u.Clock(s.loc) == clock {
			return &u, nil
		}
	}
	return nil, nil
}

func (s *Store) FindByMessageID(ctx context.Context, id string) (*Utterance, error) {
	all, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return findBy(all, id, func(u Utterance) string { return u.MessageID }), nil
}

func (s *Store) FindByQuotedMessageID(ctx context.Context, id string) (*Utterance, error) {
	all, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return findBy(all, id, func(u Utterance) string { return u.QuotedMessageID }), nil
}

// Thread returns the reply chain containing messageID, oldest first: the
// quoted ancestors, the message itself, then the replies quoting it.
func (s *Store) Thread(ctx context.Context, messageID string) ([]Utterance, error) {
	all, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	cur := findBy(all, messageID, func(u Utterance) string { return u.MessageID })
	if cur == nil {
		return nil, nil
	}
	chain := []Utterance{*cur}
	seen := map[string]bool{cur.MessageID: true}

	for up := cur; up.QuotedMessageID != "" && len(chain) < maxThreadDepth; {
		up = findBy(all, up.QuotedMessageID, func(u Utterance) string { return u.MessageID })
		if up == nil || seen[up.MessageID] {
			break
		}
		seen[up.MessageID] = true
		chain = append([]Utterance{*up}, chain...)
	}
	for down := cur; len(chain) < maxThreadDepth; {
		down = findBy(all, down.MessageID, func(u Utterance) string { return u.QuotedMessageID })
		if down == nil || down.MessageID == "" || seen[down.MessageID] {
			break
		}
		seen[down.MessageID] = true
		chain = append(chain, *down)
	}
	return chain, nil
}

// TodayLines renders the user's utterances of today as "HH:MM text".
func (s *Store) TodayLines(ctx context.Context, userID string) ([]string, error) {
	start, end := s.today()
	us, err := s.RangeForUser(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(us))
	for _, u := range us {
		lines = append(lines, u.Clock(s.loc)+" "+u.Text)
	}
	return lines, nil
}

// Delete removes the row h points at. It reports false when the row is no
// longer there.
func (s *Store) Delete(ctx context.Context, h Handle) (bool, error) {
	if h.IsZero() {
		return false, nil
	}
	rows, err := s.table.Rows(ctx)
	if err != nil {
		return false, fmt.Errorf("read message log: %w", err)
	}
	index := -1
	if h.rowID != "" {
		for i, row := range rows {
			if sheet.Cell(row, colRowID) == h.rowID {
				index = i
				break
			}
		}
	} else if h.index < len(rows) && fingerprint(rows[h.index]) == h.fingerprint {
		index = h.index
	}
	if index < 0 {
		return false, nil
	}
	if err := s.table.Delete(ctx, index); err != nil {
		return false, fmt.Errorf("delete utterance row %d: %w", index, err)
	}
	return true, nil
}

func (s *Store) today() (time.Time, time.Time) {
	now := s.now().In(s.loc)
	return timeutil.StartOfDay(now), timeutil.EndOfDay(now)
}

func (s *Store) load(ctx context.Context) ([]Utterance, error) {
	rows, err := s.table.Rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("read message log: %w", err)
	}
	out := make([]Utterance, 0, len(rows))
	for i, row := range rows {
		ts, ok := s.parseTime(sheet.Cell(row, colTime))
		if !ok {
			continue
		}
		u := Utterance{
			Timestamp:       ts,
			UserID:          sheet.Cell(row, colUser),
			Text:            sheet.Cell(row, colText),
			Reply:           sheet.Cell(row, colReply),
			MessageID:       sheet.Cell(row, colMessageID),
			QuotedMessageID: sheet.Cell(row, colQuotedID),
		}
		if id := sheet.Cell(row, colRowID); id != "" {
			u.Handle = Handle{rowID: id}
		} else {
			u.Handle = Handle{index: i, fingerprint: fingerprint(row)}
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *Store) parseTime(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, true
	}
	for _, layout := range legacyLayouts {
		if t, err := time.ParseInLocation(layout, v, s.loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func findBy(all []Utterance, id string, key func(Utterance) string) *Utterance {
	if id == "" {
		return nil
	}
	for i := range all {
		if key(all[i]) == id {
			u := all[i]
			return &u
		}
	}
	return nil
}
