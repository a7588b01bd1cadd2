package storage

import (
	"strings"
	"time"
)

// Utterance is a single recorded user message together with the bot's reply.
// Utterances are appended in chronological order and never edited.
type Utterance struct {
	Timestamp       time.Time
	UserID          string
	Text            string
	Reply           string
	MessageID       string
	QuotedMessageID string

	// Handle is filled on read and is the only way to delete the row.
	Handle Handle
}

// Handle points at a stored row. It carries the row's surrogate id when the
// row has one; older rows are addressed by position plus a fingerprint of
// their content, which is only valid until the next row is deleted.
type Handle struct {
	rowID       string
	index       int
	fingerprint string
}

func (h Handle) IsZero() bool { return h.rowID == "" && h.fingerprint == "" }

// Clock formats the utterance time as HH:MM in loc.
func (u Utterance) Clock(loc *time.Location) string {
	return u.Timestamp.In(loc).Format("15:04")
}

func fingerprint(row []string) string {
	n := len(row)
	if n > 4 {
		n = 4
	}
	return strings.Join(row[:n], "\x1f")
}
