// Package checkpoint persists per-month export progress: one property per
// month holding {userId: exported}.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"omochi-bot/internal/props"
)

const KeyPrefix = "MONTHLY_EXPORT_STATUS_"

// Status maps userId to whether that user's month was exported.
type Status map[string]bool

// Pending returns users not yet exported, in lexicographic order.
func (s Status) Pending() []string {
	var out []string
	for u, done := range s {
		if !done {
			out = append(out, u)
		}
	}
	sort.Strings(out)
	return out
}

func (s Status) Done() int {
	n := 0
	for _, done := range s {
		if done {
			n++
		}
	}
	return n
}

type Store struct {
	props props.Store
}

func New(p props.Store) *Store {
	return &Store{props: p}
}

func Key(epoch string) string { return KeyPrefix + epoch }

// Load returns the status for epoch. found is false when no checkpoint was
// ever written, which differs from an empty status.
func (s *Store) Load(ctx context.Context, epoch string) (Status, bool, error) {
	raw, ok, err := s.props.Get(ctx, Key(epoch))
	if err != nil {
		return nil, false, fmt.Errorf("load checkpoint %s: %w", epoch, err)
	}
	if !ok || raw == "" {
		return nil, false, nil
	}
	st := Status{}
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, false, fmt.Errorf("decode checkpoint %s: %w", epoch, err)
	}
	return st, true, nil
}

func (s *Store) Save(ctx context.Context, epoch string, st Status) error {
	if st == nil {
		st = Status{}
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode checkpoint %s: %w", epoch, err)
	}
	if err := s.props.Set(ctx, Key(epoch), string(raw)); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", epoch, err)
	}
	return nil
}

// PruneBefore removes checkpoints whose epoch sorts before epoch and returns
// the removed epochs.
func (s *Store) PruneBefore(ctx context.Context, epoch string) ([]string, error) {
	keys, err := s.props.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	var removed []string
	for _, k := range keys {
		if !strings.HasPrefix(k, KeyPrefix) {
			continue
		}
		e := strings.TrimPrefix(k, KeyPrefix)
		if e >= epoch {
			continue
		}
		if err := s.props.Delete(ctx, k); err != nil {
			return removed, fmt.Errorf("delete checkpoint %s: %w", e, err)
		}
		removed = append(removed, e)
	}
	return removed, nil
}
