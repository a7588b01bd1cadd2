// Package users resolves LINE user ids to the display names users chose.
package users

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"omochi-bot/internal/sheet"
)

var Header = []string{"ユーザーID", "名前"}

// Pending is stored while the bot waits for a new user to say their name.
const Pending = "誰か"

type Directory struct {
	table sheet.Table
	names *cache.Cache
}

func New(table sheet.Table) *Directory {
	return &Directory{table: table, names: cache.New(10*time.Minute, 20*time.Minute)}
}

func Open(ctx context.Context, book sheet.Book, name string) (*Directory, error) {
	t, err := book.Table(ctx, name, Header)
	if err != nil {
		return nil, fmt.Errorf("open user sheet: %w", err)
	}
	return New(t), nil
}

// DisplayName returns the stored name or "" when the user never set one.
func (d *Directory) DisplayName(ctx context.Context, userID string) (string, error) {
	if v, ok := d.names.Get(userID); ok {
		return v.(string), nil
	}
	rows, err := d.table.Rows(ctx)
	if err != nil {
		return "", fmt.Errorf("read user sheet: %w", err)
	}
	name := ""
	for _, row := range rows {
		if sheet.Cell(row, 0) == userID {
			name = sheet.Cell(row, 1)
			break
		}
	}
	d.names.Set(userID, name, cache.DefaultExpiration)
	return name, nil
}

func (d *Directory) SetName(ctx context.Context, userID, name string) error {
	rows, err := d.table.Rows(ctx)
	if err != nil {
		return fmt.Errorf("read user sheet: %w", err)
	}
	for i, row := range rows {
		if sheet.Cell(row, 0) == userID {
			if err := d.table.Update(ctx, i, []string{userID, name}); err != nil {
				return fmt.Errorf("update user %s: %w", userID, err)
			}
			d.names.Set(userID, name, cache.DefaultExpiration)
			return nil
		}
	}
	if err := d.table.Append(ctx, []string{userID, name}); err != nil {
		return fmt.Errorf("add user %s: %w", userID, err)
	}
	d.names.Set(userID, name, cache.DefaultExpiration)
	return nil
}
