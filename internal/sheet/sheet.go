// Package sheet is the row-oriented persistence substrate: named tables whose
// first row is a fixed header and whose data starts on the second row.
package sheet

import (
	"context"
	"errors"
	"fmt"
)

var ErrRowOutOfRange = errors.New("sheet: row index out of range")

// Table is one named sheet. Indexes are 0-based over data rows (the header is
// not addressable) and are only valid until the next Delete.
type Table interface {
	Name() string
	Rows(ctx context.Context) ([][]string, error)
	Append(ctx context.Context, row []string) error
	Update(ctx context.Context, index int, row []string) error
	Delete(ctx context.Context, index int) error
}

// Book opens tables, creating the sheet and its header row when missing.
type Book interface {
	Table(ctx context.Context, name string, header []string) (Table, error)
}

// Cell returns row[i] or "" when the row is shorter than i+1.
func Cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func checkIndex(index, n int) error {
	if index < 0 || index >= n {
		return fmt.Errorf("%w: %d of %d", ErrRowOutOfRange, index, n)
	}
	return nil
}
