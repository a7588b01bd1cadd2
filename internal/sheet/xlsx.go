package sheet

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/xuri/excelize/v2"
)

// XLSXBook stores tables as worksheets of a local workbook. Every operation
// opens, edits and saves the file so the workbook on disk is always the state
// as of the last completed write.
type XLSXBook struct {
	path string
	mu   sync.Mutex
}

func OpenXLSX(path string) (*XLSXBook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure workbook dir: %w", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		f := excelize.NewFile()
		if err := f.SaveAs(path); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("create workbook: %w", err)
		}
		_ = f.Close()
	} else if err != nil {
		return nil, fmt.Errorf("stat workbook: %w", err)
	}
	return &XLSXBook{path: path}, nil
}

func (b *XLSXBook) Table(_ context.Context, name string, header []string) (Table, error) {
	err := b.edit(func(f *excelize.File) (bool, error) {
		idx, err := f.GetSheetIndex(name)
		if err != nil {
			return false, err
		}
		if idx >= 0 {
			return false, nil
		}
		if _, err := f.NewSheet(name); err != nil {
			return false, err
		}
		return true, setRow(f, name, 1, header)
	})
	if err != nil {
		return nil, fmt.Errorf("open sheet %s: %w", name, err)
	}
	return &xlsxTable{book: b, name: name}, nil
}

// edit runs fn on the opened workbook and saves it when fn reports a change.
func (b *XLSXBook) edit(fn func(f *excelize.File) (bool, error)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, err := excelize.OpenFile(b.path)
	if err != nil {
		return fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()
	changed, err := fn(f)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if err := f.Save(); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, rowNum int, row []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	vals := make([]interface{}, len(row))
	for i, v := range row {
		vals[i] = v
	}
	return f.SetSheetRow(sheet, cell, &vals)
}

type xlsxTable struct {
	book *XLSXBook
	name string
}

func (t *xlsxTable) Name() string { return t.name }

func (t *xlsxTable) Rows(context.Context) ([][]string, error) {
	var out [][]string
	err := t.book.edit(func(f *excelize.File) (bool, error) {
		rows, err := f.GetRows(t.name)
		if err != nil {
			return false, err
		}
		if len(rows) > 1 {
			out = rows[1:]
		}
		return false, nil
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", t.name, err)
	}
	return out, nil
}

func (t *xlsxTable) Append(_ context.Context, row []string) error {
	err := t.book.edit(func(f *excelize.File) (bool, error) {
		rows, err := f.GetRows(t.name)
		if err != nil {
			return false, err
		}
		next := len(rows) + 1
		if next < 2 {
			next = 2
		}
		return true, setRow(f, t.name, next, row)
	})
	if err != nil {
		return fmt.Errorf("append %s: %w", t.name, err)
	}
	return nil
}

func (t *xlsxTable) Update(_ context.Context, index int, row []string) error {
	err := t.book.edit(func(f *excelize.File) (bool, error) {
		rows, err := f.GetRows(t.name)
		if err != nil {
			return false, err
		}
		if err := checkIndex(index, len(rows)-1); err != nil {
			return false, err
		}
		// clear the old row first so shorter rows do not keep stale cells
		if err := f.RemoveRow(t.name, index+2); err != nil {
			return false, err
		}
		if err := f.InsertRows(t.name, index+2, 1); err != nil {
			return false, err
		}
		return true, setRow(f, t.name, index+2, row)
	})
	if err != nil {
		return fmt.Errorf("update %s: %w", t.name, err)
	}
	return nil
}

func (t *xlsxTable) Delete(_ context.Context, index int) error {
	err := t.book.edit(func(f *excelize.File) (bool, error) {
		rows, err := f.GetRows(t.name)
		if err != nil {
			return false, err
		}
		if err := checkIndex(index, len(rows)-1); err != nil {
			return false, err
		}
		return true, f.RemoveRow(t.name, index+2)
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", t.name, err)
	}
	return nil
}
