package sheet

import (
	"context"
	"sync"
)

// MemoryBook keeps tables in process memory. Used for dry runs and tests.
type MemoryBook struct {
	mu     sync.Mutex
	tables map[string]*MemoryTable
}

func NewMemoryBook() *MemoryBook {
	return &MemoryBook{tables: make(map[string]*MemoryTable)}
}

func (b *MemoryBook) Table(_ context.Context, name string, header []string) (Table, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.tables[name]; ok {
		return t, nil
	}
	t := &MemoryTable{name: name, header: append([]string(nil), header...)}
	b.tables[name] = t
	return t, nil
}

type MemoryTable struct {
	mu     sync.Mutex
	name   string
	header []string
	rows   [][]string
}

func NewMemoryTable(name string, header []string) *MemoryTable {
	return &MemoryTable{name: name, header: append([]string(nil), header...)}
}

func (t *MemoryTable) Name() string { return t.name }

func (t *MemoryTable) Header() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.header...)
}

func (t *MemoryTable) Rows(context.Context) ([][]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]string, len(t.rows))
	for i, r := range t.rows {
		out[i] = append([]string(nil), r...)
	}
	return out, nil
}

func (t *MemoryTable) Append(_ context.Context, row []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = append(t.rows, append([]string(nil), row...))
	return nil
}

func (t *MemoryTable) Update(_ context.Context, index int, row []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := checkIndex(index, len(t.rows)); err != nil {
		return err
	}
	t.rows[index] = append([]string(nil), row...)
	return nil
}

func (t *MemoryTable) Delete(_ context.Context, index int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := checkIndex(index, len(t.rows)); err != nil {
		return err
	}
	t.rows = append(t.rows[:index], t.rows[index+1:]...)
	return nil
}
