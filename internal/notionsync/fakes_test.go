package notionsync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"omochi-bot/internal/checkpoint"
	"omochi-bot/internal/llm"
	"omochi-bot/internal/logging"
	"omochi-bot/internal/notion"
	"omochi-bot/internal/props"
	"omochi-bot/internal/sheet"
	"omochi-bot/internal/storage"
)

var jst = time.FixedZone("JST", 9*3600)

type fakePage struct {
	id         string
	title      string
	label      string
	memo       string
	blocks     []notion.Block
	lastEdited time.Time
}

type fakeDocs struct {
	clock      *clock
	pages      []*fakePage
	writes     int
	findErr    error
	lastErr    error
	createErr  error
	replaceErr error
}

// edited is the last_edited_time Notion would report for a write now. Notion
// rounds it down to the minute.
func (f *fakeDocs) edited() time.Time { return f.clock.t.Truncate(time.Minute) }

func (f *fakeDocs) FindPage(_ context.Context, prefix, label string) (*notion.Page, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, p := range f.pages {
		if strings.HasPrefix(p.title, prefix) && p.label == label {
			return &notion.Page{ID: p.id, LastEditedTime: p.lastEdited}, nil
		}
	}
	return nil, nil
}

func (f *fakeDocs) LastEdited(_ context.Context, id string) (time.Time, error) {
	if f.lastErr != nil {
		return time.Time{}, f.lastErr
	}
	return f.page(id).lastEdited, nil
}

func (f *fakeDocs) CreatePage(_ context.Context, np notion.NewPage) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.writes++
	p := &fakePage{
		id:         fmt.Sprintf("page-%d", len(f.pages)+1),
		title:      np.Title,
		label:      np.Label,
		memo:       np.Memo,
		blocks:     np.Children,
		lastEdited: f.edited(),
	}
	f.pages = append(f.pages, p)
	return p.id, nil
}

// ReplacePage fails after the old children are gone when replaceErr is set,
// the way an append error after the deletes leaves a real page.
func (f *fakeDocs) ReplacePage(_ context.Context, id, title string, blocks []notion.Block) error {
	f.writes++
	p := f.page(id)
	if f.replaceErr != nil {
		p.title, p.blocks, p.lastEdited = title, nil, f.edited()
		return f.replaceErr
	}
	p.title, p.blocks, p.lastEdited = title, blocks, f.edited()
	return nil
}

func (f *fakeDocs) page(id string) *fakePage {
	for _, p := range f.pages {
		if p.id == id {
			return p
		}
	}
	return nil
}

func texts(blocks []notion.Block) []string {
	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, b.PlainText())
	}
	return out
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

type fakeNames map[string]string

func (f fakeNames) DisplayName(_ context.Context, id string) (string, error) { return f[id], nil }

type fakeLLM struct {
	reply string
	err   error
	calls int
}

func (f *fakeLLM) Generate(context.Context, []llm.Message) (llm.Response, error) {
	f.calls++
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Content: f.reply}, nil
}

type env struct {
	clock *clock
	store *storage.Store
	docs  *fakeDocs
	llm   *fakeLLM
	props *props.FileStore
	ckpt  *checkpoint.Store
	deps  Deps
	opts  Options
}

func newEnv(t *testing.T, now time.Time) *env {
	t.Helper()
	c := &clock{t: now}
	p, err := props.NewFileStore(filepath.Join(t.TempDir(), "props.json"))
	if err != nil {
		t.Fatalf("props: %v", err)
	}
	e := &env{
		clock: c,
		store: storage.New(sheet.NewMemoryTable("log", storage.Header), jst, storage.WithClock(c.now)),
		docs:  &fakeDocs{clock: c},
		llm:   &fakeLLM{reply: "ねむねむ"},
		props: p,
		ckpt:  checkpoint.New(p),
		opts:  Options{Location: jst},
	}
	e.deps = Deps{
		Messages:    e.store,
		Documents:   e.docs,
		Names:       fakeNames{"UA": "A", "UB": "B"},
		Titles:      llm.NewWriter(e.llm, "", "title please", 20, logging.Discard()),
		Checkpoints: e.ckpt,
		Logger:      logging.Discard(),
		Now:         c.now,
	}
	return e
}

func (e *env) say(t *testing.T, at time.Time, user, text, reply string) {
	t.Helper()
	if err := e.store.Append(context.Background(), storage.Utterance{Timestamp: at, UserID: user, Text: text, Reply: reply}); err != nil {
		t.Fatalf("append: %v", err)
	}
}

var errBoom = errors.New("boom")
