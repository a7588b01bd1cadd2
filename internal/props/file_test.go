package props

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStore_SetGetDeleteKeys(t *testing.T) {
	ctx := context.Background()
	p := filepath.Join(t.TempDir(), "nested", "props.json")
	s, err := NewFileStore(p)
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	if _, ok, err := s.Get(ctx, "missing"); ok || err != nil {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}
	_ = s.Set(ctx, "b", "2")
	_ = s.Set(ctx, "a", "1")

	// a second store over the same file sees the data
	s2, _ := NewFileStore(p)
	if v, ok, _ := s2.Get(ctx, "a"); !ok || v != "1" {
		t.Fatalf("persisted value: %q %v", v, ok)
	}
	keys, _ := s2.Keys(ctx)
	if len(keys) != 2 || keys[0] != "a" {
		t.Fatalf("keys: %v", keys)
	}
	if err := s2.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s2.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete of missing key must be a no-op: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "a"); ok {
		t.Fatalf("deleted key still present")
	}
}

func TestFileStore_Corrupt(t *testing.T) {
	p := filepath.Join(t.TempDir(), "props.json")
	if err := os.WriteFile(p, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, _ := NewFileStore(p)
	if _, _, err := s.Get(context.Background(), "x"); err == nil {
		t.Fatalf("corrupt file must surface an error")
	}
}
