package savestore

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "saves.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestLatestOnEmptyStore(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Latest(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveAndLatest(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	firstID, err := store.Save(ctx, Record{SessionID: "s1", Reason: "desync", Frame: 10, Format: "lz4", CreatedAt: base, Data: []byte("one")})
	if err != nil {
		t.Fatalf("save first: %v", err)
	}
	if firstID == "" {
		t.Fatalf("expected generated id")
	}
	if _, err := store.Save(ctx, Record{SessionID: "s1", Reason: "shutdown", Frame: 1000, Format: "none", CreatedAt: base.Add(time.Minute), Data: []byte("two")}); err != nil {
		t.Fatalf("save second: %v", err)
	}

	latest, err := store.Latest(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.Reason != "shutdown" || latest.Frame != 1000 || latest.Format != "none" {
		t.Fatalf("unexpected latest record %+v", latest)
	}
	if !bytes.Equal(latest.Data, []byte("two")) {
		t.Fatalf("unexpected data %q", latest.Data)
	}
	if !latest.CreatedAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("unexpected created_at %s", latest.CreatedAt)
	}
	if n, err := store.Count(ctx); err != nil || n != 2 {
		t.Fatalf("expected 2 saves, got %d (%v)", n, err)
	}
}

func TestSaveRejectsEmptySnapshot(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Save(context.Background(), Record{Reason: "desync"}); err == nil {
		t.Fatalf("expected error for empty snapshot")
	}
}

func TestMigrationsApplyOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saves.db")
	for i := 0; i < 2; i++ {
		store, err := Open(context.Background(), path)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		_ = store.Close()
	}
}

func TestUpSection(t *testing.T) {
	got := upSection("-- +migrate Up\nCREATE TABLE a (x);\n-- +migrate Down\nDROP TABLE a;\n")
	if got != "\nCREATE TABLE a (x);\n" {
		t.Fatalf("unexpected up section %q", got)
	}
	if upSection("SELECT 1;") != "SELECT 1;" {
		t.Fatalf("expected whole content without markers")
	}
}
