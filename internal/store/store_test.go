package store

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStateStore(t *testing.T) *StateStore {
	t.Helper()
	s, err := NewStateStore(filepath.Join(t.TempDir(), "state.db"),
		slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewStateStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStateStoreSaveLoad(t *testing.T) {
	s := newTestStateStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, "layout", `{"columns":3}`); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx, "layout")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != `{"columns":3}` {
		t.Errorf("Load = %q, want %q", got, `{"columns":3}`)
	}
}

func TestStateStoreUpsert(t *testing.T) {
	s := newTestStateStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, "selected", "positions"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(ctx, "selected", "orders"); err != nil {
		t.Fatalf("Save (update): %v", err)
	}
	got, err := s.Load(ctx, "selected")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != "orders" {
		t.Errorf("Load = %q, want %q", got, "orders")
	}
}

func TestStateStoreLoadMissing(t *testing.T) {
	s := newTestStateStore(t)

	got, err := s.Load(context.Background(), "never-saved")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != "" {
		t.Errorf("Load missing key = %q, want empty", got)
	}
}

func TestStateStoreKeysAndDelete(t *testing.T) {
	s := newTestStateStore(t)
	ctx := context.Background()

	for _, k := range []string{"b", "a", "c"} {
		if err := s.Save(ctx, k, "v"); err != nil {
			t.Fatalf("Save %s: %v", k, err)
		}
	}
	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	want := []string{"a", "b", "c"}
	if len(keys) != len(want) {
		t.Fatalf("Keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("Keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}

	if err := s.Delete(ctx, "b"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	keys, err = s.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys after delete: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("Keys after delete = %v, want 2 keys", keys)
	}
	// Deleting a missing key is a no-op.
	if err := s.Delete(ctx, "b"); err != nil {
		t.Errorf("Delete missing key: %v", err)
	}
}

func TestSnapshotAppendRead(t *testing.T) {
	s := NewSnapshotStore(t.TempDir())

	base := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	err := s.Append([]SnapshotRecord{
		{Section: "positions", Date: "2025-03-10", TakenAt: base,
			Source: "network", ElapsedMs: 120, Payload: `[{"symbol":"AAPL"}]`},
		{Section: "orders", Date: "2025-03-10", TakenAt: base.Add(time.Second),
			Source: "cache", ElapsedMs: 1, Payload: `[]`},
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	all, err := s.Read("2025-03-10", "")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Read = %d records, want 2", len(all))
	}
	if all[0].Section != "positions" || all[1].Section != "orders" {
		t.Errorf("records out of TakenAt order: %v %v", all[0].Section, all[1].Section)
	}

	only, err := s.Read("2025-03-10", "orders")
	if err != nil {
		t.Fatalf("Read filtered: %v", err)
	}
	if len(only) != 1 || only[0].Source != "cache" {
		t.Errorf("filtered read = %+v, want single orders/cache record", only)
	}
}

func TestSnapshotAppendMerges(t *testing.T) {
	s := NewSnapshotStore(t.TempDir())

	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	first := SnapshotRecord{Section: "account", Date: "2025-03-10",
		TakenAt: base.Add(time.Hour), Source: "network", ElapsedMs: 50}
	second := SnapshotRecord{Section: "account", Date: "2025-03-10",
		TakenAt: base, Source: "network", ElapsedMs: 40}

	if err := s.Append([]SnapshotRecord{first}); err != nil {
		t.Fatalf("first Append: %v", err)
	}
	if err := s.Append([]SnapshotRecord{second}); err != nil {
		t.Fatalf("second Append: %v", err)
	}

	records, err := s.Read("2025-03-10", "")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Read = %d records, want 2", len(records))
	}
	if !records[0].TakenAt.Equal(base) {
		t.Errorf("records not sorted by TakenAt: first is %v", records[0].TakenAt)
	}
}

func TestSnapshotReadMissingDate(t *testing.T) {
	s := NewSnapshotStore(t.TempDir())

	records, err := s.Read("1999-01-01", "")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if records != nil {
		t.Errorf("Read missing date = %v, want nil", records)
	}
}

func TestSnapshotReadCorruptFile(t *testing.T) {
	dir := t.TempDir()
	s := NewSnapshotStore(dir)

	if err := os.MkdirAll(filepath.Join(dir, "snapshots"), 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "snapshots", "2026-08-31.parquet")
	if err := os.WriteFile(path, []byte("not a parquet file"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Read("2026-08-31", ""); err == nil {
		t.Error("Read corrupt file succeeded, want error")
	}
}

func TestSnapshotDates(t *testing.T) {
	s := NewSnapshotStore(t.TempDir())

	dates, err := s.Dates()
	if err != nil {
		t.Fatalf("Dates on empty store: %v", err)
	}
	if dates != nil {
		t.Errorf("Dates = %v, want nil", dates)
	}

	ts := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)
	err = s.Append([]SnapshotRecord{
		{Section: "news", Date: "2025-03-11", TakenAt: ts},
		{Section: "news", Date: "2025-03-09", TakenAt: ts.AddDate(0, 0, -2)},
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	dates, err = s.Dates()
	if err != nil {
		t.Fatalf("Dates: %v", err)
	}
	if len(dates) != 2 || dates[0] != "2025-03-09" || dates[1] != "2025-03-11" {
		t.Errorf("Dates = %v, want [2025-03-09 2025-03-11]", dates)
	}
}
