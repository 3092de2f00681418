package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
)

// SnapshotRecord is one completed section load, written to the daily
// snapshot file for offline history queries.
type SnapshotRecord struct {
	Section   string    `parquet:"section"`
	Date      string    `parquet:"date"` // YYYY-MM-DD
	TakenAt   time.Time `parquet:"taken_at,timestamp(millisecond)"`
	Source    string    `parquet:"source"` // cache / prefetch / network
	ElapsedMs int64     `parquet:"elapsed_ms"`
	Payload   string    `parquet:"payload"` // JSON-encoded section data
}

// SnapshotStore appends section snapshots to date-partitioned parquet
// files under <dataDir>/snapshots/.
type SnapshotStore struct {
	DataDir string
}

func NewSnapshotStore(dataDir string) *SnapshotStore {
	return &SnapshotStore{DataDir: dataDir}
}

// ---- paths ----

func (s *SnapshotStore) snapshotDir() string {
	return filepath.Join(s.DataDir, "snapshots")
}

func (s *SnapshotStore) snapshotPath(date string) string {
	return filepath.Join(s.snapshotDir(), date+".parquet")
}

// ---- read / write ----

// Append adds records to the file for their date. Records carrying
// different dates go to different files.
func (s *SnapshotStore) Append(records []SnapshotRecord) error {
	byDate := make(map[string][]SnapshotRecord)
	for _, r := range records {
		byDate[r.Date] = append(byDate[r.Date], r)
	}
	for date, recs := range byDate {
		if err := s.appendDate(date, recs); err != nil {
			return err
		}
	}
	return nil
}

func (s *SnapshotStore) appendDate(date string, records []SnapshotRecord) error {
	path := s.snapshotPath(date)

	// Read existing records to merge.
	existing, _ := readParquetFile[SnapshotRecord](path)

	merged := append(existing, records...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].TakenAt.Before(merged[j].TakenAt)
	})

	if err := writeParquetFile(path, merged); err != nil {
		return fmt.Errorf("write snapshots %s: %w", path, err)
	}
	return nil
}

// Read returns all snapshots for date, optionally filtered by section
// (empty section means all). Missing files yield an empty slice.
func (s *SnapshotStore) Read(date, section string) ([]SnapshotRecord, error) {
	path := s.snapshotPath(date)
	records, err := readParquetFile[SnapshotRecord](path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshots %s: %w", path, err)
	}
	if section == "" {
		return records, nil
	}
	filtered := records[:0]
	for _, r := range records {
		if r.Section == section {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// Dates lists the dates that have snapshot files, ascending.
func (s *SnapshotStore) Dates() ([]string, error) {
	entries, err := os.ReadDir(s.snapshotDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list snapshot dir: %w", err)
	}
	var dates []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".parquet") {
			continue
		}
		dates = append(dates, strings.TrimSuffix(name, ".parquet"))
	}
	sort.Strings(dates)
	return dates, nil
}

// ---- parquet helpers ----

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
