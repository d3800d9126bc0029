package store

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/okklab/reportboard/internal/types"
)

func testLogger() zerolog.Logger {
	return zerolog.New(&bytes.Buffer{})
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func staffRow(date time.Time, name string, posted, completed int) types.StaffTaskRecord {
	return types.StaffTaskRecord{
		Date:          date,
		Employee:      name,
		Posted:        posted,
		Completed:     completed,
		CompletionPct: types.CompletionPct(posted, completed),
	}
}

func TestStaffStoreLoadMissingFile(t *testing.T) {
	s := NewStaffStore(filepath.Join(t.TempDir(), "staff.csv"), testLogger())
	rows, err := s.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected empty history, got %d rows", len(rows))
	}
}

func TestStaffStoreUpsertIsIdempotent(t *testing.T) {
	s := NewStaffStore(filepath.Join(t.TempDir(), "staff.csv"), testLogger())
	d := day(2024, 3, 1)
	batch := []types.StaffTaskRecord{
		staffRow(d, "Ivan", 10, 8),
		staffRow(d, "Maria", 4, 4),
	}

	if err := s.UpsertByDate(batch); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := s.UpsertByDate(batch); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	rows, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows after re-ingestion, got %d", len(rows))
	}
}

func TestStaffStoreUpsertReplacesWholeDay(t *testing.T) {
	s := NewStaffStore(filepath.Join(t.TempDir(), "staff.csv"), testLogger())
	d1 := day(2024, 3, 1)
	d2 := day(2024, 3, 2)

	if err := s.UpsertByDate([]types.StaffTaskRecord{
		staffRow(d1, "Ivan", 10, 8),
		staffRow(d1, "Maria", 4, 4),
	}); err != nil {
		t.Fatalf("seed day 1: %v", err)
	}
	if err := s.UpsertByDate([]types.StaffTaskRecord{staffRow(d2, "Ivan", 5, 5)}); err != nil {
		t.Fatalf("seed day 2: %v", err)
	}

	// Corrected report for day 1: only Ivan, new figures.
	if err := s.UpsertByDate([]types.StaffTaskRecord{staffRow(d1, "Ivan", 12, 9)}); err != nil {
		t.Fatalf("corrected upsert: %v", err)
	}

	rows, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows (full-day replace, not merge), got %d", len(rows))
	}
	if rows[0].Employee != "Ivan" || rows[0].Posted != 12 || rows[0].Completed != 9 {
		t.Errorf("day 1 not replaced: %+v", rows[0])
	}
	if !rows[1].Date.Equal(d2) {
		t.Errorf("day 2 history lost: %+v", rows[1])
	}
}

func TestStaffStoreRejectsMixedDates(t *testing.T) {
	s := NewStaffStore(filepath.Join(t.TempDir(), "staff.csv"), testLogger())
	err := s.UpsertByDate([]types.StaffTaskRecord{
		staffRow(day(2024, 3, 1), "Ivan", 1, 1),
		staffRow(day(2024, 3, 2), "Maria", 1, 1),
	})
	if !errors.Is(err, ErrMixedDates) {
		t.Fatalf("expected ErrMixedDates, got %v", err)
	}
}

func TestStaffStoreLoadsLegacyDateFormats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "staff.csv")
	legacy := "date,employee,posted,completed,completion_pct\n" +
		"01.03.2024,Ivan,3,2,66.67\n" +
		"2024-03-02,Maria,4,4,100.00\n"
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}

	rows, err := NewStaffStore(path, testLogger()).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if !rows[0].Date.Equal(day(2024, 3, 1)) {
		t.Errorf("legacy DD.MM.YYYY date not normalized: %v", rows[0].Date)
	}
	if !rows[1].Date.Equal(day(2024, 3, 2)) {
		t.Errorf("canonical date mangled: %v", rows[1].Date)
	}
}

func TestMetricsStoreUpsertByDate(t *testing.T) {
	s := NewMetricsStore(filepath.Join(t.TempDir(), "metrics.csv"), testLogger())
	d := day(2024, 3, 1)

	first := types.MetricRecord{Date: d, MissedCalls: 3, OverdueOrders: 5, TotalOrders: 40, OverduePct: 12.5}
	if err := s.UpsertByDate(first); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	corrected := types.MetricRecord{Date: d, MissedCalls: 4, OverdueOrders: 6, TotalOrders: 40, OverduePct: 15}
	if err := s.UpsertByDate(corrected); err != nil {
		t.Fatalf("corrected upsert: %v", err)
	}

	rows, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected exactly one record per date, got %d", len(rows))
	}
	if rows[0].MissedCalls != 4 || rows[0].OverdueOrders != 6 {
		t.Errorf("correction not applied: %+v", rows[0])
	}
}

func TestMetricsStoreOrdersByDate(t *testing.T) {
	s := NewMetricsStore(filepath.Join(t.TempDir(), "metrics.csv"), testLogger())
	for _, d := range []time.Time{day(2024, 3, 3), day(2024, 3, 1), day(2024, 3, 2)} {
		if err := s.UpsertByDate(types.MetricRecord{Date: d, TotalOrders: 1}); err != nil {
			t.Fatalf("upsert %v: %v", d, err)
		}
	}
	rows, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].Date.Before(rows[i-1].Date) {
			t.Fatalf("history not ordered by date: %v before %v", rows[i].Date, rows[i-1].Date)
		}
	}
}
