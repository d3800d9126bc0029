package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestAccumulator(t *testing.T, now time.Time) *MonthlyAccumulator {
	t.Helper()
	a := NewMonthlyAccumulator(filepath.Join(t.TempDir(), "monthly.json"), testLogger())
	a.now = func() time.Time { return now }
	return a
}

func TestAccumulatorAddsWithinCurrentMonth(t *testing.T) {
	now := day(2024, 3, 15)
	a := newTestAccumulator(t, now)

	if err := a.Update(day(2024, 3, 1), map[string]Delta{
		"Ivan":  {Posted: 10, Completed: 8},
		"Maria": {Posted: 4, Completed: 4},
	}); err != nil {
		t.Fatalf("update day 1: %v", err)
	}
	if err := a.Update(day(2024, 3, 2), map[string]Delta{
		"Ivan": {Posted: 5, Completed: 3},
	}); err != nil {
		t.Fatalf("update day 2: %v", err)
	}

	totals := a.CurrentMonthTotals()
	ivan := totals["Ivan"]
	if ivan.Posted != 15 || ivan.Completed != 11 {
		t.Errorf("expected Ivan 15/11, got %d/%d", ivan.Posted, ivan.Completed)
	}
	if ivan.Overdue() != 4 {
		t.Errorf("expected overdue 4, got %d", ivan.Overdue())
	}
	if maria := totals["Maria"]; maria.Overdue() != 0 {
		t.Errorf("expected Maria overdue 0, got %d", maria.Overdue())
	}
}

func TestAccumulatorRejectsOtherMonths(t *testing.T) {
	a := newTestAccumulator(t, day(2024, 3, 15))

	// Late report from February and an early-dated one from April.
	for _, d := range []time.Time{day(2024, 2, 28), day(2024, 4, 1)} {
		if err := a.Update(d, map[string]Delta{"Ivan": {Posted: 100, Completed: 0}}); err != nil {
			t.Fatalf("update %v: %v", d, err)
		}
	}

	if totals := a.CurrentMonthTotals(); len(totals) != 0 {
		t.Errorf("non-current months must not mutate state, got %v", totals)
	}
	if feb := a.MonthTotals("2024-02"); len(feb) != 0 {
		t.Errorf("february bucket must stay untouched, got %v", feb)
	}
}

func TestAccumulatorSkipsAlreadyAccumulatedDay(t *testing.T) {
	a := newTestAccumulator(t, day(2024, 3, 15))
	d := day(2024, 3, 1)

	if err := a.Update(d, map[string]Delta{"Ivan": {Posted: 10, Completed: 8}}); err != nil {
		t.Fatalf("first update: %v", err)
	}
	// Re-ingesting the same day (even with corrected figures) must not
	// double count.
	if err := a.Update(d, map[string]Delta{"Ivan": {Posted: 12, Completed: 9}}); err != nil {
		t.Fatalf("second update: %v", err)
	}

	ivan := a.CurrentMonthTotals()["Ivan"]
	if ivan.Posted != 10 || ivan.Completed != 8 {
		t.Errorf("expected 10/8 after re-ingestion, got %d/%d", ivan.Posted, ivan.Completed)
	}
}

func TestAccumulatorSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monthly.json")
	now := day(2024, 3, 15)

	a := NewMonthlyAccumulator(path, testLogger())
	a.now = func() time.Time { return now }
	if err := a.Update(day(2024, 3, 1), map[string]Delta{"Ivan": {Posted: 3, Completed: 1}}); err != nil {
		t.Fatalf("update: %v", err)
	}

	reopened := NewMonthlyAccumulator(path, testLogger())
	reopened.now = func() time.Time { return now }
	if ivan := reopened.CurrentMonthTotals()["Ivan"]; ivan.Posted != 3 {
		t.Errorf("state did not survive restart: %+v", ivan)
	}
}

func TestAccumulatorResetsCorruptState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monthly.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	a := NewMonthlyAccumulator(path, testLogger())
	a.now = func() time.Time { return day(2024, 3, 15) }

	if err := a.Update(day(2024, 3, 1), map[string]Delta{"Ivan": {Posted: 1, Completed: 1}}); err != nil {
		t.Fatalf("update on corrupt state must not fail: %v", err)
	}
	if ivan := a.CurrentMonthTotals()["Ivan"]; ivan.Posted != 1 {
		t.Errorf("expected fresh state after reset, got %+v", ivan)
	}
}
