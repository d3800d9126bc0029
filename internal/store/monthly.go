package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/okklab/reportboard/internal/metrics"
	"github.com/okklab/reportboard/internal/types"
)

// MonthKeyFormat is the year-month key of an accumulation bucket.
const MonthKeyFormat = "2006-01"

// Delta is one employee's contribution from a single day's report.
type Delta struct {
	Posted    int
	Completed int
}

// monthBucket is the persisted state of one calendar month.
type monthBucket struct {
	Totals map[string]types.MonthlyTotals `json:"totals"`
	// Dates already folded into Totals. Re-ingesting a day must not double
	// count, so a seen date is skipped.
	Dates []string `json:"dates"`
}

func (b *monthBucket) hasDate(date string) bool {
	for _, d := range b.Dates {
		if d == date {
			return true
		}
	}
	return false
}

// MonthlyAccumulator keeps per-employee posted/completed totals for the
// current calendar month in a single JSON document. The file survives
// restarts; a new month simply starts a new bucket.
type MonthlyAccumulator struct {
	path   string
	mu     sync.Mutex
	logger zerolog.Logger
	now    func() time.Time
}

// NewMonthlyAccumulator creates a new MonthlyAccumulator backed by the given
// JSON file.
func NewMonthlyAccumulator(path string, logger zerolog.Logger) *MonthlyAccumulator {
	return &MonthlyAccumulator{path: path, logger: logger, now: time.Now}
}

// Update folds one day's per-employee deltas into the report month's bucket.
// Calls for a month other than the current wall-clock month are no-ops, so a
// late or misdated report can never pollute another month's rollup. A day
// already folded into the bucket is skipped as well.
func (a *MonthlyAccumulator) Update(reportDate time.Time, deltas map[string]Delta) error {
	monthKey := reportDate.Format(MonthKeyFormat)
	dateKey := reportDate.Format(types.DateFormat)

	if current := a.now().Format(MonthKeyFormat); monthKey != current {
		a.logger.Warn().
			Str("report_month", monthKey).
			Str("current_month", current).
			Msg("report month is not the current month, skipping accumulation")
		metrics.AccumulatorSkips.WithLabelValues("not_current_month").Inc()
		return nil
	}
	if len(deltas) == 0 {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	state := a.load()
	bucket, ok := state[monthKey]
	if !ok {
		bucket = &monthBucket{Totals: make(map[string]types.MonthlyTotals)}
		state[monthKey] = bucket
	}
	if bucket.hasDate(dateKey) {
		a.logger.Warn().
			Str("month", monthKey).
			Str("date", dateKey).
			Msg("day already accumulated, skipping to avoid double counting")
		metrics.AccumulatorSkips.WithLabelValues("already_accumulated").Inc()
		return nil
	}

	for employee, d := range deltas {
		t := bucket.Totals[employee]
		t.Posted += d.Posted
		t.Completed += d.Completed
		bucket.Totals[employee] = t
	}
	bucket.Dates = append(bucket.Dates, dateKey)

	if err := a.persist(state); err != nil {
		return err
	}
	a.logger.Info().
		Str("month", monthKey).
		Str("date", dateKey).
		Int("employees", len(deltas)).
		Msg("monthly totals accumulated")
	return nil
}

// MonthTotals returns a copy of the given month's per-employee totals.
func (a *MonthlyAccumulator) MonthTotals(monthKey string) map[string]types.MonthlyTotals {
	a.mu.Lock()
	defer a.mu.Unlock()

	bucket, ok := a.load()[monthKey]
	if !ok {
		return map[string]types.MonthlyTotals{}
	}
	out := make(map[string]types.MonthlyTotals, len(bucket.Totals))
	for k, v := range bucket.Totals {
		out[k] = v
	}
	return out
}

// CurrentMonthTotals returns the running totals for the wall-clock month.
func (a *MonthlyAccumulator) CurrentMonthTotals() map[string]types.MonthlyTotals {
	return a.MonthTotals(a.now().Format(MonthKeyFormat))
}

// load reads the state file. A missing file is an empty state; an unparsable
// file is logged and reset to empty rather than crashing the pipeline,
// trading history for availability.
func (a *MonthlyAccumulator) load() map[string]*monthBucket {
	state := make(map[string]*monthBucket)

	data, err := os.ReadFile(a.path)
	if errors.Is(err, os.ErrNotExist) {
		return state
	}
	if err != nil {
		a.logger.Warn().Err(err).Str("path", a.path).Msg("cannot read monthly state, starting empty")
		return state
	}
	if err := json.Unmarshal(data, &state); err != nil {
		a.logger.Warn().Err(err).Str("path", a.path).Msg("monthly state corrupted, resetting to empty")
		return make(map[string]*monthBucket)
	}
	for _, b := range state {
		if b.Totals == nil {
			b.Totals = make(map[string]types.MonthlyTotals)
		}
	}
	return state
}

// persist writes the whole document atomically (temp file, then rename).
func (a *MonthlyAccumulator) persist(state map[string]*monthBucket) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode monthly state: %w", err)
	}

	dir := filepath.Dir(a.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(a.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", a.path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", a.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp for %s: %w", a.path, err)
	}
	if err := os.Rename(tmp.Name(), a.path); err != nil {
		return fmt.Errorf("rename into %s: %w", a.path, err)
	}
	return nil
}
