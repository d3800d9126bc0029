// Package store persists the two per-date history series and the monthly
// accumulation state. Backing files are flat and human-inspectable: CSV for
// the series, JSON for the monthly state. Each store serializes its own
// read-modify-write; the pipeline additionally runs ingestions one at a time.
package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/okklab/reportboard/internal/metrics"
	"github.com/okklab/reportboard/internal/types"
)

// ErrMixedDates is returned when an upsert batch spans more than one date.
// Upserts replace exactly one day; mixed input is a caller bug.
var ErrMixedDates = errors.New("upsert rows must share a single date")

var staffHeader = []string{"date", "employee", "posted", "completed", "completion_pct"}

// StaffStore is the per-employee task series, one CSV row per
// (date, employee).
type StaffStore struct {
	path   string
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewStaffStore creates a new StaffStore backed by the given CSV file.
func NewStaffStore(path string, logger zerolog.Logger) *StaffStore {
	return &StaffStore{path: path, logger: logger}
}

// Load reads the full history ordered by date, then employee.
func (s *StaffStore) Load() ([]types.StaffTaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *StaffStore) load() ([]types.StaffTaskRecord, error) {
	cells, err := readCSV(s.path, len(staffHeader))
	if err != nil {
		return nil, err
	}

	rows := make([]types.StaffTaskRecord, 0, len(cells))
	for _, c := range cells {
		date, err := parseDate(c[0])
		if err != nil {
			return nil, fmt.Errorf("staff history %s: %w", s.path, err)
		}
		posted, err := strconv.Atoi(c[2])
		if err != nil {
			return nil, fmt.Errorf("staff history %s: bad posted %q", s.path, c[2])
		}
		completed, err := strconv.Atoi(c[3])
		if err != nil {
			return nil, fmt.Errorf("staff history %s: bad completed %q", s.path, c[3])
		}
		rows = append(rows, types.StaffTaskRecord{
			Date:          date,
			Employee:      c[1],
			Posted:        posted,
			Completed:     completed,
			CompletionPct: types.CompletionPct(posted, completed),
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.Before(rows[j].Date)
		}
		return rows[i].Employee < rows[j].Employee
	})
	return rows, nil
}

// UpsertByDate replaces the whole day: every existing row carrying the batch
// date is dropped and the new rows are appended. All other history is kept
// untouched. Re-applying the same batch is idempotent.
func (s *StaffStore) UpsertByDate(rows []types.StaffTaskRecord) error {
	if len(rows) == 0 {
		return nil
	}
	date := rows[0].Date
	for _, r := range rows[1:] {
		if !r.Date.Equal(date) {
			return fmt.Errorf("%w: %s vs %s", ErrMixedDates,
				date.Format(types.DateFormat), r.Date.Format(types.DateFormat))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	history, err := s.load()
	if err != nil {
		return err
	}

	kept := history[:0]
	for _, r := range history {
		if !r.Date.Equal(date) {
			kept = append(kept, r)
		}
	}
	kept = append(kept, rows...)

	cells := make([][]string, 0, len(kept))
	for _, r := range kept {
		cells = append(cells, []string{
			r.Date.Format(types.DateFormat),
			r.Employee,
			strconv.Itoa(r.Posted),
			strconv.Itoa(r.Completed),
			strconv.FormatFloat(r.CompletionPct, 'f', 2, 64),
		})
	}

	if err := writeCSV(s.path, staffHeader, cells); err != nil {
		return err
	}
	metrics.RowsUpserted.WithLabelValues("staff").Add(float64(len(rows)))
	s.logger.Info().
		Str("date", date.Format(types.DateFormat)).
		Int("rows", len(rows)).
		Msg("staff series upserted")
	return nil
}

var metricsHeader = []string{
	"date", "missed_calls", "late_callbacks", "uncontacted",
	"overdue_orders", "total_orders", "overdue_pct",
}

// MetricsStore is the daily operational metric series, one CSV row per date.
type MetricsStore struct {
	path   string
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewMetricsStore creates a new MetricsStore backed by the given CSV file.
func NewMetricsStore(path string, logger zerolog.Logger) *MetricsStore {
	return &MetricsStore{path: path, logger: logger}
}

// Load reads the full history ordered by date.
func (s *MetricsStore) Load() ([]types.MetricRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *MetricsStore) load() ([]types.MetricRecord, error) {
	cells, err := readCSV(s.path, len(metricsHeader))
	if err != nil {
		return nil, err
	}

	rows := make([]types.MetricRecord, 0, len(cells))
	for _, c := range cells {
		date, err := parseDate(c[0])
		if err != nil {
			return nil, fmt.Errorf("metrics history %s: %w", s.path, err)
		}
		ints := make([]int, 5)
		for i := 0; i < 5; i++ {
			n, err := strconv.Atoi(c[i+1])
			if err != nil {
				return nil, fmt.Errorf("metrics history %s: bad %s %q", s.path, metricsHeader[i+1], c[i+1])
			}
			ints[i] = n
		}
		rows = append(rows, types.MetricRecord{
			Date:          date,
			MissedCalls:   ints[0],
			LateCallbacks: ints[1],
			Uncontacted:   ints[2],
			OverdueOrders: ints[3],
			TotalOrders:   ints[4],
			OverduePct:    types.OverduePct(ints[3], ints[4]),
		})
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	return rows, nil
}

// UpsertByDate replaces the record for the given day wholesale.
func (s *MetricsStore) UpsertByDate(rec types.MetricRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, err := s.load()
	if err != nil {
		return err
	}

	kept := history[:0]
	for _, r := range history {
		if !r.Date.Equal(rec.Date) {
			kept = append(kept, r)
		}
	}
	kept = append(kept, rec)

	cells := make([][]string, 0, len(kept))
	for _, r := range kept {
		cells = append(cells, []string{
			r.Date.Format(types.DateFormat),
			strconv.Itoa(r.MissedCalls),
			strconv.Itoa(r.LateCallbacks),
			strconv.Itoa(r.Uncontacted),
			strconv.Itoa(r.OverdueOrders),
			strconv.Itoa(r.TotalOrders),
			strconv.FormatFloat(r.OverduePct, 'f', 2, 64),
		})
	}

	if err := writeCSV(s.path, metricsHeader, cells); err != nil {
		return err
	}
	metrics.RowsUpserted.WithLabelValues("metrics").Inc()
	s.logger.Info().
		Str("date", rec.Date.Format(types.DateFormat)).
		Msg("metrics series upserted")
	return nil
}

// readCSV returns data rows (header excluded). A missing file is an empty
// history, not an error.
func readCSV(path string, wantFields int) ([][]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = wantFields
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[1:], nil
}

// writeCSV writes the full table to a temp file and renames it into place so
// readers never observe a half-written series.
func writeCSV(path string, header []string, rows [][]string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp for %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}
