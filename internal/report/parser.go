// Package report extracts structured daily figures from free-text QC reports.
package report

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/okklab/reportboard/internal/types"
)

// ErrMalformedReport is returned when the report lacks the required
// "Report QA DD.MM.YYYY" header. The date is the identity key for the whole
// ingestion; there is deliberately no fallback to today, since a defaulted
// date can overwrite the wrong day's history.
var ErrMalformedReport = errors.New("malformed report: date header not found")

var (
	dateRe  = regexp.MustCompile(`Report QA (\d{2}\.\d{2}\.\d{4})`)
	staffRe = regexp.MustCompile(`([\p{L}][\p{L} -]*?) - posted (\d+)/completed (\d+)`)

	missedRe        = regexp.MustCompile(`2\. Missed - (\d+)`)
	lateCallbacksRe = regexp.MustCompile(`Callbacks over 5 minutes - (\d+)`)
	uncontactedRe   = regexp.MustCompile(`Not called back or messaged - (\d+)`)
	// The "/ total" suffix may be absent; the two captures are anchored so
	// the overdue figure is never misread as the total.
	overdueOrdersRe = regexp.MustCompile(`Orders overdue processing - (\d+)(?: */ *\d+)?`)
	totalOrdersRe   = regexp.MustCompile(`Orders overdue processing - \d+ */ *(\d+)`)
)

// ParsedReport is the structured result of one report text.
type ParsedReport struct {
	Date    time.Time
	Staff   []types.StaffTaskRecord
	Metrics types.MetricRecord
}

// Parser turns one free-text report into staff rows and a metric row.
type Parser struct {
	logger zerolog.Logger
}

// NewParser creates a new Parser
func NewParser(logger zerolog.Logger) *Parser {
	return &Parser{logger: logger}
}

// Parse extracts the report date, per-employee task rows and the daily
// metric row. Metric labels are independent: a missing label means 0, not an
// error, because a daily report may legitimately omit a section.
func (p *Parser) Parse(text string) (ParsedReport, error) {
	m := dateRe.FindStringSubmatch(text)
	if m == nil {
		excerpt := headline(text)
		return ParsedReport{}, fmt.Errorf("%w (starts with %q)", ErrMalformedReport, excerpt)
	}
	date, err := time.Parse(types.ReportDateFormat, m[1])
	if err != nil {
		return ParsedReport{}, fmt.Errorf("%w: bad date %q: %v", ErrMalformedReport, m[1], err)
	}

	parsed := ParsedReport{
		Date:    date,
		Staff:   p.parseStaff(text, date),
		Metrics: p.parseMetrics(text, date),
	}
	return parsed, nil
}

// parseStaff scans for repeated "name - posted N/completed M" lines.
// Multiple mentions of one employee are summed, never overwritten.
func (p *Parser) parseStaff(text string, date time.Time) []types.StaffTaskRecord {
	type tally struct{ posted, completed int }
	byName := make(map[string]*tally)

	for _, m := range staffRe.FindAllStringSubmatch(text, -1) {
		name := strings.TrimSpace(m[1])
		posted, _ := strconv.Atoi(m[2])
		completed, _ := strconv.Atoi(m[3])

		t, ok := byName[name]
		if !ok {
			t = &tally{}
			byName[name] = t
		}
		t.posted += posted
		t.completed += completed
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]types.StaffTaskRecord, 0, len(names))
	for _, name := range names {
		t := byName[name]
		rows = append(rows, types.StaffTaskRecord{
			Date:          date,
			Employee:      name,
			Posted:        t.posted,
			Completed:     t.completed,
			CompletionPct: types.CompletionPct(t.posted, t.completed),
		})
	}
	return rows
}

func (p *Parser) parseMetrics(text string, date time.Time) types.MetricRecord {
	rec := types.MetricRecord{
		Date:          date,
		MissedCalls:   p.extractMetric(text, "missed_calls", missedRe),
		LateCallbacks: p.extractMetric(text, "late_callbacks", lateCallbacksRe),
		Uncontacted:   p.extractMetric(text, "uncontacted", uncontactedRe),
		OverdueOrders: p.extractMetric(text, "overdue_orders", overdueOrdersRe),
		TotalOrders:   p.extractMetric(text, "total_orders", totalOrdersRe),
	}
	rec.OverduePct = types.OverduePct(rec.OverdueOrders, rec.TotalOrders)
	return rec
}

// extractMetric pulls one labeled number out of the text, defaulting to 0
// when the label is absent.
func (p *Parser) extractMetric(text, name string, re *regexp.Regexp) int {
	m := re.FindStringSubmatch(text)
	if m == nil {
		p.logger.Warn().Str("metric", name).Msg("metric label not found in report, defaulting to 0")
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		p.logger.Warn().Str("metric", name).Str("value", m[1]).Msg("metric value not numeric, defaulting to 0")
		return 0
	}
	return n
}

// headline returns a short excerpt of the report for error messages.
func headline(text string) string {
	line := strings.TrimSpace(text)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	const maxLen = 60
	if len(line) > maxLen {
		line = line[:maxLen] + "..."
	}
	return line
}
