package types

import "time"

// DateFormat is the canonical on-disk and wire representation of report dates.
const DateFormat = "2006-01-02"

// ReportDateFormat is the format used in report header lines (DD.MM.YYYY).
const ReportDateFormat = "02.01.2006"

// StaffTaskRecord is one employee's task figures for one report date.
// The composite key is (Date, Employee).
type StaffTaskRecord struct {
	Date          time.Time `json:"date"`
	Employee      string    `json:"employee"`
	Posted        int       `json:"posted"`
	Completed     int       `json:"completed"`
	CompletionPct float64   `json:"completionPct"`
}

// MetricRecord holds the daily operational metrics. Exactly one record
// exists per date.
type MetricRecord struct {
	Date          time.Time `json:"date"`
	MissedCalls   int       `json:"missedCalls"`
	LateCallbacks int       `json:"lateCallbacks"` // callbacks later than 5 minutes
	Uncontacted   int       `json:"uncontacted"`   // customers never called or messaged back
	OverdueOrders int       `json:"overdueOrders"`
	TotalOrders   int       `json:"totalOrders"`
	OverduePct    float64   `json:"overduePct"`
}

// PerformerTypeUser marks tasks assigned to a human user in the CRM.
const PerformerTypeUser = "user"

// RemoteTask is one task fetched from the CRM task API. Tasks are ephemeral:
// only the derived overdue counts are kept. Timestamp fields stay raw strings
// because the CRM mixes formats; parsing happens at classification time.
type RemoteTask struct {
	ID            int64  `json:"id"`
	Text          string `json:"text"`
	PerformerID   int64  `json:"performerId"`
	PerformerType string `json:"performerType"`
	DueDate       string `json:"dueDate"`
	Completed     bool   `json:"completed"`
	CompletedAt   string `json:"completedAt"`
}

// MonthlyTotals is one employee's running totals inside a month bucket.
type MonthlyTotals struct {
	Posted    int `json:"posted"`
	Completed int `json:"completed"`
}

// Overdue is the display figure derived from the monthly totals, floored
// at zero so a completed>posted correction never shows negative.
func (t MonthlyTotals) Overdue() int {
	if d := t.Posted - t.Completed; d > 0 {
		return d
	}
	return 0
}

// CompletionPct computes completed/posted as a percentage rounded to two
// decimals, defined as 0 when posted is zero.
func CompletionPct(posted, completed int) float64 {
	if posted == 0 {
		return 0
	}
	return round2(float64(completed) / float64(posted) * 100)
}

// OverduePct computes overdue/total as a percentage rounded to two decimals,
// defined as 0 when total is zero.
func OverduePct(overdue, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(overdue) / float64(total) * 100)
}

func round2(v float64) float64 {
	if v < 0 {
		return float64(int64(v*100-0.5)) / 100
	}
	return float64(int64(v*100+0.5)) / 100
}
