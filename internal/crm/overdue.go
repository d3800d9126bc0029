package crm

import (
	"strings"
	"time"

	"github.com/okklab/reportboard/internal/types"
)

// The QC team only tracks order-processing tasks. Two casings exist in the
// wild because the task template was renamed once; both stay accepted.
var filterPhrases = []string{"Process order", "process order"}

var taskTimeFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ClassifyOverdue turns the fetched task list into an overdue count per
// manager label. resolve maps a performer ID to a display name (typically
// Client.ResolveManagerName bound to a run cache). Only managers with at
// least one overdue task appear in the result.
func ClassifyOverdue(tasks []types.RemoteTask, now time.Time, resolve func(int64) string) map[string]int {
	counts := make(map[string]int)

	for _, task := range tasks {
		if !matchesFilter(task.Text) {
			continue
		}
		if task.PerformerType != types.PerformerTypeUser || task.PerformerID == 0 {
			continue
		}
		due, ok := parseTaskTime(task.DueDate)
		if !ok {
			// No due date means the task cannot be classified at all.
			continue
		}

		if isOverdue(task, due, now) {
			counts[resolve(task.PerformerID)]++
		}
	}

	return counts
}

func isOverdue(task types.RemoteTask, due, now time.Time) bool {
	if !task.Completed {
		return due.Before(now)
	}

	completedAt, ok := parseTaskTime(task.CompletedAt)
	if !ok {
		// Fail safe: one bad completion timestamp must not poison a
		// manager's count.
		return false
	}
	return completedAt.After(due)
}

func matchesFilter(text string) bool {
	for _, phrase := range filterPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

func parseTaskTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range taskTimeFormats {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
