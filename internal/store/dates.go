package store

import (
	"fmt"
	"time"

	"github.com/okklab/reportboard/internal/types"
)

// Historical files were written with more than one date convention; loads
// accept all of them and callers normalize to types.DateFormat.
var acceptedDateFormats = []string{
	types.DateFormat,
	types.ReportDateFormat,
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// parseDate parses a date cell leniently and truncates it to a calendar day.
func parseDate(value string) (time.Time, error) {
	for _, layout := range acceptedDateFormats {
		if ts, err := time.Parse(layout, value); err == nil {
			return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}
