package crm

import (
	"fmt"
	"testing"
	"time"

	"github.com/okklab/reportboard/internal/types"
)

var evalTime = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func idResolver(id int64) string { return fmt.Sprintf("Manager #%d", id) }

func task(id, performer int64, text, due string) types.RemoteTask {
	return types.RemoteTask{
		ID:            id,
		Text:          text,
		PerformerID:   performer,
		PerformerType: types.PerformerTypeUser,
		DueDate:       due,
	}
}

func TestClassifyOverdueIncompleteTasks(t *testing.T) {
	tasks := []types.RemoteTask{
		task(1, 10, "Process order #100", "2024-03-14T10:00:00Z"), // past due
		task(2, 10, "Process order #101", "2024-03-16T10:00:00Z"), // future due
		task(3, 11, "Process order #102", "2024-03-01T10:00:00Z"), // past due
	}

	counts := ClassifyOverdue(tasks, evalTime, idResolver)

	if counts["Manager #10"] != 1 {
		t.Errorf("expected 1 overdue for manager 10, got %d", counts["Manager #10"])
	}
	if counts["Manager #11"] != 1 {
		t.Errorf("expected 1 overdue for manager 11, got %d", counts["Manager #11"])
	}
}

func TestClassifyOverdueCompletedTasks(t *testing.T) {
	late := task(1, 10, "Process order #1", "2024-03-10T10:00:00Z")
	late.Completed = true
	late.CompletedAt = "2024-03-11T10:00:00Z"

	onTime := task(2, 10, "Process order #2", "2024-03-10T10:00:00Z")
	onTime.Completed = true
	onTime.CompletedAt = "2024-03-09T10:00:00Z"

	badStamp := task(3, 10, "Process order #3", "2024-03-10T10:00:00Z")
	badStamp.Completed = true
	badStamp.CompletedAt = "yesterday, probably"

	counts := ClassifyOverdue([]types.RemoteTask{late, onTime, badStamp}, evalTime, idResolver)

	// Only the late completion counts: completion before due is never
	// overdue, and an unparsable completion timestamp fails safe.
	if counts["Manager #10"] != 1 {
		t.Errorf("expected exactly 1 overdue, got %d", counts["Manager #10"])
	}
}

func TestClassifyOverdueFilters(t *testing.T) {
	noPhrase := task(1, 10, "Call supplier", "2024-03-01T10:00:00Z")

	lowerPhrase := task(2, 11, "please process order #5", "2024-03-01T10:00:00Z")

	wrongCasing := task(3, 12, "PROCESS ORDER #6", "2024-03-01T10:00:00Z")

	group := task(4, 13, "Process order #7", "2024-03-01T10:00:00Z")
	group.PerformerType = "group"

	nobody := task(5, 0, "Process order #8", "2024-03-01T10:00:00Z")

	noDue := task(6, 14, "Process order #9", "")

	counts := ClassifyOverdue(
		[]types.RemoteTask{noPhrase, lowerPhrase, wrongCasing, group, nobody, noDue},
		evalTime, idResolver,
	)

	if len(counts) != 1 {
		t.Fatalf("expected only the lowercase-phrase task to classify, got %v", counts)
	}
	if counts["Manager #11"] != 1 {
		t.Errorf("expected 1 overdue for manager 11, got %d", counts["Manager #11"])
	}
}

func TestClassifyOverdueLenientDueFormats(t *testing.T) {
	tasks := []types.RemoteTask{
		task(1, 10, "Process order #1", "2024-03-01 09:30:00"),
		task(2, 10, "Process order #2", "2024-03-02"),
	}
	counts := ClassifyOverdue(tasks, evalTime, idResolver)
	if counts["Manager #10"] != 2 {
		t.Errorf("expected both legacy formats to parse, got %v", counts)
	}
}

func TestClassifyOverdueDueExactlyNow(t *testing.T) {
	exact := task(1, 10, "Process order #1", evalTime.Format(time.RFC3339))
	counts := ClassifyOverdue([]types.RemoteTask{exact}, evalTime, idResolver)
	if len(counts) != 0 {
		t.Errorf("due == now is not strictly past, got %v", counts)
	}
}
