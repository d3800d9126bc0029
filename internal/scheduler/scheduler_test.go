package scheduler

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/okklab/reportboard/internal/pipeline"
)

func TestSchedulerEnqueuesRefreshes(t *testing.T) {
	quiet := zerolog.New(&bytes.Buffer{})
	queue := pipeline.NewQueue(16, quiet)
	pipe := pipeline.New(pipeline.Deps{Logger: quiet})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewScheduler(queue, pipe, 10*time.Millisecond, quiet).Start(ctx)
		close(done)
	}()

	// One immediate enqueue plus at least one tick. No worker is draining
	// the queue, so the depth is observable.
	deadline := time.After(2 * time.Second)
	for queue.Depth() < 2 {
		select {
		case <-deadline:
			t.Fatal("scheduler did not enqueue refreshes in time")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on context cancel")
	}
}

func TestSchedulerSkipsTicksWhenQueueFull(t *testing.T) {
	quiet := zerolog.New(&bytes.Buffer{})
	queue := pipeline.NewQueue(1, quiet)
	pipe := pipeline.New(pipeline.Deps{Logger: quiet})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewScheduler(queue, pipe, 5*time.Millisecond, quiet).Start(ctx)

	time.Sleep(50 * time.Millisecond)
	if queue.Depth() != 1 {
		t.Errorf("expected the full queue to stay at depth 1, got %d", queue.Depth())
	}
}
