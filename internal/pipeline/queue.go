package pipeline

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/okklab/reportboard/internal/metrics"
)

// ErrQueueFull is returned when a job cannot be accepted without blocking.
var ErrQueueFull = errors.New("pipeline queue full")

// Job is one unit of pipeline work.
type Job struct {
	Kind string
	Run  func(ctx context.Context) error
}

// Queue serializes pipeline jobs through a single worker. Report ingestion
// and CRM refreshes go through the same queue, so a slow CRM fetch delays a
// report but never races it.
type Queue struct {
	jobs   chan Job
	logger zerolog.Logger
}

// NewQueue creates a queue with the given buffer size.
func NewQueue(size int, logger zerolog.Logger) *Queue {
	return &Queue{jobs: make(chan Job, size), logger: logger}
}

// Enqueue adds a job without blocking. A full queue rejects the job; callers
// surface that to the submitter rather than stalling the transport.
func (q *Queue) Enqueue(job Job) error {
	select {
	case q.jobs <- job:
		metrics.QueueDepth.Set(float64(len(q.jobs)))
		return nil
	default:
		return ErrQueueFull
	}
}

// Depth reports the number of queued jobs.
func (q *Queue) Depth() int { return len(q.jobs) }

// Work consumes jobs until the context is cancelled. Run it in exactly one
// goroutine.
func (q *Queue) Work(ctx context.Context) {
	q.logger.Info().Msg("pipeline worker started")
	for {
		select {
		case <-ctx.Done():
			q.logger.Info().Msg("pipeline worker stopped")
			return
		case job := <-q.jobs:
			metrics.QueueDepth.Set(float64(len(q.jobs)))
			if err := job.Run(ctx); err != nil {
				q.logger.Error().Err(err).Str("kind", job.Kind).Msg("pipeline job failed")
			}
		}
	}
}
