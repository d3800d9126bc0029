// Package scheduler enqueues the periodic CRM refresh.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/okklab/reportboard/internal/pipeline"
)

// Scheduler periodically submits a CRM refresh job to the pipeline queue.
type Scheduler struct {
	queue    *pipeline.Queue
	pipe     *pipeline.Pipeline
	interval time.Duration
	logger   zerolog.Logger
}

// NewScheduler creates a new Scheduler.
func NewScheduler(queue *pipeline.Queue, pipe *pipeline.Pipeline, interval time.Duration, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		queue:    queue,
		pipe:     pipe,
		interval: interval,
		logger:   logger,
	}
}

// Start enqueues one refresh immediately, then one per interval, until the
// context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("crm scheduler started")
	s.enqueue()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("crm scheduler stopped")
			return

		case <-ticker.C:
			s.enqueue()
		}
	}
}

func (s *Scheduler) enqueue() {
	err := s.queue.Enqueue(pipeline.Job{
		Kind: "crm-refresh",
		Run:  s.pipe.RefreshCRM,
	})
	if err != nil {
		// A full queue means a refresh is already pending; skipping this
		// tick loses nothing.
		if errors.Is(err, pipeline.ErrQueueFull) {
			s.logger.Warn().Msg("queue full, skipping crm refresh tick")
			return
		}
		s.logger.Error().Err(err).Msg("failed to enqueue crm refresh")
	}
}
