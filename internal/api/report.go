// Package api holds the HTTP handlers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/okklab/reportboard/internal/pipeline"
)

// ReportRequest is the payload for manual report submission.
type ReportRequest struct {
	Text string `json:"text"`
}

// ReportHandler accepts a raw daily report and queues it for processing.
type ReportHandler struct {
	queue  *pipeline.Queue
	pipe   *pipeline.Pipeline
	logger zerolog.Logger
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(queue *pipeline.Queue, pipe *pipeline.Pipeline, logger zerolog.Logger) *ReportHandler {
	return &ReportHandler{
		queue:  queue,
		pipe:   pipe,
		logger: logger.With().Str("component", "report").Logger(),
	}
}

// HandleReport handles POST /internal/report. The report is validated and
// processed asynchronously; submission only confirms queueing.
func (h *ReportHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	var req ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, "empty report text", http.StatusBadRequest)
		return
	}

	text := req.Text
	err := h.queue.Enqueue(pipeline.Job{
		Kind: "report",
		Run: func(ctx context.Context) error {
			return h.pipe.IngestReport(ctx, text)
		},
	})
	if err != nil {
		if errors.Is(err, pipeline.ErrQueueFull) {
			http.Error(w, "queue full, retry later", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "failed to queue report", http.StatusInternalServerError)
		return
	}

	h.logger.Info().Int("bytes", len(text)).Msg("report queued")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "queued"})
}
