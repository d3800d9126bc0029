// Package pipeline orchestrates a full processing run: parse or fetch,
// persist, render, publish. All runs are serialized through the Queue so the
// flat-file stores and the artifact directory never see concurrent writers.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/okklab/reportboard/internal/artifact"
	"github.com/okklab/reportboard/internal/crm"
	"github.com/okklab/reportboard/internal/metrics"
	"github.com/okklab/reportboard/internal/render"
	"github.com/okklab/reportboard/internal/report"
	"github.com/okklab/reportboard/internal/store"
	syncer "github.com/okklab/reportboard/internal/sync"
	"github.com/okklab/reportboard/internal/types"
)

// Notifier is told whenever the current artifact set changes. The websocket
// hub implements it; tests substitute a recorder.
type Notifier interface {
	NotifyArtifactsRefreshed(selected []artifact.Artifact)
}

// TaskFetcher is the slice of the CRM client the pipeline needs.
type TaskFetcher interface {
	FetchTasks(ctx context.Context, from, to time.Time) ([]types.RemoteTask, error)
	ResolveManagerName(ctx context.Context, cache *crm.IdentityCache, id int64) string
}

// Pipeline wires the processing stages together.
type Pipeline struct {
	parser        *report.Parser
	staff         *store.StaffStore
	callMetrics   *store.MetricsStore
	monthly       *store.MonthlyAccumulator
	fetcher       TaskFetcher // nil when no CRM is configured
	registry      *artifact.Registry
	renderer      render.Renderer
	syncer        syncer.Syncer
	notifier      Notifier
	logger        zerolog.Logger
	retentionDays int

	now func() time.Time
}

// Deps carries the pipeline's collaborators.
type Deps struct {
	Parser        *report.Parser
	Staff         *store.StaffStore
	CallMetrics   *store.MetricsStore
	Monthly       *store.MonthlyAccumulator
	Fetcher       TaskFetcher
	Registry      *artifact.Registry
	Renderer      render.Renderer
	Syncer        syncer.Syncer
	Notifier      Notifier
	Logger        zerolog.Logger
	RetentionDays int
}

// New creates a new Pipeline.
func New(d Deps) *Pipeline {
	return &Pipeline{
		parser:        d.Parser,
		staff:         d.Staff,
		callMetrics:   d.CallMetrics,
		monthly:       d.Monthly,
		fetcher:       d.Fetcher,
		registry:      d.Registry,
		renderer:      d.Renderer,
		syncer:        d.Syncer,
		notifier:      d.Notifier,
		logger:        d.Logger,
		retentionDays: d.RetentionDays,
		now:           time.Now,
	}
}

// IngestReport runs the full report path: parse, persist the day, fold the
// month, re-render the report-driven slides and publish.
func (p *Pipeline) IngestReport(ctx context.Context, text string) error {
	start := p.now()
	runID := uuid.New().String()
	log := p.logger.With().Str("run_id", runID).Str("kind", "report").Logger()

	parsed, err := p.parser.Parse(text)
	if err != nil {
		metrics.ReportsFailed.WithLabelValues("parse").Inc()
		return fmt.Errorf("parse report: %w", err)
	}
	log = log.With().Str("date", parsed.Date.Format(types.DateFormat)).Logger()

	if err := p.staff.UpsertByDate(parsed.Staff); err != nil {
		metrics.ReportsFailed.WithLabelValues("store").Inc()
		return fmt.Errorf("upsert staff rows: %w", err)
	}
	if err := p.callMetrics.UpsertByDate(parsed.Metrics); err != nil {
		metrics.ReportsFailed.WithLabelValues("store").Inc()
		return fmt.Errorf("upsert day metrics: %w", err)
	}

	deltas := make(map[string]store.Delta, len(parsed.Staff))
	for _, row := range parsed.Staff {
		deltas[row.Employee] = store.Delta{Posted: row.Posted, Completed: row.Completed}
	}
	if err := p.monthly.Update(parsed.Date, deltas); err != nil {
		metrics.ReportsFailed.WithLabelValues("accumulate").Inc()
		return fmt.Errorf("fold monthly totals: %w", err)
	}

	history, err := p.callMetrics.Load()
	if err != nil {
		metrics.ReportsFailed.WithLabelValues("render").Inc()
		return fmt.Errorf("load metric history: %w", err)
	}

	slides := []func() (string, error){
		func() (string, error) { return p.renderer.RenderStaff(parsed.Date, parsed.Staff) },
		func() (string, error) { return p.renderer.RenderCallMetrics(parsed.Date, history) },
		func() (string, error) { return p.renderer.RenderOrderOverdues(parsed.Date, history) },
	}
	rendered := make([]string, 0, len(slides))
	for _, renderSlide := range slides {
		path, err := renderSlide()
		if err != nil {
			metrics.ReportsFailed.WithLabelValues("render").Inc()
			return err
		}
		rendered = append(rendered, path)
	}

	if err := p.publish(log, rendered); err != nil {
		return err
	}

	metrics.ReportsIngested.Inc()
	metrics.RecordPipelineRun("report", p.now().Sub(start))
	log.Info().Int("staff_rows", len(parsed.Staff)).Msg("report ingested")
	return nil
}

// RefreshCRM fetches the current month's tasks, classifies the overdue ones
// and publishes the refreshed tasks slide. Manager names are resolved through
// a cache scoped to this run, so a renamed manager shows up on the next
// refresh at the latest.
func (p *Pipeline) RefreshCRM(ctx context.Context) error {
	if p.fetcher == nil {
		p.logger.Debug().Msg("no CRM configured, skipping refresh")
		return nil
	}

	start := p.now()
	runID := uuid.New().String()
	log := p.logger.With().Str("run_id", runID).Str("kind", "crm").Logger()

	now := p.now()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	tasks, err := p.fetcher.FetchTasks(ctx, from, now)
	if err != nil {
		metrics.CRMFetchFailures.Inc()
		return fmt.Errorf("fetch tasks: %w", err)
	}

	cache := crm.NewIdentityCache()
	counts := crm.ClassifyOverdue(tasks, now, func(id int64) string {
		return p.fetcher.ResolveManagerName(ctx, cache, id)
	})

	path, err := p.renderer.RenderTaskOverdues(now, counts)
	if err != nil {
		return err
	}

	if err := p.publish(log, []string{path}); err != nil {
		return err
	}

	metrics.RecordPipelineRun("crm", p.now().Sub(start))
	log.Info().Int("tasks", len(tasks)).Int("managers", len(counts)).Msg("crm refresh complete")
	return nil
}

// publish re-selects the current artifact set, rebuilds the slideshow host,
// sweeps expired files and mirrors everything to the remote host. A failed
// upload is logged but never fails the run: local state is already correct
// and the next run retries the mirror.
func (p *Pipeline) publish(log zerolog.Logger, rendered []string) error {
	selected, err := p.registry.SelectLatest()
	if err != nil {
		return fmt.Errorf("select artifacts: %w", err)
	}
	host, err := p.renderer.RenderSlideshow(selected)
	if err != nil {
		return err
	}

	if deleted, err := p.registry.Sweep(p.now(), p.retentionDays); err != nil {
		log.Warn().Err(err).Msg("retention sweep failed")
	} else if deleted > 0 {
		log.Info().Int("deleted", deleted).Msg("expired artifacts swept")
	}

	if err := p.syncer.Upload(append(rendered, host)); err != nil {
		log.Warn().Err(err).Msg("artifact upload failed, will retry on next run")
	}

	if p.notifier != nil {
		p.notifier.NotifyArtifactsRefreshed(selected)
	}
	return nil
}
