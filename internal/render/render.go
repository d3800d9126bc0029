// Package render produces the per-category dashboard files consumed by the
// display screens. The pipeline only depends on the Renderer interface; the
// HTML implementation here is intentionally plain.
package render

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/okklab/reportboard/internal/artifact"
	"github.com/okklab/reportboard/internal/metrics"
	"github.com/okklab/reportboard/internal/types"
)

// Renderer turns structured rows into named artifact files, one per
// category, and assembles the slideshow host page.
type Renderer interface {
	RenderStaff(date time.Time, rows []types.StaffTaskRecord) (string, error)
	RenderCallMetrics(date time.Time, history []types.MetricRecord) (string, error)
	RenderOrderOverdues(date time.Time, history []types.MetricRecord) (string, error)
	RenderTaskOverdues(date time.Time, counts map[string]int) (string, error)
	RenderSlideshow(selected []artifact.Artifact) (string, error)
}

// SlideshowFile is the host page name the static web host serves by default.
const SlideshowFile = "latest_dashboard.html"

// HTMLRenderer writes self-contained HTML slides into the registry's
// directory.
type HTMLRenderer struct {
	registry      *artifact.Registry
	slideInterval time.Duration
	logger        zerolog.Logger
}

// NewHTMLRenderer creates a new HTMLRenderer.
func NewHTMLRenderer(registry *artifact.Registry, slideInterval time.Duration, logger zerolog.Logger) *HTMLRenderer {
	return &HTMLRenderer{registry: registry, slideInterval: slideInterval, logger: logger}
}

type tableRow struct {
	Cells []string
}

type slideData struct {
	Title   string
	Date    string
	Headers []string
	Rows    []tableRow
}

var slideTmpl = template.Must(template.New("slide").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}} — {{.Date}}</title>
<style>
body { font-family: 'Inter', sans-serif; background-color: #1f2937; color: #f9fafb; margin: 0; padding: 24px; }
h1 { text-align: center; font-size: 2.2em; text-shadow: 2px 2px 4px #000; }
table { width: 90%; margin: 0 auto; border-collapse: collapse; background: #fff; color: #111; border-radius: 12px; overflow: hidden; font-size: 1.4em; }
th, td { padding: 10px 18px; text-align: left; border-bottom: 1px solid #e5e7eb; }
th { background: #88be43; color: #fff; }
tr:last-child td { border-bottom: none; }
</style>
</head>
<body>
<h1>{{.Title}} ({{.Date}})</h1>
<table>
<tr>{{range .Headers}}<th>{{.}}</th>{{end}}</tr>
{{range .Rows}}<tr>{{range .Cells}}<td>{{.}}</td>{{end}}</tr>
{{end}}</table>
</body>
</html>
`))

type slideshowData struct {
	Date       string
	Files      []string
	IntervalMS int64
}

var slideshowTmpl = template.Must(template.New("slideshow").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>QC dashboard — {{.Date}}</title>
<style>
body, html { margin: 0; width: 100%; height: 100%; overflow: hidden; background-color: #1f2937; }
.slide { width: 100%; height: 100%; border: none; position: absolute; top: 0; left: 0; opacity: 0; transition: opacity 0.7s ease-in-out; pointer-events: none; }
.slide.active { opacity: 1; }
</style>
</head>
<body>
<div id="slideshow"></div>
<script>
const files = [{{range .Files}}{{.}},{{end}}];
const interval = {{.IntervalMS}};
const container = document.getElementById('slideshow');
const frames = files.map(src => {
  const f = document.createElement('iframe');
  f.className = 'slide';
  f.src = src;
  container.appendChild(f);
  return f;
});
let current = 0;
function rotate() {
  if (frames.length === 0) return;
  frames.forEach(f => f.classList.remove('active'));
  frames[current].classList.add('active');
  current = (current + 1) % frames.length;
  setTimeout(rotate, interval);
}
window.onload = () => setTimeout(rotate, 1000);
</script>
</body>
</html>
`))

// RenderStaff writes the per-employee completion slide for one day, best
// completion percentage first.
func (r *HTMLRenderer) RenderStaff(date time.Time, rows []types.StaffTaskRecord) (string, error) {
	sorted := make([]types.StaffTaskRecord, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CompletionPct > sorted[j].CompletionPct })

	data := slideData{
		Title:   artifact.Categories[0].Title,
		Date:    date.Format(types.ReportDateFormat),
		Headers: []string{"Employee", "Posted", "Completed", "Completion %"},
	}
	for _, row := range sorted {
		data.Rows = append(data.Rows, tableRow{Cells: []string{
			row.Employee,
			fmt.Sprintf("%d", row.Posted),
			fmt.Sprintf("%d", row.Completed),
			fmt.Sprintf("%.2f", row.CompletionPct),
		}})
	}
	return r.writeSlide(artifact.Categories[0], date, data)
}

// RenderCallMetrics writes the call-handling history slide.
func (r *HTMLRenderer) RenderCallMetrics(date time.Time, history []types.MetricRecord) (string, error) {
	data := slideData{
		Title:   artifact.Categories[1].Title,
		Date:    date.Format(types.ReportDateFormat),
		Headers: []string{"Date", "Missed", "Callbacks > 5 min", "Not contacted"},
	}
	for _, rec := range history {
		data.Rows = append(data.Rows, tableRow{Cells: []string{
			rec.Date.Format(types.DateFormat),
			fmt.Sprintf("%d", rec.MissedCalls),
			fmt.Sprintf("%d", rec.LateCallbacks),
			fmt.Sprintf("%d", rec.Uncontacted),
		}})
	}
	return r.writeSlide(artifact.Categories[1], date, data)
}

// RenderOrderOverdues writes the order-processing history slide. Days with
// no recorded orders are left out.
func (r *HTMLRenderer) RenderOrderOverdues(date time.Time, history []types.MetricRecord) (string, error) {
	data := slideData{
		Title:   artifact.Categories[2].Title,
		Date:    date.Format(types.ReportDateFormat),
		Headers: []string{"Date", "On time", "Overdue", "Total", "Overdue %"},
	}
	for _, rec := range history {
		if rec.TotalOrders == 0 {
			continue
		}
		data.Rows = append(data.Rows, tableRow{Cells: []string{
			rec.Date.Format(types.DateFormat),
			fmt.Sprintf("%d", rec.TotalOrders-rec.OverdueOrders),
			fmt.Sprintf("%d", rec.OverdueOrders),
			fmt.Sprintf("%d", rec.TotalOrders),
			fmt.Sprintf("%.2f", rec.OverduePct),
		}})
	}
	return r.writeSlide(artifact.Categories[2], date, data)
}

// RenderTaskOverdues writes the CRM overdue-tasks slide, worst manager first.
func (r *HTMLRenderer) RenderTaskOverdues(date time.Time, counts map[string]int) (string, error) {
	managers := make([]string, 0, len(counts))
	for m := range counts {
		managers = append(managers, m)
	}
	sort.Slice(managers, func(i, j int) bool {
		if counts[managers[i]] != counts[managers[j]] {
			return counts[managers[i]] > counts[managers[j]]
		}
		return managers[i] < managers[j]
	})

	data := slideData{
		Title:   artifact.Categories[3].Title,
		Date:    date.Format(types.ReportDateFormat),
		Headers: []string{"Manager", "Overdue tasks"},
	}
	for _, m := range managers {
		data.Rows = append(data.Rows, tableRow{Cells: []string{m, fmt.Sprintf("%d", counts[m])}})
	}
	return r.writeSlide(artifact.Categories[3], date, data)
}

// RenderSlideshow writes the host page cycling through the selected
// artifacts in category order.
func (r *HTMLRenderer) RenderSlideshow(selected []artifact.Artifact) (string, error) {
	data := slideshowData{
		Date:       time.Now().Format(types.ReportDateFormat),
		IntervalMS: r.slideInterval.Milliseconds(),
	}
	for _, a := range selected {
		// The host page and the slides live side by side on the web host.
		data.Files = append(data.Files, filepath.Base(a.Path))
	}

	path := filepath.Join(r.registry.Dir(), SlideshowFile)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create slideshow host: %w", err)
	}
	defer f.Close()

	if err := slideshowTmpl.Execute(f, data); err != nil {
		return "", fmt.Errorf("render slideshow host: %w", err)
	}
	r.logger.Info().Int("slides", len(data.Files)).Str("path", path).Msg("slideshow host rendered")
	return path, nil
}

func (r *HTMLRenderer) writeSlide(cat artifact.Category, date time.Time, data slideData) (string, error) {
	path := r.registry.Filename(cat, date)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("mkdir artifact dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create artifact %s: %w", path, err)
	}
	defer f.Close()

	if err := slideTmpl.Execute(f, data); err != nil {
		return "", fmt.Errorf("render %s slide: %w", cat.Slug, err)
	}
	metrics.ArtifactsRendered.WithLabelValues(cat.Slug).Inc()
	r.logger.Debug().Str("category", cat.Slug).Str("path", path).Msg("artifact rendered")
	return path, nil
}
