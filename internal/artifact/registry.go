// Package artifact tracks the rendered dashboard files and decides which one
// represents each category in the current display cycle.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/okklab/reportboard/internal/metrics"
	"github.com/okklab/reportboard/internal/types"
)

// Category is one artifact kind. The numeric tag is stable and embedded in
// file names; the declaration order below is the display order.
type Category struct {
	Tag   int    `json:"tag"`
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

// Categories in display order. Screens always rotate in this sequence no
// matter which artifact was generated most recently.
var Categories = []Category{
	{Tag: 1, Slug: "staff", Title: "Task completion by employee"},
	{Tag: 2, Slug: "missed", Title: "Missed calls and callback delays"},
	{Tag: 3, Slug: "orders", Title: "Overdue order processing"},
	{Tag: 4, Slug: "tasks", Title: "Overdue CRM tasks by manager"},
}

// CategoryByTag returns the declared category with the given tag.
func CategoryByTag(tag int) (Category, bool) {
	for _, c := range Categories {
		if c.Tag == tag {
			return c, true
		}
	}
	return Category{}, false
}

const filePrefix = "dashboard_data"

var fileRe = regexp.MustCompile(`^dashboard_data_(\d+)_[a-z]+_(\d{4}-\d{2}-\d{2})\.html$`)

// Artifact is one rendered dashboard file.
type Artifact struct {
	Category    Category  `json:"category"`
	Path        string    `json:"path"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Registry owns the artifact directory: it names new files, selects the
// current set and sweeps expired ones. It replaces re-deriving state from
// directory listings scattered around the code.
type Registry struct {
	dir    string
	logger zerolog.Logger

	mu      sync.RWMutex
	current []Artifact
}

// NewRegistry creates a Registry over the given directory.
func NewRegistry(dir string, logger zerolog.Logger) *Registry {
	return &Registry{dir: dir, logger: logger}
}

// Dir returns the artifact directory.
func (r *Registry) Dir() string { return r.dir }

// Filename builds the canonical artifact path for a category and date. The
// embedded tag and date are what SelectLatest and Sweep key on.
func (r *Registry) Filename(cat Category, date time.Time) string {
	name := fmt.Sprintf("%s_%d_%s_%s.html", filePrefix, cat.Tag, cat.Slug, date.Format(types.DateFormat))
	return filepath.Join(r.dir, name)
}

// SelectLatest scans the directory and picks, per declared category, the
// most recently modified artifact. The result follows category declaration
// order; categories with no artifact are skipped. The selection becomes the
// registry's current set.
func (r *Registry) SelectLatest() ([]Artifact, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			entries = nil
		} else {
			return nil, fmt.Errorf("read artifact dir %s: %w", r.dir, err)
		}
	}

	latest := make(map[int]Artifact)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		tag, _, ok := parseName(entry.Name())
		if !ok {
			continue
		}
		cat, ok := CategoryByTag(tag)
		if !ok {
			r.logger.Warn().Str("file", entry.Name()).Int("tag", tag).Msg("artifact with undeclared category tag ignored")
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		a := Artifact{Category: cat, Path: filepath.Join(r.dir, entry.Name()), GeneratedAt: info.ModTime()}
		if prev, ok := latest[tag]; !ok || a.GeneratedAt.After(prev.GeneratedAt) {
			latest[tag] = a
		}
	}

	selected := make([]Artifact, 0, len(Categories))
	for _, cat := range Categories {
		if a, ok := latest[cat.Tag]; ok {
			selected = append(selected, a)
		}
	}

	r.mu.Lock()
	r.current = selected
	r.mu.Unlock()
	return selected, nil
}

// Current returns a copy of the last selection.
func (r *Registry) Current() []Artifact {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Artifact, len(r.current))
	copy(out, r.current)
	return out
}

// Sweep deletes artifacts whose filename date is older than keepDays before
// now. Files that merely look similar but do not match the naming scheme are
// left alone.
func (r *Registry) Sweep(now time.Time, keepDays int) (int, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read artifact dir %s: %w", r.dir, err)
	}

	cutoff := now.AddDate(0, 0, -keepDays)
	deleted := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		_, dateStr, ok := parseName(entry.Name())
		if !ok {
			continue
		}
		fileDate, err := time.Parse(types.DateFormat, dateStr)
		if err != nil {
			r.logger.Warn().Str("file", entry.Name()).Msg("cannot parse date from artifact name, skipping")
			continue
		}
		if fileDate.Before(cutoff) {
			path := filepath.Join(r.dir, entry.Name())
			if err := os.Remove(path); err != nil {
				r.logger.Warn().Err(err).Str("file", entry.Name()).Msg("failed to delete expired artifact")
				continue
			}
			metrics.ArtifactsSwept.Inc()
			deleted++
			r.logger.Info().Str("file", entry.Name()).Msg("expired artifact deleted")
		}
	}
	return deleted, nil
}

func parseName(name string) (tag int, date string, ok bool) {
	m := fileRe.FindStringSubmatch(name)
	if m == nil {
		return 0, "", false
	}
	tag, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", false
	}
	return tag, m[2], true
}
