package api

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/okklab/reportboard/internal/artifact"
	"github.com/okklab/reportboard/internal/store"
)

// ArtifactEntry is one current slide in the artifacts payload.
type ArtifactEntry struct {
	Tag         int    `json:"tag"`
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	File        string `json:"file"`
	GeneratedAt string `json:"generatedAt"`
}

// ArtifactsHandler serves the current artifact selection and monthly totals.
type ArtifactsHandler struct {
	registry *artifact.Registry
	monthly  *store.MonthlyAccumulator
	logger   zerolog.Logger
}

// NewArtifactsHandler creates a new ArtifactsHandler
func NewArtifactsHandler(registry *artifact.Registry, monthly *store.MonthlyAccumulator, logger zerolog.Logger) *ArtifactsHandler {
	return &ArtifactsHandler{
		registry: registry,
		monthly:  monthly,
		logger:   logger.With().Str("component", "artifacts").Logger(),
	}
}

// HandleCurrent handles GET /artifacts/current
func (h *ArtifactsHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	current := h.registry.Current()
	entries := make([]ArtifactEntry, 0, len(current))
	for _, a := range current {
		entries = append(entries, ArtifactEntry{
			Tag:         a.Category.Tag,
			Slug:        a.Category.Slug,
			Title:       a.Category.Title,
			File:        filepath.Base(a.Path),
			GeneratedAt: a.GeneratedAt.UTC().Format(time.RFC3339),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"artifacts": entries})
}

// HandleMonthly handles GET /artifacts/monthly
func (h *ArtifactsHandler) HandleMonthly(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"totals": h.monthly.CurrentMonthTotals()})
}
