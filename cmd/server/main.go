package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/okklab/reportboard/internal/api"
	"github.com/okklab/reportboard/internal/artifact"
	"github.com/okklab/reportboard/internal/auth"
	"github.com/okklab/reportboard/internal/config"
	"github.com/okklab/reportboard/internal/crm"
	"github.com/okklab/reportboard/internal/display"
	"github.com/okklab/reportboard/internal/pipeline"
	"github.com/okklab/reportboard/internal/render"
	"github.com/okklab/reportboard/internal/report"
	"github.com/okklab/reportboard/internal/scheduler"
	"github.com/okklab/reportboard/internal/store"
	artifactsync "github.com/okklab/reportboard/internal/sync"
	"github.com/okklab/reportboard/internal/transport"
	"github.com/okklab/reportboard/pkg/middleware"
)

const queueSize = 32

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.Port).
		Str("data_dir", cfg.DataDir).
		Str("artifact_dir", cfg.ArtifactDir).
		Bool("crm", cfg.CRMEnabled()).
		Bool("sftp", cfg.SFTPEnabled()).
		Msg("starting reportboard server")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("failed to create data dir")
	}
	if err := os.MkdirAll(cfg.ArtifactDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("failed to create artifact dir")
	}

	// Flat-file stores
	staffStore := store.NewStaffStore(filepath.Join(cfg.DataDir, "staff_tasks.csv"), log.Logger)
	metricsStore := store.NewMetricsStore(filepath.Join(cfg.DataDir, "call_metrics.csv"), log.Logger)
	monthly := store.NewMonthlyAccumulator(filepath.Join(cfg.DataDir, "monthly_totals.json"), log.Logger)

	// Artifact registry and renderer
	registry := artifact.NewRegistry(cfg.ArtifactDir, log.Logger)
	renderer := render.NewHTMLRenderer(registry, cfg.SlideInterval, log.Logger)

	// Remote mirror
	var syncer artifactsync.Syncer = artifactsync.NoopSyncer{}
	if cfg.SFTPEnabled() {
		syncer = artifactsync.NewSFTPSyncer(cfg.SFTPHost, cfg.SFTPUser, cfg.SFTPPass, cfg.SFTPPath, log.Logger)
	}

	// CRM client
	var fetcher pipeline.TaskFetcher
	if cfg.CRMEnabled() {
		fetcher = crm.NewClient(cfg.CRMBaseURL, cfg.CRMAPIKey, cfg.CRMPageSize, cfg.CRMTimeout, cfg.CRMRateRPS, log.Logger)
	}

	// WebSocket hub for the screens
	hub := display.NewHub(log.Logger)
	go hub.Run()

	pipe := pipeline.New(pipeline.Deps{
		Parser:        report.NewParser(log.Logger),
		Staff:         staffStore,
		CallMetrics:   metricsStore,
		Monthly:       monthly,
		Fetcher:       fetcher,
		Registry:      registry,
		Renderer:      renderer,
		Syncer:        syncer,
		Notifier:      hub,
		Logger:        log.Logger,
		RetentionDays: cfg.RetentionDays,
	})

	// Create context for background services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Single worker serializes all pipeline runs
	queue := pipeline.NewQueue(queueSize, log.Logger)
	go queue.Work(ctx)

	// Rebuild the selection from disk so /artifacts/current is accurate
	// before the first pipeline run.
	if _, err := registry.SelectLatest(); err != nil {
		log.Warn().Err(err).Msg("failed to restore artifact selection")
	}

	if cfg.CRMEnabled() {
		go scheduler.NewScheduler(queue, pipe, cfg.CRMRefreshEvery, log.Logger).Start(ctx)
	}

	if cfg.TelegramToken != "" {
		hostPage := filepath.Join(cfg.ArtifactDir, render.SlideshowFile)
		bot, err := transport.NewTelegramBot(cfg.TelegramToken, queue, pipe, hostPage, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to start telegram transport")
		}
		go bot.Run(ctx)
	}

	// HTTP handlers
	authMiddleware := auth.NewMiddleware(cfg, log.Logger)
	wsHandler := display.NewHandler(hub, cfg, log.Logger)
	reportHandler := api.NewReportHandler(queue, pipe, log.Logger)
	artifactsHandler := api.NewArtifactsHandler(registry, monthly, log.Logger)

	// Create router
	r := chi.NewRouter()

	// Add middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Register public routes (no auth required)
	r.Get("/health", healthHandler)
	r.Handle("/metrics", promhttp.Handler())

	// Add auth middleware for protected routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handler)
		r.Post("/internal/report", reportHandler.HandleReport)
		r.Get("/artifacts/current", artifactsHandler.HandleCurrent)
		r.Get("/artifacts/monthly", artifactsHandler.HandleMonthly)
		r.Get("/ws", wsHandler.ServeHTTP)
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Msgf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Stop background services
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"reportboard"}`)
}
