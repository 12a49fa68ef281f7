package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"agentsched-go/internal/actions"
	"agentsched-go/internal/config"
	"agentsched-go/internal/scheduler"
	"agentsched-go/internal/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Application holds all the major components of the service.
type Application struct {
	Config        *config.Config
	Logger        *log.Logger
	DB            *sql.DB
	Engine        *scheduler.Engine
	HTTPServer    *http.Server
	MetricsServer *http.Server
}

// New creates and initializes a new Application instance.
func New(cfg *config.Config) (*Application, error) {
	logger := log.New(os.Stdout, "agentsched: ", log.LstdFlags)

	// Setup: Database
	storageCfg := storage.DefaultConfig()
	storageCfg.Path = cfg.DBPath
	db, err := storage.Open(storageCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	jobs := scheduler.NewSQLiteJobStore(db)
	history := scheduler.NewSQLiteHistoryStore(db)

	// Setup: ActionDispatcher
	dispatcher := actions.NewDispatcher(actions.Config{
		CommandTimeout: cfg.Actions.CommandTimeout.Duration,
		NotesDir:       cfg.Actions.NotesDir,
		MemoryPath:     cfg.Actions.MemoryPath,
	}, logger)

	// Setup: Runner and Engine
	runner := scheduler.NewRunner(jobs, history, dispatcher, logger,
		cfg.Scheduler.HistoryRetention.Duration)
	engine := scheduler.NewEngine(jobs, history, dispatcher, runner, logger)

	// Setup: HTTP Server for metrics
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metricsMux,
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		DB:            db,
		Engine:        engine,
		MetricsServer: metricsServer,
	}

	// Setup: Main HTTP Server
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/schedule", app.handleSchedule)
	mux.HandleFunc("POST /api/cancel", app.handleCancel)
	mux.HandleFunc("POST /api/run", app.handleRunNow)
	mux.HandleFunc("GET /api/jobs", app.handleListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", app.handleGetJob)
	mux.HandleFunc("GET /api/history", app.handleHistory)
	mux.HandleFunc("GET /health", app.handleHealth)
	app.HTTPServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: app.logRequests(mux),
	}

	return app, nil
}

// Start begins the application's services.
func (a *Application) Start(ctx context.Context) error {
	a.Logger.Println("Starting application services...")

	// Start the tick loop
	go a.runTicker(ctx)
	a.Logger.Printf("Tick loop started (interval %s).", a.Config.Scheduler.TickInterval)

	// Start the metrics server
	go func() {
		a.Logger.Printf("Starting metrics server on %s", a.MetricsServer.Addr)
		if err := a.MetricsServer.ListenAndServe(); err != http.ErrServerClosed {
			a.Logger.Fatalf("Metrics server ListenAndServe: %v", err)
		}
	}()

	// Start the main HTTP server
	go func() {
		a.Logger.Printf("Starting HTTP server on %s", a.HTTPServer.Addr)
		if err := a.HTTPServer.ListenAndServe(); err != http.ErrServerClosed {
			a.Logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	return nil
}

// runTicker drives the periodic sweep until ctx is cancelled. Ticks that find
// the previous sweep still running are skipped, not queued.
func (a *Application) runTicker(ctx context.Context) {
	ticker := time.NewTicker(a.Config.Scheduler.TickInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			results, err := a.Engine.Tick(ctx)
			if errors.Is(err, scheduler.ErrTickInProgress) {
				a.Logger.Println("tick skipped: previous tick still running")
				continue
			}
			if err != nil {
				a.Logger.Printf("tick failed: %v", err)
				continue
			}
			if len(results) > 0 {
				a.Logger.Printf("tick executed %d job(s)", len(results))
			}
		}
	}
}

// Stop gracefully shuts down the application's services.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.Println("Stopping application services...")

	// Shutdown servers
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := a.HTTPServer.Shutdown(shutdownCtx); err != nil {
		a.Logger.Printf("HTTP server shutdown error: %v", err)
	}

	if err := a.MetricsServer.Shutdown(shutdownCtx); err != nil {
		a.Logger.Printf("Metrics server shutdown error: %v", err)
	}

	// Close the database connection
	if err := a.DB.Close(); err != nil {
		a.Logger.Printf("Error closing database: %v", err)
	}

	a.Logger.Println("Application stopped gracefully.")
	return nil
}
