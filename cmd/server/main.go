package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dennisdiepolder/pbxetl/internal/api"
	"github.com/dennisdiepolder/pbxetl/internal/auth"
	"github.com/dennisdiepolder/pbxetl/internal/config"
	"github.com/dennisdiepolder/pbxetl/internal/engine"
	"github.com/dennisdiepolder/pbxetl/internal/history"
	"github.com/dennisdiepolder/pbxetl/internal/logbuffer"
	"github.com/dennisdiepolder/pbxetl/internal/metrics"
	"github.com/dennisdiepolder/pbxetl/internal/notify"
	"github.com/dennisdiepolder/pbxetl/internal/pbx"
	"github.com/dennisdiepolder/pbxetl/internal/scheduler"
	"github.com/dennisdiepolder/pbxetl/internal/sheets"
	"github.com/dennisdiepolder/pbxetl/internal/ws"
	"github.com/dennisdiepolder/pbxetl/pkg/middleware"
)

func main() {
	// Configure logger with an in-memory buffer feeding /api/logs
	zerolog.TimeFieldFormat = time.RFC3339
	logBuffer := logbuffer.New(500)
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log.Logger = zerolog.New(logbuffer.NewWriter(logBuffer, console)).With().Timestamp().Logger()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
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
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("sheets_mode", cfg.SheetsMode).
		Str("history_mode", cfg.HistoryMode).
		Msg("starting pbxetl server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create WebSocket hub
	hub := ws.NewHub(log.Logger)
	go hub.Run()
	wsHandler := ws.NewHandler(hub, cfg, log.Logger)

	// Spreadsheet sinks
	chamadasSink, pausasSink, err := buildSinks(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize spreadsheet sinks")
	}

	// Execution history
	store, err := history.NewStore(ctx, cfg, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize history store")
	}
	ledger := history.NewLedger(store, log.Logger)

	// Pipeline
	fetcher := pbx.NewClient(cfg, log.Logger)
	notifier := notify.New(cfg, log.Logger)
	eng := engine.New(fetcher, chamadasSink, pausasSink, ledger, notifier, hub, log.Logger)
	sched := scheduler.New(eng, ledger, log.Logger)

	if cfg.AutoStartSchedule {
		if err := sched.StartDaily(cfg.ScheduleTime); err != nil {
			notifier.NotifyCriticalError(ctx, err, map[string]any{"schedule": cfg.ScheduleTime})
			log.Fatal().Err(err).Str("time", cfg.ScheduleTime).Msg("failed to auto-start schedule")
		}
	}

	// JWKS only needed in jwt mode
	var jwks *auth.JWKSManager
	if cfg.AuthMode == "jwt" {
		jwks, err = auth.NewJWKSManager(cfg.AuthIssuerURL, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize JWKS")
		}
	}

	// Handlers
	schedulerHandler := api.NewSchedulerHandler(sched, log.Logger)
	historyHandler := api.NewHistoryHandler(ledger, log.Logger)
	logsHandler := api.NewLogsHandler(logBuffer, log.Logger)

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
	r.Get("/metrics", metrics.Get().Handler())

	// Protected control surface
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg, jwks, log.Logger))

		r.Route("/api", func(r chi.Router) {
			r.Get("/scheduler/status", schedulerHandler.GetStatus)
			r.Post("/scheduler/start", schedulerHandler.Start)
			r.Post("/scheduler/stop", schedulerHandler.Stop)
			r.Post("/scheduler/run", schedulerHandler.Run)
			r.Get("/history", historyHandler.GetHistory)
			r.Get("/history/stats", historyHandler.GetHistoryStats)
			r.Get("/stats", historyHandler.GetStats)
			r.Get("/logs", logsHandler.GetLogs)
		})

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

	sched.Stop()
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

// buildSinks creates the two spreadsheet destinations. Outside google mode
// rows are logged and dropped, which keeps local development credential-free.
func buildSinks(ctx context.Context, cfg *config.Config) (sheets.Sink, sheets.Sink, error) {
	if cfg.SheetsMode != "google" {
		return &sheets.LogSink{Name: "chamadas", Logger: log.Logger},
			&sheets.LogSink{Name: "pausas", Logger: log.Logger},
			nil
	}

	chamadas, err := sheets.NewGoogleSink(ctx, cfg, cfg.SheetChamadasID, log.Logger)
	if err != nil {
		return nil, nil, err
	}
	pausas, err := sheets.NewGoogleSink(ctx, cfg, cfg.SheetPausasID, log.Logger)
	if err != nil {
		return nil, nil, err
	}
	return chamadas, pausas, nil
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"pbxetl"}`)
}
