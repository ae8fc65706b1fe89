// Chaincademy - Web3 education platform server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aibekov/chaincademy/internal/api"
	"github.com/aibekov/chaincademy/internal/catalog"
	"github.com/aibekov/chaincademy/internal/certificate"
	"github.com/aibekov/chaincademy/internal/config"
	"github.com/aibekov/chaincademy/internal/events"
	"github.com/aibekov/chaincademy/internal/identity"
	"github.com/aibekov/chaincademy/internal/ledger"
	"github.com/aibekov/chaincademy/internal/middleware"
	"github.com/aibekov/chaincademy/internal/progress"
	"github.com/aibekov/chaincademy/internal/stats"
	"github.com/aibekov/chaincademy/internal/store"
	"github.com/aibekov/chaincademy/internal/validator"
	"github.com/aibekov/chaincademy/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	cat := catalog.NewService(cfg.CoursesDir)
	if err := cat.Load(); err != nil {
		slog.Error("Failed to load course catalog", "error", err)
		os.Exit(1)
	}

	hub := events.NewHub()
	statsSvc := stats.NewService(repo, hub)

	// Code validation service (optional).
	var validatorClient validator.Client
	var validatorCheck api.BoundaryChecker
	if cfg.ValidatorURL != "" {
		vc := validator.NewHTTPClient(validator.Config{
			BaseURL:        cfg.ValidatorURL,
			RequestTimeout: cfg.Timeout.Validation,
		})
		validatorClient = vc
		validatorCheck = vc
		slog.Info("Code validation enabled", "url", cfg.ValidatorURL)
	} else {
		slog.Info("Code validation disabled (VALIDATOR_URL not set)")
	}

	// Certificate relayer (optional).
	var writer ledger.Writer
	var relayerCheck api.BoundaryChecker
	if cfg.RelayerURL != "" {
		rc := ledger.NewRelayerClient(ledger.Config{
			BaseURL:         cfg.RelayerURL,
			ContractAddress: cfg.ContractAddress,
		})
		writer = rc
		relayerCheck = rc
		slog.Info("Certificate minting enabled", "relayer", cfg.RelayerURL, "contract", cfg.ContractAddress)
	} else {
		slog.Info("Certificate minting disabled (RELAYER_URL not set)")
	}

	retryPolicy := store.RetryPolicy{
		MaxRetries: cfg.Retry.DatabaseMaxRetries,
		BaseDelay:  cfg.Retry.DatabaseRetryBaseDelay,
	}
	tracker := progress.NewTracker(repo, validatorClient, statsSvc, hub, retryPolicy)
	certSvc := certificate.NewService(repo, writer, hub, retryPolicy)

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, cat, tracker, certSvc, statsSvc)
	healthHandler := api.NewHealthHandler(repo, cfg, validatorCheck, relayerCheck)
	wsHandler := events.NewWebSocketHandler(hub, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	// Health checks stay outside the identity middleware so uncookied
	// monitoring requests never create user rows.
	r.Use(chiMiddleware.Heartbeat("/ping"))
	healthHandler.RegisterHealth(r)

	// Everything below runs with a learner identity.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment()))

		healthHandler.RegisterRoutes(r)

		api.NewCourseHandler(baseHandler).RegisterRoutes(r)
		api.NewProgressHandler(baseHandler, validatorClient != nil).RegisterRoutes(r)
		api.NewCertificateHandler(baseHandler, cfg.Timeout.Mint).RegisterRoutes(r)
		api.NewAchievementHandler(baseHandler).RegisterRoutes(r)

		// WebSocket event stream.
		r.Get("/ws/events", wsHandler.ServeHTTP)
	})

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // 0 = no timeout; mint requests wait for chain finalization
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
