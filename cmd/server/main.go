// EduVox API - learning companion backend
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

	"github.com/eduvox/eduvox/internal/api"
	"github.com/eduvox/eduvox/internal/auth"
	"github.com/eduvox/eduvox/internal/companion"
	"github.com/eduvox/eduvox/internal/config"
	"github.com/eduvox/eduvox/internal/middleware"
	"github.com/eduvox/eduvox/internal/newsletter"
	"github.com/eduvox/eduvox/internal/quota"
	"github.com/eduvox/eduvox/internal/store"
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

	// Initialize services.
	stats := quota.NewStatsTracker(repo)
	evaluator := quota.NewPlanEvaluator(repo, stats, cfg.Quota)
	evictor := quota.NewEvictor(repo)
	svc := companion.NewService(repo, evaluator, stats, evictor, cfg.Quota)

	// Initialize handlers.
	baseHandler := api.NewHandler(svc)
	companionHandler := api.NewCompanionHandler(baseHandler)
	healthHandler := api.NewHealthHandler(repo)
	newsletterHandler := api.NewNewsletterHandler(newsletter.NewClient(cfg.Newsletter))

	webhookHandler, err := api.NewWebhookHandler(svc, cfg.WebhookSecret)
	if err != nil {
		slog.Error("Failed to initialize webhook handler", "error", err)
		os.Exit(1)
	}
	if cfg.WebhookSecret == "" {
		slog.Warn("IDENTITY_WEBHOOK_SECRET not set, user-deleted webhook will reject deliveries")
	}

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(auth.Middleware())

	// Public routes.
	healthHandler.RegisterHealth(r)

	companionHandler.RegisterRoutes(r)
	newsletterHandler.RegisterRoutes(r)
	webhookHandler.RegisterRoutes(r)

	// Create server.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
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
