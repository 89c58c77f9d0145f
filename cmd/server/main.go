// Smart Star - financial assistant chat server
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

	"github.com/ashureev/smartstar/internal/api"
	"github.com/ashureev/smartstar/internal/chat"
	"github.com/ashureev/smartstar/internal/completion"
	"github.com/ashureev/smartstar/internal/config"
	"github.com/ashureev/smartstar/internal/gateway"
	"github.com/ashureev/smartstar/internal/identity"
	"github.com/ashureev/smartstar/internal/live"
	"github.com/ashureev/smartstar/internal/middleware"
	"github.com/ashureev/smartstar/internal/store"
	"github.com/ashureev/smartstar/web"
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

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "backend", cfg.BackendURL)

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

	if cfg.Completion.Token == "" {
		slog.Warn("HF_TOKEN not set, completion requests will be unauthenticated")
	}

	// Backend calls carry no client timeout; a hung request resolves with the transport.
	gw := gateway.New(cfg.BackendURL, &http.Client{}, logger)
	ai := completion.NewClient(completion.Config{
		URL:         cfg.Completion.URL,
		Token:       cfg.Completion.Token,
		Model:       cfg.Completion.Model,
		MaxTokens:   cfg.Completion.MaxTokens,
		Temperature: cfg.Completion.Temperature,
		Timeout:     cfg.Completion.Timeout,
	}, logger)

	// Initialize services.
	hub := live.NewHub()
	reg := chat.NewRegistry(func(deviceID, userID string) *chat.Controller {
		return chat.NewController(userID, gw, ai, func(s chat.Snapshot) {
			hub.Broadcast(deviceID, s)
		}, logger.With("device_id", deviceID))
	})
	signOut := func(deviceID string) {
		reg.Remove(deviceID)
		hub.CloseDevice(deviceID)
	}

	// Initialize handlers.
	baseHandler := api.NewHandler(repo)
	healthHandler := api.NewHealthHandler(repo)
	authHandler := api.NewAuthHandler(baseHandler, gw, cfg.Guest, signOut)
	chatHandler := api.NewChatHandler(baseHandler, reg)
	wsHandler := live.NewHandler(hub, chatHandler.LiveSnapshot, cfg.FrontendURL, cfg.IsDevelopment())

	origins := middleware.Origins(cfg.FrontendURL)
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(origins))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	// Public routes.
	healthHandler.RegisterHealth(r)
	authHandler.RegisterRoutes(r)

	// Signed-in routes.
	chatHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/chat", wsHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Sends block on the completion provider, so there is no write timeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chat.StartIdleSweeper(ctx, reg, repo, chat.SweepConfig{
		ControllerTTL: cfg.IdleTTL,
		DeviceTTL:     cfg.DeviceTTL,
	}, hub.CloseDevice)

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
