// Smart Shopper Assistant - scripted plan-selection chatbot server.
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kltan/smartshopper/internal/api"
	"github.com/kltan/smartshopper/internal/bot"
	"github.com/kltan/smartshopper/internal/chatws"
	"github.com/kltan/smartshopper/internal/clarify"
	"github.com/kltan/smartshopper/internal/config"
	"github.com/kltan/smartshopper/internal/guardrails"
	"github.com/kltan/smartshopper/internal/identity"
	"github.com/kltan/smartshopper/internal/intent"
	"github.com/kltan/smartshopper/internal/middleware"
	"github.com/kltan/smartshopper/internal/openai"
	"github.com/kltan/smartshopper/internal/profile"
	"github.com/kltan/smartshopper/internal/recommend"
	"github.com/kltan/smartshopper/internal/search"
	"github.com/kltan/smartshopper/internal/session"
	"github.com/kltan/smartshopper/internal/store"
	"github.com/kltan/smartshopper/web"
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

	// Collaborator clients.
	llm := openai.New(cfg.OpenAI)
	searcher := search.New(cfg.OpenSearch)

	// Conversation components.
	guard := guardrails.New(llm)
	resolver := intent.NewResolver(llm, llm, searcher, cfg.IntentThreshold)
	extractor := profile.NewExtractor(llm)
	sequencer := clarify.NewSequencer(searcher)

	engine, err := recommend.NewEngine(cfg.OfferMatrixPath, searcher)
	if err != nil {
		slog.Error("Failed to load offer matrix", "error", err, "path", cfg.OfferMatrixPath)
		os.Exit(1)
	}
	defer func() {
		if closeErr := engine.Close(); closeErr != nil {
			slog.Error("Failed to close offer matrix watcher", "error", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := engine.Watch(ctx); err != nil {
		slog.Warn("Offer matrix hot reload disabled", "error", err)
	}
	slog.Info("Offer matrix loaded", "path", cfg.OfferMatrixPath)

	summarizer := recommend.NewSummarizer(llm)
	sessions := session.NewMemoryStore()

	driver := bot.NewEngine(guard, resolver, extractor, sequencer, engine, summarizer, sessions, repo)

	chatHandler := api.NewHandler(driver, sessions, repo, cfg.RatePerMinute)
	healthHandler := api.NewHealthHandler(repo)
	wsHandler := chatws.NewHandler(driver, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	healthHandler.RegisterHealth(r)
	chatHandler.RegisterRoutes(r)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws/chat", wsHandler.ServeHTTP)

	// Serve embedded chat widget (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // no timeout: websocket connections stay open
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

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
