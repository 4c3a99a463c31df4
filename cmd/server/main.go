package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tidalarr/tidalarr/internal/auth"
	"github.com/tidalarr/tidalarr/internal/config"
	"github.com/tidalarr/tidalarr/internal/constants"
	"github.com/tidalarr/tidalarr/internal/handlers"
	"github.com/tidalarr/tidalarr/internal/httpclient"
	"github.com/tidalarr/tidalarr/internal/lidarr"
	"github.com/tidalarr/tidalarr/internal/logger"
	"github.com/tidalarr/tidalarr/internal/poller"
	"github.com/tidalarr/tidalarr/internal/queue"
	"github.com/tidalarr/tidalarr/internal/storage"
	"github.com/tidalarr/tidalarr/internal/store"
	"github.com/tidalarr/tidalarr/internal/tidal"
)

func main() {
	cfg := config.Load()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Initialize Logger
	appLogger := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	// Initialize DB
	db, err := store.NewSQLiteDB(cfg.DBPath)
	if err != nil {
		appLogger.Error("Failed to init DB", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Shared rate-limited HTTP client for the provider and auth endpoints
	apiClient := httpclient.NewClient(nil, constants.DefaultRequestRate)

	// Initialize Session Manager
	tokenStore := auth.NewStore(cfg.TokenPath)
	session := auth.NewSession(cfg, tokenStore, apiClient, appLogger)

	// Initialize Provider and File Sink
	provider := tidal.NewClient(cfg, session, apiClient, appLogger)
	sink := storage.NewSink(cfg.DownloadsDir, appLogger)

	// Initialize Queue Engine
	engine := queue.NewEngine(provider, sink, session, db, appLogger)
	engine.Start()
	defer engine.Stop()

	// Initialize Poller (no-op when Lidarr is not configured)
	lidarrClient := lidarr.NewClient(cfg, httpclient.NewClient(nil, constants.DefaultRequestRate), appLogger)
	p := poller.New(cfg, provider, engine, lidarrClient, db, sink, appLogger)
	p.Start()
	defer p.Stop()

	// Initialize Router
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Routes
	h := handlers.NewHandler(engine, db, appLogger)
	h.RegisterRoutes(r)

	// Start Server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Printf("Server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Log and fall through so the deferred engine, poller, and DB teardown
	// still run.
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting")
}
