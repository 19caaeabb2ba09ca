package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pageinsights/pageinsights-backend/internal/api"
	"github.com/pageinsights/pageinsights-backend/internal/config"
	"github.com/pageinsights/pageinsights-backend/internal/db"
	"github.com/pageinsights/pageinsights-backend/internal/log"
	"github.com/pageinsights/pageinsights-backend/internal/metrics"
	"github.com/pageinsights/pageinsights-backend/internal/scrape"
	"github.com/pageinsights/pageinsights-backend/internal/service"
	"github.com/pageinsights/pageinsights-backend/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := log.NewSugar(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infow("Starting Page Insights API server",
		"env", cfg.Env,
		"addr", cfg.HTTPAddr,
		"db_backend", cfg.Database.Backend,
		"cache_backend", cfg.Cache.Backend,
	)

	// Setup metrics
	metricsObj, metricsHandler, err := metrics.Setup("pageinsights-api")
	if err != nil {
		logger.Fatalw("Failed to setup metrics", "error", err)
	}

	// Storage
	dbStore, err := db.NewStore(db.Config{
		Backend: cfg.Database.Backend,
		DSN:     cfg.Database.PostgresDSN,
	}, logger)
	if err != nil {
		logger.Fatalw("Failed to create store", "error", err)
	}
	defer dbStore.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := dbStore.Ping(ctx); err != nil {
		logger.Fatalw("Store ping failed", "error", err)
	}
	logger.Infow("Store initialized")

	// Cache. An unreachable backend degrades instead of failing startup.
	cache := store.NewCache(cfg.Cache, logger, metricsObj)
	defer cache.Close()
	if cache.Enabled() {
		logger.Infow("Cache connection established", "ttl", cache.DefaultTTL())
	}

	// Scraping and services
	fetcher := scrape.NewHTTPFetcher(cfg.Scraper.ServiceURL)
	guard := scrape.NewGuard(fetcher, cfg.Scraper, logger, metricsObj)

	ingestor := service.NewIngestor(guard, dbStore, cache, logger, metricsObj)
	pageSvc := service.NewPageService(dbStore, cache, ingestor, cfg.Scraper.ScrapeOnMiss, logger)
	insightSvc := service.NewInsightService(dbStore, cache, nil, logger)

	// Setup API handler and middleware
	handler := api.NewHandler(pageSvc, insightSvc, ingestor, dbStore, cache, logger)
	middleware := api.NewMiddleware(logger, metricsObj)

	router := handler.Routes(middleware, cfg.Security.CORSAllowedOrigins, cfg.Security.RateLimitRPM, metricsHandler)
	logger.Infow("CORS configured", "allowed_origins", cfg.Security.CORSAllowedOrigins)

	// Setup HTTP server
	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 150 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		logger.Infow("API server starting", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for interrupt signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatalw("Server startup failed", "error", err)
	case sig := <-shutdown:
		logger.Infow("Shutdown signal received", "signal", sig.String())

		// Give outstanding requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Errorw("Graceful shutdown failed", "error", err)
			server.Close()
		}

		logger.Infow("Server stopped")
	}
}
