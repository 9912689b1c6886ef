package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"animalitos-analytics/internal/analysis"
	"animalitos-analytics/internal/api"
	"animalitos-analytics/internal/cache"
	"animalitos-analytics/internal/catalog"
	"animalitos-analytics/internal/config"
	"animalitos-analytics/internal/database"
	"animalitos-analytics/internal/logging"
	"animalitos-analytics/internal/middleware"
	"animalitos-analytics/internal/oracle"
	"animalitos-analytics/internal/scraper"
	"animalitos-analytics/internal/services"
	"animalitos-analytics/internal/storage"
)

func main() {
	// Local .env files are optional.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.Environment)

	redis, err := database.NewRedisConnection(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()

	cat := catalog.New()
	resolver := catalog.NewResolver(cat)

	store := storage.NewRedisStore(redis.Client)
	historyStore := storage.NewHistoryStore(store, logger)

	todayCache := cache.NewTodayCache(store, logger, config.Duration(cfg.Scraper.TodayCacheTTL, 3*time.Minute))
	scoreCache := cache.NewScoreCache(store, logger, config.Duration(cfg.Scoring.ScoreCacheTTL, 10*time.Minute))

	fetchClient := scraper.NewFetchClient(
		cfg.Scraper.Proxies,
		config.Duration(cfg.Scraper.FetchTimeout, 15*time.Second),
		cfg.Scraper.MaxRetries,
		logger,
	)
	parsers := []scraper.PageParser{
		scraper.NewResultsParser("default", cat, cfg.Scraper.ProximityChars),
	}
	extractor := scraper.NewExtractor(fetchClient, parsers, resolver, todayCache, cfg.Scraper, logger)

	analyzer := analysis.NewAnalyzer(cat)
	scorer := analysis.NewScorer(cat)

	var predictor oracle.SupplementaryPredictor
	if o := oracle.NewHTTPOracle(cfg.Oracle.URL, config.Duration(cfg.Oracle.Timeout, 30*time.Second), resolver, logger); o != nil {
		predictor = o
	}

	pipeline := services.NewPipeline(extractor, historyStore, analyzer, scorer, resolver, scoreCache, predictor, cfg, logger)

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))

	api.SetupRoutes(router, redis, pipeline)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %d", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}
