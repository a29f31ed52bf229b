package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/yourorg/tradesim/internal/auth"
	"github.com/yourorg/tradesim/internal/cache"
	"github.com/yourorg/tradesim/internal/execution"
	"github.com/yourorg/tradesim/internal/gateway"
	"github.com/yourorg/tradesim/internal/history"
	"github.com/yourorg/tradesim/internal/ingestion"
	"github.com/yourorg/tradesim/internal/marketdata"
	"github.com/yourorg/tradesim/internal/ratelimit"
	pgRepo "github.com/yourorg/tradesim/internal/repository/postgres"
	"github.com/yourorg/tradesim/internal/summary"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	dbURL := os.Getenv("DATABASE_URL")
	redisURL := os.Getenv("REDIS_URL")
	quoteAPIURL := os.Getenv("QUOTE_API_URL")
	feedWSURL := os.Getenv("FEED_WS_URL")
	feedKey := os.Getenv("FEED_API_KEY")
	feedSecret := os.Getenv("FEED_API_SECRET")
	jwtSecret := os.Getenv("JWT_SECRET")
	corsOrigin := os.Getenv("CORS_ORIGIN")
	if corsOrigin == "" {
		corsOrigin = "http://localhost:5174"
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	symbols := strings.Split(os.Getenv("FEED_SYMBOLS"), ",")
	if len(symbols) == 1 && symbols[0] == "" {
		symbols = []string{"AAPL", "TSLA", "MSFT", "NVDA", "SPY"}
	}

	db, err := pgRepo.Connect(dbURL)
	if err != nil {
		logger.Error("failed to connect to database", "err", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	if err := pgRepo.RunMigrations(dbURL, "migrations"); err != nil {
		logger.Error("failed to run migrations", "err", err)
		os.Exit(1)
	}
	logger.Info("migrations applied")

	store := pgRepo.NewStore(db)

	redisClient, err := cache.Connect(redisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "err", err)
		os.Exit(1)
	}
	logger.Info("redis connected")

	// The summary cache backend is picked once here; everything downstream
	// sees only the Cache interface.
	var summaryCache cache.Cache = cache.NewRedis(redisClient)
	if os.Getenv("SUMMARY_CACHE") == "memory" {
		summaryCache = cache.NewMemory()
	}

	ticks := marketdata.NewTickStore(redisClient)
	provider := marketdata.NewHTTPProvider(quoteAPIURL)
	quotes := marketdata.NewGateway(provider, ticks, logger)

	limiter := ratelimit.New(ratelimit.DefaultMaxOrders, ratelimit.DefaultWindow)
	engine := history.NewEngine(store, quotes, logger)
	summarySvc := summary.NewService(store, engine, summaryCache, logger)
	executor := execution.NewExecutor(store, quotes, limiter, summarySvc, logger)

	jwtSvc := auth.NewJWTService(jwtSecret)
	hub := gateway.NewHub(ticks, logger)
	feed := ingestion.NewFeed(feedWSURL, feedKey, feedSecret, symbols, ticks, logger)

	handlers := gateway.NewHandlers(store, store, quotes, executor, engine, summarySvc, jwtSvc, logger)
	router := gateway.NewRouter(handlers, hub, jwtSvc, corsOrigin)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go hub.Run(ctx)
	if feedWSURL != "" {
		go feed.Run(ctx)
	}

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
	logger.Info("server stopped")
}
