package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/CRTYPUBG/trendcord/internal/alert"
	"github.com/CRTYPUBG/trendcord/internal/api"
	"github.com/CRTYPUBG/trendcord/internal/checker"
	"github.com/CRTYPUBG/trendcord/internal/config"
	"github.com/CRTYPUBG/trendcord/internal/database"
	"github.com/CRTYPUBG/trendcord/internal/engine"
	"github.com/CRTYPUBG/trendcord/internal/extract"
	"github.com/CRTYPUBG/trendcord/internal/fetch"
	"github.com/CRTYPUBG/trendcord/internal/monitor"
	"github.com/CRTYPUBG/trendcord/internal/resolver"
	"github.com/CRTYPUBG/trendcord/internal/trendyol"
)

func main() {
	// Optional .env for local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Proxy pool is optional; a missing file just means direct requests.
	registry := fetch.NewProxyRegistry(fetch.DefaultProxyCooldown)
	if cfg.Scraper.UseProxy {
		count, err := registry.LoadFile(cfg.Scraper.ProxyFile)
		if err != nil {
			logger.Warn("proxy file not loaded", "file", cfg.Scraper.ProxyFile, "error", err)
		} else {
			logger.Info("proxy pool loaded", "file", cfg.Scraper.ProxyFile, "proxies", count)
		}
	}

	fetchClient := fetch.NewClient(fetch.Config{
		Timeout:       cfg.Scraper.Timeout,
		MaxRetries:    cfg.Scraper.MaxRetries,
		RetryDelay:    cfg.Scraper.RetryDelay,
		BackoffFactor: float64(cfg.Scraper.BackoffFactor),
		MinDelay:      cfg.Scraper.MinDelay,
		MaxDelay:      cfg.Scraper.MaxDelay,
		VerifySSL:     cfg.Scraper.VerifySSL,
		UserAgent:     cfg.Scraper.UserAgent,
	}, registry, logger)

	res := resolver.New(fetchClient, cfg.Scraper.Domains, cfg.Scraper.ShortDomains, logger)
	apiClient := trendyol.NewClient(trendyol.Config{
		APIKey:        cfg.API.Key,
		APISecret:     cfg.API.Secret,
		SupplierID:    cfg.API.SupplierID,
		BaseURL:       cfg.API.BaseURL,
		PublicBaseURL: cfg.API.PublicURL,
	}, fetchClient, logger)
	extractor := extract.NewExtractor(logger)
	eng := engine.New(res, apiClient, fetchClient, extractor, cfg.Scraper.UseProxy, logger)

	db, err := database.New(ctx, database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.DBName,
		MaxConns:    int32(cfg.Database.MaxConns),
		MinConns:    1,
		MaxConnLife: time.Hour,
		MaxConnIdle: 30 * time.Minute,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	relay := database.NewRelay(db, redisClient, logger, database.RelayConfig{
		PollInterval: 5 * time.Second,
		BatchSize:    100,
	})
	go func() {
		if err := relay.Start(ctx); err != nil && err != context.Canceled {
			logger.Error("relay stopped with error", "error", err)
		}
	}()

	if cfg.Checker.Enabled {
		check := checker.New(db, eng, logger)
		check.SetInterval(cfg.Checker.Interval)
		check.SetProductDelay(cfg.Checker.ProductDelay)
		go check.Start(ctx)
	}

	var mon *monitor.Monitor
	if cfg.Monitor.Enabled {
		sink := alert.NewStreamSink(redisClient, cfg.Monitor.AlertStream, logger)
		mon = monitor.New(fetchClient, monitor.NewFileStore(cfg.Monitor.SnapshotFile), sink, logger)
		mon.SetProbeURLs(cfg.Monitor.ProbeURLs)
		mon.SetInterval(cfg.Monitor.Interval)
		go mon.Start(ctx)
	} else {
		// API consumers still get snapshot/check endpoints, just unscheduled.
		sink := alert.NewLogSink(logger)
		mon = monitor.New(fetchClient, monitor.NewFileStore(cfg.Monitor.SnapshotFile), sink, logger)
		mon.SetProbeURLs(cfg.Monitor.ProbeURLs)
	}

	handlers := api.NewHandlers(eng, db, mon, relay, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handlers),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
