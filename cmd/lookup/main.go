// Command lookup runs a single product lookup and prints the snapshot as
// JSON. Useful for trying out references without the full service.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/CRTYPUBG/trendcord/internal/config"
	"github.com/CRTYPUBG/trendcord/internal/engine"
	"github.com/CRTYPUBG/trendcord/internal/extract"
	"github.com/CRTYPUBG/trendcord/internal/fetch"
	"github.com/CRTYPUBG/trendcord/internal/resolver"
	"github.com/CRTYPUBG/trendcord/internal/trendyol"
)

func main() {
	timeout := flag.Duration("timeout", 2*time.Minute, "overall lookup timeout")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: lookup [-v] [-timeout 2m] <product id or url>")
		os.Exit(2)
	}
	reference := flag.Arg(0)

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	registry := fetch.NewProxyRegistry(fetch.DefaultProxyCooldown)
	if cfg.Scraper.UseProxy {
		if count, err := registry.LoadFile(cfg.Scraper.ProxyFile); err == nil {
			logger.Info("proxy pool loaded", "proxies", count)
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

	eng := engine.New(res, apiClient, fetchClient, extract.NewExtractor(logger), cfg.Scraper.UseProxy, logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	snap := eng.GetProductInfo(ctx, reference)

	out, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode snapshot: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))

	if !snap.Success {
		os.Exit(1)
	}
}
