// Package engine coordinates product lookups. Each lookup walks a chain
// of acquisition tiers from the most reliable source to the least and
// returns the first usable snapshot.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/CRTYPUBG/trendcord/internal/extract"
	"github.com/CRTYPUBG/trendcord/internal/fetch"
	"github.com/CRTYPUBG/trendcord/internal/models"
)

var (
	ErrAllStagesFailed = errors.New("engine: all acquisition stages failed")
)

// Resolver turns raw user input into a product reference.
type Resolver interface {
	Resolve(ctx context.Context, input string) (*models.ProductReference, error)
	IsValidReference(input string) bool
}

// ProductAPI is the marketplace API surface the engine falls through.
// *trendyol.Client satisfies it.
type ProductAPI interface {
	Configured() bool
	SupplierProduct(ctx context.Context, productID, productURL string) (*models.ProductSnapshot, error)
	SearchProduct(ctx context.Context, productID, productURL string) (*models.ProductSnapshot, error)
	PublicProduct(ctx context.Context, productID, productURL string) (*models.ProductSnapshot, error)
}

// Fetcher retrieves product pages for the scraping stage.
type Fetcher interface {
	Get(ctx context.Context, rawURL string, opts *fetch.RequestOptions) (*fetch.Response, error)
}

type Engine struct {
	resolver  Resolver
	api       ProductAPI
	fetcher   Fetcher
	extractor *extract.Extractor
	useProxy  bool
	logger    *slog.Logger
}

func New(resolver Resolver, api ProductAPI, fetcher Fetcher, extractor *extract.Extractor, useProxy bool, logger *slog.Logger) *Engine {
	return &Engine{
		resolver:  resolver,
		api:       api,
		fetcher:   fetcher,
		extractor: extractor,
		useProxy:  useProxy,
		logger:    logger.With("component", "engine"),
	}
}

// Resolve exposes reference resolution without running a lookup.
func (e *Engine) Resolve(ctx context.Context, input string) (*models.ProductReference, error) {
	return e.resolver.Resolve(ctx, input)
}

type stage struct {
	name string
	run  func(ctx context.Context, ref *models.ProductReference) (*models.ProductSnapshot, error)
}

// GetProductInfo resolves the reference and walks the acquisition chain:
// supplier API, search widget, public widget, then page scraping. The
// first stage that yields a usable snapshot wins. A definitive sold-out
// answer is terminal even without a price.
func (e *Engine) GetProductInfo(ctx context.Context, input string) *models.ProductSnapshot {
	ref, err := e.resolver.Resolve(ctx, input)
	if err != nil {
		snap := models.NewSnapshot("", input)
		snap.Error = err.Error()
		return snap
	}

	stages := []stage{
		{name: "search_api", run: e.searchStage},
		{name: "public_api", run: e.publicStage},
		{name: "scrape", run: e.scrape},
	}
	if e.api.Configured() {
		stages = append([]stage{{name: "supplier_api", run: e.supplierStage}}, stages...)
	}

	var lastErr error
	for _, s := range stages {
		snap, err := s.run(ctx, ref)
		if err != nil {
			e.logger.Warn("acquisition stage failed",
				"stage", s.name, "product_id", ref.ProductID, "error", err)
			lastErr = err
			continue
		}
		if snap.Success || snap.Availability == models.AvailabilitySoldOut {
			e.logger.Info("product acquired",
				"stage", s.name, "product_id", ref.ProductID, "success", snap.Success)
			return snap
		}
		e.logger.Debug("stage returned incomplete snapshot", "stage", s.name, "product_id", ref.ProductID)
	}

	snap := models.NewSnapshot(ref.ProductID, ref.CanonicalURL)
	if lastErr != nil {
		snap.Error = fmt.Errorf("%w: %w", ErrAllStagesFailed, lastErr).Error()
	} else {
		snap.Error = ErrAllStagesFailed.Error()
	}
	return snap
}

func (e *Engine) scrape(ctx context.Context, ref *models.ProductReference) (*models.ProductSnapshot, error) {
	resp, err := e.fetcher.Get(ctx, ref.CanonicalURL, &fetch.RequestOptions{UseProxy: e.useProxy})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("engine: scrape got status %d", resp.StatusCode)
	}

	result, err := e.extractor.Extract(string(resp.Body))
	if err != nil {
		return nil, err
	}

	snap := models.NewSnapshot(ref.ProductID, resp.FinalURL)
	snap.Source = models.SourceScraping
	snap.Name = result.Name
	snap.CurrentPrice = result.CurrentPrice
	snap.OriginalPrice = result.OriginalPrice
	snap.ImageURL = result.ImageURL
	snap.Availability = result.Availability
	snap.Success = snap.Name != "" && snap.CurrentPrice != nil
	return snap, nil
}

func (e *Engine) supplierStage(ctx context.Context, ref *models.ProductReference) (*models.ProductSnapshot, error) {
	return e.api.SupplierProduct(ctx, ref.ProductID, ref.CanonicalURL)
}

func (e *Engine) searchStage(ctx context.Context, ref *models.ProductReference) (*models.ProductSnapshot, error) {
	return e.api.SearchProduct(ctx, ref.ProductID, ref.CanonicalURL)
}

func (e *Engine) publicStage(ctx context.Context, ref *models.ProductReference) (*models.ProductSnapshot, error) {
	return e.api.PublicProduct(ctx, ref.ProductID, ref.CanonicalURL)
}
