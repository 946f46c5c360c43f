// Package checker periodically re-acquires every tracked product and
// records what changed.
package checker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/CRTYPUBG/trendcord/internal/database"
	"github.com/CRTYPUBG/trendcord/internal/models"
)

const (
	// DefaultInterval is how often a full check cycle runs.
	DefaultInterval = time.Hour
	// DefaultProductDelay spaces out lookups so a long product list does
	// not hammer the upstream site.
	DefaultProductDelay = time.Second
)

// Lookup acquires the current state of a product. *engine.Engine
// satisfies it.
type Lookup interface {
	GetProductInfo(ctx context.Context, input string) *models.ProductSnapshot
}

// Store is the persistence surface the checker needs.
type Store interface {
	ListTrackedProducts(ctx context.Context) ([]*database.TrackedProduct, error)
	RecordObservation(ctx context.Context, snap *models.ProductSnapshot, event *database.OutboxEvent) error
}

type Checker struct {
	store        Store
	lookup       Lookup
	logger       *slog.Logger
	interval     time.Duration
	productDelay time.Duration
}

func New(store Store, lookup Lookup, logger *slog.Logger) *Checker {
	return &Checker{
		store:        store,
		lookup:       lookup,
		logger:       logger.With("component", "checker"),
		interval:     DefaultInterval,
		productDelay: DefaultProductDelay,
	}
}

// SetInterval overrides the cycle interval.
func (c *Checker) SetInterval(d time.Duration) {
	if d > 0 {
		c.interval = d
	}
}

// SetProductDelay overrides the pause between product lookups.
func (c *Checker) SetProductDelay(d time.Duration) {
	if d >= 0 {
		c.productDelay = d
	}
}

// Start runs check cycles until the context is cancelled.
func (c *Checker) Start(ctx context.Context) {
	c.logger.Info("price checker started", "interval", c.interval)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("price checker stopped")
			return
		case <-ticker.C:
			if err := c.RunOnce(ctx); err != nil {
				c.logger.Error("check cycle failed", "error", err)
			}
		}
	}
}

// RunOnce checks every tracked product sequentially and persists each
// observation. Individual product failures are logged and skipped.
func (c *Checker) RunOnce(ctx context.Context) error {
	runID := uuid.New().String()
	logger := c.logger.With("run_id", runID)

	products, err := c.store.ListTrackedProducts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tracked products: %w", err)
	}
	if len(products) == 0 {
		logger.Debug("no tracked products")
		return nil
	}

	logger.Info("check cycle started", "products", len(products))
	checked, changed := 0, 0

	for i, product := range products {
		if i > 0 && c.productDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.productDelay):
			}
		}

		snap := c.lookup.GetProductInfo(ctx, product.ProductID)
		if !snap.Success && snap.Availability != models.AvailabilitySoldOut {
			logger.Warn("product check failed",
				"product_id", product.ProductID, "error", snap.Error)
			continue
		}

		event, err := buildEvent(product, snap)
		if err != nil {
			logger.Error("failed to build event", "product_id", product.ProductID, "error", err)
			continue
		}

		if err := c.store.RecordObservation(ctx, snap, event); err != nil {
			logger.Error("failed to record observation",
				"product_id", product.ProductID, "error", err)
			continue
		}

		checked++
		if event != nil {
			changed++
			logger.Info("product state changed",
				"product_id", product.ProductID, "event_type", event.EventType)
		}
	}

	logger.Info("check cycle finished", "checked", checked, "changed", changed)
	return nil
}

// buildEvent compares the stored state with a fresh snapshot and returns
// the outbox event to publish, or nil when nothing noteworthy changed.
func buildEvent(old *database.TrackedProduct, snap *models.ProductSnapshot) (*database.OutboxEvent, error) {
	eventType := classify(old, snap)
	if eventType == "" {
		return nil, nil
	}

	var oldPrice, newPrice float64
	if old.CurrentPrice != nil {
		oldPrice = *old.CurrentPrice
	}
	if snap.CurrentPrice != nil {
		newPrice = *snap.CurrentPrice
	}

	payload, err := json.Marshal(database.PriceChangeEvent{
		ProductID:    snap.ProductID,
		Name:         pickName(old, snap),
		URL:          snap.URL,
		OldPrice:     oldPrice,
		NewPrice:     newPrice,
		Availability: string(snap.Availability),
		Source:       string(snap.Source),
		ObservedAt:   snap.ScrapedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	return &database.OutboxEvent{
		AggregateType: "tracked_product",
		AggregateID:   snap.ProductID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}

// classify maps an old/new state pair to an event type, or "" for no event.
func classify(old *database.TrackedProduct, snap *models.ProductSnapshot) string {
	if snap.Availability == models.AvailabilitySoldOut &&
		old.Availability != models.AvailabilitySoldOut {
		return database.EventProductSoldOut
	}

	if old.CurrentPrice == nil || snap.CurrentPrice == nil {
		return ""
	}
	switch {
	case *snap.CurrentPrice < *old.CurrentPrice:
		return database.EventPriceDropped
	case *snap.CurrentPrice > *old.CurrentPrice:
		return database.EventPriceChanged
	}
	return ""
}

func pickName(old *database.TrackedProduct, snap *models.ProductSnapshot) string {
	if snap.Name != "" {
		return snap.Name
	}
	return old.Name
}
