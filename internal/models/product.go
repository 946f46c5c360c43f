package models

import (
	"time"
)

// Availability describes the stock state observed for a product.
type Availability string

const (
	AvailabilityInStock Availability = "in_stock"
	AvailabilitySoldOut Availability = "sold_out"
	AvailabilityUnknown Availability = "unknown"
)

// Source identifies which data tier produced a snapshot.
type Source string

const (
	SourceSupplierAPI Source = "supplier_api"
	SourceSearchAPI   Source = "search_api"
	SourcePublicAPI   Source = "public_api"
	SourceScraping    Source = "scraping"
)

// ProductReference is a normalized user-supplied product reference.
// Created per lookup, never mutated.
type ProductReference struct {
	Raw          string `json:"raw"`
	ProductID    string `json:"product_id"`
	CanonicalURL string `json:"canonical_url"`
}

// ProductSnapshot is the result of a single product lookup.
// When Success is true, Name and CurrentPrice are always set.
type ProductSnapshot struct {
	ProductID     string       `json:"product_id"`
	Name          string       `json:"name,omitempty"`
	URL           string       `json:"url"`
	ImageURL      string       `json:"image_url,omitempty"`
	CurrentPrice  *float64     `json:"current_price,omitempty"`
	OriginalPrice *float64     `json:"original_price,omitempty"`
	Availability  Availability `json:"availability"`
	Source        Source       `json:"source,omitempty"`
	Success       bool         `json:"success"`
	Error         string       `json:"error,omitempty"`
	ScrapedAt     time.Time    `json:"scraped_at"`
}

func NewSnapshot(productID, url string) *ProductSnapshot {
	return &ProductSnapshot{
		ProductID:    productID,
		URL:          url,
		Availability: AvailabilityUnknown,
		ScrapedAt:    time.Now(),
	}
}

func FloatPtr(v float64) *float64 {
	return &v
}
