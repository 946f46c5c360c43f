// Package trendyol talks to the marketplace HTTP APIs: the authenticated
// supplier gateway and the public discovery widget endpoints.
package trendyol

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/CRTYPUBG/trendcord/internal/fetch"
	"github.com/CRTYPUBG/trendcord/internal/models"
	"github.com/CRTYPUBG/trendcord/internal/price"
)

var (
	ErrNotConfigured = errors.New("trendyol: supplier API credentials not configured")
	ErrNotFound      = errors.New("trendyol: product not found")
	ErrBadResponse   = errors.New("trendyol: unexpected API response")
)

const (
	defaultBaseURL       = "https://api.trendyol.com"
	defaultPublicBaseURL = "https://public-mdc.trendyol.com"

	searchWidgetPath  = "/discovery-web-searchwidget-santral/api/v1/product/%s"
	detailWidgetPath  = "/discovery-web-productdetailwidget-santral/api/v1/product-detail/%s"
	supplierProductFn = "/sapigw/suppliers/%s/products/%s"
)

type Config struct {
	APIKey        string
	APISecret     string
	SupplierID    string
	BaseURL       string
	PublicBaseURL string
}

// Fetcher is the HTTP surface the client needs. *fetch.Client satisfies it.
type Fetcher interface {
	Get(ctx context.Context, rawURL string, opts *fetch.RequestOptions) (*fetch.Response, error)
}

type Client struct {
	cfg     Config
	fetcher Fetcher
	logger  *slog.Logger
	now     func() time.Time
}

func NewClient(cfg Config, fetcher Fetcher, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = defaultPublicBaseURL
	}
	return &Client{
		cfg:     cfg,
		fetcher: fetcher,
		logger:  logger.With("component", "trendyol_api"),
		now:     time.Now,
	}
}

// Configured reports whether the supplier gateway credentials are all set.
func (c *Client) Configured() bool {
	return c.cfg.APIKey != "" && c.cfg.APISecret != "" && c.cfg.SupplierID != ""
}

// SupplierProduct fetches a product through the authenticated supplier
// gateway. Returns ErrNotConfigured when credentials are missing.
func (c *Client) SupplierProduct(ctx context.Context, productID, productURL string) (*models.ProductSnapshot, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	path := fmt.Sprintf(supplierProductFn, c.cfg.SupplierID, productID)
	timestamp := strconv.FormatInt(c.now().UnixMilli(), 10)

	headers := map[string]string{
		"Authorization":        "Basic " + basicAuth(c.cfg.APIKey, c.cfg.APISecret),
		"X-Trendyol-Timestamp": timestamp,
		"X-Trendyol-Signature": c.sign("GET", path, timestamp),
		"Accept":               "application/json",
	}

	body, err := c.getJSON(ctx, c.cfg.BaseURL+path, headers)
	if err != nil {
		return nil, err
	}
	return c.buildSnapshot(body, productID, productURL, models.SourceSupplierAPI)
}

// SearchProduct fetches a product from the public search widget.
func (c *Client) SearchProduct(ctx context.Context, productID, productURL string) (*models.ProductSnapshot, error) {
	url := c.cfg.PublicBaseURL + fmt.Sprintf(searchWidgetPath, productID)
	body, err := c.getJSON(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return c.buildSnapshot(body, productID, productURL, models.SourceSearchAPI)
}

// PublicProduct fetches a product from the public detail widget.
func (c *Client) PublicProduct(ctx context.Context, productID, productURL string) (*models.ProductSnapshot, error) {
	url := c.cfg.PublicBaseURL + fmt.Sprintf(detailWidgetPath, productID)
	body, err := c.getJSON(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return c.buildSnapshot(body, productID, productURL, models.SourcePublicAPI)
}

func (c *Client) getJSON(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	resp, err := c.fetcher.Get(ctx, url, &fetch.RequestOptions{Headers: headers})
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == 404:
		return nil, ErrNotFound
	case resp.StatusCode != 200:
		return nil, fmt.Errorf("%w: status %d", ErrBadResponse, resp.StatusCode)
	}
	return resp.Body, nil
}

// sign produces the request signature: HMAC-SHA256 over
// "METHOD\npath\ntimestamp", base64 encoded.
func (c *Client) sign(method, path, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.APISecret))
	fmt.Fprintf(mac, "%s\n%s\n%s", method, path, timestamp)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func basicAuth(key, secret string) string {
	return base64.StdEncoding.EncodeToString([]byte(key + ":" + secret))
}

func (c *Client) buildSnapshot(body []byte, productID, productURL string, source models.Source) (*models.ProductSnapshot, error) {
	payload, err := decodeProduct(body)
	if err != nil {
		return nil, err
	}

	snap := models.NewSnapshot(productID, productURL)
	snap.Source = source
	snap.Name = payload.name()
	snap.ImageURL = payload.imageURL()
	snap.CurrentPrice, snap.OriginalPrice = payload.prices()
	snap.Availability = payload.availability(source)
	snap.Success = snap.Name != "" && snap.CurrentPrice != nil

	if !snap.Success {
		c.logger.Debug("incomplete API payload",
			"source", source, "product_id", productID,
			"has_name", snap.Name != "", "has_price", snap.CurrentPrice != nil)
	}
	return snap, nil
}

// productPayload is the loosely typed product object after the response
// envelope has been unwrapped. The three APIs disagree on both envelope
// and field names, so everything is optional here.
type productPayload map[string]any

// decodeProduct unwraps the response envelope. The product object may sit
// under "result", "product", "data", or be the body itself.
func decodeProduct(body []byte) (productPayload, error) {
	var root map[string]any
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	for _, key := range []string{"result", "product", "data"} {
		if inner, ok := root[key].(map[string]any); ok {
			return productPayload(inner), nil
		}
	}
	return productPayload(root), nil
}

func (p productPayload) name() string {
	for _, key := range []string{"name", "title", "productName"} {
		if s, ok := p[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func (p productPayload) prices() (current, original *float64) {
	if priceObj, ok := p["price"].(map[string]any); ok {
		current = validNumber(priceObj["discountedPrice"])
		if current == nil {
			current = validNumber(priceObj["sellingPrice"])
		}
		original = validNumber(priceObj["originalPrice"])
	}
	if current == nil {
		for _, key := range []string{"salePrice", "currentPrice", "price"} {
			if current = validNumber(p[key]); current != nil {
				break
			}
		}
	}
	if original == nil {
		for _, key := range []string{"listPrice", "originalPrice"} {
			if original = validNumber(p[key]); original != nil {
				break
			}
		}
	}
	if original == nil {
		original = current
	}
	return current, original
}

func (p productPayload) imageURL() string {
	var raw string
	switch images := p["images"].(type) {
	case []any:
		if len(images) > 0 {
			switch img := images[0].(type) {
			case string:
				raw = img
			case map[string]any:
				raw, _ = img["url"].(string)
			}
		}
	case string:
		raw = images
	}
	if raw == "" {
		raw, _ = p["imageUrl"].(string)
	}
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	return raw
}

// availability derives stock state from the supplier quantity field. The
// public widgets do not expose stock, so those sources report unknown.
func (p productPayload) availability(source models.Source) models.Availability {
	if source != models.SourceSupplierAPI {
		return models.AvailabilityUnknown
	}
	quantity, ok := p["quantity"].(float64)
	if !ok {
		return models.AvailabilityUnknown
	}
	if quantity > 0 {
		return models.AvailabilityInStock
	}
	return models.AvailabilitySoldOut
}

func validNumber(v any) *float64 {
	var value float64
	switch n := v.(type) {
	case float64:
		value = n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil
		}
		value = parsed
	default:
		return nil
	}
	if price.Validate(value) != nil {
		return nil
	}
	return &value
}
