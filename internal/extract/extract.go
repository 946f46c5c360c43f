// Package extract pulls product fields out of a fetched HTML document.
// No single selector survives the upstream site's redesigns for long, so
// every field is backed by an ordered list of independent strategies and
// the first one that produces a valid value wins. Adding a strategy means
// appending to a list, not forking the extractor.
package extract

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/CRTYPUBG/trendcord/internal/models"
	"github.com/CRTYPUBG/trendcord/internal/price"
)

// Result holds the fields extracted from one product page.
type Result struct {
	Name          string
	CurrentPrice  *float64
	OriginalPrice *float64
	ImageURL      string
	Availability  models.Availability
}

// NameStrategy extracts a product name; empty string means no result.
type NameStrategy struct {
	Name    string
	Extract func(doc *goquery.Document) string
}

// PriceStrategy extracts the current and (optionally) original price.
// A nil current price means no result and the next strategy runs.
type PriceStrategy struct {
	Name    string
	Extract func(doc *goquery.Document) (current, original *float64)
}

// ImageStrategy extracts a product image URL; empty string means no result.
type ImageStrategy struct {
	Name    string
	Extract func(doc *goquery.Document) string
}

type Extractor struct {
	nameStrategies  []NameStrategy
	priceStrategies []PriceStrategy
	imageStrategies []ImageStrategy
	soldOutPhrases  []string
	logger          *slog.Logger
}

func NewExtractor(logger *slog.Logger) *Extractor {
	return &Extractor{
		nameStrategies: []NameStrategy{
			{Name: "primary_heading", Extract: nameFromPrimaryHeading},
			{Name: "first_heading", Extract: nameFromFirstHeading},
			{Name: "title_tag", Extract: nameFromTitle},
		},
		priceStrategies: []PriceStrategy{
			{Name: "price_container", Extract: priceFromContainer},
			{Name: "discounted_class", Extract: priceFromDiscountedClass},
			{Name: "campaign_price", Extract: priceFromCampaign},
			{Name: "json_ld", Extract: priceFromJSONLD},
			{Name: "script_scan", Extract: priceFromScripts},
			{Name: "text_scan", Extract: priceFromText},
		},
		imageStrategies: []ImageStrategy{
			{Name: "og_image", Extract: imageFromOpenGraph},
			{Name: "gallery", Extract: imageFromGallery},
			{Name: "legacy_slide", Extract: imageFromLegacySlide},
		},
		soldOutPhrases: []string{"tükendi", "stok yok", "mevcut değil", "satışta değil"},
		logger:         logger.With("component", "extract"),
	}
}

// AppendPriceStrategy registers an extra price strategy after the
// built-in waterfall.
func (e *Extractor) AppendPriceStrategy(s PriceStrategy) {
	e.priceStrategies = append(e.priceStrategies, s)
}

func (e *Extractor) Extract(html string) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	return e.ExtractDoc(doc), nil
}

func (e *Extractor) ExtractDoc(doc *goquery.Document) *Result {
	res := &Result{}

	for _, s := range e.nameStrategies {
		if name := s.Extract(doc); name != "" {
			res.Name = name
			e.logger.Debug("name extracted", "strategy", s.Name)
			break
		}
	}

	res.Availability = e.availability(doc)

	for _, s := range e.priceStrategies {
		current, original := s.Extract(doc)
		if current != nil {
			res.CurrentPrice = current
			res.OriginalPrice = original
			e.logger.Debug("price extracted", "strategy", s.Name, "price", *current)
			break
		}
	}
	// Without a discount signal the original price equals the current one.
	if res.OriginalPrice == nil {
		res.OriginalPrice = res.CurrentPrice
	}

	for _, s := range e.imageStrategies {
		if img := s.Extract(doc); img != "" {
			res.ImageURL = normalizeImageURL(img)
			break
		}
	}

	return res
}

// --- availability ---

func (e *Extractor) availability(doc *goquery.Document) models.Availability {
	if btn := doc.Find(`button[data-testid="add-to-cart-button"]`).First(); btn.Length() > 0 {
		text := strings.TrimSpace(btn.Text())
		if strings.Contains(text, "Sepete Ekle") {
			return models.AvailabilityInStock
		}
		if e.containsSoldOutPhrase(text) {
			return models.AvailabilitySoldOut
		}
	}

	if btn := doc.Find("button.buy-now-button").First(); btn.Length() > 0 {
		if strings.Contains(strings.TrimSpace(btn.Text()), "Şimdi Al") {
			return models.AvailabilityInStock
		}
	}

	soldOut := false
	doc.Find("button[disabled]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		if strings.Contains(class, "add-to-cart") || strings.Contains(class, "sepete-ekle") {
			soldOut = true
			return false
		}
		return true
	})
	if soldOut {
		return models.AvailabilitySoldOut
	}

	// Last resort: short stock-related text elements. The length cap and
	// script-indicator filter keep inline JS from producing false hits.
	doc.Find(`div[class*="stock"], span[class*="stock"], p[class*="stock"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.ToLower(strings.TrimSpace(s.Text()))
		if len(text) >= 100 {
			return true
		}
		if strings.Contains(text, "window") || strings.Contains(text, "function") || strings.Contains(text, "var ") {
			return true
		}
		if e.containsSoldOutPhrase(text) {
			soldOut = true
			return false
		}
		return true
	})
	if soldOut {
		return models.AvailabilitySoldOut
	}

	return models.AvailabilityInStock
}

func (e *Extractor) containsSoldOutPhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range e.soldOutPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// --- name strategies ---

var primaryHeadingSelectors = []string{
	`h1[data-testid="product-name"]`,
	"h1.pr-new-br span",
	"h1.pr-new-br",
}

func nameFromPrimaryHeading(doc *goquery.Document) string {
	for _, selector := range primaryHeadingSelectors {
		if text := strings.TrimSpace(doc.Find(selector).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func nameFromFirstHeading(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

func nameFromTitle(doc *goquery.Document) string {
	title := doc.Find("title").First().Text()
	if title == "" {
		return ""
	}
	return strings.TrimSpace(strings.SplitN(title, "-", 2)[0])
}

// --- price strategies ---

func priceFromContainer(doc *goquery.Document) (current, original *float64) {
	container := doc.Find(`div[data-testid="price"]`).First()
	if container.Length() == 0 {
		return nil, nil
	}

	current = parsePriceText(container.Find("span.price-view-discounted").First().Text())
	original = parsePriceText(container.Find("span.price-view-original").First().Text())

	// No discounted span means the original price is the selling price.
	if current == nil && original != nil {
		current = original
	}
	if current == nil {
		container.Find("span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			current = parsePriceText(s.Text())
			return current == nil
		})
	}
	return current, original
}

func priceFromDiscountedClass(doc *goquery.Document) (current, original *float64) {
	current = parsePriceText(doc.Find("span.prc-dsc").First().Text())
	if current == nil {
		current = parsePriceText(doc.Find(`div[class*="price-price"]`).First().Text())
	}
	if current != nil {
		original = parsePriceText(doc.Find("span.prc-org").First().Text())
	}
	return current, original
}

func priceFromCampaign(doc *goquery.Document) (current, original *float64) {
	return parsePriceText(doc.Find("p.campaign-price").First().Text()), nil
}

func priceFromJSONLD(doc *goquery.Document) (current, original *float64) {
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var data map[string]any
		if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
			return true
		}
		if schemaType, _ := data["@type"].(string); schemaType != "Product" {
			return true
		}

		switch offers := data["offers"].(type) {
		case map[string]any:
			current = jsonNumber(offers["price"])
			if current == nil {
				current = jsonNumber(offers["lowPrice"])
			}
			original = jsonNumber(offers["highPrice"])
		case []any:
			if len(offers) > 0 {
				if offer, ok := offers[0].(map[string]any); ok {
					current = jsonNumber(offer["price"])
				}
			}
		}
		return current == nil
	})
	return current, original
}

var scriptPricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`"price":\s*{\s*[^}]*"value":\s*([0-9.]+)`),
	regexp.MustCompile(`"price":\s*([0-9.]+)`),
	regexp.MustCompile(`"currentPrice":\s*([0-9.]+)`),
	regexp.MustCompile(`"sellingPrice":\s*([0-9.]+)`),
}

func priceFromScripts(doc *goquery.Document) (current, original *float64) {
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		content := s.Text()
		if !strings.Contains(content, "winnerVariant") && !strings.Contains(content, "productDetail") {
			return true
		}
		for _, pattern := range scriptPricePatterns {
			m := pattern.FindStringSubmatch(content)
			if m == nil {
				continue
			}
			value, err := strconv.ParseFloat(m[1], 64)
			if err != nil || price.Validate(value) != nil {
				continue
			}
			current = &value
			return false
		}
		return true
	})
	return current, nil
}

var priceTextPattern = regexp.MustCompile(`(\d[\d.,]*)\s*(TL|₺)`)

func priceFromText(doc *goquery.Document) (current, original *float64) {
	body := doc.Find("body").Clone()
	body.Find("script, style").Remove()

	m := priceTextPattern.FindStringSubmatch(body.Text())
	if m == nil {
		return nil, nil
	}
	return parsePriceText(m[1]), nil
}

func parsePriceText(text string) *float64 {
	value, err := price.Parse(text)
	if err != nil {
		return nil
	}
	return &value
}

func jsonNumber(v any) *float64 {
	switch n := v.(type) {
	case float64:
		if price.Validate(n) == nil {
			return &n
		}
	case string:
		return parsePriceText(n)
	}
	return nil
}

// --- image strategies ---

func imageFromOpenGraph(doc *goquery.Document) string {
	content, _ := doc.Find(`meta[property="og:image"]`).First().Attr("content")
	return strings.TrimSpace(content)
}

func imageFromGallery(doc *goquery.Document) string {
	return imageSource(doc.Find(".product-image-gallery-container img").First())
}

func imageFromLegacySlide(doc *goquery.Document) string {
	return imageSource(doc.Find("img.ph-gl-img, .product-slide img").First())
}

func imageSource(sel *goquery.Selection) string {
	for _, attr := range []string{"src", "data-src", "data-original"} {
		if value, ok := sel.Attr(attr); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func normalizeImageURL(raw string) string {
	if strings.HasPrefix(raw, "//") {
		return "https:" + raw
	}
	return raw
}
