// Package monitor watches the upstream site's structure so selector rot
// is noticed before lookups silently start failing. Each run probes a
// few live product pages and API endpoints, records which extraction
// hooks still exist, and compares the result against the stored baseline.
package monitor

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/CRTYPUBG/trendcord/internal/fetch"
)

const (
	// DefaultInterval is how often the scheduled check runs.
	DefaultInterval = 48 * time.Hour
	// heartbeatAge forces an "all fine" report when the last one is older.
	heartbeatAge = 7 * 24 * time.Hour
)

var defaultProbeURLs = []string{
	"https://ty.gl/reii1wcijhbf1",
	"https://www.trendyol.com/apple/iphone-15-128-gb-p-773358088",
	"https://www.trendyol.com/pun-wear/oversize-kalip-t-shirt-p-956534756",
}

var defaultEndpoints = []string{
	"https://public-mdc.trendyol.com/discovery-web-searchwidget-santral/api/v1/product/",
	"https://public-mdc.trendyol.com/discovery-web-productdetailwidget-santral/api/v1/product-detail/",
	"https://api.trendyol.com/sapigw/suppliers/",
}

// Snapshot describes the site structure observed during one analysis run.
type Snapshot struct {
	JSONLDPresent     bool      `json:"json_ld_present"`
	PriceSelectors    []string  `json:"price_selectors"`
	TitleSelectors    []string  `json:"title_selectors"`
	ImageSelectors    []string  `json:"image_selectors"`
	APIEndpoints      []string  `json:"api_endpoints"`
	PageStructureHash string    `json:"page_structure_hash"`
	LastCheck         time.Time `json:"last_check"`
}

// Delta is the classified difference between two snapshots.
type Delta struct {
	HasChanges   bool
	Critical     []string
	Minor        []string
	Improvements []string
}

var watchedPriceSelectors = []string{
	`div[data-testid="price"]`,
	"span.price-view-discounted",
	"span.price-view-original",
	"span.prc-dsc",
	"span.prc-org",
	`div[class*="price-price"]`,
	"p.campaign-price",
}

var watchedTitleSelectors = []string{
	"h1.pr-new-br span",
	"h1 span",
	".product-name",
	`[data-testid="product-name"]`,
}

var watchedImageSelectors = []string{
	".product-image img",
	`[data-testid="product-image"] img`,
	".gallery img",
}

var priceScriptMarkers = []*regexp.Regexp{
	regexp.MustCompile(`"price"\s*:`),
	regexp.MustCompile(`"currentPrice"\s*:`),
	regexp.MustCompile(`"sellingPrice"\s*:`),
}

var structuralClassPattern = regexp.MustCompile(`(?i)(price|product|gallery)`)

// Fetcher is the HTTP surface the monitor probes with.
type Fetcher interface {
	Get(ctx context.Context, rawURL string, opts *fetch.RequestOptions) (*fetch.Response, error)
	Head(ctx context.Context, rawURL string, opts *fetch.RequestOptions) (*fetch.Response, error)
}

// AlertSink receives human-readable monitor reports.
type AlertSink interface {
	Notify(ctx context.Context, report string) error
}

type Monitor struct {
	fetcher   Fetcher
	store     SnapshotStore
	sink      AlertSink
	probeURLs []string
	endpoints []string
	interval  time.Duration
	logger    *slog.Logger
	running   atomic.Bool
}

func New(fetcher Fetcher, store SnapshotStore, sink AlertSink, logger *slog.Logger) *Monitor {
	return &Monitor{
		fetcher:   fetcher,
		store:     store,
		sink:      sink,
		probeURLs: defaultProbeURLs,
		endpoints: defaultEndpoints,
		interval:  DefaultInterval,
		logger:    logger.With("component", "monitor"),
	}
}

// SetProbeURLs overrides the default probe pages.
func (m *Monitor) SetProbeURLs(urls []string) {
	if len(urls) > 0 {
		m.probeURLs = urls
	}
}

// SetInterval overrides the scheduled check interval.
func (m *Monitor) SetInterval(d time.Duration) {
	if d > 0 {
		m.interval = d
	}
}

// Running reports whether a check is currently in flight.
func (m *Monitor) Running() bool {
	return m.running.Load()
}

// LastSnapshot returns the stored baseline, if any.
func (m *Monitor) LastSnapshot() (*Snapshot, error) {
	return m.store.Load()
}

// Start runs a check immediately and then on every interval tick until
// the context is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	m.logger.Info("structure monitor started", "interval", m.interval)

	if _, err := m.RunCheck(ctx); err != nil {
		m.logger.Error("initial structure check failed", "error", err)
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("structure monitor stopped")
			return
		case <-ticker.C:
			if _, err := m.RunCheck(ctx); err != nil {
				m.logger.Error("structure check failed", "error", err)
			}
		}
	}
}

// ErrCheckRunning is returned when a check is requested while one runs.
var ErrCheckRunning = fmt.Errorf("monitor: check already running")

// RunCheck performs one full analysis, compares against the baseline,
// persists the new snapshot, and sends a report when warranted.
func (m *Monitor) RunCheck(ctx context.Context) (*Delta, error) {
	if !m.running.CompareAndSwap(false, true) {
		return nil, ErrCheckRunning
	}
	defer m.running.Store(false)

	current, err := m.AnalyzeCurrentStructure(ctx)
	if err != nil {
		return nil, err
	}

	previous, err := m.store.Load()
	if err != nil {
		return nil, err
	}

	if previous == nil {
		if err := m.store.Save(current); err != nil {
			return nil, err
		}
		m.notify(ctx, m.baselineReport(current))
		m.logger.Info("structure baseline recorded")
		return &Delta{}, nil
	}

	delta := Compare(previous, current)
	if err := m.store.Save(current); err != nil {
		return nil, err
	}

	switch {
	case delta.HasChanges:
		m.notify(ctx, m.changeReport(delta, current))
		m.logger.Warn("site structure changed",
			"critical", len(delta.Critical), "minor", len(delta.Minor), "improvements", len(delta.Improvements))
	case time.Since(previous.LastCheck) > heartbeatAge:
		m.notify(ctx, m.heartbeatReport(current))
	}

	return delta, nil
}

// AnalyzeCurrentStructure probes the sample pages and endpoints and
// builds a snapshot of what the site currently exposes.
func (m *Monitor) AnalyzeCurrentStructure(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{LastCheck: time.Now().UTC()}

	priceSet := map[string]bool{}
	titleSet := map[string]bool{}
	imageSet := map[string]bool{}
	var pageHashes []string
	probed := 0

	for _, url := range m.probeURLs {
		resp, err := m.fetcher.Get(ctx, url, nil)
		if err != nil {
			m.logger.Warn("probe page unreachable", "url", url, "error", err)
			continue
		}
		if resp.StatusCode != 200 {
			m.logger.Warn("probe page bad status", "url", url, "status", resp.StatusCode)
			continue
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(resp.Body)))
		if err != nil {
			m.logger.Warn("probe page unparseable", "url", url, "error", err)
			continue
		}
		probed++

		m.inspectPage(doc, string(resp.Body), snap, priceSet, titleSet, imageSet)
		pageHashes = append(pageHashes, structureHash(doc))
	}

	if probed == 0 {
		return nil, fmt.Errorf("monitor: no probe page reachable")
	}

	snap.PriceSelectors = sortedKeys(priceSet)
	snap.TitleSelectors = sortedKeys(titleSet)
	snap.ImageSelectors = sortedKeys(imageSet)
	snap.APIEndpoints = m.responsiveEndpoints(ctx)
	snap.PageStructureHash = combinedHash(pageHashes)

	return snap, nil
}

func (m *Monitor) inspectPage(doc *goquery.Document, html string, snap *Snapshot, priceSet, titleSet, imageSet map[string]bool) {
	for _, selector := range watchedPriceSelectors {
		if doc.Find(selector).Length() > 0 {
			priceSet[selector] = true
		}
	}
	for _, marker := range priceScriptMarkers {
		if marker.MatchString(html) {
			priceSet["script:"+marker.String()] = true
		}
	}
	for _, selector := range watchedTitleSelectors {
		if doc.Find(selector).Length() > 0 {
			titleSet[selector] = true
		}
	}
	for _, selector := range watchedImageSelectors {
		if doc.Find(selector).Length() > 0 {
			imageSet[selector] = true
		}
	}
	if doc.Find(`script[type="application/ld+json"]`).Length() > 0 {
		snap.JSONLDPresent = true
	}
}

// responsiveEndpoints probes each known API endpoint; anything but a
// hard 404 counts as alive.
func (m *Monitor) responsiveEndpoints(ctx context.Context) []string {
	var alive []string
	for _, endpoint := range m.endpoints {
		probe := endpoint
		if strings.HasSuffix(probe, "/") {
			probe += "123456"
		} else {
			probe += "?q=test"
		}

		resp, err := m.fetcher.Head(ctx, probe, nil)
		if err != nil {
			m.logger.Warn("endpoint probe failed", "endpoint", endpoint, "error", err)
			continue
		}
		if resp.StatusCode != 404 {
			alive = append(alive, endpoint)
		}
	}
	sort.Strings(alive)
	return alive
}

// structureHash fingerprints a page from a bounded sample of its
// structural elements so cosmetic content changes do not churn the hash.
func structureHash(doc *goquery.Document) string {
	var parts []string
	doc.Find("script, div, span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if len(parts) >= 50 {
			return false
		}
		class, _ := s.Attr("class")
		if class != "" && structuralClassPattern.MatchString(class) {
			parts = append(parts, goquery.NodeName(s)+"."+class)
		}
		return true
	})

	sum := md5.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func combinedHash(pageHashes []string) string {
	sort.Strings(pageHashes)
	sum := md5.Sum([]byte(strings.Join(pageHashes, "")))
	return hex.EncodeToString(sum[:])
}

// Compare classifies the differences between two snapshots. Losing a
// price hook or an endpoint breaks lookups, so those are critical; new
// hooks are improvements; everything else is minor.
func Compare(old, current *Snapshot) *Delta {
	delta := &Delta{}

	for _, sel := range missing(old.PriceSelectors, current.PriceSelectors) {
		delta.Critical = append(delta.Critical, "price selector removed: "+sel)
	}
	for _, sel := range missing(current.PriceSelectors, old.PriceSelectors) {
		delta.Improvements = append(delta.Improvements, "price selector added: "+sel)
	}

	for _, endpoint := range missing(old.APIEndpoints, current.APIEndpoints) {
		delta.Critical = append(delta.Critical, "API endpoint unresponsive: "+endpoint)
	}
	for _, endpoint := range missing(current.APIEndpoints, old.APIEndpoints) {
		delta.Improvements = append(delta.Improvements, "API endpoint responsive: "+endpoint)
	}

	if old.JSONLDPresent && !current.JSONLDPresent {
		delta.Critical = append(delta.Critical, "JSON-LD structured data no longer present")
	}
	if !old.JSONLDPresent && current.JSONLDPresent {
		delta.Improvements = append(delta.Improvements, "JSON-LD structured data now present")
	}

	for _, sel := range missing(old.TitleSelectors, current.TitleSelectors) {
		delta.Minor = append(delta.Minor, "title selector removed: "+sel)
	}
	for _, sel := range missing(current.TitleSelectors, old.TitleSelectors) {
		delta.Minor = append(delta.Minor, "title selector added: "+sel)
	}
	for _, sel := range missing(old.ImageSelectors, current.ImageSelectors) {
		delta.Minor = append(delta.Minor, "image selector removed: "+sel)
	}
	for _, sel := range missing(current.ImageSelectors, old.ImageSelectors) {
		delta.Minor = append(delta.Minor, "image selector added: "+sel)
	}

	if old.PageStructureHash != "" && current.PageStructureHash != "" &&
		old.PageStructureHash != current.PageStructureHash {
		delta.Minor = append(delta.Minor, "page structure fingerprint changed")
	}

	delta.HasChanges = len(delta.Critical)+len(delta.Minor)+len(delta.Improvements) > 0
	return delta
}

func (m *Monitor) notify(ctx context.Context, report string) {
	if m.sink == nil {
		return
	}
	if err := m.sink.Notify(ctx, report); err != nil {
		m.logger.Error("alert delivery failed", "error", err)
	}
}

func (m *Monitor) baselineReport(snap *Snapshot) string {
	var b strings.Builder
	b.WriteString("Site structure baseline recorded.\n")
	fmt.Fprintf(&b, "Price hooks: %d, title hooks: %d, image hooks: %d\n",
		len(snap.PriceSelectors), len(snap.TitleSelectors), len(snap.ImageSelectors))
	fmt.Fprintf(&b, "Responsive endpoints: %d, JSON-LD: %v\n", len(snap.APIEndpoints), snap.JSONLDPresent)
	return b.String()
}

func (m *Monitor) changeReport(delta *Delta, snap *Snapshot) string {
	var b strings.Builder
	b.WriteString("Site structure changed.\n")
	for _, item := range delta.Critical {
		b.WriteString("CRITICAL: " + item + "\n")
	}
	for _, item := range delta.Minor {
		b.WriteString("minor: " + item + "\n")
	}
	for _, item := range delta.Improvements {
		b.WriteString("improvement: " + item + "\n")
	}
	fmt.Fprintf(&b, "Checked at %s\n", snap.LastCheck.Format(time.RFC3339))
	return b.String()
}

func (m *Monitor) heartbeatReport(snap *Snapshot) string {
	return fmt.Sprintf("Site structure stable. Price hooks: %d, endpoints: %d, checked at %s\n",
		len(snap.PriceSelectors), len(snap.APIEndpoints), snap.LastCheck.Format(time.RFC3339))
}

func missing(from, in []string) []string {
	set := make(map[string]bool, len(in))
	for _, s := range in {
		set[s] = true
	}
	var out []string
	for _, s := range from {
		if !set[s] {
			out = append(out, s)
		}
	}
	return out
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
