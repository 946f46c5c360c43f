// Package resolver normalizes user-supplied product references into
// canonical product identifiers. Accepted inputs are bare numeric IDs,
// full product URLs, search-style URLs, and shortened redirect links.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/CRTYPUBG/trendcord/internal/models"
)

var ErrNotResolvable = errors.New("product reference not resolvable")

const searchURLFormat = "https://www.trendyol.com/sr?pi=%s"

// Ordered identifier patterns; the first match wins. The standard
// slug-p-<id> form runs before the looser fallbacks.
var idPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/[^/]+-p-(\d+)`),
	regexp.MustCompile(`productId[=:](\d+)`),
	regexp.MustCompile(`pi[=:](\d+)`),
	regexp.MustCompile(`/p/(\d+)`),
	regexp.MustCompile(`p-(\d+)`),
}

func defaultDomains() []string {
	return []string{"trendyol.com", "ty.gl", "tyml.gl", "trendyol-milla.com"}
}

func defaultShortDomains() []string {
	return []string{"ty.gl", "tyml.gl"}
}

// Redirector follows shortened-link redirects to the real URL.
type Redirector interface {
	ResolveRedirect(ctx context.Context, url string) (string, error)
}

type Resolver struct {
	redirector   Redirector
	domains      []string
	shortDomains []string
	logger       *slog.Logger
}

func New(redirector Redirector, domains, shortDomains []string, logger *slog.Logger) *Resolver {
	if len(domains) == 0 {
		domains = defaultDomains()
	}
	if len(shortDomains) == 0 {
		shortDomains = defaultShortDomains()
	}
	return &Resolver{
		redirector:   redirector,
		domains:      domains,
		shortDomains: shortDomains,
		logger:       logger.With("component", "resolver"),
	}
}

// IsValidReference is a cheap pre-filter applied before any network call.
// Numeric strings and URLs on a known domain pass; everything else is
// rejected outright.
func (r *Resolver) IsValidReference(input string) bool {
	input = strings.TrimSpace(input)
	if isNumeric(input) {
		return true
	}
	return hostMatches(input, r.domains)
}

// Resolve normalizes input into a product ID and canonical URL. Shortened
// links are dereferenced first; if that fails the original URL is used so
// resolution degrades instead of aborting.
func (r *Resolver) Resolve(ctx context.Context, input string) (*models.ProductReference, error) {
	input = strings.TrimSpace(input)

	if isNumeric(input) {
		return &models.ProductReference{
			Raw:          input,
			ProductID:    input,
			CanonicalURL: fmt.Sprintf(searchURLFormat, input),
		}, nil
	}

	target := input
	if hostMatches(input, r.shortDomains) {
		resolved, err := r.redirector.ResolveRedirect(ctx, input)
		if err != nil {
			r.logger.Warn("failed to follow shortened link, using original URL",
				"url", input, "error", err)
		} else {
			target = resolved
		}
	}

	for _, pattern := range idPatterns {
		if m := pattern.FindStringSubmatch(target); m != nil {
			return &models.ProductReference{
				Raw:          input,
				ProductID:    m[1],
				CanonicalURL: target,
			}, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNotResolvable, input)
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func hostMatches(rawURL string, domains []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	for _, domain := range domains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
