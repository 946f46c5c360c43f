// Package fetch issues outbound HTTP requests for the acquisition engine.
// It owns retry/backoff behavior, request jitter, and proxy rotation so
// the callers above it only see documents and status codes.
package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/CRTYPUBG/trendcord/internal/ratelimit"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"

type Config struct {
	Timeout        time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
	BackoffFactor  float64
	MinDelay       time.Duration
	MaxDelay       time.Duration
	VerifySSL      bool
	UserAgent      string
	AcceptLanguage string
}

func DefaultConfig() Config {
	return Config{
		Timeout:        15 * time.Second,
		MaxRetries:     3,
		RetryDelay:     time.Second,
		BackoffFactor:  2,
		MinDelay:       time.Second,
		MaxDelay:       3 * time.Second,
		VerifySSL:      true,
		UserAgent:      defaultUserAgent,
		AcceptLanguage: "tr-TR,tr;q=0.9,en-US;q=0.8,en;q=0.7",
	}
}

type Response struct {
	StatusCode int
	Body       []byte
	FinalURL   string
}

type RequestOptions struct {
	UseProxy bool
	Headers  map[string]string
}

type Client struct {
	cfg      Config
	registry *ProxyRegistry
	limiter  ratelimit.RateLimiter
	direct   *http.Client
	logger   *slog.Logger
}

// NewClient builds a fetch client. The registry may be nil, in which case
// all requests go out directly.
func NewClient(cfg Config, registry *ProxyRegistry, logger *slog.Logger) *Client {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = def.BackoffFactor
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = def.AcceptLanguage
	}

	return &Client{
		cfg:      cfg,
		registry: registry,
		limiter:  ratelimit.NewSimpleRateLimiter(cfg.MinDelay, cfg.MaxDelay),
		direct: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport(cfg, ""),
		},
		logger: logger.With("component", "fetch"),
	}
}

func (c *Client) Get(ctx context.Context, rawURL string, opts *RequestOptions) (*Response, error) {
	return c.do(ctx, http.MethodGet, rawURL, opts)
}

func (c *Client) Head(ctx context.Context, rawURL string, opts *RequestOptions) (*Response, error) {
	return c.do(ctx, http.MethodHead, rawURL, opts)
}

// ResolveRedirect follows redirects for a shortened link via a HEAD
// request and returns the final URL.
func (c *Client) ResolveRedirect(ctx context.Context, rawURL string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	c.setHeaders(req, nil)

	resp, err := c.direct.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to follow redirect: %w", err)
	}
	resp.Body.Close()

	return resp.Request.URL.String(), nil
}

func (c *Client) do(ctx context.Context, method, rawURL string, opts *RequestOptions) (*Response, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}

	var lastErr error
	attempts := c.cfg.MaxRetries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(float64(c.cfg.RetryDelay) * math.Pow(c.cfg.BackoffFactor, float64(attempt-1)))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		// Jitter before every outbound request, including the first.
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		proxyAddr := ""
		httpClient := c.direct
		if opts.UseProxy && c.registry != nil {
			if addr, ok := c.registry.Pick(); ok {
				proxyAddr = addr
				httpClient = &http.Client{
					Timeout:   c.cfg.Timeout,
					Transport: transport(c.cfg, addr),
				}
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		c.setHeaders(req, opts.Headers)

		resp, err := httpClient.Do(req)
		if err != nil {
			lastErr = err
			if proxyAddr != "" {
				c.registry.MarkBad(proxyAddr)
				c.logger.Warn("proxy request failed, proxy cooled down",
					"proxy", proxyAddr, "url", rawURL, "error", err)
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if proxyAddr != "" {
			c.registry.MarkGood(proxyAddr)
		}

		if retryableStatus(resp.StatusCode) {
			lastErr = fmt.Errorf("upstream returned %d", resp.StatusCode)
			c.logger.Debug("retryable status", "url", rawURL, "status", resp.StatusCode, "attempt", attempt+1)
			continue
		}

		finalURL := rawURL
		if resp.Request != nil && resp.Request.URL != nil {
			finalURL = resp.Request.URL.String()
		}

		return &Response{
			StatusCode: resp.StatusCode,
			Body:       body,
			FinalURL:   finalURL,
		}, nil
	}

	return nil, fmt.Errorf("request to %s failed after %d attempts: %w", rawURL, attempts, lastErr)
}

func (c *Client) setHeaders(req *http.Request, extra map[string]string) {
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", c.cfg.AcceptLanguage)
	req.Header.Set("Connection", "keep-alive")

	for key, value := range extra {
		req.Header.Set(key, value)
	}
}

func transport(cfg Config, proxyAddr string) *http.Transport {
	t := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.VerifySSL},
	}
	if proxyAddr != "" {
		t.Proxy = http.ProxyURL(&url.URL{Scheme: "http", Host: proxyAddr})
	}
	return t
}

func retryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
