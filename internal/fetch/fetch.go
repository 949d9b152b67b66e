// Package fetch performs the HTTP GETs behind metadata syncs and bundle downloads.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/ryanm101/bundlereg/internal/tracing"
)

// Fetcher retrieves the raw body behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

// Fetch calls f(ctx, url).
func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

// HTTPConfig configures an HTTPFetcher.
type HTTPConfig struct {
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 for unlimited
	UserAgent string
}

// DefaultHTTPConfig returns the fetcher defaults.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout:   30 * time.Second,
		UserAgent: "bundlereg/0.3",
	}
}

// HTTPFetcher is a Fetcher backed by resty. It never retries.
type HTTPFetcher struct {
	client  *resty.Client
	limiter *rate.Limiter
}

// NewHTTPFetcher creates an HTTP fetcher from cfg.
func NewHTTPFetcher(cfg HTTPConfig) *HTTPFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultHTTPConfig().Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultHTTPConfig().UserAgent
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", cfg.UserAgent)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &HTTPFetcher{client: client, limiter: limiter}
}

// Fetch issues a GET and returns the body of a 200 response.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, &TransportError{URL: rawURL, Err: fmt.Errorf("rate limit: %w", err)}
	}

	req := f.client.R().SetContext(ctx)
	tracing.Inject(ctx, req.Header)

	resp, err := req.Get(rawURL)
	if err != nil {
		return nil, &TransportError{URL: rawURL, Err: err}
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, &TransportError{
			URL:        rawURL,
			StatusCode: resp.StatusCode(),
			Status:     resp.Status(),
		}
	}

	return resp.Body(), nil
}

// BundleURL expands a bundle endpoint template for one file.
// The template may contain {platform} and {filename}; without {filename}
// the escaped filename is appended as the last path segment.
func BundleURL(template, platform, filename string) string {
	escaped := url.PathEscape(filename)
	if !strings.Contains(template, "{filename}") {
		template = strings.TrimRight(template, "/") + "/{filename}"
	}
	r := strings.NewReplacer(
		"{platform}", url.PathEscape(platform),
		"{filename}", escaped,
	)
	return r.Replace(template)
}
