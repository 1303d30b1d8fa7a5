// Package fetch retrieves pages over HTTP for scanning.
//
// Fetching is deliberately polite: a shared [Client] identifies itself with a
// bot user agent, waits between URLs, and retries a failed request exactly
// once. A failed fetch is never fatal to the run; the page simply contributes
// an error result.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/partnerwatch/ppscan/pkg/extract"
	"github.com/partnerwatch/ppscan/pkg/log"
)

const (
	// DefaultUserAgent identifies the scanner to partner sites.
	DefaultUserAgent = "ppscan/1.0 (compliance-monitoring; +https://partnerwatch.io/bot)"

	// DefaultTimeout bounds one request attempt.
	DefaultTimeout = 25 * time.Second

	// DefaultRetryDelay is the pause before the single retry.
	DefaultRetryDelay = 1 * time.Second

	// DefaultPoliteDelay is the pause between consecutive URLs.
	DefaultPoliteDelay = 500 * time.Millisecond

	// maxBodyBytes caps how much of a response body is read.
	maxBodyBytes = 10 << 20
)

// Result is the outcome of fetching one URL. StatusCode and HTML are only
// meaningful when Err is nil.
type Result struct {
	// URL is the requested URL.
	URL string
	// FinalURL is the URL after redirects.
	FinalURL string
	// Title is the page title, if the response parsed as HTML.
	Title string
	// HTML is the raw response body.
	HTML string
	// Err records a fetch failure for this URL.
	Err error
	// StatusCode is the HTTP status of the final response.
	StatusCode int
}

// Client fetches pages. It is safe for concurrent use, though FetchAll
// serializes requests to stay polite.
type Client struct {
	httpClient  *http.Client
	tracer      trace.Tracer
	userAgent   string
	retryDelay  time.Duration
	politeDelay time.Duration
}

// ClientOpt configures a [Client].
type ClientOpt func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOpt {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithUserAgent overrides the user agent header.
func WithUserAgent(ua string) ClientOpt {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithRetryDelay sets the pause before the retry attempt.
func WithRetryDelay(d time.Duration) ClientOpt {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithPoliteDelay sets the pause between consecutive URLs.
func WithPoliteDelay(d time.Duration) ClientOpt {
	return func(c *Client) {
		c.politeDelay = d
	}
}

// NewClient creates a fetch [Client] with polite defaults.
func NewClient(opts ...ClientOpt) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		tracer:      otel.Tracer("fetch"),
		userAgent:   DefaultUserAgent,
		retryDelay:  DefaultRetryDelay,
		politeDelay: DefaultPoliteDelay,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Fetch retrieves one URL, retrying exactly once on a transport error or a
// 5xx response. The returned result always has URL set; on failure Err is set
// and the remaining fields are zero.
func (c *Client) Fetch(ctx context.Context, url string) Result {
	ctx, span := c.tracer.Start(ctx, "fetch", trace.WithAttributes(
		attribute.String("url", url),
	))
	defer span.End()

	result, err := c.fetchOnce(ctx, url)
	if err == nil && result.StatusCode < http.StatusInternalServerError {
		span.SetAttributes(attribute.Int("status", result.StatusCode))

		return result
	}

	log.WithContext(ctx).Warn("fetch failed, retrying once",
		slog.String("url", url),
		slog.Int("status", result.StatusCode),
		slog.Any("error", err),
	)

	select {
	case <-ctx.Done():
		return Result{URL: url, Err: ctx.Err()}
	case <-time.After(c.retryDelay):
	}

	result, err = c.fetchOnce(ctx, url)
	if err != nil {
		span.SetAttributes(attribute.Bool("failed", true))

		return Result{URL: url, Err: err}
	}

	span.SetAttributes(attribute.Int("status", result.StatusCode))

	return result
}

// FetchAll retrieves URLs in order, pausing between them. Results are
// returned in input order, one per URL, including failures.
func (c *Client) FetchAll(ctx context.Context, urls []string) []Result {
	results := make([]Result, 0, len(urls))

	for i, url := range urls {
		if i > 0 {
			select {
			case <-ctx.Done():
				results = append(results, Result{URL: url, Err: ctx.Err()})

				continue
			case <-time.After(c.politeDelay):
			}
		}

		log.WithContext(ctx).Info("fetching page",
			slog.String("url", url),
			slog.Int("index", i+1),
			slog.Int("total", len(urls)),
		)

		results = append(results, c.Fetch(ctx, url))
	}

	return results
}

func (c *Client) fetchOnce(ctx context.Context, url string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{URL: url}, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{URL: url}, fmt.Errorf("get %s: %w", url, err)
	}

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			log.WithContext(ctx).Debug("close response body", slog.Any("error", err))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Result{URL: url, StatusCode: resp.StatusCode}, fmt.Errorf("read body of %s: %w", url, err)
	}

	html := string(body)

	return Result{
		URL:        url,
		FinalURL:   resp.Request.URL.String(),
		Title:      extract.Title(html),
		HTML:       html,
		StatusCode: resp.StatusCode,
	}, nil
}
