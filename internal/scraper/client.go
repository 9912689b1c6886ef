// Package scraper fetches third-party results pages and turns their
// semi-structured HTML into draw candidates.
package scraper

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// FetchClient retrieves remote HTML, rotating through configured proxy
// relays before falling back to a direct request. Every attempt is
// bounded by the configured timeout and honors caller cancellation.
type FetchClient struct {
	httpClient *http.Client
	proxies    []string
	timeout    time.Duration
	maxRetries int
	logger     *logrus.Logger
}

// NewFetchClient builds a fetch client.
func NewFetchClient(proxies []string, timeout time.Duration, maxRetries int, logger *logrus.Logger) *FetchClient {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &FetchClient{
		httpClient: &http.Client{Timeout: timeout},
		proxies:    proxies,
		timeout:    timeout,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// FetchResult carries a fetched page plus the route that produced it.
type FetchResult struct {
	Body  string
	Route string // "proxy 1", "direct", ...
}

// Fetch retrieves target through each proxy in order and finally
// directly, retrying each route with exponential backoff. It returns the
// first successful body; exhaustion of every route returns an error
// naming the attempt count.
func (c *FetchClient) Fetch(ctx context.Context, target string) (*FetchResult, error) {
	routes := make([]string, 0, len(c.proxies)+1)
	for _, p := range c.proxies {
		routes = append(routes, p)
	}
	routes = append(routes, "") // direct fallback

	attempts := 0
	for i, proxy := range routes {
		route := "direct"
		requestURL := target
		if proxy != "" {
			route = fmt.Sprintf("proxy %d", i+1)
			requestURL = wrapProxyURL(proxy, target)
		}

		body, n, err := c.fetchWithRetry(ctx, requestURL)
		attempts += n
		if err == nil {
			return &FetchResult{Body: body, Route: route}, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch canceled after %d attempts: %w", attempts, ctx.Err())
		}
		c.logger.WithFields(logrus.Fields{
			"route": route,
			"error": err,
		}).Warn("Fetch route exhausted")
	}

	return nil, fmt.Errorf("all fetch routes failed after %d attempts", attempts)
}

// fetchWithRetry runs up to maxRetries attempts against one route with
// exponential backoff between failures.
func (c *FetchClient) fetchWithRetry(ctx context.Context, requestURL string) (string, int, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", attempt, ctx.Err()
			}
		}

		body, err := c.fetchOnce(ctx, requestURL)
		if err == nil {
			return body, attempt + 1, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", attempt + 1, ctx.Err()
		}
	}
	return "", c.maxRetries, lastErr
}

func (c *FetchClient) fetchOnce(ctx context.Context, requestURL string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, requestURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	// Headers mimic a regular browser; some result sites refuse bare
	// clients.
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; AnimalitosAnalytics/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "es-VE,es;q=0.9,en;q=0.5")
	req.Header.Set("Connection", "keep-alive")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("non-OK status: %d", resp.StatusCode)
	}

	reader := io.Reader(resp.Body)
	if strings.Contains(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return "", fmt.Errorf("failed to open gzip body: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	return string(body), nil
}

// wrapProxyURL embeds the target in a proxy relay URL. Relays that end
// with a query separator receive the target escaped as a parameter;
// anything else gets it appended as a path suffix.
func wrapProxyURL(proxy, target string) string {
	if strings.HasSuffix(proxy, "=") || strings.HasSuffix(proxy, "?") {
		return proxy + url.QueryEscape(target)
	}
	return strings.TrimSuffix(proxy, "/") + "/" + target
}
