package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

// httpClient wraps a retrying HTTP client with a token-bucket rate limiter,
// following the same shape as the application's general-purpose API client:
// retryablehttp for resilience against transient failures, x/time/rate to
// avoid hammering the local scraper server.
type httpClient struct {
	baseURL string
	http    *retryablehttp.Client
	limiter *rate.Limiter
	debug   bool
}

func newHTTPClient(baseURL string) *httpClient {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.HTTPClient.Timeout = 15 * time.Second
	retryClient.Logger = nil

	return &httpClient{
		baseURL: baseURL,
		http:    retryClient,
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}
}

type resolverDebugLogger struct{}

func (resolverDebugLogger) Printf(format string, args ...interface{}) {
	log.Printf("[resolver-http] "+format, args...)
}

func (c *httpClient) debugLog(format string, args ...interface{}) {
	if !c.debug {
		return
	}
	log.Printf("[resolver] "+format, args...)
}

// getJSON issues a rate-limited GET against c.baseURL+path and decodes the
// JSON response body into out.
func (c *httpClient) getJSON(ctx context.Context, path string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	url := c.baseURL + path
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	c.debugLog("GET %s", url)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned status %d: %s", url, resp.StatusCode, string(body))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", url, err)
	}
	return nil
}
