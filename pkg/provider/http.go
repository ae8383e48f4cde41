// Package provider adapts upstream property-data HTTP APIs into fetch
// functions the cache engine can call on a miss. It owns transport
// concerns the engine deliberately does not: request building, retry with
// exponential backoff, and upstream error classification.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/homescout/propcache/pkg/cache"
	"github.com/homescout/propcache/pkg/logging"
)

// DefaultTimeout bounds a single upstream request attempt.
const DefaultTimeout = 30 * time.Second

// HTTPConfig configures an HTTPProvider.
type HTTPConfig struct {
	// BaseURL is the upstream API root, e.g. "https://api.example.com".
	BaseURL string

	// UserAgent identifies this client to the upstream.
	UserAgent string

	// Timeout bounds each attempt (default DefaultTimeout).
	Timeout time.Duration

	// Retry is the retry behavior (default DefaultRetryConfig).
	Retry RetryConfig
}

// HTTPProvider fetches JSON documents from one upstream API. It is safe for
// concurrent use; a single provider typically backs many fetch functions.
type HTTPProvider struct {
	baseURL   string
	userAgent string
	retry     RetryConfig
	client    *http.Client
	logger    zerolog.Logger
}

// NewHTTPProvider creates a provider for the upstream at cfg.BaseURL.
func NewHTTPProvider(cfg HTTPConfig) (*HTTPProvider, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	return &HTTPProvider{
		baseURL:   base,
		userAgent: cfg.UserAgent,
		retry:     cfg.Retry,
		client:    &http.Client{Timeout: cfg.Timeout},
		logger:    logging.NewLogger("provider"),
	}, nil
}

// SetHTTPClient replaces the underlying HTTP client. Intended for tests.
func (p *HTTPProvider) SetHTTPClient(client *http.Client) {
	p.client = client
}

// FetchFunc returns a fetch function for path that encodes the cache
// parameters as the query string. Wire it into Manager.GetOrFetch or a
// Warmer job.
func (p *HTTPProvider) FetchFunc(path string) cache.FetchFunc {
	return func(ctx context.Context, params map[string]any) (any, error) {
		return p.FetchJSON(ctx, path, params)
	}
}

// FetchJSON GETs path with params as the query string, retrying transient
// failures, and returns the response body as raw JSON.
func (p *HTTPProvider) FetchJSON(ctx context.Context, path string, params map[string]any) (json.RawMessage, error) {
	reqURL, err := p.buildURL(path, params)
	if err != nil {
		return nil, err
	}

	var body json.RawMessage
	err = retryWithBackoff(ctx, p.logger, p.retry, func() (ErrorClass, error) {
		data, class, aerr := p.attempt(ctx, reqURL)
		if aerr != nil {
			return class, aerr
		}
		body = data
		return "", nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// attempt performs one request and classifies any failure.
func (p *HTTPProvider) attempt(ctx context.Context, reqURL string) (json.RawMessage, ErrorClass, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, ErrorClassClient, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, ErrorClassNetwork, &UpstreamError{
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		class := classifyStatus(resp.StatusCode)
		return nil, class, &UpstreamError{
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Message:    resp.Status,
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ErrorClassNetwork, &UpstreamError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read body",
			Err:        err,
		}
	}
	if !json.Valid(data) {
		// A truncated or garbled body reads like a transient upstream
		// defect, not a caller mistake.
		return nil, ErrorClassServer, &UpstreamError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassServer,
			Message:    "response is not valid JSON",
		}
	}
	return json.RawMessage(data), "", nil
}

// buildURL composes the request URL. Param values are rendered with their
// default formatting; slices become comma-separated lists. Keys are sorted
// so logged URLs are stable.
func (p *HTTPProvider) buildURL(path string, params map[string]any) (string, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	values := url.Values{}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := params[k].(type) {
		case nil:
			continue
		case []string:
			values.Set(k, strings.Join(v, ","))
		case []any:
			parts := make([]string, len(v))
			for i, e := range v {
				parts[i] = fmt.Sprint(e)
			}
			values.Set(k, strings.Join(parts, ","))
		case map[string]any:
			return "", fmt.Errorf("param %q: nested objects cannot be query-encoded", k)
		default:
			values.Set(k, fmt.Sprint(v))
		}
	}

	reqURL := p.baseURL + path
	if encoded := values.Encode(); encoded != "" {
		reqURL += "?" + encoded
	}
	return reqURL, nil
}
