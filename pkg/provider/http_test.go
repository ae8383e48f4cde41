package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/homescout/propcache/pkg/cache"
	"github.com/homescout/propcache/pkg/tier"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func newTestProvider(t *testing.T, handler http.HandlerFunc, attempts int) *HTTPProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := NewHTTPProvider(HTTPConfig{
		BaseURL:   server.URL,
		UserAgent: "propcache-test/1.0",
		Retry:     fastRetry(attempts),
	})
	if err != nil {
		t.Fatalf("NewHTTPProvider failed: %v", err)
	}
	return p
}

func TestHTTPProvider_FetchJSON(t *testing.T) {
	var gotQuery, gotAgent string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAgent = r.Header.Get("User-Agent")
		w.Write([]byte(`{"owner":"jane doe"}`))
	}, 3)

	params := map[string]any{
		"street": "100 main st",
		"zip":    "77002",
		"tags":   []string{"verified", "residential"},
	}
	body, err := p.FetchJSON(context.Background(), "/v1/owners", params)
	if err != nil {
		t.Fatalf("FetchJSON failed: %v", err)
	}
	if string(body) != `{"owner":"jane doe"}` {
		t.Errorf("body = %s", body)
	}
	if gotQuery != "street=100+main+st&tags=verified%2Cresidential&zip=77002" {
		t.Errorf("query = %s", gotQuery)
	}
	if gotAgent != "propcache-test/1.0" {
		t.Errorf("user agent = %s", gotAgent)
	}
}

func TestHTTPProvider_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}, 3)

	body, err := p.FetchJSON(context.Background(), "/v1/listings", nil)
	if err != nil {
		t.Fatalf("FetchJSON failed: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %s", body)
	}
	if calls.Load() != 2 {
		t.Errorf("upstream called %d times, want 2", calls.Load())
	}
}

func TestHTTPProvider_ClientErrorsNotRetried(t *testing.T) {
	var calls atomic.Int64
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}, 3)

	_, err := p.FetchJSON(context.Background(), "/v1/listings", nil)
	if err == nil {
		t.Fatal("expected error for 404")
	}
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("error type = %T, want *UpstreamError", err)
	}
	if ue.ErrorClass != ErrorClassClient {
		t.Errorf("ErrorClass = %s, want client", ue.ErrorClass)
	}
	if calls.Load() != 1 {
		t.Errorf("upstream called %d times, want 1 (no retry)", calls.Load())
	}
}

func TestHTTPProvider_RetryExhausted(t *testing.T) {
	var calls atomic.Int64
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, 3)

	_, err := p.FetchJSON(context.Background(), "/v1/listings", nil)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("error = %v, want ErrRetryExhausted", err)
	}
	if calls.Load() != 3 {
		t.Errorf("upstream called %d times, want 3", calls.Load())
	}
}

func TestHTTPProvider_InvalidJSONTreatedAsTransient(t *testing.T) {
	var calls atomic.Int64
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Write([]byte(`{"truncated":`))
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}, 3)

	body, err := p.FetchJSON(context.Background(), "/v1/listings", nil)
	if err != nil {
		t.Fatalf("FetchJSON failed: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %s", body)
	}
}

func TestHTTPProvider_NestedParamsRejected(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}, 3)

	_, err := p.FetchJSON(context.Background(), "/v1/listings", map[string]any{
		"filter": map[string]any{"beds": 3},
	})
	if err == nil {
		t.Error("expected error for nested object param")
	}
}

func TestNewHTTPProvider_EmptyBaseURL(t *testing.T) {
	if _, err := NewHTTPProvider(HTTPConfig{}); err == nil {
		t.Error("expected error for empty base URL")
	}
}

// TestHTTPProvider_WiresIntoGetOrFetch covers the intended integration: the
// provider's fetch function behind the engine's single-flight miss path.
func TestHTTPProvider_WiresIntoGetOrFetch(t *testing.T) {
	var calls atomic.Int64
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"listings":[101,102]}`))
	}, 3)

	manager := cache.NewManager(tier.NewMemoryVolatile(), nil, cache.ManagerOptions{})
	ctx := context.Background()
	params := map[string]any{"city": "houston"}
	fetch := p.FetchFunc("/v1/listings")

	res, err := manager.GetOrFetch(ctx, cache.ClassDiscovery, params, cache.GetOptions{}, fetch)
	if err != nil {
		t.Fatalf("GetOrFetch failed: %v", err)
	}
	if res.Source != cache.SourceUpstream {
		t.Errorf("Source = %s, want upstream", res.Source)
	}
	var payload struct {
		Listings []int `json:"listings"`
	}
	if err := json.Unmarshal(res.Payload, &payload); err != nil {
		t.Fatalf("payload unmarshal failed: %v", err)
	}
	if len(payload.Listings) != 2 {
		t.Errorf("listings = %v", payload.Listings)
	}

	// Second lookup is served from cache, not upstream.
	res, err = manager.GetOrFetch(ctx, cache.ClassDiscovery, params, cache.GetOptions{}, fetch)
	if err != nil {
		t.Fatalf("second GetOrFetch failed: %v", err)
	}
	if res.Source != cache.SourceVolatile {
		t.Errorf("second Source = %s, want volatile", res.Source)
	}
	if calls.Load() != 1 {
		t.Errorf("upstream called %d times, want 1", calls.Load())
	}
}
