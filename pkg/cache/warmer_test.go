package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/homescout/propcache/internal/testutil"
	"github.com/homescout/propcache/pkg/tier"
)

func warmParams(n int) []map[string]any {
	params := make([]map[string]any, n)
	for i := range params {
		params[i] = map[string]any{"id": fmt.Sprintf("prop-%d", i)}
	}
	return params
}

// TestWarmer_MixedCachedAndCold is the canonical warming scenario: 10 param
// sets, 6 pre-cached, batch size 5. The fetch function must run exactly 4
// times.
func TestWarmer_MixedCachedAndCold(t *testing.T) {
	manager, _, _ := newTestManager(t)
	ctx := context.Background()

	params := warmParams(10)
	for i := 0; i < 6; i++ {
		if err := manager.Set(ctx, ClassDiscovery, params[i], map[string]any{"seeded": true}, SetOptions{}); err != nil {
			t.Fatalf("seeding failed: %v", err)
		}
	}

	provider := testutil.NewMockProvider()
	warmer := NewWarmer(manager, WarmerConfig{BatchSize: 5, BatchDelay: 10 * time.Millisecond})

	result, err := warmer.Warm(ctx, ClassDiscovery, params, provider.Fetch)
	if err != nil {
		t.Fatalf("Warm failed: %v", err)
	}

	if result.Total != 10 {
		t.Errorf("Total = %d, want 10", result.Total)
	}
	if result.Warmed != 4 {
		t.Errorf("Warmed = %d, want 4", result.Warmed)
	}
	if result.AlreadyCached != 6 {
		t.Errorf("AlreadyCached = %d, want 6", result.AlreadyCached)
	}
	if result.Errors != 0 {
		t.Errorf("Errors = %d, want 0", result.Errors)
	}
	if got := provider.Count(); got != 4 {
		t.Errorf("fetch invoked %d times, want 4", got)
	}

	// Warmed entries are now cache hits.
	for _, p := range params {
		res, err := manager.Get(ctx, ClassDiscovery, p, GetOptions{})
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !res.Cached {
			t.Errorf("params %v not cached after warming", p)
		}
	}
}

func TestWarmer_PerItemErrorsDoNotAbort(t *testing.T) {
	manager, _, _ := newTestManager(t)
	ctx := context.Background()

	params := warmParams(6)
	provider := testutil.NewMockProvider()
	provider.FailOn("prop-1")
	provider.FailOn("prop-4")

	warmer := NewWarmer(manager, WarmerConfig{BatchSize: 3, BatchDelay: 10 * time.Millisecond})
	result, err := warmer.Warm(ctx, ClassDiscovery, params, provider.Fetch)
	if err != nil {
		t.Fatalf("Warm failed: %v", err)
	}

	if result.Warmed != 4 {
		t.Errorf("Warmed = %d, want 4", result.Warmed)
	}
	if result.Errors != 2 {
		t.Errorf("Errors = %d, want 2", result.Errors)
	}

	errorCount := 0
	for _, item := range result.Items {
		if item.Outcome == OutcomeError {
			errorCount++
			if item.Error == "" {
				t.Errorf("item %d: error outcome without message", item.Index)
			}
		}
	}
	if errorCount != 2 {
		t.Errorf("per-item error count = %d, want 2", errorCount)
	}
}

// TestWarmer_BatchSequencing checks batches run one at a time: concurrency
// never exceeds the batch size.
func TestWarmer_BatchSequencing(t *testing.T) {
	manager, _, _ := newTestManager(t)
	ctx := context.Background()

	var inFlight, peak atomic.Int64
	fetch := func(ctx context.Context, params map[string]any) (any, error) {
		cur := inFlight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return map[string]any{"ok": true}, nil
	}

	warmer := NewWarmer(manager, WarmerConfig{BatchSize: 3, BatchDelay: 5 * time.Millisecond})
	result, err := warmer.Warm(ctx, ClassDiscovery, warmParams(9), fetch)
	if err != nil {
		t.Fatalf("Warm failed: %v", err)
	}
	if result.Warmed != 9 {
		t.Errorf("Warmed = %d, want 9", result.Warmed)
	}
	if got := peak.Load(); got > 3 {
		t.Errorf("peak concurrency = %d, want <= batch size 3", got)
	}
}

func TestWarmer_CancelledBetweenBatches(t *testing.T) {
	manager, _, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())

	fetch := func(ctx context.Context, params map[string]any) (any, error) {
		cancel() // cancel during the first batch
		return map[string]any{"ok": true}, nil
	}

	warmer := NewWarmer(manager, WarmerConfig{BatchSize: 2, BatchDelay: 50 * time.Millisecond})
	result, err := warmer.Warm(ctx, ClassDiscovery, warmParams(6), fetch)
	if err == nil {
		t.Fatal("expected context error on cancellation")
	}
	if result.Warmed < 2 {
		t.Errorf("Warmed = %d, want the first batch completed", result.Warmed)
	}
	if result.Warmed+result.AlreadyCached+result.Errors >= result.Total {
		t.Error("expected partial results after cancellation")
	}
}

func TestWarmer_MarksEntriesWarmed(t *testing.T) {
	manager, _, durable := newTestManager(t)
	ctx := context.Background()

	provider := testutil.NewMockProvider()
	warmer := NewWarmer(manager, WarmerConfig{BatchSize: 2, BatchDelay: 10 * time.Millisecond})

	params := warmParams(1)
	if _, err := warmer.Warm(ctx, ClassDiscovery, params, provider.Fetch); err != nil {
		t.Fatalf("Warm failed: %v", err)
	}

	key := testKey(t, manager, ClassDiscovery, params[0])
	record, err := durable.FindByParams(ctx, tier.Lookup{Key: key})
	if err != nil {
		t.Fatalf("FindByParams failed: %v", err)
	}
	var meta Metadata
	if err := json.Unmarshal(record.Metadata, &meta); err != nil {
		t.Fatalf("metadata unmarshal failed: %v", err)
	}
	if !meta.Warmed {
		t.Error("expected warmed=true metadata on warmed write")
	}
}
