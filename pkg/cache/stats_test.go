package cache

import (
	"math"
	"sync"
	"testing"
	"time"
)

func TestStatsCollector_Counters(t *testing.T) {
	stats := NewStatsCollector(0)

	stats.RecordVolatileHit(0.25)
	stats.RecordVolatileHit(0.25)
	stats.RecordVolatileMiss()
	stats.RecordDurableHit(0.35)
	stats.RecordDurableMiss()
	stats.RecordWrite(ClassDiscovery)
	stats.RecordRequestLatency(2 * time.Millisecond)
	stats.RecordRequestLatency(4 * time.Millisecond)
	stats.RecordRequestLatency(6 * time.Millisecond)
	stats.RecordRequestLatency(8 * time.Millisecond)

	snap := stats.Snapshot()

	if snap.VolatileHits != 2 {
		t.Errorf("VolatileHits = %d, want 2", snap.VolatileHits)
	}
	if snap.VolatileMisses != 1 {
		t.Errorf("VolatileMisses = %d, want 1", snap.VolatileMisses)
	}
	if snap.DurableHits != 1 {
		t.Errorf("DurableHits = %d, want 1", snap.DurableHits)
	}
	if snap.DurableMisses != 1 {
		t.Errorf("DurableMisses = %d, want 1", snap.DurableMisses)
	}
	if snap.Writes != 1 {
		t.Errorf("Writes = %d, want 1", snap.Writes)
	}
	if snap.Requests != 4 {
		t.Errorf("Requests = %d, want 4", snap.Requests)
	}

	wantSavings := 0.25 + 0.25 + 0.35
	if math.Abs(snap.CostSavings-wantSavings) > 1e-9 {
		t.Errorf("CostSavings = %v, want %v", snap.CostSavings, wantSavings)
	}

	// Incremental mean of 2,4,6,8 ms
	if math.Abs(snap.AvgLatencyMs-5.0) > 0.01 {
		t.Errorf("AvgLatencyMs = %v, want ~5.0", snap.AvgLatencyMs)
	}
}

// TestStatsCollector_HitRateBounds checks hitRate stays within [0,1] after
// arbitrary operation sequences.
func TestStatsCollector_HitRateBounds(t *testing.T) {
	tests := []struct {
		name   string
		hits   int
		misses int
	}{
		{name: "all hits", hits: 10, misses: 0},
		{name: "all misses", hits: 0, misses: 10},
		{name: "mixed", hits: 7, misses: 3},
		{name: "empty", hits: 0, misses: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := NewStatsCollector(0)
			for i := 0; i < tt.hits; i++ {
				stats.RecordVolatileHit(0.1)
				stats.RecordRequestLatency(time.Millisecond)
			}
			for i := 0; i < tt.misses; i++ {
				stats.RecordVolatileMiss()
				stats.RecordDurableMiss()
				stats.RecordRequestLatency(time.Millisecond)
			}

			snap := stats.Snapshot()
			if snap.HitRate < 0 || snap.HitRate > 1 {
				t.Errorf("HitRate = %v, want within [0,1]", snap.HitRate)
			}
			if tt.hits+tt.misses > 0 {
				want := float64(tt.hits) / float64(tt.hits+tt.misses)
				if math.Abs(snap.HitRate-want) > 1e-9 {
					t.Errorf("HitRate = %v, want %v", snap.HitRate, want)
				}
			}
		})
	}
}

// TestStatsCollector_ConcurrentUpdates verifies no increments are lost
// under concurrency. Run with -race.
func TestStatsCollector_ConcurrentUpdates(t *testing.T) {
	stats := NewStatsCollector(0)

	const goroutines = 20
	const perGoroutine = 200

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				stats.RecordVolatileHit(0.01)
				stats.RecordDurableMiss()
				stats.RecordWrite(ClassDiscovery)
				stats.RecordRequestLatency(time.Millisecond)
			}
		}()
	}
	wg.Wait()

	snap := stats.Snapshot()
	want := int64(goroutines * perGoroutine)
	if snap.VolatileHits != want {
		t.Errorf("VolatileHits = %d, want %d", snap.VolatileHits, want)
	}
	if snap.DurableMisses != want {
		t.Errorf("DurableMisses = %d, want %d", snap.DurableMisses, want)
	}
	if snap.Writes != want {
		t.Errorf("Writes = %d, want %d", snap.Writes, want)
	}
	if snap.Requests != want {
		t.Errorf("Requests = %d, want %d", snap.Requests, want)
	}
}

func TestStatsCollector_SnapshotStable(t *testing.T) {
	stats := NewStatsCollector(0)
	stats.RecordVolatileHit(0.1)
	stats.RecordRequestLatency(time.Millisecond)

	// Snapshot is read-only: repeated calls return identical state
	first := stats.Snapshot()
	second := stats.Snapshot()
	if first != second {
		t.Errorf("snapshots differ: %+v vs %+v", first, second)
	}
}
