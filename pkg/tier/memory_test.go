package tier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryVolatile_RoundTrip(t *testing.T) {
	m := NewMemoryVolatile()
	ctx := context.Background()

	if err := m.Set(ctx, "discovery:abc123", []byte(`{"n":1}`), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := m.Get(ctx, "discovery:abc123")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `{"n":1}` {
		t.Errorf("Get = %s, want {\"n\":1}", got)
	}
}

func TestMemoryVolatile_MissingKey(t *testing.T) {
	m := NewMemoryVolatile()

	_, err := m.Get(context.Background(), "no-such-key")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get error = %v, want ErrNotFound", err)
	}
}

func TestMemoryVolatile_Expiry(t *testing.T) {
	m := NewMemoryVolatile()
	ctx := context.Background()

	if err := m.Set(ctx, "k", []byte("v"), 50*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after expiry = %v, want ErrNotFound", err)
	}
	// Lazy eviction removed the entry on read.
	if m.Len() != 0 {
		t.Errorf("Len = %d after expired read, want 0", m.Len())
	}
}

func TestMemoryVolatile_NonPositiveTTLIgnored(t *testing.T) {
	m := NewMemoryVolatile()
	ctx := context.Background()

	if err := m.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("zero-TTL Set should not store; Get = %v, want ErrNotFound", err)
	}
}

func TestMemoryVolatile_Delete(t *testing.T) {
	m := NewMemoryVolatile()
	ctx := context.Background()

	if err := m.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := m.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}

	// Deleting an absent key is a no-op.
	if err := m.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete of missing key = %v, want nil", err)
	}
}

// Run with -race.
func TestMemoryVolatile_ConcurrentAccess(t *testing.T) {
	m := NewMemoryVolatile()
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("k-%d-%d", g, i)
				if err := m.Set(ctx, key, []byte("v"), time.Minute); err != nil {
					t.Errorf("Set failed: %v", err)
					return
				}
				if _, err := m.Get(ctx, key); err != nil {
					t.Errorf("Get failed: %v", err)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	if m.Len() != 1000 {
		t.Errorf("Len = %d, want 1000", m.Len())
	}
}
