package memorycache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestCache(t *testing.T, maxSize int64) *Cache {
	t.Helper()
	c, err := New(&Config{
		MaxSizeBytes:  maxSize,
		DefaultTTL:    time.Minute,
		EnableMetrics: true,
	})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	return c
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{name: "nil config", config: nil},
		{name: "zero size", config: &Config{MaxSizeBytes: 0, DefaultTTL: time.Minute}},
		{name: "zero ttl", config: &Config{MaxSizeBytes: 1024, DefaultTTL: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.config); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestCache_SetAndGet(t *testing.T) {
	cache := newTestCache(t, 1024*1024)
	ctx := context.Background()

	if err := cache.Set(ctx, "rev1:alice:view:document:1", true, time.Minute); err != nil {
		t.Fatalf("failed to set value: %v", err)
	}

	value, found := cache.Get(ctx, "rev1:alice:view:document:1")
	if !found {
		t.Fatal("expected to find decision")
	}
	if value != true {
		t.Errorf("expected true, got %v", value)
	}

	if _, found := cache.Get(ctx, "rev2:alice:view:document:1"); found {
		t.Error("expected decision of another revision to be absent")
	}
}

func TestCache_TTLExpiration(t *testing.T) {
	cache := newTestCache(t, 1024*1024)
	ctx := context.Background()

	if err := cache.Set(ctx, "key1", false, 50*time.Millisecond); err != nil {
		t.Fatalf("failed to set value: %v", err)
	}

	if _, found := cache.Get(ctx, "key1"); !found {
		t.Error("expected to find key1 before expiration")
	}

	time.Sleep(100 * time.Millisecond)

	if _, found := cache.Get(ctx, "key1"); found {
		t.Error("expected not to find key1 after expiration")
	}
	if cache.Len() != 0 {
		t.Errorf("expected expired entry to be removed, got %d items", cache.Len())
	}
}

func TestCache_DefaultTTL(t *testing.T) {
	cache, err := New(&Config{
		MaxSizeBytes: 1024 * 1024,
		DefaultTTL:   50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	ctx := context.Background()

	// Zero TTL uses the configured default instead of expiring immediately
	if err := cache.Set(ctx, "key1", true, 0); err != nil {
		t.Fatalf("failed to set value: %v", err)
	}
	if _, found := cache.Get(ctx, "key1"); !found {
		t.Error("expected to find key1 with default TTL")
	}

	time.Sleep(100 * time.Millisecond)

	if _, found := cache.Get(ctx, "key1"); found {
		t.Error("expected key1 to expire after default TTL")
	}
}

func TestCache_LRUEviction(t *testing.T) {
	cache := newTestCache(t, 200)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		cache.Set(ctx, fmt.Sprintf("key%d", i), true, time.Minute)
	}

	if cache.Len() >= 10 {
		t.Errorf("expected less than 10 items due to eviction, got %d", cache.Len())
	}
	if cache.Size() > 200 {
		t.Errorf("expected size within limit, got %d", cache.Size())
	}

	// Most recent entry survives eviction
	if _, found := cache.Get(ctx, "key9"); !found {
		t.Error("expected most recent key to survive eviction")
	}
	if cache.Metrics().KeysEvicted == 0 {
		t.Error("expected evictions to be counted")
	}
}

func TestCache_Delete(t *testing.T) {
	cache := newTestCache(t, 1024*1024)
	ctx := context.Background()

	cache.Set(ctx, "key1", true, time.Minute)

	if err := cache.Delete(ctx, "key1"); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if _, found := cache.Get(ctx, "key1"); found {
		t.Error("expected key1 to be deleted")
	}

	// Deleting a missing key is not an error
	if err := cache.Delete(ctx, "nonexistent"); err != nil {
		t.Errorf("expected no error deleting missing key, got %v", err)
	}
}

func TestCache_Clear(t *testing.T) {
	cache := newTestCache(t, 1024*1024)
	ctx := context.Background()

	cache.Set(ctx, "key1", true, time.Minute)
	cache.Set(ctx, "key2", false, time.Minute)
	cache.Set(ctx, "key3", true, time.Minute)

	if cache.Len() != 3 {
		t.Errorf("expected 3 items, got %d", cache.Len())
	}

	if err := cache.Clear(ctx); err != nil {
		t.Fatalf("failed to clear: %v", err)
	}

	if cache.Len() != 0 {
		t.Errorf("expected 0 items after clear, got %d", cache.Len())
	}
	if cache.Size() != 0 {
		t.Errorf("expected size 0 after clear, got %d", cache.Size())
	}
}

func TestCache_Metrics(t *testing.T) {
	cache := newTestCache(t, 1024*1024)
	ctx := context.Background()

	metrics := cache.Metrics()
	if metrics.Hits != 0 || metrics.Misses != 0 {
		t.Error("expected zero metrics initially")
	}

	cache.Set(ctx, "key1", true, time.Minute)
	cache.Get(ctx, "key1")
	cache.Get(ctx, "nonexistent")

	metrics = cache.Metrics()
	if metrics.Hits != 1 {
		t.Errorf("expected 1 hit, got %d", metrics.Hits)
	}
	if metrics.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", metrics.Misses)
	}
	if metrics.KeysAdded != 1 {
		t.Errorf("expected 1 key added, got %d", metrics.KeysAdded)
	}
	if metrics.HitRate() != 0.5 {
		t.Errorf("expected hit rate 0.5, got %f", metrics.HitRate())
	}

	cache.ResetMetrics()
	if cache.Metrics().Hits != 0 {
		t.Error("expected metrics to be reset")
	}
}

func TestCache_MetricsDisabled(t *testing.T) {
	cache, err := New(&Config{MaxSizeBytes: 1024, DefaultTTL: time.Minute})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	ctx := context.Background()

	cache.Set(ctx, "key1", true, time.Minute)
	cache.Get(ctx, "key1")

	if cache.Metrics().Hits != 0 {
		t.Error("expected no metrics when disabled")
	}
}

func TestCache_UpdateExisting(t *testing.T) {
	cache := newTestCache(t, 1024*1024)
	ctx := context.Background()

	cache.Set(ctx, "key1", false, time.Minute)
	cache.Set(ctx, "key1", true, time.Minute)

	value, found := cache.Get(ctx, "key1")
	if !found {
		t.Error("expected to find key1")
	}
	if value != true {
		t.Errorf("expected true, got %v", value)
	}
	if cache.Len() != 1 {
		t.Errorf("expected 1 item, got %d", cache.Len())
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	cache := newTestCache(t, 1024*1024)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				cache.Set(ctx, fmt.Sprintf("key%d", id), j%2 == 0, time.Millisecond)
			}
		}(i)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				cache.Get(ctx, fmt.Sprintf("key%d", id))
			}
		}(i)
	}
	wg.Wait()

	if cache.Len() > 10 {
		t.Errorf("expected at most 10 items, got %d", cache.Len())
	}
}

func TestCache_GetRefreshesRecency(t *testing.T) {
	// Room for two single-letter keys
	cache := newTestCache(t, 2*(entryOverhead+1)+10)
	ctx := context.Background()

	cache.Set(ctx, "a", true, time.Minute)
	cache.Set(ctx, "b", true, time.Minute)
	if _, found := cache.Get(ctx, "a"); !found {
		t.Fatal("expected to find a")
	}

	cache.Set(ctx, "c", false, time.Minute)

	if _, found := cache.Get(ctx, "a"); !found {
		t.Error("expected recently read key to survive eviction")
	}
	if _, found := cache.Get(ctx, "b"); found {
		t.Error("expected least recently used key to be evicted")
	}
	if got := cache.Metrics().KeysEvicted; got != 1 {
		t.Errorf("expected 1 eviction, got %d", got)
	}
}
