package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	apperrors "options-desk/internal/errors"
	"options-desk/internal/models"
)

func TestMemoryCacheSetGet(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	price := models.LivePrice{Symbol: "NIFTY25AUG24000CE", Price: 120.5, Timestamp: time.Now()}
	if err := cache.Set(ctx, price); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := cache.Get(ctx, price.Symbol)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Price != 120.5 {
		t.Errorf("price = %v, want 120.5", got.Price)
	}

	// Newer ticks overwrite.
	price.Price = 121.25
	if err := cache.Set(ctx, price); err != nil {
		t.Fatalf("second Set failed: %v", err)
	}
	got, err = cache.Get(ctx, price.Symbol)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Price != 121.25 {
		t.Errorf("price = %v, want 121.25", got.Price)
	}
}

func TestMemoryCacheMissingSymbol(t *testing.T) {
	cache := NewMemoryCache()
	if _, err := cache.Get(context.Background(), "UNKNOWN"); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryCacheSnapshotIsCopy(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	for _, sym := range []string{"NIFTY 50", "SENSEX"} {
		if err := cache.Set(ctx, models.LivePrice{Symbol: sym, Price: 1, Timestamp: time.Now()}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	snap, err := cache.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(snap) != 2 {
		t.Fatalf("snapshot size = %d, want 2", len(snap))
	}

	// Mutating the snapshot must not touch the cache.
	delete(snap, "SENSEX")
	if _, err := cache.Get(ctx, "SENSEX"); err != nil {
		t.Errorf("cache lost entry after snapshot mutation: %v", err)
	}
}

func TestMemoryCacheConcurrentAccess(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = cache.Set(ctx, models.LivePrice{Symbol: "NIFTY 50", Price: float64(n*100 + j), Timestamp: time.Now()})
				_, _ = cache.Get(ctx, "NIFTY 50")
			}
		}(i)
	}
	wg.Wait()

	if _, err := cache.Get(ctx, "NIFTY 50"); err != nil {
		t.Fatalf("Get after concurrent writes failed: %v", err)
	}
}
