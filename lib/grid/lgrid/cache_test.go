package lgrid

import (
	"context"
	"errors"
	"testing"

	"github.com/ValentinKolb/dGrid/lib/filter"
	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/grid/partition"
	gridtesting "github.com/ValentinKolb/dGrid/lib/grid/testing"
)

func TestLocalCache(t *testing.T) {
	gridtesting.RunCacheTests(t, "LocalCache", func() grid.ICache {
		return NewLocalCache()
	})
	gridtesting.RunCacheTests(t, "LocalCacheWithWorkers", func() grid.ICache {
		return NewLocalCache(partition.WithWorkers(4))
	})
}

func TestCancelledContext(t *testing.T) {
	cache := NewLocalCache()
	defer cache.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := cache.Put(ctx, "k", 1); !errors.Is(err, grid.ErrInvocation) {
		t.Errorf("expected invocation error, got %v", err)
	}
	if size := cache.Partition().Size(); size != 0 {
		t.Errorf("cancelled put must not write, size %d", size)
	}

	ctx, cancel = context.WithTimeout(context.Background(), 0)
	defer cancel()
	<-ctx.Done()
	if _, err := cache.Entries(ctx, filter.Always{}); !errors.Is(err, grid.ErrTimeout) {
		t.Errorf("expected timeout, got %v", err)
	}
}

func TestUnknownSubscription(t *testing.T) {
	cache := NewLocalCache()
	defer cache.Close()
	if err := cache.Unsubscribe(context.Background(), "nope"); !errors.Is(err, grid.ErrInvalid) {
		t.Errorf("expected invalid operation, got %v", err)
	}
}

func BenchmarkLocalCache(b *testing.B) {
	gridtesting.RunCacheBenchmarks(b, "LocalCache", func() grid.ICache {
		return NewLocalCache()
	})
}
