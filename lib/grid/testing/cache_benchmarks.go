package testing

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dGrid/lib/aggregate"
	"github.com/ValentinKolb/dGrid/lib/filter"
	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/processor"
)

// RunCacheBenchmarks runs all benchmarks for a cache implementation
func RunCacheBenchmarks(b *testing.B, name string, factory CacheFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Put", func(b *testing.B) {
			benchmarkPut(b, factory())
		})

		b.Run("Get", func(b *testing.B) {
			benchmarkGet(b, factory())
		})

		b.Run("PutAll", func(b *testing.B) {
			benchmarkPutAll(b, factory())
		})

		b.Run("Invoke", func(b *testing.B) {
			benchmarkInvoke(b, factory())
		})

		b.Run("Query", func(b *testing.B) {
			benchmarkQuery(b, factory(), false)
		})

		b.Run("IndexedQuery", func(b *testing.B) {
			benchmarkQuery(b, factory(), true)
		})

		b.Run("Aggregate", func(b *testing.B) {
			benchmarkAggregate(b, factory())
		})

		b.Run("MixedUsage", func(b *testing.B) {
			benchmarkMixedUsage(b, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

const benchEntries = 10_000

func preload(b *testing.B, cache grid.ICache, n int) {
	ctx := context.Background()
	l := grid.NewLoader(cache, grid.DefaultBatchSize)
	for i := 0; i < n; i++ {
		value := map[string]any{"age": i % 100, "state": []string{"MA", "CA", "NY", "TX"}[i%4]}
		if err := l.Add(ctx, fmt.Sprintf("key-%d", i), value); err != nil {
			b.Fatalf("preload failed: %v", err)
		}
	}
	if err := l.Flush(ctx); err != nil {
		b.Fatalf("preload failed: %v", err)
	}
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func benchmarkPut(b *testing.B, cache grid.ICache) {
	b.Cleanup(func() { cache.Close() })
	ctx := context.Background()
	var counter atomic.Int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := counter.Add(1)
			if err := cache.Put(ctx, fmt.Sprintf("key-%d", i), map[string]any{"n": i}); err != nil {
				b.Errorf("Put failed: %v", err)
				return
			}
		}
	})
}

func benchmarkGet(b *testing.B, cache grid.ICache) {
	b.Cleanup(func() { cache.Close() })
	preload(b, cache, benchEntries)
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			if _, _, err := cache.Get(ctx, fmt.Sprintf("key-%d", r.Intn(benchEntries))); err != nil {
				b.Errorf("Get failed: %v", err)
				return
			}
		}
	})
}

func benchmarkPutAll(b *testing.B, cache grid.ICache) {
	b.Cleanup(func() { cache.Close() })
	ctx := context.Background()
	batch := make([]grid.Entry, 100)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for j := range batch {
			batch[j] = grid.Entry{Key: i*len(batch) + j, Value: j}
		}
		if err := cache.PutAll(ctx, batch); err != nil {
			b.Fatalf("PutAll failed: %v", err)
		}
	}
}

func benchmarkInvoke(b *testing.B, cache grid.ICache) {
	b.Cleanup(func() { cache.Close() })
	ctx := context.Background()
	inc := &processor.Increment{Path: "n", Delta: 1}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			if _, err := cache.Invoke(ctx, r.Intn(64), inc); err != nil {
				b.Errorf("Invoke failed: %v", err)
				return
			}
		}
	})
}

func benchmarkQuery(b *testing.B, cache grid.ICache, indexed bool) {
	b.Cleanup(func() { cache.Close() })
	preload(b, cache, benchEntries)
	ctx := context.Background()
	state := filter.Property{Name: "state"}
	if indexed {
		if err := cache.AddIndex(ctx, state, false); err != nil {
			b.Fatalf("AddIndex failed: %v", err)
		}
	}
	pred := filter.Equals{Extractor: state, Value: "MA"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := cache.Keys(ctx, pred); err != nil {
			b.Fatalf("Keys failed: %v", err)
		}
	}
}

func benchmarkAggregate(b *testing.B, cache grid.ICache) {
	b.Cleanup(func() { cache.Close() })
	preload(b, cache, benchEntries)
	ctx := context.Background()
	avg := aggregate.Average(filter.Property{Name: "age"})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := cache.Aggregate(ctx, filter.Always{}, avg); err != nil {
			b.Fatalf("Aggregate failed: %v", err)
		}
	}
}

// 80% reads, 15% writes, 5% processors
func benchmarkMixedUsage(b *testing.B, cache grid.ICache) {
	b.Cleanup(func() { cache.Close() })
	preload(b, cache, benchEntries)
	ctx := context.Background()
	inc := &processor.Increment{Path: "age", Delta: 1}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			key := fmt.Sprintf("key-%d", r.Intn(benchEntries))
			var err error
			switch op := r.Intn(100); {
			case op < 80:
				_, _, err = cache.Get(ctx, key)
			case op < 95:
				err = cache.Put(ctx, key, map[string]any{"age": op, "state": "MA"})
			default:
				_, err = cache.Invoke(ctx, key, inc)
			}
			if err != nil {
				b.Errorf("operation failed: %v", err)
				return
			}
		}
	})
}
