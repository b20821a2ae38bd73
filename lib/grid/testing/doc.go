// Package testing provides standardised tests and benchmarks for cache
// implementations that satisfy the grid.ICache interface.
//
// The package contains:
//   - testing: a conformance suite for the ICache contract (key operations,
//     queries with and without indexes, aggregations, entry processors and
//     change subscriptions)
//   - benchmark: throughput of common cache operations
//
// Every implementation (local, RAFT replicated, RPC client) runs the same
// suite, so they are interchangeable behind the interface.
//
// Example usage:
//
//	factory := func() grid.ICache {
//		return lgrid.NewLocalCache()
//	}
//
//	gridtesting.RunCacheTests(t, "LocalCache", factory)
//	gridtesting.RunCacheBenchmarks(b, "LocalCache", factory)
package testing
