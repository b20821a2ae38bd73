// Package grid defines the access layer of the data grid: the ICache
// interface every cache implementation and client shares, the error
// taxonomy, query compilation and batch loading.
//
// Key Components:
//
//   - ICache Interface: get/put by key, batched upserts, declarative queries,
//     aggregations, entry processors that run where the data lives, and
//     change subscriptions. Keys and values are JSON-shaped documents (see
//     package doc); a key is identified by its canonical id.
//
//   - Error System: *Error carries a RetCode (CompileError, InvocationError,
//     Timeout, PerEntryError, ...) plus the query text and target involved.
//     Codes survive the RPC layer, so a remote client returns the same kind
//     of error a local cache would. Invocation and timeout errors are
//     retryable, compile errors are not.
//
//   - ICompiler: turns query text and bindings into predicates and
//     extractors. NewLocalCompiler runs the qlang grammar in process, the RPC
//     client ships the text to a compiler member. NewCachingCompiler memoises
//     any compiler by (query, bindings) signature.
//
//   - Loader: buffers entries and flushes them through PutAll in batches.
//
// Implementations:
//
//	- Local Grid (lgrid): one in-memory partition, no replication.
//	  Available in "github.com/ValentinKolb/dGrid/lib/grid/lgrid".
//
//	- Distributed Grid (dgrid): a partition replicated with Dragonboat RAFT.
//	  Writes and processors are proposed to the shard and applied by every
//	  replica, reads are linearizable.
//	  Available in "github.com/ValentinKolb/dGrid/lib/grid/dgrid".
//
//	- RPC client (rpc/client): an ICache spread over many server members,
//	  each owning the keys that hash to it.
//
// Usage Example:
//
//	cache := lgrid.NewLocalCache()
//	defer cache.Close()
//
//	_ = cache.Put(ctx, map[string]any{"firstName": "John", "lastName": "Doe"}, contact)
//
//	pred, _ := compiler.CompileFilter(ctx, "age > ?1", grid.Positional(58))
//	older, _ := cache.Entries(ctx, pred)
//	avg, _ := cache.Aggregate(ctx, filter.Always{}, aggregate.Average(filter.Property{Name: "age"}))
package grid
