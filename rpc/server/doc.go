// Package server implements the RPC server of a grid member.
// It provides adapters for handling RPC requests to cache, lock manager and
// invocation shards, along with the core server implementation that manages
// shards and request routing.
//
// The package focuses on:
//   - Server-side handling of every grid.ICache operation
//   - Adapter pattern to decouple grid logic from RPC mechanisms
//   - Flexible shard configuration with local and raft replicated caches
//   - Buffered subscriptions that remote clients long-poll for change events
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for all server adapters,
//     with the Handle method that processes incoming requests against a grid.ICache.
//
//   - NewCacheServerAdapter: translates cache requests to grid.ICache calls. Aggregations
//     are answered with partial results so clients can combine the members.
//
//   - NewLockManagerServerAdapter: creates a lockmgr.ILockManager on top of the
//     shard's cache.
//
//   - NewInvocationServerAdapter: runs named invocables. Every member registers
//     "compile" (the query compiler), "member-info" and "ping".
//
//   - NewRPCServer: Factory function creating a configured server with the specified
//     transport and serializer mechanisms.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Shards: []common.ServerShard{
//	    {ShardID: 1, Type: common.ShardTypeInvocationService},
//	    {ShardID: 100, Type: common.ShardTypeLocalCache},
//	    {ShardID: 200, Type: common.ShardTypeLocalLockManager},
//	  },
//	  Transport:     common.ServerTransportConfig{Endpoint: "0.0.0.0:8080"},
//	  TimeoutSecond: 5,
//	  LogLevel:      "info",
//	}
//
//	s := server.NewRPCServer(config, tcp.NewTCPServerTransport(), serializer.NewBinarySerializer())
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Shard types, which can be mixed within a single server:
//
//   - ShardTypeLocalCache: this member's partition of a partitioned cache.
//
//   - ShardTypeRemoteCache: a cache replicated with raft. The RAFT configuration
//     (RTTMillisecond, SnapshotEntries, CompactionOverhead, DataDir, ReplicaID and
//     ClusterMembers) must be set.
//
//   - ShardTypeLocalLockManager / ShardTypeRemoteLockManager: lock managers backed by a
//     local or a replicated cache.
//
//   - ShardTypeInvocationService: the invocables, without data.
//
// Remote Subscriptions:
//
//	A subscribe request registers a listener on the shard's cache that buffers events
//	(up to SubscriptionBuffer, the oldest are dropped). Poll returns the buffer or waits
//	for the first event. Subscriptions not polled for SubscriptionLeaseSecond are dropped
//	and polls for them fail with InvalidOperation.
//
// Thread Safety:
//
//	The server implementation is thread-safe and can handle concurrent requests
//	across multiple connections. Each request is processed independently.
//	Serve should be called only once; Close may be called from any goroutine.
package server
