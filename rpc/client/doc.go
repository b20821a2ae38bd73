// Package client implements the client side of the grid. It provides the
// Invocation Channel and, on top of it, remote implementations of
// grid.ICache, grid.ICompiler and lockmgr.ILockManager.
//
// The package focuses on:
//   - Sending requests to one, some or all members of the grid
//   - Routing key operations to the member owning the key
//   - Merging the answers of partitioned caches (unions, combined partial aggregates)
//   - Delivering remote change events to local listeners
//
// Key Components:
//
//   - InvocationChannel: owns one transport per member. Invoke sends a request to a
//     Target (AllMembers, MembersOwning, SingleNamedService) concurrently and returns
//     one Result per member. Transport failures fail the whole call with an
//     InvocationError, an expired deadline with a Timeout error. Errors reported by a
//     member are returned in its Result.
//
//   - NewRPCCache: a grid.ICache for a cache shard. Partitioned shards fan queries out
//     to every member, Replicated shards send them to one member.
//
//   - NewRemoteCompiler: a grid.ICompiler calling the compile invocable of an
//     invocation shard. Wrap it with grid.NewCachingCompiler to avoid round trips.
//
//   - NewRPCLockMgr: a lockmgr.ILockManager for a lock shard.
//
// Change Notifications:
//
//	Subscribe registers a buffered subscription on every relevant member and starts one
//	long-polling goroutine per member. Events are handed to a local events.Subscription,
//	so listener callbacks run on one goroutine per subscription, in order per key.
//	When a member no longer knows the subscription (its lease expired) the poller
//	registers it again; events in between are lost.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  Endpoints:     []string{"localhost:8080", "localhost:8081"},
//	  TimeoutSecond: 5,
//	  RetryCount:    3,
//	}
//
//	ch, _ := client.NewInvocationChannel(config, tcp.NewTCPClientTransport, serializer.NewBinarySerializer())
//	defer ch.Close()
//
//	cache := client.NewRPCCache(ch, 100, client.Partitioned)
//	_ = cache.Put(ctx, "john", map[string]any{"age": 42})
//
//	compiler := grid.NewCachingCompiler(client.NewRemoteCompiler(ch, 1, ""), 0)
//	older, _ := compiler.CompileFilter(ctx, "age > ?1", grid.Positional(40))
//	keys, _ := cache.Keys(ctx, older)
//
// Thread Safety:
//
//	All client implementations are thread-safe and can be used concurrently from
//	multiple goroutines without additional synchronization.
package client
