// Package dgrid implements a replicated, fault-tolerant cache using the
// Dragonboat RAFT consensus library. Every replica of a shard holds the full
// dataset in a partition; the cache is the grid.ICache implementation to use
// when a dataset must survive the loss of members.
//
// Architecture:
//
//   - Cache Client: implements grid.ICache. It serializes operations into
//     commands, proposes them to the shard and decodes the results.
//
//   - State Machine: a Dragonboat IConcurrentStateMachine holding a
//     partition.Partition. Commands are applied to it in log order on every
//     replica; queries run against the local replica.
//
//   - Communication Protocol: defined in the internal package (Command and
//     Query with a compact binary encoding for the log).
//
// Write Operations:
//
//	Put, PutAll, Remove, Invoke, InvokeAll and AddIndex follow this flow:
//
//	1. The operation is serialized into a Command
//	2. The Command is proposed via SyncPropose
//	3. The leader replicates it to a majority of replicas
//	4. Once committed, every replica applies it (Update in statemachine.go)
//	5. The result (RetCode plus JSON data) is returned to the caller
//
//	Entry processors travel in the log in their registered wire form and run
//	on every replica. They must therefore be deterministic; timestamps and
//	similar inputs belong in the processor's arguments.
//
// Read Operations:
//
//	Get, Size, Entries, Keys and aggregations use SyncRead, which waits until
//	the local replica has applied every committed entry, so reads are
//	linearizable.
//
// Events:
//
//	Each replica raises change events while applying commands. Subscribe
//	attaches to the replica hosted by the cache's own node host, so
//	subscribers see each change once, in log order.
//
// Error Handling and Retries:
//
//	ErrSystemBusy is retried up to five times. Unknown or not yet ready shards
//	become grid InvocationErrors, expired deadlines become Timeouts. A timed
//	out proposal may still be applied later.
//
// Snapshotting and Recovery:
//
//	PrepareSnapshot captures the partition's immutable slots, SaveSnapshot
//	writes them (together with the index definitions) while new commands are
//	applied. On restart a replica loads the latest snapshot and replays the
//	log entries committed after it.
//
// Usage:
//
//	nh, err := dragonboat.NewNodeHost(nodeHostConfig)
//	if err != nil { ... }
//
//	err = nh.StartConcurrentReplica(
//	    clusterMembers,
//	    false,
//	    dgrid.CreateStateMachineFactory(),
//	    shardConfig)
//	if err != nil { ... }
//
//	cache := dgrid.NewDistributedCache(nh, shardID, replicaID, 5*time.Second)
package dgrid
