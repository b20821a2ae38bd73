// Package internal provides the communication protocol structures and serialization
// logic for the dgrid package. It defines the format of the commands stored in the
// RAFT log and the queries executed against the local replica.
//
// This package is intended for internal use by the dgrid implementation and should
// not be imported directly by external code.
//
//   - Command System: write operations (Put, PutAll, Remove, Invoke, InvokeAll,
//     AddIndex). Commands are serialized, proposed to the RAFT shard and applied
//     by every replica's state machine.
//
//   - Query System: read operations (Get, Size, Entries, Keys, AggregatePartial).
//     Queries are executed locally on the state machine and therefore do not
//     require serialization.
//
// Command Format:
//
//	- 1 byte: Command type
//	- 4 bytes: Target length (uint32, big endian)
//	- N bytes: Target (encoded key, predicate or extractor)
//	- M bytes: Payload (encoded value, batch, processor or index flags; optional)
//
//	Keys and values are JSON documents, predicates, extractors and processors
//	use their registered wire form (see packages filter and processor).
package internal
