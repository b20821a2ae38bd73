// Package rpc is the network layer of the data grid. It lets clients use
// caches, locks and the query compiler of remote members.
//
// The package is organized into several subpackages:
//
//   - common: the Message protocol, configuration structures and logging.
//
//   - transport: framed request/response transports (TCP, Unix sockets, HTTP).
//
//   - serializer: Message codecs (Binary, JSON, GOB, MessagePack).
//
//   - client: the Invocation Channel and the remote grid.ICache, compiler and
//     lock manager built on it.
//
//   - server: shard routing and the adapters that serve cache, invocation and
//     lock shards.
package rpc
