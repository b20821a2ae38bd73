// Package common provides the data structures shared by the RPC client and
// server of the data grid: the Message protocol, configuration structures
// and logging.
//
// Key Components:
//
//   - Message: the single request/response structure of all RPC traffic.
//     Documents, predicates, processors and results travel as JSON inside its
//     byte fields. Factory functions build requests and responses, accessors
//     decode them. Errors cross the wire as a grid.RetCode plus message, so
//     AsError rebuilds an error of the same kind on the client.
//
//   - MessageType: enumeration of all operations, grouped into cache
//     operations, change notifications, the invocation service and locks.
//
//   - ServerConfig: configuration of a server member, including its shards,
//     RAFT parameters and transport settings. Converts to the Dragonboat
//     configuration types.
//
//   - ClientConfig: member endpoints, timeouts and retry behavior of a client.
//
//   - Logger: a Dragonboat logger factory with consistent formatting, so the
//     RAFT library and the grid log in the same format.
package common
