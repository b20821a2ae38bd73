// Package tcp implements the TCP socket transport of the grid's RPC system.
// It provides concrete implementations of the base package's connector
// interfaces for TCP connections.
//
// This package builds on the base package's transport functionality, inheriting its
// connection pooling, buffer reuse and request routing. See the base package
// documentation for the frame format and the reconnect behavior.
//
// Key Components:
//
//   - clientConnector: TCP-specific implementation of base.IClientConnector,
//     dials the member endpoint and disables Nagle's algorithm
//
//   - serverConnector: TCP-specific implementation of base.IServerConnector,
//     applies the no-delay and keep-alive options of common.ServerTransportConfig
//
// The default server buffer size is 512 KB, it can be overridden with
// common.ServerTransportConfig.BufferSize.
package tcp
