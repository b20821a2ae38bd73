// Package cmd implements the command-line interface of dGrid. It provides a
// hierarchical command structure for running grid members and for
// interacting with them as a client.
//
// The package is organized into several subpackages:
//
//   - cache: Commands for cache operations (get, put, query, aggregate, watch, load, perf, ...)
//   - lock: Commands for locking operations (acquire, release)
//   - serve: Commands for starting and configuring a grid member
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See dgrid -help for a list of all commands.
package cmd
