// Package base holds the stream transport shared by the tcp and unix packages.
// Those packages only supply a connector that dials or listens; framing,
// pooling, request correlation and retries live here.
//
// Frame layout (big endian):
//
//	shardID uint64 | requestID uint64 | length uint32 | payload
//
// The client keeps ConnectionsPerEndpoint connections per member and picks one
// round robin for every request. A reader goroutine per connection matches
// responses to waiting requests by requestID. Header and payload go out in one
// write through net.Buffers.
//
// When a connection breaks, every request waiting on it fails at once and the
// reader re-dials with exponential backoff. Sends honor their context: a
// cancelled caller stops waiting and is not retried.
//
// The server serves each connection on its own goroutine and hands every frame
// to the registered handler, reusing read buffers from a sync.Pool. Close stops
// the listener, drops open connections and cancels the handler context.
package base
