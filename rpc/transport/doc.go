// Package transport declares how grid clients and members exchange bytes.
//
// An IRPCClientTransport connects to one member and sends a request for a
// shard, bound to a context so deadlines reach the wire. An IRPCServerTransport
// listens on the member endpoint and passes every request to a
// ServerHandleFunc. The tcp, unix and http packages implement both sides.
package transport
