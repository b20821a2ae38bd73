// Package unix plugs Unix domain sockets into the base stream transport. The
// member endpoint is the socket path, so it suits members and clients on one
// machine. Server buffers default to 64 KB (see
// common.ServerTransportConfig.BufferSize).
package unix
