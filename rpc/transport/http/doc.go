// Package http carries grid requests as HTTP POSTs to /{shardId}, one request
// per call, with the serialized Message as body. It is slower than the stream
// transports but passes through proxies and is easy to inspect.
//
// The server also answers GET /metrics with the member's VictoriaMetrics
// counters in Prometheus text format. Handlers run with the request context, so
// a client that disconnects cancels the work.
//
// The client rotates over the configured endpoints and retries failed posts
// RetryCount times.
package http
