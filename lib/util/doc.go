// Package util holds small building blocks shared by the grid packages:
//
//   - HashString, the FNV-1a hash used for key ownership and lock striping
//   - Stripes, a fixed set of mutexes addressed by key hash
//   - Queue, an unbounded lock-free multi-producer single-consumer queue that
//     feeds the per-subscription event delivery goroutines
package util
