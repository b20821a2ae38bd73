// Package lockmgr implements a locking mechanism on top of any cache that
// implements grid.ICache. It provides a simple yet robust way to coordinate
// access to shared resources across multiple processes or nodes.
//
// The lock manager only ever stores in the provided cache and has no other
// internal state. Therefore it is safe to be created multiple times on the
// same cache. As long as the same cache is used every time, all locks will
// work as expected.
//
// Core Functionality:
//   - Lock acquisition with ownership verification
//   - Automatic lock expiration through configurable timeouts
//   - Safe release operations that verify ownership
//
// Implementation Approach:
//
//	Locks are entry processors that run where the lock entry lives, while the
//	partition holds the entry's key lock:
//
//	- Lock Acquisition: the lock-acquire processor writes {owner, expiresAt}
//	  when the entry is absent, expired or already owned by the caller. The
//	  owner ID is a random UUID.
//
//	- Timeouts: the caller's clock is passed as an argument, so every replica
//	  of a replicated cache decides the same way. A lock whose expiresAt lies
//	  in the past is free.
//
//	- Safe Release: the lock-release processor removes the entry only if the
//	  owner matches.
//
// Distributed Considerations:
//
//	With the replicated cache (dgrid) the lock manager provides
//	consensus-based distributed locking. Expiry relies on the clients'
//	clocks being roughly in sync.
//
// Usage Example:
//
//	locks := lockmgr.NewLockManager(cache)
//
//	acquired, ownerID, err := locks.AcquireLock(ctx, "resource:123", 30*time.Second)
//	if err != nil {
//	    // Handle error
//	}
//
//	if acquired {
//	    // Use the resource safely
//	    // ...
//	    released, err := locks.ReleaseLock(ctx, "resource:123", ownerID)
//	}
//
// Performance Impact:
//
//	Each lock operation is a single Invoke round trip.
package lockmgr
