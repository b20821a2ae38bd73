package lockmgr

import (
	"context"
	"time"
)

// ILockManager defines the interface for a lock provider.
type ILockManager interface {
	// AcquireLock acquires the lock for the given key. A timeout > 0 lets the
	// lock expire, so a crashed owner cannot block others forever.
	// Returns whether the lock was acquired and, if so, the owner ID needed
	// to release it.
	AcquireLock(ctx context.Context, key string, timeout time.Duration) (ok bool, ownerID string, err error)

	// ReleaseLock releases the lock for the given key.
	// Returns whether the lock was released. The method will also return
	// true if the lock did not exist.
	ReleaseLock(ctx context.Context, key string, ownerID string) (ok bool, err error)
}
