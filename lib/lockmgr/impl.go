package lockmgr

import (
	"context"
	"fmt"
	"time"

	"github.com/ValentinKolb/dGrid/lib/grid"
)

type lockMgrImpl struct {
	cache grid.ICache
	now   func() time.Time
}

// NewLockManager creates a lock manager storing its locks in cache.
func NewLockManager(cache grid.ICache) ILockManager {
	return &lockMgrImpl{
		cache: cache,
		now:   time.Now,
	}
}

func (lm *lockMgrImpl) AcquireLock(ctx context.Context, key string, timeout time.Duration) (bool, string, error) {
	ownerID := generateOwnerID()

	now := lm.now()
	proc := &Acquire{Owner: ownerID, Now: now.UnixMilli()}
	if timeout > 0 {
		proc.ExpiresAt = now.Add(timeout).UnixMilli()
	}

	// the check and the write happen in one processor, atomically for the key
	res, err := lm.cache.Invoke(ctx, key, proc)
	if err != nil {
		return false, "", err
	}
	if res.Err != nil {
		return false, "", res.Err
	}
	ok, isBool := res.Value.(bool)
	if !isBool {
		return false, "", grid.NewError(grid.RetCInternalError, fmt.Sprintf("unexpected lock result %v", res.Value))
	}
	if !ok {
		return false, "", nil
	}
	return true, ownerID, nil
}

func (lm *lockMgrImpl) ReleaseLock(ctx context.Context, key string, ownerID string) (bool, error) {
	res, err := lm.cache.Invoke(ctx, key, &Release{Owner: ownerID})
	if err != nil {
		return false, err
	}
	if res.Err != nil {
		return false, res.Err
	}
	ok, _ := res.Value.(bool)
	return ok, nil
}
