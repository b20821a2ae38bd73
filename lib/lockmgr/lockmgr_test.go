package lockmgr

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dGrid/lib/grid/lgrid"
)

func newManager() (*lockMgrImpl, *time.Time) {
	now := time.Unix(1_700_000_000, 0)
	lm := NewLockManager(lgrid.NewLocalCache()).(*lockMgrImpl)
	lm.now = func() time.Time { return now }
	return lm, &now
}

func TestAcquireRelease(t *testing.T) {
	lm, _ := newManager()
	ctx := context.Background()

	ok, owner, err := lm.AcquireLock(ctx, "res", 0)
	if err != nil || !ok || owner == "" {
		t.Fatalf("expected to acquire a free lock: %v %q %v", ok, owner, err)
	}

	ok, other, err := lm.AcquireLock(ctx, "res", 0)
	if err != nil || ok || other != "" {
		t.Fatalf("expected held lock to be refused: %v %q %v", ok, other, err)
	}

	if ok, _ := lm.ReleaseLock(ctx, "res", "someone-else"); ok {
		t.Error("expected release by a non owner to fail")
	}
	if ok, _ := lm.ReleaseLock(ctx, "res", owner); !ok {
		t.Error("expected release by the owner to succeed")
	}
	if ok, _ := lm.ReleaseLock(ctx, "res", owner); !ok {
		t.Error("expected release of a missing lock to succeed")
	}
	if ok, _, _ := lm.AcquireLock(ctx, "res", 0); !ok {
		t.Error("expected released lock to be free")
	}
}

func TestLockExpiry(t *testing.T) {
	lm, now := newManager()
	ctx := context.Background()

	if ok, _, _ := lm.AcquireLock(ctx, "res", 10*time.Second); !ok {
		t.Fatal("expected to acquire")
	}
	*now = now.Add(5 * time.Second)
	if ok, _, _ := lm.AcquireLock(ctx, "res", 0); ok {
		t.Fatal("lock must still be held")
	}
	*now = now.Add(6 * time.Second)
	if ok, _, _ := lm.AcquireLock(ctx, "res", 0); !ok {
		t.Fatal("expired lock must be free")
	}
}

func TestMutualExclusion(t *testing.T) {
	lm := NewLockManager(lgrid.NewLocalCache())
	ctx := context.Background()

	var holders, violations atomic.Int32
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				ok, owner, err := lm.AcquireLock(ctx, "shared", 0)
				if err != nil {
					t.Errorf("AcquireLock failed: %v", err)
					return
				}
				if !ok {
					continue
				}
				if holders.Add(1) > 1 {
					violations.Add(1)
				}
				holders.Add(-1)
				if ok, err := lm.ReleaseLock(ctx, "shared", owner); !ok || err != nil {
					t.Errorf("ReleaseLock failed: %v %v", ok, err)
				}
			}
		}()
	}
	wg.Wait()
	if v := violations.Load(); v != 0 {
		t.Errorf("%d concurrent holders observed", v)
	}
}
