package server

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/lockmgr"
	"github.com/ValentinKolb/dGrid/rpc/common"
)

func NewLockManagerServerAdapter() IRPCServerAdapter {
	return &lockMgrServerAdapter{}
}

type lockMgrServerAdapter struct{}

func (adapter *lockMgrServerAdapter) Handle(ctx context.Context, req *common.Message, cache grid.ICache) (resp *common.Message) {

	// Check for nil cache
	if cache == nil {
		return common.NewErrorResponse(grid.RetCInternalError, "handler: cache is nil")
	}

	// Create lock manager, locks are entries of the shard's cache
	locks := lockmgr.NewLockManager(cache)

	// Handle different message types
	switch req.MsgType {
	case common.MsgTLCKAcquire:
		ok, ownerID, err := locks.AcquireLock(ctx, string(req.Key), req.Wait())
		return common.NewAcquireResponse(ok, ownerID, err)
	case common.MsgTLCKRelease:
		ok, err := locks.ReleaseLock(ctx, string(req.Key), req.Name)
		return common.NewReleaseResponse(ok, err)
	default:
		return common.NewErrorResponse(grid.RetCUnsupportedOperation,
			fmt.Sprintf("lock manager adapter: unsupported message type %s", req.MsgType))
	}
}
