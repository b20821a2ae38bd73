package client

import (
	"context"
	"time"

	"github.com/ValentinKolb/dGrid/lib/doc"
	"github.com/ValentinKolb/dGrid/lib/lockmgr"
	"github.com/ValentinKolb/dGrid/rpc/common"
)

// NewRPCLockMgr creates a new RPC ILockManager for the lock shard shardID.
// Each lock lives on the member owning its key, like a cache entry.
func NewRPCLockMgr(ch *InvocationChannel, shardID uint64) lockmgr.ILockManager {
	return &rpcLockMgr{ch: ch, shardID: shardID}
}

type rpcLockMgr struct {
	ch      *InvocationChannel
	shardID uint64
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the lockmgr package in interface.go)
// --------------------------------------------------------------------------

func (i *rpcLockMgr) AcquireLock(ctx context.Context, key string, timeout time.Duration) (ok bool, ownerID string, err error) {
	resp, err := i.send(ctx, key, common.NewAcquireRequest(key, timeout))
	if err != nil {
		return false, "", err
	}
	return resp.Ok, resp.Name, nil
}

func (i *rpcLockMgr) ReleaseLock(ctx context.Context, key string, ownerID string) (ok bool, err error) {
	resp, err := i.send(ctx, key, common.NewReleaseRequest(key, ownerID))
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// send routes the request to the owner of the lock key
func (i *rpcLockMgr) send(ctx context.Context, key string, req *common.Message) (*common.Message, error) {
	id, err := doc.ID(key)
	if err != nil {
		return nil, invalid("lock key", err)
	}
	results, err := i.ch.Invoke(ctx, i.shardID, req, MembersOwning(id))
	if err != nil {
		return nil, err
	}
	r := results[i.ch.Owner(id)]
	if r.Err != nil {
		return nil, r.Err
	}
	return r.Response, nil
}
