package dgrid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/dGrid/lib/aggregate"
	"github.com/ValentinKolb/dGrid/lib/events"
	"github.com/ValentinKolb/dGrid/lib/filter"
	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/grid/dgrid/internal"
	"github.com/ValentinKolb/dGrid/lib/processor"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	retries = 5
	log     = logger.GetLogger("grid")
)

// cacheImpl is the concrete implementation of the distributed cache.
// It encapsulates a Dragonboat NodeHost which is used to communicate with the state machine.
type cacheImpl struct {
	nh        *dragonboat.NodeHost
	shardID   uint64
	replicaID uint64
	cs        *client.Session
	timeout   time.Duration
	target    string
}

// Cache is a RAFT replicated cache. It implements grid.ICache and
// grid.IPartialAggregator.
type Cache interface {
	grid.ICache
	grid.IPartialAggregator
}

// NewDistributedCache creates a cache backed by a RAFT shard, which uses
// consensus to keep every replica identical. replicaID names the replica
// hosted by nh; subscriptions listen on it. timeout bounds each proposal
// and read unless ctx expires earlier.
func NewDistributedCache(nh *dragonboat.NodeHost, shardID, replicaID uint64, timeout time.Duration) Cache {
	return &cacheImpl{
		nh:        nh,
		shardID:   shardID,
		replicaID: replicaID,
		cs:        nh.GetNoOPSession(shardID),
		timeout:   timeout,
		target:    fmt.Sprintf("shard %d", shardID),
	}
}

// --------------------------------------------------------------------------
// Internal write and read operations (used by interface methods)
// --------------------------------------------------------------------------

// classify maps dragonboat errors onto the grid taxonomy. A proposal that
// timed out may still be applied later.
func (c *cacheImpl) classify(err error) error {
	switch {
	case errors.Is(err, dragonboat.ErrTimeout):
		return grid.TimeoutError(c.target, err)
	case errors.Is(err, dragonboat.ErrShardNotFound),
		errors.Is(err, dragonboat.ErrShardNotReady),
		errors.Is(err, dragonboat.ErrClosed):
		return grid.InvocationError(c.target, err)
	}
	return grid.Classify(err, c.target)
}

// write proposes a command via SyncPropose and decodes the JSON result into R.
// System busy errors are retried up to 5 times.
func write[R any](ctx context.Context, c *cacheImpl, cmd internal.Command, build error) (R, error) {
	var zero R
	if build != nil {
		return zero, grid.NewError(grid.RetCInvalidOperation, build.Error())
	}
	data := cmd.Serialize()

	for i := 0; i < retries; i++ {
		pctx, cancel := context.WithTimeout(ctx, c.timeout)
		res, err := c.nh.SyncPropose(pctx, c.cs, data)
		cancel()

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: System busy, retrying (%d/%d)...", i+1, retries)
			select {
			case <-time.After(c.timeout / 10):
				continue
			case <-ctx.Done():
				return zero, grid.Classify(ctx.Err(), c.target)
			}
		}
		if err != nil {
			return zero, c.classify(err)
		}
		if res.Value != uint64(grid.RetCSuccess) {
			return zero, grid.FromCode(grid.RetCode(res.Value), string(res.Data))
		}

		var out R
		if len(res.Data) > 0 {
			if err := json.Unmarshal(res.Data, &out); err != nil {
				return zero, grid.NewError(grid.RetCInternalError, fmt.Sprintf("failed to decode %s result: %v", cmd.Type, err))
			}
		}
		return out, nil
	}
	return zero, grid.TimeoutError(c.target, dragonboat.ErrSystemBusy)
}

// read is a generic helper function queries the state machine
// and attempts to convert the response into the expected type R.
//
// SyncRead is linearizable: the local replica first catches up with every
// committed entry. Is the read operation fails due to a system busy error,
// the function retries up to 5 times.
func read[R any](ctx context.Context, c *cacheImpl, q internal.Query) (R, error) {
	var zero R
	for i := 0; i < retries; i++ {
		rctx, cancel := context.WithTimeout(ctx, c.timeout)
		res, err := c.nh.SyncRead(rctx, c.shardID, q)
		cancel()

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: System busy, retrying (%d/%d)...", i+1, retries)
			select {
			case <-time.After(c.timeout / 10):
				continue
			case <-ctx.Done():
				return zero, grid.Classify(ctx.Err(), c.target)
			}
		}
		if err != nil {
			return zero, c.classify(err)
		}

		casted, ok := res.(R)
		if !ok {
			return zero, grid.NewError(grid.RetCInternalError,
				fmt.Sprintf("unexpected type: received %T, expected %T", res, zero))
		}
		return casted, nil
	}
	return zero, grid.TimeoutError(c.target, dragonboat.ErrSystemBusy)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see grid/interface.go)
// --------------------------------------------------------------------------

func (c *cacheImpl) Get(ctx context.Context, key any) (any, bool, error) {
	res, err := read[internal.QueryResult](ctx, c, internal.Query{Type: internal.QueryTGet, Key: key})
	if err != nil {
		return nil, false, err
	}
	return res.Value, res.Ok, nil
}

func (c *cacheImpl) Put(ctx context.Context, key, value any) error {
	cmd, err := internal.NewPut(key, value)
	_, err = write[bool](ctx, c, cmd, err)
	return err
}

func (c *cacheImpl) PutAll(ctx context.Context, entries []grid.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	cmd, err := internal.NewPutAll(entries)
	_, err = write[int](ctx, c, cmd, err)
	return err
}

func (c *cacheImpl) Remove(ctx context.Context, key any) (bool, error) {
	cmd, err := internal.NewRemove(key)
	return write[bool](ctx, c, cmd, err)
}

func (c *cacheImpl) Size(ctx context.Context) (int64, error) {
	return read[int64](ctx, c, internal.Query{Type: internal.QueryTSize})
}

func (c *cacheImpl) Entries(ctx context.Context, pred filter.Predicate) ([]grid.Entry, error) {
	return read[[]filter.Entry](ctx, c, internal.Query{Type: internal.QueryTEntries, Predicate: pred})
}

func (c *cacheImpl) Keys(ctx context.Context, pred filter.Predicate) ([]any, error) {
	return read[[]any](ctx, c, internal.Query{Type: internal.QueryTKeys, Predicate: pred})
}

func (c *cacheImpl) AddIndex(ctx context.Context, x filter.ValueExtractor, ordered bool) error {
	cmd, err := internal.NewAddIndex(x, ordered)
	_, err = write[any](ctx, c, cmd, err)
	return err
}

func (c *cacheImpl) AggregatePartial(ctx context.Context, pred filter.Predicate, agg aggregate.Aggregator) (aggregate.Partial, error) {
	if err := agg.Validate(); err != nil {
		return aggregate.Partial{}, grid.NewError(grid.RetCInvalidOperation, err.Error())
	}
	return read[aggregate.Partial](ctx, c, internal.Query{Type: internal.QueryTAggregatePartial, Predicate: pred, Aggregator: agg})
}

func (c *cacheImpl) Aggregate(ctx context.Context, pred filter.Predicate, agg aggregate.Aggregator) (any, error) {
	part, err := c.AggregatePartial(ctx, pred, agg)
	if err != nil {
		return nil, err
	}
	return agg.Result(part), nil
}

func (c *cacheImpl) Invoke(ctx context.Context, key any, proc processor.EntryProcessor) (processor.Result, error) {
	cmd, err := internal.NewInvoke(key, proc)
	res, err := write[grid.WireResult](ctx, c, cmd, err)
	if err != nil {
		return processor.Result{}, err
	}
	return res.Result(), nil
}

func (c *cacheImpl) InvokeAll(ctx context.Context, pred filter.Predicate, proc processor.EntryProcessor) (map[string]processor.Result, error) {
	cmd, err := internal.NewInvokeAll(pred, proc)
	res, err := write[map[string]grid.WireResult](ctx, c, cmd, err)
	if err != nil {
		return nil, err
	}
	return grid.FromWireMap(res), nil
}

func (c *cacheImpl) Subscribe(ctx context.Context, l events.Listener, s events.Scope) (events.Handle, error) {
	fsm, ok := localReplica(c.shardID, c.replicaID)
	if !ok {
		return "", grid.NewError(grid.RetCUnsupportedOperation,
			fmt.Sprintf("replica %d of shard %d is not hosted here", c.replicaID, c.shardID))
	}
	return fsm.partition.Subscribe(l, s), nil
}

func (c *cacheImpl) Unsubscribe(ctx context.Context, h events.Handle) error {
	fsm, ok := localReplica(c.shardID, c.replicaID)
	if !ok || !fsm.partition.Unsubscribe(h) {
		return grid.NewError(grid.RetCInvalidOperation, "unknown subscription "+string(h))
	}
	return nil
}

// Close is a no-op, the node host is owned by the caller.
func (c *cacheImpl) Close() error {
	return nil
}
