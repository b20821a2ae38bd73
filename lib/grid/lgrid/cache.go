// Package lgrid implements grid.ICache on a single in-memory partition.
//
// The local cache is not distributed and only works on a single node. It
// is the building block a server member uses for its partition of a
// partitioned cache, and it is the cache to use in tests and in embedded,
// single process deployments.
package lgrid

import (
	"context"

	"github.com/ValentinKolb/dGrid/lib/aggregate"
	"github.com/ValentinKolb/dGrid/lib/events"
	"github.com/ValentinKolb/dGrid/lib/filter"
	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/grid/partition"
	"github.com/ValentinKolb/dGrid/lib/processor"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("grid")

type cacheImpl struct {
	p *partition.Partition
}

// Cache is a local cache. It implements grid.ICache and
// grid.IPartialAggregator.
type Cache interface {
	grid.ICache
	grid.IPartialAggregator
	// Partition exposes the underlying partition, e.g. for snapshots.
	Partition() *partition.Partition
}

// NewLocalCache creates a new, empty local cache. Options are passed to the
// partition; see partition.WithWorkers.
func NewLocalCache(opts ...partition.Option) Cache {
	p, err := partition.New(opts...)
	if err != nil {
		// only a worker pool of invalid size fails, fall back to sequential
		log.Warningf("failed to create partition with options, using defaults: %v", err)
		p, _ = partition.New()
	}
	return &cacheImpl{p: p}
}

func (c *cacheImpl) Partition() *partition.Partition { return c.p }

// check fails fast when the caller already gave up
func check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return grid.Classify(err, "local")
	}
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see grid/interface.go)
// --------------------------------------------------------------------------

func (c *cacheImpl) Get(ctx context.Context, key any) (any, bool, error) {
	if err := check(ctx); err != nil {
		return nil, false, err
	}
	return c.p.Get(key)
}

func (c *cacheImpl) Put(ctx context.Context, key, value any) error {
	if err := check(ctx); err != nil {
		return err
	}
	_, _, err := c.p.Put(key, value)
	return err
}

func (c *cacheImpl) PutAll(ctx context.Context, entries []grid.Entry) error {
	if err := check(ctx); err != nil {
		return err
	}
	return c.p.PutAll(entries)
}

func (c *cacheImpl) Remove(ctx context.Context, key any) (bool, error) {
	if err := check(ctx); err != nil {
		return false, err
	}
	return c.p.Remove(key)
}

func (c *cacheImpl) Size(ctx context.Context) (int64, error) {
	if err := check(ctx); err != nil {
		return 0, err
	}
	return c.p.Size(), nil
}

func (c *cacheImpl) Entries(ctx context.Context, pred filter.Predicate) ([]grid.Entry, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	return c.p.Entries(pred), nil
}

func (c *cacheImpl) Keys(ctx context.Context, pred filter.Predicate) ([]any, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	return c.p.Keys(pred), nil
}

func (c *cacheImpl) AddIndex(ctx context.Context, x filter.ValueExtractor, ordered bool) error {
	if err := check(ctx); err != nil {
		return err
	}
	return c.p.AddIndex(x, ordered)
}

func (c *cacheImpl) Aggregate(ctx context.Context, pred filter.Predicate, agg aggregate.Aggregator) (any, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	return c.p.Aggregate(pred, agg)
}

func (c *cacheImpl) AggregatePartial(ctx context.Context, pred filter.Predicate, agg aggregate.Aggregator) (aggregate.Partial, error) {
	if err := check(ctx); err != nil {
		return aggregate.Partial{}, err
	}
	return c.p.AggregatePartial(pred, agg)
}

func (c *cacheImpl) Invoke(ctx context.Context, key any, proc processor.EntryProcessor) (processor.Result, error) {
	if err := check(ctx); err != nil {
		return processor.Result{}, err
	}
	return c.p.Invoke(key, proc)
}

func (c *cacheImpl) InvokeAll(ctx context.Context, pred filter.Predicate, proc processor.EntryProcessor) (map[string]processor.Result, error) {
	if err := check(ctx); err != nil {
		return nil, err
	}
	return c.p.InvokeAll(ctx, pred, proc)
}

func (c *cacheImpl) Subscribe(ctx context.Context, l events.Listener, s events.Scope) (events.Handle, error) {
	if err := check(ctx); err != nil {
		return "", err
	}
	return c.p.Subscribe(l, s), nil
}

func (c *cacheImpl) Unsubscribe(ctx context.Context, h events.Handle) error {
	if !c.p.Unsubscribe(h) {
		return grid.NewError(grid.RetCInvalidOperation, "unknown subscription "+string(h))
	}
	return nil
}

func (c *cacheImpl) Close() error {
	c.p.Close()
	return nil
}
