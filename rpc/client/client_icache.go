package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dGrid/lib/aggregate"
	"github.com/ValentinKolb/dGrid/lib/doc"
	"github.com/ValentinKolb/dGrid/lib/events"
	"github.com/ValentinKolb/dGrid/lib/filter"
	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/processor"
	"github.com/ValentinKolb/dGrid/rpc/common"
	"github.com/puzpuzpuz/xsync/v3"
)

// Distribution tells the client how a cache shard is laid out on the members.
type Distribution int

const (
	// Partitioned shards keep a disjoint part of the data on every member.
	// Key operations go to the owner, queries fan out to all members.
	Partitioned Distribution = iota
	// Replicated shards hold the full data set on every member (raft).
	// Queries go to a single member.
	Replicated
)

func (d Distribution) String() string {
	if d == Replicated {
		return "replicated"
	}
	return "partitioned"
}

// NewRPCCache creates a grid.ICache that forwards every operation through
// the Invocation Channel to the cache shard shardID. The channel is shared
// and not closed by the cache.
func NewRPCCache(ch *InvocationChannel, shardID uint64, dist Distribution) grid.ICache {
	return &rpcCache{
		ch:      ch,
		shardID: shardID,
		dist:    dist,
		subs:    xsync.NewMapOf[events.Handle, *remoteSubscription](),
	}
}

type rpcCache struct {
	ch      *InvocationChannel
	shardID uint64
	dist    Distribution
	next    atomic.Uint64 // rotates the member of replicated reads
	subs    *xsync.MapOf[events.Handle, *remoteSubscription]
}

// --------------------------------------------------------------------------
// Interface Methods (docu see grid/interface.go)
// --------------------------------------------------------------------------

func (c *rpcCache) Get(ctx context.Context, key any) (any, bool, error) {
	req, err := common.NewGetRequest(key)
	if err != nil {
		return nil, false, invalid("key", err)
	}
	resp, err := c.keyed(ctx, key, req)
	if err != nil || !resp.Ok {
		return nil, false, err
	}
	value, err := resp.ValueDoc()
	if err != nil {
		return nil, false, decodeFailed(req.MsgType, err)
	}
	return value, true, nil
}

func (c *rpcCache) Put(ctx context.Context, key, value any) error {
	req, err := common.NewPutRequest(key, value)
	if err != nil {
		return invalid("entry", err)
	}
	_, err = c.keyed(ctx, key, req)
	return err
}

func (c *rpcCache) PutAll(ctx context.Context, entries []grid.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	// group the batch by owner, one request per member
	batches := make(map[MemberID][]filter.Entry)
	for _, e := range entries {
		id, err := doc.ID(e.Key)
		if err != nil {
			return invalid("key", err)
		}
		owner := c.ch.Owner(id)
		batches[owner] = append(batches[owner], e)
	}

	reqs := make(map[MemberID]*common.Message, len(batches))
	for member, batch := range batches {
		req, err := common.NewPutAllRequest(batch)
		if err != nil {
			return invalid("entries", err)
		}
		reqs[member] = req
	}

	results, err := c.ch.InvokeEach(ctx, c.shardID, reqs)
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}

func (c *rpcCache) Remove(ctx context.Context, key any) (bool, error) {
	req, err := common.NewRemoveRequest(key)
	if err != nil {
		return false, invalid("key", err)
	}
	resp, err := c.keyed(ctx, key, req)
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (c *rpcCache) Size(ctx context.Context) (int64, error) {
	req := common.NewSizeRequest()
	responses, err := c.broad(ctx, req)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, resp := range responses {
		var n int64
		if err := resp.Result(&n); err != nil {
			return 0, decodeFailed(req.MsgType, err)
		}
		total += n
	}
	return total, nil
}

func (c *rpcCache) Entries(ctx context.Context, p filter.Predicate) ([]grid.Entry, error) {
	req, err := common.NewEntriesRequest(p)
	if err != nil {
		return nil, invalid("predicate", err)
	}
	responses, err := c.broad(ctx, req)
	if err != nil {
		return nil, err
	}
	var out []grid.Entry
	for _, resp := range responses {
		if len(resp.Value) == 0 {
			continue
		}
		entries, err := resp.Entries()
		if err != nil {
			return nil, decodeFailed(req.MsgType, err)
		}
		out = append(out, entries...)
	}
	return out, nil
}

func (c *rpcCache) Keys(ctx context.Context, p filter.Predicate) ([]any, error) {
	req, err := common.NewKeysRequest(p)
	if err != nil {
		return nil, invalid("predicate", err)
	}
	responses, err := c.broad(ctx, req)
	if err != nil {
		return nil, err
	}
	var out []any
	for _, resp := range responses {
		var keys []any
		if err := resp.Result(&keys); err != nil {
			return nil, decodeFailed(req.MsgType, err)
		}
		out = append(out, keys...)
	}
	return out, nil
}

func (c *rpcCache) AddIndex(ctx context.Context, x filter.ValueExtractor, ordered bool) error {
	req, err := common.NewAddIndexRequest(x, ordered)
	if err != nil {
		return invalid("extractor", err)
	}
	_, err = c.broad(ctx, req)
	return err
}

func (c *rpcCache) Aggregate(ctx context.Context, p filter.Predicate, agg aggregate.Aggregator) (any, error) {
	if err := agg.Validate(); err != nil {
		return nil, invalid("aggregator", err)
	}
	req, err := common.NewAggregateRequest(p, agg)
	if err != nil {
		return nil, invalid("aggregation", err)
	}
	responses, err := c.broad(ctx, req)
	if err != nil {
		return nil, err
	}

	// members answer with partials, merged here
	var total aggregate.Partial
	for _, resp := range responses {
		var part aggregate.Partial
		if err := resp.Result(&part); err != nil {
			return nil, decodeFailed(req.MsgType, err)
		}
		total = aggregate.Combine(total, part)
	}
	return agg.Result(total), nil
}

func (c *rpcCache) Invoke(ctx context.Context, key any, proc processor.EntryProcessor) (processor.Result, error) {
	req, err := common.NewInvokeRequest(key, proc)
	if err != nil {
		return processor.Result{}, invalid("processor", err)
	}
	resp, err := c.keyed(ctx, key, req)
	if err != nil {
		return processor.Result{}, err
	}
	var w grid.WireResult
	if err := resp.Result(&w); err != nil {
		return processor.Result{}, decodeFailed(req.MsgType, err)
	}
	return w.Result(), nil
}

func (c *rpcCache) InvokeAll(ctx context.Context, p filter.Predicate, proc processor.EntryProcessor) (map[string]processor.Result, error) {
	req, err := common.NewInvokeAllRequest(p, proc)
	if err != nil {
		return nil, invalid("processor", err)
	}
	responses, err := c.broad(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make(map[string]processor.Result)
	for _, resp := range responses {
		var part map[string]grid.WireResult
		if err := resp.Result(&part); err != nil {
			return nil, decodeFailed(req.MsgType, err)
		}
		for id, r := range grid.FromWireMap(part) {
			out[id] = r
		}
	}
	return out, nil
}

func (c *rpcCache) Subscribe(ctx context.Context, l events.Listener, s events.Scope) (events.Handle, error) {
	if l == nil {
		return "", grid.NewError(grid.RetCInvalidOperation, "listener is nil")
	}
	req, err := common.NewSubscribeRequest(s)
	if err != nil {
		return "", invalid("scope", err)
	}

	results, err := c.ch.Invoke(ctx, c.shardID, req, c.subscribeTarget(s))
	if err != nil {
		// subscriptions registered on other members expire with their lease
		return "", err
	}

	handle := events.NewHandle()
	sub := &remoteSubscription{
		cache: c,
		scope: s,
		// the members already filter by scope
		local:  events.NewSubscription(handle, l, events.AllEntries()),
		remote: make(map[MemberID]events.Handle, len(results)),
	}
	for member, r := range results {
		if r.Err != nil {
			sub.unregister(context.Background())
			sub.local.Close()
			return "", r.Err
		}
		sub.remote[member] = events.Handle(r.Response.Name)
	}

	sub.start()
	c.subs.Store(handle, sub)
	return handle, nil
}

func (c *rpcCache) Unsubscribe(ctx context.Context, h events.Handle) error {
	sub, ok := c.subs.LoadAndDelete(h)
	if !ok {
		return grid.NewError(grid.RetCInvalidOperation, "unknown subscription "+string(h))
	}
	sub.stop()
	sub.unregister(ctx)
	return nil
}

// Close ends all subscriptions of this cache. The channel stays open.
func (c *rpcCache) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.ch.Timeout())
	defer cancel()
	c.subs.Range(func(h events.Handle, _ *remoteSubscription) bool {
		_ = c.Unsubscribe(ctx, h)
		return true
	})
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// keyed sends a single-key request to the owner of key
func (c *rpcCache) keyed(ctx context.Context, key any, req *common.Message) (*common.Message, error) {
	id, err := doc.ID(key)
	if err != nil {
		return nil, invalid("key", err)
	}
	results, err := c.ch.Invoke(ctx, c.shardID, req, MembersOwning(id))
	if err != nil {
		return nil, err
	}
	r := results[c.ch.Owner(id)]
	if r.Err != nil {
		return nil, r.Err
	}
	return r.Response, nil
}

// broadTarget covers the whole data set: every member of a partitioned
// cache, one rotating member of a replicated one
func (c *rpcCache) broadTarget() Target {
	if c.dist == Replicated {
		members := c.ch.members
		return SingleNamedService(members[c.next.Add(1)%uint64(len(members))])
	}
	return AllMembers()
}

// broad sends req to broadTarget and returns the responses, the first
// member error fails the call
func (c *rpcCache) broad(ctx context.Context, req *common.Message) ([]*common.Message, error) {
	results, err := c.ch.Invoke(ctx, c.shardID, req, c.broadTarget())
	if err != nil {
		return nil, err
	}
	responses := make([]*common.Message, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			return nil, r.Err
		}
		responses = append(responses, r.Response)
	}
	return responses, nil
}

// subscribeTarget selects the members whose mutations the scope can see
func (c *rpcCache) subscribeTarget(s events.Scope) Target {
	if c.dist == Replicated {
		return c.broadTarget()
	}
	if ids := s.KeyIDs(); len(ids) > 0 {
		return MembersOwning(ids...)
	}
	return AllMembers()
}

// --------------------------------------------------------------------------
// Remote Subscriptions
// --------------------------------------------------------------------------

// remoteSubscription long-polls the members holding a server side
// subscription and feeds the events to the local subscription
type remoteSubscription struct {
	cache *rpcCache
	scope events.Scope
	local *events.Subscription

	mu     sync.Mutex
	remote map[MemberID]events.Handle

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// start runs one poller per member
func (s *remoteSubscription) start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.mu.Lock()
	defer s.mu.Unlock()
	for member, h := range s.remote {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.poll(ctx, member, h)
		}()
	}
}

// stop ends delivery; no callback runs after it returns
func (s *remoteSubscription) stop() {
	s.cancel()
	s.local.Close()
	s.wg.Wait()
}

// unregister drops the server side subscriptions, failures only leave them
// to expire with their lease
func (s *remoteSubscription) unregister(ctx context.Context) {
	s.mu.Lock()
	reqs := make(map[MemberID]*common.Message, len(s.remote))
	for member, h := range s.remote {
		reqs[member] = common.NewUnsubscribeRequest(h)
	}
	s.mu.Unlock()
	if len(reqs) == 0 {
		return
	}

	results, err := s.cache.ch.InvokeEach(ctx, s.cache.shardID, reqs)
	if err != nil {
		Logger.Warningf("Failed to unsubscribe remote subscriptions: %v", err)
		return
	}
	for member, r := range results {
		if r.Err != nil {
			Logger.Debugf("Unsubscribe on %s: %v", member, r.Err)
		}
	}
}

func (s *remoteSubscription) poll(ctx context.Context, member MemberID, h events.Handle) {
	wait := s.cache.ch.Timeout() / 2
	backoff := 50 * time.Millisecond

	pause := func() bool {
		select {
		case <-time.After(backoff):
			backoff = min(2*backoff, 5*time.Second)
			return true
		case <-ctx.Done():
			return false
		}
	}

	for ctx.Err() == nil {
		req := common.NewPollRequest(h, wait)
		callCtx, cancel := context.WithTimeout(ctx, wait+s.cache.ch.Timeout())
		results, err := s.cache.ch.Invoke(callCtx, s.cache.shardID, req, SingleNamedService(member))
		cancel()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			Logger.Warningf("Polling events from %s failed: %v", member, err)
			if !pause() {
				return
			}
			continue
		}

		r := results[member]
		if r.Err != nil {
			if errors.Is(r.Err, grid.ErrInvalid) {
				// the member dropped the subscription (lease expired or restart)
				if nh, err := s.resubscribe(ctx, member); err == nil {
					Logger.Infof("Re-subscribed on %s", member)
					h = nh
					continue
				} else {
					Logger.Warningf("Re-subscribing on %s failed: %v", member, err)
				}
			} else {
				Logger.Warningf("Polling events from %s failed: %v", member, r.Err)
			}
			if !pause() {
				return
			}
			continue
		}

		var batch []events.Event
		if err := r.Response.Result(&batch); err != nil {
			Logger.Errorf("Failed to decode events from %s: %v", member, err)
			if !pause() {
				return
			}
			continue
		}
		backoff = 50 * time.Millisecond
		for _, e := range batch {
			s.local.Offer(e)
		}
	}
}

// resubscribe registers the scope again on one member
func (s *remoteSubscription) resubscribe(ctx context.Context, member MemberID) (events.Handle, error) {
	req, err := common.NewSubscribeRequest(s.scope)
	if err != nil {
		return "", err
	}
	results, err := s.cache.ch.Invoke(ctx, s.cache.shardID, req, SingleNamedService(member))
	if err != nil {
		return "", err
	}
	r := results[member]
	if r.Err != nil {
		return "", r.Err
	}
	h := events.Handle(r.Response.Name)

	s.mu.Lock()
	s.remote[member] = h
	s.mu.Unlock()
	return h, nil
}
