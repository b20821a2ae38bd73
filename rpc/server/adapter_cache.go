package server

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/dGrid/lib/events"
	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/rpc/common"
)

// NewCacheServerAdapter creates the adapter of cache shards. Remote
// subscriptions are kept in subs.
func NewCacheServerAdapter(subs *subscriptionRegistry) IRPCServerAdapter {
	return &cacheServerAdapter{subs: subs}
}

type cacheServerAdapter struct {
	subs *subscriptionRegistry
}

// badRequest answers a request whose payload could not be decoded
func badRequest(t common.MessageType, what string, err error) *common.Message {
	return common.NewResponse(t, nil, &grid.Error{
		Code: grid.RetCInvalidOperation,
		Msg:  fmt.Sprintf("malformed %s in %s request", what, t),
		Err:  err,
	})
}

func (adapter *cacheServerAdapter) Handle(ctx context.Context, req *common.Message, cache grid.ICache) *common.Message {
	// Check for nil cache
	if cache == nil {
		return common.NewErrorResponse(grid.RetCInternalError, "handler: cache is nil")
	}

	t := req.MsgType

	// Handle different message types
	switch t {
	case common.MsgTGridGet:
		key, err := req.KeyDoc()
		if err != nil {
			return badRequest(t, "key", err)
		}
		value, found, err := cache.Get(ctx, key)
		return common.NewGetResponse(value, found, err)

	case common.MsgTGridPut:
		key, err := req.KeyDoc()
		if err != nil {
			return badRequest(t, "key", err)
		}
		value, err := req.ValueDoc()
		if err != nil {
			return badRequest(t, "value", err)
		}
		return common.NewResponse(t, nil, cache.Put(ctx, key, value))

	case common.MsgTGridPutAll:
		entries, err := req.Entries()
		if err != nil {
			return badRequest(t, "entries", err)
		}
		return common.NewResponse(t, nil, cache.PutAll(ctx, entries))

	case common.MsgTGridRemove:
		key, err := req.KeyDoc()
		if err != nil {
			return badRequest(t, "key", err)
		}
		found, err := cache.Remove(ctx, key)
		resp := common.NewResponse(t, nil, err)
		resp.Ok = found
		return resp

	case common.MsgTGridSize:
		n, err := cache.Size(ctx)
		return common.NewResponse(t, n, err)

	case common.MsgTGridEntries:
		p, err := req.Predicate()
		if err != nil {
			return badRequest(t, "predicate", err)
		}
		entries, err := cache.Entries(ctx, p)
		return common.NewResponse(t, entries, err)

	case common.MsgTGridKeys:
		p, err := req.Predicate()
		if err != nil {
			return badRequest(t, "predicate", err)
		}
		keys, err := cache.Keys(ctx, p)
		return common.NewResponse(t, keys, err)

	case common.MsgTGridAddIndex:
		x, ordered, err := req.Index()
		if err != nil {
			return badRequest(t, "extractor", err)
		}
		return common.NewResponse(t, nil, cache.AddIndex(ctx, x, ordered))

	case common.MsgTGridAggregate:
		p, err := req.Predicate()
		if err != nil {
			return badRequest(t, "predicate", err)
		}
		agg, err := req.Aggregator()
		if err != nil {
			return badRequest(t, "aggregator", err)
		}
		// members answer with partials so the client can combine them
		pa, ok := cache.(grid.IPartialAggregator)
		if !ok {
			return common.NewResponse(t, nil, grid.NewError(grid.RetCUnsupportedOperation, "cache cannot return partial aggregates"))
		}
		partial, err := pa.AggregatePartial(ctx, p, agg)
		return common.NewResponse(t, partial, err)

	case common.MsgTGridInvoke:
		key, err := req.KeyDoc()
		if err != nil {
			return badRequest(t, "key", err)
		}
		proc, err := req.Processor()
		if err != nil {
			return badRequest(t, "processor", err)
		}
		result, err := cache.Invoke(ctx, key, proc)
		if err != nil {
			return common.NewResponse(t, nil, err)
		}
		return common.NewResponse(t, grid.ToWire(result), nil)

	case common.MsgTGridInvokeAll:
		p, err := req.Predicate()
		if err != nil {
			return badRequest(t, "predicate", err)
		}
		proc, err := req.Processor()
		if err != nil {
			return badRequest(t, "processor", err)
		}
		results, err := cache.InvokeAll(ctx, p, proc)
		if err != nil {
			return common.NewResponse(t, nil, err)
		}
		return common.NewResponse(t, grid.ToWireMap(results), nil)

	case common.MsgTEvtSubscribe:
		scope, err := req.Scope()
		if err != nil {
			return badRequest(t, "scope", err)
		}
		h, err := adapter.subs.subscribe(ctx, cache, scope)
		resp := common.NewResponse(t, nil, err)
		resp.Name = string(h)
		return resp

	case common.MsgTEvtPoll:
		batch, err := adapter.subs.poll(ctx, events.Handle(req.Name), req.Wait())
		return common.NewResponse(t, batch, err)

	case common.MsgTEvtUnsubscribe:
		return common.NewResponse(t, nil, adapter.subs.unsubscribe(ctx, events.Handle(req.Name)))

	default:
		return common.NewErrorResponse(grid.RetCUnsupportedOperation,
			fmt.Sprintf("cache adapter: unsupported message type %s", t))
	}
}
