package server

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ValentinKolb/dGrid/lib/aggregate"
	"github.com/ValentinKolb/dGrid/lib/events"
	"github.com/ValentinKolb/dGrid/lib/filter"
	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/grid/lgrid"
	"github.com/ValentinKolb/dGrid/lib/processor"
	"github.com/ValentinKolb/dGrid/rpc/common"
)

func mustMsg(t *testing.T) func(*common.Message, error) *common.Message {
	return func(m *common.Message, err error) *common.Message {
		t.Helper()
		if err != nil {
			t.Fatalf("failed to build request: %v", err)
		}
		return m
	}
}

func newCacheAdapter(t *testing.T) (IRPCServerAdapter, grid.ICache) {
	subs := newSubscriptionRegistry(time.Minute, 0)
	t.Cleanup(subs.close)
	cache := lgrid.NewLocalCache()
	t.Cleanup(func() { cache.Close() })
	return NewCacheServerAdapter(subs), cache
}

func TestCacheAdapterKeyOperations(t *testing.T) {
	adapter, cache := newCacheAdapter(t)
	ctx := context.Background()
	build := mustMsg(t)

	resp := adapter.Handle(ctx, build(common.NewPutRequest("john", map[string]any{"age": 42})), cache)
	if err := resp.AsError(); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	resp = adapter.Handle(ctx, build(common.NewGetRequest("john")), cache)
	if !resp.Ok {
		t.Fatal("Expected john to be found")
	}
	value, err := resp.ValueDoc()
	if err != nil || value.(map[string]any)["age"] != 42.0 {
		t.Errorf("Unexpected value %v (%v)", value, err)
	}

	resp = adapter.Handle(ctx, build(common.NewInvokeRequest("john", &processor.Increment{Path: "age", Delta: 1})), cache)
	var w grid.WireResult
	if err := resp.Result(&w); err != nil {
		t.Fatal(err)
	}
	if res := w.Result(); res.Err != nil || res.Value != 43.0 {
		t.Errorf("Expected increment to 43, got %+v", res)
	}

	resp = adapter.Handle(ctx, build(common.NewRemoveRequest("john")), cache)
	if !resp.Ok {
		t.Error("Expected remove to report the key")
	}
	resp = adapter.Handle(ctx, build(common.NewGetRequest("john")), cache)
	if resp.Ok || resp.AsError() != nil {
		t.Errorf("Expected absent key without error, got %+v", resp)
	}
}

func TestCacheAdapterAggregateReturnsPartial(t *testing.T) {
	adapter, cache := newCacheAdapter(t)
	ctx := context.Background()

	for i, age := range []int{10, 20, 30} {
		if err := cache.Put(ctx, i, map[string]any{"age": age}); err != nil {
			t.Fatal(err)
		}
	}

	req, err := common.NewAggregateRequest(filter.Always{}, aggregate.Average(filter.Property{Name: "age"}))
	if err != nil {
		t.Fatal(err)
	}
	resp := adapter.Handle(ctx, req, cache)

	var p aggregate.Partial
	if err := resp.Result(&p); err != nil {
		t.Fatal(err)
	}
	if p.Count != 3 || p.Numeric != 3 || p.Sum != 60 || p.Min != 10 || p.Max != 30 {
		t.Errorf("Unexpected partial %+v", p)
	}
}

func TestCacheAdapterRejectsMalformedRequests(t *testing.T) {
	adapter, cache := newCacheAdapter(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *common.Message
		want error
	}{
		{"bad key", &common.Message{MsgType: common.MsgTGridGet, Key: []byte("{nope")}, grid.ErrInvalid},
		{"bad predicate", &common.Message{MsgType: common.MsgTGridKeys, Filter: []byte(`{"op":"maybe"}`)}, grid.ErrInvalid},
		{"bad processor", &common.Message{MsgType: common.MsgTGridInvoke, Key: []byte(`"k"`), Op: []byte(`{"kind":"unknown"}`)}, grid.ErrInvalid},
		{"lock request", common.NewAcquireRequest("lock", 0), grid.ErrUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := adapter.Handle(ctx, tt.req, cache).AsError()
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLockAdapter(t *testing.T) {
	adapter := NewLockManagerServerAdapter()
	cache := lgrid.NewLocalCache()
	defer cache.Close()
	ctx := context.Background()

	resp := adapter.Handle(ctx, common.NewAcquireRequest("lock", time.Minute), cache)
	if !resp.Ok || resp.Name == "" {
		t.Fatalf("Expected lock to be acquired, got %+v", resp)
	}
	owner := resp.Name

	if resp := adapter.Handle(ctx, common.NewAcquireRequest("lock", time.Minute), cache); resp.Ok {
		t.Error("Expected second acquire to fail")
	}
	if resp := adapter.Handle(ctx, common.NewReleaseRequest("lock", "someone else"), cache); resp.Ok {
		t.Error("Expected release by a stranger to fail")
	}
	if resp := adapter.Handle(ctx, common.NewReleaseRequest("lock", owner), cache); !resp.Ok {
		t.Error("Expected release by the owner to succeed")
	}
}

func TestInvocationAdapter(t *testing.T) {
	adapter := NewInvocationServerAdapter(map[string]Invocable{
		common.InvocableCompile: compileInvocable(grid.NewLocalCompiler()),
		common.InvocablePing:    pingInvocable,
	})
	ctx := context.Background()
	build := mustMsg(t)

	resp := adapter.Handle(ctx, build(common.NewInvocationRequest(common.InvocableCompile,
		common.CompileArgs{Query: "age > ?1", Positional: []any{40}})), nil)
	if err := resp.AsError(); err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	p, err := filter.UnmarshalPredicate(resp.Value)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Evaluate(filter.Entry{Key: "a", Value: map[string]any{"age": 41.0}}) {
		t.Errorf("Expected compiled predicate to match, got %#v", p)
	}

	resp = adapter.Handle(ctx, build(common.NewInvocationRequest(common.InvocableCompile,
		common.CompileArgs{Query: "homeAddress.state", Extractor: true})), nil)
	if _, err := filter.UnmarshalExtractor(resp.Value); err != nil {
		t.Errorf("Expected an extractor, got %s (%v)", resp.Value, err)
	}

	resp = adapter.Handle(ctx, build(common.NewInvocationRequest(common.InvocableCompile,
		common.CompileArgs{Query: "age >"})), nil)
	if err := resp.AsError(); !errors.Is(err, grid.ErrCompile) {
		t.Errorf("Expected compile error, got %v", err)
	}

	resp = adapter.Handle(ctx, build(common.NewInvocationRequest(common.InvocablePing, nil)), nil)
	var pong string
	if err := json.Unmarshal(resp.Value, &pong); err != nil || pong != "pong" {
		t.Errorf("Expected pong, got %s", resp.Value)
	}

	resp = adapter.Handle(ctx, build(common.NewInvocationRequest("nope", nil)), nil)
	if err := resp.AsError(); !errors.Is(err, grid.ErrInvalid) {
		t.Errorf("Expected invalid operation for unknown invocable, got %v", err)
	}
}

func TestSubscriptionPolling(t *testing.T) {
	adapter, cache := newCacheAdapter(t)
	ctx := context.Background()
	build := mustMsg(t)

	resp := adapter.Handle(ctx, build(common.NewSubscribeRequest(events.AllEntries())), cache)
	if err := resp.AsError(); err != nil || resp.Name == "" {
		t.Fatalf("subscribe failed: %v", err)
	}
	h := events.Handle(resp.Name)

	// empty poll returns after the wait
	start := time.Now()
	resp = adapter.Handle(ctx, common.NewPollRequest(h, 50*time.Millisecond), cache)
	var batch []events.Event
	if err := resp.Result(&batch); err != nil || len(batch) != 0 {
		t.Fatalf("Expected empty batch, got %v (%v)", batch, err)
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Error("Expected the poll to wait")
	}

	// a waiting poll is woken by the first event
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = cache.Put(ctx, "k", 1)
		_ = cache.Put(ctx, "k", 2)
	}()
	var got []events.Event
	deadline := time.Now().Add(5 * time.Second)
	for len(got) < 2 && time.Now().Before(deadline) {
		resp = adapter.Handle(ctx, common.NewPollRequest(h, time.Second), cache)
		batch = nil
		if err := resp.Result(&batch); err != nil {
			t.Fatal(err)
		}
		got = append(got, batch...)
	}
	if len(got) != 2 || got[0].Kind != events.Inserted || got[1].Kind != events.Updated {
		t.Fatalf("Expected insert and update, got %v", got)
	}

	resp = adapter.Handle(ctx, common.NewUnsubscribeRequest(h), cache)
	if err := resp.AsError(); err != nil {
		t.Fatalf("unsubscribe failed: %v", err)
	}
	resp = adapter.Handle(ctx, common.NewPollRequest(h, 0), cache)
	if err := resp.AsError(); !errors.Is(err, grid.ErrInvalid) {
		t.Errorf("Expected unknown subscription after unsubscribe, got %v", err)
	}
}

func TestSubscriptionLeaseExpires(t *testing.T) {
	subs := newSubscriptionRegistry(time.Hour, 0)
	defer subs.close()
	cache := lgrid.NewLocalCache()
	defer cache.Close()
	ctx := context.Background()

	h, err := subs.subscribe(ctx, cache, events.AllEntries())
	if err != nil {
		t.Fatal(err)
	}

	subs.reap(time.Now())
	if subs.len() != 1 {
		t.Fatal("Expected the subscription to survive within its lease")
	}

	subs.reap(time.Now().Add(2 * time.Hour))
	if subs.len() != 0 {
		t.Fatal("Expected the subscription to expire")
	}
	if _, err := subs.poll(ctx, h, 0); !errors.Is(err, grid.ErrInvalid) {
		t.Errorf("Expected unknown subscription, got %v", err)
	}
}

func TestSubscriptionBufferDropsOldest(t *testing.T) {
	subs := newSubscriptionRegistry(time.Hour, 3)
	defer subs.close()
	cache := lgrid.NewLocalCache()
	defer cache.Close()
	ctx := context.Background()

	h, err := subs.subscribe(ctx, cache, events.AllEntries())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if err := cache.Put(ctx, i, i); err != nil {
			t.Fatal(err)
		}
	}

	// delivery is asynchronous, wait until the last put arrived
	var batch []events.Event
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		sub, _ := subs.subs.Load(h)
		sub.mu.Lock()
		n := len(sub.buf)
		last := events.Event{}
		if n > 0 {
			last = sub.buf[n-1]
		}
		sub.mu.Unlock()
		if last.Key == 4.0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	batch, err = subs.poll(ctx, h, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 3 || batch[0].Key != 2.0 || batch[2].Key != 4.0 {
		t.Errorf("Expected the three newest events, got %v", batch)
	}
}
