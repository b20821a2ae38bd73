package client

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dGrid/lib/filter"
	"github.com/ValentinKolb/dGrid/lib/grid"
	gridtesting "github.com/ValentinKolb/dGrid/lib/grid/testing"
	"github.com/ValentinKolb/dGrid/lib/lockmgr"
	"github.com/ValentinKolb/dGrid/rpc/common"
	"github.com/ValentinKolb/dGrid/rpc/serializer"
	"github.com/ValentinKolb/dGrid/rpc/server"
	"github.com/ValentinKolb/dGrid/rpc/transport/tcp"
)

const (
	invocationShard = 1
	lockShard       = 2
	firstCacheShard = 100
	cacheShards     = 64
)

func freeEndpoint(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	return l.Addr().String()
}

// startGrid starts n members in process and returns a channel to them
func startGrid(t *testing.T, n int) *InvocationChannel {
	t.Helper()

	shards := []common.ServerShard{
		{ShardID: invocationShard, Type: common.ShardTypeInvocationService},
		{ShardID: lockShard, Type: common.ShardTypeLocalLockManager},
	}
	for i := 0; i < cacheShards; i++ {
		shards = append(shards, common.ServerShard{ShardID: uint64(firstCacheShard + i), Type: common.ShardTypeLocalCache})
	}

	endpoints := make([]string, n)
	for i := range endpoints {
		endpoints[i] = freeEndpoint(t)
		s := server.NewRPCServer(common.ServerConfig{
			Shards:                  shards,
			Transport:               common.ServerTransportConfig{Endpoint: endpoints[i]},
			TimeoutSecond:           5,
			SubscriptionLeaseSecond: 30,
			Workers:                 2,
			LogLevel:                "error",
		}, tcp.NewTCPServerTransport(), serializer.NewBinarySerializer())
		go func() {
			if err := s.Serve(); err != nil {
				t.Errorf("member stopped: %v", err)
			}
		}()
		t.Cleanup(func() { _ = s.Close() })
	}

	// wait until every member listens
	for _, ep := range endpoints {
		deadline := time.Now().Add(5 * time.Second)
		for {
			conn, err := net.Dial("tcp", ep)
			if err == nil {
				conn.Close()
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("member %s did not start: %v", ep, err)
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	ch, err := NewInvocationChannel(common.ClientConfig{
		Endpoints:     endpoints,
		TimeoutSecond: 5,
		RetryCount:    3,
	}, tcp.NewTCPClientTransport, serializer.NewBinarySerializer())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ch.Close() })

	for _, ep := range endpoints {
		if err := Ping(context.Background(), ch, invocationShard, ep); err != nil {
			t.Fatalf("ping %s failed: %v", ep, err)
		}
	}
	return ch
}

func TestRPCCache(t *testing.T) {
	if testing.Short() {
		t.Skip("starts grid members")
	}
	ch := startGrid(t, 2)

	var next atomic.Uint64
	gridtesting.RunCacheTests(t, "RPCCache", func() grid.ICache {
		n := next.Add(1) - 1
		if n >= cacheShards {
			t.Fatal("out of cache shards")
		}
		return NewRPCCache(ch, firstCacheShard+n, Partitioned)
	})
}

func TestRPCCacheSpreadsEntries(t *testing.T) {
	if testing.Short() {
		t.Skip("starts grid members")
	}
	ch := startGrid(t, 3)
	cache := NewRPCCache(ch, firstCacheShard, Partitioned)
	ctx := context.Background()

	for i := 0; i < 90; i++ {
		if err := cache.Put(ctx, i, i); err != nil {
			t.Fatal(err)
		}
	}

	infos, err := MemberInfo(ctx, ch, invocationShard)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 3 {
		t.Fatalf("Expected 3 members, got %d", len(infos))
	}
	var total int64
	for _, info := range infos {
		for _, s := range info.Shards {
			if s.ShardID == firstCacheShard {
				if s.Entries == 0 {
					t.Errorf("Member %s owns no entries", info.Member)
				}
				total += s.Entries
			}
		}
	}
	if total != 90 {
		t.Errorf("Expected 90 entries over all members, got %d", total)
	}

	size, err := cache.Size(ctx)
	if err != nil || size != 90 {
		t.Errorf("Expected size 90, got %d (%v)", size, err)
	}
}

func TestRPCCacheRejectsInvalidKeys(t *testing.T) {
	if testing.Short() {
		t.Skip("starts grid members")
	}
	ch := startGrid(t, 1)
	cache := NewRPCCache(ch, firstCacheShard, Partitioned)

	if err := cache.Put(context.Background(), make(chan int), 1); !errors.Is(err, grid.ErrInvalid) {
		t.Errorf("Expected invalid operation, got %v", err)
	}
	if _, _, err := cache.Get(context.Background(), func() {}); !errors.Is(err, grid.ErrInvalid) {
		t.Errorf("Expected invalid operation, got %v", err)
	}
}

func TestRemoteCompiler(t *testing.T) {
	if testing.Short() {
		t.Skip("starts grid members")
	}
	ch := startGrid(t, 2)
	compiler := grid.NewCachingCompiler(NewRemoteCompiler(ch, invocationShard, ""), 0)
	cache := NewRPCCache(ch, firstCacheShard, Partitioned)
	ctx := context.Background()

	for i, age := range []int{25, 35, 45, 55} {
		if err := cache.Put(ctx, i, map[string]any{"age": age, "state": "MA"}); err != nil {
			t.Fatal(err)
		}
	}

	p, err := compiler.CompileFilter(ctx, "age > ?1 and state = :state",
		grid.Bindings{Positional: []any{30}, Named: map[string]any{"state": "MA"}})
	if err != nil {
		t.Fatal(err)
	}
	keys, err := cache.Keys(ctx, p)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 3 {
		t.Errorf("Expected 3 keys, got %v", keys)
	}

	x, err := compiler.CompileExtractor(ctx, "age")
	if err != nil {
		t.Fatal(err)
	}
	if got := x.Extract(filter.Entry{Value: map[string]any{"age": 1.0}}); got != 1.0 {
		t.Errorf("Expected extractor to return age, got %v", got)
	}

	if _, err := compiler.CompileFilter(ctx, "age >", grid.Bindings{}); !errors.Is(err, grid.ErrCompile) {
		t.Errorf("Expected compile error, got %v", err)
	}
}

func TestRPCLockManager(t *testing.T) {
	if testing.Short() {
		t.Skip("starts grid members")
	}
	ch := startGrid(t, 2)
	var mgr lockmgr.ILockManager = NewRPCLockMgr(ch, lockShard)
	ctx := context.Background()

	ok, owner, err := mgr.AcquireLock(ctx, "resource", time.Minute)
	if err != nil || !ok || owner == "" {
		t.Fatalf("Expected lock, got %v %q %v", ok, owner, err)
	}
	if ok, _, _ := mgr.AcquireLock(ctx, "resource", time.Minute); ok {
		t.Error("Expected a held lock to be refused")
	}
	if ok, _ := mgr.ReleaseLock(ctx, "resource", "stranger"); ok {
		t.Error("Expected release by a stranger to fail")
	}
	if ok, err := mgr.ReleaseLock(ctx, "resource", owner); err != nil || !ok {
		t.Errorf("Expected release to succeed, got %v %v", ok, err)
	}
	if ok, _, _ := mgr.AcquireLock(ctx, "resource", time.Minute); !ok {
		t.Error("Expected released lock to be acquirable")
	}
}

func TestMemberDown(t *testing.T) {
	if testing.Short() {
		t.Skip("starts grid members")
	}
	dead := freeEndpoint(t)
	_, err := NewInvocationChannel(common.ClientConfig{
		Endpoints:     []string{dead},
		TimeoutSecond: 1,
		RetryCount:    1,
	}, tcp.NewTCPClientTransport, serializer.NewBinarySerializer())
	if !errors.Is(err, grid.ErrInvocation) {
		t.Errorf("Expected invocation error for an unreachable member, got %v", err)
	}
}
