package server

import (
	"context"
	"errors"
	"testing"

	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/rpc/common"
	"github.com/ValentinKolb/dGrid/rpc/serializer"
	"github.com/ValentinKolb/dGrid/rpc/transport/tcp"
)

func newTestServer(t *testing.T, shards ...common.ServerShard) *rpcServer {
	s := NewRPCServer(common.ServerConfig{
		Shards:        shards,
		Transport:     common.ServerTransportConfig{Endpoint: "127.0.0.1:0"},
		TimeoutSecond: 5,
		LogLevel:      "error",
	}, tcp.NewTCPServerTransport(), serializer.NewJSONSerializer())
	if err := s.init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func call(t *testing.T, s *rpcServer, shardID uint64, req *common.Message) *common.Message {
	t.Helper()
	b, err := s.serializer.Serialize(*req)
	if err != nil {
		t.Fatal(err)
	}
	var resp common.Message
	if err := s.serializer.Deserialize(s.handle(context.Background(), shardID, b), &resp); err != nil {
		t.Fatal(err)
	}
	return &resp
}

func TestHandleUnknownShard(t *testing.T) {
	s := newTestServer(t, common.ServerShard{ShardID: 1, Type: common.ShardTypeLocalCache})

	resp := call(t, s, 2, common.NewSizeRequest())
	if err := resp.AsError(); !errors.Is(err, grid.ErrInvalid) {
		t.Errorf("Expected invalid operation, got %v", err)
	}
}

func TestHandleMalformedRequest(t *testing.T) {
	s := newTestServer(t, common.ServerShard{ShardID: 1, Type: common.ShardTypeLocalCache})

	var resp common.Message
	if err := s.serializer.Deserialize(s.handle(context.Background(), 1, []byte("garbage")), &resp); err != nil {
		t.Fatal(err)
	}
	if err := resp.AsError(); !errors.Is(err, grid.ErrInvalid) {
		t.Errorf("Expected invalid operation, got %v", err)
	}
}

func TestDuplicateShardRejected(t *testing.T) {
	s := NewRPCServer(common.ServerConfig{
		Shards: []common.ServerShard{
			{ShardID: 1, Type: common.ShardTypeLocalCache},
			{ShardID: 1, Type: common.ShardTypeLocalLockManager},
		},
		LogLevel: "error",
	}, tcp.NewTCPServerTransport(), serializer.NewJSONSerializer())
	defer s.Close()

	if err := s.init(); err == nil {
		t.Error("Expected duplicate shard ids to be rejected")
	}
}

func TestMemberInfo(t *testing.T) {
	s := newTestServer(t,
		common.ServerShard{ShardID: 1, Type: common.ShardTypeInvocationService},
		common.ServerShard{ShardID: 100, Type: common.ShardTypeLocalCache},
	)

	req, err := common.NewPutRequest("a", 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := call(t, s, 100, req).AsError(); err != nil {
		t.Fatal(err)
	}

	req, err = common.NewInvocationRequest(common.InvocableMemberInfo, nil)
	if err != nil {
		t.Fatal(err)
	}
	var info common.MemberInfo
	if err := call(t, s, 1, req).Result(&info); err != nil {
		t.Fatal(err)
	}
	if len(info.Shards) != 2 || info.Shards[0].ShardID != 1 || info.Shards[1].Entries != 1 {
		t.Errorf("Unexpected member info %+v", info)
	}
}
