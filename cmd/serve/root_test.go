package serve

import (
	"testing"

	"github.com/ValentinKolb/dGrid/rpc/common"
)

func TestParseShards(t *testing.T) {
	shards, err := parseShards("1=invocation, 100=cache,101=dcache,200=lockmgr,201=lockmgr(dcache)")
	if err != nil {
		t.Fatal(err)
	}
	want := []common.ServerShard{
		{ShardID: 1, Type: common.ShardTypeInvocationService},
		{ShardID: 100, Type: common.ShardTypeLocalCache},
		{ShardID: 101, Type: common.ShardTypeRemoteCache},
		{ShardID: 200, Type: common.ShardTypeLocalLockManager},
		{ShardID: 201, Type: common.ShardTypeRemoteLockManager},
	}
	if len(shards) != len(want) {
		t.Fatalf("Expected %d shards, got %v", len(want), shards)
	}
	for i := range want {
		if shards[i] != want[i] {
			t.Errorf("Shard %d: expected %v, got %v", i, want[i], shards[i])
		}
	}

	for _, bad := range []string{"100", "x=cache", "100=store", ""} {
		if _, err := parseShards(bad); err == nil {
			t.Errorf("Expected %q to be rejected", bad)
		}
	}
}
