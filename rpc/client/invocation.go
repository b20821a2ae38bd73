package client

import (
	"context"
	"slices"
	"strings"

	"github.com/ValentinKolb/dGrid/rpc/common"
)

// MemberInfo asks every member for its shards and entry counts. The result
// is sorted by member.
func MemberInfo(ctx context.Context, ch *InvocationChannel, shardID uint64) ([]common.MemberInfo, error) {
	req, err := common.NewInvocationRequest(common.InvocableMemberInfo, nil)
	if err != nil {
		return nil, err
	}
	results, err := ch.Invoke(ctx, shardID, req, AllMembers())
	if err != nil {
		return nil, err
	}

	infos := make([]common.MemberInfo, 0, len(results))
	for member, r := range results {
		if r.Err != nil {
			return nil, r.Err
		}
		var info common.MemberInfo
		if err := r.Response.Result(&info); err != nil {
			return nil, decodeFailed(req.MsgType, err)
		}
		// the member may not know the endpoint clients use for it
		info.Member = member
		infos = append(infos, info)
	}
	slices.SortFunc(infos, func(a, b common.MemberInfo) int { return strings.Compare(a.Member, b.Member) })
	return infos, nil
}

// Ping checks that member answers on its invocation shard.
func Ping(ctx context.Context, ch *InvocationChannel, shardID uint64, member MemberID) error {
	req, err := common.NewInvocationRequest(common.InvocablePing, nil)
	if err != nil {
		return err
	}
	results, err := ch.Invoke(ctx, shardID, req, SingleNamedService(member))
	if err != nil {
		return err
	}
	for _, r := range results {
		return r.Err
	}
	return nil
}
