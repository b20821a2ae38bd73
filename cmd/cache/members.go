package cache

import (
	"fmt"

	"github.com/ValentinKolb/dGrid/cmd/util"
	"github.com/ValentinKolb/dGrid/rpc/client"
	"github.com/spf13/cobra"
)

var membersCmd = &cobra.Command{
	Use:   "members",
	Short: "Lists the members with their shards and entry counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := util.Context()
		defer cancel()

		infos, err := client.MemberInfo(ctx, channel, util.GetInvocationShardID())
		if err != nil {
			return err
		}
		for _, info := range infos {
			fmt.Printf("%s\n", info.Member)
			for _, s := range info.Shards {
				fmt.Printf("  %-6d %-22s %d entries\n", s.ShardID, s.Type, s.Entries)
			}
		}
		return nil
	},
}
