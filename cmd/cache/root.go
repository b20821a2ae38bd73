package cache

import (
	"fmt"

	"github.com/ValentinKolb/dGrid/cmd/util"
	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/rpc/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	channel  *client.InvocationChannel
	rpcCache grid.ICache
	compiler grid.ICompiler

	// CacheCommands represents the cache command group
	CacheCommands = &cobra.Command{
		Use:                "cache",
		Short:              "Perform cache operations",
		PersistentPreRunE:  setupCacheClient,
		PersistentPostRunE: closeCacheClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add common RPC flags to the cache command
	util.SetupRPCClientFlags(CacheCommands)

	// Set default shard ID for cache operations (different from Lock default)
	CacheCommands.PersistentFlags().Int("shard", 100, util.WrapString("ID of the cache shard to connect to"))
	CacheCommands.PersistentFlags().String("distribution", "partitioned", util.WrapString("How the shard is distributed over the members (partitioned, replicated)"))

	// Add subcommands
	CacheCommands.AddCommand(getCmd)
	CacheCommands.AddCommand(putCmd)
	CacheCommands.AddCommand(removeCmd)
	CacheCommands.AddCommand(sizeCmd)
	CacheCommands.AddCommand(queryCmd)
	CacheCommands.AddCommand(aggregateCmd)
	CacheCommands.AddCommand(updateCmd)
	CacheCommands.AddCommand(incrementCmd)
	CacheCommands.AddCommand(indexCmd)
	CacheCommands.AddCommand(watchCmd)
	CacheCommands.AddCommand(loadCmd)
	CacheCommands.AddCommand(membersCmd)
	CacheCommands.AddCommand(perfTestCmd)
}

// setupCacheClient connects to the members and creates the cache client
func setupCacheClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var dist client.Distribution
	switch viper.GetString("distribution") {
	case "partitioned":
		dist = client.Partitioned
	case "replicated":
		dist = client.Replicated
	default:
		return fmt.Errorf("invalid distribution %s", viper.GetString("distribution"))
	}

	var err error
	if channel, err = util.NewChannel(); err != nil {
		return err
	}

	rpcCache = client.NewRPCCache(channel, util.GetShardID(), dist)
	compiler = grid.NewCachingCompiler(
		client.NewRemoteCompiler(channel, util.GetInvocationShardID(), util.GetClientConfig().CompilerMember), 0)
	return nil
}

func closeCacheClient(_ *cobra.Command, _ []string) error {
	if rpcCache != nil {
		_ = rpcCache.Close()
	}
	if channel != nil {
		return channel.Close()
	}
	return nil
}
