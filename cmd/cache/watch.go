package cache

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ValentinKolb/dGrid/cmd/util"
	"github.com/ValentinKolb/dGrid/lib/doc"
	"github.com/ValentinKolb/dGrid/lib/events"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [filter]",
	Short: "Prints change events until interrupted",
	Long:  "Prints change events until interrupted. Without arguments every event is printed, --key restricts the events to single keys and a filter to entries entering or leaving its result set.",
	Args:  cobra.RangeArgs(0, 1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringArray("key", nil, util.WrapString("Only watch this key (parsed as JSON), can be repeated"))
}

func runWatch(cmd *cobra.Command, args []string) error {
	setupCtx, cancel := util.Context()
	defer cancel()

	scope := events.AllEntries()
	if keys, _ := cmd.Flags().GetStringArray("key"); len(keys) > 0 {
		ids := make([]string, len(keys))
		for i, k := range keys {
			id, err := doc.ID(util.ParseValue(k))
			if err != nil {
				return fmt.Errorf("invalid key %q: %w", k, err)
			}
			ids[i] = id
		}
		scope = events.Keys(ids...)
	} else if len(args) == 1 {
		p, err := compileFilter(setupCtx, cmd, args)
		if err != nil {
			return err
		}
		scope = events.Matching(p)
	}

	h, err := rpcCache.Subscribe(setupCtx, events.All(func(e events.Event) {
		fmt.Printf("%-8s %s old=%s new=%s\n", e.Kind, util.FormatValue(e.Key), util.FormatValue(e.OldValue), util.FormatValue(e.NewValue))
	}), scope)
	if err != nil {
		return err
	}
	fmt.Printf("watching %s, press Ctrl+C to stop\n", scope)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	closeCtx, closeCancel := util.Context()
	defer closeCancel()
	return rpcCache.Unsubscribe(closeCtx, h)
}
