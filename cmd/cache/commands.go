package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ValentinKolb/dGrid/cmd/util"
	"github.com/ValentinKolb/dGrid/lib/aggregate"
	"github.com/ValentinKolb/dGrid/lib/filter"
	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/processor"
	"github.com/spf13/cobra"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Context()
			defer cancel()
			key := util.ParseValue(args[0])
			value, found, err := rpcCache.Get(ctx, key)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=%v, value=%s\n", util.FormatValue(key), found, util.FormatValue(value))
			return nil
		},
	}
	putCmd = &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Stores a value, keys and values are parsed as JSON (plain strings otherwise)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Context()
			defer cancel()
			if err := rpcCache.Put(ctx, util.ParseValue(args[0]), util.ParseValue(args[1])); err != nil {
				return err
			}
			fmt.Println("put successfully")
			return nil
		},
	}
	removeCmd = &cobra.Command{
		Use:   "remove [key]",
		Short: "Removes a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Context()
			defer cancel()
			found, err := rpcCache.Remove(ctx, util.ParseValue(args[0]))
			if err != nil {
				return err
			}
			fmt.Printf("removed=%t\n", found)
			return nil
		},
	}
	sizeCmd = &cobra.Command{
		Use:   "size",
		Short: "Counts the entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Context()
			defer cancel()
			size, err := rpcCache.Size(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("size=%d\n", size)
			return nil
		},
	}
	queryCmd = &cobra.Command{
		Use:   "query [filter]",
		Short: "Lists the entries matching a filter, e.g. \"homeAddress.state = 'MA' and age > ?1\"",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Context()
			defer cancel()
			p, err := compileFilter(ctx, cmd, args)
			if err != nil {
				return err
			}
			if keysOnly, _ := cmd.Flags().GetBool("keys"); keysOnly {
				keys, err := rpcCache.Keys(ctx, p)
				if err != nil {
					return err
				}
				for _, k := range sortedValues(keys) {
					fmt.Println(k)
				}
				fmt.Printf("%d keys\n", len(keys))
				return nil
			}
			entries, err := rpcCache.Entries(ctx, p)
			if err != nil {
				return err
			}
			lines := make([]string, len(entries))
			for i, e := range entries {
				lines[i] = fmt.Sprintf("%s = %s", util.FormatValue(e.Key), util.FormatValue(e.Value))
			}
			sort.Strings(lines)
			for _, l := range lines {
				fmt.Println(l)
			}
			fmt.Printf("%d entries\n", len(entries))
			return nil
		},
	}
	aggregateCmd = &cobra.Command{
		Use:   "aggregate [count|sum|min|max|average] [path]",
		Short: "Aggregates the entries matching --where",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Context()
			defer cancel()
			var x filter.ValueExtractor
			if len(args) == 2 {
				var err error
				if x, err = compiler.CompileExtractor(ctx, args[1]); err != nil {
					return err
				}
			}
			agg, err := aggregate.Parse(args[0], x)
			if err != nil {
				return err
			}
			p, err := compileWhere(ctx, cmd)
			if err != nil {
				return err
			}
			result, err := rpcCache.Aggregate(ctx, p, agg)
			if err != nil {
				return err
			}
			fmt.Printf("%s=%s\n", args[0], util.FormatValue(result))
			return nil
		},
	}
	updateCmd = &cobra.Command{
		Use:   "update [path] [value]",
		Short: "Sets the member at path of every entry matching --where",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Context()
			defer cancel()
			p, err := compileWhere(ctx, cmd)
			if err != nil {
				return err
			}
			results, err := rpcCache.InvokeAll(ctx, p, &processor.Update{Path: args[0], Value: util.ParseValue(args[1])})
			if err != nil {
				return err
			}
			return printResults(results)
		},
	}
	incrementCmd = &cobra.Command{
		Use:   "increment [key] [path] [delta]",
		Short: "Adds delta to the number at path of one entry",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Context()
			defer cancel()
			delta, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("delta must be a number: %w", err)
			}
			result, err := rpcCache.Invoke(ctx, util.ParseValue(args[0]), &processor.Increment{Path: args[1], Delta: delta})
			if err != nil {
				return err
			}
			if result.Err != nil {
				return result.Err
			}
			fmt.Printf("value=%s\n", util.FormatValue(result.Value))
			return nil
		},
	}
	indexCmd = &cobra.Command{
		Use:   "index [path]",
		Short: "Creates an index on a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Context()
			defer cancel()
			x, err := compiler.CompileExtractor(ctx, args[0])
			if err != nil {
				return err
			}
			ordered, _ := cmd.Flags().GetBool("ordered")
			if err := rpcCache.AddIndex(ctx, x, ordered); err != nil {
				return err
			}
			fmt.Printf("index on %s created (ordered=%t)\n", x, ordered)
			return nil
		},
	}
)

func init() {
	for _, c := range []*cobra.Command{queryCmd, aggregateCmd, updateCmd, watchCmd} {
		c.Flags().StringArray("arg", nil, util.WrapString("Positional query parameter ?1, ?2, ... in order (parsed as JSON)"))
		c.Flags().StringArray("param", nil, util.WrapString("Named query parameter as name=value (value parsed as JSON)"))
	}
	for _, c := range []*cobra.Command{aggregateCmd, updateCmd} {
		c.Flags().String("where", "", util.WrapString("Filter selecting the entries (all entries if empty)"))
	}
	queryCmd.Flags().Bool("keys", false, util.WrapString("Only list the keys"))
	indexCmd.Flags().Bool("ordered", false, util.WrapString("Create an ordered index that also serves range queries"))
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// bindings reads the --arg and --param flags
func bindings(cmd *cobra.Command) (grid.Bindings, error) {
	var b grid.Bindings
	args, _ := cmd.Flags().GetStringArray("arg")
	for _, a := range args {
		b.Positional = append(b.Positional, util.ParseValue(a))
	}
	params, _ := cmd.Flags().GetStringArray("param")
	for _, p := range params {
		name, value, ok := strings.Cut(p, "=")
		if !ok {
			return b, fmt.Errorf("invalid parameter %q (expected name=value)", p)
		}
		if b.Named == nil {
			b.Named = make(map[string]any)
		}
		b.Named[name] = util.ParseValue(value)
	}
	return b, nil
}

// compileFilter compiles the optional filter argument
func compileFilter(ctx context.Context, cmd *cobra.Command, args []string) (filter.Predicate, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return filter.Always{}, nil
	}
	b, err := bindings(cmd)
	if err != nil {
		return nil, err
	}
	return compiler.CompileFilter(ctx, args[0], b)
}

// compileWhere compiles the --where flag
func compileWhere(ctx context.Context, cmd *cobra.Command) (filter.Predicate, error) {
	where, _ := cmd.Flags().GetString("where")
	return compileFilter(ctx, cmd, []string{where})
}

func sortedValues(values []any) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = util.FormatValue(v)
	}
	sort.Strings(out)
	return out
}

// printResults prints InvokeAll results, per entry failures are reported
// after all results
func printResults(results map[string]processor.Result) error {
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var errs []error
	for _, id := range ids {
		r := results[id]
		if r.Err != nil {
			errs = append(errs, r.Err)
			fmt.Printf("%s failed: %v\n", id, r.Err)
			continue
		}
		fmt.Printf("%s = %s\n", id, util.FormatValue(r.Value))
	}
	fmt.Printf("%d entries processed, %d failed\n", len(results), len(errs))
	return errors.Join(errs...)
}
