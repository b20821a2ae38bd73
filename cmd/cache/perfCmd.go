package cache

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/dGrid/cmd/util"
	"github.com/ValentinKolb/dGrid/lib/filter"
	"github.com/ValentinKolb/dGrid/lib/processor"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for grid members",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix  = "__test"
	perfNumThreads = 10
	perfKeySpread  = 100
	perfOps        = 1000
	perfSkip       = make([]string, 0)
)

// perfTest is one benchmark, op is called with the index of the operation
type perfTest struct {
	name  string
	setup bool // fill the keys before the test
	op    func(ctx context.Context, i int) error
}

func init() {
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. put,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines issuing requests"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "ops"
	perfTestCmd.Flags().Int(key, 1000, util.WrapString("Operations per goroutine and test"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfOps = max(viper.GetInt("ops"), 1)
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for grid members")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d, Ops per thread: %d, Keys: %d\n", perfNumThreads, perfOps, perfKeySpread)
	fmt.Println()

	older := filter.GreaterThan{Extractor: filter.Property{Name: "n"}, Value: float64(perfKeySpread / 2)}
	tests := []perfTest{
		{name: "put", op: func(ctx context.Context, i int) error {
			return rpcCache.Put(ctx, perfKey(i), map[string]any{"n": i % perfKeySpread})
		}},
		{name: "get", setup: true, op: func(ctx context.Context, i int) error {
			_, _, err := rpcCache.Get(ctx, perfKey(i))
			return err
		}},
		{name: "invoke", setup: true, op: func(ctx context.Context, i int) error {
			_, err := rpcCache.Invoke(ctx, perfKey(i), &processor.Increment{Path: "hits", Delta: 1})
			return err
		}},
		{name: "query", setup: true, op: func(ctx context.Context, i int) error {
			_, err := rpcCache.Keys(ctx, older)
			return err
		}},
		{name: "remove", setup: true, op: func(ctx context.Context, i int) error {
			_, err := rpcCache.Remove(ctx, perfKey(i))
			return err
		}},
	}

	registry := gometrics.NewRegistry()
	for _, test := range tests {
		if slices.Contains(perfSkip, test.name) {
			fmt.Printf("%-12sskipped\n", test.name)
			continue
		}
		timer := gometrics.GetOrRegisterTimer(test.name, registry)
		errs := gometrics.GetOrRegisterCounter(test.name+".errors", registry)
		runPerfTest(test, timer, errs)
		printResult(test.name, timer.Snapshot(), errs.Count())
	}

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, registry); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func perfKey(i int) string {
	return fmt.Sprintf("%s-%d", perfKeyPrefix, i%perfKeySpread)
}

// runPerfTest runs the operations of a test from perfNumThreads goroutines
// and removes the test keys afterwards
func runPerfTest(test perfTest, timer gometrics.Timer, errs gometrics.Counter) {
	ctx := context.Background()

	if test.setup {
		for i := 0; i < perfKeySpread; i++ {
			if err := rpcCache.Put(ctx, perfKey(i), map[string]any{"n": i}); err != nil {
				log.Printf("(%s) - error preparing key: %v\n", test.name, err)
			}
		}
	}

	var wg sync.WaitGroup
	for t := 0; t < perfNumThreads; t++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			for i := 0; i < perfOps; i++ {
				start := time.Now()
				if err := test.op(ctx, offset+i); err != nil {
					errs.Inc(1)
					log.Printf("(%s) - error: %v\n", test.name, err)
					continue
				}
				timer.UpdateSince(start)
			}
		}(t * perfOps)
	}
	wg.Wait()

	// cleanup
	for i := 0; i < perfKeySpread; i++ {
		if _, err := rpcCache.Remove(ctx, perfKey(i)); err != nil {
			log.Printf("(%s) - error deleting key: %v\n", test.name, err)
		}
	}
}

var percentiles = []float64{0.5, 0.95, 0.99}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, t gometrics.Timer, errors int64) {
	if t.Count() == 0 {
		fmt.Printf("%-12sno successful operations (%d errors)\n", test, errors)
		return
	}
	ps := t.Percentiles(percentiles)
	fmt.Printf("%-12s%8d ops  mean %-10s p50 %-10s p95 %-10s p99 %-10s %8.0f ops/sec  %d errors\n",
		test, t.Count(),
		time.Duration(t.Mean()).Round(time.Microsecond),
		time.Duration(ps[0]).Round(time.Microsecond),
		time.Duration(ps[1]).Round(time.Microsecond),
		time.Duration(ps[2]).Round(time.Microsecond),
		t.RateMean(), errors)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, registry gometrics.Registry) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "Ops", "Errors", "MeanNs", "P50Ns", "P95Ns", "P99Ns", "OpsPerSec",
		"Members", "TimeoutSec", "RetryCount", "ShardID", "Serializer", "Transport",
		"Threads", "Keys",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	config := util.GetClientConfig()
	var rows [][]string
	registry.Each(func(name string, m any) {
		t, ok := m.(gometrics.Timer)
		if !ok {
			return
		}
		t = t.Snapshot()
		var errCount int64
		if c, ok := registry.Get(name + ".errors").(gometrics.Counter); ok {
			errCount = c.Count()
		}
		ps := t.Percentiles(percentiles)
		rows = append(rows, []string{
			name,
			strconv.FormatInt(t.Count(), 10),
			strconv.FormatInt(errCount, 10),
			fmt.Sprintf("%.0f", t.Mean()),
			fmt.Sprintf("%.0f", ps[0]),
			fmt.Sprintf("%.0f", ps[1]),
			fmt.Sprintf("%.0f", ps[2]),
			fmt.Sprintf("%.0f", t.RateMean()),
			strings.Join(config.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.RetryCount),
			strconv.FormatUint(util.GetShardID(), 10),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfKeySpread),
		})
	})
	slices.SortFunc(rows, func(a, b []string) int { return strings.Compare(a[0], b[0]) })

	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", row[0], err)
		}
	}
	return nil
}
