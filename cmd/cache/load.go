package cache

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/ValentinKolb/dGrid/cmd/util"
	"github.com/ValentinKolb/dGrid/lib/doc"
	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/spf13/cobra"
)

var loadCmd = &cobra.Command{
	Use:   "load [file.csv]",
	Short: "Bulk loads a CSV file",
	Long: `Bulk loads a CSV file. The first row names the columns, every other row becomes one entry.
Columns with dotted names (e.g. homeAddress.state) become nested objects. Cells are parsed as JSON,
so numbers and booleans keep their type; other cells are strings.`,
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

func init() {
	loadCmd.Flags().StringSlice("key", nil, util.WrapString("Columns forming the key. A single column is used as plain key, several form a compound key object (default: the first column)"))
	loadCmd.Flags().Int("batch", grid.DefaultBatchSize, util.WrapString("Entries per PutAll batch"))
}

func runLoad(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}

	keyCols, _ := cmd.Flags().GetStringSlice("key")
	if len(keyCols) == 0 {
		keyCols = header[:1]
	}
	for _, k := range keyCols {
		if !slices.Contains(header, k) {
			return fmt.Errorf("key column %q not in header", k)
		}
	}

	batch, _ := cmd.Flags().GetInt("batch")
	loader := grid.NewLoader(rpcCache, batch)

	// a load may take much longer than a single call
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := time.Now()
	line := 1
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}

		key, value, err := rowToEntry(header, keyCols, record)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := loader.Add(ctx, key, value); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := loader.Flush(ctx); err != nil {
		return err
	}

	fmt.Printf("loaded %d entries in %s\n", loader.Loaded(), time.Since(start).Round(time.Millisecond))
	return nil
}

// rowToEntry builds the key and the document of one CSV row
func rowToEntry(header, keyCols, record []string) (key, value any, err error) {
	var v any = map[string]any{}
	keyParts := make(map[string]any, len(keyCols))
	for i, col := range header {
		if i >= len(record) {
			break
		}
		cell := util.ParseValue(record[i])
		if slices.Contains(keyCols, col) {
			keyParts[col] = cell
		}
		if v, err = doc.SetPath(v, strings.Split(col, "."), cell); err != nil {
			return nil, nil, err
		}
	}
	if len(keyCols) == 1 {
		return keyParts[keyCols[0]], v, nil
	}
	return keyParts, v, nil
}
