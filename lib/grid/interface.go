package grid

import (
	"context"

	"github.com/ValentinKolb/dGrid/lib/aggregate"
	"github.com/ValentinKolb/dGrid/lib/events"
	"github.com/ValentinKolb/dGrid/lib/filter"
	"github.com/ValentinKolb/dGrid/lib/processor"
	"github.com/ValentinKolb/dGrid/lib/qlang"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Entry is a key/value pair of the grid.
type Entry = filter.Entry

// ICache is the interface for interacting with a data grid cache.
// Keys and values may be any JSON-encodable Go value; they are normalised
// on the way in, so values read back are plain documents (map[string]any,
// []any, string, float64, bool or nil). All operations block until done or
// until ctx expires.
type ICache interface {
	// Get returns the value for a key. found is false for an absent key,
	// which is not an error.
	Get(ctx context.Context, key any) (value any, found bool, err error)
	// Put inserts or replaces a value. Concurrent puts of the same key are
	// last writer wins; use Invoke for read-modify-write.
	Put(ctx context.Context, key, value any) error
	// PutAll upserts a batch of entries with as few round trips as possible.
	PutAll(ctx context.Context, entries []Entry) error
	// Remove deletes a key and reports whether it existed.
	Remove(ctx context.Context, key any) (found bool, err error)
	// Size returns the number of entries.
	Size(ctx context.Context) (int64, error)
	// Entries returns all entries matching the predicate, in no particular order.
	Entries(ctx context.Context, p filter.Predicate) ([]Entry, error)
	// Keys returns the keys of all entries matching the predicate.
	Keys(ctx context.Context, p filter.Predicate) ([]any, error)
	// AddIndex creates an index on the extracted value. Ordered indexes also
	// serve range comparisons. Indexes change query cost, never results.
	AddIndex(ctx context.Context, x filter.ValueExtractor, ordered bool) error
	// Aggregate reduces the matching entries.
	Aggregate(ctx context.Context, p filter.Predicate, agg aggregate.Aggregator) (any, error)
	// Invoke runs a processor against one key, atomically for that key.
	Invoke(ctx context.Context, key any, proc processor.EntryProcessor) (processor.Result, error)
	// InvokeAll runs a processor against every matching entry, atomically per
	// entry. The result map is keyed by key id (see doc.ID). A failing
	// entry carries a PerEntryError in its Result and does not stop the others.
	InvokeAll(ctx context.Context, p filter.Predicate, proc processor.EntryProcessor) (map[string]processor.Result, error)
	// Subscribe registers a listener for change events within the scope.
	// Events arrive asynchronously, in mutation order per key.
	Subscribe(ctx context.Context, l events.Listener, s events.Scope) (events.Handle, error)
	// Unsubscribe removes a subscription. No event is delivered for the
	// handle after it returns.
	Unsubscribe(ctx context.Context, h events.Handle) error
	// Close releases the cache's resources.
	Close() error
}

// IPartialAggregator is implemented by caches that can return the mergeable
// intermediate state of an aggregation. Servers use it so clients can
// combine partitions.
type IPartialAggregator interface {
	AggregatePartial(ctx context.Context, p filter.Predicate, agg aggregate.Aggregator) (aggregate.Partial, error)
}

// --------------------------------------------------------------------------
// Bindings
// --------------------------------------------------------------------------

// Bindings are the placeholder values of a query.
type Bindings = qlang.Bindings

// Positional binds ?1, ?2, ... in order.
func Positional(values ...any) Bindings { return qlang.Positional(values...) }

// Named binds :name placeholders.
func Named(values map[string]any) Bindings { return qlang.Named(values) }
