package testing

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dGrid/lib/aggregate"
	"github.com/ValentinKolb/dGrid/lib/doc"
	"github.com/ValentinKolb/dGrid/lib/events"
	"github.com/ValentinKolb/dGrid/lib/filter"
	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/processor"
)

// CacheFactory is a function that creates a new, empty cache
type CacheFactory func() grid.ICache

// EventTimeout bounds how long the suite waits for asynchronous events.
var EventTimeout = 5 * time.Second

// RunCacheTests runs the conformance suite for an ICache implementation.
func RunCacheTests(t *testing.T, name string, factory CacheFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, factory())
		})

		t.Run("Remove", func(t *testing.T) {
			testRemove(t, factory())
		})

		t.Run("PutAll", func(t *testing.T) {
			testPutAll(t, factory())
		})

		t.Run("ComplexKeys", func(t *testing.T) {
			testComplexKeys(t, factory())
		})

		t.Run("ValueIsolation", func(t *testing.T) {
			testValueIsolation(t, factory())
		})

		t.Run("Query", func(t *testing.T) {
			testQuery(t, factory(), false)
		})

		t.Run("IndexedQuery", func(t *testing.T) {
			testQuery(t, factory(), true)
		})

		t.Run("Aggregate", func(t *testing.T) {
			testAggregate(t, factory())
		})

		t.Run("Invoke", func(t *testing.T) {
			testInvoke(t, factory())
		})

		t.Run("InvokeAll", func(t *testing.T) {
			testInvokeAll(t, factory())
		})

		t.Run("PerEntryError", func(t *testing.T) {
			testPerEntryError(t, factory())
		})

		t.Run("ConcurrentIncrement", func(t *testing.T) {
			testConcurrentIncrement(t, factory())
		})

		t.Run("Subscribe", func(t *testing.T) {
			testSubscribe(t, factory())
		})

		t.Run("ScopedSubscribe", func(t *testing.T) {
			testScopedSubscribe(t, factory())
		})

		t.Run("Loader", func(t *testing.T) {
			testLoader(t, factory())
		})

		t.Run("Contacts", func(t *testing.T) {
			testContacts(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func newContext(t testing.TB) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func must(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func closeCache(t testing.TB, cache grid.ICache) {
	if err := cache.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

// recorder collects events from a listener
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) listener() events.Listener {
	return events.All(func(e events.Event) {
		r.mu.Lock()
		r.events = append(r.events, e)
		r.mu.Unlock()
	})
}

func (r *recorder) waitFor(t testing.TB, n int) []events.Event {
	t.Helper()
	deadline := time.Now().Add(EventTimeout)
	for {
		r.mu.Lock()
		got := append([]events.Event(nil), r.events...)
		r.mu.Unlock()
		if len(got) >= n || time.Now().After(deadline) {
			if len(got) < n {
				t.Fatalf("expected %d events, got %d: %v", n, len(got), got)
			}
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func sortedKeys(keys []any) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = fmt.Sprint(k)
	}
	sort.Strings(out)
	return out
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, cache grid.ICache) {
	defer closeCache(t, cache)
	ctx := newContext(t)

	must(t, cache.Put(ctx, "test-key", "test-value1"))
	v, found, err := cache.Get(ctx, "test-key")
	must(t, err)
	if !found || v != "test-value1" {
		t.Errorf("Expected test-value1, got %v (found=%v)", v, found)
	}

	must(t, cache.Put(ctx, "test-key", map[string]any{"n": 1}))
	v, _, err = cache.Get(ctx, "test-key")
	must(t, err)
	if !doc.Equal(v, map[string]any{"n": 1.0}) {
		t.Errorf("Expected overwritten document, got %v", v)
	}

	_, found, err = cache.Get(ctx, "nonexistent-key")
	must(t, err)
	if found {
		t.Error("Expected nonexistent key to return found=false")
	}

	size, err := cache.Size(ctx)
	must(t, err)
	if size != 1 {
		t.Errorf("Expected size 1, got %d", size)
	}

	if err := cache.Put(ctx, make(chan int), 1); !errors.Is(err, grid.ErrInvalid) {
		t.Errorf("Expected invalid operation for unencodable key, got %v", err)
	}
}

func testRemove(t *testing.T, cache grid.ICache) {
	defer closeCache(t, cache)
	ctx := newContext(t)

	must(t, cache.Put(ctx, "k", "v"))
	found, err := cache.Remove(ctx, "k")
	must(t, err)
	if !found {
		t.Error("Expected Remove to report the existing key")
	}
	found, err = cache.Remove(ctx, "k")
	must(t, err)
	if found {
		t.Error("Expected second Remove to report a missing key")
	}
	if _, found, _ := cache.Get(ctx, "k"); found {
		t.Error("Expected key to be gone")
	}
}

func testPutAll(t *testing.T, cache grid.ICache) {
	defer closeCache(t, cache)
	ctx := newContext(t)

	batch := make([]grid.Entry, 250)
	for i := range batch {
		batch[i] = grid.Entry{Key: i, Value: map[string]any{"i": i}}
	}
	must(t, cache.PutAll(ctx, batch))
	must(t, cache.PutAll(ctx, nil))

	size, err := cache.Size(ctx)
	must(t, err)
	if size != int64(len(batch)) {
		t.Fatalf("Expected size %d, got %d", len(batch), size)
	}
	v, found, err := cache.Get(ctx, 42)
	must(t, err)
	if !found || doc.Property(v, "i") != 42.0 {
		t.Errorf("Expected entry 42, got %v", v)
	}
}

func testComplexKeys(t *testing.T, cache grid.ICache) {
	defer closeCache(t, cache)
	ctx := newContext(t)

	type contactID struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	}
	must(t, cache.Put(ctx, contactID{"John", "Doe"}, "john"))

	// a structurally equal map addresses the same entry, regardless of order
	v, found, err := cache.Get(ctx, map[string]any{"lastName": "Doe", "firstName": "John"})
	must(t, err)
	if !found || v != "john" {
		t.Errorf("Expected equal keys to match, got %v (found=%v)", v, found)
	}

	// numbers are normalised
	must(t, cache.Put(ctx, 7, "seven"))
	if v, _, _ := cache.Get(ctx, 7.0); v != "seven" {
		t.Errorf("Expected int and float keys to match, got %v", v)
	}
}

func testValueIsolation(t *testing.T, cache grid.ICache) {
	defer closeCache(t, cache)
	ctx := newContext(t)

	in := map[string]any{"tags": []any{"a"}}
	must(t, cache.Put(ctx, "k", in))
	in["tags"] = []any{"changed"}

	out, _, err := cache.Get(ctx, "k")
	must(t, err)
	out.(map[string]any)["tags"] = []any{"changed"}

	again, _, err := cache.Get(ctx, "k")
	must(t, err)
	if !doc.Equal(again, map[string]any{"tags": []any{"a"}}) {
		t.Errorf("Stored value was modified through a caller's reference: %v", again)
	}
}

func testQuery(t *testing.T, cache grid.ICache, indexed bool) {
	defer closeCache(t, cache)
	ctx := newContext(t)

	age := filter.Property{Name: "age"}
	state := filter.PathOf("address.state")
	if indexed {
		must(t, cache.AddIndex(ctx, age, true))
		must(t, cache.AddIndex(ctx, state, false))
	}

	var batch []grid.Entry
	for i := 0; i < 100; i++ {
		batch = append(batch, grid.Entry{
			Key:   fmt.Sprintf("p%03d", i),
			Value: map[string]any{"age": i, "address": map[string]any{"state": []string{"MA", "CA"}[i%2]}},
		})
	}
	must(t, cache.PutAll(ctx, batch))
	if indexed {
		// indexes added after the data must see it too
		must(t, cache.AddIndex(ctx, filter.Key{}, true))
	}

	tests := []struct {
		name string
		pred filter.Predicate
		want int
	}{
		{"all", filter.Always{}, 100},
		{"nil predicate", nil, 100},
		{"equals", filter.Equals{Extractor: state, Value: "MA"}, 50},
		{"greater", filter.GreaterThan{Extractor: age, Value: 89}, 10},
		{"range", filter.And{
			Left:  filter.GreaterEqual{Extractor: age, Value: 10},
			Right: filter.LessThan{Extractor: age, Value: 20},
		}, 10},
		{"or", filter.Or{
			Left:  filter.LessThan{Extractor: age, Value: 5},
			Right: filter.GreaterEqual{Extractor: age, Value: 95},
		}, 10},
		{"mixed", filter.And{
			Left:  filter.Equals{Extractor: state, Value: "CA"},
			Right: filter.LessThan{Extractor: age, Value: 10},
		}, 5},
		{"key range", filter.LessThan{Extractor: filter.Key{}, Value: "p010"}, 10},
		{"no match", filter.Equals{Extractor: state, Value: "TX"}, 0},
		{"type mismatch", filter.GreaterThan{Extractor: age, Value: "a"}, 0},
	}
	for _, tt := range tests {
		entries, err := cache.Entries(ctx, tt.pred)
		must(t, err)
		if len(entries) != tt.want {
			t.Errorf("%s: Expected %d entries, got %d", tt.name, tt.want, len(entries))
		}
		for _, e := range entries {
			if tt.pred != nil && !tt.pred.Evaluate(e) {
				t.Errorf("%s: entry %v does not match", tt.name, e.Key)
			}
		}
		keys, err := cache.Keys(ctx, tt.pred)
		must(t, err)
		if len(keys) != tt.want {
			t.Errorf("%s: Expected %d keys, got %d", tt.name, tt.want, len(keys))
		}
	}

	// indexes must follow updates
	must(t, cache.Put(ctx, "p000", map[string]any{"age": 200, "address": map[string]any{"state": "TX"}}))
	keys, err := cache.Keys(ctx, filter.Equals{Extractor: state, Value: "TX"})
	must(t, err)
	if !reflect.DeepEqual(keys, []any{"p000"}) {
		t.Errorf("Expected updated entry to be found by its new value, got %v", keys)
	}
	keys, err = cache.Keys(ctx, filter.LessThan{Extractor: age, Value: 1})
	must(t, err)
	if len(keys) != 0 {
		t.Errorf("Expected old value to be gone from the index, got %v", keys)
	}
}

func testAggregate(t *testing.T, cache grid.ICache) {
	defer closeCache(t, cache)
	ctx := newContext(t)
	age := filter.Property{Name: "age"}

	count, err := cache.Aggregate(ctx, filter.Always{}, aggregate.Count())
	must(t, err)
	if count != int64(0) {
		t.Errorf("Expected count 0 on empty cache, got %v", count)
	}
	avg, err := cache.Aggregate(ctx, filter.Always{}, aggregate.Average(age))
	must(t, err)
	if avg != nil {
		t.Errorf("Expected no average on empty cache, got %v", avg)
	}

	for i, a := range []any{40, 60, 20, "n/a"} {
		must(t, cache.Put(ctx, i, map[string]any{"age": a}))
	}

	tests := []struct {
		pred filter.Predicate
		agg  aggregate.Aggregator
		want any
	}{
		{filter.Always{}, aggregate.Count(), int64(4)},
		{filter.Always{}, aggregate.Sum(age), 120.0},
		{filter.Always{}, aggregate.Min(age), 20.0},
		{filter.Always{}, aggregate.Max(age), 60.0},
		{filter.Always{}, aggregate.Average(age), 40.0},
		{filter.GreaterThan{Extractor: age, Value: 30}, aggregate.Average(age), 50.0},
		{filter.GreaterThan{Extractor: age, Value: 100}, aggregate.Max(age), nil},
	}
	for _, tt := range tests {
		got, err := cache.Aggregate(ctx, tt.pred, tt.agg)
		must(t, err)
		if got != tt.want {
			t.Errorf("%s: Expected %v, got %v", tt.agg, tt.want, got)
		}
	}
}

func testInvoke(t *testing.T, cache grid.ICache) {
	defer closeCache(t, cache)
	ctx := newContext(t)

	res, err := cache.Invoke(ctx, "absent", &processor.Update{Path: "x", Value: 1})
	must(t, err)
	if res.Err != nil {
		t.Fatalf("Expected no per entry error, got %v", res.Err)
	}
	if _, found, _ := cache.Get(ctx, "absent"); found {
		t.Error("Expected Update not to create an absent entry")
	}

	res, err = cache.Invoke(ctx, "k", &processor.PutIfAbsent{Value: map[string]any{"n": 1}})
	must(t, err)
	if res.Value != nil {
		t.Errorf("Expected PutIfAbsent to insert, got %v", res.Value)
	}

	res, err = cache.Invoke(ctx, "k", &processor.Increment{Path: "n", Delta: 2})
	must(t, err)
	if res.Err != nil || res.Value != 3.0 {
		t.Errorf("Expected incremented value 3, got %+v", res)
	}

	res, err = cache.Invoke(ctx, "k", &processor.Extract{Extractor: filter.Property{Name: "n"}})
	must(t, err)
	if res.Value != 3.0 {
		t.Errorf("Expected extracted value 3, got %v", res.Value)
	}

	res, err = cache.Invoke(ctx, "k", &processor.Remove{})
	must(t, err)
	if res.Value != true {
		t.Errorf("Expected Remove to report true, got %v", res.Value)
	}
	if _, found, _ := cache.Get(ctx, "k"); found {
		t.Error("Expected processor to remove the entry")
	}
}

func testInvokeAll(t *testing.T, cache grid.ICache) {
	defer closeCache(t, cache)
	ctx := newContext(t)

	states := map[string]string{"a": "MA", "b": "CA", "c": "NY", "d": "MA"}
	for k, s := range states {
		must(t, cache.Put(ctx, k, map[string]any{"homeAddress": map[string]any{"state": s}}))
	}

	work := map[string]any{"street": "1 Main St", "city": "Boston", "state": "MA"}
	pred := filter.Equals{Extractor: filter.PathOf("homeAddress.state"), Value: "MA"}
	results, err := cache.InvokeAll(ctx, pred, &processor.Update{Path: "workAddress", Value: work})
	must(t, err)
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	for id, res := range results {
		if res.Err != nil {
			t.Errorf("%s: unexpected per entry error %v", id, res.Err)
		}
	}

	for k, s := range states {
		v, _, err := cache.Get(ctx, k)
		must(t, err)
		got := doc.Property(v, "workAddress")
		if s == "MA" && !doc.Equal(got, work) {
			t.Errorf("%s: Expected work address to be set, got %v", k, got)
		}
		if s != "MA" && got != nil {
			t.Errorf("%s: Expected non-matching entry to be untouched, got %v", k, got)
		}
	}

	results, err = cache.InvokeAll(ctx, filter.Equals{Extractor: filter.PathOf("homeAddress.state"), Value: "TX"}, &processor.Remove{})
	must(t, err)
	if len(results) != 0 {
		t.Errorf("Expected no results, got %v", results)
	}
}

func testPerEntryError(t *testing.T, cache grid.ICache) {
	defer closeCache(t, cache)
	ctx := newContext(t)

	must(t, cache.Put(ctx, "num", map[string]any{"n": 1}))
	must(t, cache.Put(ctx, "str", map[string]any{"n": "one"}))

	results, err := cache.InvokeAll(ctx, filter.Always{}, &processor.Increment{Path: "n", Delta: 1})
	must(t, err)
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}

	numID, _ := doc.ID("num")
	strID, _ := doc.ID("str")
	if results[numID].Err != nil || results[numID].Value != 2.0 {
		t.Errorf("Expected numeric entry to be incremented, got %+v", results[numID])
	}
	if !errors.Is(results[strID].Err, grid.ErrPerEntry) {
		t.Errorf("Expected per entry error, got %v", results[strID].Err)
	}
	v, _, _ := cache.Get(ctx, "str")
	if doc.Property(v, "n") != "one" {
		t.Errorf("Expected failed entry to be untouched, got %v", v)
	}
}

func testConcurrentIncrement(t *testing.T, cache grid.ICache) {
	defer closeCache(t, cache)
	ctx := newContext(t)

	must(t, cache.Put(ctx, "counter", map[string]any{"n": 0}))
	const workers, increments = 8, 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < increments; i++ {
				if _, err := cache.Invoke(ctx, "counter", &processor.Increment{Path: "n", Delta: 1}); err != nil {
					t.Errorf("Invoke failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	v, _, err := cache.Get(ctx, "counter")
	must(t, err)
	if n := doc.Property(v, "n"); n != float64(workers*increments) {
		t.Errorf("Expected %d, got %v", workers*increments, n)
	}
}

func testSubscribe(t *testing.T, cache grid.ICache) {
	defer closeCache(t, cache)
	ctx := newContext(t)

	rec := &recorder{}
	h, err := cache.Subscribe(ctx, rec.listener(), events.AllEntries())
	must(t, err)

	must(t, cache.Put(ctx, "k", 1))
	must(t, cache.Put(ctx, "k", 2))
	_, err = cache.Invoke(ctx, "k", &processor.Increment{Delta: 1})
	must(t, err)
	_, err = cache.Remove(ctx, "k")
	must(t, err)

	got := rec.waitFor(t, 4)
	kinds := make([]events.Kind, len(got))
	for i, e := range got {
		kinds[i] = e.Kind
	}
	want := []events.Kind{events.Inserted, events.Updated, events.Updated, events.Deleted}
	if !reflect.DeepEqual(kinds, want) {
		t.Fatalf("Expected %v, got %v", want, kinds)
	}
	if got[1].OldValue != 1.0 || got[1].NewValue != 2.0 {
		t.Errorf("Expected update 1 -> 2, got %v", got[1])
	}
	if got[2].NewValue != 3.0 {
		t.Errorf("Expected processor update to 3, got %v", got[2])
	}
	if got[3].OldValue != 3.0 || got[3].Key != "k" {
		t.Errorf("Expected delete of k carrying 3, got %v", got[3])
	}

	must(t, cache.Unsubscribe(ctx, h))
	must(t, cache.Put(ctx, "after", 1))
	time.Sleep(100 * time.Millisecond)
	if n := rec.count(); n != 4 {
		t.Errorf("Expected no events after unsubscribe, got %d", n)
	}
}

func testScopedSubscribe(t *testing.T, cache grid.ICache) {
	defer closeCache(t, cache)
	ctx := newContext(t)

	byKey := &recorder{}
	watched, _ := doc.ID("watched")
	hk, err := cache.Subscribe(ctx, byKey.listener(), events.Keys(watched))
	must(t, err)
	defer cache.Unsubscribe(ctx, hk)

	byFilter := &recorder{}
	hf, err := cache.Subscribe(ctx, byFilter.listener(),
		events.Matching(filter.Equals{Extractor: filter.Property{Name: "state"}, Value: "MA"}))
	must(t, err)
	defer cache.Unsubscribe(ctx, hf)

	must(t, cache.Put(ctx, "other", map[string]any{"state": "CA"}))
	must(t, cache.Put(ctx, "watched", map[string]any{"state": "CA"}))
	must(t, cache.Put(ctx, "mover", map[string]any{"state": "MA"}))
	must(t, cache.Put(ctx, "mover", map[string]any{"state": "NY"})) // leaves the filter, still reported

	keyEvents := byKey.waitFor(t, 1)
	filterEvents := byFilter.waitFor(t, 2)
	time.Sleep(100 * time.Millisecond)

	if n := byKey.count(); n != 1 || keyEvents[0].Key != "watched" {
		t.Errorf("Expected one event for watched, got %v", keyEvents)
	}
	if n := byFilter.count(); n != 2 {
		t.Errorf("Expected two events for the filter, got %d", n)
	}
	for _, e := range filterEvents {
		if e.Key != "mover" {
			t.Errorf("Unexpected event for %v", e.Key)
		}
	}
}

func testLoader(t *testing.T, cache grid.ICache) {
	defer closeCache(t, cache)
	ctx := newContext(t)

	l := grid.NewLoader(cache, 7)
	for i := 0; i < 50; i++ {
		must(t, l.Add(ctx, i, i))
	}
	must(t, l.Flush(ctx))
	if l.Loaded() != 50 || l.Pending() != 0 {
		t.Errorf("Expected 50 loaded and none pending, got %d/%d", l.Loaded(), l.Pending())
	}
	size, err := cache.Size(ctx)
	must(t, err)
	if size != 50 {
		t.Errorf("Expected 50 entries, got %d", size)
	}
}

// testContacts walks through the contacts example: compound keys, documents
// with nested addresses, a filter query, an index and a bulk update.
func testContacts(t *testing.T, cache grid.ICache) {
	defer closeCache(t, cache)
	ctx := newContext(t)

	contact := func(first, last, state string, age int) grid.Entry {
		return grid.Entry{
			Key: map[string]any{"firstName": first, "lastName": last},
			Value: map[string]any{
				"firstName":   first,
				"lastName":    last,
				"age":         age,
				"homeAddress": map[string]any{"street": "Main St", "city": "Somewhere", "state": state, "zip": "01234"},
				"phones":      map[string]any{"home": map[string]any{"number": "555-0100"}},
			},
		}
	}
	must(t, cache.PutAll(ctx, []grid.Entry{
		contact("John", "Doe", "MA", 40),
		contact("Jane", "Doe", "CA", 58),
		contact("Max", "Power", "MA", 59),
		contact("Erika", "Mustermann", "NY", 70),
	}))

	compiler := grid.NewLocalCompiler()
	older, err := compiler.CompileFilter(ctx, "age > ?1", grid.Positional(58))
	must(t, err)
	keys, err := cache.Keys(ctx, older)
	must(t, err)
	var names []string
	for _, k := range keys {
		names = append(names, fmt.Sprint(doc.Property(k, "firstName")))
	}
	sort.Strings(names)
	if !reflect.DeepEqual(names, []string{"Erika", "Max"}) {
		t.Errorf("Expected Erika and Max, got %v", names)
	}

	lastName, err := compiler.CompileExtractor(ctx, "key().lastName")
	must(t, err)
	must(t, cache.AddIndex(ctx, lastName, false))
	does, err := cache.Keys(ctx, filter.Equals{Extractor: lastName, Value: "Doe"})
	must(t, err)
	if len(does) != 2 {
		t.Errorf("Expected two Does, got %v", sortedKeys(does))
	}

	inMA, err := compiler.CompileFilter(ctx, "homeAddress.state = :state", grid.Named(map[string]any{"state": "MA"}))
	must(t, err)
	results, err := cache.InvokeAll(ctx, inMA, &processor.Update{Path: "workAddress.state", Value: "MA"})
	must(t, err)
	if len(results) != 2 {
		t.Errorf("Expected two updated contacts, got %d", len(results))
	}
	v, _, err := cache.Get(ctx, map[string]any{"firstName": "Max", "lastName": "Power"})
	must(t, err)
	if doc.Path(v, []string{"workAddress", "state"}) != "MA" {
		t.Errorf("Expected work address, got %v", v)
	}

	avg, err := cache.Aggregate(ctx, filter.Always{}, aggregate.Average(filter.Property{Name: "age"}))
	must(t, err)
	if avg != 56.75 {
		t.Errorf("Expected average age 56.75, got %v", avg)
	}
}
