// Package partition implements the dataset a grid member owns, together with
// the executors that run next to it: queries, aggregations and entry
// processors.
//
// Storage:
//
//	Entries live in an xsync.MapOf keyed by the canonical key id. Each entry
//	is an immutable slot; a write swaps the slot. Readers therefore never
//	lock and always see a complete value.
//
// Writes:
//
//	Every mutation of a key (put, remove, processor) holds that key's stripe
//	lock for the whole read-decide-write, index update and event publication.
//	This makes processors atomic per entry and keeps per-key event order equal
//	to mutation order.
//
// Queries:
//
//	Predicates on indexed extractors are narrowed through the indexes
//	(Equals via any index, range comparisons via ordered ones, And/Or
//	combining both sides); all candidates are re-evaluated against the full
//	predicate, so results always equal a linear scan.
//
// Entry processors:
//
//	InvokeAll re-checks the predicate under the key lock and runs the
//	processor on a private copy of the value. Errors and panics become that
//	key's PerEntryError. With WithWorkers, entries are processed in parallel
//	on an ants worker pool.
package partition

import (
	"fmt"
	"sync"

	"github.com/ValentinKolb/dGrid/lib/doc"
	"github.com/ValentinKolb/dGrid/lib/events"
	"github.com/ValentinKolb/dGrid/lib/filter"
	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/grid/index"
	"github.com/ValentinKolb/dGrid/lib/util"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/panjf2000/ants/v2"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("partition")

// DefaultStripes is the number of key lock stripes.
const DefaultStripes = 256

// slot is one stored entry. Slots are never modified after Store.
type slot struct {
	key   any
	value any
}

func (s *slot) entry() filter.Entry { return filter.Entry{Key: s.key, Value: s.value} }

// Partition is an owned, in-memory dataset.
type Partition struct {
	entries *xsync.MapOf[string, *slot]
	stripes *util.Stripes
	hub     *events.Hub
	pool    *ants.Pool

	idxMu   sync.RWMutex
	indexes map[string]*index.Index // by encoded extractor
}

// Option configures a Partition.
type Option func(*options)

type options struct {
	stripes int
	workers int
}

// WithStripes sets the number of key lock stripes.
func WithStripes(n int) Option { return func(o *options) { o.stripes = n } }

// WithWorkers processes InvokeAll entries on a pool of n goroutines.
// Zero (the default) processes them sequentially on the calling goroutine.
func WithWorkers(n int) Option { return func(o *options) { o.workers = n } }

// New creates an empty partition.
func New(opts ...Option) (*Partition, error) {
	o := options{stripes: DefaultStripes}
	for _, opt := range opts {
		opt(&o)
	}

	p := &Partition{
		entries: xsync.NewMapOf[string, *slot](),
		stripes: util.NewStripes(o.stripes),
		hub:     events.NewHub(),
		indexes: make(map[string]*index.Index),
	}
	if o.workers > 0 {
		pool, err := ants.NewPool(o.workers)
		if err != nil {
			return nil, fmt.Errorf("failed to create worker pool: %w", err)
		}
		p.pool = pool
	}
	return p, nil
}

// Close stops event delivery and the worker pool.
func (p *Partition) Close() {
	p.hub.Close()
	if p.pool != nil {
		p.pool.Release()
	}
}

// Hub returns the partition's event hub.
func (p *Partition) Hub() *events.Hub { return p.hub }

// --------------------------------------------------------------------------
// Key operations
// --------------------------------------------------------------------------

// KeyOf normalises a key and returns it with its id.
func KeyOf(key any) (normalized any, id string, err error) {
	normalized, err = doc.Normalize(key)
	if err != nil {
		return nil, "", grid.NewError(grid.RetCInvalidOperation, fmt.Sprintf("invalid key: %v", err))
	}
	id, err = doc.ID(normalized)
	if err != nil {
		return nil, "", grid.NewError(grid.RetCInvalidOperation, fmt.Sprintf("invalid key: %v", err))
	}
	return normalized, id, nil
}

func normalizeValue(v any) (any, error) {
	n, err := doc.Normalize(v)
	if err != nil {
		return nil, grid.NewError(grid.RetCInvalidOperation, fmt.Sprintf("invalid value: %v", err))
	}
	return n, nil
}

// Get returns a copy of the value stored under key.
func (p *Partition) Get(key any) (any, bool, error) {
	_, id, err := KeyOf(key)
	if err != nil {
		return nil, false, err
	}
	s, ok := p.entries.Load(id)
	if !ok {
		return nil, false, nil
	}
	return doc.Clone(s.value), true, nil
}

// Put stores a value and returns the previous one.
func (p *Partition) Put(key, value any) (old any, existed bool, err error) {
	k, id, err := KeyOf(key)
	if err != nil {
		return nil, false, err
	}
	v, err := normalizeValue(value)
	if err != nil {
		return nil, false, err
	}

	mu := p.stripes.For(id)
	mu.Lock()
	defer mu.Unlock()
	prev := p.store(id, k, v)
	if prev == nil {
		return nil, false, nil
	}
	return doc.Clone(prev.value), true, nil
}

// PutAll stores a batch. Invalid entries fail the call before anything is
// written.
func (p *Partition) PutAll(entries []filter.Entry) error {
	type prepared struct {
		id         string
		key, value any
	}
	batch := make([]prepared, len(entries))
	for i, e := range entries {
		k, id, err := KeyOf(e.Key)
		if err != nil {
			return err
		}
		v, err := normalizeValue(e.Value)
		if err != nil {
			return err
		}
		batch[i] = prepared{id: id, key: k, value: v}
	}
	for _, e := range batch {
		mu := p.stripes.For(e.id)
		mu.Lock()
		p.store(e.id, e.key, e.value)
		mu.Unlock()
	}
	return nil
}

// Remove deletes a key and reports whether it existed.
func (p *Partition) Remove(key any) (bool, error) {
	_, id, err := KeyOf(key)
	if err != nil {
		return false, err
	}
	mu := p.stripes.For(id)
	mu.Lock()
	defer mu.Unlock()
	return p.delete(id) != nil, nil
}

// Size returns the number of entries.
func (p *Partition) Size() int64 { return int64(p.entries.Size()) }

// --------------------------------------------------------------------------
// Mutation primitives (caller holds the stripe lock of id)
// --------------------------------------------------------------------------

func (p *Partition) store(id string, key, value any) *slot {
	next := &slot{key: key, value: value}
	prev, existed := p.entries.Load(id)
	p.entries.Store(id, next)
	p.reindex(id, next)

	if p.hub.Len() > 0 {
		e := events.Event{Kind: events.Inserted, Key: doc.Clone(key), KeyID: id, NewValue: doc.Clone(value)}
		if existed {
			e.Kind = events.Updated
			e.OldValue = doc.Clone(prev.value)
		}
		p.hub.Publish(e)
	}
	if !existed {
		return nil
	}
	return prev
}

func (p *Partition) delete(id string) *slot {
	prev, existed := p.entries.LoadAndDelete(id)
	if !existed {
		return nil
	}
	p.unindex(id)
	if p.hub.Len() > 0 {
		p.hub.Publish(events.Event{Kind: events.Deleted, Key: doc.Clone(prev.key), KeyID: id, OldValue: doc.Clone(prev.value)})
	}
	return prev
}

// --------------------------------------------------------------------------
// Subscriptions
// --------------------------------------------------------------------------

// Subscribe registers a listener for changes within the scope.
func (p *Partition) Subscribe(l events.Listener, s events.Scope) events.Handle {
	return p.hub.Subscribe(l, s)
}

// Unsubscribe removes a subscription.
func (p *Partition) Unsubscribe(h events.Handle) bool {
	return p.hub.Unsubscribe(h)
}
