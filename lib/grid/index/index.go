// Package index implements the secondary indexes a partition keeps on
// extracted values.
//
//   - Hash indexes map the canonical form of a value to the key ids holding
//     it and answer equality lookups.
//   - Ordered indexes additionally keep a B-tree (google/btree) sorted by
//     value kind, then value, then key id, and answer range lookups for
//     numbers, strings and booleans.
//
// Indexes store key ids only. The partition always re-checks candidates
// against the full predicate, so an index may be used for any part of a
// query without changing its result.
package index

import (
	"sync"

	"github.com/ValentinKolb/dGrid/lib/doc"
	"github.com/ValentinKolb/dGrid/lib/filter"
	"github.com/google/btree"
)

// Bound is one end of a range. A nil *Bound means unbounded.
type Bound struct {
	Value     any
	Inclusive bool
}

// Index is a secondary index on the value produced by an extractor.
// All methods are safe for concurrent use.
type Index struct {
	extractor filter.ValueExtractor
	ordered   bool

	mu     sync.RWMutex
	hashed map[string]map[string]struct{} // canonical value -> key ids
	values map[string]any                 // key id -> indexed value
	tree   *btree.BTree                   // ordered indexes only
}

// New creates an empty index.
func New(x filter.ValueExtractor, ordered bool) *Index {
	ix := &Index{
		extractor: x,
		ordered:   ordered,
		hashed:    make(map[string]map[string]struct{}),
		values:    make(map[string]any),
	}
	if ordered {
		ix.tree = btree.New(32)
	}
	return ix
}

func (ix *Index) Extractor() filter.ValueExtractor { return ix.extractor }
func (ix *Index) Ordered() bool                    { return ix.ordered }

// Name identifies the index by its extractor.
func (ix *Index) Name() string { return ix.extractor.String() }

// Put indexes (or re-indexes) an entry under its key id.
func (ix *Index) Put(id string, e filter.Entry) {
	v := ix.extractor.Extract(e)
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(id)
	h := canonical(v)
	ids, ok := ix.hashed[h]
	if !ok {
		ids = make(map[string]struct{})
		ix.hashed[h] = ids
	}
	ids[id] = struct{}{}
	ix.values[id] = v
	if ix.ordered {
		ix.tree.ReplaceOrInsert(newItem(v, id))
	}
}

// Remove drops a key id from the index.
func (ix *Index) Remove(id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(id)
}

func (ix *Index) removeLocked(id string) {
	v, ok := ix.values[id]
	if !ok {
		return
	}
	delete(ix.values, id)
	h := canonical(v)
	if ids, ok := ix.hashed[h]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(ix.hashed, h)
		}
	}
	if ix.ordered {
		ix.tree.Delete(newItem(v, id))
	}
}

// Len returns the number of indexed key ids.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.values)
}

// Equal returns the key ids whose value equals v.
func (ix *Index) Equal(v any) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	ids := ix.hashed[canonical(v)]
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	return out
}

// Rangeable reports whether a range over values like v can be answered.
func (ix *Index) Rangeable(v any) bool {
	if !ix.ordered {
		return false
	}
	switch doc.KindOf(v) {
	case doc.KindNumber, doc.KindString, doc.KindBool:
		return true
	}
	return false
}

// Range returns the key ids whose value lies between lo and hi. Only values
// of the bounds' kind are returned, since values of different kinds are not
// ordered. At least one bound must be set and both must share a kind.
func (ix *Index) Range(lo, hi *Bound) []string {
	var kindOf any
	switch {
	case lo != nil:
		kindOf = lo.Value
	case hi != nil:
		kindOf = hi.Value
	default:
		return nil
	}
	if !ix.Rangeable(kindOf) {
		return nil
	}
	kind := doc.KindOf(kindOf)
	if lo != nil && hi != nil && doc.KindOf(hi.Value) != kind {
		return nil
	}

	start := &item{kind: kind, edge: -1}
	if lo != nil {
		start = newItem(lo.Value, "")
	}

	var out []string
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	ix.tree.AscendGreaterOrEqual(start, func(i btree.Item) bool {
		it := i.(*item)
		if it.kind != kind {
			return false
		}
		if lo != nil && !lo.Inclusive {
			if c, _ := doc.Compare(it.value, lo.Value); c == 0 {
				return true
			}
		}
		if hi != nil {
			c, _ := doc.Compare(it.value, hi.Value)
			if c > 0 || (c == 0 && !hi.Inclusive) {
				return false
			}
		}
		out = append(out, it.id)
		return true
	})
	return out
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func canonical(v any) string {
	id, err := doc.ID(v)
	if err != nil {
		// values in the grid are normalised documents and always encode
		return "\x00invalid"
	}
	return id
}

// item is a B-tree element. edge -1 sorts before and +1 after every value
// of its kind; it is used as a range pivot.
type item struct {
	kind  doc.Kind
	value any
	id    string
	edge  int8
}

func newItem(v any, id string) *item {
	return &item{kind: doc.KindOf(v), value: v, id: id}
}

func (a *item) Less(than btree.Item) bool {
	b := than.(*item)
	if a.kind != b.kind {
		return a.kind < b.kind
	}
	if a.edge != 0 || b.edge != 0 {
		return a.edge < b.edge
	}
	c, comparable := doc.Compare(a.value, b.value)
	if comparable {
		if c != 0 {
			return c < 0
		}
	} else if ca, cb := canonical(a.value), canonical(b.value); ca != cb {
		// unordered kinds (objects, arrays) fall back to their encoding
		return ca < cb
	}
	return a.id < b.id
}
