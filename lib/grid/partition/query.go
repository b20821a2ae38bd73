package partition

import (
	"github.com/ValentinKolb/dGrid/lib/aggregate"
	"github.com/ValentinKolb/dGrid/lib/doc"
	"github.com/ValentinKolb/dGrid/lib/filter"
	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/grid/index"
)

// --------------------------------------------------------------------------
// Indexes
// --------------------------------------------------------------------------

// IndexDef describes an index, e.g. for snapshots.
type IndexDef struct {
	Extractor filter.ValueExtractor
	Ordered   bool
}

func indexKey(x filter.ValueExtractor) (string, error) {
	b, err := filter.MarshalExtractor(x)
	if err != nil {
		return "", grid.NewError(grid.RetCInvalidOperation, err.Error())
	}
	return string(b), nil
}

// AddIndex builds an index over the current entries. Adding an existing
// index is a no-op, unless a hash index is upgraded to an ordered one.
func (p *Partition) AddIndex(x filter.ValueExtractor, ordered bool) error {
	key, err := indexKey(x)
	if err != nil {
		return err
	}

	p.idxMu.Lock()
	defer p.idxMu.Unlock()
	if cur, ok := p.indexes[key]; ok && (cur.Ordered() || !ordered) {
		return nil
	}

	ix := index.New(x, ordered)
	// writers take idxMu.RLock to reindex, so holding the write lock while
	// filling keeps the new index consistent with concurrent puts
	p.entries.Range(func(id string, s *slot) bool {
		ix.Put(id, s.entry())
		return true
	})
	p.indexes[key] = ix
	log.Debugf("added %s index on %s (%d entries)", kindOfIndex(ordered), x, ix.Len())
	return nil
}

// Indexes lists the defined indexes.
func (p *Partition) Indexes() []IndexDef {
	p.idxMu.RLock()
	defer p.idxMu.RUnlock()
	defs := make([]IndexDef, 0, len(p.indexes))
	for _, ix := range p.indexes {
		defs = append(defs, IndexDef{Extractor: ix.Extractor(), Ordered: ix.Ordered()})
	}
	return defs
}

func kindOfIndex(ordered bool) string {
	if ordered {
		return "ordered"
	}
	return "hash"
}

func (p *Partition) reindex(id string, s *slot) {
	p.idxMu.RLock()
	defer p.idxMu.RUnlock()
	for _, ix := range p.indexes {
		ix.Put(id, s.entry())
	}
}

func (p *Partition) unindex(id string) {
	p.idxMu.RLock()
	defer p.idxMu.RUnlock()
	for _, ix := range p.indexes {
		ix.Remove(id)
	}
}

func (p *Partition) lookupIndex(x filter.ValueExtractor) *index.Index {
	key, err := indexKey(x)
	if err != nil {
		return nil
	}
	p.idxMu.RLock()
	defer p.idxMu.RUnlock()
	return p.indexes[key]
}

// --------------------------------------------------------------------------
// Planning
// --------------------------------------------------------------------------

// candidates returns a superset of the key ids matching pred, or ok=false
// when no index applies and the partition has to be scanned.
func (p *Partition) candidates(pred filter.Predicate) (ids map[string]struct{}, ok bool) {
	rng := func(x filter.ValueExtractor, v any, lo bool, inclusive bool) (map[string]struct{}, bool) {
		ix := p.lookupIndex(x)
		if ix == nil || !ix.Rangeable(v) {
			return nil, false
		}
		b := &index.Bound{Value: v, Inclusive: inclusive}
		if lo {
			return toSet(ix.Range(b, nil)), true
		}
		return toSet(ix.Range(nil, b)), true
	}

	switch t := pred.(type) {
	case filter.Equals:
		ix := p.lookupIndex(t.Extractor)
		if ix == nil {
			return nil, false
		}
		return toSet(ix.Equal(t.Value)), true
	case filter.GreaterThan:
		return rng(t.Extractor, t.Value, true, false)
	case filter.GreaterEqual:
		return rng(t.Extractor, t.Value, true, true)
	case filter.LessThan:
		return rng(t.Extractor, t.Value, false, false)
	case filter.LessEqual:
		return rng(t.Extractor, t.Value, false, true)
	case filter.And:
		l, lok := p.candidates(t.Left)
		r, rok := p.candidates(t.Right)
		switch {
		case lok && rok:
			return intersect(l, r), true
		case lok:
			return l, true
		case rok:
			return r, true
		}
		return nil, false
	case filter.Or:
		l, lok := p.candidates(t.Left)
		if !lok {
			return nil, false
		}
		r, rok := p.candidates(t.Right)
		if !rok {
			return nil, false
		}
		for id := range r {
			l[id] = struct{}{}
		}
		return l, true
	}
	return nil, false
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func intersect(a, b map[string]struct{}) map[string]struct{} {
	if len(b) < len(a) {
		a, b = b, a
	}
	out := make(map[string]struct{}, len(a))
	for id := range a {
		if _, ok := b[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

// --------------------------------------------------------------------------
// Execution
// --------------------------------------------------------------------------

// each calls fn for every entry currently matching pred, with its id.
// fn must not modify the slot; returning false stops the iteration.
func (p *Partition) each(pred filter.Predicate, fn func(id string, s *slot) bool) {
	if pred == nil {
		pred = filter.Always{}
	}
	if ids, ok := p.candidates(pred); ok {
		for id := range ids {
			s, ok := p.entries.Load(id)
			if !ok || !pred.Evaluate(s.entry()) {
				continue
			}
			if !fn(id, s) {
				return
			}
		}
		return
	}
	_, always := pred.(filter.Always)
	p.entries.Range(func(id string, s *slot) bool {
		if !always && !pred.Evaluate(s.entry()) {
			return true
		}
		return fn(id, s)
	})
}

// Entries returns copies of all entries matching pred.
func (p *Partition) Entries(pred filter.Predicate) []filter.Entry {
	var out []filter.Entry
	p.each(pred, func(_ string, s *slot) bool {
		out = append(out, filter.Entry{Key: doc.Clone(s.key), Value: doc.Clone(s.value)})
		return true
	})
	return out
}

// Keys returns copies of the keys of all entries matching pred.
func (p *Partition) Keys(pred filter.Predicate) []any {
	var out []any
	p.each(pred, func(_ string, s *slot) bool {
		out = append(out, doc.Clone(s.key))
		return true
	})
	return out
}

// IDs returns the key ids of all entries matching pred.
func (p *Partition) IDs(pred filter.Predicate) []string {
	var out []string
	p.each(pred, func(id string, _ *slot) bool {
		out = append(out, id)
		return true
	})
	return out
}

// AggregatePartial folds the matching entries into a partial result.
func (p *Partition) AggregatePartial(pred filter.Predicate, agg aggregate.Aggregator) (aggregate.Partial, error) {
	var part aggregate.Partial
	if err := agg.Validate(); err != nil {
		return part, grid.NewError(grid.RetCInvalidOperation, err.Error())
	}
	p.each(pred, func(_ string, s *slot) bool {
		agg.Accumulate(&part, s.entry())
		return true
	})
	return part, nil
}

// Aggregate reduces the matching entries.
func (p *Partition) Aggregate(pred filter.Predicate, agg aggregate.Aggregator) (any, error) {
	part, err := p.AggregatePartial(pred, agg)
	if err != nil {
		return nil, err
	}
	return agg.Result(part), nil
}
