package partition

import (
	"context"
	"sync"

	"github.com/ValentinKolb/dGrid/lib/doc"
	"github.com/ValentinKolb/dGrid/lib/filter"
	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/ValentinKolb/dGrid/lib/processor"
)

// Invoke runs a processor against one key, which may be absent.
func (p *Partition) Invoke(key any, proc processor.EntryProcessor) (processor.Result, error) {
	k, id, err := KeyOf(key)
	if err != nil {
		return processor.Result{}, err
	}
	mu := p.stripes.For(id)
	mu.Lock()
	defer mu.Unlock()
	s, _ := p.entries.Load(id)
	return p.process(id, k, s, proc), nil
}

// InvokeAll runs a processor against every entry matching pred. The result
// map is keyed by key id.
//
// Each entry is re-checked against pred under its lock, so an entry changed
// by a concurrent writer after the candidate scan is only processed if it
// still matches. When ctx ends, entries not yet started are skipped and the
// results so far are returned together with the classified context error.
// Entries already processed stay processed.
func (p *Partition) InvokeAll(ctx context.Context, pred filter.Predicate, proc processor.EntryProcessor) (map[string]processor.Result, error) {
	if pred == nil {
		pred = filter.Always{}
	}
	ids := p.IDs(pred)

	var mu sync.Mutex
	results := make(map[string]processor.Result, len(ids))
	run := func(id string) {
		if ctx.Err() != nil {
			return
		}
		res, ok := p.processIfMatching(id, pred, proc)
		if !ok {
			return
		}
		mu.Lock()
		results[id] = res
		mu.Unlock()
	}

	if p.pool == nil {
		for _, id := range ids {
			run(id)
		}
	} else {
		var wg sync.WaitGroup
		for _, id := range ids {
			wg.Add(1)
			if err := p.pool.Submit(func() { defer wg.Done(); run(id) }); err != nil {
				log.Warningf("worker pool rejected task, processing inline: %v", err)
				run(id)
				wg.Done()
			}
		}
		wg.Wait()
	}

	if err := ctx.Err(); err != nil {
		return results, grid.Classify(err, "partition")
	}
	return results, nil
}

func (p *Partition) processIfMatching(id string, pred filter.Predicate, proc processor.EntryProcessor) (processor.Result, bool) {
	mu := p.stripes.For(id)
	mu.Lock()
	defer mu.Unlock()
	s, ok := p.entries.Load(id)
	if !ok || !pred.Evaluate(s.entry()) {
		return processor.Result{}, false
	}
	return p.process(id, s.key, s, proc), true
}

// process runs proc against a private copy of the entry and applies its
// changes. The caller holds the stripe lock of id.
func (p *Partition) process(id string, key any, s *slot, proc processor.EntryProcessor) processor.Result {
	var cur any
	if s != nil {
		cur = doc.Clone(s.value)
	}
	e := processor.NewEntry(doc.Clone(key), cur, s != nil)

	out, err := processor.Run(proc, e)
	if err != nil {
		return processor.Result{Key: doc.Clone(key), Err: grid.PerEntryError(id, err)}
	}
	out, err = doc.Normalize(out)
	if err != nil {
		return processor.Result{Key: doc.Clone(key), Err: grid.PerEntryError(id, err)}
	}

	if e.Changed() {
		switch {
		case e.Present():
			v, err := doc.Normalize(e.Value())
			if err != nil {
				return processor.Result{Key: doc.Clone(key), Err: grid.PerEntryError(id, err)}
			}
			p.store(id, key, v)
		case s != nil:
			p.delete(id)
		}
	}
	return processor.Result{Key: doc.Clone(key), Value: out}
}
