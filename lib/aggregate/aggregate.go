// Package aggregate implements the reductions the grid runs over a matching
// entry set: count, sum, min, max and average.
//
// Aggregation is split in two phases so it can run next to the data. Every
// partition folds its matching entries into a Partial, the caller merges the
// partials with Combine and turns the merged partial into a value with Result.
//
// Result values:
//   - Count: int64, 0 for an empty set
//   - Sum: float64, 0 for an empty set
//   - Min, Max, Average: float64, nil when no numeric value was seen
//
// Extracted values that are not numbers (including missing properties) are
// skipped by every numeric aggregator.
package aggregate

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/ValentinKolb/dGrid/lib/doc"
	"github.com/ValentinKolb/dGrid/lib/filter"
)

// Kind names an aggregation
type Kind string

const (
	KindCount   Kind = "count"
	KindSum     Kind = "sum"
	KindMin     Kind = "min"
	KindMax     Kind = "max"
	KindAverage Kind = "average"
)

// Aggregator describes a reduction. The extractor is ignored by Count.
type Aggregator struct {
	Kind      Kind
	Extractor filter.ValueExtractor
}

func Count() Aggregator                          { return Aggregator{Kind: KindCount} }
func Sum(x filter.ValueExtractor) Aggregator     { return Aggregator{Kind: KindSum, Extractor: x} }
func Min(x filter.ValueExtractor) Aggregator     { return Aggregator{Kind: KindMin, Extractor: x} }
func Max(x filter.ValueExtractor) Aggregator     { return Aggregator{Kind: KindMax, Extractor: x} }
func Average(x filter.ValueExtractor) Aggregator { return Aggregator{Kind: KindAverage, Extractor: x} }

// Parse builds an aggregator from its kind name, e.g. for the CLI.
func Parse(kind string, x filter.ValueExtractor) (Aggregator, error) {
	a := Aggregator{Kind: Kind(kind), Extractor: x}
	return a, a.Validate()
}

// Validate checks the kind and that numeric kinds carry an extractor.
func (a Aggregator) Validate() error {
	switch a.Kind {
	case KindCount:
		return nil
	case KindSum, KindMin, KindMax, KindAverage:
		if a.Extractor == nil {
			return fmt.Errorf("aggregator %s needs an extractor", a.Kind)
		}
		return nil
	default:
		return fmt.Errorf("unknown aggregator %q", a.Kind)
	}
}

func (a Aggregator) String() string {
	if a.Kind == KindCount || a.Extractor == nil {
		return string(a.Kind) + "()"
	}
	return fmt.Sprintf("%s(%s)", a.Kind, a.Extractor)
}

// --------------------------------------------------------------------------
// Partial results
// --------------------------------------------------------------------------

// Partial is the mergeable intermediate state of an aggregation.
type Partial struct {
	Count   int64   `json:"count"`   // matching entries
	Numeric int64   `json:"numeric"` // entries with a numeric extracted value
	Sum     float64 `json:"sum"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// Accumulate folds one matching entry into the partial.
func (a Aggregator) Accumulate(p *Partial, e filter.Entry) {
	p.Count++
	if a.Kind == KindCount || a.Extractor == nil {
		return
	}
	f, ok := doc.Number(a.Extractor.Extract(e))
	if !ok || math.IsNaN(f) {
		return
	}
	if p.Numeric == 0 {
		p.Min, p.Max = f, f
	} else {
		p.Min = math.Min(p.Min, f)
		p.Max = math.Max(p.Max, f)
	}
	p.Numeric++
	p.Sum += f
}

// Combine merges two partials of the same aggregation.
func Combine(a, b Partial) Partial {
	out := Partial{Count: a.Count + b.Count, Numeric: a.Numeric + b.Numeric, Sum: a.Sum + b.Sum}
	switch {
	case a.Numeric == 0:
		out.Min, out.Max = b.Min, b.Max
	case b.Numeric == 0:
		out.Min, out.Max = a.Min, a.Max
	default:
		out.Min, out.Max = math.Min(a.Min, b.Min), math.Max(a.Max, b.Max)
	}
	return out
}

// Result converts a (merged) partial into the aggregation value.
func (a Aggregator) Result(p Partial) any {
	switch a.Kind {
	case KindCount:
		return p.Count
	case KindSum:
		return p.Sum
	}
	if p.Numeric == 0 {
		return nil
	}
	switch a.Kind {
	case KindMin:
		return p.Min
	case KindMax:
		return p.Max
	case KindAverage:
		return p.Sum / float64(p.Numeric)
	}
	return nil
}

// Reduce aggregates a slice of entries in one go.
func (a Aggregator) Reduce(entries []filter.Entry) any {
	var p Partial
	for _, e := range entries {
		a.Accumulate(&p, e)
	}
	return a.Result(p)
}

// --------------------------------------------------------------------------
// Wire format
// --------------------------------------------------------------------------

type wireAggregator struct {
	Kind      Kind         `json:"kind"`
	Extractor *filter.Node `json:"extractor,omitempty"`
}

func (a Aggregator) MarshalJSON() ([]byte, error) {
	w := wireAggregator{Kind: a.Kind}
	if a.Extractor != nil {
		n, err := filter.EncodeExtractor(a.Extractor)
		if err != nil {
			return nil, err
		}
		w.Extractor = n
	}
	return json.Marshal(w)
}

func (a *Aggregator) UnmarshalJSON(b []byte) error {
	var w wireAggregator
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	out := Aggregator{Kind: w.Kind}
	if w.Extractor != nil {
		x, err := filter.DecodeExtractor(w.Extractor)
		if err != nil {
			return err
		}
		out.Extractor = x
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*a = out
	return nil
}
