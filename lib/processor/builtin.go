package processor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ValentinKolb/dGrid/lib/doc"
	"github.com/ValentinKolb/dGrid/lib/filter"
)

func init() {
	Register(KindUpdate, func() EntryProcessor { return &Update{} })
	Register(KindPut, func() EntryProcessor { return &Put{} })
	Register(KindPutIfAbsent, func() EntryProcessor { return &PutIfAbsent{} })
	Register(KindRemove, func() EntryProcessor { return &Remove{} })
	Register(KindRemoveIfEquals, func() EntryProcessor { return &RemoveIfEquals{} })
	Register(KindIncrement, func() EntryProcessor { return &Increment{} })
	Register(KindExtract, func() EntryProcessor { return &Extract{} })
}

// Built-in processor kinds
const (
	KindUpdate         = "update"
	KindPut            = "put"
	KindPutIfAbsent    = "put-if-absent"
	KindRemove         = "remove"
	KindRemoveIfEquals = "remove-if-equals"
	KindIncrement      = "increment"
	KindExtract        = "extract"
)

// ErrNotNumeric is returned by Increment for a non-numeric member.
var ErrNotNumeric = errors.New("value is not a number")

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// --------------------------------------------------------------------------
// Update
// --------------------------------------------------------------------------

// Update sets the member at a dotted path, e.g. "workAddress.city".
// An empty path replaces the whole value. Absent entries are left alone.
// Returns the new value.
type Update struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

func (p *Update) Kind() string { return KindUpdate }

func (p *Update) Process(e MutableEntry) (any, error) {
	if !e.Present() {
		return nil, nil
	}
	val, err := doc.Normalize(p.Value)
	if err != nil {
		return nil, err
	}
	next, err := doc.SetPath(e.Value(), splitPath(p.Path), val)
	if err != nil {
		return nil, err
	}
	e.SetValue(next)
	return next, nil
}

// --------------------------------------------------------------------------
// Put / PutIfAbsent
// --------------------------------------------------------------------------

// Put stores a value and returns the previous one.
type Put struct {
	Value any `json:"value"`
}

func (p *Put) Kind() string { return KindPut }

func (p *Put) Process(e MutableEntry) (any, error) {
	val, err := doc.Normalize(p.Value)
	if err != nil {
		return nil, err
	}
	old := e.Value()
	e.SetValue(val)
	return old, nil
}

// PutIfAbsent stores a value only when the entry does not exist. It returns
// the existing value, or nil when the value was inserted.
type PutIfAbsent struct {
	Value any `json:"value"`
}

func (p *PutIfAbsent) Kind() string { return KindPutIfAbsent }

func (p *PutIfAbsent) Process(e MutableEntry) (any, error) {
	if e.Present() {
		return e.Value(), nil
	}
	val, err := doc.Normalize(p.Value)
	if err != nil {
		return nil, err
	}
	e.SetValue(val)
	return nil, nil
}

// --------------------------------------------------------------------------
// Remove / RemoveIfEquals
// --------------------------------------------------------------------------

// Remove deletes the entry and returns whether it existed.
type Remove struct{}

func (p *Remove) Kind() string { return KindRemove }

func (p *Remove) Process(e MutableEntry) (any, error) {
	if !e.Present() {
		return false, nil
	}
	e.Remove()
	return true, nil
}

// RemoveIfEquals deletes the entry when the member at Path equals Value
// (the whole value for an empty path). Returns whether it removed.
type RemoveIfEquals struct {
	Path  string `json:"path,omitempty"`
	Value any    `json:"value"`
}

func (p *RemoveIfEquals) Kind() string { return KindRemoveIfEquals }

func (p *RemoveIfEquals) Process(e MutableEntry) (any, error) {
	if !e.Present() {
		return false, nil
	}
	want, err := doc.Normalize(p.Value)
	if err != nil {
		return nil, err
	}
	if !doc.Equal(doc.Path(e.Value(), splitPath(p.Path)), want) {
		return false, nil
	}
	e.Remove()
	return true, nil
}

// --------------------------------------------------------------------------
// Increment
// --------------------------------------------------------------------------

// Increment adds Delta to the number at Path; a missing member counts as 0.
// Returns the new number.
type Increment struct {
	Path  string  `json:"path,omitempty"`
	Delta float64 `json:"delta"`
}

func (p *Increment) Kind() string { return KindIncrement }

func (p *Increment) Process(e MutableEntry) (any, error) {
	path := splitPath(p.Path)
	cur := doc.Path(e.Value(), path)
	n := 0.0
	if cur != nil {
		f, ok := doc.Number(cur)
		if !ok {
			return nil, fmt.Errorf("cannot increment %q: %w", p.Path, ErrNotNumeric)
		}
		n = f
	}
	n += p.Delta
	next, err := doc.SetPath(e.Value(), path, n)
	if err != nil {
		return nil, err
	}
	e.SetValue(next)
	return n, nil
}

// --------------------------------------------------------------------------
// Extract
// --------------------------------------------------------------------------

// Extract is read-only: it returns the extracted value of each entry.
type Extract struct {
	Extractor filter.ValueExtractor
}

func (p *Extract) Kind() string { return KindExtract }

func (p *Extract) Process(e MutableEntry) (any, error) {
	if p.Extractor == nil {
		return nil, errors.New("extract needs an extractor")
	}
	if !e.Present() {
		return nil, nil
	}
	return p.Extractor.Extract(filter.Entry{Key: e.Key(), Value: e.Value()}), nil
}

func (p *Extract) MarshalJSON() ([]byte, error) {
	if p.Extractor == nil {
		return []byte(`{}`), nil
	}
	n, err := filter.EncodeExtractor(p.Extractor)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Extractor *filter.Node `json:"extractor"`
	}{n})
}

func (p *Extract) UnmarshalJSON(b []byte) error {
	var w struct {
		Extractor *filter.Node `json:"extractor"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if w.Extractor == nil {
		p.Extractor = nil
		return nil
	}
	x, err := filter.DecodeExtractor(w.Extractor)
	if err != nil {
		return err
	}
	p.Extractor = x
	return nil
}
