package index

import (
	"sort"
	"testing"

	"github.com/ValentinKolb/dGrid/lib/doc"
	"github.com/ValentinKolb/dGrid/lib/filter"
)

func fill(ix *Index, values map[string]any) {
	for id, v := range values {
		ix.Put(id, filter.Entry{Key: id, Value: doc.MustNormalize(map[string]any{"v": v})})
	}
}

func sorted(ids []string) []string {
	sort.Strings(ids)
	return ids
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

var dataset = map[string]any{
	"a": 40, "b": 58, "c": 59, "d": 70, "e": 58,
	"s1": "apple", "s2": "banana",
	"t": true, "f": false,
	"n": nil,
	"o": map[string]any{"x": 1},
}

func TestEqual(t *testing.T) {
	for _, ordered := range []bool{false, true} {
		ix := New(filter.Property{Name: "v"}, ordered)
		fill(ix, dataset)

		tests := []struct {
			value any
			want  []string
		}{
			{58.0, []string{"b", "e"}},
			{58, []string{"b", "e"}},
			{"apple", []string{"s1"}},
			{true, []string{"t"}},
			{nil, []string{"n"}},
			{map[string]any{"x": 1.0}, []string{"o"}},
			{"58", []string{}},
		}
		for _, tt := range tests {
			if got := sorted(ix.Equal(doc.MustNormalize(tt.value))); !equal(got, tt.want) {
				t.Errorf("ordered=%v Equal(%v) = %v, want %v", ordered, tt.value, got, tt.want)
			}
		}
	}
}

func TestRange(t *testing.T) {
	ix := New(filter.Property{Name: "v"}, true)
	fill(ix, dataset)

	tests := []struct {
		name string
		lo   *Bound
		hi   *Bound
		want []string
	}{
		{"gt", &Bound{Value: 58.0}, nil, []string{"c", "d"}},
		{"ge", &Bound{Value: 58.0, Inclusive: true}, nil, []string{"b", "c", "d", "e"}},
		{"lt", nil, &Bound{Value: 58.0}, []string{"a"}},
		{"le", nil, &Bound{Value: 58.0, Inclusive: true}, []string{"a", "b", "e"}},
		{"between", &Bound{Value: 40.0}, &Bound{Value: 70.0}, []string{"b", "c", "e"}},
		{"strings", &Bound{Value: "b", Inclusive: true}, nil, []string{"s2"}},
		{"bools", &Bound{Value: false}, nil, []string{"t"}},
		{"mixed kinds", &Bound{Value: 1.0}, &Bound{Value: "z"}, nil},
		{"empty", &Bound{Value: 100.0}, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sorted(ix.Range(tt.lo, tt.hi)); !equal(got, tt.want) {
				t.Errorf("Range = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUpdateAndRemove(t *testing.T) {
	ix := New(filter.Property{Name: "v"}, true)
	fill(ix, map[string]any{"a": 1, "b": 2})

	// re-indexing moves the key
	fill(ix, map[string]any{"a": 3})
	if got := ix.Equal(1.0); len(got) != 0 {
		t.Errorf("stale entry for old value: %v", got)
	}
	if got := sorted(ix.Range(&Bound{Value: 2.0, Inclusive: true}, nil)); !equal(got, []string{"a", "b"}) {
		t.Errorf("unexpected range %v", got)
	}

	ix.Remove("a")
	ix.Remove("missing")
	if ix.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", ix.Len())
	}
	if got := ix.Range(&Bound{Value: 0.0}, nil); !equal(got, []string{"b"}) {
		t.Errorf("unexpected range after remove %v", got)
	}
}

func TestHashIndexCannotRange(t *testing.T) {
	ix := New(filter.Property{Name: "v"}, false)
	fill(ix, dataset)
	if ix.Rangeable(1.0) {
		t.Error("hash index should not be rangeable")
	}
	if got := ix.Range(&Bound{Value: 0.0}, nil); got != nil {
		t.Errorf("hash index returned a range: %v", got)
	}
}
