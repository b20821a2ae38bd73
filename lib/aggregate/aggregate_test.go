package aggregate

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/ValentinKolb/dGrid/lib/doc"
	"github.com/ValentinKolb/dGrid/lib/filter"
)

func entries(ages ...any) []filter.Entry {
	out := make([]filter.Entry, len(ages))
	for i, a := range ages {
		v := map[string]any{"name": i}
		if a != nil {
			v["age"] = a
		}
		out[i] = filter.Entry{Key: i, Value: doc.MustNormalize(v)}
	}
	return out
}

func TestReduce(t *testing.T) {
	age := filter.Property{Name: "age"}

	tests := []struct {
		name    string
		agg     Aggregator
		entries []filter.Entry
		want    any
	}{
		{"count empty", Count(), nil, int64(0)},
		{"count", Count(), entries(1, 2, 3), int64(3)},
		{"average", Average(age), entries(40, 60), 50.0},
		{"average skips missing", Average(age), entries(40, nil, "x", 60), 50.0},
		{"average empty", Average(age), nil, nil},
		{"average non numeric", Average(age), entries("a", "b"), nil},
		{"min", Min(age), entries(40, 12, 60), 12.0},
		{"max", Max(age), entries(40, 12, 60), 60.0},
		{"min empty", Min(age), nil, nil},
		{"max empty", Max(age), nil, nil},
		{"sum", Sum(age), entries(1, 2, 3.5), 6.5},
		{"sum empty", Sum(age), nil, 0.0},
		{"negative", Min(age), entries(-5, 3), -5.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.agg.Reduce(tt.entries)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("%s = %#v, want %#v", tt.agg, got, tt.want)
			}
		})
	}
}

func TestCombineMatchesSinglePass(t *testing.T) {
	age := filter.Property{Name: "age"}
	all := entries(40, 12, nil, 60, 7, "x", 33)

	for _, agg := range []Aggregator{Count(), Sum(age), Min(age), Max(age), Average(age)} {
		want := agg.Reduce(all)

		// split the set at every position and merge the two halves
		for split := 0; split <= len(all); split++ {
			var left, right Partial
			for _, e := range all[:split] {
				agg.Accumulate(&left, e)
			}
			for _, e := range all[split:] {
				agg.Accumulate(&right, e)
			}
			got := agg.Result(Combine(left, right))
			if !reflect.DeepEqual(got, want) {
				t.Errorf("%s split at %d: got %#v, want %#v", agg, split, got, want)
			}
		}
	}
}

func TestValidate(t *testing.T) {
	if _, err := Parse("median", filter.Property{Name: "age"}); err == nil {
		t.Error("expected unknown kind to fail")
	}
	if _, err := Parse("average", nil); err == nil {
		t.Error("expected average without extractor to fail")
	}
	if _, err := Parse("count", nil); err != nil {
		t.Errorf("count without extractor failed: %v", err)
	}
}

func TestAggregatorJSON(t *testing.T) {
	for _, agg := range []Aggregator{
		Count(),
		Average(filter.Property{Name: "age"}),
		Max(filter.PathOf("homeAddress.zip")),
		Min(filter.Key{Of: filter.Property{Name: "id"}}),
	} {
		b, err := json.Marshal(agg)
		if err != nil {
			t.Fatalf("marshal %s failed: %v", agg, err)
		}
		var back Aggregator
		if err := json.Unmarshal(b, &back); err != nil {
			t.Fatalf("unmarshal %s failed: %v", b, err)
		}
		if !reflect.DeepEqual(back, agg) {
			t.Errorf("round trip changed %s into %s", agg, back)
		}
	}

	var bad Aggregator
	if err := json.Unmarshal([]byte(`{"kind":"mode"}`), &bad); err == nil {
		t.Error("expected unknown kind to be rejected")
	}
}
