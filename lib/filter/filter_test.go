package filter

import (
	"reflect"
	"testing"

	"github.com/ValentinKolb/dGrid/lib/doc"
)

func contactEntry(first, last string, age int, homeState, city string) Entry {
	return Entry{
		Key: doc.MustNormalize(map[string]any{"firstName": first, "lastName": last}),
		Value: doc.MustNormalize(map[string]any{
			"firstName": first,
			"lastName":  last,
			"age":       age,
			"homeAddress": map[string]any{
				"state": homeState,
				"city":  city,
			},
		}),
	}
}

func TestExtractors(t *testing.T) {
	e := contactEntry("John", "Doe", 42, "MA", "Springfield")

	tests := []struct {
		name string
		x    ValueExtractor
		want any
	}{
		{"identity", Identity{}, e.Value},
		{"property", Property{Name: "age"}, float64(42)},
		{"accessor", Property{Name: "getAge"}, float64(42)},
		{"chained", PathOf("homeAddress.state"), "MA"},
		{"missing", PathOf("workAddress.state"), nil},
		{"key", Key{}, e.Key},
		{"key property", Key{Of: Property{Name: "lastName"}}, "Doe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.x.Extract(e); !doc.Equal(got, tt.want) {
				t.Errorf("Extract() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPredicates(t *testing.T) {
	e := contactEntry("John", "Doe", 58, "MA", "Springfield")
	age := Property{Name: "age"}
	state := PathOf("homeAddress.state")
	city := PathOf("homeAddress.city")

	tests := []struct {
		name string
		p    Predicate
		want bool
	}{
		{"always", Always{}, true},
		{"equals", Equals{state, "MA"}, true},
		{"equals other", Equals{state, "CA"}, false},
		{"not equals", NotEquals{state, "CA"}, true},
		{"greater than strict", GreaterThan{age, 58.0}, false},
		{"greater than", GreaterThan{age, 57.0}, true},
		{"greater equal", GreaterEqual{age, 58.0}, true},
		{"less than", LessThan{age, 59.0}, true},
		{"less equal", LessEqual{age, 57.0}, false},
		{"mixed kinds never order", GreaterThan{age, "10"}, false},
		{"like prefix", Like{Extractor: city, Pattern: "S%", CaseSensitive: true}, true},
		{"like case sensitive", Like{Extractor: city, Pattern: "s%", CaseSensitive: true}, false},
		{"ilike", Like{Extractor: city, Pattern: "s%"}, true},
		{"like single char", Like{Extractor: state, Pattern: "M_", CaseSensitive: true}, true},
		{"like non string", Like{Extractor: age, Pattern: "%", CaseSensitive: true}, false},
		{"and", And{Equals{state, "MA"}, GreaterThan{age, 50.0}}, true},
		{"and short", And{Equals{state, "CA"}, GreaterThan{age, 50.0}}, false},
		{"or", Or{Equals{state, "CA"}, GreaterThan{age, 50.0}}, true},
		{"not", Not{Equals{state, "MA"}}, false},
		{"key predicate", Equals{Key{Of: Property{Name: "lastName"}}, "Doe"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Evaluate(e); got != tt.want {
				t.Errorf("%s evaluated to %v, want %v", tt.p, got, tt.want)
			}
		})
	}
}

func TestMatchLike(t *testing.T) {
	tests := []struct {
		s, pattern string
		escape     rune
		fold       bool
		want       bool
	}{
		{"Springfield", "S%", 0, false, true},
		{"Springfield", "%field", 0, false, true},
		{"Springfield", "%ring%", 0, false, true},
		{"Springfield", "S_ringfield", 0, false, true},
		{"Springfield", "S_field", 0, false, false},
		{"", "%", 0, false, true},
		{"", "_", 0, false, false},
		{"abc", "a%%c", 0, false, true},
		{"aXbXc", "a%b%c", 0, false, true},
		{"100%", "100!%", '!', false, true},
		{"1000", "100!%", '!', false, false},
		{"a_b", "a\\_b", '\\', false, true},
		{"axb", "a\\_b", '\\', false, false},
		{"BOSTON", "bos%", 0, true, true},
		{"BOSTON", "bos%", 0, false, false},
		{"ünïcode", "ü_ï%", 0, false, true},
	}
	for _, tt := range tests {
		if got := matchLike(tt.s, tt.pattern, tt.escape, tt.fold); got != tt.want {
			t.Errorf("matchLike(%q, %q, %q, %v) = %v, want %v", tt.s, tt.pattern, tt.escape, tt.fold, got, tt.want)
		}
	}
}

func TestPredicateWireRoundTrip(t *testing.T) {
	state := PathOf("homeAddress.state")
	trees := []Predicate{
		Always{},
		Equals{state, "MA"},
		Equals{Property{Name: "active"}, false},
		Equals{Property{Name: "age"}, nil},
		And{Equals{state, "MA"}, Not{Equals{PathOf("workAddress.state"), "MA"}}},
		Or{GreaterThan{Property{Name: "age"}, 58.0}, LessEqual{Property{Name: "age"}, 0.0}},
		Like{Extractor: PathOf("homeAddress.city"), Pattern: "S%", Escape: '!', CaseSensitive: true},
		NotEquals{Key{Of: Property{Name: "lastName"}}, "Doe"},
		GreaterEqual{Key{}, "a"},
		LessThan{Identity{}, 3.0},
	}

	for _, p := range trees {
		b, err := MarshalPredicate(p)
		if err != nil {
			t.Fatalf("MarshalPredicate(%s) failed: %v", p, err)
		}
		got, err := UnmarshalPredicate(b)
		if err != nil {
			t.Fatalf("UnmarshalPredicate(%s) failed: %v", b, err)
		}
		if !reflect.DeepEqual(got, p) {
			t.Errorf("round trip changed the tree:\nwant %#v\ngot  %#v", p, got)
		}
	}
}

func TestUnmarshalRejectsUnknownOps(t *testing.T) {
	inputs := []string{
		`{"op":"nope"}`,
		`{"op":"eq"}`,
		`{"op":"eq","extractor":{"op":"property"}}`,
		`{"op":"and","left":{"op":"always"}}`,
		`not json`,
	}
	for _, in := range inputs {
		if _, err := UnmarshalPredicate([]byte(in)); err == nil {
			t.Errorf("expected error for %s", in)
		}
	}
}

func TestPredicateString(t *testing.T) {
	p := And{
		Equals{PathOf("homeAddress.state"), "MA"},
		Like{Extractor: PathOf("homeAddress.city"), Pattern: "S%", CaseSensitive: true},
	}
	want := "(homeAddress.state = 'MA' and homeAddress.city like 'S%')"
	if got := p.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
