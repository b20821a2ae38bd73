package qlang

import (
	"errors"
	"reflect"
	"testing"

	"github.com/ValentinKolb/dGrid/lib/doc"
	"github.com/ValentinKolb/dGrid/lib/filter"
)

var (
	age       = filter.Property{Name: "age"}
	homeState = filter.PathOf("homeAddress.state")
	homeCity  = filter.PathOf("homeAddress.city")
	workAddr  = filter.Property{Name: "workAddress"}
)

func TestCompileFilter(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		bindings Bindings
		want     filter.Predicate
	}{
		{"always", "true", Bindings{}, filter.Always{}},
		{"equals", "homeAddress.state = 'MA'", Bindings{}, filter.Equals{Extractor: homeState, Value: "MA"}},
		{
			"is and is not",
			"homeAddress.state is 'MA' and workAddress is not 'MA'",
			Bindings{},
			filter.And{
				Left:  filter.Equals{Extractor: homeState, Value: "MA"},
				Right: filter.NotEquals{Extractor: workAddr, Value: "MA"},
			},
		},
		{"like", "homeAddress.city like 'S%'", Bindings{}, filter.Like{Extractor: homeCity, Pattern: "S%", CaseSensitive: true}},
		{"ilike", "homeAddress.city ILIKE 's%'", Bindings{}, filter.Like{Extractor: homeCity, Pattern: "s%"}},
		{
			"like escape",
			"homeAddress.city like '100!%' escape '!'",
			Bindings{},
			filter.Like{Extractor: homeCity, Pattern: "100!%", Escape: '!', CaseSensitive: true},
		},
		{"not like", "homeAddress.city not like 'S%'", Bindings{}, filter.Not{Inner: filter.Like{Extractor: homeCity, Pattern: "S%", CaseSensitive: true}}},
		{"positional", "age > ?1", Positional(58), filter.GreaterThan{Extractor: age, Value: 58.0}},
		{"named", "homeAddress.state = :state", Named(map[string]any{"state": "CA"}), filter.Equals{Extractor: homeState, Value: "CA"}},
		{"mirrored", "58 < age", Bindings{}, filter.GreaterThan{Extractor: age, Value: 58.0}},
		{"operators", "age >= 1 or age <= 2 or age <> 3 or age == 4", Bindings{}, filter.Or{
			Left: filter.Or{
				Left: filter.Or{
					Left:  filter.GreaterEqual{Extractor: age, Value: 1.0},
					Right: filter.LessEqual{Extractor: age, Value: 2.0},
				},
				Right: filter.NotEquals{Extractor: age, Value: 3.0},
			},
			Right: filter.Equals{Extractor: age, Value: 4.0},
		}},
		{"precedence", "age = 1 or age = 2 and age = 3", Bindings{}, filter.Or{
			Left: filter.Equals{Extractor: age, Value: 1.0},
			Right: filter.And{
				Left:  filter.Equals{Extractor: age, Value: 2.0},
				Right: filter.Equals{Extractor: age, Value: 3.0},
			},
		}},
		{"parentheses", "(age = 1 or age = 2) and not age = 3", Bindings{}, filter.And{
			Left: filter.Or{
				Left:  filter.Equals{Extractor: age, Value: 1.0},
				Right: filter.Equals{Extractor: age, Value: 2.0},
			},
			Right: filter.Not{Inner: filter.Equals{Extractor: age, Value: 3.0}},
		}},
		{"key path", "key().lastName = 'Doe'", Bindings{}, filter.Equals{Extractor: filter.Key{Of: filter.Property{Name: "lastName"}}, Value: "Doe"}},
		{"key itself", "key() = 'alice'", Bindings{}, filter.Equals{Extractor: filter.Key{}, Value: "alice"}},
		{"value itself", "value() > 3", Bindings{}, filter.GreaterThan{Extractor: filter.Identity{}, Value: 3.0}},
		{"null", "workAddress is null", Bindings{}, filter.Equals{Extractor: workAddr, Value: nil}},
		{"bare property", "active", Bindings{}, filter.Equals{Extractor: filter.Property{Name: "active"}, Value: true}},
		{"negative number", "age > -1.5", Bindings{}, filter.GreaterThan{Extractor: age, Value: -1.5}},
		{"double quoted", `homeAddress.state = "MA"`, Bindings{}, filter.Equals{Extractor: homeState, Value: "MA"}},
		{"escaped quote", "lastName = 'O''Brien'", Bindings{}, filter.Equals{Extractor: filter.Property{Name: "lastName"}, Value: "O'Brien"}},
		{"accessor names", "getHomeAddress.getState = 'MA'", Bindings{}, filter.Equals{Extractor: filter.PathOf("getHomeAddress.getState"), Value: "MA"}},
		{"bound document", "homeAddress = ?1", Positional(map[string]any{"state": "MA"}), filter.Equals{Extractor: filter.Property{Name: "homeAddress"}, Value: map[string]any{"state": "MA"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CompileFilter(tt.query, tt.bindings)
			if err != nil {
				t.Fatalf("CompileFilter(%q) failed: %v", tt.query, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("CompileFilter(%q)\n got  %#v\n want %#v", tt.query, got, tt.want)
			}
		})
	}
}

func TestCompileIsDeterministic(t *testing.T) {
	queries := []struct {
		q string
		b Bindings
	}{
		{"age > ?1", Positional(58)},
		{"homeAddress.state is 'MA' and workAddress is not 'MA'", Bindings{}},
		{"homeAddress.city like 'S%' or key().lastName = :n", Named(map[string]any{"n": "Doe"})},
	}
	for _, q := range queries {
		first, err := CompileFilter(q.q, q.b)
		if err != nil {
			t.Fatalf("CompileFilter(%q) failed: %v", q.q, err)
		}
		for i := 0; i < 10; i++ {
			again, err := CompileFilter(q.q, q.b)
			if err != nil {
				t.Fatalf("CompileFilter(%q) failed on repeat: %v", q.q, err)
			}
			if !reflect.DeepEqual(first, again) {
				t.Fatalf("CompileFilter(%q) not deterministic:\n%#v\n%#v", q.q, first, again)
			}
		}
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		b       Bindings
		binding bool
	}{
		{"empty", "   ", Bindings{}, false},
		{"dangling and", "age > 1 and", Bindings{}, false},
		{"unterminated string", "state = 'MA", Bindings{}, false},
		{"missing paren", "(age > 1", Bindings{}, false},
		{"two literals", "1 = 1", Bindings{}, false},
		{"two paths", "age = height", Bindings{}, false},
		{"like number", "city like 5", Bindings{}, false},
		{"bad escape", "city like 'a' escape 'ab'", Bindings{}, false},
		{"trailing", "age > 1 age", Bindings{}, false},
		{"bad char", "age # 1", Bindings{}, false},
		{"bare placeholder", "?", Bindings{}, false},
		{"literal alone", "'MA'", Bindings{}, false},
		{"missing positional", "age > ?2", Positional(1), true},
		{"missing named", "state = :state", Bindings{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileFilter(tt.query, tt.b)
			if err == nil {
				t.Fatalf("expected error for %q", tt.query)
			}
			var be *BindingError
			if got := errors.As(err, &be); got != tt.binding {
				t.Errorf("binding error = %v, want %v (err: %v)", got, tt.binding, err)
			}
		})
	}
}

func TestCompileExtractor(t *testing.T) {
	tests := []struct {
		expr string
		want filter.ValueExtractor
	}{
		{"age", age},
		{"homeAddress.state", homeState},
		{"key().lastName", filter.Key{Of: filter.Property{Name: "lastName"}}},
		{"key()", filter.Key{}},
		{"value()", filter.Identity{}},
		{"getAge", filter.Property{Name: "getAge"}},
	}
	for _, tt := range tests {
		got, err := CompileExtractor(tt.expr)
		if err != nil {
			t.Fatalf("CompileExtractor(%q) failed: %v", tt.expr, err)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("CompileExtractor(%q) = %#v, want %#v", tt.expr, got, tt.want)
		}
	}

	for _, bad := range []string{"", "age > 1", "'x'", "a..b"} {
		if _, err := CompileExtractor(bad); err == nil {
			t.Errorf("expected error for extractor %q", bad)
		}
	}
}

func TestAgeScenario(t *testing.T) {
	pred, err := CompileFilter("age > ?1", Positional(58))
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	var matched []float64
	for _, a := range []int{40, 58, 59, 70} {
		e := filter.Entry{Key: a, Value: doc.MustNormalize(map[string]any{"age": a})}
		if pred.Evaluate(e) {
			matched = append(matched, float64(a))
		}
	}
	if !reflect.DeepEqual(matched, []float64{59, 70}) {
		t.Errorf("expected ages 59 and 70 to match, got %v", matched)
	}
}
