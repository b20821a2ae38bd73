package doc

import (
	"math"
	"testing"
)

type address struct {
	City  string `json:"city"`
	State string `json:"state"`
}

type contact struct {
	FirstName   string  `json:"firstName"`
	Age         int     `json:"age"`
	HomeAddress address `json:"homeAddress"`
}

func TestNormalizeAndID(t *testing.T) {
	c := contact{FirstName: "John", Age: 42, HomeAddress: address{City: "Boston", State: "MA"}}

	n, err := Normalize(c)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	m, ok := n.(map[string]any)
	if !ok {
		t.Fatalf("expected object, got %T", n)
	}
	if m["age"] != float64(42) {
		t.Errorf("expected age 42 as float64, got %#v", m["age"])
	}

	// ids are independent of member order and Go type
	id1, _ := ID(map[string]any{"a": 1, "b": "x"})
	id2, _ := ID(map[string]any{"b": "x", "a": 1.0})
	if id1 != id2 {
		t.Errorf("expected equal ids, got %s and %s", id1, id2)
	}
	if id, _ := ID("alice"); id != `"alice"` {
		t.Errorf("unexpected id for string key: %s", id)
	}
}

func TestNormalizeRejectsNonFiniteNumbers(t *testing.T) {
	for _, v := range []any{
		math.NaN(),
		math.Inf(1),
		math.Inf(-1),
		map[string]any{"age": math.NaN()},
		[]any{1.0, math.Inf(1)},
	} {
		if _, err := Normalize(v); err == nil {
			t.Errorf("expected %v to be rejected", v)
		}
	}
}

func TestNormalizeNegativeZero(t *testing.T) {
	negZero := math.Copysign(0, -1)

	n, err := Normalize(negZero)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if f := n.(float64); math.Signbit(f) {
		t.Errorf("expected 0, got %v", f)
	}

	nested := MustNormalize(map[string]any{"age": negZero, "tags": []any{negZero}})
	if id, _ := ID(nested); id != `{"age":0,"tags":[0]}` {
		t.Errorf("unexpected id %s", id)
	}
	if id1, _ := ID(negZero); id1 != "0" {
		t.Errorf("expected -0 and 0 to share an id, got %s", id1)
	}
}

func TestAs(t *testing.T) {
	n := MustNormalize(contact{FirstName: "Jane", Age: 30, HomeAddress: address{State: "CA"}})
	c, err := As[contact](n)
	if err != nil {
		t.Fatalf("As failed: %v", err)
	}
	if c.FirstName != "Jane" || c.Age != 30 || c.HomeAddress.State != "CA" {
		t.Errorf("unexpected decode result: %+v", c)
	}
}

func TestPropertyAccessorFallback(t *testing.T) {
	v := MustNormalize(contact{Age: 58, HomeAddress: address{State: "MA"}})

	tests := []struct {
		path []string
		want any
	}{
		{[]string{"age"}, float64(58)},
		{[]string{"getAge"}, float64(58)},
		{[]string{"getHomeAddress", "getState"}, "MA"},
		{[]string{"homeAddress", "state"}, "MA"},
		{[]string{"homeAddress", "zip"}, nil},
		{[]string{"get"}, nil},
	}
	for _, tt := range tests {
		if got := Path(v, tt.path); !Equal(got, tt.want) {
			t.Errorf("Path(%v) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestSetPath(t *testing.T) {
	orig := MustNormalize(map[string]any{"workAddress": map[string]any{"city": "Boston"}})

	updated, err := SetPath(orig, []string{"workAddress", "city"}, "Cambridge")
	if err != nil {
		t.Fatalf("SetPath failed: %v", err)
	}
	if got := Path(updated, []string{"workAddress", "city"}); got != "Cambridge" {
		t.Errorf("expected Cambridge, got %v", got)
	}
	if got := Path(orig, []string{"workAddress", "city"}); got != "Boston" {
		t.Errorf("original document was modified: %v", got)
	}

	if _, err := SetPath("scalar", []string{"x"}, 1); err == nil {
		t.Error("expected error when setting a member on a scalar")
	}

	created, _ := SetPath(nil, []string{"a", "b"}, true)
	if Path(created, []string{"a", "b"}) != true {
		t.Errorf("expected intermediate objects to be created, got %v", created)
	}
}

func TestCompareAndEqual(t *testing.T) {
	tests := []struct {
		a, b any
		c    int
		ok   bool
	}{
		{1, 2.0, -1, true},
		{float64(3), 3, 0, true},
		{"b", "a", 1, true},
		{false, true, -1, true},
		{"1", 1, 0, false},
		{nil, nil, 0, false},
		{[]any{1}, []any{1}, 0, false},
	}
	for _, tt := range tests {
		c, ok := Compare(tt.a, tt.b)
		if c != tt.c || ok != tt.ok {
			t.Errorf("Compare(%v, %v) = (%d, %v), want (%d, %v)", tt.a, tt.b, c, ok, tt.c, tt.ok)
		}
	}

	if !Equal(map[string]any{"a": []any{1, "x"}}, map[string]any{"a": []any{1.0, "x"}}) {
		t.Error("expected nested documents to be equal")
	}
	if Equal(map[string]any{"a": 1}, map[string]any{"a": 1, "b": 2}) {
		t.Error("expected documents with different members to differ")
	}
	if !Equal(nil, nil) {
		t.Error("expected nil to equal nil")
	}
}
