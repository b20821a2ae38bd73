package cache

import (
	"reflect"
	"testing"
)

func TestRowToEntry(t *testing.T) {
	header := []string{"id", "name", "age", "homeAddress.state"}
	record := []string{"7", "John", "42", "MA"}

	key, value, err := rowToEntry(header, []string{"id"}, record)
	if err != nil {
		t.Fatal(err)
	}
	if key != 7.0 {
		t.Errorf("Expected numeric key 7, got %#v", key)
	}
	want := map[string]any{
		"id":          7.0,
		"name":        "John",
		"age":         42.0,
		"homeAddress": map[string]any{"state": "MA"},
	}
	if !reflect.DeepEqual(value, want) {
		t.Errorf("Expected %v, got %v", want, value)
	}

	key, _, err = rowToEntry(header, []string{"id", "name"}, record)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(key, map[string]any{"id": 7.0, "name": "John"}) {
		t.Errorf("Expected compound key, got %v", key)
	}
}
