package doc

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-viper/mapstructure/v2"
)

// --------------------------------------------------------------------------
// Normalisation and identity
// --------------------------------------------------------------------------

// Normalize converts an arbitrary Go value into its generic document form by
// a JSON round trip. Numbers become float64, structs become maps.
func Normalize(v any) (any, error) {
	switch t := v.(type) {
	case nil, string, bool:
		return v, nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, fmt.Errorf("value is not a document: unsupported number %v", t)
		}
		if t == 0 {
			return 0.0, nil // -0 is 0
		}
		return t, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("value is not a document: %w", err)
	}
	return Decode(b)
}

// MustNormalize is Normalize for values that are known to be documents.
func MustNormalize(v any) any {
	n, err := Normalize(v)
	if err != nil {
		panic(err)
	}
	return n
}

// Decode parses a JSON document. An empty input decodes to nil.
func Decode(b []byte) (any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return positiveZero(out), nil
}

// Encode renders a document as compact JSON. Object members are sorted, so
// equal documents always encode to equal bytes.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// positiveZero replaces every -0 in a decoded document with 0, so equal
// numbers share one encoding.
func positiveZero(v any) any {
	switch t := v.(type) {
	case float64:
		if t == 0 {
			return 0.0
		}
	case map[string]any:
		for k, e := range t {
			t[k] = positiveZero(e)
		}
	case []any:
		for i, e := range t {
			t[i] = positiveZero(e)
		}
	}
	return v
}

// ID returns the canonical identity of a key: the compact JSON encoding of
// its normalised form. Two keys address the same entry iff their ids match.
func ID(key any) (string, error) {
	n, err := Normalize(key)
	if err != nil {
		return "", err
	}
	b, err := Encode(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Clone returns a deep copy of a normalised document.
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Clone(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Clone(e)
		}
		return out
	default:
		return v
	}
}

// As decodes a document into T using the json tags of T.
func As[T any](v any) (T, error) {
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(v); err != nil {
		return out, err
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Property access
// --------------------------------------------------------------------------

// Property returns the member name of an object document, or nil.
// Accessor style names fall back to the plain member, so "getAge" finds
// "age" when no member "getAge" exists.
func Property(v any, name string) any {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	if val, ok := m[name]; ok {
		return val
	}
	for _, prefix := range []string{"get", "is"} {
		if alt, ok := accessorName(name, prefix); ok {
			if val, ok := m[alt]; ok {
				return val
			}
		}
	}
	return nil
}

// accessorName maps "getHomeAddress" to "homeAddress".
func accessorName(name, prefix string) (string, bool) {
	rest, found := strings.CutPrefix(name, prefix)
	if !found || rest == "" {
		return "", false
	}
	r, size := utf8.DecodeRuneInString(rest)
	if !unicode.IsUpper(r) {
		return "", false
	}
	return string(unicode.ToLower(r)) + rest[size:], true
}

// Path follows a property path through nested objects.
func Path(v any, path []string) any {
	for _, p := range path {
		if v == nil {
			return nil
		}
		v = Property(v, p)
	}
	return v
}

// SetPath returns a copy of v with the member at path replaced by val.
// Intermediate objects are created when missing. An empty path replaces v.
func SetPath(v any, path []string, val any) (any, error) {
	if len(path) == 0 {
		return val, nil
	}
	var m map[string]any
	switch t := v.(type) {
	case nil:
		m = map[string]any{}
	case map[string]any:
		m = make(map[string]any, len(t)+1)
		for k, e := range t {
			m[k] = e
		}
	default:
		return nil, fmt.Errorf("cannot set %q on a %s", path[0], KindOf(v))
	}
	name := path[0]
	if _, ok := m[name]; !ok {
		for _, prefix := range []string{"get", "is"} {
			if alt, ok := accessorName(name, prefix); ok {
				name = alt
				break
			}
		}
	}
	child, err := SetPath(m[name], path[1:], val)
	if err != nil {
		return nil, err
	}
	m[name] = child
	return m, nil
}

// --------------------------------------------------------------------------
// Comparison
// --------------------------------------------------------------------------

// Kind names the document type of a value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "other"
	}
}

// KindOf reports the document kind of v.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return KindNumber
	case string:
		return KindString
	case []any:
		return KindArray
	case map[string]any:
		return KindObject
	default:
		return KindOther
	}
}

// Number converts a numeric document value to float64.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Compare orders two scalar documents. Numbers compare numerically, strings
// lexically and false sorts before true. ok is false when the values are of
// different kinds or not scalar.
func Compare(a, b any) (c int, ok bool) {
	ka, kb := KindOf(a), KindOf(b)
	if ka != kb {
		return 0, false
	}
	switch ka {
	case KindNumber:
		x, _ := Number(a)
		y, _ := Number(b)
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case KindString:
		return strings.Compare(a.(string), b.(string)), true
	case KindBool:
		x, y := a.(bool), b.(bool)
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	default:
		return 0, false
	}
}

// Equal reports deep equality of two documents. Numeric values of different
// Go types compare by value.
func Equal(a, b any) bool {
	if x, ok := Number(a); ok {
		y, ok := Number(b)
		return ok && x == y
	}
	switch ta := a.(type) {
	case map[string]any:
		tb, ok := b.(map[string]any)
		if !ok || len(ta) != len(tb) {
			return false
		}
		for k, va := range ta {
			vb, ok := tb[k]
			if !ok || !Equal(va, vb) {
				return false
			}
		}
		return true
	case []any:
		tb, ok := b.([]any)
		if !ok || len(ta) != len(tb) {
			return false
		}
		for i := range ta {
			if !Equal(ta[i], tb[i]) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(a, b)
	}
}
