package filter

import (
	"strings"

	"github.com/ValentinKolb/dGrid/lib/doc"
)

// Entry is a key/value pair as seen by predicates and extractors.
type Entry struct {
	Key   any `json:"key"`
	Value any `json:"value"`
}

// ValueExtractor derives a value from an entry. Implementations must not
// have side effects.
type ValueExtractor interface {
	Extract(e Entry) any
	String() string
}

// Identity extracts the entry value unchanged.
type Identity struct{}

func (Identity) Extract(e Entry) any { return e.Value }
func (Identity) String() string      { return "value()" }

// Property extracts a single member of an object value.
type Property struct {
	Name string
}

func (p Property) Extract(e Entry) any { return doc.Property(e.Value, p.Name) }
func (p Property) String() string      { return p.Name }

// Chained applies its parts one after another, each on the result of the
// previous part.
type Chained struct {
	Parts []ValueExtractor
}

func (c Chained) Extract(e Entry) any {
	v := e.Value
	for _, part := range c.Parts {
		if v == nil {
			return nil
		}
		v = part.Extract(Entry{Key: e.Key, Value: v})
	}
	return v
}

func (c Chained) String() string {
	names := make([]string, len(c.Parts))
	for i, p := range c.Parts {
		names[i] = p.String()
	}
	return strings.Join(names, ".")
}

// Key applies Of to the entry key. A nil Of extracts the key itself.
type Key struct {
	Of ValueExtractor
}

func (k Key) Extract(e Entry) any {
	if k.Of == nil {
		return e.Key
	}
	return k.Of.Extract(Entry{Key: e.Key, Value: e.Key})
}

func (k Key) String() string {
	if k.Of == nil {
		return "key()"
	}
	return "key()." + k.Of.String()
}

// PathOf builds the extractor for a dotted property path.
func PathOf(path string) ValueExtractor {
	parts := strings.Split(path, ".")
	if len(parts) == 1 {
		return Property{Name: parts[0]}
	}
	chain := make([]ValueExtractor, len(parts))
	for i, p := range parts {
		chain[i] = Property{Name: p}
	}
	return Chained{Parts: chain}
}
