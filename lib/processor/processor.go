// Package processor defines entry processors: units of work that read and
// modify exactly one entry while the owning partition holds that entry's lock.
//
// A processor is shipped to the data, not the other way round. To cross the
// wire every processor kind is registered with a factory; Marshal and
// Unmarshal translate between a processor and its {"kind","args"} form.
//
// Processors that run inside the replicated cache are applied by every
// replica, so they must be deterministic: no clocks, no randomness, no I/O.
// Values such as timestamps belong in the processor's arguments.
package processor

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MutableEntry is the processor's view of one entry. Changes are applied
// when the processor returns without error.
type MutableEntry interface {
	// Key returns the entry's key document
	Key() any
	// Value returns the current value, nil if absent
	Value() any
	// Present reports whether the entry exists
	Present() bool
	// SetValue creates or replaces the value
	SetValue(v any)
	// Remove deletes the entry
	Remove()
}

// EntryProcessor mutates one entry and optionally returns a result for it.
type EntryProcessor interface {
	Kind() string
	Process(e MutableEntry) (any, error)
}

// Result is the outcome of a processor for one key.
type Result struct {
	Key   any
	Value any
	Err   error
}

// --------------------------------------------------------------------------
// Registry
// --------------------------------------------------------------------------

var (
	registryMu sync.RWMutex
	registry   = map[string]func() EntryProcessor{}
)

// Register makes a processor kind decodable. The factory returns a pointer
// to a zero value that args are unmarshalled into. Registering a kind twice
// panics.
func Register(kind string, factory func() EntryProcessor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[kind]; dup {
		panic(fmt.Sprintf("processor kind %q registered twice", kind))
	}
	registry[kind] = factory
}

// Kinds lists the registered kinds, sorted.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

type envelope struct {
	Kind string          `json:"kind"`
	Args json.RawMessage `json:"args,omitempty"`
}

// Marshal encodes a processor as {"kind": ..., "args": ...}.
func Marshal(p EntryProcessor) ([]byte, error) {
	args, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode processor %s: %w", p.Kind(), err)
	}
	return json.Marshal(envelope{Kind: p.Kind(), Args: args})
}

// Unmarshal decodes a processor produced by Marshal.
func Unmarshal(b []byte) (EntryProcessor, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("invalid processor encoding: %w", err)
	}

	registryMu.RLock()
	factory, ok := registry[env.Kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown processor kind %q", env.Kind)
	}

	p := factory()
	if len(env.Args) > 0 {
		if err := json.Unmarshal(env.Args, p); err != nil {
			return nil, fmt.Errorf("invalid args for processor %s: %w", env.Kind, err)
		}
	}
	return p, nil
}

// --------------------------------------------------------------------------
// Local execution
// --------------------------------------------------------------------------

// Entry is a plain MutableEntry backed by a value. The partition uses it to
// run a processor and then inspects what the processor did.
type Entry struct {
	key     any
	value   any
	present bool
	changed bool
}

// NewEntry wraps a key and its current value.
func NewEntry(key, value any, present bool) *Entry {
	return &Entry{key: key, value: value, present: present}
}

func (e *Entry) Key() any      { return e.key }
func (e *Entry) Value() any    { return e.value }
func (e *Entry) Present() bool { return e.present }

func (e *Entry) SetValue(v any) {
	e.value, e.present, e.changed = v, true, true
}

func (e *Entry) Remove() {
	e.value, e.present, e.changed = nil, false, true
}

// Changed reports whether SetValue or Remove was called.
func (e *Entry) Changed() bool { return e.changed }

// Run executes a processor against the entry. A panic is returned as an
// error so one bad entry cannot take down a batch.
func Run(p EntryProcessor, e MutableEntry) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor %s panicked: %v", p.Kind(), r)
		}
	}()
	return p.Process(e)
}
