// Package events implements change notifications for grid entries.
//
// A Hub belongs to one partition. Writers call Publish while they hold the
// key's lock, so for every key the hub sees events in mutation order. Each
// subscription owns an unbounded lock-free queue and a goroutine that calls
// the listener, so Publish never waits for a slow listener and per-key order
// is kept per subscriber.
//
// Unsubscribe is safe to call while events are being delivered. It waits for
// an in-flight callback of that subscription and no callback starts after it
// returns. Calling Unsubscribe from inside the subscription's own callback
// deadlocks; hand it to a goroutine instead.
package events

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Event
// --------------------------------------------------------------------------

// Kind is the type of change
type Kind uint8

const (
	Inserted Kind = iota
	Updated
	Deleted
)

var kindNames = map[Kind]string{
	Inserted: "inserted",
	Updated:  "updated",
	Deleted:  "deleted",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", k)
}

func (k Kind) MarshalJSON() ([]byte, error) {
	s, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown event kind %d", k)
	}
	return json.Marshal(s)
}

func (k *Kind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	for kind, name := range kindNames {
		if name == s {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", s)
}

// Event describes one entry transition. OldValue is nil for inserts and
// NewValue is nil for deletes.
type Event struct {
	Kind     Kind   `json:"kind"`
	Key      any    `json:"key"`
	KeyID    string `json:"keyId"`
	OldValue any    `json:"oldValue,omitempty"`
	NewValue any    `json:"newValue,omitempty"`
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s", e.Kind, e.KeyID)
}

// --------------------------------------------------------------------------
// Listener
// --------------------------------------------------------------------------

// Listener receives change events.
type Listener interface {
	OnInserted(e Event)
	OnUpdated(e Event)
	OnDeleted(e Event)
}

// Funcs adapts plain functions to a Listener. Nil funcs are skipped.
type Funcs struct {
	Inserted func(Event)
	Updated  func(Event)
	Deleted  func(Event)
}

func (f Funcs) OnInserted(e Event) {
	if f.Inserted != nil {
		f.Inserted(e)
	}
}

func (f Funcs) OnUpdated(e Event) {
	if f.Updated != nil {
		f.Updated(e)
	}
}

func (f Funcs) OnDeleted(e Event) {
	if f.Deleted != nil {
		f.Deleted(e)
	}
}

// All routes every kind of event to one function.
func All(fn func(Event)) Listener {
	return Funcs{Inserted: fn, Updated: fn, Deleted: fn}
}

// Deliver calls the listener method matching the event kind.
func Deliver(l Listener, e Event) {
	switch e.Kind {
	case Inserted:
		l.OnInserted(e)
	case Updated:
		l.OnUpdated(e)
	case Deleted:
		l.OnDeleted(e)
	}
}

// Dispatching wraps a listener so every callback is handed to dispatch
// instead of running on the delivery goroutine, e.g. to marshal events onto
// a UI loop or a worker pool. dispatch must run the functions in the order
// it receives them if per-key order matters to the listener.
func Dispatching(l Listener, dispatch func(func())) Listener {
	return &dispatching{inner: l, dispatch: dispatch}
}

type dispatching struct {
	inner    Listener
	dispatch func(func())
}

func (d *dispatching) OnInserted(e Event) { d.dispatch(func() { d.inner.OnInserted(e) }) }
func (d *dispatching) OnUpdated(e Event)  { d.dispatch(func() { d.inner.OnUpdated(e) }) }
func (d *dispatching) OnDeleted(e Event)  { d.dispatch(func() { d.inner.OnDeleted(e) }) }
