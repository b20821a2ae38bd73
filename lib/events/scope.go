package events

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ValentinKolb/dGrid/lib/filter"
)

// Scope selects the events a subscription receives.
type Scope struct {
	keys      map[string]struct{} // nil means no key restriction
	predicate filter.Predicate    // nil means no predicate restriction
}

// AllEntries matches every event.
func AllEntries() Scope { return Scope{} }

// Keys matches events for the given key ids (see doc.ID).
func Keys(ids ...string) Scope {
	keys := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		keys[id] = struct{}{}
	}
	return Scope{keys: keys}
}

// Matching matches events where the old or the new value satisfies p, so a
// subscriber also learns when an entry leaves the result set.
func Matching(p filter.Predicate) Scope { return Scope{predicate: p} }

// KeyIDs returns the key ids of a key scope, sorted; nil for other scopes.
func (s Scope) KeyIDs() []string {
	if s.keys == nil {
		return nil
	}
	ids := make([]string, 0, len(s.keys))
	for id := range s.keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Predicate returns the predicate of a matching scope, or nil.
func (s Scope) Predicate() filter.Predicate { return s.predicate }

// Matches reports whether the event falls into the scope.
func (s Scope) Matches(e Event) bool {
	if s.keys != nil {
		if _, ok := s.keys[e.KeyID]; !ok {
			return false
		}
	}
	if s.predicate == nil {
		return true
	}
	if e.Kind != Inserted && s.predicate.Evaluate(filter.Entry{Key: e.Key, Value: e.OldValue}) {
		return true
	}
	return e.Kind != Deleted && s.predicate.Evaluate(filter.Entry{Key: e.Key, Value: e.NewValue})
}

func (s Scope) String() string {
	switch {
	case s.keys != nil:
		return fmt.Sprintf("keys%v", s.KeyIDs())
	case s.predicate != nil:
		return fmt.Sprintf("matching(%s)", s.predicate)
	default:
		return "all"
	}
}

type wireScope struct {
	Keys      []string     `json:"keys"`
	Predicate *filter.Node `json:"predicate,omitempty"`
}

func (s Scope) MarshalJSON() ([]byte, error) {
	w := wireScope{Keys: s.KeyIDs()}
	if s.keys != nil && w.Keys == nil {
		w.Keys = []string{}
	}
	if s.predicate != nil {
		n, err := filter.EncodePredicate(s.predicate)
		if err != nil {
			return nil, err
		}
		w.Predicate = n
	}
	return json.Marshal(w)
}

func (s *Scope) UnmarshalJSON(b []byte) error {
	var w wireScope
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	out := Scope{}
	if w.Keys != nil {
		out = Keys(w.Keys...)
	}
	if w.Predicate != nil {
		p, err := filter.DecodePredicate(w.Predicate)
		if err != nil {
			return err
		}
		out.predicate = p
	}
	*s = out
	return nil
}
