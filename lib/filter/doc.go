// Package filter implements the predicate and value extractor model used to
// select grid entries.
//
// A Predicate is an immutable boolean expression tree that is evaluated
// against an Entry. Leaves compare the result of a ValueExtractor with a
// constant, inner nodes combine predicates with And, Or and Not. All types
// are plain values without internal state, so a tree can be evaluated
// concurrently and compared structurally (reflect.DeepEqual).
//
// Extractors are pure functions of an entry:
//
//   - Identity returns the value itself
//   - Property returns one member of an object value
//   - Chained applies its parts in sequence ("homeAddress.state")
//   - Key applies its inner extractor to the key instead of the value
//
// Trees cross process boundaries in a tagged JSON form, see MarshalPredicate
// and MarshalExtractor.
package filter
