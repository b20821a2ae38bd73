// Package qlang implements the grid's query language, a small SQL WHERE-like
// grammar that compiles into filter.Predicate trees.
//
// Supported syntax:
//
//   - comparisons: =, ==, !=, <>, >, >=, <, <=, is, is not
//   - pattern matching: like, ilike (case-insensitive), not like, with '%'
//     for any run and '_' for one character and an optional escape 'c'
//   - boolean operators and, or, not and parentheses
//   - literals: 'strings', "strings", numbers, true, false, null
//   - placeholders: ?1, ?2, ... (positional, 1-based) and :name (named)
//   - property paths: age, homeAddress.state, getHomeAddress.getState
//   - key().lastName to extract from the key, value() for the value itself
//
// The query "true" matches every entry. Keywords are case-insensitive.
// A placeholder without a bound value is a compile error.
//
// Example:
//
//	pred, err := qlang.CompileFilter("age > ?1 and homeAddress.state = 'MA'", qlang.Positional(58))
package qlang
