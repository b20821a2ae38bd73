package internal

import (
	"github.com/ValentinKolb/dGrid/lib/aggregate"
	"github.com/ValentinKolb/dGrid/lib/filter"
)

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTGet              QueryType = iota // Retrieve an entry by key.
	QueryTSize                              // Count the entries.
	QueryTEntries                           // Retrieve all matching entries.
	QueryTKeys                              // Retrieve the keys of all matching entries.
	QueryTAggregatePartial                  // Fold all matching entries into a partial result.
)

func (q QueryType) String() string {
	switch q {
	case QueryTGet:
		return "Get"
	case QueryTSize:
		return "Size"
	case QueryTEntries:
		return "Entries"
	case QueryTKeys:
		return "Keys"
	case QueryTAggregatePartial:
		return "AggregatePartial"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via SyncRead or StaleRead.
// Queries never leave the process, so they carry Go values.
type Query struct {
	Type       QueryType            // The type of Query to perform.
	Key        any                  // The key for QueryTGet.
	Predicate  filter.Predicate     // The filter for set-wide queries (nil means all).
	Aggregator aggregate.Aggregator // The aggregation for QueryTAggregatePartial.
}

// QueryResult is the result of a QueryTGet operation.
// All other query results are primitive types or predefined structs.
type QueryResult struct {
	Ok    bool
	Value any
}
