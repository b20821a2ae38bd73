// Package doc provides helpers for the JSON-shaped documents stored in the grid.
//
// Keys and values of grid entries are generic documents: map[string]any,
// []any, string, float64, bool or nil. Every value that enters the grid is
// normalised into that form with Normalize, so equality, ordering and the
// canonical key identity (ID) behave the same on every member regardless of
// the Go type the caller started with.
//
// Typed access works the other way round: As decodes a document back into a
// struct using its json tags.
package doc
