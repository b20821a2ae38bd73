package qlang

import "fmt"

// SyntaxError reports a malformed query.
type SyntaxError struct {
	Query string
	Pos   int // byte offset
	Msg   string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at offset %d in %q: %s", e.Pos, e.Query, e.Msg)
}

func syntaxErr(query string, pos int, msg string) error {
	return &SyntaxError{Query: query, Pos: pos, Msg: msg}
}

// BindingError reports a placeholder without a bound value.
type BindingError struct {
	Query       string
	Placeholder string
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("no value bound for placeholder %s in %q", e.Placeholder, e.Query)
}
