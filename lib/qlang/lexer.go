package qlang

import (
	"fmt"
	"strings"
	"unicode"
)

// tokenKind classifies lexer output
type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokPositional // ?1
	tokNamed      // :name
	tokOp         // = == != <> > >= < <=
	tokLParen
	tokRParen
	tokDot
)

// token is a lexeme with its byte offset in the query
type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of query"
	}
	return fmt.Sprintf("%q", t.text)
}

// keyword reports whether the token is the given case-insensitive keyword
func (t token) keyword(kw string) bool {
	return t.kind == tokIdent && strings.EqualFold(t.text, kw)
}

// lex splits a query into tokens
func lex(query string) ([]token, error) {
	var toks []token
	rs := []rune(query)
	// byte offsets for error messages
	offsets := make([]int, len(rs)+1)
	off := 0
	for i, r := range rs {
		offsets[i] = off
		off += len(string(r))
	}
	offsets[len(rs)] = off

	for i := 0; i < len(rs); {
		r := rs[i]
		start := offsets[i]
		switch {
		case unicode.IsSpace(r):
			i++

		case r == '(':
			toks = append(toks, token{tokLParen, "(", start})
			i++
		case r == ')':
			toks = append(toks, token{tokRParen, ")", start})
			i++
		case r == '.' && !(i+1 < len(rs) && unicode.IsDigit(rs[i+1])):
			toks = append(toks, token{tokDot, ".", start})
			i++

		case r == '=' || r == '!' || r == '<' || r == '>':
			op := string(r)
			if i+1 < len(rs) {
				two := string(rs[i : i+2])
				switch two {
				case "==", "!=", "<>", "<=", ">=":
					op = two
				}
			}
			if op == "!" {
				return nil, syntaxErr(query, start, "unexpected '!'")
			}
			toks = append(toks, token{tokOp, op, start})
			i += len([]rune(op))

		case r == '\'' || r == '"':
			// quotes are escaped by doubling them
			var sb strings.Builder
			j := i + 1
			for {
				if j >= len(rs) {
					return nil, syntaxErr(query, start, "unterminated string literal")
				}
				if rs[j] == r {
					if j+1 < len(rs) && rs[j+1] == r {
						sb.WriteRune(r)
						j += 2
						continue
					}
					break
				}
				sb.WriteRune(rs[j])
				j++
			}
			toks = append(toks, token{tokString, sb.String(), start})
			i = j + 1

		case r == '?':
			j := i + 1
			for j < len(rs) && unicode.IsDigit(rs[j]) {
				j++
			}
			if j == i+1 {
				return nil, syntaxErr(query, start, "positional placeholder needs an index, e.g. ?1")
			}
			toks = append(toks, token{tokPositional, string(rs[i+1 : j]), start})
			i = j

		case r == ':':
			j := i + 1
			for j < len(rs) && isIdentRune(rs[j], j == i+1) {
				j++
			}
			if j == i+1 {
				return nil, syntaxErr(query, start, "named placeholder needs a name, e.g. :state")
			}
			toks = append(toks, token{tokNamed, string(rs[i+1 : j]), start})
			i = j

		case unicode.IsDigit(r) || r == '.' || ((r == '-' || r == '+') && i+1 < len(rs) && (unicode.IsDigit(rs[i+1]) || rs[i+1] == '.')):
			j := i + 1
			for j < len(rs) && (unicode.IsDigit(rs[j]) || rs[j] == '.' || rs[j] == 'e' || rs[j] == 'E' ||
				((rs[j] == '-' || rs[j] == '+') && (rs[j-1] == 'e' || rs[j-1] == 'E'))) {
				j++
			}
			toks = append(toks, token{tokNumber, string(rs[i:j]), start})
			i = j

		case isIdentRune(r, true):
			j := i + 1
			for j < len(rs) && isIdentRune(rs[j], false) {
				j++
			}
			toks = append(toks, token{tokIdent, string(rs[i:j]), start})
			i = j

		default:
			return nil, syntaxErr(query, start, fmt.Sprintf("unexpected character %q", r))
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(query)})
	return toks, nil
}

func isIdentRune(r rune, first bool) bool {
	if r == '_' || r == '$' || unicode.IsLetter(r) {
		return true
	}
	return !first && unicode.IsDigit(r)
}
