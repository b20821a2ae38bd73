package filter

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ValentinKolb/dGrid/lib/doc"
)

// Predicate is a boolean expression evaluated against an entry.
type Predicate interface {
	Evaluate(e Entry) bool
	String() string
}

// --------------------------------------------------------------------------
// Constant
// --------------------------------------------------------------------------

// Always matches every entry.
type Always struct{}

func (Always) Evaluate(Entry) bool { return true }
func (Always) String() string      { return "true" }

// --------------------------------------------------------------------------
// Comparisons
// --------------------------------------------------------------------------

// Equals matches when the extracted value deep-equals Value.
type Equals struct {
	Extractor ValueExtractor
	Value     any
}

func (p Equals) Evaluate(e Entry) bool { return doc.Equal(p.Extractor.Extract(e), p.Value) }
func (p Equals) String() string        { return fmt.Sprintf("%s = %s", p.Extractor, literal(p.Value)) }

// NotEquals matches when the extracted value differs from Value.
type NotEquals struct {
	Extractor ValueExtractor
	Value     any
}

func (p NotEquals) Evaluate(e Entry) bool { return !doc.Equal(p.Extractor.Extract(e), p.Value) }
func (p NotEquals) String() string        { return fmt.Sprintf("%s != %s", p.Extractor, literal(p.Value)) }

// GreaterThan matches when the extracted value orders after Value.
// Values of different kinds never match.
type GreaterThan struct {
	Extractor ValueExtractor
	Value     any
}

func (p GreaterThan) Evaluate(e Entry) bool {
	c, ok := doc.Compare(p.Extractor.Extract(e), p.Value)
	return ok && c > 0
}
func (p GreaterThan) String() string { return fmt.Sprintf("%s > %s", p.Extractor, literal(p.Value)) }

// GreaterEqual matches when the extracted value orders at or after Value.
type GreaterEqual struct {
	Extractor ValueExtractor
	Value     any
}

func (p GreaterEqual) Evaluate(e Entry) bool {
	c, ok := doc.Compare(p.Extractor.Extract(e), p.Value)
	return ok && c >= 0
}
func (p GreaterEqual) String() string { return fmt.Sprintf("%s >= %s", p.Extractor, literal(p.Value)) }

// LessThan matches when the extracted value orders before Value.
type LessThan struct {
	Extractor ValueExtractor
	Value     any
}

func (p LessThan) Evaluate(e Entry) bool {
	c, ok := doc.Compare(p.Extractor.Extract(e), p.Value)
	return ok && c < 0
}
func (p LessThan) String() string { return fmt.Sprintf("%s < %s", p.Extractor, literal(p.Value)) }

// LessEqual matches when the extracted value orders at or before Value.
type LessEqual struct {
	Extractor ValueExtractor
	Value     any
}

func (p LessEqual) Evaluate(e Entry) bool {
	c, ok := doc.Compare(p.Extractor.Extract(e), p.Value)
	return ok && c <= 0
}
func (p LessEqual) String() string { return fmt.Sprintf("%s <= %s", p.Extractor, literal(p.Value)) }

// Like matches string values against a pattern in which '%' stands for any
// run of characters and '_' for exactly one. Escape, if non-zero, makes the
// following pattern character literal.
type Like struct {
	Extractor     ValueExtractor
	Pattern       string
	Escape        rune
	CaseSensitive bool
}

func (p Like) Evaluate(e Entry) bool {
	s, ok := p.Extractor.Extract(e).(string)
	if !ok {
		return false
	}
	return matchLike(s, p.Pattern, p.Escape, !p.CaseSensitive)
}

func (p Like) String() string {
	op := "like"
	if !p.CaseSensitive {
		op = "ilike"
	}
	s := fmt.Sprintf("%s %s %s", p.Extractor, op, literal(p.Pattern))
	if p.Escape != 0 {
		s += fmt.Sprintf(" escape %s", literal(string(p.Escape)))
	}
	return s
}

// --------------------------------------------------------------------------
// Logical
// --------------------------------------------------------------------------

// And matches when both sides match.
type And struct {
	Left, Right Predicate
}

func (p And) Evaluate(e Entry) bool { return p.Left.Evaluate(e) && p.Right.Evaluate(e) }
func (p And) String() string        { return fmt.Sprintf("(%s and %s)", p.Left, p.Right) }

// Or matches when at least one side matches.
type Or struct {
	Left, Right Predicate
}

func (p Or) Evaluate(e Entry) bool { return p.Left.Evaluate(e) || p.Right.Evaluate(e) }
func (p Or) String() string        { return fmt.Sprintf("(%s or %s)", p.Left, p.Right) }

// Not inverts its inner predicate.
type Not struct {
	Inner Predicate
}

func (p Not) Evaluate(e Entry) bool { return !p.Inner.Evaluate(e) }
func (p Not) String() string        { return fmt.Sprintf("not %s", p.Inner) }

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// literal renders a constant the way the query grammar would write it.
func literal(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return "'" + strings.ReplaceAll(t, "'", "''") + "'"
	default:
		b, err := doc.Encode(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}

// matchLike is an iterative wildcard matcher. The last '%' seen is the only
// backtracking point, which keeps the match linear in practice.
func matchLike(s, pattern string, escape rune, fold bool) bool {
	type token struct {
		r    rune
		kind byte // 'c' literal, '_' any one, '%' any run
	}
	var toks []token
	pr := []rune(pattern)
	for i := 0; i < len(pr); i++ {
		r := pr[i]
		switch {
		case escape != 0 && r == escape && i+1 < len(pr):
			i++
			toks = append(toks, token{r: pr[i], kind: 'c'})
		case r == '%':
			toks = append(toks, token{kind: '%'})
		case r == '_':
			toks = append(toks, token{kind: '_'})
		default:
			toks = append(toks, token{r: r, kind: 'c'})
		}
	}

	sr := []rune(s)
	eq := func(a, b rune) bool {
		if fold {
			return unicode.ToLower(a) == unicode.ToLower(b)
		}
		return a == b
	}

	si, ti := 0, 0
	star, mark := -1, 0
	for si < len(sr) {
		switch {
		case ti < len(toks) && (toks[ti].kind == '_' || (toks[ti].kind == 'c' && eq(toks[ti].r, sr[si]))):
			si++
			ti++
		case ti < len(toks) && toks[ti].kind == '%':
			star, mark = ti, si
			ti++
		case star >= 0:
			ti = star + 1
			mark++
			si = mark
		default:
			return false
		}
	}
	for ti < len(toks) && toks[ti].kind == '%' {
		ti++
	}
	return ti == len(toks)
}
