package qlang

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ValentinKolb/dGrid/lib/doc"
	"github.com/ValentinKolb/dGrid/lib/filter"
)

// --------------------------------------------------------------------------
// Public API
// --------------------------------------------------------------------------

// Bindings holds the values substituted for placeholders. Positional values
// are addressed 1-based (?1 is Positional[0]), named values by :name.
type Bindings struct {
	Positional []any          `json:"positional,omitempty"`
	Named      map[string]any `json:"named,omitempty"`
}

// Positional is a shorthand for positional bindings.
func Positional(values ...any) Bindings {
	return Bindings{Positional: values}
}

// Named is a shorthand for named bindings.
func Named(values map[string]any) Bindings {
	return Bindings{Named: values}
}

// CompileFilter parses a query and binds its placeholders. The result is a
// fresh, immutable predicate tree; equal inputs give structurally equal trees.
func CompileFilter(query string, b Bindings) (filter.Predicate, error) {
	p, err := newParser(query, b)
	if err != nil {
		return nil, err
	}
	pred, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t, "unexpected %s", t)
	}
	return pred, nil
}

// CompileExtractor parses a property path such as "homeAddress.state",
// "key().lastName" or "value()".
func CompileExtractor(expr string) (filter.ValueExtractor, error) {
	p, err := newParser(expr, Bindings{})
	if err != nil {
		return nil, err
	}
	t := p.peek()
	if t.kind != tokIdent {
		return nil, p.errorf(t, "expected a property path, got %s", t)
	}
	x, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t, "unexpected %s", t)
	}
	return x, nil
}

// --------------------------------------------------------------------------
// Parser
// --------------------------------------------------------------------------

// parser is a recursive descent parser over the token stream.
//
//	or         := and ("or" and)*
//	and        := unary ("and" unary)*
//	unary      := "not" unary | "(" or ")" | comparison
//	comparison := operand [op operand]
//	operand    := path | literal | placeholder
//	path       := ident ("." ident)* | ("key" | "value") "(" ")" ("." ident)*
type parser struct {
	query    string
	toks     []token
	pos      int
	bindings Bindings
}

func newParser(query string, b Bindings) (*parser, error) {
	if strings.TrimSpace(query) == "" {
		return nil, syntaxErr(query, 0, "empty query")
	}
	toks, err := lex(query)
	if err != nil {
		return nil, err
	}
	return &parser{query: query, toks: toks, bindings: b}, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) peekAt(n int) token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return syntaxErr(p.query, t.pos, fmt.Sprintf(format, args...))
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.next()
	if t.kind != kind {
		return t, p.errorf(t, "expected %s, got %s", what, t)
	}
	return t, nil
}

func (p *parser) parseOr() (filter.Predicate, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().keyword("or") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = filter.Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (filter.Predicate, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().keyword("and") {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = filter.And{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (filter.Predicate, error) {
	t := p.peek()
	switch {
	case t.keyword("not"):
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return filter.Not{Inner: inner}, nil
	case t.kind == tokLParen:
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	default:
		return p.parseComparison()
	}
}

// operand is either an extractor or a bound constant
type operand struct {
	extractor filter.ValueExtractor
	value     any
	tok       token
}

func (o operand) isPath() bool { return o.extractor != nil }

func (p *parser) parseComparison() (filter.Predicate, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	opTok := p.peek()
	op, negate, ok := p.comparisonOp()
	if !ok {
		// bare operand
		switch {
		case left.isPath():
			return filter.Equals{Extractor: left.extractor, Value: true}, nil
		case left.value == true:
			return filter.Always{}, nil
		case left.value == false:
			return filter.Not{Inner: filter.Always{}}, nil
		default:
			return nil, p.errorf(left.tok, "expected a condition, got %s", left.tok)
		}
	}

	if op == "like" || op == "ilike" {
		return p.parseLike(left, op == "like", negate, opTok)
	}

	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	switch {
	case left.isPath() && !right.isPath():
	case !left.isPath() && right.isPath():
		left, right = right, left
		op = mirror(op)
	case left.isPath():
		return nil, p.errorf(opTok, "comparing two properties is not supported")
	default:
		return nil, p.errorf(opTok, "comparison needs a property on one side")
	}

	x, v := left.extractor, right.value
	switch op {
	case "=", "==":
		return filter.Equals{Extractor: x, Value: v}, nil
	case "!=", "<>":
		return filter.NotEquals{Extractor: x, Value: v}, nil
	case ">":
		return filter.GreaterThan{Extractor: x, Value: v}, nil
	case ">=":
		return filter.GreaterEqual{Extractor: x, Value: v}, nil
	case "<":
		return filter.LessThan{Extractor: x, Value: v}, nil
	case "<=":
		return filter.LessEqual{Extractor: x, Value: v}, nil
	default:
		return nil, p.errorf(opTok, "unknown operator %q", op)
	}
}

// comparisonOp consumes an operator. "is" and "is not" map to = and !=,
// "not like" sets negate.
func (p *parser) comparisonOp() (op string, negate bool, ok bool) {
	t := p.peek()
	switch {
	case t.kind == tokOp:
		p.next()
		return t.text, false, true
	case t.keyword("is"):
		p.next()
		if p.peek().keyword("not") {
			p.next()
			return "!=", false, true
		}
		return "=", false, true
	case t.keyword("like"), t.keyword("ilike"):
		p.next()
		return strings.ToLower(t.text), false, true
	case t.keyword("not") && (p.peekAt(1).keyword("like") || p.peekAt(1).keyword("ilike")):
		p.next()
		kw := p.next()
		return strings.ToLower(kw.text), true, true
	}
	return "", false, false
}

func (p *parser) parseLike(left operand, caseSensitive, negate bool, opTok token) (filter.Predicate, error) {
	if !left.isPath() {
		return nil, p.errorf(opTok, "like needs a property on the left side")
	}
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	pattern, ok := right.value.(string)
	if right.isPath() || !ok {
		return nil, p.errorf(right.tok, "like needs a string pattern")
	}

	like := filter.Like{Extractor: left.extractor, Pattern: pattern, CaseSensitive: caseSensitive}
	if p.peek().keyword("escape") {
		p.next()
		esc, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		s, ok := esc.value.(string)
		if esc.isPath() || !ok || utf8.RuneCountInString(s) != 1 {
			return nil, p.errorf(esc.tok, "escape needs a single character string")
		}
		like.Escape, _ = utf8.DecodeRuneInString(s)
	}

	if negate {
		return filter.Not{Inner: like}, nil
	}
	return like, nil
}

func (p *parser) parseOperand() (operand, error) {
	t := p.peek()
	switch t.kind {
	case tokString:
		p.next()
		return operand{value: t.text, tok: t}, nil

	case tokNumber:
		p.next()
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return operand{}, p.errorf(t, "invalid number %s", t)
		}
		return operand{value: f, tok: t}, nil

	case tokPositional:
		p.next()
		idx, err := strconv.Atoi(t.text)
		if err != nil || idx < 1 {
			return operand{}, p.errorf(t, "invalid placeholder ?%s", t.text)
		}
		if idx > len(p.bindings.Positional) {
			return operand{}, &BindingError{Query: p.query, Placeholder: "?" + t.text}
		}
		return p.bound(t, p.bindings.Positional[idx-1])

	case tokNamed:
		p.next()
		v, ok := p.bindings.Named[t.text]
		if !ok {
			return operand{}, &BindingError{Query: p.query, Placeholder: ":" + t.text}
		}
		return p.bound(t, v)

	case tokIdent:
		switch {
		case t.keyword("true"):
			p.next()
			return operand{value: true, tok: t}, nil
		case t.keyword("false"):
			p.next()
			return operand{value: false, tok: t}, nil
		case t.keyword("null"):
			p.next()
			return operand{value: nil, tok: t}, nil
		case isReserved(t.text):
			return operand{}, p.errorf(t, "unexpected keyword %s", t)
		}
		x, err := p.parsePath()
		if err != nil {
			return operand{}, err
		}
		return operand{extractor: x, tok: t}, nil

	default:
		return operand{}, p.errorf(t, "unexpected %s", t)
	}
}

func (p *parser) bound(t token, v any) (operand, error) {
	n, err := doc.Normalize(v)
	if err != nil {
		return operand{}, p.errorf(t, "cannot bind placeholder: %v", err)
	}
	return operand{value: n, tok: t}, nil
}

func (p *parser) parsePath() (filter.ValueExtractor, error) {
	first := p.next()

	// key() and value() pseudo functions
	if (first.keyword("key") || first.keyword("value")) && p.peek().kind == tokLParen {
		p.next()
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		rest, err := p.parseMembers()
		if err != nil {
			return nil, err
		}
		var of filter.ValueExtractor
		if len(rest) > 0 {
			of = chain(rest)
		}
		if first.keyword("key") {
			return filter.Key{Of: of}, nil
		}
		if of == nil {
			return filter.Identity{}, nil
		}
		return of, nil
	}

	names := []string{first.text}
	rest, err := p.parseMembers()
	if err != nil {
		return nil, err
	}
	return chain(append(names, rest...)), nil
}

func (p *parser) parseMembers() ([]string, error) {
	var names []string
	for p.peek().kind == tokDot {
		p.next()
		t, err := p.expect(tokIdent, "a property name")
		if err != nil {
			return nil, err
		}
		names = append(names, t.text)
	}
	return names, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func chain(names []string) filter.ValueExtractor {
	if len(names) == 1 {
		return filter.Property{Name: names[0]}
	}
	parts := make([]filter.ValueExtractor, len(names))
	for i, n := range names {
		parts[i] = filter.Property{Name: n}
	}
	return filter.Chained{Parts: parts}
}

// mirror flips an operator for swapped operands (5 < age is age > 5)
func mirror(op string) string {
	switch op {
	case ">":
		return "<"
	case ">=":
		return "<="
	case "<":
		return ">"
	case "<=":
		return ">="
	}
	return op
}

var reserved = map[string]bool{
	"and": true, "or": true, "not": true, "is": true,
	"like": true, "ilike": true, "escape": true,
}

func isReserved(s string) bool {
	return reserved[strings.ToLower(s)]
}
