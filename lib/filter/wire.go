package filter

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dGrid/lib/doc"
)

// --------------------------------------------------------------------------
// Wire Format
// --------------------------------------------------------------------------

// Node is the tagged JSON form of predicates and extractors. Other packages
// embed it when they carry a tree inside their own payloads.
type Node struct {
	Op            string  `json:"op"`
	Name          string  `json:"name,omitempty"`
	Parts         []*Node `json:"parts,omitempty"`
	Of            *Node   `json:"of,omitempty"`
	Extractor     *Node   `json:"extractor,omitempty"`
	Value         any     `json:"value,omitempty"`
	Pattern       string  `json:"pattern,omitempty"`
	Escape        string  `json:"escape,omitempty"`
	CaseSensitive bool    `json:"caseSensitive,omitempty"`
	Left          *Node   `json:"left,omitempty"`
	Right         *Node   `json:"right,omitempty"`
}

// Node operation tags
const (
	opIdentity = "identity"
	opProperty = "property"
	opChained  = "chained"
	opKey      = "key"

	opAlways       = "always"
	opEquals       = "eq"
	opNotEquals    = "ne"
	opGreaterThan  = "gt"
	opGreaterEqual = "ge"
	opLessThan     = "lt"
	opLessEqual    = "le"
	opLike         = "like"
	opAnd          = "and"
	opOr           = "or"
	opNot          = "not"
)

// MarshalPredicate encodes a predicate tree.
func MarshalPredicate(p Predicate) ([]byte, error) {
	n, err := EncodePredicate(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(n)
}

// UnmarshalPredicate decodes a predicate tree. Constants are normalised.
func UnmarshalPredicate(b []byte) (Predicate, error) {
	var n Node
	if err := json.Unmarshal(b, &n); err != nil {
		return nil, fmt.Errorf("invalid predicate encoding: %w", err)
	}
	return DecodePredicate(&n)
}

// MarshalExtractor encodes an extractor.
func MarshalExtractor(x ValueExtractor) ([]byte, error) {
	n, err := EncodeExtractor(x)
	if err != nil {
		return nil, err
	}
	return json.Marshal(n)
}

// UnmarshalExtractor decodes an extractor.
func UnmarshalExtractor(b []byte) (ValueExtractor, error) {
	var n Node
	if err := json.Unmarshal(b, &n); err != nil {
		return nil, fmt.Errorf("invalid extractor encoding: %w", err)
	}
	return DecodeExtractor(&n)
}

// --------------------------------------------------------------------------
// Node conversion
// --------------------------------------------------------------------------

// EncodeExtractor converts an extractor into its node form.
func EncodeExtractor(x ValueExtractor) (*Node, error) {
	switch t := x.(type) {
	case Identity:
		return &Node{Op: opIdentity}, nil
	case Property:
		return &Node{Op: opProperty, Name: t.Name}, nil
	case Chained:
		n := &Node{Op: opChained, Parts: make([]*Node, len(t.Parts))}
		for i, p := range t.Parts {
			part, err := EncodeExtractor(p)
			if err != nil {
				return nil, err
			}
			n.Parts[i] = part
		}
		return n, nil
	case Key:
		n := &Node{Op: opKey}
		if t.Of != nil {
			of, err := EncodeExtractor(t.Of)
			if err != nil {
				return nil, err
			}
			n.Of = of
		}
		return n, nil
	default:
		return nil, fmt.Errorf("unsupported extractor type %T", x)
	}
}

// DecodeExtractor converts a node into an extractor.
func DecodeExtractor(n *Node) (ValueExtractor, error) {
	if n == nil {
		return nil, fmt.Errorf("missing extractor")
	}
	switch n.Op {
	case opIdentity:
		return Identity{}, nil
	case opProperty:
		if n.Name == "" {
			return nil, fmt.Errorf("property extractor without name")
		}
		return Property{Name: n.Name}, nil
	case opChained:
		parts := make([]ValueExtractor, len(n.Parts))
		for i, p := range n.Parts {
			x, err := DecodeExtractor(p)
			if err != nil {
				return nil, err
			}
			parts[i] = x
		}
		return Chained{Parts: parts}, nil
	case opKey:
		if n.Of == nil {
			return Key{}, nil
		}
		of, err := DecodeExtractor(n.Of)
		if err != nil {
			return nil, err
		}
		return Key{Of: of}, nil
	default:
		return nil, fmt.Errorf("unknown extractor op %q", n.Op)
	}
}

// EncodePredicate converts a predicate into its node form.
func EncodePredicate(p Predicate) (*Node, error) {
	comparison := func(op string, x ValueExtractor, v any) (*Node, error) {
		xn, err := EncodeExtractor(x)
		if err != nil {
			return nil, err
		}
		return &Node{Op: op, Extractor: xn, Value: v}, nil
	}
	binary := func(op string, l, r Predicate) (*Node, error) {
		ln, err := EncodePredicate(l)
		if err != nil {
			return nil, err
		}
		rn, err := EncodePredicate(r)
		if err != nil {
			return nil, err
		}
		return &Node{Op: op, Left: ln, Right: rn}, nil
	}

	switch t := p.(type) {
	case Always:
		return &Node{Op: opAlways}, nil
	case Equals:
		return comparison(opEquals, t.Extractor, t.Value)
	case NotEquals:
		return comparison(opNotEquals, t.Extractor, t.Value)
	case GreaterThan:
		return comparison(opGreaterThan, t.Extractor, t.Value)
	case GreaterEqual:
		return comparison(opGreaterEqual, t.Extractor, t.Value)
	case LessThan:
		return comparison(opLessThan, t.Extractor, t.Value)
	case LessEqual:
		return comparison(opLessEqual, t.Extractor, t.Value)
	case Like:
		n, err := comparison(opLike, t.Extractor, nil)
		if err != nil {
			return nil, err
		}
		n.Pattern = t.Pattern
		n.CaseSensitive = t.CaseSensitive
		if t.Escape != 0 {
			n.Escape = string(t.Escape)
		}
		return n, nil
	case And:
		return binary(opAnd, t.Left, t.Right)
	case Or:
		return binary(opOr, t.Left, t.Right)
	case Not:
		inner, err := EncodePredicate(t.Inner)
		if err != nil {
			return nil, err
		}
		return &Node{Op: opNot, Left: inner}, nil
	default:
		return nil, fmt.Errorf("unsupported predicate type %T", p)
	}
}

// DecodePredicate converts a node into a predicate.
func DecodePredicate(n *Node) (Predicate, error) {
	if n == nil {
		return nil, fmt.Errorf("missing predicate")
	}

	var x ValueExtractor
	var v any
	switch n.Op {
	case opEquals, opNotEquals, opGreaterThan, opGreaterEqual, opLessThan, opLessEqual, opLike:
		var err error
		if x, err = DecodeExtractor(n.Extractor); err != nil {
			return nil, err
		}
		if v, err = doc.Normalize(n.Value); err != nil {
			return nil, err
		}
	}

	binary := func() (Predicate, Predicate, error) {
		l, err := DecodePredicate(n.Left)
		if err != nil {
			return nil, nil, err
		}
		r, err := DecodePredicate(n.Right)
		if err != nil {
			return nil, nil, err
		}
		return l, r, nil
	}

	switch n.Op {
	case opAlways:
		return Always{}, nil
	case opEquals:
		return Equals{Extractor: x, Value: v}, nil
	case opNotEquals:
		return NotEquals{Extractor: x, Value: v}, nil
	case opGreaterThan:
		return GreaterThan{Extractor: x, Value: v}, nil
	case opGreaterEqual:
		return GreaterEqual{Extractor: x, Value: v}, nil
	case opLessThan:
		return LessThan{Extractor: x, Value: v}, nil
	case opLessEqual:
		return LessEqual{Extractor: x, Value: v}, nil
	case opLike:
		like := Like{Extractor: x, Pattern: n.Pattern, CaseSensitive: n.CaseSensitive}
		if esc := []rune(n.Escape); len(esc) == 1 {
			like.Escape = esc[0]
		} else if len(esc) > 1 {
			return nil, fmt.Errorf("escape must be a single character, got %q", n.Escape)
		}
		return like, nil
	case opAnd:
		l, r, err := binary()
		if err != nil {
			return nil, err
		}
		return And{Left: l, Right: r}, nil
	case opOr:
		l, r, err := binary()
		if err != nil {
			return nil, err
		}
		return Or{Left: l, Right: r}, nil
	case opNot:
		inner, err := DecodePredicate(n.Left)
		if err != nil {
			return nil, err
		}
		return Not{Inner: inner}, nil
	default:
		return nil, fmt.Errorf("unknown predicate op %q", n.Op)
	}
}
