package searchodm

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode"

	"github.com/cockroachdb/errors"
)

// ParseFilter parses a string in the engine's filter syntax into an Expression.
// Transports that evaluate or re-render filters themselves use it to read the
// strings produced by the translator.
//
// Grammar, keywords case-insensitive:
//
//	or        = and { "OR" and }
//	and       = not { "AND" not }
//	not       = "NOT" not | "(" or ")" | condition
//	condition = field op value
//	          | field value "TO" value
//	          | field ["NOT"] "IN" "[" value { "," value } "]"
//	          | field ["NOT"] "EXISTS"
//	          | field "IS" ["NOT"] ("NULL" | "EMPTY")
func ParseFilter(input string) (Expression, error) {
	toks, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, input: input}
	if p.peek().kind == tokEOF {
		return nil, errors.Wrap(ErrTranslation, "empty filter")
	}
	expr, err := p.or()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.unexpected(t)
	}
	return expr, nil
}

// ParseFilterValue parses the filter field of a SearchRequest: a string, a flat list
// (OR of its entries) or a list of lists (AND of OR-groups). A nil filter yields nil.
func ParseFilterValue(filter any) (Expression, error) {
	switch f := filter.(type) {
	case nil:
		return nil, nil
	case string:
		return ParseFilter(f)
	case []string:
		return parseGroup(f)
	case [][]string:
		groups := make([]Expression, 0, len(f))
		for _, g := range f {
			expr, err := parseGroup(g)
			if err != nil {
				return nil, err
			}
			if expr != nil {
				groups = append(groups, expr)
			}
		}
		return collapse(groups, And), nil
	case []any:
		// decoded JSON: either flat strings or nested arrays
		var flat []string
		var nested [][]string
		for _, item := range f {
			switch v := item.(type) {
			case string:
				flat = append(flat, v)
			case []any:
				g := make([]string, 0, len(v))
				for _, s := range v {
					str, ok := s.(string)
					if !ok {
						return nil, errors.Wrapf(ErrTranslation, "unsupported filter element %T", s)
					}
					g = append(g, str)
				}
				nested = append(nested, g)
			default:
				return nil, errors.Wrapf(ErrTranslation, "unsupported filter element %T", item)
			}
		}
		if len(nested) > 0 {
			for _, s := range flat {
				nested = append(nested, []string{s})
			}
			return ParseFilterValue(nested)
		}
		return ParseFilterValue(flat)
	default:
		return nil, errors.Wrapf(ErrTranslation, "unsupported filter type %T", filter)
	}
}

func parseGroup(group []string) (Expression, error) {
	exprs := make([]Expression, 0, len(group))
	for _, s := range group {
		if strings.TrimSpace(s) == "" {
			continue
		}
		expr, err := ParseFilter(s)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)
	}
	return collapse(exprs, Or), nil
}

func collapse(exprs []Expression, combine func(...Expression) Expression) Expression {
	switch len(exprs) {
	case 0:
		return nil
	case 1:
		return exprs[0]
	default:
		return combine(exprs...)
	}
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokWord
	tokString
	tokOp
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
)

type token struct {
	kind tokKind
	text string
	pos  int
}

// keyword reports whether t is the bare word kw, ignoring case.
func (t token) keyword(kw string) bool {
	return t.kind == tokWord && strings.EqualFold(t.text, kw)
}

func lex(input string) ([]token, error) {
	var toks []token
	runes := []rune(input)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case r == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case r == '[':
			toks = append(toks, token{tokLBracket, "[", i})
			i++
		case r == ']':
			toks = append(toks, token{tokRBracket, "]", i})
			i++
		case r == ',':
			toks = append(toks, token{tokComma, ",", i})
			i++
		case r == '=':
			toks = append(toks, token{tokOp, "=", i})
			i++
		case r == '!' || r == '<' || r == '>':
			if i+1 < len(runes) && runes[i+1] == '=' {
				toks = append(toks, token{tokOp, string(r) + "=", i})
				i += 2
				continue
			}
			if r == '!' {
				return nil, errors.Wrapf(ErrTranslation, "unexpected '!' at %d in filter %q", i, input)
			}
			toks = append(toks, token{tokOp, string(r), i})
			i++
		case r == '"' || r == '\'':
			start := i
			var b strings.Builder
			i++
			closed := false
			for i < len(runes) {
				c := runes[i]
				if c == '\\' && i+1 < len(runes) {
					b.WriteRune(runes[i+1])
					i += 2
					continue
				}
				if c == r {
					closed = true
					i++
					break
				}
				b.WriteRune(c)
				i++
			}
			if !closed {
				return nil, errors.Wrapf(ErrTranslation, "unterminated string at %d in filter %q", start, input)
			}
			toks = append(toks, token{tokString, b.String(), start})
		default:
			start := i
			for i < len(runes) && !unicode.IsSpace(runes[i]) && !strings.ContainsRune("()[],=!<>\"'", runes[i]) {
				i++
			}
			toks = append(toks, token{tokWord, string(runes[start:i]), start})
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(runes)}), nil
}

type parser struct {
	toks  []token
	pos   int
	input string
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) unexpected(t token) error {
	if t.kind == tokEOF {
		return errors.Wrapf(ErrTranslation, "unexpected end of filter %q", p.input)
	}
	return errors.Wrapf(ErrTranslation, "unexpected %q at %d in filter %q", t.text, t.pos, p.input)
}

func (p *parser) or() (Expression, error) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}
	exprs := []Expression{left}
	for p.peek().keyword("OR") {
		p.next()
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, right)
	}
	return collapse(exprs, Or), nil
}

func (p *parser) and() (Expression, error) {
	left, err := p.not()
	if err != nil {
		return nil, err
	}
	exprs := []Expression{left}
	for p.peek().keyword("AND") {
		p.next()
		right, err := p.not()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, right)
	}
	return collapse(exprs, And), nil
}

func (p *parser) not() (Expression, error) {
	t := p.peek()
	switch {
	case t.keyword("NOT"):
		p.next()
		inner, err := p.not()
		if err != nil {
			return nil, err
		}
		return Not(inner), nil
	case t.kind == tokLParen:
		p.next()
		inner, err := p.or()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, p.unexpected(closing)
		}
		return inner, nil
	default:
		return p.condition()
	}
}

func (p *parser) condition() (Expression, error) {
	ft := p.next()
	if ft.kind != tokWord && ft.kind != tokString {
		return nil, p.unexpected(ft)
	}
	field := ft.text

	t := p.peek()
	switch {
	case t.kind == tokOp:
		p.next()
		value, err := p.value()
		if err != nil {
			return nil, err
		}
		return CompareExpr{Field: field, Op: Operator(t.text), Value: value}, nil
	case t.keyword("EXISTS"):
		p.next()
		return Exists(field), nil
	case t.keyword("IN"):
		p.next()
		return p.in(field)
	case t.keyword("NOT"):
		p.next()
		switch n := p.next(); {
		case n.keyword("EXISTS"):
			return Not(Exists(field)), nil
		case n.keyword("IN"):
			in, err := p.in(field)
			if err != nil {
				return nil, err
			}
			return Not(in), nil
		default:
			return nil, p.unexpected(n)
		}
	case t.keyword("IS"):
		p.next()
		negate := false
		if p.peek().keyword("NOT") {
			p.next()
			negate = true
		}
		var expr Expression
		switch n := p.next(); {
		case n.keyword("NULL"):
			expr = IsNull(field)
		case n.keyword("EMPTY"):
			expr = IsEmpty(field)
		default:
			return nil, p.unexpected(n)
		}
		if negate {
			return Not(expr), nil
		}
		return expr, nil
	case t.kind == tokWord || t.kind == tokString:
		low, err := p.value()
		if err != nil {
			return nil, err
		}
		if to := p.next(); !to.keyword("TO") {
			return nil, p.unexpected(to)
		}
		high, err := p.value()
		if err != nil {
			return nil, err
		}
		return Range(field, low, high), nil
	default:
		return nil, p.unexpected(t)
	}
}

func (p *parser) in(field string) (Expression, error) {
	if open := p.next(); open.kind != tokLBracket {
		return nil, p.unexpected(open)
	}
	var values []any
	if p.peek().kind == tokRBracket {
		p.next()
		return InExpr{Field: field}, nil
	}
	for {
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		switch t := p.next(); t.kind {
		case tokComma:
			continue
		case tokRBracket:
			return InExpr{Field: field, Values: values}, nil
		default:
			return nil, p.unexpected(t)
		}
	}
}

// value reads a literal. Quoted text stays a string; bare numbers become
// json.Number, bare true/false booleans and bare null nil.
func (p *parser) value() (any, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return t.text, nil
	case tokWord:
		switch t.text {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "null":
			return nil, nil
		}
		if looksNumeric(t.text) {
			return json.Number(t.text), nil
		}
		return t.text, nil
	default:
		return nil, p.unexpected(t)
	}
}

func looksNumeric(s string) bool {
	if s == "" || !strings.ContainsAny(s[:1], "0123456789-+.") {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
