package searchodm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Expression represents a composable filter expression. String renders it in the
// engine's filter syntax.
type Expression interface {
	fmt.Stringer
	// expr is a marker method to distinguish expressions from other stringers.
	expr()
}

// baseExpr provides the expr marker method for all expression types.
type baseExpr struct{}

func (baseExpr) expr() {}

// Operator is a comparison operator of the filter syntax.
type Operator string

const (
	OpEq  Operator = "="
	OpNe  Operator = "!="
	OpGt  Operator = ">"
	OpGte Operator = ">="
	OpLt  Operator = "<"
	OpLte Operator = "<="
)

// AndExpr represents an AND combination of expressions.
type AndExpr struct {
	baseExpr
	// Exprs contains the expressions to combine with AND logic.
	Exprs []Expression
}

// And creates an AND expression combining multiple expressions.
func And(exprs ...Expression) Expression {
	return AndExpr{Exprs: exprs}
}

func (a AndExpr) String() string { return join(a.Exprs, " AND ") }

// OrExpr represents an OR combination of expressions.
type OrExpr struct {
	baseExpr
	// Exprs contains the expressions to combine with OR logic.
	Exprs []Expression
}

// Or creates an OR expression combining multiple expressions.
func Or(exprs ...Expression) Expression {
	return OrExpr{Exprs: exprs}
}

func (o OrExpr) String() string { return join(o.Exprs, " OR ") }

// NotExpr represents a NOT negation of an expression.
type NotExpr struct {
	baseExpr
	// Inner is the expression to negate.
	Inner Expression
}

// Not creates a NOT expression negating the given expression.
func Not(expr Expression) Expression {
	return NotExpr{Inner: expr}
}

func (n NotExpr) String() string {
	inner := n.Inner.String()
	if inner == "" {
		return ""
	}
	return "NOT " + group(n.Inner, inner)
}

// CompareExpr compares a field against a value.
type CompareExpr struct {
	baseExpr
	Field string
	Op    Operator
	Value any
}

// Eq creates an equality comparison expression.
func Eq(field string, value any) Expression { return CompareExpr{Field: field, Op: OpEq, Value: value} }

// Ne creates a not-equal comparison expression.
func Ne(field string, value any) Expression { return CompareExpr{Field: field, Op: OpNe, Value: value} }

// Gt creates a greater-than comparison expression.
func Gt(field string, value any) Expression { return CompareExpr{Field: field, Op: OpGt, Value: value} }

// Gte creates a greater-than-or-equal comparison expression.
func Gte(field string, value any) Expression {
	return CompareExpr{Field: field, Op: OpGte, Value: value}
}

// Lt creates a less-than comparison expression.
func Lt(field string, value any) Expression { return CompareExpr{Field: field, Op: OpLt, Value: value} }

// Lte creates a less-than-or-equal comparison expression.
func Lte(field string, value any) Expression {
	return CompareExpr{Field: field, Op: OpLte, Value: value}
}

func (c CompareExpr) String() string {
	return FormatField(c.Field) + " " + string(c.Op) + " " + FormatValue(c.Value)
}

// RangeExpr represents an inclusive range. A nil bound is open.
type RangeExpr struct {
	baseExpr
	Field string
	Min   any
	Max   any
}

// Range creates a range expression, rendered as "field min TO max".
func Range(field string, min, max any) Expression {
	return RangeExpr{Field: field, Min: min, Max: max}
}

func (r RangeExpr) String() string {
	switch {
	case r.Min != nil && r.Max != nil:
		return FormatField(r.Field) + " " + FormatValue(r.Min) + " TO " + FormatValue(r.Max)
	case r.Min != nil:
		return CompareExpr{Field: r.Field, Op: OpGte, Value: r.Min}.String()
	case r.Max != nil:
		return CompareExpr{Field: r.Field, Op: OpLte, Value: r.Max}.String()
	default:
		return ExistsExpr{Field: r.Field}.String()
	}
}

// InExpr matches when the field equals any of the values.
type InExpr struct {
	baseExpr
	Field  string
	Values []any
}

// In creates a set membership expression.
func In(field string, values ...any) Expression {
	return InExpr{Field: field, Values: values}
}

func (in InExpr) String() string {
	vals := make([]string, len(in.Values))
	for i, v := range in.Values {
		vals[i] = FormatValue(v)
	}
	return FormatField(in.Field) + " IN [" + strings.Join(vals, ", ") + "]"
}

// ExistsExpr represents a field existence check expression.
type ExistsExpr struct {
	baseExpr
	Field string
}

// Exists creates a field existence check expression.
func Exists(field string) Expression {
	return ExistsExpr{Field: field}
}

func (e ExistsExpr) String() string { return FormatField(e.Field) + " EXISTS" }

// IsNullExpr matches documents whose field is present and null.
type IsNullExpr struct {
	baseExpr
	Field string
}

// IsNull creates a null check expression.
func IsNull(field string) Expression { return IsNullExpr{Field: field} }

func (e IsNullExpr) String() string { return FormatField(e.Field) + " IS NULL" }

// IsEmptyExpr matches documents whose field is an empty string, array or object.
type IsEmptyExpr struct {
	baseExpr
	Field string
}

// IsEmpty creates an emptiness check expression.
func IsEmpty(field string) Expression { return IsEmptyExpr{Field: field} }

func (e IsEmptyExpr) String() string { return FormatField(e.Field) + " IS EMPTY" }

func join(exprs []Expression, sep string) string {
	var parts []string
	var last string
	for _, e := range exprs {
		if s := e.String(); s != "" {
			parts = append(parts, group(e, s))
			last = s
		}
	}
	if len(parts) == 1 {
		return last
	}
	return strings.Join(parts, sep)
}

// group parenthesizes compound expressions.
func group(e Expression, rendered string) string {
	switch e.(type) {
	case AndExpr, OrExpr:
		return "(" + rendered + ")"
	default:
		return rendered
	}
}

// FormatField renders an attribute name, quoting it when it contains characters
// outside the bare-word alphabet.
func FormatField(field string) string {
	if field != "" && strings.IndexFunc(field, func(r rune) bool { return !isBareRune(r) }) < 0 {
		return field
	}
	return quote(field)
}

// FormatValue renders a literal of the filter syntax. Numbers and booleans are bare,
// everything else is a double-quoted string.
func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return quote(v)
	case bool:
		return strconv.FormatBool(v)
	case json.Number:
		return v.String()
	case int:
		return strconv.Itoa(v)
	case int8, int16, int32, int64:
		return fmt.Sprintf("%d", v)
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return quote(v.UTC().Format(time.RFC3339Nano))
	case fmt.Stringer:
		return quote(v.String())
	default:
		return quote(fmt.Sprint(v))
	}
}

func quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

func isBareRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_' || r == '.' || r == '-':
		return true
	default:
		return false
	}
}
