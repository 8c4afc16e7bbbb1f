package inmemory

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/letmevibethatforyou/searchodm"
	"github.com/letmevibethatforyou/searchodm/document"
)

// evaluateExpression evaluates a single expression against a document.
// Comparisons against an array field match when any element matches.
func evaluateExpression(doc *document.Document, expr searchodm.Expression) bool {
	switch e := expr.(type) {
	case searchodm.AndExpr:
		for _, inner := range e.Exprs {
			if !evaluateExpression(doc, inner) {
				return false
			}
		}
		return true
	case searchodm.OrExpr:
		for _, inner := range e.Exprs {
			if evaluateExpression(doc, inner) {
				return true
			}
		}
		return len(e.Exprs) == 0
	case searchodm.NotExpr:
		return !evaluateExpression(doc, e.Inner)
	case searchodm.CompareExpr:
		return evaluateCompare(doc, e)
	case searchodm.RangeExpr:
		return anyValue(doc, e.Field, func(v any) bool {
			if e.Min != nil && !ordered(v, e.Min, func(c int) bool { return c >= 0 }) {
				return false
			}
			if e.Max != nil && !ordered(v, e.Max, func(c int) bool { return c <= 0 }) {
				return false
			}
			return true
		})
	case searchodm.InExpr:
		return anyValue(doc, e.Field, func(v any) bool {
			return slices.ContainsFunc(e.Values, func(want any) bool { return compareEqual(v, want) })
		})
	case searchodm.ExistsExpr:
		_, exists := lookup(doc, e.Field)
		return exists
	case searchodm.IsNullExpr:
		v, exists := lookup(doc, e.Field)
		return exists && v == nil
	case searchodm.IsEmptyExpr:
		v, exists := lookup(doc, e.Field)
		if !exists {
			return false
		}
		switch val := v.(type) {
		case string:
			return val == ""
		case []any:
			return len(val) == 0
		case *document.Document:
			return val.Len() == 0
		default:
			return false
		}
	default:
		// Unknown expression type, return true to not filter out
		return true
	}
}

func evaluateCompare(doc *document.Document, e searchodm.CompareExpr) bool {
	switch e.Op {
	case searchodm.OpEq:
		return anyValue(doc, e.Field, func(v any) bool { return compareEqual(v, e.Value) })
	case searchodm.OpNe:
		return !anyValue(doc, e.Field, func(v any) bool { return compareEqual(v, e.Value) })
	case searchodm.OpGt:
		return anyValue(doc, e.Field, func(v any) bool { return ordered(v, e.Value, func(c int) bool { return c > 0 }) })
	case searchodm.OpGte:
		return anyValue(doc, e.Field, func(v any) bool { return ordered(v, e.Value, func(c int) bool { return c >= 0 }) })
	case searchodm.OpLt:
		return anyValue(doc, e.Field, func(v any) bool { return ordered(v, e.Value, func(c int) bool { return c < 0 }) })
	case searchodm.OpLte:
		return anyValue(doc, e.Field, func(v any) bool { return ordered(v, e.Value, func(c int) bool { return c <= 0 }) })
	default:
		return false
	}
}

// anyValue applies pred to the field's value, or to each element of an array value.
// Missing and null fields never match.
func anyValue(doc *document.Document, field string, pred func(any) bool) bool {
	v, ok := lookup(doc, field)
	if !ok || v == nil {
		return false
	}
	if arr, ok := v.([]any); ok {
		return slices.ContainsFunc(arr, func(item any) bool { return item != nil && pred(item) })
	}
	return pred(v)
}

// ordered compares only values of the same kind: two numbers or two strings.
func ordered(v, want any, accept func(int) bool) bool {
	_, vNum := toFloat64(v)
	_, wNum := toFloat64(want)
	if vNum != wNum {
		return false
	}
	if !vNum {
		if _, ok := v.(string); !ok {
			return false
		}
	}
	return accept(compareValues(v, want))
}

// lookup resolves a field, following dots into nested documents.
func lookup(doc *document.Document, field string) (any, bool) {
	if v, ok := doc.Get(field); ok {
		return v, true
	}
	head, rest, found := strings.Cut(field, ".")
	if !found {
		return nil, false
	}
	v, ok := doc.Get(head)
	if !ok {
		return nil, false
	}
	nested, ok := v.(*document.Document)
	if !ok {
		return nil, false
	}
	return lookup(nested, rest)
}

// compareEqual checks if two values are equal. Numbers compare numerically,
// strings case-insensitively.
func compareEqual(v1, v2 any) bool {
	// Handle nil cases
	if v1 == nil || v2 == nil {
		return v1 == v2
	}

	// Try numeric comparison
	if f1, ok1 := toFloat64(v1); ok1 {
		if f2, ok2 := toFloat64(v2); ok2 {
			return f1 == f2
		}
	}

	// Fall back to string comparison
	return strings.EqualFold(formatScalar(v1), formatScalar(v2))
}

// compareValues compares two values for sorting. Nulls sort first.
func compareValues(v1, v2 any) int {
	// Handle nil values
	if v1 == nil && v2 == nil {
		return 0
	}
	if v1 == nil {
		return -1
	}
	if v2 == nil {
		return 1
	}

	// Try to compare as numbers
	if f1, ok1 := toFloat64(v1); ok1 {
		if f2, ok2 := toFloat64(v2); ok2 {
			if f1 < f2 {
				return -1
			} else if f1 > f2 {
				return 1
			}
			return 0
		}
	}

	// Compare as strings
	return strings.Compare(formatScalar(v1), formatScalar(v2))
}

// toFloat64 attempts to convert a value to float64.
func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}

// formatScalar renders a scalar the way the engine reports facet values.
func formatScalar(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
