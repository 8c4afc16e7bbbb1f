package algolia

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/letmevibethatforyou/searchodm"
)

// convertFilter renders a request filter (string, OR list, AND-of-OR groups) in
// Algolia's filter syntax.
func convertFilter(filter any) (string, error) {
	expr, err := searchodm.ParseFilterValue(filter)
	if err != nil || expr == nil {
		return "", err
	}
	return convertExpressionToFilter(expr)
}

// convertExpressionToFilter converts an expression to an Algolia filter string.
// Constructs Algolia cannot evaluate return ErrNotImplemented.
func convertExpressionToFilter(expr searchodm.Expression) (string, error) {
	switch e := expr.(type) {
	case searchodm.AndExpr:
		return convertJunction(e.Exprs, " AND ")
	case searchodm.OrExpr:
		return convertJunction(e.Exprs, " OR ")
	case searchodm.NotExpr:
		return convertNotExpression(e)
	case searchodm.CompareExpr:
		return convertCompareExpression(e)
	case searchodm.RangeExpr:
		return convertRangeExpression(e)
	case searchodm.InExpr:
		return convertInExpression(e)
	default:
		return "", unsupported(expr)
	}
}

func convertJunction(exprs []searchodm.Expression, sep string) (string, error) {
	filters := make([]string, 0, len(exprs))
	for _, e := range exprs {
		filter, err := convertExpressionToFilter(e)
		if err != nil {
			return "", err
		}
		if filter == "" {
			continue
		}
		if _, compound := e.(searchodm.AndExpr); compound || isOr(e) {
			filter = "(" + filter + ")"
		}
		filters = append(filters, filter)
	}
	return strings.Join(filters, sep), nil
}

func isOr(e searchodm.Expression) bool {
	_, ok := e.(searchodm.OrExpr)
	return ok
}

// convertNotExpression handles negation. Algolia only negates single filters, so
// NOT over a set becomes a conjunction of negated facets.
func convertNotExpression(expr searchodm.NotExpr) (string, error) {
	switch inner := expr.Inner.(type) {
	case searchodm.CompareExpr:
		switch inner.Op {
		case searchodm.OpEq:
			return convertCompareExpression(searchodm.CompareExpr{Field: inner.Field, Op: searchodm.OpNe, Value: inner.Value})
		case searchodm.OpNe:
			return convertCompareExpression(searchodm.CompareExpr{Field: inner.Field, Op: searchodm.OpEq, Value: inner.Value})
		}
	case searchodm.InExpr:
		parts := make([]string, 0, len(inner.Values))
		for _, v := range inner.Values {
			part, err := convertCompareExpression(searchodm.CompareExpr{Field: inner.Field, Op: searchodm.OpNe, Value: v})
			if err != nil {
				return "", err
			}
			parts = append(parts, part)
		}
		return strings.Join(parts, " AND "), nil
	}
	return "", unsupported(expr)
}

func convertCompareExpression(expr searchodm.CompareExpr) (string, error) {
	field := escapeField(expr.Field)
	if num, ok := numeric(expr.Value); ok {
		return fmt.Sprintf("%s %s %s", field, expr.Op, num), nil
	}

	switch expr.Op {
	case searchodm.OpEq:
		return fmt.Sprintf("%s:%s", field, escapeValue(expr.Value)), nil
	case searchodm.OpNe:
		return fmt.Sprintf("NOT %s:%s", field, escapeValue(expr.Value)), nil
	default:
		return "", unsupported(expr)
	}
}

func convertRangeExpression(expr searchodm.RangeExpr) (string, error) {
	field := escapeField(expr.Field)
	lo, loOK := numeric(expr.Min)
	hi, hiOK := numeric(expr.Max)

	switch {
	case loOK && hiOK:
		return fmt.Sprintf("%s:%s TO %s", field, lo, hi), nil
	case loOK && expr.Max == nil:
		return fmt.Sprintf("%s >= %s", field, lo), nil
	case hiOK && expr.Min == nil:
		return fmt.Sprintf("%s <= %s", field, hi), nil
	default:
		return "", unsupported(expr)
	}
}

func convertInExpression(expr searchodm.InExpr) (string, error) {
	parts := make([]string, 0, len(expr.Values))
	for _, v := range expr.Values {
		part, err := convertCompareExpression(searchodm.CompareExpr{Field: expr.Field, Op: searchodm.OpEq, Value: v})
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	if len(parts) < 2 {
		return strings.Join(parts, ""), nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", nil
}

func unsupported(expr searchodm.Expression) error {
	return errors.WithSecondaryError(
		searchodm.ErrNotImplemented,
		errors.Newf("filter %q has no Algolia equivalent", expr.String()),
	)
}

// escapeField escapes field names for Algolia filters
func escapeField(field string) string {
	if strings.ContainsAny(field, " :-()\"") {
		return strconv.Quote(field)
	}
	return field
}

// escapeValue quotes facet values for Algolia filters
func escapeValue(value any) string {
	switch v := value.(type) {
	case nil:
		return `"null"`
	case string:
		return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	case bool:
		return strconv.FormatBool(v)
	default:
		return `"` + strings.ReplaceAll(fmt.Sprint(v), `"`, `\"`) + `"`
	}
}

// numeric renders numbers in the form Algolia's numeric filters accept.
func numeric(value any) (string, bool) {
	switch v := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case json.Number:
		if _, err := v.Float64(); err != nil {
			return "", false
		}
		return v.String(), true
	default:
		return "", false
	}
}
