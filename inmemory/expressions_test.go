package inmemory

import (
	"encoding/json"
	"testing"

	"github.com/letmevibethatforyou/searchodm"
	"github.com/letmevibethatforyou/searchodm/document"
)

func TestExpressionEvaluation(t *testing.T) {
	doc, err := document.Parse([]byte(`{
		"title": "Go Programming",
		"year": 2023,
		"rating": 4.5,
		"active": true,
		"tags": ["golang", "tutorial"],
		"nested": {"author": "John Doe"},
		"subtitle": null,
		"notes": "",
		"editions": []
	}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	tests := map[string]struct {
		expr     searchodm.Expression
		expected bool
	}{
		"eq_string":            {searchodm.Eq("title", "Go Programming"), true},
		"eq_case_insensitive":  {searchodm.Eq("title", "go programming"), true},
		"eq_number":            {searchodm.Eq("year", 2023), true},
		"eq_json_number":       {searchodm.Eq("rating", json.Number("4.5")), true},
		"eq_bool":              {searchodm.Eq("active", true), true},
		"eq_array_element":     {searchodm.Eq("tags", "golang"), true},
		"eq_missing":           {searchodm.Eq("missing", "x"), false},
		"eq_nested":            {searchodm.Eq("nested.author", "John Doe"), true},
		"ne":                   {searchodm.Ne("year", 2020), true},
		"ne_missing":           {searchodm.Ne("missing", "x"), true},
		"ne_array_element":     {searchodm.Ne("tags", "golang"), false},
		"gt":                   {searchodm.Gt("year", 2020), true},
		"gt_false":             {searchodm.Gt("year", 2023), false},
		"gte":                  {searchodm.Gte("year", 2023), true},
		"lt":                   {searchodm.Lt("rating", 5), true},
		"lte":                  {searchodm.Lte("rating", 4.5), true},
		"gt_string_vs_number":  {searchodm.Gt("title", 1), false},
		"gt_missing":           {searchodm.Gt("missing", 1), false},
		"range":                {searchodm.Range("year", 2020, 2025), true},
		"range_outside":        {searchodm.Range("year", 2024, 2025), false},
		"range_open_max":       {searchodm.Range("year", 2020, nil), true},
		"range_open_min":       {searchodm.Range("year", nil, 2020), false},
		"in":                   {searchodm.In("year", 2020, 2023), true},
		"in_none":              {searchodm.In("year", 2020, 2021), false},
		"in_array":             {searchodm.In("tags", "rust", "tutorial"), true},
		"exists":               {searchodm.Exists("title"), true},
		"exists_null":          {searchodm.Exists("subtitle"), true},
		"exists_missing":       {searchodm.Exists("missing"), false},
		"is_null":              {searchodm.IsNull("subtitle"), true},
		"is_null_set":          {searchodm.IsNull("title"), false},
		"is_null_missing":      {searchodm.IsNull("missing"), false},
		"is_empty_string":      {searchodm.IsEmpty("notes"), true},
		"is_empty_array":       {searchodm.IsEmpty("editions"), true},
		"is_empty_filled":      {searchodm.IsEmpty("tags"), false},
		"and":                  {searchodm.And(searchodm.Eq("year", 2023), searchodm.Exists("title")), true},
		"and_false":            {searchodm.And(searchodm.Eq("year", 2023), searchodm.Exists("missing")), false},
		"or":                   {searchodm.Or(searchodm.Eq("year", 1999), searchodm.Exists("title")), true},
		"or_false":             {searchodm.Or(searchodm.Eq("year", 1999), searchodm.Exists("missing")), false},
		"not":                  {searchodm.Not(searchodm.Eq("year", 1999)), true},
		"nested_logic":         {searchodm.And(searchodm.Or(searchodm.Eq("year", 1999), searchodm.Gte("rating", 4)), searchodm.Not(searchodm.IsNull("title"))), true},
		"eq_null_field_nomatch": {searchodm.Eq("subtitle", "x"), false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if got := evaluateExpression(doc, tc.expr); got != tc.expected {
				t.Errorf("Expected %v for %s, got %v", tc.expected, tc.expr, got)
			}
		})
	}
}

func TestCompareValues(t *testing.T) {
	tests := map[string]struct {
		a, b     any
		expected int
	}{
		"both_nil":       {nil, nil, 0},
		"nil_first":      {nil, 1, -1},
		"nil_second":     {1, nil, 1},
		"numbers":        {json.Number("2"), 10, -1},
		"equal_numbers":  {2.0, json.Number("2"), 0},
		"strings":        {"b", "a", 1},
		"equal_strings":  {"a", "a", 0},
		"mixed_as_text":  {"10", 9, -1},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if got := compareValues(tc.a, tc.b); got != tc.expected {
				t.Errorf("Expected %d, got %d", tc.expected, got)
			}
		})
	}
}

func TestToFloat64(t *testing.T) {
	tests := map[string]struct {
		input    any
		expected float64
		ok       bool
	}{
		"int":            {42, 42, true},
		"int64":          {int64(-3), -3, true},
		"uint8":          {uint8(7), 7, true},
		"float32":        {float32(1.5), 1.5, true},
		"json_number":    {json.Number("2.25"), 2.25, true},
		"bad_number":     {json.Number("x"), 0, false},
		"string":         {"42", 0, false},
		"bool":           {true, 0, false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, ok := toFloat64(tc.input)
			if ok != tc.ok || got != tc.expected {
				t.Errorf("Expected (%v, %v), got (%v, %v)", tc.expected, tc.ok, got, ok)
			}
		})
	}
}
