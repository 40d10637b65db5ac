package filter

import "testing"

func TestEvaluate_Comparisons(t *testing.T) {
	props := map[string]interface{}{
		"type":   "park",
		"height": 12.5,
	}

	tests := []struct {
		name string
		expr *Expression
		want bool
	}{
		{"eq match", &Expression{Op: OpEq, Key: "type", Value: "park"}, true},
		{"eq mismatch", &Expression{Op: OpEq, Key: "type", Value: "water"}, false},
		{"neq missing key is true", &Expression{Op: OpNeq, Key: "missing", Value: "x"}, true},
		{"eq missing key is false", &Expression{Op: OpEq, Key: "missing", Value: "x"}, false},
		{"has present", &Expression{Op: OpHas, Key: "type"}, true},
		{"has absent", &Expression{Op: OpHas, Key: "missing"}, false},
		{"not has absent", &Expression{Op: OpNotHas, Key: "missing"}, true},
		{"gt", &Expression{Op: OpGt, Key: "height", Value: 10.0}, true},
		{"lte missing", &Expression{Op: OpLte, Key: "missing", Value: 1.0}, false},
		{"in match", &Expression{Op: OpIn, Key: "type", Values: []interface{}{"water", "park"}}, true},
		{"not in match", &Expression{Op: OpNotIn, Key: "type", Values: []interface{}{"water"}}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.expr.Evaluate(props); got != tc.want {
				t.Fatalf("Evaluate() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEvaluate_Combinators_ShortCircuit(t *testing.T) {
	props := map[string]interface{}{"a": "1"}

	all := &Expression{Op: OpAll, Children: []*Expression{
		{Op: OpEq, Key: "a", Value: "1"},
		{Op: OpAny, Children: []*Expression{
			{Op: OpEq, Key: "a", Value: "2"},
			{Op: OpEq, Key: "a", Value: "1"},
		}},
	}}
	if !all.Evaluate(props) {
		t.Fatalf("expected all(x, any(y, z)) to be true")
	}

	none := &Expression{Op: OpNone, Children: []*Expression{
		{Op: OpEq, Key: "a", Value: "1"},
	}}
	if none.Evaluate(props) {
		t.Fatalf("expected none() to be false when a child matches")
	}
}

func TestParse_RoundTrip(t *testing.T) {
	src := []byte(`["all", ["==", "type", "park"], ["has", "name"]]`)
	expr, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if expr.Op != OpAll || len(expr.Children) != 2 {
		t.Fatalf("unexpected parse result: %+v", expr)
	}

	match := map[string]interface{}{"type": "park", "name": "Central"}
	if !expr.Evaluate(match) {
		t.Fatalf("expected match to satisfy filter")
	}

	noName := map[string]interface{}{"type": "park"}
	if expr.Evaluate(noName) {
		t.Fatalf("expected missing name to fail has check")
	}
}

func TestParse_Errors(t *testing.T) {
	cases := []string{
		`{}`,
		`["=="]`,
		`["bogus", "k", "v"]`,
		`["has", 5]`,
	}
	for _, c := range cases {
		if _, err := Parse([]byte(c)); err == nil {
			t.Fatalf("Parse(%q): expected error", c)
		}
	}
}
