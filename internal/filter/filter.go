// Package filter implements a small MapLibre-compatible filter expression
// language: comparison, set-membership, existence and boolean combinators
// evaluated against a feature's property map.
package filter

import (
	"encoding/json"
	"fmt"
)

// Op is the operator of a filter node.
type Op string

const (
	OpEq      Op = "=="
	OpNeq     Op = "!="
	OpLt      Op = "<"
	OpLte     Op = "<="
	OpGt      Op = ">"
	OpGte     Op = ">="
	OpIn      Op = "in"
	OpNotIn   Op = "!in"
	OpHas     Op = "has"
	OpNotHas  Op = "!has"
	OpAll     Op = "all"
	OpAny     Op = "any"
	OpNone    Op = "none"
)

// Expression is a node in the filter predicate tree. Leaves carry Key/Value
// (or Key/Values for in/!in); combinators carry Children.
type Expression struct {
	Op       Op
	Key      string
	Value    interface{}
	Values   []interface{}
	Children []*Expression
}

// Evaluate applies the expression to a feature's property map, short-
// circuiting all/any/none per Testable Property 8.
func (e *Expression) Evaluate(props map[string]interface{}) bool {
	if e == nil {
		return true
	}
	switch e.Op {
	case OpHas:
		_, ok := props[e.Key]
		return ok
	case OpNotHas:
		_, ok := props[e.Key]
		return !ok
	case OpEq:
		v, ok := props[e.Key]
		if !ok {
			return false
		}
		return compareEqual(v, e.Value)
	case OpNeq:
		v, ok := props[e.Key]
		if !ok {
			return true
		}
		return !compareEqual(v, e.Value)
	case OpLt, OpLte, OpGt, OpGte:
		v, ok := props[e.Key]
		if !ok {
			return false
		}
		return compareOrdered(e.Op, v, e.Value)
	case OpIn:
		v, ok := props[e.Key]
		if !ok {
			return false
		}
		return containsValue(e.Values, v)
	case OpNotIn:
		v, ok := props[e.Key]
		if !ok {
			return true
		}
		return !containsValue(e.Values, v)
	case OpAll:
		for _, c := range e.Children {
			if !c.Evaluate(props) {
				return false
			}
		}
		return true
	case OpAny:
		for _, c := range e.Children {
			if c.Evaluate(props) {
				return true
			}
		}
		return false
	case OpNone:
		for _, c := range e.Children {
			if c.Evaluate(props) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Parse decodes a JSON filter expression in MapLibre array form, e.g.
// ["all", ["==", "type", "park"], ["has", "name"]].
func Parse(data []byte) (*Expression, error) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("filter: invalid json: %w", err)
	}
	arr, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("filter: expression must be a JSON array")
	}
	return parseArray(arr)
}

func parseArray(arr []interface{}) (*Expression, error) {
	if len(arr) == 0 {
		return nil, fmt.Errorf("filter: empty expression")
	}
	opStr, ok := arr[0].(string)
	if !ok {
		return nil, fmt.Errorf("filter: operator must be a string")
	}
	op := Op(opStr)

	switch op {
	case OpHas, OpNotHas:
		if len(arr) != 2 {
			return nil, fmt.Errorf("filter: %s takes exactly 1 argument", op)
		}
		key, ok := arr[1].(string)
		if !ok {
			return nil, fmt.Errorf("filter: %s key must be a string", op)
		}
		return &Expression{Op: op, Key: key}, nil

	case OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte:
		if len(arr) != 3 {
			return nil, fmt.Errorf("filter: %s takes exactly 2 arguments", op)
		}
		key, ok := arr[1].(string)
		if !ok {
			return nil, fmt.Errorf("filter: %s key must be a string", op)
		}
		return &Expression{Op: op, Key: key, Value: arr[2]}, nil

	case OpIn, OpNotIn:
		if len(arr) < 2 {
			return nil, fmt.Errorf("filter: %s requires a key", op)
		}
		key, ok := arr[1].(string)
		if !ok {
			return nil, fmt.Errorf("filter: %s key must be a string", op)
		}
		return &Expression{Op: op, Key: key, Values: arr[2:]}, nil

	case OpAll, OpAny, OpNone:
		children := make([]*Expression, 0, len(arr)-1)
		for _, sub := range arr[1:] {
			subArr, ok := sub.([]interface{})
			if !ok {
				return nil, fmt.Errorf("filter: %s child must be an expression array", op)
			}
			child, err := parseArray(subArr)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		return &Expression{Op: op, Children: children}, nil

	default:
		return nil, fmt.Errorf("filter: unknown operator %q", opStr)
	}
}

func compareEqual(a, b interface{}) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func compareOrdered(op Op, a, b interface{}) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return false
	}
	switch op {
	case OpLt:
		return af < bf
	case OpLte:
		return af <= bf
	case OpGt:
		return af > bf
	case OpGte:
		return af >= bf
	default:
		return false
	}
}

func containsValue(haystack []interface{}, v interface{}) bool {
	for _, h := range haystack {
		if compareEqual(h, v) {
			return true
		}
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
