package routing

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// Operator compares a field value against a condition value.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpContains    Operator = "contains"
	OpRegex       Operator = "regex_match"
	OpExists      Operator = "exists"
	OpNotExists   Operator = "not_exists"
)

// Condition evaluates against the JSON snapshot of workflow state.
type Condition interface {
	// Evaluate returns whether the condition holds for the snapshot.
	Evaluate(doc []byte) (bool, error)
	// String renders the condition for logs and history records.
	String() string
}

// FieldCondition checks one dotted field path with an operator and value,
// e.g. {"workflow_context.current_phase", equals, "execution"}.
type FieldCondition struct {
	Path  string   `json:"path"`
	Op    Operator `json:"op"`
	Value any      `json:"value,omitempty"`
}

// Field is shorthand for constructing a FieldCondition.
func Field(path string, op Operator, value any) *FieldCondition {
	return &FieldCondition{Path: path, Op: op, Value: value}
}

func (c *FieldCondition) String() string {
	return fmt.Sprintf("%s %s %v", c.Path, c.Op, c.Value)
}

func (c *FieldCondition) Evaluate(doc []byte) (bool, error) {
	res := gjson.GetBytes(doc, c.Path)

	switch c.Op {
	case OpExists:
		return res.Exists(), nil
	case OpNotExists:
		return !res.Exists(), nil
	case OpEquals:
		return valueEquals(res, c.Value), nil
	case OpNotEquals:
		return !valueEquals(res, c.Value), nil
	case OpGreaterThan, OpLessThan:
		if !res.Exists() {
			return false, nil
		}
		want, ok := toFloat(c.Value)
		if !ok {
			return false, fmt.Errorf("condition %q: %s needs a numeric value, got %T", c.Path, c.Op, c.Value)
		}
		if c.Op == OpGreaterThan {
			return res.Float() > want, nil
		}
		return res.Float() < want, nil
	case OpContains:
		if !res.Exists() {
			return false, nil
		}
		if res.IsArray() {
			for _, item := range res.Array() {
				if valueEquals(item, c.Value) {
					return true, nil
				}
			}
			return false, nil
		}
		needle, ok := c.Value.(string)
		if !ok {
			return false, fmt.Errorf("condition %q: contains on a string needs a string value, got %T", c.Path, c.Value)
		}
		return strings.Contains(res.String(), needle), nil
	case OpRegex:
		pattern, ok := c.Value.(string)
		if !ok {
			return false, fmt.Errorf("condition %q: regex_match needs a string pattern, got %T", c.Path, c.Value)
		}
		matched, err := regexp.MatchString(pattern, res.String())
		if err != nil {
			return false, fmt.Errorf("condition %q: bad pattern: %w", c.Path, err)
		}
		return matched, nil
	default:
		return false, fmt.Errorf("condition %q: unknown operator %s", c.Path, c.Op)
	}
}

func valueEquals(res gjson.Result, want any) bool {
	if want == nil {
		return !res.Exists() || res.Type == gjson.Null
	}
	if f, ok := toFloat(want); ok {
		return res.Type == gjson.Number && res.Float() == f
	}
	switch v := want.(type) {
	case string:
		return res.Type == gjson.String && res.String() == v
	case bool:
		return res.IsBool() && res.Bool() == v
	default:
		return res.String() == fmt.Sprintf("%v", want)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// LogicOp combines child conditions.
type LogicOp string

const (
	LogicAnd LogicOp = "and"
	LogicOr  LogicOp = "or"
	LogicNot LogicOp = "not"
)

// CompositeCondition combines children with AND/OR/NOT. NOT takes exactly
// one child.
type CompositeCondition struct {
	Op       LogicOp
	Children []Condition
}

// And builds a condition true when every child is true.
func And(children ...Condition) *CompositeCondition {
	return &CompositeCondition{Op: LogicAnd, Children: children}
}

// Or builds a condition true when any child is true.
func Or(children ...Condition) *CompositeCondition {
	return &CompositeCondition{Op: LogicOr, Children: children}
}

// Not negates a single child condition.
func Not(child Condition) *CompositeCondition {
	return &CompositeCondition{Op: LogicNot, Children: []Condition{child}}
}

func (c *CompositeCondition) String() string {
	parts := make([]string, len(c.Children))
	for i, child := range c.Children {
		parts[i] = child.String()
	}
	return fmt.Sprintf("%s(%s)", c.Op, strings.Join(parts, ", "))
}

func (c *CompositeCondition) Evaluate(doc []byte) (bool, error) {
	switch c.Op {
	case LogicAnd:
		for _, child := range c.Children {
			ok, err := child.Evaluate(doc)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case LogicOr:
		for _, child := range c.Children {
			ok, err := child.Evaluate(doc)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case LogicNot:
		if len(c.Children) != 1 {
			return false, fmt.Errorf("not-condition needs exactly one child, got %d", len(c.Children))
		}
		ok, err := c.Children[0].Evaluate(doc)
		if err != nil {
			return false, err
		}
		return !ok, nil
	default:
		return false, fmt.Errorf("unknown logic operator: %s", c.Op)
	}
}
