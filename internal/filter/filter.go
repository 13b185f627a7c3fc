// Package filter evaluates typed predicate trees against lead records.
package filter

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadflow/internal/model"
)

// Op is a comparison operator.
type Op string

// Supported operators.
const (
	OpEq       Op = "eq"
	OpNe       Op = "ne"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpIn       Op = "in"
	OpContains Op = "contains"
	OpExists   Op = "exists"
)

// Expr is a predicate over a record. A leaf compares Field with Value
// using Op. All and Any combine child expressions. When a leaf and
// children are both set, all of them must hold. The zero Expr matches
// every record.
type Expr struct {
	Field string `yaml:"field,omitempty" json:"field,omitempty"`
	Op    Op     `yaml:"op,omitempty" json:"op,omitempty"`
	Value any    `yaml:"value,omitempty" json:"value,omitempty"`
	All   []Expr `yaml:"all,omitempty" json:"all,omitempty"`
	Any   []Expr `yaml:"any,omitempty" json:"any,omitempty"`
}

// Leaf helpers for building expressions in code.

// Eq matches field == v.
func Eq(field string, v any) Expr { return Expr{Field: field, Op: OpEq, Value: v} }

// Gte matches field >= v.
func Gte(field string, v any) Expr { return Expr{Field: field, Op: OpGte, Value: v} }

// In matches field against any of vs.
func In(field string, vs ...any) Expr { return Expr{Field: field, Op: OpIn, Value: vs} }

// And matches when every child matches.
func And(children ...Expr) Expr { return Expr{All: children} }

// IsZero reports whether e has no conditions.
func (e Expr) IsZero() bool {
	return e.Field == "" && len(e.All) == 0 && len(e.Any) == 0
}

// Validate checks operators and operand shapes.
func (e Expr) Validate() error {
	if e.Field != "" {
		switch e.Op {
		case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpContains:
			if e.Value == nil {
				return eris.Errorf("filter: %s %s needs a value", e.Field, e.Op)
			}
		case OpIn:
			if _, ok := e.Value.([]any); !ok {
				return eris.Errorf("filter: %s in needs a list value", e.Field)
			}
		case OpExists:
		case "":
			return eris.Errorf("filter: %s has no op", e.Field)
		default:
			return eris.Errorf("filter: unknown op %q", e.Op)
		}
	} else if e.Op != "" {
		return eris.Errorf("filter: op %s has no field", e.Op)
	}
	for _, c := range e.All {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	for _, c := range e.Any {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Match evaluates e against r.
func (e Expr) Match(r model.Record) bool {
	if e.Field != "" && !e.matchLeaf(r) {
		return false
	}
	for _, c := range e.All {
		if !c.Match(r) {
			return false
		}
	}
	if len(e.Any) > 0 {
		for _, c := range e.Any {
			if c.Match(r) {
				return true
			}
		}
		return false
	}
	return true
}

// Apply returns the records of batch matching e, in order.
func Apply(batch []model.Record, e Expr) []model.Record {
	if e.IsZero() {
		return batch
	}
	out := make([]model.Record, 0, len(batch))
	for _, r := range batch {
		if e.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

func (e Expr) matchLeaf(r model.Record) bool {
	got, ok := r.Path(e.Field)
	if e.Op == OpExists {
		want := true
		if b, isBool := e.Value.(bool); isBool {
			want = b
		}
		present := ok && !(isString(got) && strings.TrimSpace(got.(string)) == "")
		return present == want
	}
	switch e.Op {
	case OpNe:
		return !ok || !equal(got, e.Value)
	case OpEq:
		return ok && equal(got, e.Value)
	case OpIn:
		if !ok {
			return false
		}
		for _, v := range e.Value.([]any) {
			if equal(got, v) {
				return true
			}
		}
		return false
	case OpContains:
		return ok && contains(got, e.Value)
	}
	if !ok {
		return false
	}
	c, comparable := compare(got, e.Value)
	if !comparable {
		return false
	}
	switch e.Op {
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	case OpLt:
		return c < 0
	case OpLte:
		return c <= 0
	}
	return false
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

func equal(a, b any) bool {
	if fa, ok := model.ToFloat(a); ok {
		if fb, ok := model.ToFloat(b); ok {
			return fa == fb
		}
	}
	if ba, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ba == bb
	}
	return strings.EqualFold(model.ToString(a), model.ToString(b))
}

// compare orders a against b: numerically when both are numbers, by tier
// rank when both are tier labels, else not at all.
func compare(a, b any) (int, bool) {
	if fa, ok := model.ToFloat(a); ok {
		if fb, ok := model.ToFloat(b); ok {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			}
			return 0, true
		}
	}
	ta := model.ParseTier(model.ToString(a))
	tb := model.ParseTier(model.ToString(b))
	if ta != "" && tb != "" {
		return ta.Rank() - tb.Rank(), true
	}
	return 0, false
}

func contains(haystack, needle any) bool {
	n := model.ToString(needle)
	switch h := haystack.(type) {
	case []any:
		for _, item := range h {
			if equal(item, needle) {
				return true
			}
		}
		return false
	case []string:
		for _, item := range h {
			if strings.EqualFold(item, n) {
				return true
			}
		}
		return false
	}
	return strings.Contains(strings.ToLower(model.ToString(haystack)), strings.ToLower(n))
}
