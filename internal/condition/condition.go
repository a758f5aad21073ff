// Package condition turns groups of column conditions into a parenthesized
// SQL boolean expression and a map of named bind parameters.
//
// A condition key is a column optionally followed by an operator token:
//
//	condition.Map{
//	    "MAX(status) >": 3,           // MAX(status) > :MAX_status_0
//	    "deleted_at":    nil,         // "deleted_at" IS NULL
//	    "id":            []int{1, 2}, // "id" IN (:id2_0, :id2_1)
//	    "status <":      5,           // "status" < :status3
//	}
//
// Map keys compile in sorted order and every leaf consumes one column index,
// bound or not.
package condition

import (
	"sort"
)

// Combinator joins boolean expressions.
type Combinator string

const (
	And Combinator = "AND"
	Or  Combinator = "OR"
)

func (c Combinator) sql() string {
	if c == Or {
		return string(Or)
	}
	return string(And)
}

// Condition is a Leaf or a nested Group.
type Condition interface {
	isCondition()
}

// Leaf is a single "column [operator]" => value condition.
type Leaf struct {
	Column string
	Value  any
}

func (Leaf) isCondition() {}

// C builds a Leaf.
func C(column string, value any) Leaf {
	return Leaf{Column: column, Value: value}
}

// Group is an ordered list of conditions. Type combines the members with
// each other; SetType combines the group with the sibling before it.
type Group struct {
	Conditions []Condition
	Type       Combinator
	SetType    Combinator
}

func (Group) isCondition() {}

// ToGroup returns g.
func (g Group) ToGroup() Group { return g }

// Empty reports whether the group holds no leaf at any depth.
func (g Group) Empty() bool {
	for _, c := range g.Conditions {
		switch v := c.(type) {
		case Leaf:
			return false
		case Group:
			if !v.Empty() {
				return false
			}
		}
	}
	return true
}

// Clone returns a deep copy so that appending to the result never aliases g.
func (g Group) Clone() Group {
	out := Group{Type: g.Type, SetType: g.SetType}
	if g.Conditions != nil {
		out.Conditions = make([]Condition, len(g.Conditions))
		for i, c := range g.Conditions {
			if sub, ok := c.(Group); ok {
				c = sub.Clone()
			}
			out.Conditions[i] = c
		}
	}
	return out
}

// Set is anything that can be compiled as one condition group.
type Set interface {
	ToGroup() Group
}

// Map is the common AND-ed set of conditions. Keys are compiled in sorted
// order so the generated SQL and bind names are deterministic.
type Map map[string]any

// ToGroup converts m to an AND group.
func (m Map) ToGroup() Group {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	g := Group{Type: And, SetType: And, Conditions: make([]Condition, len(keys))}
	for i, k := range keys {
		g.Conditions[i] = Leaf{Column: k, Value: m[k]}
	}
	return g
}

// List is an ordered AND-ed set of conditions.
type List []Leaf

// ToGroup converts l to an AND group preserving order.
func (l List) ToGroup() Group {
	g := Group{Type: And, SetType: And, Conditions: make([]Condition, len(l))}
	for i, c := range l {
		g.Conditions[i] = c
	}
	return g
}

// All groups conditions with AND.
func All(conds ...Condition) Group {
	return Group{Conditions: conds, Type: And, SetType: And}
}

// Any groups conditions with OR.
func Any(conds ...Condition) Group {
	return Group{Conditions: conds, Type: Or, SetType: And}
}

// OrGroup returns g with SetType OR, so it is OR-ed onto its preceding
// sibling when nested.
func OrGroup(s Set) Group {
	g := s.ToGroup()
	g.SetType = Or
	return g
}
