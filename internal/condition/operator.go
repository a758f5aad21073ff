package condition

import (
	"reflect"
	"strings"
)

// Operator is a canonical SQL comparison operator.
type Operator string

const (
	OpEq        Operator = "="
	OpNe        Operator = "!="
	OpLt        Operator = "<"
	OpLte       Operator = "<="
	OpGt        Operator = ">"
	OpGte       Operator = ">="
	OpLike      Operator = "LIKE"
	OpRegexp    Operator = "REGEXP"
	OpIn        Operator = "IN"
	OpNotIn     Operator = "NOT IN"
	OpBetween   Operator = "BETWEEN"
	OpMatch     Operator = "MATCH"
	OpIsNull    Operator = "IS NULL"
	OpIsNotNull Operator = "IS NOT NULL"
)

// spellings maps every accepted token (lower case) to its operator.
// Equality and inequality are refined by value shape in Resolve.
var spellings = map[string]Operator{
	"":          OpEq,
	"=":         OpEq,
	":eq":       OpEq,
	":is":       OpEq,
	"<>":        OpNe,
	"!=":        OpNe,
	":ne":       OpNe,
	":neq":      OpNe,
	":not":      OpNe,
	":isnot":    OpNe,
	"<":         OpLt,
	":lt":       OpLt,
	"<=":        OpLte,
	":lte":      OpLte,
	">":         OpGt,
	":gt":       OpGt,
	">=":        OpGte,
	":gte":      OpGte,
	"like":      OpLike,
	":like":     OpLike,
	"~=":        OpRegexp,
	"=~":        OpRegexp,
	":regex":    OpRegexp,
	"in":        OpIn,
	":in":       OpIn,
	"not in":    OpNotIn,
	":notin":    OpNotIn,
	"between":   OpBetween,
	":between":  OpBetween,
	"match":     OpMatch,
	":fulltext": OpMatch,
}

// Resolve maps an operator token and the value it applies to onto a
// canonical operator. Equality against a list becomes IN and against null
// becomes IS NULL; inequality becomes NOT IN and IS NOT NULL respectively.
func Resolve(token string, value any) (Operator, error) {
	op, ok := spellings[normalizeToken(token)]
	if !ok {
		return "", &ValidationError{Operator: token, Err: ErrUnknownOperator}
	}

	switch {
	case isNull(value):
		switch op {
		case OpEq:
			return OpIsNull, nil
		case OpNe:
			return OpIsNotNull, nil
		}
		return "", invalid("", string(op), "null value requires an equality operator")
	case isList(value):
		switch op {
		case OpEq, OpIn:
			return OpIn, nil
		case OpNe, OpNotIn:
			return OpNotIn, nil
		case OpBetween:
			return OpBetween, nil
		}
		return "", invalid("", string(op), "list value not allowed")
	}
	return op, nil
}

func normalizeToken(token string) string {
	return strings.Join(strings.Fields(strings.ToLower(token)), " ")
}

func isNull(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// isList reports slices and arrays other than byte strings.
func isList(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv.Type().Elem().Kind() != reflect.Uint8
	}
	return false
}

// asList flattens a list value; a scalar becomes a one-element list.
func asList(v any) []any {
	if !isList(v) {
		return []any{v}
	}
	if l, ok := v.([]any); ok {
		return l
	}
	rv := reflect.ValueOf(v)
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}
