package engine

import (
	"encoding/json"
	"reflect"

	"github.com/lberrio/flowpilot/pkg/schema"
)

// Condition operators supported by the built-in "if" action.
const (
	OpIsNotEmpty  = "isNotEmpty"
	OpIsEmpty     = "isEmpty"
	OpEquals      = "equals"
	OpGreaterThan = "greaterThan"
	OpLessThan    = "lessThan"
)

// KnownOperator reports whether the operator belongs to the closed vocabulary.
func KnownOperator(op string) bool {
	switch op {
	case OpIsNotEmpty, OpIsEmpty, OpEquals, OpGreaterThan, OpLessThan:
		return true
	}
	return false
}

// EvaluateCondition computes the boolean outcome of an "if" predicate over an
// already-resolved variable. Emptiness treats nil, "" and empty lists as
// empty; objects, numbers and booleans always count as non-empty.
// greaterThan/lessThan require both operands numeric and are false otherwise.
func EvaluateCondition(variable any, operator string, value any) (bool, error) {
	switch operator {
	case OpIsNotEmpty:
		return !isEmptyValue(variable), nil
	case OpIsEmpty:
		return isEmptyValue(variable), nil
	case OpEquals:
		return valuesEqual(variable, value), nil
	case OpGreaterThan:
		a, aok := toNumber(variable)
		b, bok := toNumber(value)
		return aok && bok && a > b, nil
	case OpLessThan:
		a, aok := toNumber(variable)
		b, bok := toNumber(value)
		return aok && bok && a < b, nil
	default:
		return false, schema.NewErrorf(schema.ErrCodeValidation,
			"unknown condition operator %q", operator)
	}
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			return rv.Len() == 0
		}
		return false
	}
}

// valuesEqual is strict value equality, with one concession: numbers compare
// by value across Go numeric types, since JSON decoding and handler results
// mix int and float64 for the same logical number.
func valuesEqual(a, b any) bool {
	if af, aok := toNumber(a); aok {
		if bf, bok := toNumber(b); bok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
