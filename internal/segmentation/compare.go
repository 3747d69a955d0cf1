package segmentation

import (
	"encoding/json"
	"reflect"
	"strings"
)

// Compare applies op to left and right. Numbers compare numerically whatever
// their Go type; strings compare lexically. Mismatched or non-comparable
// operands make ordering operators false, and contains is false unless both
// sides are text.
func Compare(left any, op Operator, right any) bool {
	left, right = normalizeValue(left), normalizeValue(right)
	switch op {
	case OpEq:
		return equal(left, right)
	case OpNe:
		return !equal(left, right)
	case OpGt, OpGte, OpLt, OpLte:
		c, ok := order(left, right)
		if !ok {
			return false
		}
		switch op {
		case OpGt:
			return c > 0
		case OpGte:
			return c >= 0
		case OpLt:
			return c < 0
		default:
			return c <= 0
		}
	case OpIn:
		set, ok := right.([]any)
		if !ok {
			return false
		}
		for _, v := range set {
			if equal(left, v) {
				return true
			}
		}
		return false
	case OpContains:
		l, lok := left.(string)
		r, rok := right.(string)
		return lok && rok && strings.Contains(l, r)
	}
	return false
}

func equal(a, b any) bool {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	}
	return false
}

// order returns -1, 0 or 1, and false when a and b cannot be ordered.
func order(a, b any) (int, bool) {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	}
	return 0, false
}

// normalizeValue maps every numeric type to float64 and every slice to []any,
// so decoded JSON, YAML and Go literals compare alike.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case nil, string, bool, float64:
		return v
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalizeValue(e)
		}
		return out
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32:
		return rv.Float()
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalizeValue(rv.Index(i).Interface())
		}
		return out
	}
	return v
}

func isNumber(v any) bool {
	_, ok := v.(float64)
	return ok
}
