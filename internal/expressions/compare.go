// Package expressions evaluates the engine's two expression surfaces:
// the fail-closed binary comparison grammar used by condition nodes, and
// jq queries used by export nodes.
package expressions

import (
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/loomworks/loom/internal/jsonpath"
)

// comparison operators in longest-match-first order, so "==" is never
// split as "=" + "=" and ">=" is never matched as ">".
var operators = []string{">=", "<=", "==", "!=", ">", "<"}

// Evaluate parses and evaluates a "<left> <op> <right>" comparison against
// the execution context. Operands beginning with "$" are path lookups;
// everything else is a literal. An expression that fails to match the
// grammar evaluates to false; malformed conditions route to the default
// branch, they never fail a node.
func Evaluate(ctx map[string]any, expression string) bool {
	left, op, right, ok := split(expression)
	if !ok {
		return false
	}

	lv := resolveOperand(ctx, left)
	rv := resolveOperand(ctx, right)

	switch op {
	case "==":
		return strictEqual(lv, rv)
	case "!=":
		return !strictEqual(lv, rv)
	}

	// Ordering operators numerically coerce both sides. Non-numeric
	// operands become NaN and every NaN comparison is false.
	ln, rn := toNumber(lv), toNumber(rv)
	if math.IsNaN(ln) || math.IsNaN(rn) {
		return false
	}
	switch op {
	case ">":
		return ln > rn
	case "<":
		return ln < rn
	case ">=":
		return ln >= rn
	case "<=":
		return ln <= rn
	}
	return false
}

// split finds the first operator occurrence and returns the trimmed sides.
func split(expression string) (left, op, right string, ok bool) {
	for i := 0; i < len(expression); i++ {
		for _, candidate := range operators {
			if strings.HasPrefix(expression[i:], candidate) {
				left = strings.TrimSpace(expression[:i])
				right = strings.TrimSpace(expression[i+len(candidate):])
				if left == "" || right == "" {
					return "", "", "", false
				}
				return left, candidate, right, true
			}
		}
	}
	return "", "", "", false
}

// resolveOperand resolves a path operand or parses a literal.
// Literal forms: quoted string, true/false, null, number, raw string.
func resolveOperand(ctx map[string]any, operand string) any {
	if strings.HasPrefix(operand, "$") {
		v, ok := jsonpath.Resolve(ctx, operand)
		if !ok {
			return nil
		}
		return v
	}

	if len(operand) >= 2 {
		first, last := operand[0], operand[len(operand)-1]
		if (first == '\'' && last == '\'') || (first == '"' && last == '"') {
			return operand[1 : len(operand)-1]
		}
	}

	switch operand {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}

	if n, err := strconv.ParseFloat(operand, 64); err == nil {
		return n
	}
	return operand
}

// strictEqual applies strict value equality: numeric values compare by
// value across numeric types, everything else requires matching types.
func strictEqual(a, b any) bool {
	an, aNum := numericValue(a)
	bn, bNum := numericValue(b)
	if aNum || bNum {
		return aNum && bNum && an == bn
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.DeepEqual(a, b)
}

// numericValue unwraps Go numeric types without coercing strings or bools.
func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// toNumber applies Number()-style coercion for ordering comparisons.
func toNumber(v any) float64 {
	if n, ok := numericValue(v); ok {
		return n
	}
	switch t := v.(type) {
	case bool:
		if t {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return n
	default:
		return math.NaN()
	}
}
