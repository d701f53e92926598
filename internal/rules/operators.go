// internal/rules/operators.go
package rules

import (
	"strings"

	"github.com/solatis/dispatchkeeper/internal/types"
)

/*
 * Operator comparison logic.
 *
 * Every operator tests one dimension value against a list of condition
 * values; the positive operators hold when any value matches:
 *   - eq: exact equality
 *   - include: substring containment
 *   - reg: regular expression search (unanchored)
 * The negated operators (neq, exclude, nreg) hold when no value matches.
 *
 * Empty-value sentinel: a condition whose only value is "" compares the
 * field against emptiness. eq/include/reg hold for an empty field, the
 * negated forms for a non-empty one.
 */

// Compare applies the condition's operator to a dimension value.
func Compare(cond CompiledCondition, value string) bool {
	if cond.IsNull {
		return (value == "") != cond.Operator.IsNegated()
	}

	switch cond.Operator {
	case types.OpEq:
		return anyValue(cond.Values, func(v string) bool { return value == v })
	case types.OpNeq:
		return !anyValue(cond.Values, func(v string) bool { return value == v })
	case types.OpInclude:
		return anyValue(cond.Values, func(v string) bool { return strings.Contains(value, v) })
	case types.OpExclude:
		return !anyValue(cond.Values, func(v string) bool { return strings.Contains(value, v) })
	case types.OpReg:
		return matchAnyPattern(cond, value)
	case types.OpNreg:
		return !matchAnyPattern(cond, value)
	default:
		return false
	}
}

// anyValue reports whether pred holds for some value.
func anyValue(values []string, pred func(string) bool) bool {
	for _, v := range values {
		if pred(v) {
			return true
		}
	}
	return false
}

// matchAnyPattern reports whether any compiled pattern matches value.
func matchAnyPattern(cond CompiledCondition, value string) bool {
	for _, re := range cond.Patterns {
		if re.MatchString(value) {
			return true
		}
	}
	return false
}
