// internal/rules/evaluate.go
package rules

import "github.com/solatis/dispatchkeeper/internal/types"

/*
 * Chain matching.
 *
 * Evaluates a CompiledChain against an alert's dimensions with DNF semantics
 * (OR of AND groups). The first matching group stops evaluation; inside a
 * group the first failing condition does.
 *
 * Missing dimensions read as the empty string, so the empty-value sentinel
 * matches both absent and blank fields.
 */

// Match reports whether the chain matches the dimensions.
func Match(chain *CompiledChain, dims types.Dimensions) bool {
	if chain == nil {
		return false
	}
	for _, group := range chain.Groups {
		if matchGroup(group, dims) {
			return true
		}
	}
	return false
}

// matchGroup reports whether every condition in the group holds.
func matchGroup(group CompiledAndGroup, dims types.Dimensions) bool {
	if len(group.Conditions) == 0 {
		return false
	}
	for _, cond := range group.Conditions {
		if !Compare(cond, dims[cond.Field]) {
			return false
		}
	}
	return true
}

// MatchChain compiles and evaluates a chain in one step.
func MatchChain(chain []types.Condition, dims types.Dimensions) (bool, error) {
	compiled, err := CompileChain(chain)
	if err != nil {
		return false, err
	}
	return Match(compiled, dims), nil
}
