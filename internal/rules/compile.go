// internal/rules/compile.go
package rules

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/solatis/dispatchkeeper/internal/types"
)

/*
 * Condition chain compilation.
 *
 * Compiles a rule's flat condition chain into OR-of-AND groups with
 * pre-compiled patterns and cost-ordered conditions.
 *
 * Grouping: the chain reads left to right; and binds tighter than or. Each
 * or connector starts a new AND group, so "a and b or c" compiles to
 * (a AND b) OR (c). The first condition's connector is ignored.
 *
 * Compilation workflow:
 *   1. Skip placeholder conditions (no field)
 *   2. Validate operator and condition count
 *   3. Compile reg/nreg values once
 *   4. Order each group by ascending cost (stable sort for determinism)
 *
 * An empty chain compiles to zero groups and never matches.
 */

// CompiledCondition is a pre-processed condition ready for matching.
type CompiledCondition struct {
	Field    string
	Operator types.Operator
	Values   []string
	Patterns []*regexp.Regexp // reg/nreg only
	IsNull   bool             // holds only the empty-value sentinel
	Cost     int
}

// CompiledAndGroup is a set of conditions that must all hold.
type CompiledAndGroup struct {
	Conditions []CompiledCondition // ordered by ascending cost
}

// CompiledChain is a condition chain ready for matching.
type CompiledChain struct {
	Groups []CompiledAndGroup
	Cost   int
}

// CompileChain validates and pre-processes a condition chain.
func CompileChain(chain []types.Condition) (*CompiledChain, error) {
	if len(chain) > types.MaxConditionsPerRule {
		return nil, types.ErrTooManyConditions
	}

	compiled := &CompiledChain{}
	var current *CompiledAndGroup

	for _, cond := range chain {
		if cond.IsPlaceholder() {
			continue
		}
		cc, err := compileCondition(cond)
		if err != nil {
			return nil, err
		}
		if current == nil || cond.EffectiveConnector() == types.ConnOr {
			compiled.Groups = append(compiled.Groups, CompiledAndGroup{})
			current = &compiled.Groups[len(compiled.Groups)-1]
		}
		current.Conditions = append(current.Conditions, cc)
		compiled.Cost += cc.Cost
	}

	for i := range compiled.Groups {
		conds := compiled.Groups[i].Conditions
		// Stable sort: equal-cost conditions keep chain order
		sort.SliceStable(conds, func(a, b int) bool {
			return conds[a].Cost < conds[b].Cost
		})
	}

	return compiled, nil
}

// compileCondition validates a single condition and compiles its patterns.
func compileCondition(cond types.Condition) (CompiledCondition, error) {
	if !cond.Operator.Valid() {
		return CompiledCondition{}, fmt.Errorf("%w: %q", types.ErrInvalidOperator, cond.Operator)
	}

	cc := CompiledCondition{
		Field:    cond.Field,
		Operator: cond.Operator,
		Values:   append([]string(nil), cond.Values...),
		IsNull:   cond.IsNullMatch(),
		Cost:     CalculateConditionCost(cond.Operator, len(cond.Values)),
	}

	if cond.Operator.IsRegex() && !cc.IsNull {
		cc.Patterns = make([]*regexp.Regexp, 0, len(cond.Values))
		for _, v := range cond.Values {
			re, err := regexp.Compile(v)
			if err != nil {
				return CompiledCondition{}, fmt.Errorf("%w: field %s: %v", types.ErrInvalidPattern, cond.Field, err)
			}
			cc.Patterns = append(cc.Patterns, re)
		}
	}

	return cc, nil
}

// ValidatePattern reports whether v compiles as a reg/nreg value.
func ValidatePattern(v string) error {
	if _, err := regexp.Compile(v); err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidPattern, err)
	}
	return nil
}
