// internal/rules/cost.go
package rules

import "github.com/solatis/dispatchkeeper/internal/types"

/*
 * Cost model for condition matching.
 *
 * Within an AND group every condition must hold, so cheaper conditions run
 * first to maximize short-circuit benefit on non-matching alerts.
 *
 * Cost formula: CostLookup + operator_cost * value_count
 *
 * Regex operators are an order of magnitude above plain comparisons; patterns
 * are compiled once, but each value still costs a full scan of the field.
 */

const (
	// Operator base costs per value
	CostEq      = 5
	CostNeq     = 5
	CostInclude = 10
	CostExclude = 10
	CostReg     = 48
	CostNreg    = 48

	// Dimension map lookup
	CostLookup = 1
)

// CalculateConditionCost computes cost for a single condition.
func CalculateConditionCost(op types.Operator, valueCount int) int {
	if valueCount < 1 {
		valueCount = 1
	}
	return CostLookup + operatorCost(op)*valueCount
}

// operatorCost returns base cost for operator execution.
func operatorCost(op types.Operator) int {
	switch op {
	case types.OpEq:
		return CostEq
	case types.OpNeq:
		return CostNeq
	case types.OpInclude:
		return CostInclude
	case types.OpExclude:
		return CostExclude
	case types.OpReg:
		return CostReg
	case types.OpNreg:
		return CostNreg
	default:
		return CostEq
	}
}
