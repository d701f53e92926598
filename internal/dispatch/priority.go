// internal/dispatch/priority.go
package dispatch

import (
	"math"

	"github.com/solatis/dispatchkeeper/internal/types"
)

// NextPriority suggests a priority for a new group: the next multiple of
// PriorityStep above the highest existing priority, skipping one step when
// the highest is already a multiple. The first group gets
// DefaultFirstPriority. ok is false when the suggestion would reach
// MaxPriority, leaving the choice to the operator.
func NextPriority(groups []types.GroupInfo) (priority int, ok bool) {
	if len(groups) == 0 {
		return types.DefaultFirstPriority, true
	}
	highest := groups[0].Priority
	for _, g := range groups[1:] {
		if g.Priority > highest {
			highest = g.Priority
		}
	}
	rem := highest % types.PriorityStep
	next := highest + types.PriorityStep
	if rem != 0 {
		next = highest + 2*types.PriorityStep - rem
	}
	if next >= types.MaxPriority {
		return 0, false
	}
	return next, true
}

// ClampPriority rounds operator input into MinPriority..MaxPriority.
// Non-numeric input (NaN) becomes MinPriority.
func ClampPriority(v float64) int {
	switch {
	case math.IsNaN(v), v < types.MinPriority:
		return types.MinPriority
	case v > types.MaxPriority:
		return types.MaxPriority
	}
	return int(math.Round(v))
}

// PriorityConflict returns the other group holding priority, if any.
// selfID excludes the group being edited; pass 0 for a new group.
func PriorityConflict(priority int, selfID int64, groups []types.GroupInfo) (types.GroupInfo, bool) {
	for _, g := range groups {
		if g.ID != selfID && g.Priority == priority {
			return g, true
		}
	}
	return types.GroupInfo{}, false
}
