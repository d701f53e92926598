// internal/rules/statistics.go
package rules

import (
	"sort"

	"github.com/solatis/dispatchkeeper/internal/types"
)

// CommonSubset returns the conditions shared by every group.
//
// An empty group asserts no constraint, so any empty group yields an empty
// result. Otherwise the shortest group is scanned (ties keep input order)
// and each of its conditions is kept when every other group includes it.
func CommonSubset(groups [][]types.Condition) []types.Condition {
	out := []types.Condition{}
	if len(groups) == 0 {
		return out
	}
	for _, g := range groups {
		if len(g) == 0 {
			return out
		}
	}

	sorted := make([][]types.Condition, len(groups))
	copy(sorted, groups)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i]) < len(sorted[j])
	})

	for _, c := range sorted[0] {
		shared := true
		for _, other := range sorted[1:] {
			if !Includes(c, other) {
				shared = false
				break
			}
		}
		if shared {
			out = append(out, c.Clone())
		}
	}
	return out
}

// StrategyIDs collects the values of strategy-id conditions across chains,
// in first-seen order without repeats.
func StrategyIDs(chains ...[]types.Condition) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, chain := range chains {
		for _, c := range chain {
			if c.Field != types.StrategyIDField {
				continue
			}
			for _, v := range c.Values {
				if v == "" {
					continue
				}
				if _, ok := seen[v]; ok {
					continue
				}
				seen[v] = struct{}{}
				out = append(out, v)
			}
		}
	}
	return out
}
