// internal/dispatch/load.go
package dispatch

import (
	"context"
	"fmt"
	"sort"

	"github.com/solatis/dispatchkeeper/internal/types"
)

// GroupSource lists stored rule groups.
type GroupSource interface {
	ListGroups(ctx context.Context) ([]types.GroupInfo, error)
}

// RuleSource lists the stored rules of one group.
type RuleSource interface {
	ListRules(ctx context.Context, groupID int64) ([]types.RuleParams, error)
}

// LoadGroups wraps every stored group in a shell, highest priority first.
// On failure it returns an empty list with the error so callers keep a
// well-defined state.
func LoadGroups(ctx context.Context, src GroupSource) ([]*Group, error) {
	infos, err := src.ListGroups(ctx)
	if err != nil {
		return []*Group{}, fmt.Errorf("list groups: %w", err)
	}
	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].Priority > infos[j].Priority
	})
	out := make([]*Group, 0, len(infos))
	for _, info := range infos {
		out = append(out, NewGroup(info))
	}
	return out, nil
}

// LoadGroupRules fills g with its stored rules. On failure g keeps its
// placeholder row and the error is returned.
func LoadGroupRules(ctx context.Context, g *Group, src RuleSource) error {
	params, err := src.ListRules(ctx, g.ID)
	if err != nil {
		g.LoadRules(nil)
		return fmt.Errorf("list rules of group %d: %w", g.ID, err)
	}
	g.LoadRules(params)
	return nil
}
