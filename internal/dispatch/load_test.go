package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/solatis/dispatchkeeper/internal/types"
)

type fakeSource struct {
	groups []types.GroupInfo
	rules  map[int64][]types.RuleParams
	err    error
}

func (f *fakeSource) ListGroups(ctx context.Context) ([]types.GroupInfo, error) {
	return f.groups, f.err
}

func (f *fakeSource) ListRules(ctx context.Context, groupID int64) ([]types.RuleParams, error) {
	return f.rules[groupID], f.err
}

func TestLoadGroups_SortsByPriority(t *testing.T) {
	src := &fakeSource{groups: []types.GroupInfo{
		{ID: 1, Name: "low", Priority: 10},
		{ID: 2, Name: "high", Priority: 500},
	}}

	groups, err := LoadGroups(context.Background(), src)
	if err != nil {
		t.Fatalf("LoadGroups() error = %v", err)
	}
	if len(groups) != 2 || groups[0].ID != 2 {
		t.Errorf("LoadGroups() order = %v, want high priority first", groups)
	}
}

func TestLoadGroups_FailureDegradesToEmpty(t *testing.T) {
	boom := errors.New("boom")
	groups, err := LoadGroups(context.Background(), &fakeSource{err: boom})
	if !errors.Is(err, boom) {
		t.Errorf("LoadGroups() error = %v, want %v", err, boom)
	}
	if groups == nil || len(groups) != 0 {
		t.Errorf("LoadGroups() = %v, want empty non-nil list", groups)
	}
}

func TestLoadGroupRules(t *testing.T) {
	src := &fakeSource{rules: map[int64][]types.RuleParams{7: {storedRule(1)}}}
	g := NewGroup(types.GroupInfo{ID: 7, Name: "g", Priority: 100})

	if err := LoadGroupRules(context.Background(), g, src); err != nil {
		t.Fatalf("LoadGroupRules() error = %v", err)
	}
	if len(g.Rules) != 1 || g.Rules[0].ID != 1 {
		t.Errorf("Rules = %d rows, want stored rule 1", len(g.Rules))
	}

	src.err = errors.New("down")
	if err := LoadGroupRules(context.Background(), g, src); err == nil {
		t.Errorf("LoadGroupRules() error = nil, want failure")
	}
	if len(g.Rules) != 1 || !g.Rules[0].IsEmpty() {
		t.Errorf("Rules after failure = %d rows, want placeholder", len(g.Rules))
	}
}
