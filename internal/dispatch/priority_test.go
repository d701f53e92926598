package dispatch

import (
	"math"
	"testing"

	"github.com/solatis/dispatchkeeper/internal/types"
)

func TestNextPriority(t *testing.T) {
	tests := []struct {
		name       string
		priorities []int
		want       int
		wantOK     bool
	}{
		{"first group", nil, 100, true},
		{"multiple of step", []int{100, 40}, 105, true},
		{"rounds up", []int{12, 103}, 110, true},
		{"reaches max", []int{9995}, 0, false},
		{"near max", []int{9989}, 9995, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups := make([]types.GroupInfo, 0, len(tt.priorities))
			for _, p := range tt.priorities {
				groups = append(groups, types.GroupInfo{Priority: p})
			}
			got, ok := NextPriority(groups)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("NextPriority() = %d, %v, want %d, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestClampPriority(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{0, 1},
		{-5, 1},
		{math.NaN(), 1},
		{20000, 10000},
		{12.6, 13},
		{500, 500},
	}
	for _, tt := range tests {
		if got := ClampPriority(tt.in); got != tt.want {
			t.Errorf("ClampPriority(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestPriorityConflict(t *testing.T) {
	groups := []types.GroupInfo{{ID: 1, Name: "a", Priority: 100}, {ID: 2, Name: "b", Priority: 200}}

	if g, ok := PriorityConflict(200, 0, groups); !ok || g.ID != 2 {
		t.Errorf("PriorityConflict(200, 0) = %+v, %v, want group 2", g, ok)
	}
	if _, ok := PriorityConflict(200, 2, groups); ok {
		t.Errorf("PriorityConflict() reported the edited group itself")
	}
	if _, ok := PriorityConflict(150, 0, groups); ok {
		t.Errorf("PriorityConflict(150) = true, want false")
	}
}
