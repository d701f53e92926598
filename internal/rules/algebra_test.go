package rules

import (
	"reflect"
	"testing"

	"github.com/solatis/dispatchkeeper/internal/types"
)

func cond(field string, op types.Operator, values ...string) types.Condition {
	return types.Condition{Field: field, Operator: op, Values: values}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b types.Condition
		want bool
	}{
		{"value order ignored", cond("a", types.OpEq, "x", "y"), cond("a", types.OpEq, "y", "x"), true},
		{"different field", cond("a", types.OpEq, "x"), cond("b", types.OpEq, "x"), false},
		{"different operator", cond("a", types.OpEq, "x"), cond("a", types.OpNeq, "x"), false},
		{"different values", cond("a", types.OpEq, "x"), cond("a", types.OpEq, "y"), false},
		{"repeated value counts", cond("a", types.OpEq, "x", "x"), cond("a", types.OpEq, "x"), false},
		{"empty values", cond("a", types.OpEq), cond("a", types.OpEq), true},
		{
			"connector ignored",
			types.Condition{Field: "a", Operator: types.OpEq, Values: []string{"x"}, Connector: types.ConnOr},
			cond("a", types.OpEq, "x"),
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equal(tt.a, tt.b); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
			if got := Equal(tt.b, tt.a); got != tt.want {
				t.Errorf("Equal() reversed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeduplicate_KeepsFirstOccurrence(t *testing.T) {
	first := types.Condition{Field: "a", Operator: types.OpEq, Values: []string{"x", "y"}}
	later := types.Condition{Field: "a", Operator: types.OpEq, Values: []string{"y", "x"}, Connector: types.ConnOr}
	other := cond("b", types.OpEq, "z")

	got := Deduplicate([]types.Condition{first, other, later})

	want := []types.Condition{first, other}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Deduplicate() = %+v, want %+v", got, want)
	}
}

func TestMergeByField_ConcatenatesWithoutDedup(t *testing.T) {
	in := []types.Condition{
		cond("a", types.OpEq, "x"),
		cond("b", types.OpEq, "1"),
		cond("a", types.OpEq, "x", "y"),
		cond("a", types.OpNeq, "z"),
	}

	got := MergeByField(in)

	want := []types.Condition{
		cond("a", types.OpEq, "x", "x", "y"),
		cond("b", types.OpEq, "1"),
		cond("a", types.OpNeq, "z"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergeByField() = %+v, want %+v", got, want)
	}
	if len(in[0].Values) != 1 {
		t.Errorf("input mutated: Values = %v, want [x]", in[0].Values)
	}
}

func TestMergeAndDeduplicate(t *testing.T) {
	in := []types.Condition{
		cond("a", types.OpEq, "x"),
		cond("a", types.OpEq, "x", "y"),
		cond("b", types.OpEq, "1"),
	}

	got := MergeAndDeduplicate(in)

	want := []types.Condition{
		cond("a", types.OpEq, "x", "y"),
		cond("b", types.OpEq, "1"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergeAndDeduplicate() = %+v, want %+v", got, want)
	}
}

func TestFindAndReplace(t *testing.T) {
	a := cond("a", types.OpEq, "1")
	b := cond("b", types.OpEq, "2")
	c := cond("c", types.OpEq, "3")
	d := cond("d", types.OpEq, "4")

	tests := []struct {
		name          string
		source        []types.Condition
		find          []types.Condition
		replace       []types.Condition
		insertAtFront bool
		want          []types.Condition
		wantReplaced  bool
	}{
		{
			name:         "substitutes in place",
			source:       []types.Condition{a, b, c},
			find:         []types.Condition{b},
			replace:      []types.Condition{d},
			want:         []types.Condition{a, d, c},
			wantReplaced: true,
		},
		{
			name:          "insert at front",
			source:        []types.Condition{a, b, c},
			find:          []types.Condition{b},
			replace:       []types.Condition{d},
			insertAtFront: true,
			want:          []types.Condition{d, a, c},
			wantReplaced:  true,
		},
		{
			name:         "partial find is a no-op",
			source:       []types.Condition{a},
			find:         []types.Condition{a, b},
			replace:      []types.Condition{d},
			want:         []types.Condition{a},
			wantReplaced: false,
		},
		{
			name:         "inserts after last matched element",
			source:       []types.Condition{a, b, c, d},
			find:         []types.Condition{c, a},
			replace:      []types.Condition{cond("e", types.OpEq, "5")},
			want:         []types.Condition{b, cond("e", types.OpEq, "5"), d},
			wantReplaced: true,
		},
		{
			name:         "empty find appends",
			source:       []types.Condition{a},
			find:         nil,
			replace:      []types.Condition{d},
			want:         []types.Condition{a, d},
			wantReplaced: true,
		},
		{
			name:          "empty find prepends at front",
			source:        []types.Condition{a},
			find:          nil,
			replace:       []types.Condition{d},
			insertAtFront: true,
			want:          []types.Condition{d, a},
			wantReplaced:  true,
		},
		{
			name:         "each find element consumes one source element",
			source:       []types.Condition{a, a},
			find:         []types.Condition{a},
			replace:      []types.Condition{d},
			want:         []types.Condition{d, a},
			wantReplaced: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, replaced := FindAndReplace(tt.source, tt.find, tt.replace, tt.insertAtFront)
			if replaced != tt.wantReplaced {
				t.Errorf("FindAndReplace() replaced = %v, want %v", replaced, tt.wantReplaced)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FindAndReplace() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPrependConditions(t *testing.T) {
	a := cond("a", types.OpEq, "1")
	b := types.Condition{Field: "b", Operator: types.OpEq, Values: []string{"2"}, Connector: types.ConnOr}
	u := cond("u", types.OpEq, "9")

	got := PrependConditions([]types.Condition{a, b}, []types.Condition{u, a})

	want := []types.Condition{
		{Field: "u", Operator: types.OpEq, Values: []string{"9"}},
		{Field: "a", Operator: types.OpEq, Values: []string{"1"}, Connector: types.ConnAnd},
		{Field: "b", Operator: types.OpEq, Values: []string{"2"}, Connector: types.ConnOr},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("PrependConditions() = %+v, want %+v", got, want)
	}
}

func TestEqualChain(t *testing.T) {
	a := cond("a", types.OpEq, "1", "2")
	b := cond("b", types.OpEq, "2")
	bOr := types.Condition{Field: "b", Operator: types.OpEq, Values: []string{"2"}, Connector: types.ConnOr}
	aOr := types.Condition{Field: "a", Operator: types.OpEq, Values: []string{"2", "1"}, Connector: types.ConnOr}

	if !EqualChain([]types.Condition{a, b}, []types.Condition{aOr, b}) {
		t.Errorf("EqualChain() = false, want true (first connector and value order ignored)")
	}
	if EqualChain([]types.Condition{a, b}, []types.Condition{a, bOr}) {
		t.Errorf("EqualChain() = true, want false (connector differs)")
	}
	if EqualChain([]types.Condition{a, b}, []types.Condition{b, a}) {
		t.Errorf("EqualChain() = true, want false (order differs)")
	}
}

func TestRepeatedFields(t *testing.T) {
	list := []types.Condition{
		cond("a", types.OpEq, "1"),
		cond("", types.OpEq),
		cond("a", types.OpNeq, "2"),
		cond("", types.OpEq),
		cond("b", types.OpEq, "3"),
		cond("a", types.OpEq, "4"),
	}

	got := RepeatedFields(list)
	if !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("RepeatedFields() = %v, want [a]", got)
	}
}

func TestCommonSubset(t *testing.T) {
	x := cond("x", types.OpEq, "1")
	y := cond("y", types.OpEq, "2")
	z := cond("z", types.OpEq, "3")

	tests := []struct {
		name   string
		groups [][]types.Condition
		want   []types.Condition
	}{
		{"empty group", [][]types.Condition{{}, {x}}, []types.Condition{}},
		{"shared member", [][]types.Condition{{x, y}, {x, z}}, []types.Condition{x}},
		{"no groups", nil, []types.Condition{}},
		{"shortest drives order", [][]types.Condition{{z, y, x}, {y, x}}, []types.Condition{y, x}},
		{"disjoint", [][]types.Condition{{x}, {y}}, []types.Condition{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CommonSubset(tt.groups)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("CommonSubset() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStrategyIDs(t *testing.T) {
	chains := [][]types.Condition{
		{cond(types.StrategyIDField, types.OpEq, "10", "11"), cond("alert.name", types.OpEq, "cpu")},
		{cond(types.StrategyIDField, types.OpEq, "11", "12")},
		{cond(types.StrategyIDField, types.OpEq, "")},
	}

	got := StrategyIDs(chains...)
	if !reflect.DeepEqual(got, []string{"10", "11", "12"}) {
		t.Errorf("StrategyIDs() = %v, want [10 11 12]", got)
	}
}
