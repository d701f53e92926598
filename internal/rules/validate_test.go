package rules

import (
	"errors"
	"testing"

	"github.com/solatis/dispatchkeeper/internal/types"
)

func TestValidateRule(t *testing.T) {
	cond := types.Condition{Field: "alert.name", Operator: types.OpEq, Values: []string{"cpu"}}

	tests := []struct {
		name string
		rule types.RuleParams
		want error
	}{
		{"valid", types.RuleParams{Conditions: []types.Condition{cond}, AlertSeverity: 2}, nil},
		{"severity high", types.RuleParams{AlertSeverity: 4}, types.ErrInvalidSeverity},
		{"severity negative", types.RuleParams{AlertSeverity: -1}, types.ErrInvalidSeverity},
		{"bad operator", types.RuleParams{Conditions: []types.Condition{
			{Field: "alert.name", Operator: "like", Values: []string{"x"}},
		}}, types.ErrInvalidOperator},
		{"bad pattern", types.RuleParams{Conditions: []types.Condition{
			{Field: "alert.name", Operator: types.OpReg, Values: []string{"("}},
		}}, types.ErrInvalidPattern},
		{"bad connector", types.RuleParams{Conditions: []types.Condition{
			cond, {Field: "x", Operator: types.OpEq, Values: []string{"1"}, Connector: "xor"},
		}}, types.ErrInvalidConnector},
		{"tag", types.RuleParams{AdditionalTags: []types.Tag{{Key: "team", Value: "sre"}}}, nil},
		{"tag value with url", types.RuleParams{AdditionalTags: []types.Tag{{Key: "runbook", Value: "http://wiki/cpu"}}}, types.ErrInvalidTag},
		{"tag value with time", types.RuleParams{AdditionalTags: []types.Tag{{Key: "window", Value: "10:00"}}}, types.ErrInvalidTag},
		{"tag value with equals", types.RuleParams{AdditionalTags: []types.Tag{{Key: "q", Value: "a=b"}}}, types.ErrInvalidTag},
		{"tag without value", types.RuleParams{AdditionalTags: []types.Tag{{Key: "team"}}}, types.ErrInvalidTag},
		{"tag key repeated", types.RuleParams{AdditionalTags: []types.Tag{{Key: "team", Value: "a"}, {Key: "team", Value: "b"}}}, types.ErrInvalidTag},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRule(tt.rule)
			if tt.want == nil {
				if err != nil {
					t.Errorf("ValidateRule() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("ValidateRule() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidateRules_TooMany(t *testing.T) {
	batch := make([]types.RuleParams, types.MaxRulesPerGroup+1)
	if err := ValidateRules(batch); !errors.Is(err, types.ErrTooManyRules) {
		t.Errorf("ValidateRules() = %v, want %v", err, types.ErrTooManyRules)
	}
	if err := ValidateRules(batch[:2]); err != nil {
		t.Errorf("ValidateRules() = %v, want nil", err)
	}
}
