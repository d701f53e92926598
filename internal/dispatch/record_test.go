package dispatch

import (
	"encoding/json"
	"testing"

	"github.com/solatis/dispatchkeeper/internal/rules"
	"github.com/solatis/dispatchkeeper/internal/types"
)

func boolPtr(b bool) *bool { return &b }

func storedRule(id int64) types.RuleParams {
	return types.RuleParams{
		ID:         id,
		UserGroups: []int64{1, 2},
		Conditions: []types.Condition{
			{Field: "alert.name", Operator: "eq", Values: []string{`"CPU high"`}, Connector: "or"},
			{Field: "tags.env", Operator: "regex", Values: []string{"^prod"}},
		},
		Actions: []types.ActionParams{
			{
				ActionType: types.ActionNotice,
				IsEnabled:  boolPtr(true),
				UpgradeConfig: &types.UpgradeConfig{
					IsEnabled:       true,
					UserGroups:      []int64{3},
					UpgradeInterval: 60,
				},
			},
			{ActionType: types.ActionITSM, ActionID: 77},
		},
		AlertSeverity:  2,
		AdditionalTags: []types.Tag{{Key: "team", Value: "sre"}},
		IsEnabled:      true,
	}
}

func TestNewRecord_Normalizes(t *testing.T) {
	r := NewRecord(storedRule(10))

	if r.ID != 10 || r.AddID != "" {
		t.Errorf("identity = (%d, %q), want (10, \"\")", r.ID, r.AddID)
	}
	if got := r.Conditions[0].Values[0]; got != "CPU high" {
		t.Errorf("Conditions[0].Values[0] = %q, want %q", got, "CPU high")
	}
	if r.Conditions[0].Connector != "" {
		t.Errorf("first connector = %q, want empty", r.Conditions[0].Connector)
	}
	if r.Conditions[1].Operator != types.OpReg {
		t.Errorf("Conditions[1].Operator = %v, want reg", r.Conditions[1].Operator)
	}
	if r.Conditions[1].Connector != types.ConnAnd {
		t.Errorf("Conditions[1].Connector = %v, want and", r.Conditions[1].Connector)
	}
	if !r.Escalation.Enabled || r.Escalation.IntervalMinutes != 60 || len(r.Escalation.UserGroups) != 1 {
		t.Errorf("Escalation = %+v, want enabled, 60 minutes, groups [3]", r.Escalation)
	}
	if r.ActionID != 77 {
		t.Errorf("ActionID = %d, want 77", r.ActionID)
	}
	if r.AdditionalTags[0].SourceString() != "team:sre" {
		t.Errorf("tag source = %q, want team:sre", r.AdditionalTags[0].SourceString())
	}
	if !r.IsValid() {
		t.Errorf("IsValid() = false, errors %v", r.Errors)
	}
}

func TestNewRecord_AssignsAddID(t *testing.T) {
	r := NewRecord(types.RuleParams{IsEnabled: true})
	if r.AddID == "" {
		t.Errorf("AddID empty for unsaved rule")
	}
	if !r.Escalation.NoticeEnabled {
		t.Errorf("NoticeEnabled = false, want true when notice action is absent")
	}
}

func TestSubmitParams_Shape(t *testing.T) {
	r := NewRecord(storedRule(10))
	r.SetConditions(append(r.Conditions, types.Condition{}))

	data, err := json.Marshal(r.SubmitParams())
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	want := `{"id":10,"user_groups":[1,2],"conditions":[` +
		`{"field":"alert.name","method":"eq","value":["CPU high"]},` +
		`{"field":"tags.env","method":"reg","value":["^prod"],"condition":"and"}],` +
		`"actions":[{"action_type":"notice","is_enabled":true,"upgrade_config":{"is_enabled":true,"user_groups":[3],"upgrade_interval":60}},` +
		`{"action_type":"itsm","action_id":77}],` +
		`"alert_severity":2,"additional_tags":[{"key":"team","value":"sre"}],"is_enabled":true}`
	if string(data) != want {
		t.Errorf("SubmitParams() JSON =\n%s\nwant\n%s", data, want)
	}
}

func TestSubmitParams_OmitsTicketAction(t *testing.T) {
	r := NewRecord(storedRule(10))
	r.SetActionID(0)

	p := r.SubmitParams()
	if len(p.Actions) != 1 || p.Actions[0].ActionType != types.ActionNotice {
		t.Errorf("Actions = %+v, want only notice", p.Actions)
	}
	if p.Action(types.ActionITSM) != nil {
		t.Errorf("itsm action present, want omitted")
	}
}

func TestRecord_EmptyAndRequiredFields(t *testing.T) {
	r := NewEmptyRecord()
	if !r.IsEmpty() {
		t.Fatalf("IsEmpty() = false for fresh record")
	}
	if !r.IsValid() {
		t.Errorf("IsValid() = false for empty record, errors %v", r.Errors)
	}

	r.SetEnabled(false)
	if r.IsEmpty() {
		t.Errorf("IsEmpty() = true after disabling")
	}
	if !r.HasError(FieldUserGroups) {
		t.Errorf("missing %s marker, errors %v", ErrAlarmGroupsRequired, r.Errors)
	}
	if !r.HasError(FieldConditions) {
		t.Errorf("missing %s marker, errors %v", ErrConditionsRequired, r.Errors)
	}
}

func TestValidate_Tags(t *testing.T) {
	tests := []struct {
		name    string
		sources []string
		want    ErrorKind
	}{
		{"colon", []string{"env:prod"}, ""},
		{"equals", []string{"env=prod"}, ""},
		{"no separator", []string{"env"}, ErrTagFormat},
		{"empty key", []string{":prod"}, ErrTagFormat},
		{"two separators", []string{"a:b:c"}, ErrTagFormat},
		{"repeated key", []string{"env:prod", "env:staging"}, ErrTagKeyRepeat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRecord(storedRule(1))
			r.SetTags(tt.sources)

			var got ErrorKind
			for _, e := range r.Errors {
				if e.Field == FieldTags {
					got = e.Kind
				}
			}
			if got != tt.want {
				t.Errorf("tag error = %q, want %q", got, tt.want)
			}
		})
	}
}

// Stored tags must load as valid records exactly when the store accepts
// them, so a saved group never comes back undebuggable.
func TestNewRecord_TagsAgreeWithStoreValidation(t *testing.T) {
	tags := []types.Tag{
		{Key: "team", Value: "sre"},
		{Key: "runbook", Value: "http://wiki/cpu"},
		{Key: "window", Value: "10:00"},
		{Key: "q", Value: "a=b"},
		{Key: "team"},
	}
	for _, tag := range tags {
		p := types.RuleParams{
			ID:             1,
			UserGroups:     []int64{1},
			Conditions:     []types.Condition{{Field: "alert.name", Operator: types.OpEq, Values: []string{"cpu"}}},
			AdditionalTags: []types.Tag{tag},
			IsEnabled:      true,
		}

		stored := rules.ValidateRule(p) == nil
		loaded := !NewRecord(p).HasError(FieldTags)
		if stored != loaded {
			t.Errorf("tag %v: accepted by ValidateRule = %v, valid after NewRecord = %v", tag, stored, loaded)
		}
	}
}

func TestValidate_EscalationOverlap(t *testing.T) {
	r := NewRecord(storedRule(1))
	r.SetEscalation(Escalation{NoticeEnabled: true, Enabled: true, IntervalMinutes: 30, UserGroups: []int64{2, 9}})
	if !r.HasError(FieldEscalation) {
		t.Errorf("missing %s marker, errors %v", ErrEscalationOverlap, r.Errors)
	}

	r.SetEscalation(Escalation{NoticeEnabled: false, Enabled: true, IntervalMinutes: 30, UserGroups: []int64{2}})
	if r.HasError(FieldEscalation) {
		t.Errorf("overlap reported with notice disabled")
	}
}

func TestValidate_Conditions(t *testing.T) {
	r := NewRecord(storedRule(1))

	r.SetConditions([]types.Condition{
		{Field: "alert.name", Operator: types.OpEq, Values: []string{"a"}},
		{Field: "alert.name", Operator: types.OpNeq, Values: []string{"b"}, Connector: types.ConnAnd},
	})
	if !hasKind(r, ErrConditionFieldRepeat) {
		t.Errorf("missing %s, errors %v", ErrConditionFieldRepeat, r.Errors)
	}

	r.SetConditions([]types.Condition{{Field: "alert.name", Operator: types.OpReg, Values: []string{"("}}})
	if !hasKind(r, ErrConditionRegex) {
		t.Errorf("missing %s, errors %v", ErrConditionRegex, r.Errors)
	}

	r.SetConditions([]types.Condition{{Field: "alert.name", Operator: "lt", Values: []string{"1"}}})
	if !hasKind(r, ErrConditionOperator) {
		t.Errorf("missing %s, errors %v", ErrConditionOperator, r.Errors)
	}
}

func hasKind(r *Record, k ErrorKind) bool {
	for _, e := range r.Errors {
		if e.Kind == k {
			return true
		}
	}
	return false
}
