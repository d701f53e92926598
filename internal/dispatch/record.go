// internal/dispatch/record.go
package dispatch

import (
	"slices"
	"strconv"
	"strings"

	"github.com/solatis/dispatchkeeper/internal/rules"
	"github.com/solatis/dispatchkeeper/internal/types"
)

/*
 * Dispatch rule records.
 *
 * A Record is one editable row of a rule group. It carries the routing
 * fields submitted to the assign-rule service plus editing state: the
 * checked flag, validation markers, changed flags, and the hit-count overlay
 * of the last debug probe.
 *
 * Identity: exactly one of ID (persisted), AddID (added locally) and CopyID
 * (copied locally) identifies the record. Local ids are UUIDv7 strings.
 *
 * Every setter re-runs validation before returning, so Errors always
 * reflects the current fields. Changed flags are owned by the group's
 * Tracker and refreshed by the group after each edit.
 */

// Field names a diffable rule attribute.
type Field string

const (
	FieldUserGroups Field = "userGroups"
	FieldConditions Field = "conditions"
	FieldEscalation Field = "upgradeConfig"
	FieldActionID   Field = "actionId"
	FieldSeverity   Field = "alertSeverity"
	FieldTags       Field = "additionalTags"
	FieldEnabled    Field = "isEnabled"
)

// DiffFields lists every field compared against the baseline, in column order.
var DiffFields = []Field{
	FieldUserGroups,
	FieldConditions,
	FieldEscalation,
	FieldActionID,
	FieldSeverity,
	FieldTags,
	FieldEnabled,
}

// Escalation holds the notice action of a rule: whether the base
// notification is sent and how it escalates when unhandled.
type Escalation struct {
	NoticeEnabled   bool
	Enabled         bool
	IntervalMinutes int
	UserGroups      []int64
}

func (e Escalation) clone() Escalation {
	out := e
	out.UserGroups = slices.Clone(e.UserGroups)
	return out
}

// Record is one editable dispatch rule.
type Record struct {
	ID     int64
	AddID  string
	CopyID string

	UserGroups     []int64
	Escalation     Escalation
	ActionID       int64
	Severity       int
	AdditionalTags []types.Tag
	Conditions     []types.Condition
	Enabled        bool

	Checked bool
	Errors  []FieldError
	Changed map[Field]bool

	// HitCount is the read-only overlay of the last debug probe; nil when
	// the rule has not been probed.
	HitCount *int
}

// NewEmptyRecord returns the placeholder row of a group without rules.
func NewEmptyRecord() *Record {
	r := &Record{
		AddID:      types.NewLocalID(),
		Escalation: Escalation{NoticeEnabled: true, IntervalMinutes: types.DefaultEscalationInterval},
		Enabled:    true,
	}
	r.revalidate()
	return r
}

// NewRecord builds a record from the server shape.
//
// Condition values lose surrounding double quotes (top-N suggestions carry
// them), operator aliases are canonicalized, and connectors default to and
// with the first one cleared. The notice action is split into Escalation and
// the itsm action into ActionID.
func NewRecord(p types.RuleParams) *Record {
	r := &Record{
		ID:         p.ID,
		UserGroups: slices.Clone(p.UserGroups),
		Severity:   p.AlertSeverity,
		Enabled:    p.IsEnabled,
		Escalation: Escalation{NoticeEnabled: true, IntervalMinutes: types.DefaultEscalationInterval},
	}
	if r.ID == 0 {
		r.AddID = types.NewLocalID()
	}

	r.Conditions = make([]types.Condition, 0, len(p.Conditions))
	for i, c := range p.Conditions {
		r.Conditions = append(r.Conditions, normalizeCondition(c, i == 0))
	}

	if notice := p.Action(types.ActionNotice); notice != nil {
		if notice.IsEnabled != nil {
			r.Escalation.NoticeEnabled = *notice.IsEnabled
		}
		if uc := notice.UpgradeConfig; uc != nil {
			r.Escalation.Enabled = uc.IsEnabled
			r.Escalation.UserGroups = slices.Clone(uc.UserGroups)
			if uc.UpgradeInterval > 0 {
				r.Escalation.IntervalMinutes = uc.UpgradeInterval
			}
		}
	}
	if itsm := p.Action(types.ActionITSM); itsm != nil {
		r.ActionID = itsm.ActionID
	}

	for _, t := range p.AdditionalTags {
		r.AdditionalTags = append(r.AdditionalTags, types.Tag{Key: t.Key, Value: t.Value, Source: t.Key + ":" + t.Value})
	}

	r.revalidate()
	return r
}

func normalizeCondition(c types.Condition, first bool) types.Condition {
	out := c.Clone()
	if op, err := types.ParseOperator(string(c.Operator)); err == nil {
		out.Operator = op
	}
	if first {
		out.Connector = ""
	} else if conn, err := types.ParseConnector(string(c.Connector)); err == nil {
		out.Connector = conn
	} else {
		out.Connector = types.ConnAnd
	}
	if out.Values == nil {
		out.Values = []string{}
	}
	for i, v := range out.Values {
		out.Values[i] = stripQuotes(v)
	}
	return out
}

func stripQuotes(v string) string {
	if len(v) >= 2 && strings.HasPrefix(v, `"`) && strings.HasSuffix(v, `"`) {
		return v[1 : len(v)-1]
	}
	return v
}

// Clone returns a deep copy including editing state.
func (r *Record) Clone() *Record {
	out := *r
	out.UserGroups = slices.Clone(r.UserGroups)
	out.Escalation = r.Escalation.clone()
	out.AdditionalTags = slices.Clone(r.AdditionalTags)
	out.Conditions = types.CloneConditions(r.Conditions)
	out.Errors = slices.Clone(r.Errors)
	if r.Changed != nil {
		out.Changed = make(map[Field]bool, len(r.Changed))
		for k, v := range r.Changed {
			out.Changed[k] = v
		}
	}
	if r.HitCount != nil {
		n := *r.HitCount
		out.HitCount = &n
	}
	return &out
}

// Key identifies the record for baseline lookup.
func (r *Record) Key() string {
	switch {
	case r.ID != 0:
		return "id:" + strconv.FormatInt(r.ID, 10)
	case r.AddID != "":
		return "add:" + r.AddID
	case r.CopyID != "":
		return "copy:" + r.CopyID
	}
	return ""
}

// IsPersisted reports whether the record exists server-side.
func (r *Record) IsPersisted() bool {
	return r.ID != 0
}

// RealConditions returns the conditions that have a field.
func (r *Record) RealConditions() []types.Condition {
	out := make([]types.Condition, 0, len(r.Conditions))
	for _, c := range r.Conditions {
		if !c.IsPlaceholder() {
			out = append(out, c.Clone())
		}
	}
	return out
}

// IsEmpty reports whether the record is an untouched placeholder row:
// no alarm groups, no conditions, no escalation, no ticket action, original
// severity, no tags, and enabled.
func (r *Record) IsEmpty() bool {
	return len(r.UserGroups) == 0 &&
		len(r.RealConditions()) == 0 &&
		!r.Escalation.Enabled &&
		r.ActionID == 0 &&
		r.Severity == 0 &&
		len(r.AdditionalTags) == 0 &&
		r.Enabled
}

// IsValid reports whether every validation check passes.
func (r *Record) IsValid() bool {
	return len(r.Errors) == 0
}

// HasError reports whether the field carries a validation marker.
func (r *Record) HasError(f Field) bool {
	for _, e := range r.Errors {
		if e.Field == f {
			return true
		}
	}
	return false
}

// AnyChanged reports whether any field differs from the baseline.
func (r *Record) AnyChanged() bool {
	for _, v := range r.Changed {
		if v {
			return true
		}
	}
	return false
}

func (r *Record) revalidate() {
	r.Errors = Validate(r)
}

// SetUserGroups replaces the alarm groups notified by the rule.
func (r *Record) SetUserGroups(ids []int64) {
	r.UserGroups = slices.Clone(ids)
	r.revalidate()
}

// SetConditions replaces the condition chain.
func (r *Record) SetConditions(list []types.Condition) {
	r.Conditions = types.CloneConditions(list)
	if r.Conditions == nil {
		r.Conditions = []types.Condition{}
	}
	r.revalidate()
}

// SetEscalation replaces the notice action settings.
func (r *Record) SetEscalation(e Escalation) {
	r.Escalation = e.clone()
	r.revalidate()
}

// SetActionID sets the ticket action; 0 removes it.
func (r *Record) SetActionID(id int64) {
	r.ActionID = id
	r.revalidate()
}

// SetSeverity sets the severity override; 0 keeps the alert's own severity.
func (r *Record) SetSeverity(s int) {
	r.Severity = s
	r.revalidate()
}

// SetTags replaces additional tags from their raw key:value sources.
func (r *Record) SetTags(sources []string) {
	r.AdditionalTags = make([]types.Tag, 0, len(sources))
	for _, s := range sources {
		r.AdditionalTags = append(r.AdditionalTags, types.ParseTag(s))
	}
	r.revalidate()
}

// SetEnabled toggles the rule.
func (r *Record) SetEnabled(enabled bool) {
	r.Enabled = enabled
	r.revalidate()
}

// SubmitParams serializes the record for the batch-update collaborator.
// The itsm action is omitted when ActionID is 0.
func (r *Record) SubmitParams() types.RuleParams {
	noticeEnabled := r.Escalation.NoticeEnabled
	userGroups := slices.Clone(r.UserGroups)
	if userGroups == nil {
		userGroups = []int64{}
	}
	escalationGroups := slices.Clone(r.Escalation.UserGroups)
	if escalationGroups == nil {
		escalationGroups = []int64{}
	}

	p := types.RuleParams{
		ID:         r.ID,
		UserGroups: userGroups,
		Conditions: rules.NormalizeChain(r.RealConditions()),
		Actions: []types.ActionParams{{
			ActionType: types.ActionNotice,
			IsEnabled:  &noticeEnabled,
			UpgradeConfig: &types.UpgradeConfig{
				IsEnabled:       r.Escalation.Enabled,
				UserGroups:      escalationGroups,
				UpgradeInterval: r.Escalation.IntervalMinutes,
			},
		}},
		AlertSeverity:  r.Severity,
		AdditionalTags: make([]types.Tag, 0, len(r.AdditionalTags)),
		IsEnabled:      r.Enabled,
	}
	if r.ActionID != 0 {
		p.Actions = append(p.Actions, types.ActionParams{ActionType: types.ActionITSM, ActionID: r.ActionID})
	}
	for _, t := range r.AdditionalTags {
		p.AdditionalTags = append(p.AdditionalTags, types.Tag{Key: t.Key, Value: t.Value})
	}
	return p
}
