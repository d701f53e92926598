package types

import (
	"strings"
	"time"
)

// Action types carried in a rule's actions list.
const (
	ActionNotice = "notice"
	ActionITSM   = "itsm"
)

// UpgradeConfig is the escalation payload of a notice action.
type UpgradeConfig struct {
	IsEnabled       bool    `json:"is_enabled" yaml:"is_enabled"`
	UserGroups      []int64 `json:"user_groups" yaml:"user_groups"`
	UpgradeInterval int     `json:"upgrade_interval" yaml:"upgrade_interval"`
}

// ActionParams is one entry of a rule's actions list.
// Notice entries carry IsEnabled and UpgradeConfig; itsm entries carry ActionID.
type ActionParams struct {
	ActionType    string         `json:"action_type" yaml:"action_type"`
	IsEnabled     *bool          `json:"is_enabled,omitempty" yaml:"is_enabled,omitempty"`
	UpgradeConfig *UpgradeConfig `json:"upgrade_config,omitempty" yaml:"upgrade_config,omitempty"`
	ActionID      int64          `json:"action_id,omitempty" yaml:"action_id,omitempty"`
}

// RuleParams is the server shape of a dispatch rule, used for both load and submit.
type RuleParams struct {
	ID             int64          `json:"id,omitempty" yaml:"id,omitempty"`
	UserGroups     []int64        `json:"user_groups" yaml:"user_groups"`
	Conditions     []Condition    `json:"conditions" yaml:"conditions"`
	Actions        []ActionParams `json:"actions" yaml:"actions"`
	AlertSeverity  int            `json:"alert_severity" yaml:"alert_severity"`
	AdditionalTags []Tag          `json:"additional_tags" yaml:"additional_tags"`
	IsEnabled      bool           `json:"is_enabled" yaml:"is_enabled"`
}

// Action returns the first action of the given type, or nil.
func (p RuleParams) Action(actionType string) *ActionParams {
	for i := range p.Actions {
		if p.Actions[i].ActionType == actionType {
			return &p.Actions[i]
		}
	}
	return nil
}

// GroupSettings holds per-group options.
type GroupSettings struct {
	// PublicConditions is set when the group's rules share a unified
	// leading condition set.
	PublicConditions bool `json:"public_conditions" yaml:"public_conditions"`
}

// GroupInfo is the server shape of a rule group without its rules.
type GroupInfo struct {
	ID          int64         `json:"id" yaml:"id"`
	Name        string        `json:"name" yaml:"name"`
	Priority    int           `json:"priority" yaml:"priority"`
	EditAllowed bool          `json:"edit_allowed" yaml:"edit_allowed"`
	Settings    GroupSettings `json:"settings" yaml:"settings"`
	UpdateUser  string        `json:"update_user,omitempty" yaml:"update_user,omitempty"`
	UpdateTime  time.Time     `json:"update_time,omitempty" yaml:"update_time,omitempty"`
}

// Validate checks the fields a group must carry before it is stored.
func (g GroupInfo) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyGroupName
	}
	if g.Priority < MinPriority || g.Priority > MaxPriority {
		return ErrInvalidPriority
	}
	return nil
}

// DebugRequest is the payload of a match-debug probe.
//
// A group probe carries the group's rules in submit shape; AssignGroupID is
// zero for a group that has not been saved yet. A deletion probe carries only
// ExcludeGroups and previews dispatch as if those groups did not exist.
type DebugRequest struct {
	AssignGroupID int64         `json:"assign_group_id,omitempty"`
	Priority      int           `json:"priority,omitempty"`
	GroupName     string        `json:"group_name,omitempty"`
	Rules         []RuleParams  `json:"rules,omitempty"`
	Settings      GroupSettings `json:"settings"`
	ExcludeGroups []int64       `json:"exclude_groups,omitempty"`
}

// IsDeletion reports whether the request previews group removal.
func (r DebugRequest) IsDeletion() bool {
	return len(r.ExcludeGroups) > 0 && len(r.Rules) == 0
}

// RuleHits counts the alerts a single rule claimed during a probe.
// Index is the rule's position in the probed group.
type RuleHits struct {
	Index       int   `json:"index"`
	RuleID      int64 `json:"rule_id,omitempty"`
	AlertsCount int   `json:"alerts_count"`
}

// GroupHits summarizes one group's share of the replayed alerts.
type GroupHits struct {
	GroupID     int64      `json:"group_id"`
	GroupName   string     `json:"group_name"`
	Priority    int        `json:"priority"`
	AlertsCount int        `json:"alerts_count"`
	Rules       []RuleHits `json:"rules"`
}

// DebugResponse is the result of a match-debug probe.
type DebugResponse struct {
	TotalAlerts int         `json:"total_alerts"`
	Unmatched   int         `json:"unmatched"`
	Groups      []GroupHits `json:"groups"`
}

// Group returns the hits for a group id, or nil.
func (r DebugResponse) Group(id int64) *GroupHits {
	for i := range r.Groups {
		if r.Groups[i].GroupID == id {
			return &r.Groups[i]
		}
	}
	return nil
}
