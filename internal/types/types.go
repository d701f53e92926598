// Package types provides domain models shared across dispatchkeeper components.
//
// Wire-shape types (RuleParams, GroupInfo, DebugRequest) mirror the JSON the
// assign-rule service accepts, so collaborators can marshal them directly.
// Editing state (records, groups, snapshots) lives in internal/dispatch; this
// package stays free of behaviour beyond parsing and cloning.
package types

import "time"

// Dimensions is the flat attribute map of an alert as seen by dispatch rules.
// Keys are condition fields such as "alert.name" or "tags.env".
type Dimensions map[string]string

// Alert is a historical alert replayed by the match-debug probe.
type Alert struct {
	AlertID    string     `json:"alert_id" db:"alert_id"`
	Dimensions Dimensions `json:"dimensions"`
	CreatedAt  time.Time  `json:"created_at"`
}

// TimeWindow bounds the alerts a debug probe replays. Start is inclusive, End exclusive.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Limits enforced on rule groups and debug requests.
const (
	// MinPriority and MaxPriority bound a group priority; higher wins.
	MinPriority = 1
	MaxPriority = 10000

	// DefaultFirstPriority is assigned to the first group ever created.
	DefaultFirstPriority = 100

	// PriorityStep is the spacing used when suggesting a new group priority.
	PriorityStep = 5

	// MaxRulesPerGroup caps a single batch submission.
	MaxRulesPerGroup = 1000

	// MaxConditionsPerRule caps one rule's condition chain.
	MaxConditionsPerRule = 64

	// DefaultEscalationInterval is the escalation interval (minutes) of a fresh rule.
	DefaultEscalationInterval = 30

	// MaxSeverity is the highest severity override; 0 keeps the original severity.
	MaxSeverity = 3
)

// StrategyIDField is the condition field that pins a rule to alert strategies.
const StrategyIDField = "alert.strategy_id"
