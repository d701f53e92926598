// internal/dispatch/group.go
package dispatch

import (
	"fmt"
	"time"

	"github.com/solatis/dispatchkeeper/internal/rules"
	"github.com/solatis/dispatchkeeper/internal/types"
)

/*
 * Rule groups.
 *
 * A Group is a prioritized, named set of rules edited together and submitted
 * as one batch. It owns the rule rows, the group's unified conditions, the
 * pending unified-settings conflict, and the Tracker that diffs rows against
 * the last saved state.
 *
 * Unified conditions are the leading conditions shared by every rule. They
 * are seeded from the stored rules when the group's public_conditions
 * setting is on, applied in bulk by ConfirmUnified, and guarded: editing a
 * rule's copy of a unified condition is applied provisionally until the
 * caller confirms or cancels it.
 *
 * The group is not safe for concurrent use.
 */

// Group is an editable rule group.
type Group struct {
	ID               int64
	Name             string
	Priority         int
	EditAllowed      bool
	PublicConditions bool
	UpdateUser       string
	UpdateTime       time.Time

	Rules    []*Record
	Expanded bool
	Unified  []types.Condition

	conflict     rules.ConflictBuffer
	conflictRule int
	tracker      *Tracker
}

// NewGroup wraps group info in a shell holding one placeholder row.
func NewGroup(info types.GroupInfo) *Group {
	g := &Group{}
	g.setInfo(info)
	g.Rules = []*Record{NewEmptyRecord()}
	g.tracker = newTracker(g)
	return g
}

func (g *Group) setInfo(info types.GroupInfo) {
	g.ID = info.ID
	g.Name = info.Name
	g.Priority = info.Priority
	g.EditAllowed = info.EditAllowed
	g.PublicConditions = info.Settings.PublicConditions
	g.UpdateUser = info.UpdateUser
	g.UpdateTime = info.UpdateTime
}

// Info returns the group's server shape without rules.
func (g *Group) Info() types.GroupInfo {
	return types.GroupInfo{
		ID:          g.ID,
		Name:        g.Name,
		Priority:    g.Priority,
		EditAllowed: g.EditAllowed,
		Settings:    types.GroupSettings{PublicConditions: len(g.Unified) > 0},
		UpdateUser:  g.UpdateUser,
		UpdateTime:  g.UpdateTime,
	}
}

// LoadRules replaces the rows with stored rules, seeds unified conditions
// and takes a fresh baseline.
func (g *Group) LoadRules(params []types.RuleParams) {
	g.conflict = rules.ConflictBuffer{}
	g.Rules = recordsFrom(params)
	g.Unified = nil
	g.InitUnified()
	g.tracker = newTracker(g)
}

// Saved records a successful save: info is updated from the server and the
// saved rules become the new baseline.
func (g *Group) Saved(info types.GroupInfo, saved []types.RuleParams) {
	g.setInfo(info)
	g.tracker.Commit(saved)
}

// Tracker returns the group's edit tracker.
func (g *Group) Tracker() *Tracker {
	return g.tracker
}

// IsNew reports whether the group has not been saved yet.
func (g *Group) IsNew() bool {
	return g.ID == 0
}

// ToggleExpanded flips the expanded display state.
func (g *Group) ToggleExpanded() {
	g.Expanded = !g.Expanded
}

// AllValid reports whether every rule passes validation.
func (g *Group) AllValid() bool {
	for _, r := range g.Rules {
		if !r.IsValid() {
			return false
		}
	}
	return true
}

// CanDebug reports whether the group may be probed: every rule is valid, or
// the group holds only the placeholder row.
func (g *Group) CanDebug() bool {
	if len(g.Rules) == 1 && g.Rules[0].IsEmpty() {
		return true
	}
	return g.AllValid()
}

// submittable returns the rules sent to collaborators; placeholder rows stay local.
func (g *Group) submittable() []*Record {
	out := make([]*Record, 0, len(g.Rules))
	for _, r := range g.Rules {
		if !r.IsEmpty() {
			out = append(out, r)
		}
	}
	return out
}

// SubmitRules returns the batch-update payload.
func (g *Group) SubmitRules() []types.RuleParams {
	recs := g.submittable()
	out := make([]types.RuleParams, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.SubmitParams())
	}
	return out
}

// DebugRequest snapshots the group into a match-debug payload.
func (g *Group) DebugRequest() types.DebugRequest {
	return types.DebugRequest{
		AssignGroupID: g.ID,
		Priority:      g.Priority,
		GroupName:     g.Name,
		Rules:         g.SubmitRules(),
		Settings:      types.GroupSettings{PublicConditions: len(g.Unified) > 0},
	}
}

// DeletionDebugRequest previews dispatch without the given groups.
func DeletionDebugRequest(groupIDs ...int64) types.DebugRequest {
	return types.DebugRequest{ExcludeGroups: append([]int64(nil), groupIDs...)}
}

// ApplyHits attaches probe hit counts as an overlay. Hit indices refer to
// the submitted rules; placeholder rows get no count.
func (g *Group) ApplyHits(hits *types.GroupHits) {
	byIndex := map[int]int{}
	if hits != nil {
		for _, h := range hits.Rules {
			byIndex[h.Index] = h.AlertsCount
		}
	}
	i := 0
	for _, r := range g.Rules {
		if r.IsEmpty() {
			r.HitCount = nil
			continue
		}
		n := byIndex[i]
		r.HitCount = &n
		i++
	}
}

// ClearHits drops the hit-count overlay.
func (g *Group) ClearHits() {
	for _, r := range g.Rules {
		r.HitCount = nil
	}
}

// chains returns every rule's real conditions.
func (g *Group) chains() [][]types.Condition {
	out := make([][]types.Condition, len(g.Rules))
	for i, r := range g.Rules {
		out[i] = r.RealConditions()
	}
	return out
}

// InitUnified seeds unified conditions from the rules when the group's
// public_conditions setting is on.
func (g *Group) InitUnified() {
	if !g.PublicConditions {
		return
	}
	g.Unified = rules.CommonSubset(g.chains())
}

// SuggestUnified offers the rules' common conditions as a unified set. It
// needs at least three rules, a non-empty common subset, and a subset that
// differs from the current unified conditions.
func (g *Group) SuggestUnified() ([]types.Condition, bool) {
	if len(g.Rules) < 3 {
		return nil, false
	}
	common := rules.CommonSubset(g.chains())
	if len(common) == 0 || sameConditionSet(common, g.Unified) {
		return nil, false
	}
	return common, true
}

func sameConditionSet(a, b []types.Condition) bool {
	if len(a) != len(b) {
		return false
	}
	for _, c := range a {
		if !rules.Includes(c, b) {
			return false
		}
	}
	for _, c := range b {
		if !rules.Includes(c, a) {
			return false
		}
	}
	return true
}

// ConfirmUnified applies target as the group's unified conditions. With no
// prior unified set, target is prepended to every rule. Otherwise each rule's
// current unified conditions are replaced by target at the front; rules that
// no longer hold the full prior set get target prepended.
func (g *Group) ConfirmUnified(target []types.Condition) {
	g.settleConflict()
	find := g.Unified
	for _, r := range g.Rules {
		var next []types.Condition
		if len(find) == 0 {
			next = rules.PrependConditions(r.Conditions, target)
		} else if out, ok := rules.FindAndReplace(r.Conditions, find, target, true); ok {
			next = rules.NormalizeChain(out)
		} else {
			next = rules.PrependConditions(r.Conditions, target)
		}
		r.SetConditions(next)
	}
	g.Unified = types.CloneConditions(target)
	g.tracker.Refresh()
}

// AcceptSuggestion adopts a suggested subset as the unified conditions,
// prepending any member a rule lacks.
func (g *Group) AcceptSuggestion(target []types.Condition) {
	g.settleConflict()
	for _, r := range g.Rules {
		r.SetConditions(rules.PrependConditions(r.Conditions, target))
	}
	g.Unified = types.CloneConditions(target)
	g.tracker.Refresh()
}

// ClearUnified drops the unified conditions without touching the rules.
func (g *Group) ClearUnified() {
	g.settleConflict()
	g.Unified = nil
}

// ApplyConditionEdit replaces a rule's condition chain after an edit at
// condIndex. When the edited position held a unified condition the change is
// applied provisionally: the decision carries NeedsConfirmation and the
// prior chain is buffered until ConfirmEdit or CancelEdit. Until then
// further condition edits fail with types.ErrConflictPending and change
// nothing.
func (g *Group) ApplyConditionEdit(ruleIndex, condIndex int, next []types.Condition) (rules.EditDecision, error) {
	if ruleIndex < 0 || ruleIndex >= len(g.Rules) {
		return rules.EditDecision{}, fmt.Errorf("%w: %d", types.ErrRuleIndex, ruleIndex)
	}
	if g.conflict.Pending() {
		return rules.EditDecision{}, fmt.Errorf("%w: rule %d", types.ErrConflictPending, g.conflictRule)
	}

	r := g.Rules[ruleIndex]
	d := rules.GuardEdit(r.Conditions, condIndex, g.Unified)
	r.SetConditions(next)
	r.Changed = g.tracker.Diff(r)

	if d.NeedsConfirmation {
		g.conflict.Hold(d)
		g.conflictRule = ruleIndex
	}
	return d, nil
}

// ConflictPending reports whether an edit awaits confirmation.
func (g *Group) ConflictPending() bool {
	return g.conflict.Pending()
}

// ConfirmEdit keeps a provisional edit and recomputes the unified
// conditions from the rules.
func (g *Group) ConfirmEdit() bool {
	if !g.conflict.Confirm() {
		return false
	}
	g.Unified = rules.CommonSubset(g.chains())
	return true
}

// CancelEdit restores the chain buffered before a provisional edit.
func (g *Group) CancelEdit() bool {
	restored, ok := g.conflict.Cancel()
	if !ok {
		return false
	}
	r := g.Rules[g.conflictRule]
	r.SetConditions(restored)
	r.Changed = g.tracker.Diff(r)
	return true
}

// settleConflict confirms an unanswered provisional edit before the rows
// change shape.
func (g *Group) settleConflict() {
	if g.conflict.Pending() {
		g.ConfirmEdit()
	}
}

// SetChecked marks one row for batch operations.
func (g *Group) SetChecked(index int, checked bool) error {
	if index < 0 || index >= len(g.Rules) {
		return fmt.Errorf("%w: %d", types.ErrRuleIndex, index)
	}
	g.Rules[index].Checked = checked
	return nil
}

// CheckAll marks or clears every row.
func (g *Group) CheckAll(checked bool) {
	for _, r := range g.Rules {
		r.Checked = checked
	}
}

// CheckedCount returns the number of checked rows.
func (g *Group) CheckedCount() int {
	n := 0
	for _, r := range g.Rules {
		if r.Checked {
			n++
		}
	}
	return n
}

// BatchEdit applies fn to every checked row and returns how many were edited.
func (g *Group) BatchEdit(fn func(r *Record)) int {
	g.settleConflict()
	n := 0
	for i, r := range g.Rules {
		if !r.Checked {
			continue
		}
		_ = g.tracker.Edit(i, fn)
		n++
	}
	return n
}

// FindReplaceChecked substitutes find with replace in every checked row that
// holds the full find set, and returns how many rows changed.
func (g *Group) FindReplaceChecked(find, replace []types.Condition) int {
	g.settleConflict()
	n := 0
	for _, r := range g.Rules {
		if !r.Checked {
			continue
		}
		out, ok := rules.FindAndReplace(r.Conditions, find, replace, false)
		if !ok {
			continue
		}
		r.SetConditions(rules.NormalizeChain(out))
		r.Changed = g.tracker.Diff(r)
		n++
	}
	return n
}

// StrategyIDs lists the alert strategies the group's rules pin.
func (g *Group) StrategyIDs() []string {
	return rules.StrategyIDs(g.chains()...)
}
