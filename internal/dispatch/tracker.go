// internal/dispatch/tracker.go
package dispatch

import (
	"fmt"
	"slices"

	"github.com/solatis/dispatchkeeper/internal/rules"
	"github.com/solatis/dispatchkeeper/internal/types"
)

/*
 * Edit tracking.
 *
 * The Tracker keeps a frozen baseline of every rule as last loaded or saved,
 * keyed by identity, and derives per-field changed flags for the live rules
 * of its group.
 *
 * Identity classes:
 *   - Persisted (ID set): baseline from the last load or save; revertible.
 *   - Added (AddID set): baseline only for the placeholder row a group
 *     starts with; rows added later have none and read as fully changed.
 *   - Copied (CopyID set): baseline taken at copy time for display only;
 *     never revertible.
 *
 * Comparison rules per field:
 *   - additionalTags: key/value pairs only
 *   - upgradeConfig: full payload when escalation is on at both sides,
 *     otherwise only the enabled flag
 *   - conditions: chain equality over real conditions, values unordered
 *
 * Structural operations (add, copy, delete, revert) keep the invariant that
 * a group always holds at least one row.
 */

// Tracker derives changed state for one group's rules.
type Tracker struct {
	group    *Group
	baseline map[string]*Record
	count    int
}

func newTracker(g *Group) *Tracker {
	t := &Tracker{group: g}
	t.snapshot()
	return t
}

// snapshot replaces the baseline wholesale with the group's current rules.
func (t *Tracker) snapshot() {
	t.baseline = make(map[string]*Record, len(t.group.Rules))
	for _, r := range t.group.Rules {
		t.baseline[r.Key()] = frozen(r)
	}
	t.count = len(t.group.Rules)
	t.Refresh()
}

// frozen copies the routing fields of r without editing state.
func frozen(r *Record) *Record {
	out := r.Clone()
	out.Checked = false
	out.Changed = nil
	out.HitCount = nil
	return out
}

// Baseline returns the snapshot for r, if any.
func (t *Tracker) Baseline(r *Record) (*Record, bool) {
	base, ok := t.baseline[r.Key()]
	return base, ok
}

// Revertible reports whether r can be restored from a baseline.
func (t *Tracker) Revertible(r *Record) bool {
	if r.CopyID != "" {
		return false
	}
	_, ok := t.Baseline(r)
	return ok
}

// Diff computes per-field changed flags of r against its baseline.
// Without a baseline every field reads as changed.
func (t *Tracker) Diff(r *Record) map[Field]bool {
	out := make(map[Field]bool, len(DiffFields))
	base, ok := t.Baseline(r)
	if !ok {
		for _, f := range DiffFields {
			out[f] = true
		}
		return out
	}

	out[FieldUserGroups] = !slices.Equal(base.UserGroups, r.UserGroups)
	out[FieldConditions] = !rules.EqualChain(base.RealConditions(), r.RealConditions())
	out[FieldEscalation] = !sameEscalation(base.Escalation, r.Escalation)
	out[FieldActionID] = base.ActionID != r.ActionID
	out[FieldSeverity] = base.Severity != r.Severity
	out[FieldTags] = !slices.EqualFunc(base.AdditionalTags, r.AdditionalTags, func(a, b types.Tag) bool {
		return a.Key == b.Key && a.Value == b.Value
	})
	out[FieldEnabled] = base.Enabled != r.Enabled
	return out
}

func sameEscalation(a, b Escalation) bool {
	if !a.Enabled || !b.Enabled {
		return a.Enabled == b.Enabled
	}
	return a.NoticeEnabled == b.NoticeEnabled &&
		a.IntervalMinutes == b.IntervalMinutes &&
		slices.Equal(a.UserGroups, b.UserGroups)
}

// Refresh recomputes changed flags for every rule.
func (t *Tracker) Refresh() {
	for _, r := range t.group.Rules {
		r.Changed = t.Diff(r)
	}
}

// AnyChanged reports whether the group differs from its baseline: a rule
// was removed or added, or any rule has a changed field.
func (t *Tracker) AnyChanged() bool {
	if len(t.group.Rules) != t.count {
		return true
	}
	for _, r := range t.group.Rules {
		if r.AnyChanged() {
			return true
		}
	}
	return false
}

func (t *Tracker) rule(index int) (*Record, error) {
	if index < 0 || index >= len(t.group.Rules) {
		return nil, fmt.Errorf("%w: %d", types.ErrRuleIndex, index)
	}
	return t.group.Rules[index], nil
}

// Edit applies fn to the rule at index and re-derives its state.
func (t *Tracker) Edit(index int, fn func(r *Record)) error {
	r, err := t.rule(index)
	if err != nil {
		return err
	}
	fn(r)
	r.revalidate()
	r.Changed = t.Diff(r)
	return nil
}

// Delete removes the rule at index. The sole remaining rule is replaced by
// a fresh placeholder row instead; an added row keeps its AddID so it is
// compared with its own baseline.
func (t *Tracker) Delete(index int) error {
	r, err := t.rule(index)
	if err != nil {
		return err
	}
	t.group.settleConflict()
	if len(t.group.Rules) == 1 {
		placeholder := NewEmptyRecord()
		if r.AddID != "" {
			placeholder.AddID = r.AddID
		}
		t.group.Rules[0] = placeholder
	} else {
		t.group.Rules = slices.Delete(t.group.Rules, index, index+1)
	}
	t.Refresh()
	return nil
}

// Revert restores the rule at index from its baseline. It returns false and
// changes nothing when the rule is not revertible.
func (t *Tracker) Revert(index int) bool {
	r, err := t.rule(index)
	if err != nil || !t.Revertible(r) {
		return false
	}
	t.group.settleConflict()
	base, _ := t.Baseline(r)
	restored := base.Clone()
	restored.revalidate()
	restored.Changed = t.Diff(restored)
	t.group.Rules[index] = restored
	return true
}

// BatchRevert reverts every checked rule and returns how many were restored.
func (t *Tracker) BatchRevert() int {
	n := 0
	for i, r := range t.group.Rules {
		if r.Checked && t.Revert(i) {
			n++
		}
	}
	return n
}

// BatchDelete removes every checked rule and returns how many were removed.
// Removing all rules leaves one placeholder row.
func (t *Tracker) BatchDelete() int {
	t.group.settleConflict()
	kept := make([]*Record, 0, len(t.group.Rules))
	for _, r := range t.group.Rules {
		if !r.Checked {
			kept = append(kept, r)
		}
	}
	removed := len(t.group.Rules) - len(kept)
	if len(kept) == 0 {
		kept = append(kept, NewEmptyRecord())
	}
	t.group.Rules = kept
	t.Refresh()
	return removed
}

// Add inserts a new rule after index, seeded with the group's unified
// conditions. An index outside the group appends.
func (t *Tracker) Add(after int) *Record {
	t.group.settleConflict()
	r := NewEmptyRecord()
	r.SetConditions(rules.NormalizeChain(t.group.Unified))

	pos := after + 1
	if after < 0 || pos > len(t.group.Rules) {
		pos = len(t.group.Rules)
	}
	t.group.Rules = slices.Insert(t.group.Rules, pos, r)
	r.Changed = t.Diff(r)
	return r
}

// Copy inserts a deep copy of the rule at index right after it. The copy
// loses its persisted identity and gets a fresh CopyID.
func (t *Tracker) Copy(index int) (*Record, error) {
	src, err := t.rule(index)
	if err != nil {
		return nil, err
	}
	t.group.settleConflict()

	cp := src.Clone()
	cp.ID = 0
	cp.AddID = ""
	cp.CopyID = types.NewLocalID()
	cp.Checked = false
	cp.HitCount = nil
	cp.revalidate()

	t.baseline[cp.Key()] = frozen(cp)
	t.group.Rules = slices.Insert(t.group.Rules, index+1, cp)
	cp.Changed = t.Diff(cp)
	return cp, nil
}

// Append adds imported rules at the end of the group as new rows. Stored ids
// are dropped, and a lone placeholder row is replaced.
func (t *Tracker) Append(params []types.RuleParams) []*Record {
	if len(params) == 0 {
		return nil
	}
	t.group.settleConflict()
	if len(t.group.Rules) == 1 && t.group.Rules[0].IsEmpty() {
		t.group.Rules = t.group.Rules[:0]
	}
	added := make([]*Record, 0, len(params))
	for _, p := range params {
		p.ID = 0
		added = append(added, NewRecord(p))
	}
	t.group.Rules = append(t.group.Rules, added...)
	t.Refresh()
	return added
}

// Commit replaces the group's rules with the saved server state and takes a
// new baseline.
func (t *Tracker) Commit(saved []types.RuleParams) {
	t.group.settleConflict()
	t.group.Rules = recordsFrom(saved)
	t.snapshot()
}

// recordsFrom builds records from server shape; an empty list yields the
// placeholder row.
func recordsFrom(params []types.RuleParams) []*Record {
	if len(params) == 0 {
		return []*Record{NewEmptyRecord()}
	}
	out := make([]*Record, 0, len(params))
	for _, p := range params {
		out = append(out, NewRecord(p))
	}
	return out
}
