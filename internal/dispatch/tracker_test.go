package dispatch

import (
	"reflect"
	"testing"

	"github.com/solatis/dispatchkeeper/internal/types"
)

func loadedGroup(ids ...int64) *Group {
	g := NewGroup(types.GroupInfo{ID: 5, Name: "ops", Priority: 100, EditAllowed: true})
	params := make([]types.RuleParams, 0, len(ids))
	for _, id := range ids {
		params = append(params, storedRule(id))
	}
	g.LoadRules(params)
	return g
}

func TestTracker_FreshLoadUnchanged(t *testing.T) {
	g := loadedGroup(1, 2)
	tr := g.Tracker()

	if tr.AnyChanged() {
		t.Errorf("AnyChanged() = true after load, want false")
	}
	for i, r := range g.Rules {
		if r.AnyChanged() {
			t.Errorf("Rules[%d].Changed = %v, want all false", i, r.Changed)
		}
	}
}

func TestTracker_DiffFields(t *testing.T) {
	g := loadedGroup(1)
	tr := g.Tracker()

	if err := tr.Edit(0, func(r *Record) {
		r.SetSeverity(1)
		r.SetTags([]string{"team=sre"})
	}); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}

	r := g.Rules[0]
	if !r.Changed[FieldSeverity] {
		t.Errorf("Changed[%s] = false, want true", FieldSeverity)
	}
	if r.Changed[FieldTags] {
		t.Errorf("Changed[%s] = true, want false (same key and value)", FieldTags)
	}
	if r.Changed[FieldConditions] {
		t.Errorf("Changed[%s] = true, want false", FieldConditions)
	}
}

func TestTracker_EscalationComparedOnlyWhenEnabled(t *testing.T) {
	rule := storedRule(1)
	rule.Actions[0].UpgradeConfig.IsEnabled = false
	g := NewGroup(types.GroupInfo{ID: 5, Name: "ops", Priority: 100})
	g.LoadRules([]types.RuleParams{rule})
	tr := g.Tracker()

	_ = tr.Edit(0, func(r *Record) {
		e := r.Escalation
		e.IntervalMinutes = 5
		r.SetEscalation(e)
	})
	if g.Rules[0].Changed[FieldEscalation] {
		t.Errorf("Changed[%s] = true for payload edit of disabled escalation", FieldEscalation)
	}

	_ = tr.Edit(0, func(r *Record) {
		e := r.Escalation
		e.Enabled = true
		r.SetEscalation(e)
	})
	if !g.Rules[0].Changed[FieldEscalation] {
		t.Errorf("Changed[%s] = false after enabling escalation", FieldEscalation)
	}
}

func TestTracker_RevertPersisted(t *testing.T) {
	g := loadedGroup(1)
	tr := g.Tracker()
	base, _ := tr.Baseline(g.Rules[0])

	_ = tr.Edit(0, func(r *Record) {
		r.SetUserGroups([]int64{9})
		r.SetEnabled(false)
	})
	if !tr.AnyChanged() {
		t.Fatalf("AnyChanged() = false after edit")
	}

	if !tr.Revert(0) {
		t.Fatalf("Revert() = false, want true")
	}
	r := g.Rules[0]
	if r.AnyChanged() {
		t.Errorf("Changed = %v after revert, want all false", r.Changed)
	}
	if !reflect.DeepEqual(r.SubmitParams(), base.SubmitParams()) {
		t.Errorf("reverted rule = %+v, want %+v", r.SubmitParams(), base.SubmitParams())
	}
	if tr.AnyChanged() {
		t.Errorf("AnyChanged() = true after revert")
	}
}

func TestTracker_RevertAddedWithoutBaseline(t *testing.T) {
	g := loadedGroup(1)
	tr := g.Tracker()

	added := tr.Add(0)
	added.SetUserGroups([]int64{4})
	before := added.SubmitParams()

	if tr.Revertible(added) {
		t.Errorf("Revertible() = true for added rule without baseline")
	}
	if tr.Revert(1) {
		t.Errorf("Revert() = true, want no-op")
	}
	if !reflect.DeepEqual(g.Rules[1].SubmitParams(), before) {
		t.Errorf("added rule changed by no-op revert")
	}
	for _, f := range DiffFields {
		if !added.Changed[f] {
			t.Errorf("Changed[%s] = false for rule without baseline", f)
		}
	}
}

func TestTracker_PlaceholderRowIsRevertible(t *testing.T) {
	g := NewGroup(types.GroupInfo{Name: "new", Priority: 100})
	tr := g.Tracker()

	_ = tr.Edit(0, func(r *Record) { r.SetSeverity(3) })
	if !tr.Revert(0) {
		t.Fatalf("Revert() = false for placeholder row")
	}
	if !g.Rules[0].IsEmpty() {
		t.Errorf("IsEmpty() = false after revert")
	}
}

func TestTracker_DeleteLastKeepsPlaceholder(t *testing.T) {
	g := loadedGroup(1)
	tr := g.Tracker()

	if err := tr.Delete(0); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(g.Rules) != 1 {
		t.Fatalf("len(Rules) = %d, want 1", len(g.Rules))
	}
	r := g.Rules[0]
	if !r.IsEmpty() || r.AddID == "" || r.ID != 0 {
		t.Errorf("Rules[0] = %+v, want fresh placeholder", r)
	}
	if !g.CanDebug() {
		t.Errorf("CanDebug() = false for sole placeholder")
	}
}

func TestTracker_DeleteUntouchedPlaceholder(t *testing.T) {
	g := NewGroup(types.GroupInfo{ID: 1, Name: "ops", Priority: 100})
	g.LoadRules(nil)
	tr := g.Tracker()
	if tr.AnyChanged() {
		t.Fatalf("AnyChanged() = true for a fresh group")
	}
	key := g.Rules[0].Key()

	if err := tr.Delete(0); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if tr.AnyChanged() {
		t.Errorf("AnyChanged() = true after deleting the untouched placeholder")
	}
	if got := g.Rules[0].Key(); got != key {
		t.Errorf("placeholder key = %q, want %q", got, key)
	}
}

func TestTracker_DeleteEditedPlaceholderRestoresIt(t *testing.T) {
	g := NewGroup(types.GroupInfo{ID: 1, Name: "ops", Priority: 100})
	g.LoadRules(nil)
	tr := g.Tracker()
	if err := tr.Edit(0, func(r *Record) { r.SetUserGroups([]int64{7}) }); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if !tr.AnyChanged() {
		t.Fatalf("AnyChanged() = false after edit")
	}

	if err := tr.Delete(0); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if tr.AnyChanged() {
		t.Errorf("AnyChanged() = true once the edited placeholder was reset")
	}
}

func TestTracker_DeleteRemovesRow(t *testing.T) {
	g := loadedGroup(1, 2, 3)
	tr := g.Tracker()

	if err := tr.Delete(1); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(g.Rules) != 2 || g.Rules[1].ID != 3 {
		t.Errorf("Rules ids = [%d %d], want [1 3]", g.Rules[0].ID, g.Rules[1].ID)
	}
	if !tr.AnyChanged() {
		t.Errorf("AnyChanged() = false after delete")
	}
	if err := tr.Delete(7); err == nil {
		t.Errorf("Delete(7) error = nil, want out of range")
	}
}

func TestTracker_Copy(t *testing.T) {
	g := loadedGroup(1, 2)
	tr := g.Tracker()

	cp, err := tr.Copy(0)
	if err != nil {
		t.Fatalf("Copy() error = %v", err)
	}
	if g.Rules[1] != cp {
		t.Fatalf("copy not inserted after source")
	}
	if cp.ID != 0 || cp.CopyID == "" || cp.AddID != "" {
		t.Errorf("copy identity = (%d, %q, %q), want only CopyID", cp.ID, cp.AddID, cp.CopyID)
	}
	if cp.AnyChanged() {
		t.Errorf("copy Changed = %v, want unchanged since copy", cp.Changed)
	}
	if tr.Revertible(cp) {
		t.Errorf("Revertible() = true for copy")
	}

	cp.SetSeverity(1)
	cp.Changed = tr.Diff(cp)
	if !cp.Changed[FieldSeverity] {
		t.Errorf("copy Changed[%s] = false after edit", FieldSeverity)
	}
	if g.Rules[0].Severity != 2 {
		t.Errorf("source severity = %d, want 2", g.Rules[0].Severity)
	}
}

func TestTracker_AddSeedsUnified(t *testing.T) {
	g := loadedGroup(1)
	g.Unified = []types.Condition{{Field: "alert.name", Operator: types.OpEq, Values: []string{"CPU high"}}}

	r := g.Tracker().Add(0)
	if len(g.Rules) != 2 || g.Rules[1] != r {
		t.Fatalf("added rule not at index 1")
	}
	if len(r.Conditions) != 1 || r.Conditions[0].Field != "alert.name" {
		t.Errorf("Conditions = %+v, want unified seed", r.Conditions)
	}
	g.Unified[0].Values[0] = "mutated"
	if r.Conditions[0].Values[0] != "CPU high" {
		t.Errorf("added rule shares unified storage")
	}
}

func TestTracker_BatchOperations(t *testing.T) {
	g := loadedGroup(1, 2, 3)
	tr := g.Tracker()

	for i := range g.Rules {
		_ = tr.Edit(i, func(r *Record) { r.SetSeverity(3) })
	}
	_ = g.SetChecked(0, true)
	_ = g.SetChecked(2, true)

	if n := tr.BatchRevert(); n != 2 {
		t.Errorf("BatchRevert() = %d, want 2", n)
	}
	if g.Rules[0].Severity != 2 || g.Rules[1].Severity != 3 || g.Rules[2].Severity != 2 {
		t.Errorf("severities = [%d %d %d], want [2 3 2]", g.Rules[0].Severity, g.Rules[1].Severity, g.Rules[2].Severity)
	}

	g.CheckAll(true)
	if n := tr.BatchDelete(); n != 3 {
		t.Errorf("BatchDelete() = %d, want 3", n)
	}
	if len(g.Rules) != 1 || !g.Rules[0].IsEmpty() {
		t.Errorf("Rules after deleting all = %d rows, want one placeholder", len(g.Rules))
	}
}

func TestTracker_Commit(t *testing.T) {
	g := loadedGroup(1)
	tr := g.Tracker()
	tr.Add(0).SetUserGroups([]int64{8})

	saved := []types.RuleParams{storedRule(1), storedRule(2)}
	g.Saved(types.GroupInfo{ID: 5, Name: "ops", Priority: 100}, saved)

	if tr.AnyChanged() {
		t.Errorf("AnyChanged() = true after commit")
	}
	if len(g.Rules) != 2 || g.Rules[1].ID != 2 {
		t.Errorf("Rules after commit = %d rows, want persisted [1 2]", len(g.Rules))
	}
	if !tr.Revertible(g.Rules[1]) {
		t.Errorf("Revertible() = false for newly persisted rule")
	}
}

func TestTracker_AppendImported(t *testing.T) {
	g := NewGroup(types.GroupInfo{ID: 5, Name: "ops", Priority: 100})
	tr := g.Tracker()

	added := tr.Append([]types.RuleParams{storedRule(9), storedRule(10)})

	if len(added) != 2 || len(g.Rules) != 2 {
		t.Fatalf("Append() = %d added, %d rows, want 2 and 2 (placeholder replaced)", len(added), len(g.Rules))
	}
	for i, r := range g.Rules {
		if r.ID != 0 || r.AddID == "" {
			t.Errorf("Rules[%d] identity = (%d, %q), want an added row", i, r.ID, r.AddID)
		}
		if !r.Changed[FieldConditions] {
			t.Errorf("Rules[%d].Changed[%s] = false, want true", i, FieldConditions)
		}
	}
	if !tr.AnyChanged() {
		t.Errorf("AnyChanged() = false after import")
	}
}

func TestTracker_AppendKeepsExistingRows(t *testing.T) {
	g := loadedGroup(1)

	g.Tracker().Append([]types.RuleParams{storedRule(2)})

	if len(g.Rules) != 2 || g.Rules[0].ID != 1 {
		t.Fatalf("Rules = %d rows, want persisted rule 1 followed by the import", len(g.Rules))
	}
	if g.Rules[0].AnyChanged() {
		t.Errorf("Rules[0].Changed = %v, want all false", g.Rules[0].Changed)
	}
	if got := g.Tracker().Append(nil); got != nil {
		t.Errorf("Append(nil) = %v, want nil", got)
	}
}
