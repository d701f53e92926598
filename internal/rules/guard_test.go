package rules

import (
	"reflect"
	"testing"

	"github.com/solatis/dispatchkeeper/internal/types"
)

func TestGuardEdit(t *testing.T) {
	shared := cond("alert.name", types.OpEq, "cpu")
	own := cond("tags.env", types.OpEq, "prod")
	before := []types.Condition{shared, own}

	tests := []struct {
		name    string
		index   int
		unified []types.Condition
		confirm bool
	}{
		{"no unified conditions", 0, nil, false},
		{"edited condition is unified", 0, []types.Condition{shared}, true},
		{"edited condition is not unified", 1, []types.Condition{shared}, false},
		{"appending new condition", 2, []types.Condition{shared}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := GuardEdit(before, tt.index, tt.unified)
			if d.NeedsConfirmation != tt.confirm {
				t.Errorf("NeedsConfirmation = %v, want %v", d.NeedsConfirmation, tt.confirm)
			}
			if d.Proceed == tt.confirm {
				t.Errorf("Proceed = %v, want %v", d.Proceed, !tt.confirm)
			}
			if tt.confirm && !reflect.DeepEqual(d.Buffered, before) {
				t.Errorf("Buffered = %+v, want %+v", d.Buffered, before)
			}
		})
	}
}

func TestGuardEdit_DeduplicatesValues(t *testing.T) {
	before := []types.Condition{cond("alert.name", types.OpEq, "cpu", "cpu")}
	unified := []types.Condition{cond("alert.name", types.OpEq, "cpu")}

	d := GuardEdit(before, 0, unified)
	if !d.NeedsConfirmation {
		t.Errorf("NeedsConfirmation = false, want true")
	}
}

func TestGuardEdit_BufferIsDeepCopy(t *testing.T) {
	before := []types.Condition{cond("alert.name", types.OpEq, "cpu")}
	d := GuardEdit(before, 0, before)

	before[0].Values[0] = "mem"
	if d.Buffered[0].Values[0] != "cpu" {
		t.Errorf("Buffered value = %q, want cpu", d.Buffered[0].Values[0])
	}
}

func TestConflictBuffer(t *testing.T) {
	before := []types.Condition{cond("alert.name", types.OpEq, "cpu")}

	var b ConflictBuffer
	b.Hold(EditDecision{Proceed: true})
	if b.Pending() {
		t.Fatalf("Pending() = true after proceed decision, want false")
	}

	b.Hold(GuardEdit(before, 0, before))
	if !b.Pending() {
		t.Fatalf("Pending() = false, want true")
	}
	if b.Index() != 0 {
		t.Errorf("Index() = %d, want 0", b.Index())
	}

	restored, ok := b.Cancel()
	if !ok {
		t.Fatalf("Cancel() ok = false, want true")
	}
	if !reflect.DeepEqual(restored, before) {
		t.Errorf("Cancel() = %+v, want %+v", restored, before)
	}
	if b.Pending() {
		t.Errorf("Pending() after Cancel = true, want false")
	}

	b.Hold(GuardEdit(before, 0, before))
	if !b.Confirm() {
		t.Errorf("Confirm() = false, want true")
	}
	if b.Confirm() {
		t.Errorf("second Confirm() = true, want false")
	}
	if _, ok := b.Cancel(); ok {
		t.Errorf("Cancel() on empty buffer ok = true, want false")
	}
}
