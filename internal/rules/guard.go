// internal/rules/guard.go
package rules

import "github.com/solatis/dispatchkeeper/internal/types"

/*
 * Unified-settings conflict guard.
 *
 * A group may carry unified conditions: a subset shared by its rules and
 * applied in bulk. Editing one rule's copy of such a condition would silently
 * break that sharing, so edits touching a unified condition need operator
 * confirmation.
 *
 * GuardEdit is a pure decision. It inspects the chain before the mutation and
 * returns either Proceed or NeedsConfirmation with a deep copy of the chain
 * to restore on cancel. ConflictBuffer holds one pending decision until the
 * caller confirms or cancels it.
 */

// EditDecision is the outcome of GuardEdit. Exactly one of Proceed and
// NeedsConfirmation is set.
type EditDecision struct {
	Proceed           bool
	NeedsConfirmation bool

	// Index is the edited position.
	Index int

	// Buffered is the full pre-mutation chain, set with NeedsConfirmation.
	Buffered []types.Condition
}

// GuardEdit decides whether editing before[index] conflicts with unified.
// The condition's values are deduplicated before the membership test.
// Positions outside before (appending a new clause) always proceed.
func GuardEdit(before []types.Condition, index int, unified []types.Condition) EditDecision {
	if len(unified) == 0 || index < 0 || index >= len(before) {
		return EditDecision{Proceed: true, Index: index}
	}

	current := before[index].Clone()
	current.Values = uniqueValues(current.Values)
	if !Includes(current, unified) {
		return EditDecision{Proceed: true, Index: index}
	}

	return EditDecision{
		NeedsConfirmation: true,
		Index:             index,
		Buffered:          types.CloneConditions(before),
	}
}

// ConflictBuffer holds at most one decision awaiting confirmation.
type ConflictBuffer struct {
	pending *EditDecision
}

// Hold stores a decision that needs confirmation, replacing any earlier one.
// Decisions that may proceed are ignored.
func (b *ConflictBuffer) Hold(d EditDecision) {
	if !d.NeedsConfirmation {
		return
	}
	b.pending = &d
}

// Pending reports whether a decision awaits confirmation.
func (b *ConflictBuffer) Pending() bool {
	return b.pending != nil
}

// Index returns the edited position of the pending decision, or -1.
func (b *ConflictBuffer) Index() int {
	if b.pending == nil {
		return -1
	}
	return b.pending.Index
}

// Confirm discards the buffered chain. It reports whether anything was pending.
func (b *ConflictBuffer) Confirm() bool {
	ok := b.pending != nil
	b.pending = nil
	return ok
}

// Cancel discards the pending decision and returns the chain to restore.
func (b *ConflictBuffer) Cancel() ([]types.Condition, bool) {
	if b.pending == nil {
		return nil, false
	}
	restored := types.CloneConditions(b.pending.Buffered)
	b.pending = nil
	return restored, true
}
