// internal/rules/algebra.go
package rules

import (
	"sort"

	"github.com/solatis/dispatchkeeper/internal/types"
)

/*
 * Condition algebra.
 *
 * Pure set operations over condition lists: equality, membership,
 * deduplication, merging by field, and find/replace. Every function returns
 * a fresh slice of cloned conditions; inputs are never mutated.
 *
 * Equality: two conditions are equal when field and operator match and the
 * value lists hold the same multiset of strings. Value order never matters.
 * Connectors are not part of condition equality; EqualChain compares them.
 *
 * Order: results preserve the first-appearance order of the input, since
 * callers render conditions positionally and bulk edits rely on first match.
 */

// Equal reports whether two conditions constrain the same field the same way.
func Equal(a, b types.Condition) bool {
	if a.Field != b.Field || a.Operator != b.Operator {
		return false
	}
	return sameValues(a.Values, b.Values)
}

// sameValues compares two value lists as multisets via sorted copies.
func sameValues(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string(nil), a...)
	sb := append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

// Includes reports whether any element of haystack equals needle.
func Includes(needle types.Condition, haystack []types.Condition) bool {
	return indexOf(haystack, needle) >= 0
}

func indexOf(list []types.Condition, c types.Condition) int {
	for i := range list {
		if Equal(list[i], c) {
			return i
		}
	}
	return -1
}

// Deduplicate drops conditions equal to an earlier one. The first occurrence
// keeps its position and connector.
func Deduplicate(list []types.Condition) []types.Condition {
	out := make([]types.Condition, 0, len(list))
	for _, c := range list {
		if Includes(c, out) {
			continue
		}
		out = append(out, c.Clone())
	}
	return out
}

// MergeByField folds conditions sharing field and operator into the entry
// of first appearance, concatenating their values. Values are not
// deduplicated here; MergeAndDeduplicate does both steps.
func MergeByField(list []types.Condition) []types.Condition {
	out := make([]types.Condition, 0, len(list))
	for _, c := range list {
		merged := false
		for i := range out {
			if out[i].Field == c.Field && out[i].Operator == c.Operator {
				out[i].Values = append(out[i].Values, c.Values...)
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, c.Clone())
		}
	}
	return out
}

// MergeAndDeduplicate merges by field, removes repeated values inside each
// merged entry, then drops repeated conditions.
func MergeAndDeduplicate(list []types.Condition) []types.Condition {
	merged := MergeByField(list)
	for i := range merged {
		merged[i].Values = uniqueValues(merged[i].Values)
	}
	return Deduplicate(merged)
}

// uniqueValues keeps the first occurrence of every value.
func uniqueValues(values []string) []string {
	if values == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// FindAndReplace substitutes the conditions of find with replace.
//
// Source is scanned once. Each source element equal to a not-yet-matched
// find element is dropped, and the position of the last drop is remembered.
// If every find element was matched, replace is spliced in at the front
// (insertAtFront) or at the remembered position, and replaced is true.
// Otherwise source is returned unchanged (as a copy) and replaced is false.
//
// An empty find is fully matched: replace is prepended when insertAtFront,
// appended otherwise.
func FindAndReplace(source, find, replace []types.Condition, insertAtFront bool) ([]types.Condition, bool) {
	remaining := types.CloneConditions(find)
	kept := make([]types.Condition, 0, len(source))
	insertAt := -1

	for _, c := range source {
		if i := indexOf(remaining, c); i >= 0 {
			remaining = append(remaining[:i], remaining[i+1:]...)
			insertAt = len(kept)
			continue
		}
		kept = append(kept, c.Clone())
	}

	if len(remaining) > 0 {
		return types.CloneConditions(source), false
	}

	if insertAtFront {
		insertAt = 0
	} else if insertAt < 0 {
		insertAt = len(kept)
	}

	out := make([]types.Condition, 0, len(kept)+len(replace))
	out = append(out, kept[:insertAt]...)
	for _, c := range replace {
		out = append(out, c.Clone())
	}
	out = append(out, kept[insertAt:]...)
	return out, true
}

// PrependConditions puts add in front of list, skipping conditions list
// already includes, and normalizes connectors of the resulting chain.
func PrependConditions(list, add []types.Condition) []types.Condition {
	out := make([]types.Condition, 0, len(list)+len(add))
	for _, c := range Deduplicate(add) {
		if Includes(c, list) {
			continue
		}
		out = append(out, c)
	}
	out = append(out, types.CloneConditions(list)...)
	return NormalizeChain(out)
}

// NormalizeChain clears the first connector and defaults the rest to and.
func NormalizeChain(list []types.Condition) []types.Condition {
	out := types.CloneConditions(list)
	for i := range out {
		if i == 0 {
			out[i].Connector = ""
			continue
		}
		out[i].Connector = out[i].EffectiveConnector()
	}
	return out
}

// EqualChain reports whether two chains are position-by-position equal,
// including connectors. The first connector is ignored.
func EqualChain(a, b []types.Condition) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
		if i > 0 && a[i].EffectiveConnector() != b[i].EffectiveConnector() {
			return false
		}
	}
	return true
}

// RepeatedFields returns fields used by more than one real condition, in
// order of their second appearance.
func RepeatedFields(list []types.Condition) []string {
	seen := make(map[string]int, len(list))
	var out []string
	for _, c := range list {
		if c.IsPlaceholder() {
			continue
		}
		seen[c.Field]++
		if seen[c.Field] == 2 {
			out = append(out, c.Field)
		}
	}
	return out
}
