// internal/dispatch/validate.go
package dispatch

import (
	"fmt"
	"strings"

	"github.com/solatis/dispatchkeeper/internal/rules"
	"github.com/solatis/dispatchkeeper/internal/types"
)

// ErrorKind names a validation check.
type ErrorKind string

const (
	ErrAlarmGroupsRequired  ErrorKind = "alarmGroupsRequired"
	ErrEscalationOverlap    ErrorKind = "noSelfEscalationOverlap"
	ErrTagFormat            ErrorKind = "tagFormat"
	ErrTagKeyRepeat         ErrorKind = "tagKeyRepeat"
	ErrConditionsRequired   ErrorKind = "conditionsRequired"
	ErrConditionFieldRepeat ErrorKind = "conditionFieldRepeat"
	ErrConditionOperator    ErrorKind = "conditionOperator"
	ErrConditionRegex       ErrorKind = "conditionRegex"
	ErrSeverityRange        ErrorKind = "severityRange"
)

// FieldError is an inline validation marker on one field of a record.
// Markers block debug and save but never fail a mutation.
type FieldError struct {
	Field  Field
	Kind   ErrorKind
	Detail string
}

func (e FieldError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Field, e.Kind, e.Detail)
}

// ValidTag reports whether a raw tag source is well formed.
func ValidTag(src string) bool {
	return types.ValidTag(src)
}

// Validate runs every record check and returns the markers in field order.
func Validate(r *Record) []FieldError {
	var errs []FieldError
	empty := r.IsEmpty()

	if len(r.UserGroups) == 0 && !empty {
		errs = append(errs, FieldError{Field: FieldUserGroups, Kind: ErrAlarmGroupsRequired})
	}

	conds := r.RealConditions()
	if len(conds) == 0 && !empty {
		errs = append(errs, FieldError{Field: FieldConditions, Kind: ErrConditionsRequired})
	}
	if repeated := rules.RepeatedFields(conds); len(repeated) > 0 {
		errs = append(errs, FieldError{Field: FieldConditions, Kind: ErrConditionFieldRepeat, Detail: strings.Join(repeated, ",")})
	}
	for _, c := range conds {
		if !c.Operator.Valid() {
			errs = append(errs, FieldError{Field: FieldConditions, Kind: ErrConditionOperator, Detail: string(c.Operator)})
			continue
		}
		if !c.Operator.IsRegex() || c.IsNullMatch() {
			continue
		}
		for _, v := range c.Values {
			if err := rules.ValidatePattern(v); err != nil {
				errs = append(errs, FieldError{Field: FieldConditions, Kind: ErrConditionRegex, Detail: c.Field})
				break
			}
		}
	}

	if r.Escalation.NoticeEnabled && r.Escalation.Enabled {
		if overlap := intersect(r.UserGroups, r.Escalation.UserGroups); len(overlap) > 0 {
			errs = append(errs, FieldError{Field: FieldEscalation, Kind: ErrEscalationOverlap, Detail: joinIDs(overlap)})
		}
	}

	if r.Severity < 0 || r.Severity > types.MaxSeverity {
		errs = append(errs, FieldError{Field: FieldSeverity, Kind: ErrSeverityRange})
	}

	errs = append(errs, validateTags(r.AdditionalTags)...)
	return errs
}

// validateTags checks format first; key uniqueness is only reported for
// well-formed tags.
func validateTags(tags []types.Tag) []FieldError {
	for _, t := range tags {
		if !ValidTag(t.SourceString()) {
			return []FieldError{{Field: FieldTags, Kind: ErrTagFormat, Detail: t.SourceString()}}
		}
	}
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if _, ok := seen[t.Key]; ok {
			return []FieldError{{Field: FieldTags, Kind: ErrTagKeyRepeat, Detail: t.Key}}
		}
		seen[t.Key] = struct{}{}
	}
	return nil
}

func intersect(a, b []int64) []int64 {
	set := make(map[int64]struct{}, len(b))
	for _, id := range b {
		set[id] = struct{}{}
	}
	var out []int64
	for _, id := range a {
		if _, ok := set[id]; ok {
			out = append(out, id)
			delete(set, id)
		}
	}
	return out
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ",")
}
