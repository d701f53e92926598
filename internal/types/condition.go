// internal/types/condition.go
package types

/*
 * Condition clauses for dispatch rules.
 *
 * A rule matches alerts through a chain of clauses joined left to right by
 * boolean connectors. Each clause compares one alert field against a value
 * list using one operator.
 *
 * Key types:
 *   - Operator: comparison applied to the field (eq, neq, include, exclude, reg, nreg)
 *   - Connector: and/or joining a clause to the previous one
 *   - Condition: one clause; JSON shape {field, method, value, condition}
 *
 * Empty-value sentinel: a value list holding exactly "" matches an empty or
 * missing field. It never coexists with other values; AddValue and SetValues
 * keep the two mutually exclusive.
 */

import (
	"fmt"
	"regexp"
	"strings"
)

// Operator is the comparison a condition applies to an alert field.
type Operator string

const (
	OpEq      Operator = "eq"
	OpNeq     Operator = "neq"
	OpInclude Operator = "include"
	OpExclude Operator = "exclude"
	OpReg     Operator = "reg"
	OpNreg    Operator = "nreg"
)

// Operators lists every valid operator in display order.
var Operators = []Operator{OpEq, OpNeq, OpInclude, OpExclude, OpReg, OpNreg}

// operatorAliases maps accepted spellings to canonical operators.
var operatorAliases = map[string]Operator{
	"eq":      OpEq,
	"neq":     OpNeq,
	"include": OpInclude,
	"exclude": OpExclude,
	"reg":     OpReg,
	"regex":   OpReg,
	"nreg":    OpNreg,
	"nregex":  OpNreg,
}

// ParseOperator converts a wire or display name to an Operator.
func ParseOperator(s string) (Operator, error) {
	op, ok := operatorAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidOperator, s)
	}
	return op, nil
}

// Valid reports whether o is one of the canonical operators.
func (o Operator) Valid() bool {
	switch o {
	case OpEq, OpNeq, OpInclude, OpExclude, OpReg, OpNreg:
		return true
	}
	return false
}

// IsRegex reports whether the operator's values are regular expressions.
func (o Operator) IsRegex() bool {
	return o == OpReg || o == OpNreg
}

// IsNegated reports whether the operator matches when the positive form does not.
func (o Operator) IsNegated() bool {
	return o == OpNeq || o == OpExclude || o == OpNreg
}

// Connector joins a condition to the previous one in its chain.
type Connector string

const (
	ConnAnd Connector = "and"
	ConnOr  Connector = "or"
)

// ParseConnector converts a wire name to a Connector. Empty input means and.
func ParseConnector(s string) (Connector, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "and":
		return ConnAnd, nil
	case "or":
		return ConnOr, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidConnector, s)
}

// Condition is one clause of a dispatch rule.
// The connector of the first clause in a chain is ignored and never serialized.
type Condition struct {
	Field     string    `json:"field" yaml:"field"`
	Operator  Operator  `json:"method" yaml:"method"`
	Values    []string  `json:"value" yaml:"value"`
	Connector Connector `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// IsPlaceholder reports whether the condition has no field yet.
// Placeholders are rendered but never compared, validated, or submitted.
func (c Condition) IsPlaceholder() bool {
	return strings.TrimSpace(c.Field) == ""
}

// IsNullMatch reports whether the condition holds only the empty-value sentinel.
func (c Condition) IsNullMatch() bool {
	return len(c.Values) == 1 && c.Values[0] == ""
}

// EffectiveConnector returns the connector, defaulting to and.
func (c Condition) EffectiveConnector() Connector {
	if c.Connector == ConnOr {
		return ConnOr
	}
	return ConnAnd
}

// Clone returns a deep copy.
func (c Condition) Clone() Condition {
	out := c
	if c.Values != nil {
		out.Values = make([]string, len(c.Values))
		copy(out.Values, c.Values)
	}
	return out
}

// CloneConditions deep-copies a condition list. nil stays nil.
func CloneConditions(list []Condition) []Condition {
	if list == nil {
		return nil
	}
	out := make([]Condition, len(list))
	for i, c := range list {
		out[i] = c.Clone()
	}
	return out
}

// AddValue returns values with v selected.
// Selecting the sentinel clears every other value; selecting a real value
// clears the sentinel. Already-present values are not repeated.
func AddValue(values []string, v string) []string {
	if v == "" {
		return []string{""}
	}
	out := make([]string, 0, len(values)+1)
	for _, existing := range values {
		if existing == "" || existing == v {
			continue
		}
		out = append(out, existing)
	}
	return append(out, v)
}

// SetValues normalizes a whole value list for the sentinel rule.
// When the sentinel is mixed with real values, the most recently selected
// entry (the last one) decides which side survives.
func SetValues(values []string) []string {
	if len(values) == 0 {
		return []string{}
	}
	if values[len(values)-1] == "" {
		return []string{""}
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Tag is an additional key/value label appended to matched alerts.
// Source keeps the operator's raw input and is ignored by comparisons.
type Tag struct {
	Key    string `json:"key" yaml:"key"`
	Value  string `json:"value" yaml:"value"`
	Source string `json:"-" yaml:"-"`
}

// String renders the tag in key:value form.
func (t Tag) String() string {
	return t.Key + ":" + t.Value
}

// SourceString returns the raw input, or key:value when none was recorded.
func (t Tag) SourceString() string {
	if t.Source != "" {
		return t.Source
	}
	if t.Value == "" {
		return t.Key
	}
	return t.String()
}

// tagPattern requires exactly one separator with non-empty sides.
var tagPattern = regexp.MustCompile(`^[^:=]+[:=][^:=]+$`)

// ValidTag reports whether a raw tag source is well formed. Values holding
// ':' or '=' are rejected since the source could not be split back.
func ValidTag(src string) bool {
	return tagPattern.MatchString(src)
}

// ParseTag splits a key:value or key=value string on the first separator.
// It never fails; format checks belong to rule validation so a malformed
// tag can still be displayed and corrected.
func ParseTag(src string) Tag {
	i := strings.IndexAny(src, ":=")
	if i < 0 {
		return Tag{Key: src, Source: src}
	}
	return Tag{Key: src[:i], Value: src[i+1:], Source: src}
}
