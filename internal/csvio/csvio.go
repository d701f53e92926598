// Package csvio exports and imports the rules of one group as CSV.
//
// A rule is one row of seven columns: alarm groups, conditions, escalation,
// ticket action, severity, tags and the enabled flag. Conditions and
// escalation are JSON cells in which every ASCII comma is written as a
// full-width comma (U+FF0C), so files stay readable by tools that split rows
// on commas without honoring quotes. Import reverses the substitution, which
// means a literal full-width comma inside a condition value does not survive
// a round trip.
package csvio

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/solatis/dispatchkeeper/internal/dispatch"
	"github.com/solatis/dispatchkeeper/internal/types"
)

// Column names, in file order.
const (
	ColAlarmGroups = "alarm_groups"
	ColConditions  = "conditions"
	ColEscalation  = "escalation"
	ColAction      = "action"
	ColSeverity    = "severity"
	ColTags        = "tags"
	ColEnabled     = "enabled"
)

// Header is the first row of every file.
var Header = []string{ColAlarmGroups, ColConditions, ColEscalation, ColAction, ColSeverity, ColTags, ColEnabled}

const (
	fullWidthComma = "，"
	listSeparator  = ";"
)

// ErrHeader indicates a first row that is not Header.
var ErrHeader = errors.New("unexpected csv header")

// escalationCell is the JSON shape of the escalation column.
type escalationCell struct {
	IsEnabled     *bool                `json:"is_enabled"`
	UpgradeConfig *types.UpgradeConfig `json:"upgrade_config"`
}

// Export writes the header and one row per rule. Placeholder rows are skipped.
func Export(w io.Writer, recs []*dispatch.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, r := range recs {
		if r.IsEmpty() {
			continue
		}
		row, err := exportRow(r.SubmitParams())
		if err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write rule %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func exportRow(p types.RuleParams) ([]string, error) {
	conditions, err := jsonCell(nonNilConditions(p.Conditions))
	if err != nil {
		return nil, fmt.Errorf("encode conditions: %w", err)
	}

	var esc escalationCell
	if notice := p.Action(types.ActionNotice); notice != nil {
		esc = escalationCell{IsEnabled: notice.IsEnabled, UpgradeConfig: notice.UpgradeConfig}
	}
	escalation, err := jsonCell(esc)
	if err != nil {
		return nil, fmt.Errorf("encode escalation: %w", err)
	}

	action := ""
	if itsm := p.Action(types.ActionITSM); itsm != nil && itsm.ActionID != 0 {
		action = strconv.FormatInt(itsm.ActionID, 10)
	}

	groups := make([]string, 0, len(p.UserGroups))
	for _, id := range p.UserGroups {
		groups = append(groups, strconv.FormatInt(id, 10))
	}
	tags := make([]string, 0, len(p.AdditionalTags))
	for _, t := range p.AdditionalTags {
		tags = append(tags, t.String())
	}

	return []string{
		strings.Join(groups, listSeparator),
		conditions,
		escalation,
		action,
		strconv.Itoa(p.AlertSeverity),
		strings.Join(tags, listSeparator),
		strconv.FormatBool(p.IsEnabled),
	}, nil
}

func nonNilConditions(list []types.Condition) []types.Condition {
	if list == nil {
		return []types.Condition{}
	}
	return list
}

func jsonCell(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(string(b), ",", fullWidthComma), nil
}

func unmarshalCell(cell string, v any) error {
	return json.Unmarshal([]byte(strings.ReplaceAll(cell, fullWidthComma, ",")), v)
}
