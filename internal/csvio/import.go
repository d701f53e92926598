package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/solatis/dispatchkeeper/internal/rules"
	"github.com/solatis/dispatchkeeper/internal/types"
)

// RowError is one problem found during import. Row is 1-based and counts the
// header; Column is empty for problems that concern the whole row.
type RowError struct {
	Row    int
	Column string
	Err    error
}

func (e RowError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("row %d: %v", e.Row, e.Err)
	}
	return fmt.Sprintf("row %d, column %s: %v", e.Row, e.Column, e.Err)
}

func (e RowError) Unwrap() error {
	return e.Err
}

// ImportError aggregates every problem of a rejected file.
type ImportError struct {
	Errors []RowError
}

func (e *ImportError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, re := range e.Errors {
		msgs = append(msgs, re.Error())
	}
	return fmt.Sprintf("import failed with %d error(s): %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Unwrap exposes the row errors to errors.Is and errors.As.
func (e *ImportError) Unwrap() []error {
	out := make([]error, 0, len(e.Errors))
	for _, re := range e.Errors {
		out = append(out, re)
	}
	return out
}

// Import parses a file written by Export. Either every row parses and the
// rules are returned in file order, or nothing is returned and the error is
// an *ImportError listing all problems. Blank rows are ignored.
func Import(r io.Reader) ([]types.RuleParams, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, &ImportError{Errors: []RowError{{Row: 1, Err: ErrHeader}}}
	}
	if !isHeader(rows[0]) {
		return nil, &ImportError{Errors: []RowError{{Row: 1, Err: fmt.Errorf("%w: %q", ErrHeader, rows[0])}}}
	}

	var (
		out  []types.RuleParams
		errs []RowError
	)
	for i, row := range rows[1:] {
		rowNum := i + 2
		if blank(row) {
			continue
		}
		if len(row) != len(Header) {
			errs = append(errs, RowError{Row: rowNum, Err: fmt.Errorf("expected %d columns, got %d", len(Header), len(row))})
			continue
		}
		p, rowErrs := parseRow(rowNum, row)
		if len(rowErrs) > 0 {
			errs = append(errs, rowErrs...)
			continue
		}
		if err := rules.ValidateRule(p); err != nil {
			errs = append(errs, RowError{Row: rowNum, Err: err})
			continue
		}
		out = append(out, p)
	}

	if len(out)+len(errs) > types.MaxRulesPerGroup {
		errs = append(errs, RowError{Row: len(rows), Err: fmt.Errorf("%w: %d > %d", types.ErrTooManyRules, len(out)+len(errs), types.MaxRulesPerGroup)})
	}
	if len(errs) > 0 {
		return nil, &ImportError{Errors: errs}
	}
	return out, nil
}

func isHeader(row []string) bool {
	if len(row) != len(Header) {
		return false
	}
	for i, cell := range row {
		if i == 0 {
			cell = strings.TrimPrefix(cell, "\ufeff")
		}
		if strings.TrimSpace(cell) != Header[i] {
			return false
		}
	}
	return true
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// parseRow converts one row to server shape, collecting a problem per column.
func parseRow(rowNum int, row []string) (types.RuleParams, []RowError) {
	var errs []RowError
	fail := func(col string, err error) {
		errs = append(errs, RowError{Row: rowNum, Column: col, Err: err})
	}

	p := types.RuleParams{
		UserGroups:     []int64{},
		Conditions:     []types.Condition{},
		AdditionalTags: []types.Tag{},
	}

	for _, s := range splitList(row[0]) {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			fail(ColAlarmGroups, fmt.Errorf("invalid group id %q", s))
			continue
		}
		p.UserGroups = append(p.UserGroups, id)
	}

	if cell := strings.TrimSpace(row[1]); cell != "" {
		if err := unmarshalCell(cell, &p.Conditions); err != nil {
			fail(ColConditions, fmt.Errorf("invalid json: %w", err))
		} else if err := canonicalize(p.Conditions); err != nil {
			fail(ColConditions, err)
		}
	}

	notice := types.ActionParams{ActionType: types.ActionNotice}
	if cell := strings.TrimSpace(row[2]); cell != "" {
		var esc escalationCell
		if err := unmarshalCell(cell, &esc); err != nil {
			fail(ColEscalation, fmt.Errorf("invalid json: %w", err))
		} else {
			notice.IsEnabled = esc.IsEnabled
			notice.UpgradeConfig = esc.UpgradeConfig
		}
	}
	p.Actions = append(p.Actions, notice)

	if cell := strings.TrimSpace(row[3]); cell != "" {
		id, err := strconv.ParseInt(cell, 10, 64)
		if err != nil || id < 0 {
			fail(ColAction, fmt.Errorf("invalid action id %q", cell))
		} else if id != 0 {
			p.Actions = append(p.Actions, types.ActionParams{ActionType: types.ActionITSM, ActionID: id})
		}
	}

	if cell := strings.TrimSpace(row[4]); cell != "" {
		sev, err := strconv.Atoi(cell)
		switch {
		case err != nil:
			fail(ColSeverity, fmt.Errorf("invalid severity %q", cell))
		case sev < 0 || sev > types.MaxSeverity:
			fail(ColSeverity, fmt.Errorf("%w: %d", types.ErrInvalidSeverity, sev))
		default:
			p.AlertSeverity = sev
		}
	}

	for _, s := range splitList(row[5]) {
		tag := types.ParseTag(s)
		if strings.TrimSpace(tag.Key) == "" || !types.ValidTag(s) {
			fail(ColTags, fmt.Errorf("invalid tag %q, want key:value", s))
			continue
		}
		p.AdditionalTags = append(p.AdditionalTags, types.Tag{Key: tag.Key, Value: tag.Value})
	}

	p.IsEnabled = true
	if cell := strings.TrimSpace(row[6]); cell != "" {
		enabled, err := strconv.ParseBool(cell)
		if err != nil {
			fail(ColEnabled, fmt.Errorf("invalid flag %q", cell))
		}
		p.IsEnabled = enabled
	}

	return p, errs
}

// canonicalize rewrites operator aliases and connector spellings in place.
func canonicalize(list []types.Condition) error {
	var errs []error
	for i := range list {
		op, err := types.ParseOperator(string(list[i].Operator))
		if err != nil {
			errs = append(errs, fmt.Errorf("condition %d: %w", i, err))
			continue
		}
		list[i].Operator = op
		if list[i].Connector == "" {
			continue
		}
		conn, err := types.ParseConnector(string(list[i].Connector))
		if err != nil {
			errs = append(errs, fmt.Errorf("condition %d: %w", i, err))
			continue
		}
		list[i].Connector = conn
	}
	return errors.Join(errs...)
}

func splitList(cell string) []string {
	var out []string
	for _, s := range strings.Split(cell, listSeparator) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
