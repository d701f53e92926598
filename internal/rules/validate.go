// internal/rules/validate.go
package rules

import (
	"fmt"

	"github.com/solatis/dispatchkeeper/internal/types"
)

/*
 * Server-side rule validation.
 *
 * Applied to every rule before it is stored or probed. The editor's
 * field markers (internal/dispatch) cover what a person can fix in place;
 * this check guards the boundary against payloads that never went through
 * an editor, such as rule files, CSV imports and raw probe requests.
 */

// ValidateRule checks severity range, tag format and key uniqueness, and
// that the condition chain compiles.
func ValidateRule(p types.RuleParams) error {
	if p.AlertSeverity < 0 || p.AlertSeverity > types.MaxSeverity {
		return fmt.Errorf("%w: %d", types.ErrInvalidSeverity, p.AlertSeverity)
	}
	seen := make(map[string]struct{}, len(p.AdditionalTags))
	for _, t := range p.AdditionalTags {
		if !types.ValidTag(t.String()) {
			return fmt.Errorf("%w: %q", types.ErrInvalidTag, t.String())
		}
		if _, ok := seen[t.Key]; ok {
			return fmt.Errorf("%w: key %q repeated", types.ErrInvalidTag, t.Key)
		}
		seen[t.Key] = struct{}{}
	}
	for _, c := range p.Conditions {
		if c.Connector != "" && c.Connector != types.ConnAnd && c.Connector != types.ConnOr {
			return fmt.Errorf("%w: %q", types.ErrInvalidConnector, c.Connector)
		}
	}
	if _, err := CompileChain(p.Conditions); err != nil {
		return err
	}
	return nil
}

// ValidateRules checks a batch, reporting the first failing position.
func ValidateRules(batch []types.RuleParams) error {
	if len(batch) > types.MaxRulesPerGroup {
		return fmt.Errorf("%w: %d > %d", types.ErrTooManyRules, len(batch), types.MaxRulesPerGroup)
	}
	for i, p := range batch {
		if err := ValidateRule(p); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return nil
}
