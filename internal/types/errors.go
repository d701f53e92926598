package types

import "errors"

// Sentinel errors for dispatchkeeper operations.
var (
	// ErrInvalidOperator indicates an unknown condition operator.
	ErrInvalidOperator = errors.New("invalid condition operator")

	// ErrInvalidConnector indicates a connector other than and/or.
	ErrInvalidConnector = errors.New("invalid condition connector")

	// ErrInvalidPattern indicates a reg/nreg value that does not compile.
	ErrInvalidPattern = errors.New("invalid regular expression")

	// ErrTooManyConditions indicates a rule exceeds MaxConditionsPerRule.
	ErrTooManyConditions = errors.New("rule has too many conditions")

	// ErrTooManyRules indicates a batch exceeds MaxRulesPerGroup.
	ErrTooManyRules = errors.New("group has too many rules")

	// ErrInvalidPriority indicates a priority outside MinPriority..MaxPriority.
	ErrInvalidPriority = errors.New("priority out of range")

	// ErrPriorityConflict indicates another group already holds the priority.
	ErrPriorityConflict = errors.New("priority already used by another group")

	// ErrInvalidSeverity indicates a severity outside 0..MaxSeverity.
	ErrInvalidSeverity = errors.New("severity out of range")

	// ErrEmptyGroupName indicates a group without a name.
	ErrEmptyGroupName = errors.New("group name is empty")

	// ErrInvalidTag indicates a tag that is not key:value or repeats a key.
	ErrInvalidTag = errors.New("invalid tag")

	// ErrConflictPending indicates a condition edit while an earlier edit of
	// a unified condition awaits ConfirmEdit or CancelEdit.
	ErrConflictPending = errors.New("unified condition edit awaits confirmation")

	// ErrGroupNotFound indicates the requested rule group does not exist.
	ErrGroupNotFound = errors.New("rule group not found")

	// ErrInvalidWindow indicates a debug time window whose end is not after its start.
	ErrInvalidWindow = errors.New("invalid time window")

	// ErrNothingToDebug indicates a debug request naming neither a group nor excluded groups.
	ErrNothingToDebug = errors.New("debug request names no group")

	// ErrRuleIndex indicates a rule position outside the group.
	ErrRuleIndex = errors.New("rule index out of range")

	// ErrRuleNotFound indicates a submitted rule id that the group does not own.
	ErrRuleNotFound = errors.New("rule not found in group")

	// ErrAPIKeyNotFound indicates an unknown or already revoked API key id.
	ErrAPIKeyNotFound = errors.New("api key not found")
)
