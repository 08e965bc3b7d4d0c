package schedule

import "fmt"

// ValidationError describes the first constraint a rule payload violates.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// SkippedRule records a rule left out of evaluation.
type SkippedRule struct {
	RuleID string
	Err    error
}
