package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/josephgoksu/plantrack/internal/policy"
	"github.com/josephgoksu/plantrack/types"
)

var (
	// ErrAlreadyExists is returned by Import when the plan ID is taken.
	ErrAlreadyExists = errors.New("plan already exists")

	// ErrArchived is returned when revising an archived plan.
	ErrArchived = errors.New("plan is archived")

	// ErrPlanIDMismatch is returned by Revise when the document names a
	// different plan.
	ErrPlanIDMismatch = errors.New("document plan ID does not match")

	// ErrPolicyDenied matches every *PolicyDeniedError.
	ErrPolicyDenied = errors.New("denied by policy")
)

// ValidationError carries the report of a document that failed validation.
// errors.Is matches the sentinel of every error kind in the report.
type ValidationError struct {
	Report types.Report
}

func (e *ValidationError) Error() string {
	n := len(e.Report.Errors)
	if n == 1 {
		return "plan is invalid: " + e.Report.ErrorSummary()
	}
	return fmt.Sprintf("plan is invalid (%d errors): %s", n, e.Report.ErrorSummary())
}

// Unwrap exposes each issue so errors.Is(err, types.ErrCyclicDependency)
// works on the aggregate.
func (e *ValidationError) Unwrap() []error {
	out := make([]error, 0, len(e.Report.Errors))
	for i := range e.Report.Errors {
		out = append(out, &e.Report.Errors[i])
	}
	return out
}

// PolicyDeniedError is returned when a transition policy denies a request.
type PolicyDeniedError struct {
	Decision *policy.PolicyDecision
}

func (e *PolicyDeniedError) Error() string {
	return "denied by policy: " + strings.Join(e.Decision.Violations, "; ")
}

func (e *PolicyDeniedError) Is(target error) bool {
	return target == ErrPolicyDenied
}
