/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies an Issue into the error taxonomy shared by the
// validators and the status engine.
type ErrorKind string

const (
	KindStructural        ErrorKind = "structural"
	KindReferential       ErrorKind = "referential"
	KindCyclicDependency  ErrorKind = "cyclic_dependency"
	KindSelfDependency    ErrorKind = "self_dependency"
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindIneligibleStart   ErrorKind = "ineligible_start"
)

// Sentinel errors, one per kind. An *Issue matches the sentinel of its kind
// with errors.Is.
var (
	ErrStructural        = errors.New("structural error")
	ErrReferential       = errors.New("referential error")
	ErrCyclicDependency  = errors.New("cyclic dependency")
	ErrSelfDependency    = errors.New("self dependency")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrIneligibleStart   = errors.New("ineligible start")

	// ErrPrecondition marks a caller contract violation, e.g. building a
	// dependency graph over input that was never validated.
	ErrPrecondition = errors.New("precondition violated")
)

var kindSentinels = map[ErrorKind]error{
	KindStructural:        ErrStructural,
	KindReferential:       ErrReferential,
	KindCyclicDependency:  ErrCyclicDependency,
	KindSelfDependency:    ErrSelfDependency,
	KindInvalidTransition: ErrInvalidTransition,
	KindIneligibleStart:   ErrIneligibleStart,
}

// Severity separates blocking errors from advisory warnings.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is a single validation or transition problem. It is plain data so
// callers can hand it to a user without translation.
type Issue struct {
	Severity Severity  `json:"severity"`
	Kind     ErrorKind `json:"kind,omitempty"`
	Code     string    `json:"code"`
	Path     string    `json:"path,omitempty"`
	StepID   string    `json:"stepId,omitempty"`
	Message  string    `json:"message"`

	// Related carries the IDs involved: the cycle path for cyclic
	// dependencies, the missing dependencies for ineligible starts.
	Related []string `json:"related,omitempty"`
}

func (e *Issue) Error() string {
	var sb strings.Builder
	if e.Path != "" {
		sb.WriteString(e.Path)
		sb.WriteString(": ")
	} else if e.StepID != "" {
		sb.WriteString("step ")
		sb.WriteString(e.StepID)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	return sb.String()
}

// Is reports whether target is the sentinel for this issue's kind.
func (e *Issue) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

// NewIssue builds an error-severity issue.
func NewIssue(kind ErrorKind, code, message string) *Issue {
	return &Issue{
		Severity: SeverityError,
		Kind:     kind,
		Code:     code,
		Message:  message,
	}
}

// Issuef is NewIssue with a formatted message.
func Issuef(kind ErrorKind, code, format string, args ...any) *Issue {
	return NewIssue(kind, code, fmt.Sprintf(format, args...))
}

// NewWarning builds a non-blocking issue.
func NewWarning(code, stepID, message string) Issue {
	return Issue{
		Severity: SeverityWarning,
		Code:     code,
		StepID:   stepID,
		Message:  message,
	}
}

// AsIssue unwraps err into an *Issue when it carries one.
func AsIssue(err error) (*Issue, bool) {
	var issue *Issue
	if errors.As(err, &issue) {
		return issue, true
	}
	return nil, false
}
