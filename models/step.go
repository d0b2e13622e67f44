package models

import (
	"slices"
	"time"
)

// StepKind classifies the work a step performs.
type StepKind string

const (
	KindCreateFile    StepKind = "create_file"
	KindEditFile      StepKind = "edit_file"
	KindDeleteFile    StepKind = "delete_file"
	KindRunCommand    StepKind = "run_command"
	KindTest          StepKind = "test"
	KindReview        StepKind = "review"
	KindDocumentation StepKind = "documentation"
	KindCustom        StepKind = "custom"
)

// RequiresCriteria reports whether steps of this kind are expected to
// declare validation criteria.
func (k StepKind) RequiresCriteria() bool {
	return k == KindTest || k == KindReview
}

// StepState represents the possible statuses of a step.
type StepState string

const (
	StatePending    StepState = "pending"
	StateInProgress StepState = "in-progress"
	StateDone       StepState = "done"
	StateBlocked    StepState = "blocked"
	StateSkipped    StepState = "skipped"
)

// AllStates lists the status vocabulary in lifecycle order.
var AllStates = []StepState{StatePending, StateInProgress, StateDone, StateBlocked, StateSkipped}

// IsTerminal returns true for done and skipped.
func (s StepState) IsTerminal() bool {
	return s == StateDone || s == StateSkipped
}

// IsStarted returns true for every state that carries a StartedAt timestamp.
func (s StepState) IsStarted() bool {
	return s != StatePending && s != ""
}

// IsValid returns true if this is a recognized state.
func (s StepState) IsValid() bool {
	return slices.Contains(AllStates, s)
}

// StepStatus is the mutable part of a step.
type StepStatus struct {
	State       StepState  `json:"state" yaml:"state" toml:"state"`
	StartedAt   *time.Time `json:"startedAt,omitempty" yaml:"startedAt,omitempty" toml:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty" yaml:"completedAt,omitempty" toml:"completedAt,omitempty"`
	Notes       string     `json:"notes,omitempty" yaml:"notes,omitempty" toml:"notes,omitempty"`
	BlockReason string     `json:"blockReason,omitempty" yaml:"blockReason,omitempty" toml:"blockReason,omitempty"`
}

// PendingStatus returns the initial status of every step.
func PendingStatus() StepStatus {
	return StepStatus{State: StatePending}
}

// ValidationCriteria describes how a step's outcome is checked.
type ValidationCriteria struct {
	Criteria       []string `json:"criteria,omitempty" yaml:"criteria,omitempty" toml:"criteria,omitempty"`
	AutomatedTests []string `json:"automatedTests,omitempty" yaml:"automatedTests,omitempty" toml:"automatedTests,omitempty"`
}

// Step represents a unit of work within a plan.
type Step struct {
	ID          string              `json:"id" yaml:"id" toml:"id"`
	Title       string              `json:"title" yaml:"title" toml:"title"`
	Description string              `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Kind        StepKind            `json:"kind" yaml:"kind" toml:"kind"`
	DependsOn   []string            `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty" toml:"dependsOn,omitempty"`
	Actions     []Action            `json:"actions,omitempty" yaml:"actions,omitempty" toml:"actions,omitempty"`
	Validation  *ValidationCriteria `json:"validation,omitempty" yaml:"validation,omitempty" toml:"validation,omitempty"`
	Status      StepStatus          `json:"status" yaml:"status" toml:"status"`
}

// HasDependencies returns true if this step depends on other steps.
func (s *Step) HasDependencies() bool {
	return len(s.DependsOn) > 0
}

// HasCriteria returns true if the step declares at least one validation criterion.
func (s *Step) HasCriteria() bool {
	return s.Validation != nil && len(s.Validation.Criteria) > 0
}

// Clone returns a deep copy of the step.
func (s Step) Clone() Step {
	out := s
	out.DependsOn = slices.Clone(s.DependsOn)
	if s.Actions != nil {
		out.Actions = make([]Action, len(s.Actions))
		for i, a := range s.Actions {
			out.Actions[i] = a.Clone()
		}
	}
	if s.Validation != nil {
		v := ValidationCriteria{
			Criteria:       slices.Clone(s.Validation.Criteria),
			AutomatedTests: slices.Clone(s.Validation.AutomatedTests),
		}
		out.Validation = &v
	}
	out.Status = s.Status.Clone()
	return out
}

// Clone returns a copy that shares no timestamp pointers with s.
func (s StepStatus) Clone() StepStatus {
	out := s
	if s.StartedAt != nil {
		t := *s.StartedAt
		out.StartedAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return out
}
