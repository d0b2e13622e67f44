package models

import (
	"fmt"
	"regexp"
	"slices"
	"time"
)

// TimestampLayout is the wire format for every document timestamp.
const TimestampLayout = time.RFC3339

var planIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidPlanID reports whether id can name a plan in every store backend:
// a letter or digit followed by letters, digits, '.', '_' or '-'.
func ValidPlanID(id string) bool {
	return planIDPattern.MatchString(id)
}

// PlanDocument is the decode target for raw plan documents. Timestamps stay
// strings and nested blocks are pointers so a malformed field never aborts
// decoding of its siblings; the schema validator reports it instead.
type PlanDocument struct {
	PlanID        string            `json:"planId" validate:"required,nonempty,id_length,plan_id"`
	SchemaVersion string            `json:"schemaVersion" validate:"required,schema_version"`
	PlanType      string            `json:"planType" validate:"required,plan_type"`
	Metadata      *MetadataDocument `json:"metadata" validate:"required"`
	Objective     string            `json:"objective" validate:"required,nonempty"`
	Scope         *ScopeDocument    `json:"scope,omitempty"`
	Constraints   []string          `json:"constraints,omitempty" validate:"omitempty,dive,nonempty"`
	Phases        []PhaseDocument   `json:"phases,omitempty" validate:"omitempty,dive"`
	Steps         []StepDocument    `json:"steps" validate:"max_steps,dive"`
}

// MetadataDocument is the metadata block of a raw plan document.
type MetadataDocument struct {
	Title       string `json:"title" validate:"required,nonempty,title_length"`
	Description string `json:"description,omitempty"`
	Author      string `json:"author,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	UpdatedAt   string `json:"updatedAt,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Revision    int    `json:"revision,omitempty" validate:"gte=0"`
	ArchivedAt  string `json:"archivedAt,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// ScopeDocument is the scope block of a raw plan document.
type ScopeDocument struct {
	InScope    []string `json:"inScope,omitempty" validate:"omitempty,dive,nonempty"`
	OutOfScope []string `json:"outOfScope,omitempty" validate:"omitempty,dive,nonempty"`
}

// PhaseDocument declares a named group of steps.
type PhaseDocument struct {
	ID      string   `json:"id" validate:"required,nonempty,id_length"`
	Title   string   `json:"title" validate:"required,nonempty,title_length"`
	StepIDs []string `json:"stepIds,omitempty" validate:"omitempty,unique,dive,nonempty"`
}

// StepDocument is one step of a raw plan document.
type StepDocument struct {
	ID          string              `json:"id" validate:"required,nonempty,id_length"`
	Title       string              `json:"title" validate:"required,nonempty,title_length"`
	Description string              `json:"description,omitempty"`
	Kind        string              `json:"kind" validate:"required,step_kind"`
	DependsOn   []string            `json:"dependsOn,omitempty" validate:"omitempty,unique,dive,nonempty"`
	Actions     []ActionDocument    `json:"actions,omitempty" validate:"omitempty,dive"`
	Validation  *ValidationDocument `json:"validation,omitempty"`
	Status      *StepStatusDocument `json:"status,omitempty"`
}

// ActionDocument is one action of a raw step.
type ActionDocument struct {
	Type        string         `json:"type" validate:"required,action_type"`
	Description string         `json:"description" validate:"required,nonempty"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// ValidationDocument carries a step's validation criteria.
type ValidationDocument struct {
	Criteria       []string `json:"criteria,omitempty" validate:"omitempty,dive,nonempty"`
	AutomatedTests []string `json:"automatedTests,omitempty" validate:"omitempty,dive,nonempty"`
}

// StepStatusDocument is the status block of a raw step. A missing block
// means pending.
type StepStatusDocument struct {
	State       string `json:"state" validate:"required,step_state"`
	StartedAt   string `json:"startedAt,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	CompletedAt string `json:"completedAt,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Notes       string `json:"notes,omitempty"`
	BlockReason string `json:"blockReason,omitempty"`
}

// Plan converts a structurally valid document into a Plan. A missing
// createdAt falls back to updatedAt, then to now; a missing updatedAt equals
// createdAt. A missing revision starts at 1.
func (d *PlanDocument) Plan(now time.Time) (*Plan, error) {
	if d.Metadata == nil {
		return nil, fmt.Errorf("plan %q: metadata is missing", d.PlanID)
	}

	updated, err := parseOptionalTimestamp(d.Metadata.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("metadata.updatedAt: %w", err)
	}
	createdFallback := now
	if updated != nil {
		createdFallback = *updated
	}
	createdAt, err := parseTimestampOr(d.Metadata.CreatedAt, createdFallback)
	if err != nil {
		return nil, fmt.Errorf("metadata.createdAt: %w", err)
	}
	updatedAt := createdAt
	if updated != nil {
		updatedAt = *updated
	}
	archivedAt, err := parseOptionalTimestamp(d.Metadata.ArchivedAt)
	if err != nil {
		return nil, fmt.Errorf("metadata.archivedAt: %w", err)
	}

	revision := d.Metadata.Revision
	if revision < 1 {
		revision = 1
	}

	plan := &Plan{
		ID:            d.PlanID,
		SchemaVersion: d.SchemaVersion,
		Type:          PlanType(d.PlanType),
		Metadata: Metadata{
			Title:       d.Metadata.Title,
			Description: d.Metadata.Description,
			Author:      d.Metadata.Author,
			CreatedAt:   createdAt,
			UpdatedAt:   updatedAt,
			Revision:    revision,
			ArchivedAt:  archivedAt,
		},
		Objective:   d.Objective,
		Constraints: slices.Clone(d.Constraints),
		Steps:       make([]Step, 0, len(d.Steps)),
	}
	if d.Scope != nil {
		plan.Scope = Scope{
			InScope:    slices.Clone(d.Scope.InScope),
			OutOfScope: slices.Clone(d.Scope.OutOfScope),
		}
	}
	for _, ph := range d.Phases {
		plan.Phases = append(plan.Phases, Phase{
			ID:      ph.ID,
			Title:   ph.Title,
			StepIDs: slices.Clone(ph.StepIDs),
		})
	}

	for i := range d.Steps {
		step, err := d.Steps[i].step()
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		plan.Steps = append(plan.Steps, step)
	}
	return plan, nil
}

func (d *StepDocument) step() (Step, error) {
	step := Step{
		ID:          d.ID,
		Title:       d.Title,
		Description: d.Description,
		Kind:        StepKind(d.Kind),
		DependsOn:   slices.Clone(d.DependsOn),
		Status:      PendingStatus(),
	}
	for _, a := range d.Actions {
		step.Actions = append(step.Actions, Action{
			Type:        ActionType(a.Type),
			Description: a.Description,
			Payload:     a.Payload,
		}.Clone())
	}
	if d.Validation != nil {
		step.Validation = &ValidationCriteria{
			Criteria:       slices.Clone(d.Validation.Criteria),
			AutomatedTests: slices.Clone(d.Validation.AutomatedTests),
		}
	}
	if d.Status != nil {
		status, err := d.Status.status()
		if err != nil {
			return Step{}, fmt.Errorf("status: %w", err)
		}
		step.Status = status
	}
	return step, nil
}

func (d *StepStatusDocument) status() (StepStatus, error) {
	startedAt, err := parseOptionalTimestamp(d.StartedAt)
	if err != nil {
		return StepStatus{}, fmt.Errorf("startedAt: %w", err)
	}
	completedAt, err := parseOptionalTimestamp(d.CompletedAt)
	if err != nil {
		return StepStatus{}, fmt.Errorf("completedAt: %w", err)
	}
	return StepStatus{
		State:       StepState(d.State),
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Notes:       d.Notes,
		BlockReason: d.BlockReason,
	}, nil
}

// ParseTimestamp parses a document timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(TimestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: expected RFC 3339", s)
	}
	return t, nil
}

func parseTimestampOr(s string, fallback time.Time) (time.Time, error) {
	if s == "" {
		return fallback, nil
	}
	return ParseTimestamp(s)
}

func parseOptionalTimestamp(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := ParseTimestamp(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
